package sim

import (
	"log/slog"
	"math/rand"

	"github.com/talgya/tradeworld/internal/belief"
	"github.com/talgya/tradeworld/internal/crypto"
	"github.com/talgya/tradeworld/internal/game"
	"github.com/talgya/tradeworld/internal/mailbox"
	"github.com/talgya/tradeworld/internal/negotiation"
	"github.com/talgya/tradeworld/internal/protocol"
)

// Participant is one trading agent in a simulation: an identity, a live
// economic state, a negotiation behaviour, and the dialogue registry that
// routes inbound messages to it.
type Participant struct {
	identity  *crypto.Identity
	cfg       *game.GameConfiguration
	behaviour *negotiation.Behaviour
	dialogues *negotiation.Dialogues
	box       *mailbox.Mailbox
	known     map[string]bool
	logger    *slog.Logger
}

// NewParticipant builds a participant from its initial allocation.
func NewParticipant(identity *crypto.Identity, cfg *game.GameConfiguration, initial *game.AgentState, strategy negotiation.Strategy, worldModeling bool, box *mailbox.Mailbox, controllerAddr string, rng *rand.Rand, logger *slog.Logger) *Participant {
	known := make(map[string]bool, cfg.NbAgents)
	var opponents []string
	for _, addr := range cfg.AgentAddrs {
		if addr == identity.Address() {
			continue
		}
		known[addr] = true
		opponents = append(opponents, addr)
	}

	var world *belief.WorldState
	if worldModeling {
		world = belief.NewWorldState(opponents, cfg.GoodAddrs, initial, rng)
	}

	ownState := initial.Copy()
	locks := negotiation.NewLockManager()
	return &Participant{
		identity:  identity,
		cfg:       cfg,
		behaviour: negotiation.NewBehaviour(identity, cfg, ownState, strategy, world, locks, controllerAddr, rng, logger),
		dialogues: negotiation.NewDialogues(),
		box:       box,
		known:     known,
		logger:    logger.With("agent", cfg.AgentNames[identity.Address()]),
	}
}

// Address returns the participant's routing address.
func (p *Participant) Address() string { return p.identity.Address() }

// State returns the participant's live economic state.
func (p *Participant) State() *game.AgentState { return p.behaviour.OwnState() }

// Act refreshes the participant's service registrations and opens dialogues:
// it searches the directory for counterparties on both sides of the market
// and sends a CFP to each.
func (p *Participant) Act() {
	// An agent with nothing left to sell withdraws from the directory rather
	// than advertising an empty description.
	if len(p.behaviour.SuppliedGoods()) == 0 {
		p.box.UnregisterService(p.Address())
	} else {
		p.box.RegisterService(p.Address(), p.behaviour.SupplyDescription())
	}

	// Buying: look for sellers of what we demand.
	p.searchAndCFP(&protocol.Query{WantsSupply: true, GoodAddrs: p.behaviour.DemandedGoods()}, false)
	// Selling is initiated by responding to buyers' CFPs; the directory entry
	// above is what they find.
}

func (p *Participant) searchAndCFP(query *protocol.Query, isSeller bool) {
	if len(query.GoodAddrs) == 0 {
		return
	}
	for _, addr := range p.box.Search(query, p.Address()) {
		d := p.dialogues.CreateSelfInitiated(addr, p.Address(), isSeller)
		msg := &protocol.Message{
			ID:           negotiation.StartingMessageID,
			DialogueID:   d.Label().DialogueID,
			Destination:  addr,
			Target:       negotiation.StartingMessageTarget,
			Performative: protocol.PerformativeCFP,
			Query:        query,
		}
		d.RecordOutgoing(protocol.PerformativeCFP)
		p.send(msg)
		p.logger.Debug("sent cfp", "to", p.cfg.AgentNames[addr],
			"dialogue_id", d.Label().DialogueID)
	}
}

// React processes one inbound envelope: controller traffic updates the
// participant's state, negotiation traffic is routed to its dialogue.
func (p *Participant) React(env *protocol.Envelope) {
	msg := env.Message
	switch msg.Performative {
	case protocol.PerformativeConfirmation:
		if msg.Transaction != nil {
			p.behaviour.HandleConfirmation(msg.Transaction.ID)
		}
	case protocol.PerformativeError:
		p.logger.Warn("controller error", "error", msg.ErrorMsg)
		if msg.Transaction != nil {
			p.behaviour.HandleRejection(msg.Transaction.ID)
		}
	default:
		p.reactToNegotiation(env)
	}
}

func (p *Participant) reactToNegotiation(env *protocol.Envelope) {
	msg := env.Message

	d, ok := p.dialogues.Get(msg, env.Sender, p.Address())
	if !ok {
		if !p.dialogues.IsPermittedForNewDialogue(msg, env.Sender, p.known) {
			p.logger.Warn("dropping message for unidentified dialogue",
				"from", env.Sender, "performative", msg.Performative,
				"dialogue_id", msg.DialogueID)
			return
		}
		// The sender queries for supply, so this agent sells.
		d = p.dialogues.CreateOpponentInitiated(env.Sender, msg.DialogueID, msg.Query != nil && msg.Query.WantsSupply)
	}

	var replies []*protocol.Message
	switch msg.Performative {
	case protocol.PerformativeCFP:
		replies = p.behaviour.OnCFP(d, msg)
	case protocol.PerformativePropose:
		replies = p.behaviour.OnPropose(d, msg)
	case protocol.PerformativeAccept:
		replies = p.behaviour.OnAccept(d, msg)
	case protocol.PerformativeDecline:
		replies = p.behaviour.OnDecline(d, msg)
	default:
		p.logger.Warn("unexpected performative", "performative", msg.Performative)
	}
	for _, reply := range replies {
		p.send(reply)
	}
}

func (p *Participant) send(msg *protocol.Message) {
	if err := p.box.Send(protocol.NewEnvelope(p.Address(), msg)); err != nil {
		p.logger.Error("send failed", "to", msg.Destination, "error", err)
	}
}
