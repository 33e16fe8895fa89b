package negotiation

import (
	"log/slog"
	"math/rand"

	"github.com/talgya/tradeworld/internal/belief"
	"github.com/talgya/tradeworld/internal/game"
	"github.com/talgya/tradeworld/internal/protocol"
)

// Behaviour drives an agent's side of every negotiation dialogue: it answers
// inbound protocol messages, reserves resources through the lock manager, and
// submits agreed transactions to the controller. Handlers return the messages
// to send; the transport layer is the caller's concern.
type Behaviour struct {
	identity       protocol.Signer
	cfg            *game.GameConfiguration
	ownState       *game.AgentState
	strategy       Strategy
	world          *belief.WorldState // nil without world modeling
	locks          *LockManager
	controllerAddr string
	rng            *rand.Rand
	logger         *slog.Logger
}

// NewBehaviour wires a negotiation behaviour for one agent.
func NewBehaviour(identity protocol.Signer, cfg *game.GameConfiguration, ownState *game.AgentState, strategy Strategy, world *belief.WorldState, locks *LockManager, controllerAddr string, rng *rand.Rand, logger *slog.Logger) *Behaviour {
	return &Behaviour{
		identity:       identity,
		cfg:            cfg,
		ownState:       ownState,
		strategy:       strategy,
		world:          world,
		locks:          locks,
		controllerAddr: controllerAddr,
		rng:            rng,
		logger:         logger.With("agent", cfg.AgentNames[identity.Address()]),
	}
}

// OwnState returns the agent's live economic state.
func (b *Behaviour) OwnState() *game.AgentState { return b.ownState }

// World returns the agent's belief state, or nil.
func (b *Behaviour) World() *belief.WorldState { return b.world }

// SupplyDescription advertises what this agent sells right now.
func (b *Behaviour) SupplyDescription() *protocol.Description {
	quantities := b.strategy.SuppliedQuantities(b.ownState.Holdings())
	byGood := make(map[string]int, len(quantities))
	for i, g := range b.cfg.GoodAddrs {
		if quantities[i] > 0 {
			byGood[g] = quantities[i]
		}
	}
	return &protocol.Description{IsSupply: true, Quantities: byGood}
}

// SuppliedGoods lists the goods this agent can sell right now.
func (b *Behaviour) SuppliedGoods() []string {
	return b.strategy.SuppliedGoods(b.cfg.GoodAddrs, b.ownState.Holdings())
}

// DemandedGoods lists the goods this agent shops for right now.
func (b *Behaviour) DemandedGoods() []string {
	return b.strategy.DemandedGoods(b.cfg.GoodAddrs, b.ownState.Holdings())
}

// OnCFP answers a call for proposal: pick one profitable bundle matching the
// query and propose it, or decline.
func (b *Behaviour) OnCFP(d *Dialogue, msg *protocol.Message) []*protocol.Message {
	label := d.Label()
	reply := b.replyTo(d, msg)

	candidates := b.candidateTransactions(d, msg.Query)
	if len(candidates) == 0 {
		b.logger.Debug("declining cfp, nothing to offer",
			"dialogue_id", label.DialogueID, "role", d.Role())
		reply.Performative = protocol.PerformativeDecline
		d.RecordOutgoing(protocol.PerformativeDecline)
		return []*protocol.Message{reply}
	}

	chosen := candidates[b.rng.Intn(len(candidates))]
	b.locks.StorePendingProposal(label, reply.ID, chosen.tx)
	b.logger.Debug("proposing", "dialogue_id", label.DialogueID,
		"role", d.Role(), "price", chosen.bundle.Price)
	reply.Performative = protocol.PerformativePropose
	reply.Proposals = []protocol.Bundle{chosen.bundle}
	d.RecordOutgoing(protocol.PerformativePropose)
	return []*protocol.Message{reply}
}

// OnPropose evaluates a proposal answering our CFP: lock and accept when the
// trade is profitable against the state already committed to other dialogues,
// decline otherwise.
func (b *Behaviour) OnPropose(d *Dialogue, msg *protocol.Message) []*protocol.Message {
	label := d.Label()
	reply := b.replyTo(d, msg)

	if len(msg.Proposals) == 0 {
		b.logger.Warn("propose without proposals", "dialogue_id", label.DialogueID)
		reply.Performative = protocol.PerformativeDecline
		d.RecordOutgoing(protocol.PerformativeDecline)
		return []*protocol.Message{reply}
	}
	tx := b.transactionFromBundle(d, msg.Proposals[0])

	if !b.isProfitable(tx, d.IsSeller()) {
		b.logger.Debug("declining propose", "dialogue_id", label.DialogueID,
			"role", d.Role(), "amount", tx.Amount)
		reply.Performative = protocol.PerformativeDecline
		d.RecordOutgoing(protocol.PerformativeDecline)
		return []*protocol.Message{reply}
	}

	if err := b.locks.AddLock(tx, d.IsSeller()); err != nil {
		b.logger.Error("lock failed", "dialogue_id", label.DialogueID, "error", err)
		reply.Performative = protocol.PerformativeDecline
		d.RecordOutgoing(protocol.PerformativeDecline)
		return []*protocol.Message{reply}
	}
	b.locks.AddPendingAcceptance(label, reply.ID, tx)
	b.logger.Debug("accepting propose", "dialogue_id", label.DialogueID,
		"role", d.Role(), "amount", tx.Amount)
	reply.Performative = protocol.PerformativeAccept
	d.RecordOutgoing(protocol.PerformativeAccept)
	return []*protocol.Message{reply}
}

// OnAccept handles both halves of the two-step acceptance. A matching accept
// confirms an acceptance this agent already sent: the trade goes to the
// controller. An initial accept answers this agent's proposal: profitability
// is re-checked against current commitments, and on success the transaction is
// both submitted and echoed back as a matching accept.
func (b *Behaviour) OnAccept(d *Dialogue, msg *protocol.Message) []*protocol.Message {
	label := d.Label()

	if b.locks.HasPendingAcceptance(label, msg.Target) {
		tx, err := b.locks.PopPendingAcceptance(label, msg.Target)
		if err != nil {
			b.logger.Error("pending acceptance vanished", "dialogue_id", label.DialogueID, "error", err)
			return nil
		}
		b.logger.Debug("accept matched, submitting transaction",
			"dialogue_id", label.DialogueID, "tx_id", tx.ID)
		return []*protocol.Message{b.transactionMessage(tx)}
	}

	tx, err := b.locks.PopPendingProposal(label, msg.Target)
	if err != nil {
		perr := &ProtocolError{Reason: "accept targets no pending proposal"}
		b.logger.Warn("dropping accept",
			"dialogue_id", label.DialogueID, "target", msg.Target, "error", perr)
		return nil
	}

	reply := b.replyTo(d, msg)
	if !b.isProfitable(tx, d.IsSeller()) {
		// Profitable when proposed, no longer so after commitments elsewhere.
		b.logger.Debug("declining accept", "dialogue_id", label.DialogueID,
			"role", d.Role(), "amount", tx.Amount)
		reply.Performative = protocol.PerformativeDecline
		d.RecordOutgoing(protocol.PerformativeDecline)
		return []*protocol.Message{reply}
	}

	if err := b.locks.AddLock(tx, d.IsSeller()); err != nil {
		b.logger.Error("lock failed", "dialogue_id", label.DialogueID, "error", err)
		reply.Performative = protocol.PerformativeDecline
		d.RecordOutgoing(protocol.PerformativeDecline)
		return []*protocol.Message{reply}
	}
	if b.world != nil {
		b.world.UpdateOnInitialAccept(tx)
	}
	b.logger.Debug("matching accept, submitting transaction",
		"dialogue_id", label.DialogueID, "tx_id", tx.ID)
	reply.Performative = protocol.PerformativeAccept
	d.RecordOutgoing(protocol.PerformativeAccept)
	return []*protocol.Message{b.transactionMessage(tx), reply}
}

// OnDecline tears down whatever the dialogue had in flight: pending entries
// and the lock if one was taken. A declined proposal of our own is the one
// market signal fed to the belief state; declining is never an observation.
func (b *Behaviour) OnDecline(d *Dialogue, msg *protocol.Message) []*protocol.Message {
	label := d.Label()

	if tx, err := b.locks.PopPendingProposal(label, msg.Target); err == nil && b.world != nil {
		b.world.UpdateOnDecline(tx)
	}

	txID := protocol.NewTransactionID(b.identity.Address(), label.Opponent, label.DialogueID, label.Starter, d.IsSeller())
	if _, released := b.locks.PopLock(txID); released {
		b.logger.Debug("released lock on decline",
			"dialogue_id", label.DialogueID, "tx_id", txID)
	}
	b.locks.DropDialogue(label)
	return nil
}

// HandleConfirmation applies a controller-confirmed transaction to the agent's
// own state and releases its lock.
func (b *Behaviour) HandleConfirmation(txID string) {
	tx, ok := b.locks.PopLock(txID)
	if !ok {
		b.logger.Warn("confirmation for unknown lock", "tx_id", txID)
		return
	}
	b.ownState.Update(tx, b.cfg.TxFee)
	b.logger.Info("transaction settled",
		"tx_id", txID, "amount", tx.Amount, "balance", b.ownState.Balance)
}

// HandleRejection releases the lock of a transaction the controller refused.
func (b *Behaviour) HandleRejection(txID string) {
	if _, released := b.locks.PopLock(txID); released {
		b.logger.Warn("transaction rejected by controller, lock released", "tx_id", txID)
	}
}

type candidate struct {
	bundle protocol.Bundle
	tx     *protocol.Transaction
}

// candidateTransactions generates the strategy's proposals for the dialogue's
// role, keeps those matching the query, and drops any this agent could not
// honor given its current lock commitments.
func (b *Behaviour) candidateTransactions(d *Dialogue, query *protocol.Query) []candidate {
	if query == nil {
		return nil
	}
	state := b.lockedState(d.IsSeller())
	bundles := b.strategy.Proposals(b.cfg.GoodAddrs, state.Holdings(), state.UtilityParams(), b.cfg.TxFee, d.IsSeller(), b.world)

	var candidates []candidate
	for _, bundle := range bundles {
		matches := false
		for g, q := range bundle.Quantities {
			if q > 0 && query.Contains(g) {
				matches = true
				break
			}
		}
		if !matches {
			continue
		}
		tx := b.transactionFromBundle(d, bundle)
		if !state.ConsistentTransaction(tx, b.cfg.TxFee) {
			continue
		}
		candidates = append(candidates, candidate{bundle: bundle, tx: tx})
	}
	return candidates
}

// isProfitable simulates the transaction on top of the state implied by this
// agent's outstanding locks in the same role.
func (b *Behaviour) isProfitable(tx *protocol.Transaction, asSeller bool) bool {
	state := b.lockedState(asSeller)
	if !state.ConsistentTransaction(tx, b.cfg.TxFee) {
		return false
	}
	return b.strategy.IsAcceptable(state.ScoreDiff(tx, b.cfg.TxFee))
}

// lockedState is the agent's state with all locks of one role applied.
func (b *Behaviour) lockedState(asSeller bool) *game.AgentState {
	return b.ownState.Apply(b.locks.LockedTransactions(asSeller), b.cfg.TxFee)
}

// transactionFromBundle derives this agent's copy of the trade a bundle
// implies within the dialogue.
func (b *Behaviour) transactionFromBundle(d *Dialogue, bundle protocol.Bundle) *protocol.Transaction {
	label := d.Label()
	txID := protocol.NewTransactionID(b.identity.Address(), label.Opponent, label.DialogueID, label.Starter, d.IsSeller())
	return protocol.FromBundle(bundle, txID, !d.IsSeller(), label.Opponent, b.identity.Address())
}

// transactionMessage signs a transaction and wraps it for the controller.
func (b *Behaviour) transactionMessage(tx *protocol.Transaction) *protocol.Message {
	tx.Sign(b.identity)
	return &protocol.Message{
		ID:           StartingMessageID,
		DialogueID:   0,
		Destination:  b.controllerAddr,
		Target:       StartingMessageTarget,
		Performative: protocol.PerformativeTransaction,
		Transaction:  tx,
	}
}

// replyTo builds the skeleton of a response within the dialogue.
func (b *Behaviour) replyTo(d *Dialogue, msg *protocol.Message) *protocol.Message {
	return &protocol.Message{
		ID:          msg.ID + 1,
		DialogueID:  d.Label().DialogueID,
		Destination: d.Label().Opponent,
		Target:      msg.ID,
	}
}
