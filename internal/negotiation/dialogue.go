// Package negotiation implements the per-dialogue bilateral negotiation state
// machine, the lock manager that reserves resources across concurrent
// dialogues, and the strategy layer that chooses what to propose and accept.
package negotiation

import (
	"sync"

	"github.com/talgya/tradeworld/internal/protocol"
)

// Message numbering within a dialogue: the opening CFP is id 1 targeting 0,
// every response increments by one and targets the triggering message.
const (
	StartingMessageID     = 1
	StartingMessageTarget = 0
)

// DialogueLabel identifies one negotiation session: the session id, the
// opponent, and whichever party opened the dialogue.
type DialogueLabel struct {
	DialogueID int    `json:"dialogue_id"`
	Opponent   string `json:"dialogue_opponent_pbk"`
	Starter    string `json:"dialogue_starter_pbk"`
}

// Dialogue holds the fixed facts of one session: its label and which side of
// the trade this agent is on. The last outgoing performative is tracked to
// reject out-of-sequence inbound messages.
type Dialogue struct {
	label        DialogueLabel
	isSeller     bool
	lastOutgoing protocol.Performative
}

// Label returns the dialogue's identifier.
func (d *Dialogue) Label() DialogueLabel { return d.label }

// IsSeller reports whether this agent sells in this dialogue.
func (d *Dialogue) IsSeller() bool { return d.isSeller }

// Role returns the agent's role name, for logging.
func (d *Dialogue) Role() string {
	if d.isSeller {
		return "seller"
	}
	return "buyer"
}

// RecordOutgoing notes the last protocol message sent on this dialogue.
func (d *Dialogue) RecordOutgoing(p protocol.Performative) {
	d.lastOutgoing = p
}

// expects reports whether an inbound performative is a legal next step given
// what this agent last sent.
func (d *Dialogue) expects(p protocol.Performative) bool {
	switch p {
	case protocol.PerformativePropose:
		return d.lastOutgoing == protocol.PerformativeCFP
	case protocol.PerformativeAccept:
		// Initial accept answers our propose; match accept answers our accept.
		return d.lastOutgoing == protocol.PerformativePropose || d.lastOutgoing == protocol.PerformativeAccept
	case protocol.PerformativeDecline:
		return d.lastOutgoing == protocol.PerformativeCFP ||
			d.lastOutgoing == protocol.PerformativePropose ||
			d.lastOutgoing == protocol.PerformativeAccept
	default:
		return false
	}
}

// Dialogues is the registry of an agent's sessions. All methods are safe for
// concurrent use; each dialogue itself is only ever driven by one message at
// a time (delivery order per dialogue is preserved by the transport).
type Dialogues struct {
	mu             sync.Mutex
	dialogues      map[DialogueLabel]*Dialogue
	asSeller       map[DialogueLabel]*Dialogue
	asBuyer        map[DialogueLabel]*Dialogue
	nextDialogueID int
}

// NewDialogues creates an empty registry.
func NewDialogues() *Dialogues {
	return &Dialogues{
		dialogues: make(map[DialogueLabel]*Dialogue),
		asSeller:  make(map[DialogueLabel]*Dialogue),
		asBuyer:   make(map[DialogueLabel]*Dialogue),
	}
}

// IsPermittedForNewDialogue reports whether an inbound message may open a new
// dialogue: a CFP with the starting id/target from a known counterparty.
func (ds *Dialogues) IsPermittedForNewDialogue(msg *protocol.Message, sender string, known map[string]bool) bool {
	return msg.Performative == protocol.PerformativeCFP &&
		msg.ID == StartingMessageID &&
		msg.Target == StartingMessageTarget &&
		known[sender]
}

// Get retrieves the registered dialogue an inbound message belongs to. The
// message may continue either a session this agent started or one the
// opponent started; ok is false when neither exists or the message is out of
// sequence for the dialogue it names.
func (ds *Dialogues) Get(msg *protocol.Message, sender, self string) (*Dialogue, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	selfInitiated := DialogueLabel{DialogueID: msg.DialogueID, Opponent: sender, Starter: self}
	otherInitiated := DialogueLabel{DialogueID: msg.DialogueID, Opponent: sender, Starter: sender}
	for _, label := range []DialogueLabel{selfInitiated, otherInitiated} {
		if d, ok := ds.dialogues[label]; ok && d.expects(msg.Performative) {
			return d, true
		}
	}
	return nil, false
}

// CreateSelfInitiated opens a new dialogue started by this agent.
func (ds *Dialogues) CreateSelfInitiated(opponent, starter string, isSeller bool) *Dialogue {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.nextDialogueID++
	label := DialogueLabel{DialogueID: ds.nextDialogueID, Opponent: opponent, Starter: starter}
	return ds.create(label, isSeller)
}

// CreateOpponentInitiated registers a dialogue the opponent opened.
func (ds *Dialogues) CreateOpponentInitiated(opponent string, dialogueID int, isSeller bool) *Dialogue {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	label := DialogueLabel{DialogueID: dialogueID, Opponent: opponent, Starter: opponent}
	return ds.create(label, isSeller)
}

func (ds *Dialogues) create(label DialogueLabel, isSeller bool) *Dialogue {
	d := &Dialogue{label: label, isSeller: isSeller}
	ds.dialogues[label] = d
	if isSeller {
		ds.asSeller[label] = d
	} else {
		ds.asBuyer[label] = d
	}
	return d
}

// Len returns the number of registered dialogues.
func (ds *Dialogues) Len() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.dialogues)
}
