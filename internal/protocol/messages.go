// Package protocol defines the negotiation wire protocol: the FIPA-style
// message set exchanged between participants, the transaction type settled by
// the controller, and the service descriptions/queries used for matching.
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Performative identifies the kind of protocol message.
type Performative string

const (
	PerformativeCFP          Performative = "cfp"
	PerformativePropose      Performative = "propose"
	PerformativeAccept       Performative = "accept"
	PerformativeDecline      Performative = "decline"
	PerformativeTransaction  Performative = "transaction"  // settlement request toward the controller
	PerformativeConfirmation Performative = "confirmation" // controller → both parties after settlement
	PerformativeError        Performative = "error"        // controller → parties on a rejected transaction
)

// Message is a single protocol message within a dialogue. Message ids increase
// by exactly one per sender; Target carries the id of the triggering message.
type Message struct {
	ID           int          `json:"msg_id"`
	DialogueID   int          `json:"dialogue_id"`
	Destination  string       `json:"destination"`
	Target       int          `json:"target"`
	Performative Performative `json:"performative"`

	// Performative-specific payloads.
	Query       *Query       `json:"query,omitempty"`       // cfp
	Proposals   []Bundle     `json:"proposals,omitempty"`   // propose
	Transaction *Transaction `json:"transaction,omitempty"` // transaction / confirmation
	ErrorMsg    string       `json:"error_msg,omitempty"`   // error
}

// Envelope wraps a message with addressing for the transport layer.
type Envelope struct {
	ID      uuid.UUID `json:"id"`
	To      string    `json:"to"`
	Sender  string    `json:"sender"`
	Message *Message  `json:"message"`
}

// NewEnvelope addresses a message from sender to the message's destination.
func NewEnvelope(sender string, msg *Message) *Envelope {
	return &Envelope{
		ID:      uuid.New(),
		To:      msg.Destination,
		Sender:  sender,
		Message: msg,
	}
}

// Bundle is a proposed trade: per-good quantities and an asking price.
// Quantities are from the buyer's perspective.
type Bundle struct {
	Quantities map[string]int `json:"quantities_by_good_pbk"`
	Price      float64        `json:"price"`
}

// Description advertises which goods an agent supplies or demands, with the
// quantities available or wanted.
type Description struct {
	IsSupply   bool           `json:"is_supply"`
	Quantities map[string]int `json:"quantities_by_good_pbk"`
}

// Query is carried by a CFP: the goods the searcher is interested in, and
// whether it is looking for supply (sellers) or demand (buyers).
type Query struct {
	WantsSupply bool     `json:"wants_supply"`
	GoodAddrs   []string `json:"goods"`
}

// Matches reports whether a service description satisfies the query: the
// description must be on the queried side of the market and cover at least one
// queried good with positive quantity.
func (q *Query) Matches(d *Description) bool {
	if d == nil || q.WantsSupply != d.IsSupply {
		return false
	}
	for _, g := range q.GoodAddrs {
		if d.Quantities[g] > 0 {
			return true
		}
	}
	return false
}

// Contains reports whether the good is part of the query.
func (q *Query) Contains(goodAddr string) bool {
	for _, g := range q.GoodAddrs {
		if g == goodAddr {
			return true
		}
	}
	return false
}

// Encode serializes a message for the transport.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserializes a message from the transport.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
