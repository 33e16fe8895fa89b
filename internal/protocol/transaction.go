package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// Signer produces signatures binding a transaction to an agent identity.
// Implemented by crypto.Identity; defined here so the wire types stay leaf.
type Signer interface {
	Address() string
	Sign(msg []byte) []byte
}

// Transaction is an agreed trade between two agents. Quantities are from the
// buyer's perspective: positive means the buyer receives. Immutable once
// signed.
type Transaction struct {
	ID            string         `json:"transaction_id"`
	IsSenderBuyer bool           `json:"is_sender_buyer"`
	Counterparty  string         `json:"counterparty"`
	Amount        float64        `json:"amount"`
	Quantities    map[string]int `json:"quantities_by_good_pbk"`
	Sender        string         `json:"sender"`
	Signature     []byte         `json:"signature"`
}

// NewTransactionID derives the deterministic transaction id for a dialogue.
// Both parties derive the same id: buyer_seller_dialogueID_starter.
func NewTransactionID(agentAddr, opponentAddr string, dialogueID int, starterAddr string, agentIsSeller bool) string {
	buyer, seller := agentAddr, opponentAddr
	if agentIsSeller {
		buyer, seller = opponentAddr, agentAddr
	}
	return fmt.Sprintf("%s_%s_%d_%s", buyer, seller, dialogueID, starterAddr)
}

// FromBundle builds the transaction implied by a proposal bundle.
func FromBundle(b Bundle, txID string, isSenderBuyer bool, counterparty, sender string) *Transaction {
	quantities := make(map[string]int, len(b.Quantities))
	for g, q := range b.Quantities {
		quantities[g] = q
	}
	return &Transaction{
		ID:            txID,
		IsSenderBuyer: isSenderBuyer,
		Counterparty:  counterparty,
		Amount:        b.Price,
		Quantities:    quantities,
		Sender:        sender,
	}
}

// Buyer returns the buyer's address.
func (t *Transaction) Buyer() string {
	if t.IsSenderBuyer {
		return t.Sender
	}
	return t.Counterparty
}

// Seller returns the seller's address.
func (t *Transaction) Seller() string {
	if t.IsSenderBuyer {
		return t.Counterparty
	}
	return t.Sender
}

// TotalUnits is the number of good instances traded (positive quantities).
func (t *Transaction) TotalUnits() int {
	total := 0
	for _, q := range t.Quantities {
		if q > 0 {
			total += q
		}
	}
	return total
}

// SigningBytes is the canonical byte form covered by the signature: id,
// roles, counterparty, amount and quantities in sorted good order.
func (t *Transaction) SigningBytes() []byte {
	goods := make([]string, 0, len(t.Quantities))
	for g := range t.Quantities {
		goods = append(goods, g)
	}
	sort.Strings(goods)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s|%s|%t|%.2f", t.ID, t.Sender, t.Counterparty, t.IsSenderBuyer, t.Amount)
	for _, g := range goods {
		fmt.Fprintf(&sb, "|%s=%d", g, t.Quantities[g])
	}
	return []byte(sb.String())
}

// Sign sets the sender from the signer and signs the transaction.
func (t *Transaction) Sign(s Signer) {
	t.Sender = s.Address()
	t.Signature = s.Sign(t.SigningBytes())
}

// Matches reports whether other is the counterparty's copy of the same trade:
// same id, amount and quantities, with sender/counterparty and the buyer role
// mirrored.
func (t *Transaction) Matches(other *Transaction) bool {
	if other == nil ||
		t.ID != other.ID ||
		t.Amount != other.Amount ||
		t.IsSenderBuyer == other.IsSenderBuyer ||
		t.Sender != other.Counterparty ||
		t.Counterparty != other.Sender ||
		len(t.Quantities) != len(other.Quantities) {
		return false
	}
	for g, q := range t.Quantities {
		oq, ok := other.Quantities[g]
		if !ok || q != oq {
			return false
		}
	}
	return true
}

// Equal reports whether two transactions are identical, signature included.
func (t *Transaction) Equal(other *Transaction) bool {
	if other == nil ||
		t.ID != other.ID ||
		t.IsSenderBuyer != other.IsSenderBuyer ||
		t.Counterparty != other.Counterparty ||
		t.Sender != other.Sender ||
		t.Amount != other.Amount ||
		string(t.Signature) != string(other.Signature) ||
		len(t.Quantities) != len(other.Quantities) {
		return false
	}
	for g, q := range t.Quantities {
		oq, ok := other.Quantities[g]
		if !ok || q != oq {
			return false
		}
	}
	return true
}
