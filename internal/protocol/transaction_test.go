package protocol

import (
	"testing"

	"github.com/talgya/tradeworld/internal/crypto"
)

func TestNewTransactionID(t *testing.T) {
	cases := []struct {
		name          string
		agent, opp    string
		dialogueID    int
		starter       string
		agentIsSeller bool
		want          string
	}{
		{"agent buys", "a", "b", 3, "a", false, "a_b_3_a"},
		{"agent sells", "a", "b", 3, "a", true, "b_a_3_a"},
		{"opponent started", "a", "b", 7, "b", false, "a_b_7_b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewTransactionID(tc.agent, tc.opp, tc.dialogueID, tc.starter, tc.agentIsSeller)
			if got != tc.want {
				t.Errorf("NewTransactionID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTransactionIDSymmetry(t *testing.T) {
	// Both parties of a dialogue must derive the same id.
	buyerSide := NewTransactionID("buyer", "seller", 5, "buyer", false)
	sellerSide := NewTransactionID("seller", "buyer", 5, "buyer", true)
	if buyerSide != sellerSide {
		t.Errorf("ids differ: %q vs %q", buyerSide, sellerSide)
	}
}

func TestTransactionMatches(t *testing.T) {
	mine := &Transaction{
		ID: "x_y_1_x", IsSenderBuyer: true, Sender: "x", Counterparty: "y",
		Amount: 10, Quantities: map[string]int{"g": 1},
	}
	theirs := &Transaction{
		ID: "x_y_1_x", IsSenderBuyer: false, Sender: "y", Counterparty: "x",
		Amount: 10, Quantities: map[string]int{"g": 1},
	}
	if !mine.Matches(theirs) || !theirs.Matches(mine) {
		t.Fatal("mirrored copies must match")
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
	}{
		{"different amount", func(tx *Transaction) { tx.Amount = 11 }},
		{"different id", func(tx *Transaction) { tx.ID = "other" }},
		{"same role", func(tx *Transaction) { tx.IsSenderBuyer = true }},
		{"different quantities", func(tx *Transaction) { tx.Quantities["g"] = 2 }},
		{"extra good", func(tx *Transaction) { tx.Quantities["h"] = 1 }},
		{"swapped parties", func(tx *Transaction) { tx.Sender, tx.Counterparty = "x", "y" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			other := &Transaction{
				ID: theirs.ID, IsSenderBuyer: theirs.IsSenderBuyer,
				Sender: theirs.Sender, Counterparty: theirs.Counterparty,
				Amount: theirs.Amount, Quantities: map[string]int{"g": 1},
			}
			tc.mutate(other)
			if mine.Matches(other) {
				t.Error("mutated copy must not match")
			}
		})
	}
}

func TestTransactionSignVerify(t *testing.T) {
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	tx := &Transaction{
		ID: "a_b_1_a", IsSenderBuyer: true, Counterparty: "b",
		Amount: 12.5, Quantities: map[string]int{"g0": 1, "g1": 0},
	}
	tx.Sign(id)

	if tx.Sender != id.Address() {
		t.Errorf("Sign must set sender, got %q", tx.Sender)
	}
	if !crypto.Verify(tx.Sender, tx.SigningBytes(), tx.Signature) {
		t.Error("signature must verify")
	}

	tx.Amount = 13
	if crypto.Verify(tx.Sender, tx.SigningBytes(), tx.Signature) {
		t.Error("signature must not cover a tampered amount")
	}
}

func TestQueryMatches(t *testing.T) {
	query := &Query{WantsSupply: true, GoodAddrs: []string{"g0", "g1"}}

	cases := []struct {
		name string
		desc *Description
		want bool
	}{
		{"supplies queried good", &Description{IsSupply: true, Quantities: map[string]int{"g0": 2}}, true},
		{"supplies other good", &Description{IsSupply: true, Quantities: map[string]int{"g2": 2}}, false},
		{"zero quantity", &Description{IsSupply: true, Quantities: map[string]int{"g0": 0}}, false},
		{"wrong side", &Description{IsSupply: false, Quantities: map[string]int{"g0": 2}}, false},
		{"nil description", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := query.Matches(tc.desc); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMessageEncodeDecode(t *testing.T) {
	msg := &Message{
		ID:           2,
		DialogueID:   1,
		Destination:  "dest",
		Target:       1,
		Performative: PerformativePropose,
		Proposals:    []Bundle{{Quantities: map[string]int{"g0": 1}, Price: 9.5}},
	}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Performative != PerformativePropose || decoded.ID != 2 || decoded.Target != 1 {
		t.Errorf("decoded header mismatch: %+v", decoded)
	}
	if len(decoded.Proposals) != 1 || decoded.Proposals[0].Price != 9.5 || decoded.Proposals[0].Quantities["g0"] != 1 {
		t.Errorf("decoded proposals mismatch: %+v", decoded.Proposals)
	}
}
