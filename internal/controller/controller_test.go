package controller

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/talgya/tradeworld/internal/crypto"
	"github.com/talgya/tradeworld/internal/game"
	"github.com/talgya/tradeworld/internal/protocol"
)

type fixture struct {
	ctrl   *Controller
	buyer  *crypto.Identity
	seller *crypto.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrlID := crypto.NewIdentityFromSeed(bytes.Repeat([]byte{9}, 32))
	buyer := crypto.NewIdentityFromSeed(bytes.Repeat([]byte{1}, 32))
	seller := crypto.NewIdentityFromSeed(bytes.Repeat([]byte{2}, 32))

	cfg, err := game.NewGameConfiguration(2, 2, 1.0,
		[]string{buyer.Address(), seller.Address()},
		[]string{"g0", "g1"},
		map[string]string{buyer.Address(): "agent_0", seller.Address(): "agent_1"},
		map[string]string{"g0": "good_0", "g1": "good_1"},
	)
	if err != nil {
		t.Fatalf("NewGameConfiguration: %v", err)
	}
	init, err := game.NewGameInitialization(
		[]float64{20, 20},
		[][]int{{1, 1}, {3, 1}},
		[][]float64{{100, 10}, {10, 100}},
		[]float64{1, 1},
		[][]float64{{1, 1}, {1, 1}},
		[]float64{20, 20},
	)
	if err != nil {
		t.Fatalf("NewGameInitialization: %v", err)
	}
	g, err := game.New(cfg, init)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{ctrl: New(ctrlID, g, logger), buyer: buyer, seller: seller}
}

// tradePair returns the two signed mirrored copies of one trade.
func (f *fixture) tradePair(amount float64) (buyerTx, sellerTx *protocol.Transaction) {
	buyerTx = &protocol.Transaction{
		ID: "b_s_1_b", IsSenderBuyer: true, Counterparty: f.seller.Address(),
		Amount: amount, Quantities: map[string]int{"g0": 1},
	}
	buyerTx.Sign(f.buyer)
	sellerTx = &protocol.Transaction{
		ID: "b_s_1_b", IsSenderBuyer: false, Counterparty: f.buyer.Address(),
		Amount: amount, Quantities: map[string]int{"g0": 1},
	}
	sellerTx.Sign(f.seller)
	return buyerTx, sellerTx
}

func TestTwoCopySettlement(t *testing.T) {
	f := newFixture(t)
	f.ctrl.StartGame()
	buyerTx, sellerTx := f.tradePair(10)

	if out := f.ctrl.HandleTransaction(f.buyer.Address(), buyerTx); out != nil {
		t.Fatalf("first copy should be held, got %+v", out)
	}
	if f.ctrl.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", f.ctrl.PendingCount())
	}

	out := f.ctrl.HandleTransaction(f.seller.Address(), sellerTx)
	if len(out) != 2 {
		t.Fatalf("second copy produced %d messages, want 2 confirmations", len(out))
	}
	for _, msg := range out {
		if msg.Performative != protocol.PerformativeConfirmation {
			t.Errorf("message = %+v, want confirmation", msg)
		}
	}
	if f.ctrl.PendingCount() != 0 {
		t.Error("pending copy must be consumed")
	}
	if got := len(f.ctrl.Game().Transactions()); got != 1 {
		t.Fatalf("transaction log length = %d, want 1", got)
	}

	// 20 - 10 - 0.5 for the buyer, 20 + 10 - 0.5 for the seller.
	if b := f.ctrl.Game().AgentState(f.buyer.Address()).Balance; b != 9.5 {
		t.Errorf("buyer balance = %v, want 9.5", b)
	}
	if b := f.ctrl.Game().AgentState(f.seller.Address()).Balance; b != 29.5 {
		t.Errorf("seller balance = %v, want 29.5", b)
	}
}

func TestMismatchedCopiesRejected(t *testing.T) {
	f := newFixture(t)
	f.ctrl.StartGame()
	buyerTx, _ := f.tradePair(10)
	_, sellerTx := f.tradePair(11) // disagrees on the amount

	f.ctrl.HandleTransaction(f.buyer.Address(), buyerTx)
	out := f.ctrl.HandleTransaction(f.seller.Address(), sellerTx)
	if len(out) != 2 {
		t.Fatalf("mismatch produced %d messages, want 2 errors", len(out))
	}
	for _, msg := range out {
		if msg.Performative != protocol.PerformativeError {
			t.Errorf("message = %+v, want error", msg)
		}
		if msg.Transaction == nil {
			t.Error("rejection must carry the refused transaction")
		}
	}
	if got := len(f.ctrl.Game().Transactions()); got != 0 {
		t.Errorf("nothing must settle on mismatch, log = %d", got)
	}
}

func TestInvalidSignatureRejected(t *testing.T) {
	f := newFixture(t)
	f.ctrl.StartGame()
	buyerTx, _ := f.tradePair(10)
	buyerTx.Amount = 12 // tamper after signing

	out := f.ctrl.HandleTransaction(f.buyer.Address(), buyerTx)
	if len(out) != 1 || out[0].Performative != protocol.PerformativeError {
		t.Fatalf("tampered copy replies = %+v, want one error", out)
	}
	if f.ctrl.PendingCount() != 0 {
		t.Error("tampered copy must not be held")
	}
}

func TestSenderMismatchRejected(t *testing.T) {
	f := newFixture(t)
	f.ctrl.StartGame()
	buyerTx, _ := f.tradePair(10)

	out := f.ctrl.HandleTransaction(f.seller.Address(), buyerTx)
	if len(out) != 1 || out[0].Performative != protocol.PerformativeError {
		t.Fatalf("spoofed sender replies = %+v, want one error", out)
	}
}

func TestUnaffordableTradeRejected(t *testing.T) {
	f := newFixture(t)
	f.ctrl.StartGame()
	buyerTx, sellerTx := f.tradePair(100) // buyer only has 20

	f.ctrl.HandleTransaction(f.buyer.Address(), buyerTx)
	out := f.ctrl.HandleTransaction(f.seller.Address(), sellerTx)
	if len(out) != 2 {
		t.Fatalf("invalid trade produced %d messages, want 2 errors", len(out))
	}
	for _, msg := range out {
		if msg.Performative != protocol.PerformativeError {
			t.Errorf("message = %+v, want error", msg)
		}
	}
}

func TestPhaseGating(t *testing.T) {
	f := newFixture(t)
	buyerTx, _ := f.tradePair(10)

	out := f.ctrl.HandleTransaction(f.buyer.Address(), buyerTx)
	if len(out) != 1 || out[0].Performative != protocol.PerformativeError {
		t.Fatalf("pre-game submission replies = %+v, want one error", out)
	}

	f.ctrl.StartGame()
	if f.ctrl.Phase() != PhaseRunning {
		t.Errorf("phase = %v, want %v", f.ctrl.Phase(), PhaseRunning)
	}
	f.ctrl.EndGame()
	if f.ctrl.Phase() != PhasePostGame {
		t.Errorf("phase = %v, want %v", f.ctrl.Phase(), PhasePostGame)
	}
}

func TestScoreReport(t *testing.T) {
	f := newFixture(t)
	f.ctrl.StartGame()
	buyerTx, sellerTx := f.tradePair(10)
	f.ctrl.HandleTransaction(f.buyer.Address(), buyerTx)
	f.ctrl.HandleTransaction(f.seller.Address(), sellerTx)
	f.ctrl.EndGame()

	report := f.ctrl.ScoreReport()
	if !strings.Contains(report, "agent_0") || !strings.Contains(report, "agent_1") {
		t.Errorf("report must name both agents:\n%s", report)
	}
	if !strings.Contains(report, "1 transactions") {
		t.Errorf("report must count transactions:\n%s", report)
	}
}
