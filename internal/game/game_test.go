package game

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/talgya/tradeworld/internal/protocol"
)

const (
	agentA = "addr_agent_0"
	agentB = "addr_agent_1"
	agentC = "addr_agent_2"
	good0  = "addr_good_0"
	good1  = "addr_good_1"
	good2  = "addr_good_2"
)

func testConfiguration(t *testing.T, txFee float64) *GameConfiguration {
	t.Helper()
	cfg, err := NewGameConfiguration(3, 3, txFee,
		[]string{agentA, agentB, agentC},
		[]string{good0, good1, good2},
		map[string]string{agentA: "agent_0", agentB: "agent_1", agentC: "agent_2"},
		map[string]string{good0: "good_0", good1: "good_1", good2: "good_2"},
	)
	if err != nil {
		t.Fatalf("NewGameConfiguration: %v", err)
	}
	return cfg
}

func testInitialization(t *testing.T) *GameInitialization {
	t.Helper()
	init, err := NewGameInitialization(
		[]float64{20, 20, 20},
		[][]int{{1, 1, 1}, {2, 1, 1}, {1, 1, 2}},
		[][]float64{{20, 40, 40}, {10, 50, 40}, {40, 30, 30}},
		[]float64{1, 1, 1},
		[][]float64{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}},
		[]float64{20, 20, 20},
	)
	if err != nil {
		t.Fatalf("NewGameInitialization: %v", err)
	}
	return init
}

func testGame(t *testing.T, txFee float64) *Game {
	t.Helper()
	g, err := New(testConfiguration(t, txFee), testInitialization(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLogarithmicUtility(t *testing.T) {
	cases := []struct {
		name     string
		params   []float64
		holdings []int
		want     float64
	}{
		{"all ones", []float64{20, 40, 40}, []int{1, 1, 1}, 100 * math.Ln2},
		{"zero holdings", []float64{20, 40, 40}, []int{0, 0, 0}, 0},
		{"mixed", []float64{10, 50, 40}, []int{2, 1, 1}, 10*math.Log(3) + 90*math.Ln2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := LogarithmicUtility(tc.params, tc.holdings)
			if !almostEqual(got, tc.want) {
				t.Errorf("LogarithmicUtility(%v, %v) = %v, want %v", tc.params, tc.holdings, got, tc.want)
			}
		})
	}
}

func TestAgentStateScore(t *testing.T) {
	s := NewAgentState(20, []int{1, 1, 1}, []float64{20, 40, 40}, []string{good0, good1, good2})
	want := 89.31471805599453
	if !almostEqual(s.Score(), want) {
		t.Errorf("Score() = %v, want %v", s.Score(), want)
	}
}

func TestSettleWorkedExample(t *testing.T) {
	g := testGame(t, 1.0)

	// agent_1 buys one unit of good_0 from agent_0 for 15.
	tx := &protocol.Transaction{
		ID:            "some_tx",
		IsSenderBuyer: true,
		Sender:        agentB,
		Counterparty:  agentA,
		Amount:        15,
		Quantities:    map[string]int{good0: 1, good1: 0, good2: 0},
	}
	if !g.IsTransactionValid(tx) {
		t.Fatal("transaction should be valid")
	}
	if err := g.Settle(tx); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	seller := g.AgentState(agentA)
	if !almostEqual(seller.Balance, 34.5) {
		t.Errorf("seller balance = %v, want 34.5", seller.Balance)
	}
	if h := seller.Holdings(); h[0] != 0 || h[1] != 1 || h[2] != 1 {
		t.Errorf("seller holdings = %v, want [0 1 1]", h)
	}

	buyer := g.AgentState(agentB)
	if !almostEqual(buyer.Balance, 4.5) {
		t.Errorf("buyer balance = %v, want 4.5", buyer.Balance)
	}
	if h := buyer.Holdings(); h[0] != 3 || h[1] != 1 || h[2] != 1 {
		t.Errorf("buyer holdings = %v, want [3 1 1]", h)
	}

	if p := g.GoodState(good0).Price; !almostEqual(p, 15) {
		t.Errorf("good_0 price = %v, want 15", p)
	}
}

func TestSettleRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		tx   *protocol.Transaction
	}{
		{
			"buyer cannot afford",
			&protocol.Transaction{
				ID: "t1", IsSenderBuyer: true, Sender: agentB, Counterparty: agentA,
				Amount: 100, Quantities: map[string]int{good0: 1},
			},
		},
		{
			"seller lacks goods",
			&protocol.Transaction{
				ID: "t2", IsSenderBuyer: true, Sender: agentB, Counterparty: agentA,
				Amount: 5, Quantities: map[string]int{good0: 2},
			},
		},
		{
			"unknown party",
			&protocol.Transaction{
				ID: "t3", IsSenderBuyer: true, Sender: "addr_stranger", Counterparty: agentA,
				Amount: 5, Quantities: map[string]int{good0: 1},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := testGame(t, 1.0)
			before := g.AgentState(agentA).Copy()
			err := g.Settle(tc.tx)
			if err == nil {
				t.Fatal("Settle should fail")
			}
			var invalidErr *InvalidTransactionError
			if !errors.As(err, &invalidErr) {
				t.Fatalf("error = %v, want InvalidTransactionError", err)
			}
			if !g.AgentState(agentA).Equal(before) {
				t.Error("failed settlement must not change state")
			}
			if len(g.Transactions()) != 0 {
				t.Error("failed settlement must not be logged")
			}
		})
	}
}

func TestSettleConservation(t *testing.T) {
	g := testGame(t, 1.0)

	txs := []*protocol.Transaction{
		{ID: "c1", IsSenderBuyer: true, Sender: agentB, Counterparty: agentA,
			Amount: 10, Quantities: map[string]int{good0: 1}},
		{ID: "c2", IsSenderBuyer: false, Sender: agentC, Counterparty: agentB,
			Amount: 8, Quantities: map[string]int{good2: 1}},
	}
	for _, tx := range txs {
		if err := g.Settle(tx); err != nil {
			t.Fatalf("Settle(%s): %v", tx.ID, err)
		}
	}

	totalMoney := 0.0
	for _, b := range g.Balances() {
		totalMoney += b
	}
	wantMoney := 60.0 - float64(len(txs))*1.0
	if !almostEqual(totalMoney, wantMoney) {
		t.Errorf("total money = %v, want %v", totalMoney, wantMoney)
	}

	totals := make([]int, 3)
	for _, row := range g.HoldingsMatrix() {
		for j, q := range row {
			totals[j] += q
		}
	}
	if totals[0] != 4 || totals[1] != 3 || totals[2] != 4 {
		t.Errorf("good totals = %v, want [4 3 4]", totals)
	}
}

func TestScoreDiffMatchesSettlement(t *testing.T) {
	g := testGame(t, 1.0)
	tx := &protocol.Transaction{
		ID: "d1", IsSenderBuyer: true, Sender: agentB, Counterparty: agentA,
		Amount: 15, Quantities: map[string]int{good0: 1},
	}

	buyerBefore := g.AgentState(agentB).Copy()
	diff := buyerBefore.ScoreDiff(tx, 1.0)

	if err := g.Settle(tx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	got := g.Score(agentB) - buyerBefore.Score()
	if !almostEqual(diff, got) {
		t.Errorf("ScoreDiff = %v, settlement delta = %v", diff, got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := testGame(t, 1.0)
	tx := &protocol.Transaction{
		ID: "s1", IsSenderBuyer: true, Sender: agentB, Counterparty: agentA,
		Amount: 15, Quantities: map[string]int{good0: 1},
	}
	if err := g.Settle(tx); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	restored, err := FromSnapshot(&snap)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	if !restored.Equal(g) {
		t.Error("restored game differs from original")
	}
	if !restored.AgentState(agentA).Equal(g.AgentState(agentA)) {
		t.Error("restored seller state differs")
	}
	if !restored.AgentState(agentB).Equal(g.AgentState(agentB)) {
		t.Error("restored buyer state differs")
	}
}

func TestConfigurationValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*GameConfiguration)
	}{
		{"negative fee", func(c *GameConfiguration) { c.TxFee = -1 }},
		{"one agent", func(c *GameConfiguration) { c.NbAgents = 1; c.AgentAddrs = c.AgentAddrs[:1] }},
		{"one good", func(c *GameConfiguration) { c.NbGoods = 1; c.GoodAddrs = c.GoodAddrs[:1] }},
		{"duplicate names", func(c *GameConfiguration) { c.AgentNames[agentB] = "agent_0" }},
		{"missing name", func(c *GameConfiguration) { delete(c.AgentNames, agentC) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfiguration(t, 1.0)
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestInitializationValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*GameInitialization)
	}{
		{"negative money", func(i *GameInitialization) { i.InitialMoneyAmounts[0] = -1 }},
		{"zero endowment", func(i *GameInitialization) { i.Endowments[0][0] = 0 }},
		{"zero utility param", func(i *GameInitialization) { i.UtilityParams[1][2] = 0 }},
		{"row length mismatch", func(i *GameInitialization) { i.Endowments[2] = []int{1, 1} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			init := testInitialization(t)
			tc.mutate(init)
			if err := init.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestConsistentTransaction(t *testing.T) {
	seller := NewAgentState(20, []int{1, 1, 1}, []float64{20, 40, 40}, []string{good0, good1, good2})
	buyTwo := &protocol.Transaction{
		ID: "t", IsSenderBuyer: false, Sender: agentA, Counterparty: agentB,
		Amount: 5, Quantities: map[string]int{good0: 2},
	}
	if seller.ConsistentTransaction(buyTwo, 1.0) {
		t.Error("seller with one unit cannot sell two")
	}

	buyer := NewAgentState(5, []int{1, 1, 1}, []float64{20, 40, 40}, []string{good0, good1, good2})
	expensive := &protocol.Transaction{
		ID: "t", IsSenderBuyer: true, Sender: agentB, Counterparty: agentA,
		Amount: 5, Quantities: map[string]int{good0: 1},
	}
	// 5 + 0.5 fee share > 5 balance.
	if buyer.ConsistentTransaction(expensive, 1.0) {
		t.Error("buyer cannot cover amount plus fee share")
	}
	if !buyer.ConsistentTransaction(expensive, 0) {
		t.Error("without fee the buyer can exactly afford it")
	}
}

func TestEqualDistinguishesInitializations(t *testing.T) {
	a := testGame(t, 1.0)
	if !a.Equal(testGame(t, 1.0)) {
		t.Fatal("identically built games must be equal")
	}

	// Same configuration, no transactions, different endowments.
	init := testInitialization(t)
	init.Endowments[0][0]++
	b, err := New(testConfiguration(t, 1.0), init)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Equal(b) {
		t.Error("games with different endowments must not be equal")
	}
}

func TestNewGoodState(t *testing.T) {
	gs, err := NewGoodState(DefaultPrice)
	if err != nil {
		t.Fatalf("NewGoodState: %v", err)
	}
	if gs.Price != DefaultPrice {
		t.Errorf("Price = %v, want %v", gs.Price, DefaultPrice)
	}
	if _, err := NewGoodState(-1); err == nil {
		t.Error("negative starting price must be rejected")
	}
}
