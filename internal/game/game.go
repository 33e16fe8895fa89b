package game

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talgya/tradeworld/internal/protocol"
)

// InvalidTransactionError reports a settlement attempt that failed
// validation. The transaction is never partially applied.
type InvalidTransactionError struct {
	TxID string
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("transaction %s is not valid against the current game state", e.TxID)
}

// Game is the ledger: it owns the configuration, the initialization, the live
// agent and good states, and the append-only log of settled transactions.
// Replaying the log from the initialization always reproduces the live state.
type Game struct {
	configuration  *GameConfiguration
	initialization *GameInitialization
	transactions   []*protocol.Transaction

	agentStates        map[string]*AgentState
	initialAgentStates map[string]*AgentState
	goodStates         map[string]*GoodState
}

// New creates a game from a validated configuration and initialization.
func New(configuration *GameConfiguration, initialization *GameInitialization) (*Game, error) {
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	if err := initialization.Validate(); err != nil {
		return nil, err
	}
	if len(initialization.Endowments) != configuration.NbAgents {
		return nil, configErrorf("initialization has %d agents, configuration %d", len(initialization.Endowments), configuration.NbAgents)
	}
	for _, row := range initialization.Endowments {
		if len(row) != configuration.NbGoods {
			return nil, configErrorf("endowment row has %d goods, configuration %d", len(row), configuration.NbGoods)
		}
	}

	g := &Game{
		configuration:      configuration,
		initialization:     initialization,
		agentStates:        make(map[string]*AgentState, configuration.NbAgents),
		initialAgentStates: make(map[string]*AgentState, configuration.NbAgents),
		goodStates:         make(map[string]*GoodState, configuration.NbGoods),
	}
	for i, addr := range configuration.AgentAddrs {
		g.agentStates[addr] = NewAgentState(initialization.InitialMoneyAmounts[i], initialization.Endowments[i], initialization.UtilityParams[i], configuration.GoodAddrs)
		g.initialAgentStates[addr] = NewAgentState(initialization.InitialMoneyAmounts[i], initialization.Endowments[i], initialization.UtilityParams[i], configuration.GoodAddrs)
	}
	for _, addr := range configuration.GoodAddrs {
		gs, err := NewGoodState(DefaultPrice)
		if err != nil {
			return nil, err
		}
		g.goodStates[addr] = gs
	}
	return g, nil
}

// Configuration returns the game configuration.
func (g *Game) Configuration() *GameConfiguration { return g.configuration }

// Initialization returns the game initialization.
func (g *Game) Initialization() *GameInitialization { return g.initialization }

// Transactions returns the settled transaction log in settlement order.
func (g *Game) Transactions() []*protocol.Transaction { return g.transactions }

// AgentState returns the live state for an agent address, or nil.
func (g *Game) AgentState(addr string) *AgentState { return g.agentStates[addr] }

// InitialAgentState returns the frozen pre-game state for an agent address.
func (g *Game) InitialAgentState(addr string) *AgentState { return g.initialAgentStates[addr] }

// GoodState returns the live state for a good address, or nil.
func (g *Game) GoodState(addr string) *GoodState { return g.goodStates[addr] }

// IsTransactionValid reports whether the transaction can settle: the buyer
// can cover amount plus fee share, and the seller holds every positively
// traded good in sufficient quantity. Pure predicate; no mutation.
func (g *Game) IsTransactionValid(tx *protocol.Transaction) bool {
	buyer, ok := g.agentStates[tx.Buyer()]
	if !ok {
		return false
	}
	seller, ok := g.agentStates[tx.Seller()]
	if !ok {
		return false
	}
	if buyer.Balance < tx.Amount+g.configuration.FeeShare() {
		return false
	}
	for good, quantity := range tx.Quantities {
		if quantity > 0 && seller.Holding(good) < quantity {
			return false
		}
	}
	return true
}

// Settle applies a valid transaction atomically: it appends it to the log,
// moves the goods, updates recorded prices, and transfers money with the fee
// split between the two sides. Returns InvalidTransactionError with no
// observable effect if validation fails.
func (g *Game) Settle(tx *protocol.Transaction) error {
	if !g.IsTransactionValid(tx) {
		return &InvalidTransactionError{TxID: tx.ID}
	}
	g.transactions = append(g.transactions, tx)

	buyer := g.agentStates[tx.Buyer()]
	seller := g.agentStates[tx.Seller()]
	totalUnits := tx.TotalUnits()

	for i, good := range g.configuration.GoodAddrs {
		quantity := tx.Quantities[good]
		if quantity == 0 {
			continue
		}
		buyer.holdings[i] += quantity
		seller.holdings[i] -= quantity
		if quantity > 0 {
			// Price attribution: the amount split over the bundle.
			g.goodStates[good].Price = tx.Amount / float64(totalUnits)
		}
	}

	share := g.configuration.FeeShare()
	buyer.Balance -= tx.Amount + share
	seller.Balance += tx.Amount - share
	return nil
}

// Score returns the current score of one agent.
func (g *Game) Score(addr string) float64 {
	return g.agentStates[addr].Score()
}

// Scores returns the current score of every agent.
func (g *Game) Scores() map[string]float64 {
	scores := make(map[string]float64, len(g.agentStates))
	for addr, state := range g.agentStates {
		scores[addr] = state.Score()
	}
	return scores
}

// InitialScores returns the pre-game score of every agent.
func (g *Game) InitialScores() map[string]float64 {
	scores := make(map[string]float64, len(g.initialAgentStates))
	for addr, state := range g.initialAgentStates {
		scores[addr] = state.Score()
	}
	return scores
}

// Balances returns the current money balance of every agent.
func (g *Game) Balances() map[string]float64 {
	balances := make(map[string]float64, len(g.agentStates))
	for addr, state := range g.agentStates {
		balances[addr] = state.Balance
	}
	return balances
}

// Prices returns the recorded prices in configured good order.
func (g *Game) Prices() []float64 {
	prices := make([]float64, 0, len(g.configuration.GoodAddrs))
	for _, good := range g.configuration.GoodAddrs {
		prices = append(prices, g.goodStates[good].Price)
	}
	return prices
}

// HoldingsMatrix returns current holdings, agents in configured order.
func (g *Game) HoldingsMatrix() [][]int {
	matrix := make([][]int, 0, len(g.configuration.AgentAddrs))
	for _, addr := range g.configuration.AgentAddrs {
		matrix = append(matrix, g.agentStates[addr].Holdings())
	}
	return matrix
}

// HoldingsSummary renders one line per agent with its holdings.
func (g *Game) HoldingsSummary() string {
	var sb strings.Builder
	for _, addr := range g.configuration.AgentAddrs {
		fmt.Fprintf(&sb, "%s %v\n", g.configuration.AgentNames[addr], g.agentStates[addr].holdings)
	}
	return sb.String()
}

// EquilibriumSummary renders the competitive equilibrium benchmark.
func (g *Game) EquilibriumSummary() string {
	var sb strings.Builder
	sb.WriteString("Equilibrium prices:\n")
	for i, good := range g.configuration.GoodAddrs {
		fmt.Fprintf(&sb, "%s %v\n", g.configuration.GoodNames[good], g.initialization.EqPrices[i])
	}
	sb.WriteString("Equilibrium good allocation:\n")
	for i, addr := range g.configuration.AgentAddrs {
		fmt.Fprintf(&sb, "%s %v\n", g.configuration.AgentNames[addr], g.initialization.EqGoodHoldings[i])
	}
	sb.WriteString("Equilibrium money allocation:\n")
	for i, addr := range g.configuration.AgentAddrs {
		fmt.Fprintf(&sb, "%s %v\n", g.configuration.AgentNames[addr], g.initialization.EqMoneyHoldings[i])
	}
	return sb.String()
}

// Snapshot is the persistent form of a game: configuration, initialization
// and the ordered transaction log. Live state is reconstructed by replay.
type Snapshot struct {
	Configuration  *GameConfiguration      `json:"configuration"`
	Initialization *GameInitialization     `json:"initialization"`
	Transactions   []*protocol.Transaction `json:"transactions"`
}

// Snapshot captures the game for persistence.
func (g *Game) Snapshot() *Snapshot {
	return &Snapshot{
		Configuration:  g.configuration,
		Initialization: g.initialization,
		Transactions:   g.transactions,
	}
}

// FromSnapshot reconstructs a game by replaying the transaction log in its
// original order through Settle.
func FromSnapshot(s *Snapshot) (*Game, error) {
	g, err := New(s.Configuration, s.Initialization)
	if err != nil {
		return nil, err
	}
	for _, tx := range s.Transactions {
		if err := g.Settle(tx); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
	}
	return g, nil
}

// MarshalJSON serializes the game as its snapshot.
func (g *Game) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Snapshot())
}

// Equal reports whether two games share configuration, initialization and
// transaction log (and therefore, by replay, identical live state).
func (g *Game) Equal(other *Game) bool {
	if other == nil || len(g.transactions) != len(other.transactions) {
		return false
	}
	cj, _ := json.Marshal(g.configuration)
	oj, _ := json.Marshal(other.configuration)
	if string(cj) != string(oj) {
		return false
	}
	ij, _ := json.Marshal(g.initialization)
	oij, _ := json.Marshal(other.initialization)
	if string(ij) != string(oij) {
		return false
	}
	for i := range g.transactions {
		if !g.transactions[i].Equal(other.transactions[i]) {
			return false
		}
	}
	return true
}
