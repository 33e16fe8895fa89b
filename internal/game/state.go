package game

import (
	"fmt"

	"github.com/talgya/tradeworld/internal/protocol"
)

// AgentState is the mutable economic state of one agent: balance, holdings
// indexed by good position, and the agent's fixed utility parameters.
type AgentState struct {
	Balance       float64
	holdings      []int
	utilityParams []float64
	goodAddrs     []string // fixed good ordering, shared with the configuration
}

// NewAgentState creates an agent state from an initial allocation.
func NewAgentState(money float64, endowment []int, utilityParams []float64, goodAddrs []string) *AgentState {
	if len(endowment) != len(utilityParams) || len(endowment) != len(goodAddrs) {
		panic("agent state dimensions must match")
	}
	return &AgentState{
		Balance:       money,
		holdings:      append([]int(nil), endowment...),
		utilityParams: append([]float64(nil), utilityParams...),
		goodAddrs:     goodAddrs,
	}
}

// Holdings returns a copy of the current holdings vector.
func (s *AgentState) Holdings() []int {
	return append([]int(nil), s.holdings...)
}

// UtilityParams returns a copy of the utility parameter vector.
func (s *AgentState) UtilityParams() []float64 {
	return append([]float64(nil), s.utilityParams...)
}

// Holding returns the current quantity of one good.
func (s *AgentState) Holding(goodAddr string) int {
	for i, g := range s.goodAddrs {
		if g == goodAddr {
			return s.holdings[i]
		}
	}
	return 0
}

// Score is the agent's current score: log utility over holdings plus balance.
func (s *AgentState) Score() float64 {
	return LogarithmicUtility(s.utilityParams, s.holdings) + s.Balance
}

// ScoreDiff simulates the transaction against this state and returns the
// score delta it would produce, fee share included.
func (s *AgentState) ScoreDiff(tx *protocol.Transaction, txFee float64) float64 {
	next := s.Copy()
	next.Update(tx, txFee)
	return next.Score() - s.Score()
}

// ConsistentTransaction reports whether this state can honor the transaction:
// enough money if this agent is the buyer, enough holdings if the seller.
// The state is assumed to be the transaction sender's.
func (s *AgentState) ConsistentTransaction(tx *protocol.Transaction, txFee float64) bool {
	share := Round2(txFee / 2.0)
	if tx.IsSenderBuyer {
		return s.Balance >= tx.Amount+share
	}
	for i, g := range s.goodAddrs {
		if s.holdings[i] < tx.Quantities[g] {
			return false
		}
	}
	return true
}

// Apply returns a copy of the state with the transactions applied in order.
func (s *AgentState) Apply(txs []*protocol.Transaction, txFee float64) *AgentState {
	next := s.Copy()
	for _, tx := range txs {
		next.Update(tx, txFee)
	}
	return next
}

// Update mutates the state as the transaction's sender: buyers pay amount
// plus fee share and receive the goods, sellers are credited amount minus
// fee share and give the goods up.
func (s *AgentState) Update(tx *protocol.Transaction, txFee float64) {
	share := Round2(txFee / 2.0)
	if tx.IsSenderBuyer {
		s.Balance -= tx.Amount + share
	} else {
		s.Balance += tx.Amount - share
	}
	for i, g := range s.goodAddrs {
		q := tx.Quantities[g]
		if tx.IsSenderBuyer {
			s.holdings[i] += q
		} else {
			s.holdings[i] -= q
		}
	}
}

// Copy returns an independent copy of the state.
func (s *AgentState) Copy() *AgentState {
	return NewAgentState(s.Balance, s.holdings, s.utilityParams, s.goodAddrs)
}

// Equal reports whether two states hold the same balance, holdings and
// utility parameters.
func (s *AgentState) Equal(other *AgentState) bool {
	if other == nil || s.Balance != other.Balance ||
		len(s.holdings) != len(other.holdings) {
		return false
	}
	for i := range s.holdings {
		if s.holdings[i] != other.holdings[i] || s.utilityParams[i] != other.utilityParams[i] {
			return false
		}
	}
	return true
}

func (s *AgentState) String() string {
	return fmt.Sprintf("AgentState{balance: %v, holdings: %v}", s.Balance, s.holdings)
}

// GoodState is the mutable state of one good: the last observed market price.
type GoodState struct {
	Price float64
}

// NewGoodState creates a good state with the given starting price.
func NewGoodState(price float64) (*GoodState, error) {
	if price < 0 {
		return nil, configErrorf("price must be non-negative, got %v", price)
	}
	return &GoodState{Price: price}, nil
}
