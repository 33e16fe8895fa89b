package negotiation

import (
	"github.com/talgya/tradeworld/internal/belief"
	"github.com/talgya/tradeworld/internal/game"
	"github.com/talgya/tradeworld/internal/protocol"
)

// Strategy decides what an agent supplies, demands and proposes, and when a
// score delta is acceptable. One concrete type per trading policy; the
// behaviour state machine is policy-agnostic.
type Strategy interface {
	// SuppliedQuantities returns how much of each good the agent will sell.
	SuppliedQuantities(holdings []int) []int
	// DemandedQuantities returns how much of each good the agent wants to buy.
	DemandedQuantities(holdings []int) []int
	// SuppliedGoods returns the goods available for sale.
	SuppliedGoods(goodAddrs []string, holdings []int) []string
	// DemandedGoods returns the goods the agent is shopping for.
	DemandedGoods(goodAddrs []string, holdings []int) []string
	// Proposals generates candidate bundles for the given role. world is nil
	// for agents that do not model the world.
	Proposals(goodAddrs []string, holdings []int, utilityParams []float64, txFee float64, isSeller bool, world *belief.WorldState) []protocol.Bundle
	// IsAcceptable decides whether a score delta is worth trading for.
	IsAcceptable(delta float64) bool
}

// BaselineStrategy sells everything above one instance per good, demands one
// extra instance of every good, and prices single-good bundles at marginal
// utility adjusted for the fee share.
type BaselineStrategy struct {
	// WorldModeling switches pricing to the belief state's expected price.
	WorldModeling bool
}

// roundingAdjustment nudges proposal prices so a counterparty evaluating the
// exact marginal utility still sees a strictly positive margin.
const roundingAdjustment = 0.01

// SuppliedQuantities keeps one instance of each good and offers the rest.
func (s BaselineStrategy) SuppliedQuantities(holdings []int) []int {
	quantities := make([]int, len(holdings))
	for i, h := range holdings {
		quantities[i] = h - 1
	}
	return quantities
}

// DemandedQuantities asks for one instance of every good.
func (s BaselineStrategy) DemandedQuantities(holdings []int) []int {
	quantities := make([]int, len(holdings))
	for i := range quantities {
		quantities[i] = 1
	}
	return quantities
}

// SuppliedGoods returns goods held in surplus.
func (s BaselineStrategy) SuppliedGoods(goodAddrs []string, holdings []int) []string {
	var goods []string
	for i, g := range goodAddrs {
		if holdings[i] > 1 {
			goods = append(goods, g)
		}
	}
	return goods
}

// DemandedGoods returns every good: marginal utility is always positive.
func (s BaselineStrategy) DemandedGoods(goodAddrs []string, holdings []int) []string {
	return append([]string(nil), goodAddrs...)
}

// Proposals generates one single-good bundle per tradable good, priced at the
// marginal utility of the unit adjusted by the fee share (or at the belief
// state's expectation when world modeling).
func (s BaselineStrategy) Proposals(goodAddrs []string, holdings []int, utilityParams []float64, txFee float64, isSeller bool, world *belief.WorldState) []protocol.Bundle {
	quantities := s.DemandedQuantities(holdings)
	if isSeller {
		quantities = s.SuppliedQuantities(holdings)
	}
	share := game.Round2(txFee / 2.0)

	var proposals []protocol.Bundle
	for i, good := range goodAddrs {
		if isSeller && quantities[i] <= 0 {
			continue
		}
		delta := make([]int, len(holdings))
		delta[i] = 1
		if isSeller {
			delta[i] = -1
		}
		marginal := game.MarginalUtility(utilityParams, holdings, delta)
		if isSeller {
			// A seller's marginal utility of giving the unit up is negative;
			// the price floor is its magnitude.
			marginal = -marginal
		}

		var price float64
		if s.WorldModeling && world != nil {
			price = world.ExpectedPrice(good, game.Round2(marginal), isSeller, share)
		} else if isSeller {
			price = game.Round2(marginal) + share + roundingAdjustment
		} else {
			price = game.Round2(marginal) - share - roundingAdjustment
		}
		if price <= 0 {
			continue
		}

		bundle := protocol.Bundle{Quantities: map[string]int{good: 1}, Price: price}
		proposals = append(proposals, bundle)
	}
	return proposals
}

// IsAcceptable accepts any non-negative score delta.
func (s BaselineStrategy) IsAcceptable(delta float64) bool {
	return delta >= 0
}
