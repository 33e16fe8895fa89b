package belief

import (
	"math/rand"

	"github.com/talgya/tradeworld/internal/game"
	"github.com/talgya/tradeworld/internal/protocol"
)

// WorldState is an agent's view of the rest of the game: an estimated state
// per opponent and a price model per good.
//
// Opponent estimates are naive copies of the agent's own initial state — no
// private information is inferred. That is a documented limitation of this
// estimator, not a contract of the interface; a richer estimator can replace
// the construction without touching the update/query surface.
type WorldState struct {
	opponentStates map[string]*game.AgentState
	priceModels    map[string]*GoodPriceModel
}

// NewWorldState builds a world state for the given opponents and goods,
// seeding every opponent estimate from the agent's own initial state.
func NewWorldState(opponentAddrs, goodAddrs []string, ownInitial *game.AgentState, rng *rand.Rand) *WorldState {
	w := &WorldState{
		opponentStates: make(map[string]*game.AgentState, len(opponentAddrs)),
		priceModels:    make(map[string]*GoodPriceModel, len(goodAddrs)),
	}
	for _, addr := range opponentAddrs {
		w.opponentStates[addr] = ownInitial.Copy()
	}
	for _, good := range goodAddrs {
		w.priceModels[good] = NewGoodPriceModel(rng)
	}
	return w
}

// OpponentState returns the estimated state of an opponent, or nil.
func (w *WorldState) OpponentState(addr string) *game.AgentState {
	return w.opponentStates[addr]
}

// UpdateOnDecline records a rejected transaction in the price models.
func (w *WorldState) UpdateOnDecline(tx *protocol.Transaction) {
	w.updateFromTransaction(tx, false)
}

// UpdateOnInitialAccept records an accepted transaction in the price models.
func (w *WorldState) UpdateOnInitialAccept(tx *protocol.Transaction) {
	w.updateFromTransaction(tx, true)
}

// updateFromTransaction derives the per-unit price of the bundle and feeds
// the outcome to every good traded in positive quantity. Transactions with no
// positive quantities carry no price information and are skipped.
func (w *WorldState) updateFromTransaction(tx *protocol.Transaction, accepted bool) {
	totalUnits := tx.TotalUnits()
	if totalUnits == 0 {
		return
	}
	price := game.Round1(tx.Amount / float64(totalUnits))
	for good, quantity := range tx.Quantities {
		if quantity <= 0 {
			continue
		}
		if m, ok := w.priceModels[good]; ok {
			m.Update(accepted, price)
		}
	}
}

// ExpectedPrice queries the good's price model for an expectation bounded by
// the marginal utility of the trade: a seller will not go below marginal
// utility plus its fee share, a buyer not above marginal utility minus it.
func (w *WorldState) ExpectedPrice(goodAddr string, marginalUtility float64, isSeller bool, feeShare float64) float64 {
	constraint := game.Round1(marginalUtility - feeShare)
	if isSeller {
		constraint = game.Round1(marginalUtility + feeShare)
	}
	return w.priceModels[goodAddr].Expectation(constraint, isSeller)
}
