// Package genesis generates game initializations: money and good endowments,
// scaled utility parameters, and the closed-form competitive equilibrium
// benchmark. Generation is deterministic for a given seed so games can be
// reproduced.
package genesis

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/talgya/tradeworld/internal/game"
)

// Params control game generation.
type Params struct {
	NbAgents          int     `json:"nb_agents"`
	NbGoods           int     `json:"nb_goods"`
	TxFee             float64 `json:"tx_fee"`
	MoneyEndowment    int     `json:"money_endowment"`
	BaseGoodEndowment int     `json:"base_good_endowment"`
	LowerBoundFactor  int     `json:"lower_bound_factor"`
	UpperBoundFactor  int     `json:"upper_bound_factor"`
	Seed              int64   `json:"seed"`
}

// quantityShift matches the +1 shift in the logarithmic utility function.
const quantityShift = 1

// Generate builds a full game for the configuration from generation
// parameters. Fails with ConfigurationError if the result violates the
// configuration or initialization invariants.
func Generate(cfg *game.GameConfiguration, p Params) (*game.Game, error) {
	init, err := Initialization(cfg, p)
	if err != nil {
		return nil, err
	}
	return game.New(cfg, init)
}

// Initialization generates endowments, utility parameters and the equilibrium
// benchmark for a configuration.
func Initialization(cfg *game.GameConfiguration, p Params) (*game.GameInitialization, error) {
	if p.NbAgents != cfg.NbAgents || p.NbGoods != cfg.NbGoods {
		return nil, fmt.Errorf("generation params disagree with configuration: %d/%d agents, %d/%d goods",
			p.NbAgents, cfg.NbAgents, p.NbGoods, cfg.NbGoods)
	}
	if p.MoneyEndowment <= 0 || p.BaseGoodEndowment <= 0 {
		return nil, fmt.Errorf("endowments must be strictly positive")
	}

	rng := rand.New(rand.NewSource(p.Seed))

	scalingFactor := DetermineScalingFactor(p.MoneyEndowment)
	money := moneyEndowments(p.NbAgents, p.MoneyEndowment)
	endowments := goodEndowments(rng, p.NbAgents, p.NbGoods, p.BaseGoodEndowment, p.LowerBoundFactor, p.UpperBoundFactor)
	utilityParams := utilityParams(rng, p.NbAgents, p.NbGoods, scalingFactor)
	eqPrices, eqGoods, eqMoney := equilibrium(endowments, utilityParams, float64(p.MoneyEndowment))

	return game.NewGameInitialization(money, endowments, utilityParams, eqPrices, eqGoods, eqMoney)
}

// DetermineScalingFactor scales utility parameters to the order of magnitude
// of the money endowment.
func DetermineScalingFactor(moneyEndowment int) float64 {
	return math.Pow(10, math.Floor(math.Log10(float64(moneyEndowment))))
}

func moneyEndowments(nbAgents, moneyEndowment int) []float64 {
	money := make([]float64, nbAgents)
	for i := range money {
		money[i] = float64(moneyEndowment)
	}
	return money
}

// goodEndowments gives every agent the base amount of every good, then
// scatters extra instances uniformly so holdings differ between agents.
func goodEndowments(rng *rand.Rand, nbAgents, nbGoods, base, lowerBound, upperBound int) [][]int {
	endowments := make([][]int, nbAgents)
	for i := range endowments {
		endowments[i] = make([]int, nbGoods)
		for j := range endowments[i] {
			endowments[i][j] = base
		}
	}
	for j := 0; j < nbGoods; j++ {
		lo := float64(nbAgents * (base + lowerBound))
		hi := float64(nbAgents * (base + upperBound))
		instances := int(math.Round(lo + rng.Float64()*(hi-lo)))
		for extra := instances - nbAgents*base; extra > 0; extra-- {
			endowments[rng.Intn(nbAgents)][j]++
		}
	}
	return endowments
}

// utilityParams samples a preference vector per agent: uniform weights
// normalized to sum to the scaling factor.
func utilityParams(rng *rand.Rand, nbAgents, nbGoods int, scalingFactor float64) [][]float64 {
	params := make([][]float64, nbAgents)
	for i := range params {
		row := make([]float64, nbGoods)
		total := 0.0
		for j := range row {
			row[j] = 1 + rng.Float64()*100
			total += row[j]
		}
		for j := range row {
			row[j] = row[j] / total * scalingFactor
		}
		params[i] = row
	}
	return params
}

// equilibrium computes the competitive equilibrium of the shifted
// log-utility economy in closed form: prices clear each good's market given
// total supply, and holdings follow from each agent's first-order condition.
func equilibrium(endowments [][]int, utilityParams [][]float64, moneyEndowment float64) (prices []float64, goodHoldings [][]float64, moneyHoldings []float64) {
	nbAgents := len(endowments)
	nbGoods := len(endowments[0])

	prices = make([]float64, nbGoods)
	for j := 0; j < nbGoods; j++ {
		supply, paramSum := 0.0, 0.0
		for i := 0; i < nbAgents; i++ {
			supply += float64(endowments[i][j])
			paramSum += utilityParams[i][j]
		}
		prices[j] = paramSum / (float64(nbAgents*quantityShift) + supply)
	}

	goodHoldings = make([][]float64, nbAgents)
	moneyHoldings = make([]float64, nbAgents)
	for i := 0; i < nbAgents; i++ {
		goodHoldings[i] = make([]float64, nbGoods)
		wealth, paramTotal := 0.0, 0.0
		for j := 0; j < nbGoods; j++ {
			goodHoldings[i][j] = utilityParams[i][j]/prices[j] - quantityShift
			wealth += prices[j] * (float64(endowments[i][j]) + quantityShift)
			paramTotal += utilityParams[i][j]
		}
		moneyHoldings[i] = moneyEndowment + wealth - paramTotal
	}
	return prices, goodHoldings, moneyHoldings
}
