// Package belief maintains an agent's model of the world: naive estimates of
// opponent states and per-good price-expectation models fed by negotiation
// outcomes.
package belief

import (
	"math"
	"math/rand"
)

// Price models cover the grid 0.0, 0.1, ..., 20.0.
const (
	priceStep    = 0.1
	nbBandits    = 201
	defaultPrice = 20.0
)

// priceBandit is a Thompson-sampling arm for one price point: a beta
// distribution over the probability that a trade at this price is accepted.
type priceBandit struct {
	price float64
	betaA float64
	betaB float64
}

func newPriceBandit(price float64) *priceBandit {
	// A uniform prior.
	return &priceBandit{price: price, betaA: 1, betaB: 1}
}

func (b *priceBandit) sample(rng *rand.Rand) float64 {
	return sampleBeta(rng, b.betaA, b.betaB)
}

func (b *priceBandit) update(accepted bool) {
	if accepted {
		b.betaA++
	} else {
		b.betaB++
	}
}

// GoodPriceModel models the acceptable price for one good as a bandit per
// price point.
type GoodPriceModel struct {
	bandits [nbBandits]*priceBandit
	rng     *rand.Rand
}

// NewGoodPriceModel creates a price model drawing from the given source.
func NewGoodPriceModel(rng *rand.Rand) *GoodPriceModel {
	m := &GoodPriceModel{rng: rng}
	for i := range m.bandits {
		m.bandits[i] = newPriceBandit(float64(i) * priceStep)
	}
	return m
}

// Update feeds one negotiation outcome at the given price into the model.
// Prices outside the grid are clamped to its edges.
func (m *GoodPriceModel) Update(accepted bool, price float64) {
	m.bandits[m.index(price)].update(accepted)
}

// Expectation returns the most promising price subject to the constraint:
// sellers only consider prices above it, buyers only prices below it.
func (m *GoodPriceModel) Expectation(constraint float64, isSeller bool) float64 {
	best := -1.0
	winning := defaultPrice
	for _, b := range m.bandits {
		if isSeller && b.price <= constraint {
			continue
		}
		if !isSeller && b.price >= constraint {
			continue
		}
		if s := b.sample(m.rng); s > best {
			best = s
			winning = b.price
		}
	}
	return winning
}

func (m *GoodPriceModel) index(price float64) int {
	i := int(math.Round(price / priceStep))
	if i < 0 {
		return 0
	}
	if i >= nbBandits {
		return nbBandits - 1
	}
	return i
}

// sampleBeta draws from Beta(a, b) via two gamma draws.
func sampleBeta(rng *rand.Rand, a, b float64) float64 {
	x := sampleGamma(rng, a)
	y := sampleGamma(rng, b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using Marsaglia-Tsang, with the
// standard boost for shape < 1.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
