// Package game implements the authoritative economic ledger: game
// configuration and initialization, live agent and good state, transaction
// validation and atomic settlement, and log-utility scoring.
package game

import (
	"fmt"
	"math"
)

// DefaultPrice is the recorded price of a good before any trade involves it.
const DefaultPrice = 0.0

// ConfigurationError reports invalid game parameters. Fatal: game creation
// aborts.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "invalid game configuration: " + e.Msg
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// GameConfiguration holds the immutable parameters of a game instance.
// AgentAddrs and GoodAddrs fix the ordering that endowment and utility
// matrices are indexed by.
type GameConfiguration struct {
	NbAgents   int               `json:"nb_agents"`
	NbGoods    int               `json:"nb_goods"`
	TxFee      float64           `json:"tx_fee"`
	AgentAddrs []string          `json:"agent_pbks"`
	GoodAddrs  []string          `json:"good_pbks"`
	AgentNames map[string]string `json:"agent_pbk_to_name"`
	GoodNames  map[string]string `json:"good_pbk_to_name"`
}

// NewGameConfiguration builds and validates a configuration.
func NewGameConfiguration(nbAgents, nbGoods int, txFee float64, agentAddrs, goodAddrs []string, agentNames, goodNames map[string]string) (*GameConfiguration, error) {
	c := &GameConfiguration{
		NbAgents:   nbAgents,
		NbGoods:    nbGoods,
		TxFee:      txFee,
		AgentAddrs: agentAddrs,
		GoodAddrs:  goodAddrs,
		AgentNames: agentNames,
		GoodNames:  goodNames,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration invariants.
func (c *GameConfiguration) Validate() error {
	if c.TxFee < 0 {
		return configErrorf("tx fee must be non-negative, got %v", c.TxFee)
	}
	if c.NbAgents < 2 {
		return configErrorf("must have at least two agents, got %d", c.NbAgents)
	}
	if c.NbGoods < 2 {
		return configErrorf("must have at least two goods, got %d", c.NbGoods)
	}
	if len(c.AgentAddrs) != c.NbAgents || len(c.AgentNames) != c.NbAgents {
		return configErrorf("there must be one address and one name per agent")
	}
	if len(c.GoodAddrs) != c.NbGoods || len(c.GoodNames) != c.NbGoods {
		return configErrorf("there must be one address and one name per good")
	}
	if err := uniqueNames(c.AgentAddrs, c.AgentNames, "agent"); err != nil {
		return err
	}
	return uniqueNames(c.GoodAddrs, c.GoodNames, "good")
}

func uniqueNames(addrs []string, names map[string]string, kind string) error {
	seen := make(map[string]bool, len(addrs))
	for _, addr := range addrs {
		name, ok := names[addr]
		if !ok {
			return configErrorf("%s %s has no name", kind, addr)
		}
		if seen[name] {
			return configErrorf("%s names must be unique, duplicate %q", kind, name)
		}
		seen[name] = true
	}
	return nil
}

// FeeShare is the half of the transaction fee charged to each side, rounded
// to two decimals. The same rounding is used everywhere fees appear.
func (c *GameConfiguration) FeeShare() float64 {
	return Round2(c.TxFee / 2.0)
}

// GoodIndex returns the position of a good in the configured ordering, or -1.
func (c *GameConfiguration) GoodIndex(goodAddr string) int {
	for i, g := range c.GoodAddrs {
		if g == goodAddr {
			return i
		}
	}
	return -1
}

// GameInitialization holds the immutable initial allocation of a game:
// per-agent money, endowments, utility parameters and the competitive
// equilibrium benchmark (used only for reporting).
type GameInitialization struct {
	InitialMoneyAmounts []float64   `json:"initial_money_amounts"`
	Endowments          [][]int     `json:"endowments"`
	UtilityParams       [][]float64 `json:"utility_params"`
	EqPrices            []float64   `json:"eq_prices"`
	EqGoodHoldings      [][]float64 `json:"eq_good_holdings"`
	EqMoneyHoldings     []float64   `json:"eq_money_holdings"`
}

// NewGameInitialization builds and validates an initialization.
func NewGameInitialization(money []float64, endowments [][]int, utilityParams [][]float64, eqPrices []float64, eqGoodHoldings [][]float64, eqMoneyHoldings []float64) (*GameInitialization, error) {
	init := &GameInitialization{
		InitialMoneyAmounts: money,
		Endowments:          endowments,
		UtilityParams:       utilityParams,
		EqPrices:            eqPrices,
		EqGoodHoldings:      eqGoodHoldings,
		EqMoneyHoldings:     eqMoneyHoldings,
	}
	if err := init.Validate(); err != nil {
		return nil, err
	}
	return init, nil
}

// Validate checks the initialization invariants.
func (init *GameInitialization) Validate() error {
	for _, m := range init.InitialMoneyAmounts {
		if m < 0 {
			return configErrorf("money must be non-negative, got %v", m)
		}
	}
	for _, row := range init.Endowments {
		for _, e := range row {
			if e <= 0 {
				return configErrorf("endowments must be strictly positive, got %d", e)
			}
		}
	}
	for _, row := range init.UtilityParams {
		for _, u := range row {
			if u <= 0 {
				return configErrorf("utility params must be strictly positive, got %v", u)
			}
		}
	}
	if len(init.Endowments) != len(init.InitialMoneyAmounts) {
		return configErrorf("endowments and initial money amounts must have the same length")
	}
	if len(init.Endowments) != len(init.UtilityParams) {
		return configErrorf("endowments and utility params must have the same length")
	}
	for i := range init.Endowments {
		if len(init.Endowments[i]) != len(init.UtilityParams[i]) {
			return configErrorf("endowment and utility param rows must have the same length")
		}
	}
	if len(init.EqGoodHoldings) == 0 || len(init.EqPrices) != len(init.EqGoodHoldings[0]) {
		return configErrorf("eq prices and eq good holdings rows must have the same length")
	}
	if len(init.EqGoodHoldings) != len(init.EqMoneyHoldings) {
		return configErrorf("eq good holdings and eq money holdings must have the same length")
	}
	return nil
}

// Round2 rounds to two decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Round1 rounds to one decimal place.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}
