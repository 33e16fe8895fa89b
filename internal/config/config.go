// Package config loads runner settings from config file, environment and
// flags via viper.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/talgya/tradeworld/internal/sim"
)

// Config is the complete tradesim configuration.
type Config struct {
	Game    GameConfig    `mapstructure:"game"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// GameConfig controls game generation and the run itself.
type GameConfig struct {
	Agents            int     `mapstructure:"agents"`
	Goods             int     `mapstructure:"goods"`
	TxFee             float64 `mapstructure:"tx_fee"`
	MoneyEndowment    int     `mapstructure:"money_endowment"`
	BaseGoodEndowment int     `mapstructure:"base_good_endowment"`
	LowerBoundFactor  int     `mapstructure:"lower_bound_factor"`
	UpperBoundFactor  int     `mapstructure:"upper_bound_factor"`
	Rounds            int     `mapstructure:"rounds"`
	Seed              int64   `mapstructure:"seed"`
	WorldModeling     bool    `mapstructure:"world_modeling"`
	DBPath            string  `mapstructure:"db_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"` // "debug", "info", "warn", "error"
}

// SetDefaults installs the default configuration values.
func SetDefaults() {
	viper.SetDefault("game.agents", 5)
	viper.SetDefault("game.goods", 5)
	viper.SetDefault("game.tx_fee", 1.0)
	viper.SetDefault("game.money_endowment", 200)
	viper.SetDefault("game.base_good_endowment", 2)
	viper.SetDefault("game.lower_bound_factor", 1)
	viper.SetDefault("game.upper_bound_factor", 1)
	viper.SetDefault("game.rounds", 10)
	viper.SetDefault("game.seed", 42)
	viper.SetDefault("game.world_modeling", false)
	viper.SetDefault("game.db_path", "")
	viper.SetDefault("logging.level", "info")
}

// Init wires viper to the environment and optional config file.
func Init(cfgFile string) {
	SetDefaults()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tradesim")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/tradesim")
	}
	viper.AutomaticEnv()
	viper.SetEnvPrefix("TRADESIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = viper.ReadInConfig()
}

// Load reads the effective configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SimConfig converts the game section into runner parameters.
func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		NbAgents:          c.Game.Agents,
		NbGoods:           c.Game.Goods,
		TxFee:             c.Game.TxFee,
		MoneyEndowment:    c.Game.MoneyEndowment,
		BaseGoodEndowment: c.Game.BaseGoodEndowment,
		LowerBoundFactor:  c.Game.LowerBoundFactor,
		UpperBoundFactor:  c.Game.UpperBoundFactor,
		Rounds:            c.Game.Rounds,
		Seed:              c.Game.Seed,
		WorldModeling:     c.Game.WorldModeling,
		DBPath:            c.Game.DBPath,
	}
}
