package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/talgya/tradeworld/internal/config"
	"github.com/talgya/tradeworld/internal/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a complete trading game",
	Long: `Generate a game from the configured parameters and play it to the end:
agents register their services, search for counterparties, negotiate, and the
controller settles every matched trade. Prints the final standings.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("agents", 5, "number of trading agents")
	runCmd.Flags().Int("goods", 5, "number of good types")
	runCmd.Flags().Float64("tx-fee", 1.0, "transaction fee, split between buyer and seller")
	runCmd.Flags().Int("money", 200, "initial money endowment per agent")
	runCmd.Flags().Int("base-endowment", 2, "guaranteed instances of every good per agent")
	runCmd.Flags().Int("rounds", 10, "negotiation rounds to play")
	runCmd.Flags().Int64("seed", 42, "random seed, fixes the whole game")
	runCmd.Flags().Bool("world-modeling", false, "agents price from learned expectations")
	runCmd.Flags().String("db", "", "SQLite path to record the game (empty disables persistence)")

	_ = viper.BindPFlag("game.agents", runCmd.Flags().Lookup("agents"))
	_ = viper.BindPFlag("game.goods", runCmd.Flags().Lookup("goods"))
	_ = viper.BindPFlag("game.tx_fee", runCmd.Flags().Lookup("tx-fee"))
	_ = viper.BindPFlag("game.money_endowment", runCmd.Flags().Lookup("money"))
	_ = viper.BindPFlag("game.base_good_endowment", runCmd.Flags().Lookup("base-endowment"))
	_ = viper.BindPFlag("game.rounds", runCmd.Flags().Lookup("rounds"))
	_ = viper.BindPFlag("game.seed", runCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("game.world_modeling", runCmd.Flags().Lookup("world-modeling"))
	_ = viper.BindPFlag("game.db_path", runCmd.Flags().Lookup("db"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := sim.NewRunner(cfg.SimConfig(), logger)
	if err != nil {
		return fmt.Errorf("set up game: %w", err)
	}
	defer runner.Close()

	result, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run game: %w", err)
	}

	fmt.Println(result.Report)
	fmt.Print(runner.Controller().Game().EquilibriumSummary())
	if result.GameID != 0 {
		fmt.Printf("Game recorded as id %d in %s\n", result.GameID, cfg.Game.DBPath)
	}
	return nil
}
