package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/tradeworld/internal/config"
	"github.com/talgya/tradeworld/internal/persistence"
)

var showGameID int64

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Inspect recorded games",
	Long: `List the games stored in the database, or show the replayed outcome of
one game: final holdings, scores and recorded prices.`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().String("db", "tradesim.db", "SQLite path of the game store")
	showCmd.Flags().Int64Var(&showGameID, "game", 0, "game id to show (0 lists all games)")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	newLogger(cfg)

	dbPath, _ := cmd.Flags().GetString("db")
	db, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if showGameID == 0 {
		return listGames(db)
	}
	return showGame(db, showGameID)
}

func listGames(db *persistence.DB) error {
	games, err := db.ListGames()
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Println("No recorded games.")
		return nil
	}
	for _, g := range games {
		fmt.Printf("game %d  created %s  %d transactions\n", g.ID, g.CreatedAt, g.Transactions)
	}
	return nil
}

func showGame(db *persistence.DB, gameID int64) error {
	g, err := db.LoadGame(gameID)
	if err != nil {
		return err
	}
	cfg := g.Configuration()

	fmt.Printf("Game %d: %d agents, %d goods, fee %v, %d transactions\n\n",
		gameID, cfg.NbAgents, cfg.NbGoods, cfg.TxFee, len(g.Transactions()))

	initial := g.InitialScores()
	final := g.Scores()
	fmt.Println("Scores:")
	for _, addr := range cfg.AgentAddrs {
		fmt.Printf("  %-12s %s -> %s\n", cfg.AgentNames[addr],
			humanize.CommafWithDigits(initial[addr], 2),
			humanize.CommafWithDigits(final[addr], 2))
	}

	fmt.Println("\nHoldings:")
	fmt.Print(g.HoldingsSummary())

	fmt.Println("\nRecorded prices:")
	prices := g.Prices()
	for i, good := range cfg.GoodAddrs {
		fmt.Printf("  %-12s %s\n", cfg.GoodNames[good],
			humanize.CommafWithDigits(prices[i], 2))
	}
	return nil
}
