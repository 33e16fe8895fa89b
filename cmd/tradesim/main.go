// Command tradesim runs and inspects simulated trading games.
package main

import (
	"os"

	"github.com/talgya/tradeworld/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
