// Command migrate is the MigrationEngine's operator CLI: a separate,
// sequential tool invoked on demand rather than a daemon subsystem. It
// never runs alongside the orchestrator's own write path without care —
// migrations and PoolManager both persist through the same state file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"
)

var cfg *config.Config
var logger *slog.Logger

func main() {
	cfg = config.Load()
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate dedicated bots into the pooled runtime",
		Long:  "migrate discovers legacy dedicated bots and moves them into shared pool containers, with backup and ledgered rollback.",
	}

	rootCmd.AddCommand(dryRunCmd())
	rootCmd.AddCommand(executeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(rollbackCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func background() context.Context {
	return context.Background()
}
