package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "vireo",
	Short: "Local-first mirror of your iNaturalist observations",
	Long: `Vireo keeps a local mirror of your iNaturalist observations and the
taxonomy behind them, so browsing and search work offline and a sync
interrupted halfway picks up where it left off.`,
	Version:      Version,
	SilenceUsage: true,
}

func main() {
	// Ctrl+C cancels in-flight remote requests; the sync checkpoint
	// keeps whatever the last persisted page earned.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
