package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the local mirror",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	state, err := a.db.ReadAppState(ctx)
	if err != nil {
		return fmt.Errorf("reading app state: %w", err)
	}

	username := a.cfg.Account.Username
	if username == "" {
		username = "(not configured)"
	}
	rows, err := a.db.CountObservations(ctx, a.cfg.Account.Username)
	if err != nil {
		return fmt.Errorf("counting observations: %w", err)
	}

	fmt.Printf("Account:        %s\n", username)
	fmt.Printf("Observations:   %d local\n", rows)
	if state.LastSyncTime != nil {
		fmt.Printf("Last sync:      %s\n", state.LastSyncTime.Local().Format(time.RFC1123))
	} else {
		fmt.Printf("Last sync:      never\n")
	}
	if state.SyncResumeID != nil {
		fmt.Printf("In progress:    resumes above observation %d\n", *state.SyncResumeID)
	}
	fmt.Printf("Taxa observed:  %d\n", len(state.Observed))
	fmt.Printf("Taxa viewed:    %d\n", len(state.Frequent))
	fmt.Printf("Starred:        %d\n", len(state.Starred))

	count, size := a.photos.Stats()
	fmt.Printf("Photo cache:    %d photos, %s\n", count, formatBytes(size))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
