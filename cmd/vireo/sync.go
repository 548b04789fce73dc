package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/acormier/vireo/internal/syncer"
)

var (
	syncForce    bool
	syncUsername string
)

// clearProgressLine clears the progress line from the terminal
const clearProgressLine = "\r                                                            \r"

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror your observations from iNaturalist",
	Long: `Fetch your observations page by page and store them locally along
with the taxa they reference.

Progress is checkpointed after every page, so an interrupted sync
resumes where it stopped instead of starting over. Use --force to
discard the checkpoint and rebuild the mirror from scratch.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "Restart from the beginning instead of resuming")
	syncCmd.Flags().StringVarP(&syncUsername, "username", "u", "", "Observer login (overrides config)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	username, err := a.username(syncUsername)
	if err != nil {
		return err
	}

	coord := syncer.New(syncer.Config{
		Username: username,
		PageSize: a.cfg.Sync.PageSize,
	}, a.sched, a.obs, a.db, a.logger)

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync coordinator: %w", err)
	}

	if st := coord.Status(); st.ResumeID != nil && !syncForce {
		fmt.Printf("Resuming above observation %d\n", *st.ResumeID)
	}

	start := time.Now()
	if syncForce {
		err = coord.Refresh(ctx)
	} else {
		err = coord.Sync(ctx)
	}
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		a.sched.Wait()
		close(done)
	}()

	// Live row count on one line while the pager runs
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

progress:
	for {
		select {
		case <-done:
			break progress
		case <-ticker.C:
			fmt.Printf("\rSyncing %s... %d observations", username, coord.Status().TotalRows)
		}
	}
	fmt.Print(clearProgressLine)

	st := coord.Status()
	if st.LastError != nil {
		if st.ResumeID != nil {
			fmt.Printf("Sync stopped at observation %d; run `vireo sync` to resume.\n", *st.ResumeID)
		}
		return fmt.Errorf("sync failed: %w", st.LastError)
	}

	fmt.Printf("Synced %d observations (%d pages) in %s\n",
		st.TotalRows, st.TotalPages, time.Since(start).Round(time.Millisecond))
	return nil
}
