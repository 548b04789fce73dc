package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acormier/vireo/internal/domain"
	"github.com/acormier/vireo/internal/syncer"
)

var (
	obsPage     int
	obsUsername string
)

var observationsCmd = &cobra.Command{
	Use:     "observations",
	Aliases: []string{"obs"},
	Short:   "List locally mirrored observations",
	Long: `Page through the local mirror, newest observations first. Nothing is
fetched from the remote; run sync first to populate the mirror.`,
	RunE: runObservations,
}

func init() {
	rootCmd.AddCommand(observationsCmd)

	observationsCmd.Flags().IntVarP(&obsPage, "page", "p", 1, "Page number")
	observationsCmd.Flags().StringVarP(&obsUsername, "username", "u", "", "Observer login (overrides config)")
}

func runObservations(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	username, err := a.username(obsUsername)
	if err != nil {
		return err
	}

	// Buffered so the synchronous cold-start delivery never blocks
	pages := make(chan domain.Page, 1)
	coord := syncer.New(syncer.Config{
		Username: username,
		PageSize: a.cfg.Sync.PageSize,
		OnPage:   func(p domain.Page) { pages <- p },
	}, a.sched, a.obs, a.db, a.logger)

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start page coordinator: %w", err)
	}

	coord.LoadPage(obsPage)

	var page domain.Page
	select {
	case page = <-pages:
	case <-ctx.Done():
		return ctx.Err()
	}

	if page.IsEmpty() {
		fmt.Println("No local observations; run `vireo sync` first.")
		return nil
	}

	st := coord.Status()
	fmt.Printf("Page %d of %d (%d observations total)\n\n", page.Number, st.TotalPages, page.TotalResults)
	for _, o := range page.Observations {
		fmt.Printf("%9d  %s  %-9s  %s\n",
			o.ID, o.CreatedAt.Format("2006-01-02"), o.QualityGrade, o.TaxonName())
		if o.PlaceGuess != "" {
			fmt.Printf("           %s\n", o.PlaceGuess)
		}
	}
	return nil
}
