package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/acormier/vireo/internal/adapter"
	"github.com/acormier/vireo/internal/catalog"
	"github.com/acormier/vireo/internal/domain"
)

var (
	taxonPhoto bool
	taxonOpen  bool
)

var taxonCmd = &cobra.Command{
	Use:   "taxon <id>",
	Short: "Show a taxon with its full taxonomy",
	Long: `Look up a taxon by its iNaturalist ID. The record is served from the
local mirror when present; otherwise it is fetched once, resolved with
its ancestors and children, and kept for next time.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaxon,
}

func init() {
	rootCmd.AddCommand(taxonCmd)

	taxonCmd.Flags().BoolVar(&taxonPhoto, "photo", false, "Download the default photo into the local cache")
	taxonCmd.Flags().BoolVar(&taxonOpen, "open", false, "Open the taxon page on inaturalist.org")
}

func runTaxon(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid taxon id %q", args[0])
	}

	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	taxa, err := a.taxa.GetByIDs(ctx, []int64{id}, catalog.Options{})
	if err != nil {
		return err
	}
	if len(taxa) == 0 {
		return fmt.Errorf("taxon %d: %w", id, domain.ErrNotFound)
	}
	tx := taxa[0]

	recordView(a, tx.ID)
	printTaxon(tx)

	if taxonPhoto {
		if tx.PhotoURL == "" {
			fmt.Println("\nNo photo available.")
		} else {
			data, err := a.photos.Fetch(ctx, tx.PhotoURL)
			if err != nil {
				return fmt.Errorf("fetching photo: %w", err)
			}
			fmt.Printf("\nPhoto cached (%d bytes)\n", len(data))
		}
	}

	if taxonOpen {
		url := fmt.Sprintf("https://www.inaturalist.org/taxa/%d", tx.ID)
		if err := adapter.OpenURL(url, a.logger); err != nil {
			return err
		}
	}
	return nil
}

// recordView bumps the history and frequency counters, best effort.
func recordView(a *app, id int64) {
	ctx := context.Background()
	state, err := a.db.ReadAppState(ctx)
	if err != nil {
		a.logger.Error("failed to read app state", "error", err)
		return
	}
	state.ViewTaxon(id)
	if err := a.db.WriteAppState(ctx, state); err != nil {
		a.logger.Error("failed to record taxon view", "error", err)
	}
}

func printTaxon(tx *domain.Taxon) {
	fmt.Println(tx.FullName())
	fmt.Printf("  ID:            %d\n", tx.ID)
	fmt.Printf("  Rank:          %s\n", tx.Rank)
	fmt.Printf("  Observations:  %d\n", tx.ObservationsCount)

	if len(tx.Ancestors) > 0 {
		fmt.Println("  Ancestry:")
		for _, anc := range tx.Ancestors {
			fmt.Printf("    %-12s %s\n", anc.Rank, anc.FullName())
		}
	}
	if len(tx.Children) > 0 {
		fmt.Printf("  Children (%d):\n", len(tx.Children))
		for _, child := range tx.Children {
			fmt.Printf("    %-12s %s\n", child.Rank, child.FullName())
		}
	}
}
