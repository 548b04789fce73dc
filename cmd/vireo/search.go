package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acormier/vireo/internal/catalog"
	"github.com/acormier/vireo/internal/search"
)

var (
	searchLimit    int
	searchObserved bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search taxa by scientific or common name",
	Long: `Rank taxa against the query, preferring the local mirror and falling
back to the remote autocomplete when the mirror has too few matches.

With --observed the search runs purely against your life list, the
taxa your synced observations identify.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum results")
	searchCmd.Flags().BoolVar(&searchObserved, "observed", false, "Search only taxa you have observed")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if searchObserved {
		return searchLifeList(ctx, a, query)
	}

	results, err := a.taxa.Search(ctx, query, searchLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, tx := range results {
		fmt.Printf("%9d  %-10s  %s\n", tx.ID, tx.Rank, tx.FullName())
	}
	return nil
}

// searchLifeList ranks the query against observed taxa only.
func searchLifeList(ctx context.Context, a *app, query string) error {
	state, err := a.db.ReadAppState(ctx)
	if err != nil {
		return fmt.Errorf("reading app state: %w", err)
	}

	ids := state.TopObserved()
	if len(ids) == 0 {
		fmt.Println("No observed taxa yet; run `vireo sync` first.")
		return nil
	}

	taxa, err := a.taxa.GetByIDs(ctx, ids, catalog.Options{AcceptPartial: true})
	if err != nil {
		return fmt.Errorf("loading observed taxa: %w", err)
	}

	idx := search.NewIndex()
	idx.Add(taxa...)

	results := idx.Filter(query)
	if len(results) > searchLimit {
		results = results[:searchLimit]
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, res := range results {
		tx := res.Taxon
		fmt.Printf("%9d  %-10s  %s  (%d observed)\n", tx.ID, tx.Rank, tx.FullName(), state.Observed[tx.ID])
	}
	return nil
}
