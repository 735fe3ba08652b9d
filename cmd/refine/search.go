// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pdiddy/reference-refine/internal/rank"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// --- queries ---

var queriesCmd = &cobra.Command{
	Use:   "queries <id>",
	Short: "Generate search queries for one reference",
	Long: `Queries asks the configured model for new search queries and appends them
after the existing ones. When the model is unavailable and the reference has
no queries, queries are planned from the header fields instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueries,
}

func runQueries(cmd *cobra.Command, args []string) error {
	ws, err := openWritable(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	ref, err := ws.get(args[0])
	if err != nil {
		return err
	}
	pipeline, closeModel, err := newPipeline(cmd.Context(), cfg, ws.Audit)
	if err != nil {
		return err
	}
	defer closeModel()

	ref, err = pipeline.GenerateQueries(cmd.Context(), ref)
	if err != nil {
		return err
	}
	if err := ws.finalizer().Save(ref); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "[%d] %d queries:\n", ref.ID, len(ref.Queries))
	for i, q := range ref.Queries {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, q)
	}
	return nil
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <id>",
	Short: "Retrieve and rank candidate URLs for one reference",
	Long: `Search runs every stored query through the configured search backends,
de-duplicates the hits, ranks them, and stores the ranking. Queries are
generated first when the reference has none. With --select, empty primary and
secondary URLs are filled from the ranking.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws, err := openWritable(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	ref, err := ws.get(args[0])
	if err != nil {
		return err
	}
	if ref.Status == types.StatusFinalized {
		return fmt.Errorf("[%d] is finalized; use edit-queries to reopen it", ref.ID)
	}
	pipeline, closeModel, err := newPipeline(ctx, cfg, ws.Audit)
	if err != nil {
		return err
	}
	defer closeModel()

	if len(ref.Queries) == 0 {
		if ref, err = pipeline.GenerateQueries(ctx, ref); err != nil {
			return err
		}
	}
	ref, err = pipeline.Search(ctx, ref)
	if err != nil {
		return err
	}
	if sel, _ := cmd.Flags().GetBool("select"); sel {
		primary, secondary := rank.SelectURLs(ref.Candidates)
		if ref.PrimaryURL == "" {
			ref.PrimaryURL = primary
		}
		if ref.SecondaryURL == "" && secondary != ref.PrimaryURL {
			ref.SecondaryURL = secondary
		}
	}
	if err := ws.finalizer().Save(ref); err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	printCandidates(cmd.OutOrStdout(), ref, limit)
	return nil
}

func printCandidates(w io.Writer, ref types.Reference, limit int) {
	fmt.Fprintf(w, "[%d] %d candidates from %d queries\n\n", ref.ID, len(ref.Candidates), len(ref.Queries))
	for i, c := range ref.Candidates {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "  ... %d more\n", len(ref.Candidates)-limit)
			break
		}
		title := c.Title
		if len(title) > 70 {
			title = title[:67] + "..."
		}
		fmt.Fprintf(w, "%3d. %5.1f  %s\n       %s\n", c.RankPosition, c.Score, c.URL, title)
	}
	if ref.PrimaryURL != "" {
		fmt.Fprintf(w, "\nPrimary:   %s\n", ref.PrimaryURL)
	}
	if ref.SecondaryURL != "" {
		fmt.Fprintf(w, "Secondary: %s\n", ref.SecondaryURL)
	}
}

func init() {
	searchCmd.Flags().Bool("select", false, "fill empty primary and secondary URLs from the ranking")
	searchCmd.Flags().Int("limit", 10, "candidates to print (0 = all)")

	rootCmd.AddCommand(queriesCmd)
	rootCmd.AddCommand(searchCmd)
}
