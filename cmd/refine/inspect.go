// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/reference-refine/internal/codec"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List references with their status and chosen URLs",
	Long: `List prints one line per reference. Filters combine:

  --status    draft, queried, ranked, or finalized
  --missing   primary, secondary, or any (either URL missing)
  --q         case-insensitive substring of the header or relevance text`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ws, err := openReadOnly(cfg)
	if err != nil {
		return err
	}

	f := listFilter{}
	if s, _ := cmd.Flags().GetString("status"); s != "" {
		st, err := types.ParseStatus(s)
		if err != nil {
			return err
		}
		f.status = st
	}
	f.missing, _ = cmd.Flags().GetString("missing")
	switch f.missing {
	case "", "primary", "secondary", "any":
	default:
		return fmt.Errorf("unsupported --missing %q: use primary, secondary, or any", f.missing)
	}
	q, _ := cmd.Flags().GetString("q")
	f.query = strings.ToLower(q)

	var refs []types.Reference
	for _, ref := range ws.Set.References() {
		if f.match(ref) {
			refs = append(refs, ref)
		}
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(refs)
	}
	printList(cmd.OutOrStdout(), refs)
	return nil
}

type listFilter struct {
	status  types.Status
	missing string
	query   string
}

func (f listFilter) match(ref types.Reference) bool {
	if f.status != "" && ref.Status != f.status {
		return false
	}
	switch f.missing {
	case "primary":
		if ref.PrimaryURL != "" {
			return false
		}
	case "secondary":
		if ref.SecondaryURL != "" {
			return false
		}
	case "any":
		if ref.PrimaryURL != "" && ref.SecondaryURL != "" {
			return false
		}
	}
	if f.query != "" {
		hay := strings.ToLower(codec.Header(ref) + " " + ref.Relevance)
		if !strings.Contains(hay, f.query) {
			return false
		}
	}
	return true
}

func printList(w io.Writer, refs []types.Reference) {
	if len(refs) == 0 {
		fmt.Fprintln(w, "No references found.")
		return
	}
	fmt.Fprintf(w, "%-5s  %-9s  %-3s  %-3s  %s\n", "ID", "Status", "P", "S", "Reference")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range refs {
		title := r.Title
		if r.Author != "" {
			title = r.Author + " " + title
		}
		if len(title) > 65 {
			title = title[:62] + "..."
		}
		fmt.Fprintf(w, "%-5d  %-9s  %-3s  %-3s  %s\n", r.ID, r.Status, mark(r.PrimaryURL), mark(r.SecondaryURL), title)
	}
	fmt.Fprintf(w, "\n%d references\n", len(refs))
}

func mark(url string) string {
	if url == "" {
		return "-"
	}
	return "yes"
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize progress across the working file",
	RunE:  runStats,
}

type stats struct {
	Total            int                  `json:"total"`
	ByStatus         map[types.Status]int `json:"by_status"`
	WithPrimary      int                  `json:"with_primary"`
	WithSecondary    int                  `json:"with_secondary"`
	WithRelevance    int                  `json:"with_relevance"`
	Queries          int                  `json:"queries"`
	Candidates       int                  `json:"candidates"`
	FinalBlocks      int                  `json:"final_blocks"`
	StaleFinalBlocks int                  `json:"stale_final_blocks"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ws, err := openReadOnly(cfg)
	if err != nil {
		return err
	}
	final, err := ws.Store.LoadFinal()
	if err != nil {
		return err
	}

	s := collectStats(ws.Set.References(), final)
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "References:      %d\n", s.Total)
	for _, st := range []types.Status{types.StatusDraft, types.StatusQueried, types.StatusRanked, types.StatusFinalized} {
		fmt.Fprintf(w, "  %-13s  %d\n", st+":", s.ByStatus[st])
	}
	fmt.Fprintf(w, "Primary URL:     %d\n", s.WithPrimary)
	fmt.Fprintf(w, "Secondary URL:   %d\n", s.WithSecondary)
	fmt.Fprintf(w, "Relevance text:  %d\n", s.WithRelevance)
	fmt.Fprintf(w, "Queries:         %d\n", s.Queries)
	fmt.Fprintf(w, "Candidates:      %d\n", s.Candidates)
	fmt.Fprintf(w, "Final blocks:    %d\n", s.FinalBlocks)
	if s.StaleFinalBlocks > 0 {
		fmt.Fprintf(w, "Stale or missing final blocks: %d (run: refine reconcile)\n", s.StaleFinalBlocks)
	}
	return nil
}

func collectStats(refs []types.Reference, final *codec.FinalIndex) stats {
	s := stats{ByStatus: map[types.Status]int{}, FinalBlocks: len(final.IDs())}
	for _, r := range refs {
		s.Total++
		s.ByStatus[r.Status]++
		if r.PrimaryURL != "" {
			s.WithPrimary++
		}
		if r.SecondaryURL != "" {
			s.WithSecondary++
		}
		if r.Relevance != "" {
			s.WithRelevance++
		}
		s.Queries += len(r.Queries)
		s.Candidates += len(r.Candidates)
		if r.Status == types.StatusFinalized {
			if blk, ok := final.Get(r.ID); !ok || blk != codec.FinalBlock(r) {
				s.StaleFinalBlocks++
			}
		}
	}
	return s
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one reference block",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	ws, err := openReadOnly(cfg)
	if err != nil {
		return err
	}
	ref, err := ws.get(args[0])
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ref)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n\nStatus: %s\n", codec.FormatBlock(ref), ref.Status)
	return nil
}

func init() {
	listCmd.Flags().String("status", "", "filter by status")
	listCmd.Flags().String("missing", "", "filter by missing URL: primary, secondary, or any")
	listCmd.Flags().String("q", "", "filter by text")
	listCmd.Flags().Bool("json", false, "output as JSON")

	statsCmd.Flags().Bool("json", false, "output as JSON")
	showCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(showCmd)
}
