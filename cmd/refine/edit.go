// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/reference-refine/internal/codec"
	"github.com/pdiddy/reference-refine/internal/workflow"
)

// --- set ---

var setCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Override the primary URL, secondary URL, or relevance text",
	Long: `Set records operator choices for one reference. Only the flags given are
changed; pass an empty value to clear a field. Every change is appended to the
audit log. The primary URL of a finalized reference cannot be cleared.`,
	Args: cobra.ExactArgs(1),
	RunE: runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	var e workflow.Edit
	for name, dst := range map[string]**string{
		"primary":   &e.Primary,
		"secondary": &e.Secondary,
		"relevance": &e.Relevance,
	} {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetString(name)
			v = strings.TrimSpace(v)
			*dst = &v
		}
	}
	if e.Primary == nil && e.Secondary == nil && e.Relevance == nil {
		return fmt.Errorf("nothing to set: use --primary, --secondary, or --relevance")
	}

	ws, err := openWritable(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	ref, err := ws.get(args[0])
	if err != nil {
		return err
	}
	ref, err = ws.finalizer().Apply(ref.ID, e)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated [%d]\n%s\n", ref.ID, codec.FormatBlock(ref))
	return nil
}

// --- edit-queries ---

var editQueriesCmd = &cobra.Command{
	Use:   "edit-queries <id> [query...]",
	Short: "Replace a reference's queries by hand",
	Long: `Edit-queries replaces every query of a reference with the given ones and
drops its candidates. The reference returns to queried (or draft when no
queries are given) and must be searched again before it is finalized.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEditQueries,
}

func runEditQueries(cmd *cobra.Command, args []string) error {
	ws, err := openWritable(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	ref, err := ws.get(args[0])
	if err != nil {
		return err
	}
	var qs []string
	for _, q := range args[1:] {
		if q = strings.TrimSpace(q); q != "" {
			qs = append(qs, q)
		}
	}
	ref, err = ws.finalizer().EditQueries(ref.ID, qs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%d] now has %d queries (%s)\n", ref.ID, len(ref.Queries), ref.Status)
	return nil
}

// --- finalize ---

var finalizeCmd = &cobra.Command{
	Use:   "finalize <id>...",
	Short: "Finalize references that have a primary URL",
	Long: `Finalize marks each reference finalized and writes its clean block to the
final file in the same commit. References without a primary URL, and queried
references whose edited queries have not been ranked yet, are rejected and
left unchanged; the others are still finalized.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFinalize,
}

func runFinalize(cmd *cobra.Command, args []string) error {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(strings.Trim(a, "[]"))
		if err != nil {
			return fmt.Errorf("invalid reference id %q", a)
		}
		ids = append(ids, id)
	}

	ws, err := openWritable(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	done, err := ws.finalizer().Finalize(ids...)
	w := cmd.OutOrStdout()
	for _, id := range done {
		fmt.Fprintf(w, "Finalized [%d]\n", id)
	}
	if err != nil {
		if errors.Is(err, workflow.ErrFinalizationRejected) || errors.Is(err, workflow.ErrInvalidTransition) {
			fmt.Fprintf(w, "%d of %d reference(s) rejected\n", len(ids)-len(done), len(ids))
		}
		return err
	}
	return nil
}

// --- reconcile ---

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rewrite missing or stale blocks in the final file",
	Long: `Reconcile makes the final file agree with the working file: every
finalized reference gets its current clean block. Writable commands do this
automatically on load; this command reports what changed.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ws, err := openLocked(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	fixed, err := ws.finalizer().Reconcile()
	if err != nil {
		return err
	}
	if len(fixed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Final file is up to date.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rewrote %d block(s): %v\n", len(fixed), fixed)
	return nil
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <citation>",
	Short: "Append a new reference with the next free id",
	Long: `Add appends a reference to the working file. The citation is written as
"Author (Year). Title. Container." and gets the next unused id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	citation := strings.TrimSpace(strings.Join(args, " "))
	if citation == "" {
		return fmt.Errorf("citation is empty")
	}

	ws, err := openWritable(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	id := ws.Set.NextID()
	text := fmt.Sprintf("[%d] %s", id, citation)
	if rel, _ := cmd.Flags().GetString("relevance"); rel != "" {
		text += "\nRelevance: " + strings.TrimSpace(rel)
	}
	doc, issues := codec.Parse(text)
	if len(issues) > 0 {
		return fmt.Errorf("cannot parse citation: %s", issues[0].Reason)
	}
	if len(doc.References) != 1 {
		return fmt.Errorf("cannot parse citation %q", citation)
	}

	ref := doc.References[0]
	id = ws.Set.Add(ref)
	if _, err := ws.Store.Commit(ws.Set); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added [%d] %s\n", id, ref.Title)
	return nil
}

func init() {
	setCmd.Flags().String("primary", "", "primary URL")
	setCmd.Flags().String("secondary", "", "secondary URL")
	setCmd.Flags().String("relevance", "", "relevance text")

	addCmd.Flags().String("relevance", "", "why the work is cited")

	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(editQueriesCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(addCmd)
}
