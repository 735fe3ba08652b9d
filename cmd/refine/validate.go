// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/reference-refine/internal/codec"
	"github.com/pdiddy/reference-refine/internal/llm"
	"github.com/pdiddy/reference-refine/internal/urlcheck"
	"github.com/pdiddy/reference-refine/pkg/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate [id|url]",
	Short: "Check that chosen URLs are reachable and show the cited work",
	Long: `Validate fetches URLs and scores them from 0 to 100. Soft 404 pages,
paywalls, login walls, and previews are detected from the page text, and the
text is matched against the citation.

  refine validate 42               check the primary and secondary URL of [42]
  refine validate https://...      check one URL (--citation to match content)
  refine validate --all            check every reference with a chosen URL

With --ai the configured model judges the content match.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

// urlTarget is one URL to check and the citation it should match.
type urlTarget struct {
	ID       int    `json:"id,omitempty"`
	Role     string `json:"role,omitempty"`
	URL      string `json:"url"`
	Citation string `json:"-"`
}

type validation struct {
	urlTarget
	Result urlcheck.Result `json:"result"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	all, _ := cmd.Flags().GetBool("all")
	if len(args) == 0 && !all {
		return fmt.Errorf("provide a reference id or URL, or use --all")
	}

	targets, err := validateTargets(cmd, args, all)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No URLs to validate.")
		return nil
	}

	var model llm.Generator
	if useAI, _ := cmd.Flags().GetBool("ai"); useAI {
		m, closeModel, err := llm.New(ctx, cfg.LLM)
		if err != nil {
			return err
		}
		defer closeModel()
		model = m
	}
	checker := urlcheck.New(cfg.Validate, cfg.Search.UserAgent, model)

	results := checkAll(ctx, checker, targets, cfg.Batch.Concurrency)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printValidations(cmd.OutOrStdout(), results)
	return nil
}

func validateTargets(cmd *cobra.Command, args []string, all bool) ([]urlTarget, error) {
	if len(args) == 1 && (strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://")) {
		citation, _ := cmd.Flags().GetString("citation")
		return []urlTarget{{URL: args[0], Citation: citation}}, nil
	}

	ws, err := openReadOnly(cfg)
	if err != nil {
		return nil, err
	}
	var refs []types.Reference
	if all {
		refs = ws.Set.References()
	} else {
		ref, err := ws.get(args[0])
		if err != nil {
			return nil, err
		}
		refs = []types.Reference{ref}
	}

	var targets []urlTarget
	for _, r := range refs {
		citation := codec.Citation(r)
		if r.PrimaryURL != "" {
			targets = append(targets, urlTarget{ID: r.ID, Role: "primary", URL: r.PrimaryURL, Citation: citation})
		}
		if r.SecondaryURL != "" {
			targets = append(targets, urlTarget{ID: r.ID, Role: "secondary", URL: r.SecondaryURL, Citation: citation})
		}
	}
	return targets, nil
}

func checkAll(ctx context.Context, c *urlcheck.Checker, targets []urlTarget, limit int) []validation {
	if limit <= 0 {
		limit = 4
	}
	out := make([]validation, len(targets))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, t := range targets {
		g.Go(func() error {
			out[i] = validation{urlTarget: t, Result: c.Check(ctx, t.URL, t.Citation)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func printValidations(w io.Writer, vs []validation) {
	counts := map[string]int{}
	for _, v := range vs {
		label := ""
		if v.ID != 0 {
			label = fmt.Sprintf("[%d] %s ", v.ID, v.Role)
		}
		fmt.Fprintf(w, "%s%3d  %s\n       %s\n", label, v.Result.Score, v.URL, v.Result.Reason)

		switch {
		case v.Result.Accessible:
			counts["accessible"]++
		case v.Result.Barrier == urlcheck.BarrierPaywall:
			counts["paywall"]++
		case v.Result.Barrier == urlcheck.BarrierLogin:
			counts["login"]++
		case v.Result.Barrier == urlcheck.BarrierPreview:
			counts["preview"]++
		default:
			counts["broken"]++
		}
	}
	if len(vs) > 1 {
		fmt.Fprintf(w, "\n%d URLs: %d accessible, %d paywalled, %d login, %d preview, %d broken\n",
			len(vs), counts["accessible"], counts["paywall"], counts["login"], counts["preview"], counts["broken"])
	}
}

func init() {
	validateCmd.Flags().Bool("all", false, "validate every reference with a chosen URL")
	validateCmd.Flags().String("citation", "", "citation to match when validating a bare URL")
	validateCmd.Flags().Bool("ai", false, "use the configured model for content matching")
	validateCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(validateCmd)
}
