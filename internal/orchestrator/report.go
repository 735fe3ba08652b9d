// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/reference-refine/internal/artifact"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// ReportFile is the summary document written into the session directory.
const ReportFile = "report.md"

// Report summarizes a session. Counts cover the whole working artifact.
type Report struct {
	SessionID string
	RunID     string
	Phase     types.Phase
	Total     int
	Ranked    int
	Finalized int
	Skipped   int
	Untouched int

	Batches     int
	BatchSize   int
	Decision    *types.Decision
	Samples     []types.SampleMetrics
	SkippedRefs []types.SkippedRef

	// Halted is set when a phase stopped the session.
	Halted string
}

// BuildReport counts references per terminal state. A skipped reference is
// counted as Skipped whatever its status; Untouched is everything still
// Draft or Queried.
func BuildReport(set *artifact.Set, cp *types.Checkpoint) *Report {
	r := &Report{
		SessionID:   cp.SessionID,
		RunID:       cp.RunID,
		Phase:       cp.Phase,
		Batches:     cp.BatchesDone,
		BatchSize:   cp.BatchSize,
		Decision:    cp.Decision,
		Samples:     cp.Samples,
		SkippedRefs: cp.Skipped,
	}
	skipped := make(map[int]bool, len(cp.Skipped))
	for _, s := range cp.Skipped {
		skipped[s.ID] = true
	}
	for _, ref := range set.References() {
		r.Total++
		switch {
		case skipped[ref.ID]:
			r.Skipped++
		case ref.Status == types.StatusFinalized:
			r.Finalized++
		case ref.Status == types.StatusRanked:
			r.Ranked++
		default:
			r.Untouched++
		}
	}
	return r
}

// Markdown renders the report document.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Refinement session %s\n\n", r.SessionID)
	fmt.Fprintf(&b, "- Run: %s\n", r.RunID)
	fmt.Fprintf(&b, "- Phase: %s\n", r.Phase)
	fmt.Fprintf(&b, "- Batches committed: %d (size %d)\n", r.Batches, r.BatchSize)
	if r.Halted != "" {
		fmt.Fprintf(&b, "- Halted: %s\n", r.Halted)
	}

	b.WriteString("\n## References\n\n| State | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Ranked | %d |\n| Finalized | %d |\n| Skipped | %d |\n| Untouched | %d |\n| Total | %d |\n",
		r.Ranked, r.Finalized, r.Skipped, r.Untouched, r.Total)

	if len(r.Samples) > 0 {
		b.WriteString("\n## Samples\n\n| # | Attempted | Succeeded | Failed | Mean duration |\n|---|---|---|---|---|\n")
		for i, s := range r.Samples {
			fmt.Fprintf(&b, "| %d | %d | %d | %d | %s |\n", i+1, s.Attempted, s.Succeeded, s.Failed, s.AvgDuration.Round(time.Millisecond))
		}
	}
	if r.Decision != nil {
		fmt.Fprintf(&b, "\n## Decision\n\nGo: %t. Batch size %d. %s\n", r.Decision.Go, r.Decision.BatchSize, r.Decision.Reason)
	}
	if len(r.SkippedRefs) > 0 {
		b.WriteString("\n## Skipped\n\n")
		for _, s := range r.SkippedRefs {
			fmt.Fprintf(&b, "- [%d] %s\n", s.ID, s.Error)
		}
	}
	return b.String()
}

// Write stores the report as report.md in dir.
func (r *Report) Write(dir string) error {
	if err := artifact.WriteFileAtomic(filepath.Join(dir, ReportFile), []byte(r.Markdown())); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Print writes a short summary to w.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "\nSession %s (%s)\n", r.SessionID, r.Phase)
	fmt.Fprintf(w, "  Ranked:    %d\n", r.Ranked)
	fmt.Fprintf(w, "  Finalized: %d\n", r.Finalized)
	fmt.Fprintf(w, "  Skipped:   %d\n", r.Skipped)
	fmt.Fprintf(w, "  Untouched: %d\n", r.Untouched)
	if r.Halted != "" {
		fmt.Fprintf(w, "  Halted:    %s\n", r.Halted)
	}
}
