// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"sort"
	"time"
)

// Phase is the orchestrator phase a checkpoint was written in.
type Phase string

const (
	PhaseSampled  Phase = "sampled"
	PhaseDecided  Phase = "decided"
	PhaseRunning  Phase = "running"
	PhaseComplete Phase = "complete"
)

// Order returns the phase's position in the Sample, Decide, Run sequence.
// An empty phase orders before every other.
func (p Phase) Order() int {
	switch p {
	case PhaseSampled:
		return 1
	case PhaseDecided:
		return 2
	case PhaseRunning:
		return 3
	case PhaseComplete:
		return 4
	default:
		return 0
	}
}

// SampleMetrics aggregates the outcome of one pass over the sample.
type SampleMetrics struct {
	Attempted   int           `json:"attempted" yaml:"attempted"`
	Succeeded   int           `json:"succeeded" yaml:"succeeded"`
	Failed      int           `json:"failed" yaml:"failed"`
	AvgDuration time.Duration `json:"avg_duration" yaml:"avg_duration"`
}

// FailureRate returns Failed/Attempted, or zero for an empty sample.
func (m SampleMetrics) FailureRate() float64 {
	if m.Attempted == 0 {
		return 0
	}
	return float64(m.Failed) / float64(m.Attempted)
}

// Decision is the verdict of the Decide phase.
type Decision struct {
	Go          bool    `json:"go" yaml:"go"`
	BatchSize   int     `json:"batch_size" yaml:"batch_size"`
	Resample    bool    `json:"resample" yaml:"resample"`
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate"`
	Reason      string  `json:"reason" yaml:"reason"`
}

// SkippedRef is a reference that failed even after its batch was retried.
type SkippedRef struct {
	ID    int    `json:"id" yaml:"id"`
	Error string `json:"error" yaml:"error"`
}

// Checkpoint is the persisted progress of one orchestrator session and the
// only input used to resume it.
type Checkpoint struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	Phase     Phase     `json:"phase" yaml:"phase"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	ProcessedIDs []int `json:"processed_ids" yaml:"processed_ids"`
	BatchSize    int   `json:"batch_size" yaml:"batch_size"`
	BatchesDone  int   `json:"batches_done" yaml:"batches_done"`

	SuccessCount int          `json:"success_count" yaml:"success_count"`
	FailureCount int          `json:"failure_count" yaml:"failure_count"`
	Skipped      []SkippedRef `json:"skipped,omitempty" yaml:"skipped,omitempty"`

	Samples  []SampleMetrics `json:"samples,omitempty" yaml:"samples,omitempty"`
	Decision *Decision       `json:"decision,omitempty" yaml:"decision,omitempty"`
}

// IsProcessed reports whether id has been committed in this session.
func (c *Checkpoint) IsProcessed(id int) bool {
	i := sort.SearchInts(c.ProcessedIDs, id)
	return i < len(c.ProcessedIDs) && c.ProcessedIDs[i] == id
}

// MarkProcessed adds ids to ProcessedIDs, keeping the slice sorted and unique.
func (c *Checkpoint) MarkProcessed(ids ...int) {
	for _, id := range ids {
		i := sort.SearchInts(c.ProcessedIDs, id)
		if i < len(c.ProcessedIDs) && c.ProcessedIDs[i] == id {
			continue
		}
		c.ProcessedIDs = append(c.ProcessedIDs, 0)
		copy(c.ProcessedIDs[i+1:], c.ProcessedIDs[i:])
		c.ProcessedIDs[i] = id
	}
}
