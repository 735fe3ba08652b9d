// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator runs the batch refinement session in three strictly
// ordered phases: Sample, Decide, Run. Progress advances only when a batch
// is committed to the artifacts and then to the checkpoint, so an
// interrupted session resumes from its last committed batch.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/reference-refine/internal/artifact"
	"github.com/pdiddy/reference-refine/internal/audit"
	"github.com/pdiddy/reference-refine/internal/checkpoint"
	"github.com/pdiddy/reference-refine/pkg/types"
)

var (
	// ErrNoGo is returned when the Decide phase stops the session.
	ErrNoGo = errors.New("decide phase returned no-go")

	// ErrBatchFailureThresholdExceeded halts the Run phase after a batch
	// still fails too often following its retry.
	ErrBatchFailureThresholdExceeded = errors.New("batch failure threshold exceeded")
)

// SessionLayout is the time layout of session ids and output directories.
const SessionLayout = "20060102-150405"

const (
	defaultSampleSize  = 25
	defaultBatchSize   = 25
	defaultConcurrency = 4
	defaultThreshold   = 0.5
)

// Orchestrator drives one session over a loaded reference set. The caller
// holds the artifact lock for the session.
type Orchestrator struct {
	Store       *artifact.Store
	Set         *artifact.Set
	Checkpoints *checkpoint.Store
	Processor   Processor
	Audit       *audit.Log
	Cfg         types.BatchConfig

	// Out receives progress lines. Nil discards them.
	Out io.Writer
}

// NewCheckpoint starts a fresh session.
func NewCheckpoint(now time.Time, cfg types.BatchConfig) *types.Checkpoint {
	size := cfg.Size
	if size <= 0 {
		size = defaultBatchSize
	}
	return &types.Checkpoint{
		SessionID: now.Format(SessionLayout),
		RunID:     uuid.NewString(),
		StartedAt: now.UTC(),
		BatchSize: size,
	}
}

// outcome is the result of one reference's pipeline.
type outcome struct {
	ref types.Reference
	err error
	dur time.Duration
}

// Run executes every phase cp has not yet completed and returns the final
// report. The report is written even when a phase stops the session.
func (o *Orchestrator) Run(ctx context.Context, cp *types.Checkpoint) (*Report, error) {
	err := o.run(ctx, cp)
	rep := BuildReport(o.Set, cp)
	if errors.Is(err, ErrNoGo) || errors.Is(err, ErrBatchFailureThresholdExceeded) {
		rep.Halted = err.Error()
	}
	if werr := rep.Write(o.Checkpoints.Dir); werr != nil {
		zap.L().Error("writing report", zap.Error(werr))
	}
	return rep, err
}

func (o *Orchestrator) run(ctx context.Context, cp *types.Checkpoint) error {
	if cp.Phase.Order() < types.PhaseSampled.Order() {
		if err := o.sample(ctx, cp); err != nil {
			return err
		}
	}

	if cp.Phase.Order() < types.PhaseDecided.Order() {
		for {
			last := types.SampleMetrics{}
			if n := len(cp.Samples); n > 0 {
				last = cp.Samples[n-1]
			}
			d := Decide(last, len(cp.Samples) > 1, cp.BatchSize, o.Cfg)
			cp.BatchSize = d.BatchSize
			if !d.Resample {
				cp.Decision = &d
				break
			}
			o.printf("Resampling: %s\n", d.Reason)
			if err := o.sample(ctx, cp); err != nil {
				return err
			}
		}
		cp.Phase = types.PhaseDecided
		if err := o.Checkpoints.SavePhase(cp); err != nil {
			return err
		}
		o.printf("Decision: go=%t batch_size=%d (%s)\n", cp.Decision.Go, cp.BatchSize, cp.Decision.Reason)
	}
	if cp.Decision != nil && !cp.Decision.Go {
		return fmt.Errorf("%w: %s", ErrNoGo, cp.Decision.Reason)
	}

	if cp.Phase.Order() < types.PhaseComplete.Order() {
		if cp.Phase != types.PhaseRunning {
			cp.Phase = types.PhaseRunning
			if err := o.Checkpoints.SavePhase(cp); err != nil {
				return err
			}
		}
		if err := o.runBatches(ctx, cp); err != nil {
			return err
		}
		cp.Phase = types.PhaseComplete
		if err := o.Checkpoints.SavePhase(cp); err != nil {
			return err
		}
	}
	return nil
}

// pending lists references the session still has to process, in id order.
func (o *Orchestrator) pending(cp *types.Checkpoint) []int {
	skipped := make(map[int]bool, len(cp.Skipped))
	for _, s := range cp.Skipped {
		skipped[s.ID] = true
	}
	var ids []int
	for _, ref := range o.Set.References() {
		if ref.Status == types.StatusFinalized || cp.IsProcessed(ref.ID) || skipped[ref.ID] {
			continue
		}
		ids = append(ids, ref.ID)
	}
	slices.Sort(ids)
	return ids
}

// pickSample chooses the sample from the pending references.
func (o *Orchestrator) pickSample(cp *types.Checkpoint) []int {
	ids := o.pending(cp)
	n := o.Cfg.SampleSize
	if n <= 0 {
		n = defaultSampleSize
	}
	if o.Cfg.SampleMode == "random" {
		seed := o.Cfg.SampleSeed + uint64(len(cp.Samples))
		r := rand.New(rand.NewPCG(seed, seed))
		r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
	if len(ids) > n {
		ids = ids[:n]
	}
	slices.Sort(ids)
	return ids
}

// sample runs the pipeline over one sample, commits its successes and
// records its metrics. Failed sample references stay pending for Run.
func (o *Orchestrator) sample(ctx context.Context, cp *types.Checkpoint) error {
	ids := o.pickSample(cp)
	o.printf("Sampling %d references\n", len(ids))

	results, err := o.process(ctx, ids)
	if err != nil {
		return err
	}

	m := types.SampleMetrics{Attempted: len(ids)}
	var total time.Duration
	var done []int
	for i, r := range results {
		total += r.dur
		if r.err != nil {
			m.Failed++
			zap.L().Info("sample reference failed", zap.Int("ref", ids[i]), zap.Error(r.err))
			continue
		}
		m.Succeeded++
		o.Set.Put(r.ref)
		done = append(done, ids[i])
	}
	if len(ids) > 0 {
		m.AvgDuration = total / time.Duration(len(ids))
	}

	if err := o.commit(cp, done, m.Succeeded, m.Failed); err != nil {
		return err
	}
	cp.Samples = append(cp.Samples, m)
	cp.Phase = types.PhaseSampled
	if err := o.Checkpoints.SavePhase(cp); err != nil {
		return err
	}
	o.printf("Sample: %d succeeded, %d failed, mean %s\n", m.Succeeded, m.Failed, m.AvgDuration.Round(time.Millisecond))
	return nil
}

func (o *Orchestrator) runBatches(ctx context.Context, cp *types.Checkpoint) error {
	ids := o.pending(cp)
	size := cp.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	o.printf("Running %d references in batches of %d\n", len(ids), size)

	for start := 0; start < len(ids); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := ids[start:min(start+size, len(ids))]
		if err := o.runBatch(ctx, cp, batch, size); err != nil {
			return err
		}
	}
	return nil
}

// runBatch processes one batch, retries its failures once in half-size
// sub-batches when too many failed, and commits. References still failing
// are recorded as skipped and keep their pre-batch state.
func (o *Orchestrator) runBatch(ctx context.Context, cp *types.Checkpoint, batch []int, size int) error {
	results, err := o.process(ctx, batch)
	if err != nil {
		return err
	}

	threshold := o.Cfg.BatchFailureThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	failed := failedIndexes(results)
	if fraction(len(failed), len(batch)) > threshold {
		retrySize := max(size/2, 1)
		o.printf("Batch %d: %d of %d failed; retrying in batches of %d\n", cp.BatchesDone+1, len(failed), len(batch), retrySize)
		for start := 0; start < len(failed); start += retrySize {
			idx := failed[start:min(start+retrySize, len(failed))]
			sub := make([]int, len(idx))
			for i, j := range idx {
				sub[i] = batch[j]
			}
			retried, err := o.process(ctx, sub)
			if err != nil {
				return err
			}
			for i, j := range idx {
				results[j] = retried[i]
			}
		}
		failed = failedIndexes(results)
	}
	exceeded := fraction(len(failed), len(batch)) > threshold

	var done []int
	for i, r := range results {
		if r.err == nil {
			o.Set.Put(r.ref)
			done = append(done, batch[i])
		}
	}
	if !exceeded {
		for _, i := range failed {
			cp.Skipped = append(cp.Skipped, types.SkippedRef{ID: batch[i], Error: results[i].err.Error()})
			o.Audit.Record(audit.Skipped, batch[i], zap.Error(results[i].err))
		}
	}

	if err := o.commit(cp, done, len(done), len(failed)); err != nil {
		return err
	}
	cp.BatchesDone++
	if err := o.Checkpoints.Save(cp); err != nil {
		return err
	}
	o.printf("Batch %d: %d succeeded, %d failed\n", cp.BatchesDone, len(done), len(failed))

	if exceeded {
		return fmt.Errorf("%w: batch %d failed %d of %d references after retry",
			ErrBatchFailureThresholdExceeded, cp.BatchesDone, len(failed), len(batch))
	}
	return nil
}

// process runs the pipeline over ids with bounded concurrency. Reference
// failures are returned in the outcomes; the error is the session's
// cancellation, in which case nothing from this call may be committed.
func (o *Orchestrator) process(ctx context.Context, ids []int) ([]outcome, error) {
	limit := o.Cfg.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	results := make([]outcome, len(ids))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			ref, ok := o.Set.Get(id)
			if !ok {
				results[i] = outcome{err: fmt.Errorf("reference [%d] not found", id)}
				return nil
			}
			start := time.Now()
			out, err := o.Processor.Process(ctx, ref)
			results[i] = outcome{ref: out, err: err, dur: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// commit writes the artifacts and then advances the checkpoint in memory.
// The caller saves the checkpoint.
func (o *Orchestrator) commit(cp *types.Checkpoint, done []int, succeeded, failed int) error {
	if len(done) > 0 {
		if _, err := o.Store.Commit(o.Set); err != nil {
			return fmt.Errorf("committing batch: %w", err)
		}
	}
	cp.MarkProcessed(done...)
	cp.SuccessCount += succeeded
	cp.FailureCount += failed
	return nil
}

func failedIndexes(results []outcome) []int {
	var idx []int
	for i, r := range results {
		if r.err != nil {
			idx = append(idx, i)
		}
	}
	return idx
}

func fraction(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func (o *Orchestrator) printf(format string, args ...any) {
	if o.Out != nil {
		fmt.Fprintf(o.Out, format, args...)
	}
}
