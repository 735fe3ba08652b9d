// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"fmt"
	"time"

	"github.com/pdiddy/reference-refine/pkg/types"
)

const (
	defaultMinSize        = 10
	defaultMaxFailureRate = 0.3
)

// Decide judges a sample. A failing sample halves the batch size (never below
// cfg.MinSize) and asks for one resample; a failing resample is a no-go.
// Decide has no side effects.
func Decide(m types.SampleMetrics, resampled bool, batchSize int, cfg types.BatchConfig) types.Decision {
	floor := cfg.MinSize
	if floor <= 0 {
		floor = defaultMinSize
	}
	maxRate := cfg.MaxFailureRate
	if maxRate <= 0 {
		maxRate = defaultMaxFailureRate
	}
	if batchSize < floor {
		batchSize = floor
	}

	d := types.Decision{BatchSize: batchSize, FailureRate: m.FailureRate()}

	var problem string
	switch {
	case d.FailureRate > maxRate:
		problem = fmt.Sprintf("failure rate %.0f%% exceeds %.0f%%", d.FailureRate*100, maxRate*100)
	case cfg.MaxAvgDuration > 0 && m.AvgDuration > cfg.MaxAvgDuration:
		problem = fmt.Sprintf("mean duration %s exceeds %s", m.AvgDuration.Round(time.Millisecond), cfg.MaxAvgDuration)
	}

	switch {
	case problem == "":
		d.Go = true
		d.Reason = fmt.Sprintf("sample passed: %d of %d succeeded", m.Succeeded, m.Attempted)
	case !resampled:
		d.Resample = true
		d.BatchSize = max(batchSize/2, floor)
		d.Reason = problem + "; resampling with batch size " + fmt.Sprint(d.BatchSize)
	default:
		d.Reason = problem + " after resample"
	}
	return d
}
