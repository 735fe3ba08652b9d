// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint persists orchestrator progress in a session directory.
//
// Layout:
//
//	checkpoint.json       latest checkpoint, the resume source of truth
//	phase-<phase>.json    checkpoint as written at the end of each phase
//	progress.yaml         human-readable summary of the latest checkpoint
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/reference-refine/internal/artifact"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// ErrNoCheckpoint is returned by Load when the directory holds no checkpoint.
var ErrNoCheckpoint = errors.New("no checkpoint")

const (
	checkpointFile = "checkpoint.json"
	progressFile   = "progress.yaml"
)

// Store reads and writes checkpoints under Dir. Saves are serialized.
type Store struct {
	Dir string

	mu sync.Mutex
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// Save replaces checkpoint.json and progress.yaml with cp. UpdatedAt is set
// to the current time.
func (s *Store) Save(cp *types.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cp)
}

// SavePhase saves cp and also writes phase-<cp.Phase>.json.
func (s *Store) SavePhase(cp *types.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(cp); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	return artifact.WriteFileAtomic(filepath.Join(s.Dir, "phase-"+string(cp.Phase)+".json"), append(data, '\n'))
}

func (s *Store) save(cp *types.Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := artifact.WriteFileAtomic(filepath.Join(s.Dir, checkpointFile), append(data, '\n')); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}

	prog, err := yaml.Marshal(summarize(cp))
	if err != nil {
		return fmt.Errorf("marshaling progress: %w", err)
	}
	if err := artifact.WriteFileAtomic(filepath.Join(s.Dir, progressFile), prog); err != nil {
		return fmt.Errorf("writing progress: %w", err)
	}
	return nil
}

// Load returns the latest checkpoint.
func (s *Store) Load() (*types.Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, checkpointFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return &cp, nil
}

// LoadPhase returns the checkpoint written at the end of phase.
func (s *Store) LoadPhase(phase types.Phase) (*types.Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, "phase-"+string(phase)+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("reading phase checkpoint: %w", err)
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing phase checkpoint: %w", err)
	}
	return &cp, nil
}

type progress struct {
	Session   string             `yaml:"session"`
	Run       string             `yaml:"run"`
	Phase     types.Phase        `yaml:"phase"`
	Updated   string             `yaml:"updated"`
	Processed int                `yaml:"processed"`
	Succeeded int                `yaml:"succeeded"`
	Failed    int                `yaml:"failed"`
	BatchSize int                `yaml:"batch_size"`
	Batches   int                `yaml:"batches_done"`
	Decision  *types.Decision    `yaml:"decision,omitempty"`
	Skipped   []types.SkippedRef `yaml:"skipped,omitempty"`
}

func summarize(cp *types.Checkpoint) progress {
	return progress{
		Session:   cp.SessionID,
		Run:       cp.RunID,
		Phase:     cp.Phase,
		Updated:   cp.UpdatedAt.Format(time.RFC3339),
		Processed: len(cp.ProcessedIDs),
		Succeeded: cp.SuccessCount,
		Failed:    cp.FailureCount,
		BatchSize: cp.BatchSize,
		Batches:   cp.BatchesDone,
		Decision:  cp.Decision,
		Skipped:   cp.Skipped,
	}
}
