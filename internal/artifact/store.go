// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package artifact reads and writes the working and finalized reference
// files. Writes replace files atomically; a process-wide advisory lock keeps
// a single writer per working artifact.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/reference-refine/internal/codec"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// ErrNoPrimaryURL is returned when a finalized reference without a primary
// URL would be written to the finalized artifact.
var ErrNoPrimaryURL = errors.New("finalized reference has no primary URL")

// Store locates the two artifacts.
type Store struct {
	WorkingPath string
	FinalPath   string

	mu   sync.Mutex
	held *Lock
}

// NewStore returns a Store for the given paths.
func NewStore(working, final string) *Store {
	return &Store{WorkingPath: working, FinalPath: final}
}

// Load parses the working artifact. A missing file yields an empty set.
// Parse issues are returned for reporting; they never fail the load.
func (s *Store) Load() (*Set, []codec.ParseIssue, error) {
	data, err := os.ReadFile(s.WorkingPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewSet(codec.Document{}), nil, nil
		}
		return nil, nil, fmt.Errorf("reading working artifact: %w", err)
	}
	doc, issues := codec.Parse(string(data))
	for _, is := range issues {
		zap.L().Warn("parse issue", zap.Int("line", is.Line), zap.Int("id", is.ID), zap.String("reason", is.Reason))
	}
	return NewSet(doc), issues, nil
}

// LoadFinal parses the finalized artifact. A missing file yields an empty index.
func (s *Store) LoadFinal() (*codec.FinalIndex, error) {
	data, err := os.ReadFile(s.FinalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return codec.ParseFinal(""), nil
		}
		return nil, fmt.Errorf("reading finalized artifact: %w", err)
	}
	return codec.ParseFinal(string(data)), nil
}

// Lock takes the single-writer lock for the working artifact and keeps it
// until the returned Lock is released. Commits made while it is held reuse it.
func (s *Store) Lock() (*Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held != nil {
		return s.held, nil
	}
	l, err := acquire(s.WorkingPath + ".lock")
	if err != nil {
		return nil, err
	}
	l.onRelease = func() {
		s.mu.Lock()
		s.held = nil
		s.mu.Unlock()
	}
	s.held = l
	return l, nil
}

// Commit writes the working artifact and then upserts every finalized
// reference of set into the finalized artifact. The working artifact is
// written first so a crash between the two writes is repaired by
// reconciliation on the next load. It returns the ids whose finalized block
// changed.
func (s *Store) Commit(set *Set) ([]int, error) {
	release, err := s.ensureLock()
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	final := set.Finalized()
	if err := checkFinal(final); err != nil {
		return nil, err
	}
	if err := WriteFileAtomic(s.WorkingPath, []byte(codec.SerializeDocument(set.Document()))); err != nil {
		return nil, fmt.Errorf("writing working artifact: %w", err)
	}
	return s.upsertFinal(final)
}

// UpsertFinal writes clean blocks for refs into the finalized artifact
// without touching the working artifact.
func (s *Store) UpsertFinal(refs []types.Reference) ([]int, error) {
	release, err := s.ensureLock()
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertFinal(refs)
}

func (s *Store) upsertFinal(refs []types.Reference) ([]int, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if err := checkFinal(refs); err != nil {
		return nil, err
	}
	idx, err := s.LoadFinal()
	if err != nil {
		return nil, err
	}
	var changed []int
	for _, r := range refs {
		if idx.Upsert(r) {
			changed = append(changed, r.ID)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}
	if err := WriteFileAtomic(s.FinalPath, []byte(idx.String())); err != nil {
		return nil, fmt.Errorf("writing finalized artifact: %w", err)
	}
	return changed, nil
}

func checkFinal(refs []types.Reference) error {
	for _, r := range refs {
		if r.PrimaryURL == "" {
			return fmt.Errorf("reference %d: %w", r.ID, ErrNoPrimaryURL)
		}
	}
	return nil
}

// ensureLock acquires the lock for the duration of one write unless the
// Store already holds it.
func (s *Store) ensureLock() (func(), error) {
	s.mu.Lock()
	held := s.held != nil
	s.mu.Unlock()
	if held {
		return func() {}, nil
	}
	l, err := acquire(s.WorkingPath + ".lock")
	if err != nil {
		return nil, err
	}
	return func() {
		if err := l.Release(); err != nil {
			zap.L().Warn("releasing artifact lock", zap.Error(err))
		}
	}, nil
}

// Snapshot copies the working artifact into dir and returns the copy's path.
// A missing working artifact is not an error; the returned path is empty.
func (s *Store) Snapshot(dir string) (string, error) {
	data, err := os.ReadFile(s.WorkingPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading working artifact: %w", err)
	}
	dst := filepath.Join(dir, "snapshot-"+filepath.Base(s.WorkingPath))
	if err := WriteFileAtomic(dst, data); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return dst, nil
}

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
