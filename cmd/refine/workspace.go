// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/pdiddy/reference-refine/internal/artifact"
	"github.com/pdiddy/reference-refine/internal/audit"
	"github.com/pdiddy/reference-refine/internal/config"
	"github.com/pdiddy/reference-refine/internal/llm"
	"github.com/pdiddy/reference-refine/internal/orchestrator"
	"github.com/pdiddy/reference-refine/internal/retrieve"
	"github.com/pdiddy/reference-refine/internal/workflow"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// workspace is the loaded working artifact. A writable workspace holds the
// artifact lock and the audit log until Close.
type workspace struct {
	Store *artifact.Store
	Set   *artifact.Set
	Audit *audit.Log

	lock *artifact.Lock
}

// openReadOnly loads the working artifact without taking the lock.
func openReadOnly(c *types.Config) (*workspace, error) {
	store := artifact.NewStore(c.Files.Working, c.Files.Final)
	set, issues, err := store.Load()
	if err != nil {
		return nil, err
	}
	reportIssues(len(issues))
	return &workspace{Store: store, Set: set, Audit: audit.Nop()}, nil
}

// openWritable takes the artifact lock, loads the working artifact and
// repairs any finalized block a previous crash left stale.
func openWritable(c *types.Config) (*workspace, error) {
	ws, err := openLocked(c)
	if err != nil {
		return nil, err
	}
	if _, err := ws.finalizer().Reconcile(); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

// openLocked takes the artifact lock and loads the working artifact.
func openLocked(c *types.Config) (*workspace, error) {
	store := artifact.NewStore(c.Files.Working, c.Files.Final)
	lock, err := store.Lock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", c.Files.Working, err)
	}
	set, issues, err := store.Load()
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	reportIssues(len(issues))

	log, err := audit.Open(c.Files.AuditLog)
	if err != nil {
		zap.L().Warn("audit log unavailable", zap.String("path", c.Files.AuditLog), zap.Error(err))
		log = audit.Nop()
	}
	return &workspace{Store: store, Set: set, Audit: log, lock: lock}, nil
}

func reportIssues(n int) {
	if n > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d block(s) could not be fully parsed and were kept verbatim\n", n)
	}
}

func (w *workspace) finalizer() *workflow.Finalizer {
	return &workflow.Finalizer{Store: w.Store, Set: w.Set, Audit: w.Audit}
}

// get resolves a reference id argument.
func (w *workspace) get(arg string) (types.Reference, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return types.Reference{}, fmt.Errorf("invalid reference id %q", arg)
	}
	ref, ok := w.Set.Get(id)
	if !ok {
		return ref, fmt.Errorf("%w: [%d]", workflow.ErrNotFound, id)
	}
	return ref, nil
}

// Close releases the audit log and the lock.
func (w *workspace) Close() {
	if err := w.Audit.Close(); err != nil {
		zap.L().Warn("closing audit log", zap.Error(err))
	}
	if err := w.lock.Release(); err != nil {
		zap.L().Warn("releasing artifact lock", zap.Error(err))
	}
}

// newPipeline builds the per-reference pipeline after checking credentials.
// The returned close function releases the model client.
func newPipeline(ctx context.Context, c *types.Config, log *audit.Log) (*orchestrator.Pipeline, func() error, error) {
	if err := config.CheckCredentials(c); err != nil {
		return nil, nil, err
	}
	model, closeModel, err := llm.New(ctx, c.LLM)
	if err != nil {
		return nil, nil, err
	}
	backend, err := retrieve.FromConfig(c.Search)
	if err != nil {
		_ = closeModel()
		return nil, nil, err
	}
	return orchestrator.NewPipeline(model, backend, c, log), closeModel, nil
}
