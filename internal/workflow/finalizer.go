// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/reference-refine/internal/artifact"
	"github.com/pdiddy/reference-refine/internal/audit"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// Finalizer applies operator actions to a loaded reference set and commits
// them through the artifact store.
type Finalizer struct {
	Store *artifact.Store
	Set   *artifact.Set
	Audit *audit.Log
}

// Finalize finalizes each id and commits once. References without a primary
// URL, or Queried ones awaiting a re-rank, are rejected and left unchanged;
// the others are still committed. The returned error joins every rejection.
func (f *Finalizer) Finalize(ids ...int) ([]int, error) {
	var done []int
	var befores []types.Reference
	var errs []error
	for _, id := range ids {
		ref, ok := f.Set.Get(id)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: [%d]", ErrNotFound, id))
			continue
		}
		before := ref.Clone()
		if err := Finalize(&ref); err != nil {
			f.Audit.Record(audit.FinalizeRejected, id, zap.String("reason", err.Error()))
			errs = append(errs, err)
			continue
		}
		befores = append(befores, before)
		f.Set.Put(ref)
		done = append(done, id)
	}

	if len(done) > 0 {
		if _, err := f.Store.Commit(f.Set); err != nil {
			for _, b := range befores {
				f.Set.Put(b)
			}
			return nil, err
		}
		for _, id := range done {
			ref, _ := f.Set.Get(id)
			f.Audit.Record(audit.Finalize, id, zap.String("primary", ref.PrimaryURL), zap.String("secondary", ref.SecondaryURL))
		}
	}
	return done, errors.Join(errs...)
}

// Reconcile rewrites the finalized block of every Finalized reference whose
// block is missing or stale, and returns the repaired ids.
func (f *Finalizer) Reconcile() ([]int, error) {
	fixed, err := f.Store.UpsertFinal(f.Set.Finalized())
	if err != nil {
		return nil, fmt.Errorf("reconciling finalized artifact: %w", err)
	}
	if len(fixed) > 0 {
		zap.L().Info("reconciled finalized artifact", zap.Ints("ids", fixed))
	}
	return fixed, nil
}

// Edit describes an operator change to a reference. Nil fields are left alone.
type Edit struct {
	Primary   *string
	Secondary *string
	Relevance *string
}

// Apply records e against id, logs each changed field and commits.
func (f *Finalizer) Apply(id int, e Edit) (types.Reference, error) {
	ref, ok := f.Set.Get(id)
	if !ok {
		return ref, fmt.Errorf("%w: [%d]", ErrNotFound, id)
	}
	before := ref.Clone()
	if e.Primary != nil {
		ref.PrimaryURL = *e.Primary
	}
	if e.Secondary != nil {
		ref.SecondaryURL = *e.Secondary
	}
	if e.Relevance != nil {
		ref.Relevance = *e.Relevance
	}
	if ref.Status == types.StatusFinalized && ref.PrimaryURL == "" {
		return before, fmt.Errorf("%w: cannot clear the primary URL of finalized [%d]", ErrFinalizationRejected, id)
	}

	f.Set.Put(ref)
	if _, err := f.Store.Commit(f.Set); err != nil {
		f.Set.Put(before)
		return before, err
	}
	f.Audit.Change(audit.PrimaryOverride, id, before.PrimaryURL, ref.PrimaryURL)
	f.Audit.Change(audit.SecondaryOverride, id, before.SecondaryURL, ref.SecondaryURL)
	f.Audit.Change(audit.RelevanceEdit, id, before.Relevance, ref.Relevance)
	return ref, nil
}

// EditQueries replaces the queries of id by hand and commits. The reference
// regresses to Queried and must be ranked again before re-finalizing.
func (f *Finalizer) EditQueries(id int, qs []string) (types.Reference, error) {
	ref, ok := f.Set.Get(id)
	if !ok {
		return ref, fmt.Errorf("%w: [%d]", ErrNotFound, id)
	}
	before := ref.Clone()
	EditQueries(&ref, qs)
	f.Set.Put(ref)
	if _, err := f.Store.Commit(f.Set); err != nil {
		f.Set.Put(before)
		return before, err
	}
	f.Audit.Record(audit.QueriesEdit, id, zap.Strings("before", before.Queries), zap.Strings("after", ref.Queries))
	return ref, nil
}

// Save stores ref and commits.
func (f *Finalizer) Save(ref types.Reference) error {
	f.Set.Put(ref)
	_, err := f.Store.Commit(f.Set)
	return err
}
