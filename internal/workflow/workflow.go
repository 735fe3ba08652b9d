// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow implements the reference lifecycle:
//
//	Draft -> Queried -> Ranked -> Finalized
//
// Editing queries regresses any state to Queried, and a Queried reference
// must be ranked again before it can be finalized. Finalization needs a
// primary URL and is committed to both artifacts together.
package workflow

import (
	"errors"
	"fmt"

	"github.com/pdiddy/reference-refine/pkg/types"
)

var (
	// ErrFinalizationRejected is returned when a reference has no primary URL.
	ErrFinalizationRejected = errors.New("finalization rejected")

	// ErrInvalidTransition is returned for a state change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotFound is returned for an unknown reference id.
	ErrNotFound = errors.New("reference not found")
)

// ApplyQueries stores qs on ref. A Draft reference becomes Queried; later
// states are kept, since only a manual edit regresses them.
func ApplyQueries(ref *types.Reference, qs []string) error {
	if len(qs) == 0 {
		return fmt.Errorf("%w: no queries for [%d]", ErrInvalidTransition, ref.ID)
	}
	ref.Queries = append([]string(nil), qs...)
	if ref.Status == types.StatusDraft {
		ref.Status = types.StatusQueried
	}
	return nil
}

// EditQueries replaces ref's queries by hand. The previous ranking is
// dropped and the reference returns to Queried, or to Draft when qs is
// empty.
func EditQueries(ref *types.Reference, qs []string) {
	ref.Queries = append([]string(nil), qs...)
	ref.Candidates = nil
	if len(qs) == 0 {
		ref.Status = types.StatusDraft
		return
	}
	ref.Status = types.StatusQueried
}

// ApplyRanking replaces ref's candidates with ranked and moves it to Ranked.
// A Draft reference has no queries to rank against, and a Finalized one must
// be regressed by EditQueries first.
func ApplyRanking(ref *types.Reference, ranked []types.Candidate) error {
	if len(ranked) == 0 {
		return fmt.Errorf("%w: empty ranking for [%d]", ErrInvalidTransition, ref.ID)
	}
	switch ref.Status {
	case types.StatusQueried, types.StatusRanked:
	default:
		return fmt.Errorf("%w: cannot rank [%d] in state %s", ErrInvalidTransition, ref.ID, ref.Status)
	}
	ref.Candidates = append([]types.Candidate(nil), ranked...)
	ref.Status = types.StatusRanked
	return nil
}

// Finalize marks ref Finalized. It fails with ErrFinalizationRejected, leaving
// ref unchanged, when the primary URL is empty, and with ErrInvalidTransition
// when ref is Queried. A Draft reference with an operator-chosen primary URL
// may be finalized directly. Finalizing a Finalized reference is a no-op.
func Finalize(ref *types.Reference) error {
	if ref.PrimaryURL == "" {
		return fmt.Errorf("%w: [%d] has no primary URL", ErrFinalizationRejected, ref.ID)
	}
	if ref.Status == types.StatusQueried {
		return fmt.Errorf("%w: [%d] has unranked queries; rank it before finalizing", ErrInvalidTransition, ref.ID)
	}
	ref.Status = types.StatusFinalized
	return nil
}
