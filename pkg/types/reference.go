// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the reference refinement
// pipeline: references and their ranked candidates, orchestrator checkpoints,
// and configuration.
package types

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a single reference.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusQueried   Status = "queried"
	StatusRanked    Status = "ranked"
	StatusFinalized Status = "finalized"
)

// ParseStatus converts a user-supplied status name to a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusQueried, StatusRanked, StatusFinalized:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q (want draft, queried, ranked, or finalized)", s)
	}
}

// LineSet records which optional labeled lines a block carried when it was
// parsed, so that re-serialization does not add lines the operator never wrote.
type LineSet uint8

const (
	LineRelevance LineSet = 1 << iota
	LinePrimaryURL
	LineSecondaryURL
)

// Has reports whether every line in o is present in s.
func (s LineSet) Has(o LineSet) bool { return s&o == o }

// Reference is one bibliographic entry in the working artifact.
type Reference struct {
	// ID is stable and unique within the working artifact. It is never reused.
	ID int `json:"id" yaml:"id"`

	Author    string `json:"author,omitempty" yaml:"author,omitempty"`
	Year      string `json:"year,omitempty" yaml:"year,omitempty"`
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	Container string `json:"container,omitempty" yaml:"container,omitempty"`

	// Identifiers recognised inside the container segment of the header.
	// They are derived on parse and never written as separate lines.
	ISBN    string `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	DOI     string `json:"doi,omitempty" yaml:"doi,omitempty"`
	Volume  string `json:"volume,omitempty" yaml:"volume,omitempty"`
	Issue   string `json:"issue,omitempty" yaml:"issue,omitempty"`
	Pages   string `json:"pages,omitempty" yaml:"pages,omitempty"`
	Edition string `json:"edition,omitempty" yaml:"edition,omitempty"`

	// Relevance is the operator's free-text narrative of why the work is cited.
	Relevance string `json:"relevance,omitempty" yaml:"relevance,omitempty"`

	PrimaryURL   string `json:"primary_url,omitempty" yaml:"primary_url,omitempty"`
	SecondaryURL string `json:"secondary_url,omitempty" yaml:"secondary_url,omitempty"`

	// Queries are kept in insertion order; later queries refine earlier ones.
	Queries []string `json:"queries,omitempty" yaml:"queries,omitempty"`

	// Candidates holds the most recent ranking only.
	Candidates []Candidate `json:"candidates,omitempty" yaml:"candidates,omitempty"`

	Status Status `json:"status" yaml:"status"`

	// RawLine is the header line exactly as read from the working artifact.
	RawLine string `json:"raw_line" yaml:"raw_line"`

	// Notes is the per-reference debug and audit trail.
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`

	// Extra holds block lines the codec does not recognise, in source order.
	Extra []ExtraLine `json:"extra,omitempty" yaml:"extra,omitempty"`

	Lines LineSet `json:"-" yaml:"-"`
}

// Clone returns a deep copy of r.
func (r Reference) Clone() Reference {
	c := r
	c.Queries = append([]string(nil), r.Queries...)
	c.Candidates = append([]Candidate(nil), r.Candidates...)
	c.Notes = append([]string(nil), r.Notes...)
	c.Extra = append([]ExtraLine(nil), r.Extra...)
	return c
}

// AddNote appends a note to the reference's audit trail.
func (r *Reference) AddNote(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// ExtraLine is an unrecognised block line. After names the labeled line it
// followed ("" for the header), so it is written back in the same place.
type ExtraLine struct {
	After string `json:"after,omitempty" yaml:"after,omitempty"`
	Text  string `json:"text" yaml:"text"`
}

// Candidate is one retrieved or ranked search hit for a reference.
type Candidate struct {
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Snippet string `json:"snippet,omitempty" yaml:"snippet,omitempty"`
	URL     string `json:"url" yaml:"url"`

	// Score is assigned by the ranker. Higher is better.
	Score float64 `json:"score" yaml:"score"`

	// RankPosition is the 1-based position after ranking.
	RankPosition int `json:"rank_position" yaml:"rank_position"`

	// QueryIndex is the index of the query that first produced this URL.
	QueryIndex int `json:"query_index" yaml:"query_index"`

	// Source names the search backend that returned the hit.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}
