// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package codec parses and serializes the line-oriented reference format used
// by the working and finalized artifacts.
//
// A working block is a header line followed by labeled lines:
//
//	[42] Smith, J. (2019). Deep Work. Acme Press.
//	[FINALIZED]
//	Relevance: foundational text
//	Primary URL: https://example.com/a
//	Secondary URL:
//	Q: "Deep Work" Smith 2019
//	Candidate: 1 | 4 | 0 | https://example.com/a | Deep Work
//	Note: ranking fell back to keyword overlap
//
// Blocks are separated by blank lines. Lines the codec does not recognise are
// carried through unchanged.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/reference-refine/pkg/types"
)

const (
	// FinalizedMarker follows the header of a finalized working entry.
	FinalizedMarker = "[FINALIZED]"

	labelRelevance = "Relevance"
	labelPrimary   = "Primary URL"
	labelSecondary = "Secondary URL"
	labelQuery     = "Q"
	labelCandidate = "Candidate"
	labelNote      = "Note"
)

// ParseIssue describes a block the codec could not fully parse. Raw holds the
// offending text verbatim.
type ParseIssue struct {
	Line   int    `json:"line"`
	ID     int    `json:"id,omitempty"`
	Reason string `json:"reason"`
	Raw    string `json:"raw"`
}

func (p ParseIssue) Error() string {
	if p.ID != 0 {
		return fmt.Sprintf("line %d: reference %d: %s", p.Line, p.ID, p.Reason)
	}
	return fmt.Sprintf("line %d: %s", p.Line, p.Reason)
}

// Orphan is a block with no usable [id]. It is written back in place so that
// operator text is never dropped.
type Orphan struct {
	// Before is the index in Document.References the block precedes.
	Before int
	Raw    string
}

// Document is the parsed working artifact.
type Document struct {
	References []types.Reference
	Orphans    []Orphan
}

// Parse reads working-artifact text. It never fails: malformed blocks are
// reported as issues and kept as orphans.
func Parse(text string) (Document, []ParseIssue) {
	var doc Document
	var issues []ParseIssue
	seen := make(map[int]bool)

	for _, blk := range splitBlocks(text) {
		ref, blockIssues, ok := parseBlock(blk)
		issues = append(issues, blockIssues...)
		if !ok {
			doc.Orphans = append(doc.Orphans, Orphan{Before: len(doc.References), Raw: blk.text()})
			continue
		}
		if seen[ref.ID] {
			issues = append(issues, ParseIssue{
				Line:   blk.start,
				ID:     ref.ID,
				Reason: "duplicate reference id; block kept verbatim",
				Raw:    blk.text(),
			})
			doc.Orphans = append(doc.Orphans, Orphan{Before: len(doc.References), Raw: blk.text()})
			continue
		}
		seen[ref.ID] = true
		doc.References = append(doc.References, ref)
	}
	return doc, issues
}

type block struct {
	start int
	lines []string
}

func (b block) text() string { return strings.Join(b.lines, "\n") }

func splitBlocks(text string) []block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []block
	var cur block
	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur.lines) > 0 {
				blocks = append(blocks, cur)
				cur = block{}
			}
			continue
		}
		if len(cur.lines) == 0 {
			cur.start = i + 1
		}
		cur.lines = append(cur.lines, strings.TrimRight(line, " \t"))
	}
	if len(cur.lines) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func parseBlock(blk block) (types.Reference, []ParseIssue, bool) {
	ref, reason, ok := splitHeader(blk.lines[0])
	if !ok {
		return ref, []ParseIssue{{
			Line:   blk.start,
			Reason: "block does not start with an [id] header",
			Raw:    blk.text(),
		}}, false
	}
	ref.RawLine = blk.lines[0]

	var issues []ParseIssue
	if reason != "" {
		issues = append(issues, ParseIssue{Line: blk.start, ID: ref.ID, Reason: reason, Raw: blk.lines[0]})
	}

	finalized := ref.Status == types.StatusFinalized
	anchor := ""
	extra := func(line string) {
		ref.Extra = append(ref.Extra, types.ExtraLine{After: anchor, Text: line})
	}
	for i, line := range blk.lines[1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == FinalizedMarker {
			finalized = true
			anchor = anchorMarker
			continue
		}
		label, value, ok := splitLabel(trimmed)
		if !ok {
			extra(line)
			continue
		}
		switch label {
		case labelRelevance:
			ref.Relevance = value
			ref.Lines |= types.LineRelevance
			anchor = label
		case labelPrimary:
			ref.PrimaryURL = value
			ref.Lines |= types.LinePrimaryURL
			anchor = label
		case labelSecondary:
			ref.SecondaryURL = value
			ref.Lines |= types.LineSecondaryURL
			anchor = label
		case labelQuery:
			if value != "" {
				ref.Queries = append(ref.Queries, value)
				anchor = nth(label, len(ref.Queries)-1)
			}
		case labelCandidate:
			c, err := parseCandidate(value)
			if err != nil {
				issues = append(issues, ParseIssue{Line: blk.start + i + 1, ID: ref.ID, Reason: err.Error(), Raw: line})
				extra(line)
				continue
			}
			ref.Candidates = append(ref.Candidates, c)
			anchor = nth(label, len(ref.Candidates)-1)
		case labelNote:
			ref.Notes = append(ref.Notes, value)
			anchor = nth(label, len(ref.Notes)-1)
		default:
			extra(line)
		}
	}

	if finalized && ref.PrimaryURL == "" {
		issues = append(issues, ParseIssue{
			Line:   blk.start,
			ID:     ref.ID,
			Reason: "finalized marker without a primary URL; status derived from content",
			Raw:    blk.lines[0],
		})
		finalized = false
	}
	ref.Status = deriveStatus(ref, finalized)
	return ref, issues, true
}

// anchorMarker is the anchor of lines that follow the finalized marker.
const anchorMarker = "marker"

// nth names the i-th occurrence of a repeatable label.
func nth(label string, i int) string { return label + "#" + strconv.Itoa(i) }

// splitLabel recognises "Label: value" for the labels the codec owns.
func splitLabel(line string) (label, value string, ok bool) {
	for _, l := range []string{labelRelevance, labelPrimary, labelSecondary, labelQuery, labelCandidate, labelNote} {
		if strings.HasPrefix(line, l+":") {
			return l, strings.TrimSpace(line[len(l)+1:]), true
		}
	}
	return "", "", false
}

func deriveStatus(ref types.Reference, finalized bool) types.Status {
	switch {
	case finalized:
		return types.StatusFinalized
	case len(ref.Candidates) > 0:
		return types.StatusRanked
	case len(ref.Queries) > 0:
		return types.StatusQueried
	default:
		return types.StatusDraft
	}
}

// parseCandidate reads "pos | score | query | url | title".
func parseCandidate(v string) (types.Candidate, error) {
	parts := strings.SplitN(v, "|", 5)
	if len(parts) < 4 {
		return types.Candidate{}, fmt.Errorf("malformed candidate line")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	pos, err := strconv.Atoi(parts[0])
	if err != nil {
		return types.Candidate{}, fmt.Errorf("candidate position: %w", err)
	}
	score, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return types.Candidate{}, fmt.Errorf("candidate score: %w", err)
	}
	qi, err := strconv.Atoi(parts[2])
	if err != nil {
		return types.Candidate{}, fmt.Errorf("candidate query index: %w", err)
	}
	c := types.Candidate{RankPosition: pos, Score: score, QueryIndex: qi, URL: parts[3]}
	if len(parts) == 5 {
		c.Title = parts[4]
	}
	if c.URL == "" {
		return types.Candidate{}, fmt.Errorf("candidate has no url")
	}
	return c, nil
}

func formatCandidate(c types.Candidate) string {
	s := fmt.Sprintf("%d | %s | %d | %s", c.RankPosition, strconv.FormatFloat(c.Score, 'g', -1, 64), c.QueryIndex, c.URL)
	if c.Title != "" {
		s += " | " + oneLine(c.Title)
	}
	return s
}

// Serialize renders references as working-artifact text.
func Serialize(refs []types.Reference) string {
	return SerializeDocument(Document{References: refs})
}

// SerializeDocument renders a document, placing orphans where they were read.
func SerializeDocument(doc Document) string {
	var blocks []string
	oi := 0
	for i, ref := range doc.References {
		for oi < len(doc.Orphans) && doc.Orphans[oi].Before <= i {
			blocks = append(blocks, doc.Orphans[oi].Raw)
			oi++
		}
		blocks = append(blocks, FormatBlock(ref))
	}
	for ; oi < len(doc.Orphans); oi++ {
		blocks = append(blocks, doc.Orphans[oi].Raw)
	}
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// FormatBlock renders one working-artifact block. Unrecognised lines are
// written after the labeled line they followed when parsed; lines whose
// anchor is gone go last.
func FormatBlock(ref types.Reference) string {
	w := blockWriter{extras: ref.Extra, placed: make([]bool, len(ref.Extra))}
	w.emit("", Header(ref))
	if ref.Status == types.StatusFinalized {
		w.emit(anchorMarker, FinalizedMarker)
	}
	if ref.Relevance != "" || ref.Lines.Has(types.LineRelevance) {
		w.emit(labelRelevance, labeled(labelRelevance, ref.Relevance))
	}
	if ref.PrimaryURL != "" || ref.Lines.Has(types.LinePrimaryURL) {
		w.emit(labelPrimary, labeled(labelPrimary, ref.PrimaryURL))
	}
	if ref.SecondaryURL != "" || ref.Lines.Has(types.LineSecondaryURL) {
		w.emit(labelSecondary, labeled(labelSecondary, ref.SecondaryURL))
	}
	for i, q := range ref.Queries {
		w.emit(nth(labelQuery, i), labeled(labelQuery, q))
	}
	for i, c := range ref.Candidates {
		w.emit(nth(labelCandidate, i), labeled(labelCandidate, formatCandidate(c)))
	}
	for i, n := range ref.Notes {
		w.emit(nth(labelNote, i), labeled(labelNote, n))
	}
	for i, x := range ref.Extra {
		if !w.placed[i] {
			w.lines = append(w.lines, x.Text)
		}
	}
	return strings.Join(w.lines, "\n")
}

type blockWriter struct {
	lines  []string
	extras []types.ExtraLine
	placed []bool
}

// emit writes line followed by every extra anchored to it.
func (w *blockWriter) emit(anchor, line string) {
	w.lines = append(w.lines, line)
	for i, x := range w.extras {
		if !w.placed[i] && x.After == anchor {
			w.lines = append(w.lines, x.Text)
			w.placed[i] = true
		}
	}
}

func labeled(label, value string) string {
	value = oneLine(value)
	if value == "" {
		return label + ":"
	}
	return label + ": " + value
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
