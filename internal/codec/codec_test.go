// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/reference-refine/pkg/types"
)

const sampleWorking = `[1] Newport, C. (2016). Deep Work: Rules for Focused Success. Grand Central Publishing.
Relevance: argues that concentration is a competitive skill
Custom: keep me here
Primary URL: https://www.hachettebookgroup.com/titles/cal-newport/deep-work/9781455586691/
Secondary URL:
Q: "Deep Work" Newport 2016
Q: Newport deep work focused success book

[2] Kahneman, D. (2011). Thinking, Fast and Slow. Farrar, Straus and Giroux.
[FINALIZED]
Relevance: dual-process theory background
Primary URL: https://us.macmillan.com/books/9780374533557
Secondary URL: https://archive.org/details/thinkingfastslow
Q: Kahneman thinking fast and slow
Candidate: 1 | 5 | 0 | https://us.macmillan.com/books/9780374533557 | Thinking, Fast and Slow
Candidate: 2 | 3 | 0 | https://archive.org/details/thinkingfastslow | Thinking fast and slow archive
Note: rank fell back to keyword overlap

[3] Simon, H. A. (1971). Designing organizations for an information-rich world. In M. Greenberger (Ed.), Computers, Communication, and the Public Interest, pp. 37-72.
Relevance: attention scarcity quote
Reviewer: check the edition
`

// --- Round trip ---

func TestRoundTrip(t *testing.T) {
	doc, issues := Parse(sampleWorking)
	require.Empty(t, issues)
	require.Len(t, doc.References, 3)

	assert.Equal(t, sampleWorking, SerializeDocument(doc))
}

func TestRoundTripKeepsUnknownLinesInPlace(t *testing.T) {
	in := `[8] A, B. (2000). Title. Pub.
# operator comment under the header
Relevance: x
Custom: keep me here
Primary URL: https://a.example/x
Q: first
See also: [9]
Q: second
Note: n
trailing text`
	doc, issues := Parse(in + "\n")
	require.Empty(t, issues)
	r := doc.References[0]
	require.Len(t, r.Extra, 4)
	assert.Equal(t, types.ExtraLine{After: "Relevance", Text: "Custom: keep me here"}, r.Extra[1])
	assert.Equal(t, in+"\n", SerializeDocument(doc))

	// Anchors survive edits to the surrounding lines.
	r.Relevance = "changed"
	r.Queries = append(r.Queries, "third")
	out := FormatBlock(r)
	assert.Contains(t, out, "Relevance: changed\nCustom: keep me here\nPrimary URL:")
	assert.Contains(t, out, "Q: first\nSee also: [9]\nQ: second\nQ: third")

	// Extras whose anchor disappeared are written last.
	r.Queries = nil
	r.Notes = nil
	out = FormatBlock(r)
	assert.True(t, strings.HasSuffix(out, "See also: [9]\ntrailing text"), out)
}

func TestRoundTripNormalizesBlankLines(t *testing.T) {
	in := "\n\n[5] Ames, B. (2000). Title. Pub.\r\nRelevance: r\n\n\n\n[6] Dunn, E. (2001). Other. Pub.\n"
	doc, _ := Parse(in)
	want := "[5] Ames, B. (2000). Title. Pub.\nRelevance: r\n\n[6] Dunn, E. (2001). Other. Pub.\n"
	assert.Equal(t, want, SerializeDocument(doc))

	again, _ := Parse(want)
	assert.Equal(t, want, SerializeDocument(again))
}

// --- Header fields ---

func TestParseHeaderFields(t *testing.T) {
	doc, _ := Parse(sampleWorking)
	r := doc.References[0]
	assert.Equal(t, 1, r.ID)
	assert.Equal(t, "Newport, C.", r.Author)
	assert.Equal(t, "2016", r.Year)
	assert.Equal(t, "Deep Work: Rules for Focused Success", r.Title)
	assert.Equal(t, "Grand Central Publishing", r.Container)

	s := doc.References[2]
	assert.Equal(t, "Simon, H. A.", s.Author)
	assert.Equal(t, "Designing organizations for an information-rich world", s.Title)
	assert.Equal(t, "37-72", s.Pages)
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		name, tail, title, container string
	}{
		{"plain", "Deep Work. Acme Press.", "Deep Work", "Acme Press"},
		{"question keeps terminator", "Why Nations Fail? Crown.", "Why Nations Fail?", "Crown"},
		{"initials are not boundaries", "U.S. Policy in Asia. Brookings.", "U.S. Policy in Asia", "Brookings"},
		{"no container", "Deep Work.", "Deep Work", ""},
		{"abbreviated journal", "On attention. J. Appl. Psych., 12(3), 45-67.", "On attention", "J. Appl. Psych., 12(3), 45-67"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, container := splitTitle(tt.tail)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.container, container)
		})
	}
}

func TestExtractIdentifiers(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		check     func(t *testing.T, r types.Reference)
	}{
		{
			name:   "doi and volume issue pages",
			header: "[7] Lee, K. (2020). A study. Journal of Things, 12(3), 45-67. https://doi.org/10.1000/xyz123.",
			check: func(t *testing.T, r types.Reference) {
				assert.Equal(t, "10.1000/xyz123", r.DOI)
				assert.Equal(t, "12", r.Volume)
				assert.Equal(t, "3", r.Issue)
				assert.Equal(t, "45-67", r.Pages)
			},
		},
		{
			name:   "isbn and edition",
			header: "[8] Knuth, D. (1997). The Art of Computer Programming. Addison-Wesley, 3rd ed., ISBN 978-0-201-89683-1.",
			check: func(t *testing.T, r types.Reference) {
				assert.Equal(t, "978-0-201-89683-1", r.ISBN)
				assert.Equal(t, "3rd", r.Edition)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, issues := Parse(tt.header + "\n")
			require.Empty(t, issues)
			require.Len(t, doc.References, 1)
			tt.check(t, doc.References[0])
		})
	}
}

// --- Malformed input ---

func TestParseNeverUsesPlaceholderTitle(t *testing.T) {
	in := `[10] Some text without a year segment
Relevance: still useful

[11] "Quoted Title Only" and nothing else
`
	doc, issues := Parse(in)
	require.Len(t, doc.References, 2)
	require.Len(t, issues, 2)

	assert.Empty(t, doc.References[0].Title)
	assert.Empty(t, doc.References[0].Author)
	assert.Equal(t, "still useful", doc.References[0].Relevance)
	assert.Equal(t, "[10] Some text without a year segment", issues[0].Raw)

	assert.Equal(t, "Quoted Title Only", doc.References[1].Title)

	for _, r := range doc.References {
		assert.NotContains(t, strings.ToLower(r.Title), "untitled")
	}
	assert.Equal(t, in, SerializeDocument(doc))
}

func TestParseOrphanBlockIsPreserved(t *testing.T) {
	in := `[1] A, B. (2000). First. Pub.

this block has no id
it has two lines

[2] C, D. (2001). Second. Pub.
`
	doc, issues := Parse(in)
	require.Len(t, issues, 1)
	assert.Equal(t, "this block has no id\nit has two lines", issues[0].Raw)
	assert.Len(t, doc.References, 2)
	require.Len(t, doc.Orphans, 1)
	assert.Equal(t, 1, doc.Orphans[0].Before)
	assert.Equal(t, in, SerializeDocument(doc))
}

func TestParseDuplicateIDKeepsFirst(t *testing.T) {
	in := "[3] A, B. (2000). First. Pub.\n\n[3] C, D. (2001). Second. Pub.\n"
	doc, issues := Parse(in)
	require.Len(t, doc.References, 1)
	assert.Equal(t, "First", doc.References[0].Title)
	require.Len(t, issues, 1)
	assert.Equal(t, 3, issues[0].ID)
	assert.Equal(t, in, SerializeDocument(doc))
}

func TestParseMalformedCandidateIsKept(t *testing.T) {
	in := "[4] A, B. (2000). T. P.\nCandidate: not a candidate\n"
	doc, issues := Parse(in)
	require.Len(t, issues, 1)
	assert.Equal(t, types.StatusDraft, doc.References[0].Status)
	assert.Equal(t, in, SerializeDocument(doc))
}

// --- Status ---

func TestDerivedStatus(t *testing.T) {
	doc, _ := Parse(sampleWorking)
	assert.Equal(t, types.StatusQueried, doc.References[0].Status)
	assert.Equal(t, types.StatusFinalized, doc.References[1].Status)
	assert.Equal(t, types.StatusDraft, doc.References[2].Status)
}

func TestFinalizedMarkerWithoutPrimaryIsDemoted(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want types.Status
	}{
		{"marker line", "[1] Smith, J. (2019). Deep Work. Acme Press.\n[FINALIZED]\nRelevance: x\n", types.StatusDraft},
		{"marker with empty primary", "[1] Smith, J. (2019). Deep Work. Acme Press.\n[FINALIZED]\nPrimary URL:\nQ: deep work\n", types.StatusQueried},
		{"legacy flag", "[1] Smith, J. (2019). Deep Work. Acme Press. FLAGS[FINALIZED]\n", types.StatusDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, issues := Parse(tt.in)
			require.Len(t, doc.References, 1)
			require.Len(t, issues, 1)
			assert.Equal(t, 1, issues[0].ID)
			assert.Contains(t, issues[0].Reason, "without a primary URL")
			assert.Equal(t, tt.want, doc.References[0].Status)
			assert.NotContains(t, SerializeDocument(doc), FinalizedMarker)
		})
	}
}

func TestLegacyInlineTokens(t *testing.T) {
	in := "[9] A, B. (2000). Title. Pub. FLAGS[FINALIZED] PRIMARY_URL[https://a.example/x] SECONDARY_URL[https://b.example/y]\n"
	doc, _ := Parse(in)
	r := doc.References[0]
	assert.Equal(t, types.StatusFinalized, r.Status)
	assert.Equal(t, "https://a.example/x", r.PrimaryURL)
	assert.Equal(t, "https://b.example/y", r.SecondaryURL)
	assert.Equal(t, "Pub", r.Container)

	want := "[9] A, B. (2000). Title. Pub.\n[FINALIZED]\nPrimary URL: https://a.example/x\nSecondary URL: https://b.example/y\n"
	assert.Equal(t, want, Serialize(doc.References))
}

// --- Header regeneration ---

func TestHeaderRebuiltWhenFieldsChange(t *testing.T) {
	doc, _ := Parse("[42]   Smith, J. (2019). Deep Work. Acme Press.\n")
	r := doc.References[0]
	assert.Equal(t, "[42]   Smith, J. (2019). Deep Work. Acme Press.", Header(r))

	r.Title = "Deep Work, Revised"
	assert.Equal(t, "[42] Smith, J. (2019). Deep Work, Revised. Acme Press.", Header(r))
}

func TestHeaderForNewReference(t *testing.T) {
	r := types.Reference{ID: 12, Author: "Doe, J.", Year: "2024", Title: "Is It Done?", Container: "Press"}
	assert.Equal(t, "[12] Doe, J. (2024). Is It Done? Press.", Header(r))
}

func TestCitation(t *testing.T) {
	r := types.Reference{ID: 12, Author: "Doe, J.", Year: "2020", Title: "A Book", Container: "Press"}
	assert.Equal(t, "Doe, J. (2020). A Book. Press.", Citation(r))

	doc, _ := Parse("[42]   Smith, J. (2019). Deep Work. Acme Press.\n")
	assert.Equal(t, "Smith, J. (2019). Deep Work. Acme Press.", Citation(doc.References[0]))
}

// --- Scenario ---

func TestScenarioDraftReference(t *testing.T) {
	doc, issues := Parse("[42] Smith, J. (2019). Deep Work. Acme Press.\nRelevance: foundational text\n")
	require.Empty(t, issues)
	r := doc.References[0]
	assert.Equal(t, types.StatusDraft, r.Status)
	assert.Empty(t, r.PrimaryURL)
	assert.Equal(t, "Deep Work", r.Title)
	assert.Equal(t, "foundational text", r.Relevance)
}
