// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package codec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/reference-refine/pkg/types"
)

var (
	headerRe = regexp.MustCompile(`^\[(\d+)\]\s*(.*)$`)
	yearRe   = regexp.MustCompile(`\((\d{4}[a-z]?|n\.d\.)\)`)
	quotedRe = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)
	initRe   = regexp.MustCompile(`^(?:[A-Za-z]\.)+$`)

	// Inline tokens from the single-line legacy format, e.g.
	// "FLAGS[FINALIZED] PRIMARY_URL[https://...]".
	legacyRe = regexp.MustCompile(`\s*(FLAGS|PRIMARY_URL|SECONDARY_URL|TERTIARY_URL)\[([^\]]*)\]`)

	doiRe       = regexp.MustCompile(`(?i)(?:doi:\s*|https?://(?:dx\.)?doi\.org/)(10\.\d{4,9}/\S+)`)
	isbnRe      = regexp.MustCompile(`(?i)\bISBN(?:-1[03])?:?\s*([0-9][0-9Xx-]{8,16}[0-9Xx])`)
	volIssueRe  = regexp.MustCompile(`\b(\d+)\s*\((\d+(?:[-–]\d+)?)\)(?:,\s*(\d+\s*[-–]\s*\d+))?`)
	volumeRe    = regexp.MustCompile(`(?i)\bvol(?:ume)?\.?\s*(\d+)`)
	issueRe     = regexp.MustCompile(`(?i)\b(?:no|issue)\.?\s*(\d+)`)
	pagesRe     = regexp.MustCompile(`(?i)\bpp?\.\s*(\d+(?:\s*[-–]\s*\d+)?)`)
	editionRe   = regexp.MustCompile(`(?i)\b(\d+(?:st|nd|rd|th)|revised|expanded)\s+ed(?:\.|ition\b)`)
)

// splitHeader parses a header line into the bibliographic fields of a
// reference. ok is false when the line carries no [id]. reason is set when
// the id was found but the author/year/title segments were not.
func splitHeader(line string) (ref types.Reference, reason string, ok bool) {
	m := headerRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return ref, "", false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return ref, "", false
	}
	ref.ID = id
	rest := applyLegacy(&ref, m[2])

	loc := yearRe.FindStringSubmatchIndex(rest)
	if loc == nil {
		// Recover a title only when it is unambiguously marked.
		if q := quotedRe.FindStringSubmatch(rest); q != nil {
			ref.Title = q[1] + q[2]
		}
		return ref, "header has no (year) segment", true
	}

	ref.Author = strings.TrimSpace(rest[:loc[0]])
	ref.Year = rest[loc[2]:loc[3]]
	tail := strings.TrimLeft(rest[loc[1]:], ". ")
	ref.Title, ref.Container = splitTitle(tail)
	extractIdentifiers(&ref)
	return ref, "", true
}

// applyLegacy lifts legacy inline tokens into ref and returns the header
// text with the tokens removed.
func applyLegacy(ref *types.Reference, rest string) string {
	for _, m := range legacyRe.FindAllStringSubmatch(rest, -1) {
		switch m[1] {
		case "FLAGS":
			for _, f := range strings.Fields(m[2]) {
				if f == "FINALIZED" {
					ref.Status = types.StatusFinalized
				}
			}
		case "PRIMARY_URL":
			ref.PrimaryURL = strings.TrimSpace(m[2])
		case "SECONDARY_URL":
			ref.SecondaryURL = strings.TrimSpace(m[2])
		}
	}
	return strings.TrimSpace(legacyRe.ReplaceAllString(rest, ""))
}

// splitTitle splits the text after the year into title and container at the
// first sentence boundary. A period that ends an initial ("U.S.") is not a
// boundary. A title ending in ? or ! keeps its terminator.
func splitTitle(tail string) (title, container string) {
	tail = strings.TrimSpace(tail)
	for i := 0; i < len(tail); i++ {
		c := tail[i]
		if c != '.' && c != '?' && c != '!' {
			continue
		}
		if i+1 < len(tail) && tail[i+1] != ' ' {
			continue
		}
		if c == '.' {
			word := tail[strings.LastIndexByte(tail[:i], ' ')+1 : i+1]
			if initRe.MatchString(word) && i+1 < len(tail) {
				continue
			}
			title = tail[:i]
		} else {
			title = tail[:i+1]
		}
		container = strings.TrimSuffix(strings.TrimSpace(tail[i+1:]), ".")
		return strings.TrimSpace(title), container
	}
	return strings.TrimSuffix(tail, "."), ""
}

// extractIdentifiers recognises DOI, ISBN, volume, issue, pages and edition
// in the container segment.
func extractIdentifiers(ref *types.Reference) {
	c := ref.Container
	if m := doiRe.FindStringSubmatch(c); m != nil {
		ref.DOI = strings.TrimRight(m[1], ".,;")
	}
	if m := isbnRe.FindStringSubmatch(c); m != nil {
		ref.ISBN = m[1]
	}
	if m := volIssueRe.FindStringSubmatch(c); m != nil {
		ref.Volume, ref.Issue = m[1], m[2]
		if m[3] != "" {
			ref.Pages = m[3]
		}
	}
	if ref.Volume == "" {
		if m := volumeRe.FindStringSubmatch(c); m != nil {
			ref.Volume = m[1]
		}
	}
	if ref.Issue == "" {
		if m := issueRe.FindStringSubmatch(c); m != nil {
			ref.Issue = m[1]
		}
	}
	if m := pagesRe.FindStringSubmatch(c); m != nil {
		ref.Pages = m[1]
	}
	if m := editionRe.FindStringSubmatch(c); m != nil {
		ref.Edition = m[1]
	}
}

// formatHeader renders a header line from the bibliographic fields.
func formatHeader(ref types.Reference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d]", ref.ID)
	if ref.Author != "" {
		b.WriteString(" " + ref.Author)
	}
	if ref.Year != "" {
		b.WriteString(" (" + ref.Year + ").")
	}
	if ref.Title != "" {
		b.WriteString(" " + terminate(ref.Title))
	}
	if ref.Container != "" {
		b.WriteString(" " + terminate(ref.Container))
	}
	return b.String()
}

func terminate(s string) string {
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "?") || strings.HasSuffix(s, "!") {
		return s
	}
	return s + "."
}

// Header returns the header line for ref. The original line is reused
// verbatim (minus legacy inline tokens) whenever the bibliographic fields
// still match what it parses to.
func Header(ref types.Reference) string {
	if ref.RawLine != "" {
		if orig, _, ok := splitHeader(ref.RawLine); ok && sameBibliography(orig, ref) {
			raw := strings.TrimRight(ref.RawLine, " \t")
			if legacyRe.MatchString(raw) {
				raw = strings.TrimRight(legacyRe.ReplaceAllString(raw, ""), " ")
			}
			return raw
		}
	}
	return formatHeader(ref)
}

// Citation is the header without its [id] prefix, as used when matching a
// fetched page against the cited work.
func Citation(ref types.Reference) string {
	return strings.TrimSpace(strings.TrimPrefix(Header(ref), "["+strconv.Itoa(ref.ID)+"]"))
}

func sameBibliography(a, b types.Reference) bool {
	return a.ID == b.ID &&
		a.Author == b.Author &&
		a.Year == b.Year &&
		a.Title == b.Title &&
		a.Container == b.Container
}
