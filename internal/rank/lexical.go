// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"strings"
	"unicode"

	"github.com/pdiddy/reference-refine/pkg/types"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "are": true, "was": true, "were": true,
	"into": true, "its": true, "our": true, "their": true, "they": true,
	"has": true, "have": true, "had": true, "not": true, "but": true,
	"how": true, "what": true, "when": true, "which": true, "who": true,
	"why": true, "about": true, "also": true, "can": true, "may": true,
	"more": true, "most": true, "than": true, "then": true, "there": true,
	"these": true, "those": true, "use": true, "used": true, "uses": true,
	"you": true, "your": true, "his": true, "her": true, "all": true,
	"any": true, "one": true, "two": true, "per": true, "via": true,
}

// Keywords returns the distinct lowercase alphanumeric tokens of text that
// are at least three characters long and not stopwords, in first-seen order.
func Keywords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range tokens(text) {
		if len(tok) < 3 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Lexical scores each candidate by how many distinct relevance keywords
// appear in its title and snippet, then sorts descending. Ties keep input
// order, so the result is deterministic for a given input.
func Lexical(relevance string, cands []types.Candidate) []types.Candidate {
	kws := Keywords(relevance)
	out := make([]types.Candidate, len(cands))
	for i, c := range cands {
		have := map[string]bool{}
		for _, tok := range tokens(c.Title + " " + c.Snippet) {
			have[tok] = true
		}
		n := 0
		for _, k := range kws {
			if have[k] {
				n++
			}
		}
		c.Score = float64(n)
		out[i] = c
	}
	sortByScore(out)
	return out
}
