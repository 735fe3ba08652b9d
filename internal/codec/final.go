// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package codec

import (
	"sort"
	"strings"

	"github.com/pdiddy/reference-refine/pkg/types"
)

// FinalMarker terminates the header of every finalized-artifact block. It is
// distinct from FinalizedMarker so the two artifacts are never confused.
const FinalMarker = "[FINAL]"

// FinalBlock renders the clean finalized-artifact block for ref: header,
// marker, and URLs only.
func FinalBlock(ref types.Reference) string {
	lines := []string{Header(ref), FinalMarker, labeled(labelPrimary, ref.PrimaryURL)}
	if ref.SecondaryURL != "" {
		lines = append(lines, labeled(labelSecondary, ref.SecondaryURL))
	}
	return strings.Join(lines, "\n")
}

// FinalIndex is the finalized artifact keyed by reference id.
type FinalIndex struct {
	blocks map[int]string
	// Blocks without an id are kept and written after the keyed blocks.
	orphans []string
}

// ParseFinal reads finalized-artifact text. A later block for the same id
// replaces an earlier one.
func ParseFinal(text string) *FinalIndex {
	idx := &FinalIndex{blocks: make(map[int]string)}
	for _, blk := range splitBlocks(text) {
		ref, _, ok := splitHeader(blk.lines[0])
		if !ok {
			idx.orphans = append(idx.orphans, blk.text())
			continue
		}
		idx.blocks[ref.ID] = blk.text()
	}
	return idx
}

// Get returns the stored block for id.
func (f *FinalIndex) Get(id int) (string, bool) {
	b, ok := f.blocks[id]
	return b, ok
}

// Upsert stores the clean block for ref, replacing any previous block for
// the same id. It reports whether the stored text changed.
func (f *FinalIndex) Upsert(ref types.Reference) bool {
	if f.blocks == nil {
		f.blocks = make(map[int]string)
	}
	blk := FinalBlock(ref)
	if f.blocks[ref.ID] == blk {
		return false
	}
	f.blocks[ref.ID] = blk
	return true
}

// IDs returns the ids present, ascending.
func (f *FinalIndex) IDs() []int {
	ids := make([]int, 0, len(f.blocks))
	for id := range f.blocks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// String renders the finalized artifact with blocks sorted by id.
func (f *FinalIndex) String() string {
	var out []string
	for _, id := range f.IDs() {
		out = append(out, f.blocks[id])
	}
	out = append(out, f.orphans...)
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n\n") + "\n"
}

// SerializeFinal renders a finalized artifact holding every finalized
// reference in refs.
func SerializeFinal(refs []types.Reference) string {
	idx := &FinalIndex{blocks: make(map[int]string)}
	for _, r := range refs {
		if r.Status == types.StatusFinalized {
			idx.Upsert(r)
		}
	}
	return idx.String()
}
