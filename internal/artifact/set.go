// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package artifact

import (
	"sync"

	"github.com/pdiddy/reference-refine/internal/codec"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// Set is the in-memory working artifact. It is safe for concurrent use;
// every accessor returns copies.
type Set struct {
	mu    sync.RWMutex
	doc   codec.Document
	index map[int]int
}

// NewSet wraps a parsed document.
func NewSet(doc codec.Document) *Set {
	s := &Set{doc: doc, index: make(map[int]int, len(doc.References))}
	for i, r := range doc.References {
		s.index[r.ID] = i
	}
	return s
}

// NewSetFromRefs builds a Set with no orphan blocks.
func NewSetFromRefs(refs ...types.Reference) *Set {
	return NewSet(codec.Document{References: refs})
}

// Len returns the number of references.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doc.References)
}

// Get returns a copy of the reference with id.
func (s *Set) Get(id int) (types.Reference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return types.Reference{}, false
	}
	return s.doc.References[i].Clone(), true
}

// Put replaces the reference with the same id, or appends it.
func (s *Set) Put(ref types.Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[ref.ID]; ok {
		s.doc.References[i] = ref.Clone()
		return
	}
	s.index[ref.ID] = len(s.doc.References)
	s.doc.References = append(s.doc.References, ref.Clone())
}

// Add assigns ref the next unused id, appends it and returns the id.
func (s *Set) Add(ref types.Reference) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref.ID = s.nextID()
	s.index[ref.ID] = len(s.doc.References)
	s.doc.References = append(s.doc.References, ref.Clone())
	return ref.ID
}

// NextID returns one more than the largest id present.
func (s *Set) NextID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID()
}

func (s *Set) nextID() int {
	top := 0
	for id := range s.index {
		top = max(top, id)
	}
	return top + 1
}

// IDs returns ids in document order.
func (s *Set) IDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, len(s.doc.References))
	for i, r := range s.doc.References {
		ids[i] = r.ID
	}
	return ids
}

// References returns copies of all references in document order.
func (s *Set) References() []types.Reference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneRefs()
}

// Finalized returns copies of the finalized references.
func (s *Set) Finalized() []types.Reference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Reference
	for _, r := range s.doc.References {
		if r.Status == types.StatusFinalized {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Document returns a copy of the document, orphans included.
func (s *Set) Document() codec.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return codec.Document{
		References: s.cloneRefs(),
		Orphans:    append([]codec.Orphan(nil), s.doc.Orphans...),
	}
}

func (s *Set) cloneRefs() []types.Reference {
	out := make([]types.Reference, len(s.doc.References))
	for i, r := range s.doc.References {
		out[i] = r.Clone()
	}
	return out
}
