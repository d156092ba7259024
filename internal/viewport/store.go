package viewport

import (
	"sync"

	"refboard/pkg/geometry"
)

// Store holds the two transforms. The visual transform is what rendering
// surfaces show right now; the committed transform is what consumers
// outside the gesture path treat as current. Only the Committer writes.
type Store struct {
	mu        sync.RWMutex
	visual    Transform
	committed Transform
	size      geometry.Size
}

// NewStore creates a store with both transforms set to initial.
func NewStore(initial Transform) *Store {
	if !initial.Valid() {
		initial = Identity()
	}
	return &Store{visual: initial, committed: initial}
}

// Visual returns the live transform.
func (s *Store) Visual() Transform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visual
}

// Committed returns the authoritative transform.
func (s *Store) Committed() Transform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

// Size returns the viewport size in screen pixels.
func (s *Store) Size() geometry.Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// SetSize records the viewport size.
func (s *Store) SetSize(size geometry.Size) {
	s.mu.Lock()
	s.size = size
	s.mu.Unlock()
}

// InSync reports whether visual and committed transforms are equal.
func (s *Store) InSync() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visual == s.committed
}

func (s *Store) setVisual(t Transform) {
	s.mu.Lock()
	s.visual = t
	s.mu.Unlock()
}

// commit copies the visual transform into the committed one and reports
// whether anything changed.
func (s *Store) commit() (Transform, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed == s.visual {
		return s.committed, false
	}
	s.committed = s.visual
	return s.committed, true
}

func (s *Store) setBoth(t Transform) {
	s.mu.Lock()
	s.visual = t
	s.committed = t
	s.mu.Unlock()
}
