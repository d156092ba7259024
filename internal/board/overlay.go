package board

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"slices"
	"sync"

	"refboard/pkg/geometry"
)

// Ghosts is the position-override table a drag collaborator writes while
// it moves items outside authoritative state. The renderer only reads it.
type Ghosts struct {
	mu  sync.RWMutex
	pos map[string]geometry.Point2D
}

// NewGhosts creates an empty table.
func NewGhosts() *Ghosts {
	return &Ghosts{pos: make(map[string]geometry.Point2D)}
}

// Set records the live position of a dragged item.
func (g *Ghosts) Set(id string, p geometry.Point2D) {
	g.mu.Lock()
	g.pos[id] = p
	g.mu.Unlock()
}

// Clear removes the override for id.
func (g *Ghosts) Clear(id string) {
	g.mu.Lock()
	delete(g.pos, id)
	g.mu.Unlock()
}

// ClearAll removes every override.
func (g *Ghosts) ClearAll() {
	g.mu.Lock()
	clear(g.pos)
	g.mu.Unlock()
}

// Get returns the override for id, if any.
func (g *Ghosts) Get(id string) (geometry.Point2D, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.pos[id]
	return p, ok
}

// Resolve returns the item at its effective position.
func (g *Ghosts) Resolve(it Item) Item {
	if p, ok := g.Get(it.ID); ok {
		return it.At(p)
	}
	return it
}

// Signature hashes the table so per-frame change detection stays cheap.
func (g *Ghosts) Signature() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h := fnv.New64a()
	var buf [8]byte
	for _, id := range sortedKeys(g.pos) {
		h.Write([]byte(id))
		p := g.pos[id]
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.X))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.Y))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// IDSet is a concurrency-safe set of item ids, used for selection and
// for items hidden from the bitmap layer.
type IDSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewIDSet creates a set holding ids.
func NewIDSet(ids ...string) *IDSet {
	s := &IDSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Replace swaps the set contents for ids.
func (s *IDSet) Replace(ids ...string) {
	s.mu.Lock()
	clear(s.ids)
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	s.mu.Unlock()
}

// Add inserts id.
func (s *IDSet) Add(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

// Remove deletes id.
func (s *IDSet) Remove(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Has reports whether id is in the set.
func (s *IDSet) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of ids.
func (s *IDSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the members in sorted order.
func (s *IDSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.ids)
}

// Signature hashes the membership.
func (s *IDSet) Signature() uint64 {
	h := fnv.New64a()
	for _, id := range s.IDs() {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
