package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"refboard/pkg/geometry"
)

// ErrDuplicateID is returned when two items share an id.
var ErrDuplicateID = errors.New("board: duplicate item id")

// Board is the item set the engine renders and hit-tests, together with
// the selection, hidden set and ghost table that accompany it.
type Board struct {
	mu    sync.RWMutex
	items []Item
	index map[string]int

	Selected *IDSet
	Hidden   *IDSet
	Ghosts   *Ghosts
}

// New creates an empty board.
func New() *Board {
	return &Board{
		index:    make(map[string]int),
		Selected: NewIDSet(),
		Hidden:   NewIDSet(),
		Ghosts:   NewGhosts(),
	}
}

// SetItems replaces the item set. Ids must be unique.
func (b *Board) SetItems(items []Item) error {
	index := make(map[string]int, len(items))
	for i, it := range items {
		if _, dup := index[it.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateID, it.ID)
		}
		index[it.ID] = i
	}
	cp := slices.Clone(items)
	b.mu.Lock()
	b.items = cp
	b.index = index
	b.mu.Unlock()
	return nil
}

// Items returns a copy of the items in insertion order.
func (b *Board) Items() []Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.items)
}

// Len returns the number of items.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Item returns the item with the given id.
func (b *Board) Item(id string) (Item, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[id]
	if !ok {
		return Item{}, false
	}
	return b.items[i], true
}

// ItemBounds returns the current world bounds of id, honouring any ghost
// position. It is the default item-position query for fit-to-item.
func (b *Board) ItemBounds(id string) (geometry.Rect, bool) {
	it, ok := b.Item(id)
	if !ok {
		return geometry.Rect{}, false
	}
	return b.Ghosts.Resolve(it).Extent(), true
}

// Ordered returns the items at their effective positions in paint order.
func (b *Board) Ordered() []Item {
	items := b.Items()
	for i := range items {
		items[i] = b.Ghosts.Resolve(items[i])
	}
	DrawOrder(items, b.Selected.Has)
	return items
}

// HitTest returns the top-most item whose bounds contain the world point,
// using the same ordering as drawing.
func (b *Board) HitTest(p geometry.Point2D) (string, bool) {
	items := b.Ordered()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Contains(p) {
			return items[i].ID, true
		}
	}
	return "", false
}

// Intersecting returns the ids of items whose bounds overlap r, in paint order.
func (b *Board) Intersecting(r geometry.Rect) []string {
	var ids []string
	for _, it := range b.Ordered() {
		if it.Overlaps(r) {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// Fixture is the JSON document the headless tools and the desktop viewer
// open. It is not the application's save format.
type Fixture struct {
	Items    []Item   `json:"items"`
	Selected []string `json:"selected,omitempty"`
	View     *View    `json:"view,omitempty"`
}

// View is an optional starting transform stored in a fixture.
type View struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// ReadFixture decodes a fixture.
func ReadFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("board: parse fixture: %w", err)
	}
	return f, nil
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("board: open %s: %w", path, err)
	}
	defer file.Close()
	return ReadFixture(file)
}

// ResolveSources makes relative file sources relative to dir. URLs,
// file:// paths, absolute paths and asset ids are left alone.
func (f *Fixture) ResolveSources(dir string) {
	for i := range f.Items {
		src := f.Items[i].Source
		if src == "" || filepath.IsAbs(src) || strings.Contains(src, "://") {
			continue
		}
		f.Items[i].Source = filepath.Join(dir, src)
	}
}

// Apply loads the fixture's items and selection into b.
func (f Fixture) Apply(b *Board) error {
	if err := b.SetItems(f.Items); err != nil {
		return err
	}
	b.Selected.Replace(f.Selected...)
	return nil
}
