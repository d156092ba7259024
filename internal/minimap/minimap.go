package minimap

import (
	"image"
	"image/color"
	"log/slog"
	"sync"

	"refboard/internal/board"
	"refboard/internal/clock"
	"refboard/internal/render"
	"refboard/internal/viewport"
	"refboard/pkg/geometry"

	"github.com/gogpu/gg"
)

// Appearance holds the overlay colours.
type Appearance struct {
	Background color.Color
	Item       color.Color
	Indicator  color.Color
}

// DefaultAppearance returns translucent dark colours with a white indicator.
func DefaultAppearance() Appearance {
	return Appearance{
		Background: color.NRGBA{R: 0x10, G: 0x10, B: 0x14, A: 0xd0},
		Item:       color.NRGBA{R: 0x80, G: 0x80, B: 0x8a, A: 0xff},
		Indicator:  color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}
}

// Minimap tracks the board projection and the viewport indicator. The
// indicator is recomputed from the visual transform on its own frame loop,
// independent of the bitmap renderer.
type Minimap struct {
	board     *board.Board
	committer *viewport.Committer
	loop      *render.Loop
	logger    *slog.Logger

	mu          sync.Mutex
	size        float64
	padding     float64
	appearance  Appearance
	proj        Projection
	indicator   geometry.Rect
	onIndicator []func(geometry.Rect)
}

// New creates a minimap of DefaultSize. Navigation requests go through c.
func New(b *board.Board, c *viewport.Committer, clk clock.Clock) *Minimap {
	m := &Minimap{
		board:      b,
		committer:  c,
		loop:       render.NewLoop(clk, render.FrameInterval),
		logger:     slog.New(slog.DiscardHandler),
		size:       DefaultSize,
		padding:    DefaultPadding,
		appearance: DefaultAppearance(),
	}
	m.Sync()
	return m
}

// SetLogger sets the logger.
func (m *Minimap) SetLogger(l *slog.Logger) {
	if l != nil {
		m.mu.Lock()
		m.logger = l
		m.mu.Unlock()
	}
}

// SetSize changes the overlay side length.
func (m *Minimap) SetSize(size float64) {
	if size <= 0 {
		return
	}
	m.mu.Lock()
	m.size = size
	m.mu.Unlock()
	m.Sync()
}

// SetAppearance swaps the overlay colours.
func (m *Minimap) SetAppearance(a Appearance) {
	m.mu.Lock()
	m.appearance = a
	m.mu.Unlock()
}

// Size returns the overlay side length.
func (m *Minimap) Size() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// OnIndicator registers a listener called when the indicator moves.
func (m *Minimap) OnIndicator(fn func(geometry.Rect)) {
	m.mu.Lock()
	m.onIndicator = append(m.onIndicator, fn)
	m.mu.Unlock()
}

// Start runs Sync every frame until Stop.
func (m *Minimap) Start() uint64 {
	return m.loop.Start(func() { m.Sync() })
}

// Stop ends the frame loop.
func (m *Minimap) Stop() {
	m.loop.Stop()
}

// Sync recomputes the projection and the indicator from the visual
// transform, notifying listeners when the indicator moved.
func (m *Minimap) Sync() geometry.Rect {
	store := m.committer.Store()
	visual, screen := store.Visual(), store.Size()
	items := m.board.Ordered()

	m.mu.Lock()
	m.proj = NewProjection(items, m.size, m.padding)
	ind := m.proj.Indicator(visual, screen)
	moved := ind != m.indicator
	m.indicator = ind
	listeners := m.onIndicator
	m.mu.Unlock()

	if moved {
		for _, fn := range listeners {
			fn(ind)
		}
	}
	return ind
}

// Indicator returns the last computed indicator rectangle.
func (m *Minimap) Indicator() geometry.Rect {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indicator
}

// Projection returns the last computed projection.
func (m *Minimap) Projection() Projection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proj
}

// Click centres the viewport on the world point under a minimap point.
// Dragging the indicator issues the same request on every move.
func (m *Minimap) Click(p geometry.Point2D) bool {
	proj := m.Projection()
	world := proj.ToWorld(p)
	if !m.committer.NavigateTo(world) {
		m.logger.Debug("minimap: navigate rejected", "x", world.X, "y", world.Y)
		return false
	}
	m.Sync()
	return true
}

// Draw rasterizes the overlay: item boxes and the indicator outline.
func (m *Minimap) Draw() image.Image {
	ind := m.Sync()
	items := m.board.Ordered()

	m.mu.Lock()
	proj, app := m.proj, m.appearance
	m.mu.Unlock()

	side := int(proj.Size)
	if side <= 0 {
		return nil
	}
	dc := gg.NewContext(side, side)
	defer func() { _ = dc.Close() }()
	dc.ClearWithColor(gg.FromColor(app.Background))

	dc.SetColor(app.Item)
	for _, it := range items {
		if m.board.Hidden.Has(it.ID) {
			continue
		}
		r := proj.Rect(it.Extent())
		dc.DrawRectangle(r.X, r.Y, max(r.Width, 1), max(r.Height, 1))
	}
	_ = dc.Fill()

	dc.SetColor(app.Indicator)
	dc.SetLineWidth(1.5)
	dc.DrawRectangle(ind.X, ind.Y, ind.Width, ind.Height)
	_ = dc.Stroke()
	return dc.Image()
}
