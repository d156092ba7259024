// Package minimap projects the whole board into a small square overlay and
// keeps a viewport indicator glued to the visual transform.
package minimap

import (
	"refboard/internal/board"
	"refboard/internal/viewport"
	"refboard/pkg/geometry"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// DefaultSize is the overlay side length in screen pixels.
	DefaultSize = 200.0
	// DefaultPadding is added around the item bounds in world units.
	DefaultPadding = 200.0
)

// Projection maps world space onto a size×size square.
type Projection struct {
	Bounds geometry.Rect
	Size   float64
}

// NewProjection computes the world bounds of items, grows them by padding
// and squares them about their centre so the indicator is never skewed.
// An empty board projects a padding-sized square around the origin.
func NewProjection(items []board.Item, size, padding float64) Projection {
	var (
		box   r2.Box
		found bool
	)
	for _, it := range items {
		b := it.Extent()
		if !b.IsFinite() {
			continue
		}
		if !found {
			box, found = b.Box(), true
			continue
		}
		box = geometry.UnionBox(box, b.Box())
	}
	bounds := geometry.RectFromBox(box).Expand(padding)
	return Projection{Bounds: square(bounds), Size: size}
}

func square(r geometry.Rect) geometry.Rect {
	side := max(r.Width, r.Height)
	c := r.Center()
	return geometry.NewRect(c.X-side/2, c.Y-side/2, side, side)
}

func (p Projection) factor() float64 {
	if p.Bounds.Width <= 0 {
		return 0
	}
	return p.Size / p.Bounds.Width
}

// ToMinimap projects a world point into minimap space.
func (p Projection) ToMinimap(world geometry.Point2D) geometry.Point2D {
	return world.Sub(p.Bounds.TopLeft()).Scale(p.factor())
}

// ToWorld is the inverse of ToMinimap.
func (p Projection) ToWorld(m geometry.Point2D) geometry.Point2D {
	f := p.factor()
	if f == 0 {
		return p.Bounds.TopLeft()
	}
	return m.Scale(1 / f).Add(p.Bounds.TopLeft())
}

// Rect projects a world rectangle.
func (p Projection) Rect(world geometry.Rect) geometry.Rect {
	tl := p.ToMinimap(world.TopLeft())
	f := p.factor()
	return geometry.NewRect(tl.X, tl.Y, world.Width*f, world.Height*f)
}

// Indicator returns the viewport indicator for a transform and screen size.
func (p Projection) Indicator(t viewport.Transform, screen geometry.Size) geometry.Rect {
	return p.Rect(t.WorldRect(screen))
}
