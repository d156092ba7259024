// Package viewport implements the world-to-screen transform, the dual
// visual/authoritative transform store, and the committer that turns
// continuous gesture deltas into debounced authoritative commits.
package viewport

import (
	"errors"
	"math"
	"time"

	"refboard/pkg/geometry"
)

const (
	// MinScale is the lower zoom bound for every path.
	MinScale = 0.01
	// MaxScale bounds wheel zoom, fit-to-item and discrete zoom commands.
	MaxScale = 5.0
	// MaxDragScale bounds constant-rate drag zoom.
	MaxDragScale = 30.0

	// WheelStep converts wheel deltaY into a scale change.
	WheelStep = -0.001
	// DragZoomStep converts horizontal pointer movement into a scale change.
	DragZoomStep = 0.0035

	// SettleWindow is the debounce window for wheel zoom and pan commits.
	SettleWindow = 100 * time.Millisecond
	// LiveInterval throttles live viewport notifications during pan.
	LiveInterval = 16 * time.Millisecond

	// DefaultFitPadding is the screen padding used by fit-to-item.
	DefaultFitPadding = 40.0

	// minDivisor keeps anchor-preserving zoom away from division by zero.
	minDivisor = 1e-9
)

var (
	// ErrNonFinite reports a computed transform with NaN or infinite fields.
	ErrNonFinite = errors.New("viewport: non-finite transform")
	// ErrDegenerate reports an input that cannot produce a transform, such
	// as a zero scale or empty bounds.
	ErrDegenerate = errors.New("viewport: degenerate input")
)

// Transform maps world coordinates to screen coordinates:
// screen = world*Scale + (X, Y).
type Transform struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// Identity returns the unit transform.
func Identity() Transform {
	return Transform{Scale: 1}
}

// Valid reports whether the transform is finite with a positive scale.
func (t Transform) Valid() bool {
	return !math.IsNaN(t.X) && !math.IsInf(t.X, 0) &&
		!math.IsNaN(t.Y) && !math.IsInf(t.Y, 0) &&
		!math.IsNaN(t.Scale) && !math.IsInf(t.Scale, 0) &&
		t.Scale > 0
}

// Position returns the translation as a point.
func (t Transform) Position() geometry.Point2D {
	return geometry.NewPoint2D(t.X, t.Y)
}

// ToScreen maps a world point to screen space.
func (t Transform) ToScreen(p geometry.Point2D) geometry.Point2D {
	return p.Scale(t.Scale).Add(t.Position())
}

// ToWorld maps a screen point to world space.
func (t Transform) ToWorld(p geometry.Point2D) geometry.Point2D {
	s := math.Max(t.Scale, minDivisor)
	return p.Sub(t.Position()).Scale(1 / s)
}

// WorldRect returns the world-space rectangle visible in a viewport of size.
func (t Transform) WorldRect(size geometry.Size) geometry.Rect {
	tl := t.ToWorld(geometry.Point2D{})
	s := math.Max(t.Scale, minDivisor)
	return geometry.NewRect(tl.X, tl.Y, size.Width/s, size.Height/s)
}

// ZoomAt returns the transform at newScale that keeps the world point under
// the screen anchor fixed.
func (t Transform) ZoomAt(newScale float64, anchor geometry.Point2D) (Transform, error) {
	if t.Scale < minDivisor || newScale <= 0 {
		return t, ErrDegenerate
	}
	ratio := newScale / t.Scale
	pos := anchor.Sub(anchor.Sub(t.Position()).Scale(ratio))
	next := Transform{X: pos.X, Y: pos.Y, Scale: newScale}
	if !next.Valid() {
		return t, ErrNonFinite
	}
	return next, nil
}

// ClampScale bounds s to [MinScale, upper]. NaN maps to MinScale.
func ClampScale(s, upper float64) float64 {
	if math.IsNaN(s) || s < MinScale {
		return MinScale
	}
	if s > upper {
		return upper
	}
	return s
}

// Fit returns the transform that shows bounds centred in a viewport of
// size with padding screen pixels on every side.
func Fit(bounds geometry.Rect, size geometry.Size, padding float64) (Transform, error) {
	if !bounds.IsFinite() || bounds.Width <= 0 || bounds.Height <= 0 || size.Empty() {
		return Transform{}, ErrDegenerate
	}
	scale := math.Min(
		(size.Width-2*padding)/bounds.Width,
		(size.Height-2*padding)/bounds.Height,
	)
	return CenterOn(bounds.Center(), size, ClampScale(scale, MaxScale))
}

// CenterOn returns the transform at scale that puts the world point at the
// centre of a viewport of size.
func CenterOn(world geometry.Point2D, size geometry.Size, scale float64) (Transform, error) {
	if !world.IsFinite() {
		return Transform{}, ErrNonFinite
	}
	next := Transform{
		X:     size.Width/2 - world.X*scale,
		Y:     size.Height/2 - world.Y*scale,
		Scale: scale,
	}
	if !next.Valid() {
		return Transform{}, ErrNonFinite
	}
	return next, nil
}
