package canvas

import (
	"refboard/internal/gesture"
	"refboard/pkg/geometry"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

// wheelScale converts fyne scroll deltas (10 per notch) into browser-style
// wheel deltas (100 per notch, positive when scrolling down).
const wheelScale = -10.0

// keySet translates fyne modifiers and the space-bar state into the held
// key set bindings match against.
func keySet(mod fyne.KeyModifier, space bool) gesture.KeySet {
	keys := gesture.KeySet{}
	if mod&fyne.KeyModifierShift != 0 {
		keys[gesture.KeyShift] = struct{}{}
	}
	if mod&fyne.KeyModifierControl != 0 {
		keys[gesture.KeyCtrl] = struct{}{}
	}
	if mod&fyne.KeyModifierAlt != 0 {
		keys[gesture.KeyAlt] = struct{}{}
	}
	if mod&fyne.KeyModifierSuper != 0 {
		keys[gesture.KeySuper] = struct{}{}
	}
	if space {
		keys[gesture.KeySpace] = struct{}{}
	}
	return keys
}

// mouseButton maps a fyne mouse button. Combined or unknown buttons are
// rejected.
func mouseButton(b desktop.MouseButton) (gesture.Button, bool) {
	switch b {
	case desktop.MouseButtonPrimary:
		return gesture.ButtonLeft, true
	case desktop.MouseButtonSecondary:
		return gesture.ButtonRight, true
	case desktop.MouseButtonTertiary:
		return gesture.ButtonMiddle, true
	}
	return 0, false
}

func wheelDelta(d fyne.Delta) (dx, dy float64) {
	return float64(d.DX) * wheelScale, float64(d.DY) * wheelScale
}

func point(p fyne.Position) geometry.Point2D {
	return geometry.NewPoint2D(float64(p.X), float64(p.Y))
}
