package canvas

import (
	"testing"

	"refboard/internal/gesture"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

func TestKeySet(t *testing.T) {
	tests := []struct {
		mod   fyne.KeyModifier
		space bool
		want  []string
	}{
		{0, false, nil},
		{fyne.KeyModifierShift, false, []string{gesture.KeyShift}},
		{fyne.KeyModifierControl | fyne.KeyModifierAlt, false, []string{gesture.KeyCtrl, gesture.KeyAlt}},
		{fyne.KeyModifierSuper, true, []string{gesture.KeySuper, gesture.KeySpace}},
	}
	for _, tt := range tests {
		got := keySet(tt.mod, tt.space)
		if len(got) != len(tt.want) {
			t.Errorf("keySet(%v, %v) = %v, want %v", tt.mod, tt.space, got, tt.want)
			continue
		}
		for _, k := range tt.want {
			if !got.Has(k) {
				t.Errorf("keySet(%v, %v) missing %s", tt.mod, tt.space, k)
			}
		}
	}
}

func TestMouseButton(t *testing.T) {
	tests := []struct {
		in   desktop.MouseButton
		want gesture.Button
		ok   bool
	}{
		{desktop.MouseButtonPrimary, gesture.ButtonLeft, true},
		{desktop.MouseButtonSecondary, gesture.ButtonRight, true},
		{desktop.MouseButtonTertiary, gesture.ButtonMiddle, true},
		{desktop.MouseButtonPrimary | desktop.MouseButtonSecondary, 0, false},
	}
	for _, tt := range tests {
		got, ok := mouseButton(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("mouseButton(%v) = %v, %v", tt.in, got, ok)
		}
	}
}

func TestWheelDelta(t *testing.T) {
	// One notch up in fyne zooms in, like a negative browser deltaY.
	dx, dy := wheelDelta(fyne.Delta{DX: 0, DY: 10})
	if dx != 0 || dy != -100 {
		t.Errorf("wheelDelta = %v, %v", dx, dy)
	}
}
