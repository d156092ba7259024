package prefs

import (
	"path/filepath"
	"slices"
	"testing"

	"refboard/internal/engine"
	"refboard/internal/gesture"
	"refboard/pkg/colorutil"
)

func TestEngineConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refboard", prefsFile)
	p := LoadFrom(path)

	cfg := engine.DefaultConfig()
	space, _ := gesture.ParseBinding("Space+Left")
	cfg.Bindings.Pan = &space
	cfg.Bindings.OpacityDrag = nil
	cfg.Precedence = []gesture.Kind{gesture.Pan, gesture.DragZoom, gesture.WindowMove, gesture.OpacityDrag}
	cfg.WheelModifier = gesture.KeyCtrl
	cfg.Appearance = AppearanceFor(colorutil.White)
	cfg.FitPadding = 24
	p.SetEngineConfig(cfg)
	if err := p.Save(); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFrom(path).EngineConfig(engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if got.Bindings.Pan == nil || got.Bindings.Pan.String() != "Space+Left" {
		t.Errorf("pan binding = %v", got.Bindings.Pan)
	}
	if got.Bindings.OpacityDrag != nil {
		t.Errorf("disabled binding restored as %v", got.Bindings.OpacityDrag)
	}
	if got.Bindings.DragZoom == nil || got.Bindings.DragZoom.String() != "Alt+Right" {
		t.Errorf("drag-zoom binding = %v", got.Bindings.DragZoom)
	}
	if !slices.Equal(got.Precedence, cfg.Precedence) {
		t.Errorf("precedence = %v", got.Precedence)
	}
	if got.WheelModifier != gesture.KeyCtrl {
		t.Errorf("wheel modifier = %q", got.WheelModifier)
	}
	if colorutil.Hex(got.Appearance.Background) != "#ffffff" {
		t.Errorf("background = %v", got.Appearance.Background)
	}
	if got.FitPadding != 24 {
		t.Errorf("fit padding = %v", got.FitPadding)
	}
}

func TestEngineConfigReportsBadEntries(t *testing.T) {
	p := LoadFrom(filepath.Join(t.TempDir(), prefsFile))
	p.SetString(KeyPanBinding, "Shift+Nothing")
	p.SetString(KeyBackground, "#12")
	p.SetString(KeyPrecedence, "pan,zoom")
	p.SetString(KeyWheelModifier, "control")

	base := engine.DefaultConfig()
	got, err := p.EngineConfig(base)
	if err == nil {
		t.Fatal("expected errors for malformed entries")
	}
	if got.Bindings.Pan != base.Bindings.Pan {
		t.Error("malformed binding replaced the base binding")
	}
	if !slices.Equal(got.Precedence, base.Precedence) {
		t.Errorf("precedence = %v", got.Precedence)
	}
	if got.WheelModifier != gesture.KeyCtrl {
		t.Errorf("valid entries must still apply, wheel modifier = %q", got.WheelModifier)
	}
}

func TestLoadMissingFile(t *testing.T) {
	p := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if p.String(KeyBackground) != "" || p.FloatWithFallback(KeyOpacity, 0.7) != 0.7 {
		t.Error("missing file should give empty preferences")
	}
}

func TestDefaultBindingStaysDefault(t *testing.T) {
	p := LoadFrom(filepath.Join(t.TempDir(), prefsFile))
	p.SetEngineConfig(engine.DefaultConfig())
	got, err := p.EngineConfig(engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if got.Bindings.Pan == nil || !got.Bindings.Pan.Default {
		t.Errorf("pan binding = %+v, want the default fallback", got.Bindings.Pan)
	}
	held := gesture.NewKeySet(gesture.KeyShift)
	if !got.Bindings.Pan.Matches(gesture.ButtonMiddle, held) {
		t.Error("default pan binding must match regardless of modifiers")
	}
}
