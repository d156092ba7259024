// Package prefs provides JSON-based application preferences.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"refboard/internal/engine"
	"refboard/internal/gesture"
	"refboard/internal/render"
	"refboard/pkg/colorutil"
)

const prefsFile = "preferences.json"

// Preference keys.
const (
	KeyPanBinding         = "binding.pan"
	KeyDragZoomBinding    = "binding.dragZoom"
	KeyWindowMoveBinding  = "binding.windowMove"
	KeyOpacityDragBinding = "binding.opacityDrag"
	KeyPrecedence         = "binding.precedence"
	KeyWheelModifier      = "wheel.modifier"
	KeyBackground         = "canvas.background"
	KeyFitPadding         = "canvas.fitPadding"
	KeyOpacity            = "window.opacity"
	KeyWindowWidth        = "window.width"
	KeyWindowHeight       = "window.height"
)

// disabled is the binding value that turns a gesture off.
const disabled = "none"

// Prefs stores application preferences as a key-value map.
type Prefs struct {
	mu     sync.RWMutex
	values map[string]interface{}
	path   string
}

// Load reads preferences from ~/.config/refboard/preferences.json.
// Returns a Prefs with defaults if the file doesn't exist.
func Load() *Prefs {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return LoadFrom(filepath.Join(configDir, "refboard", prefsFile))
}

// LoadFrom reads preferences from path.
func LoadFrom(path string) *Prefs {
	p := &Prefs{
		values: make(map[string]interface{}),
		path:   path,
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(data, &p.values)
	return p
}

// Path returns the file the preferences are saved to.
func (p *Prefs) Path() string { return p.path }

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.RLock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o644)
}

// FloatWithFallback returns a float64 preference, or fallback if not set.
func (p *Prefs) FloatWithFallback(key string, fallback float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

// SetFloat stores a float64 preference.
func (p *Prefs) SetFloat(key string, val float64) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// String returns a string preference, or "" if not set.
func (p *Prefs) String(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetString stores a string preference.
func (p *Prefs) SetString(key string, val string) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// EngineConfig overlays the stored gesture and appearance settings on
// base. Every malformed entry is reported and left at its base value.
func (p *Prefs) EngineConfig(base engine.Config) (engine.Config, error) {
	cfg := base
	var errs []error

	bindings := []struct {
		key string
		dst **gesture.Binding
	}{
		{KeyPanBinding, &cfg.Bindings.Pan},
		{KeyDragZoomBinding, &cfg.Bindings.DragZoom},
		{KeyWindowMoveBinding, &cfg.Bindings.WindowMove},
		{KeyOpacityDragBinding, &cfg.Bindings.OpacityDrag},
	}
	for _, b := range bindings {
		s := p.String(b.key)
		switch {
		case s == "":
		case strings.EqualFold(s, disabled):
			*b.dst = nil
		default:
			parsed, err := gesture.ParseBinding(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("prefs: %s: %w", b.key, err))
				continue
			}
			*b.dst = &parsed
		}
	}

	if s := p.String(KeyPrecedence); s != "" {
		order, err := parsePrecedence(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("prefs: %s: %w", KeyPrecedence, err))
		} else {
			cfg.Precedence = order
		}
	}

	if s := p.String(KeyWheelModifier); s != "" {
		cfg.WheelModifier = gesture.CanonicalKey(s)
	}

	if s := p.String(KeyBackground); s != "" {
		bg, err := colorutil.ParseHex(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("prefs: %s: %w", KeyBackground, err))
		} else {
			cfg.Appearance = AppearanceFor(bg)
		}
	}

	if pad := p.FloatWithFallback(KeyFitPadding, 0); pad > 0 {
		cfg.FitPadding = pad
	}
	return cfg, errors.Join(errs...)
}

// SetEngineConfig stores the gesture and appearance settings of cfg.
func (p *Prefs) SetEngineConfig(cfg engine.Config) {
	store := func(key string, b *gesture.Binding) {
		if b == nil {
			p.SetString(key, disabled)
			return
		}
		if b.Default {
			// Unconfigured: keep following the built-in default.
			p.SetString(key, "")
			return
		}
		p.SetString(key, b.String())
	}
	store(KeyPanBinding, cfg.Bindings.Pan)
	store(KeyDragZoomBinding, cfg.Bindings.DragZoom)
	store(KeyWindowMoveBinding, cfg.Bindings.WindowMove)
	store(KeyOpacityDragBinding, cfg.Bindings.OpacityDrag)

	names := make([]string, len(cfg.Precedence))
	for i, k := range cfg.Precedence {
		names[i] = k.String()
	}
	p.SetString(KeyPrecedence, strings.Join(names, ","))
	p.SetString(KeyWheelModifier, cfg.WheelModifier)
	if cfg.Appearance.Background != nil {
		p.SetString(KeyBackground, colorutil.Hex(cfg.Appearance.Background))
	}
	p.SetFloat(KeyFitPadding, cfg.FitPadding)
}

func parsePrecedence(s string) ([]gesture.Kind, error) {
	var order []gesture.Kind
	for _, name := range strings.Split(s, ",") {
		k, err := gesture.ParseKind(name)
		if err != nil {
			return nil, err
		}
		order = append(order, k)
	}
	return order, nil
}

// AppearanceFor derives placeholder and ad-slot fills from a background so
// they stay visible on light and dark boards.
func AppearanceFor(bg color.Color) render.Appearance {
	a := render.DefaultAppearance()
	a.Background = bg
	a.Placeholder = colorutil.Shade(bg, 0.12)
	a.AdSlot = colorutil.Shade(bg, 0.2)
	return a
}
