package engine

import (
	"fmt"
	"slices"

	"refboard/internal/gesture"
	"refboard/internal/render"
	"refboard/internal/viewport"
)

// Config is the hot-swappable engine configuration.
type Config struct {
	Bindings   gesture.Bindings
	Precedence []gesture.Kind
	// WheelModifier, when set, is the key that must be held for the wheel
	// to zoom. Without it the wheel pans.
	WheelModifier string
	Appearance    render.Appearance
	FitPadding    float64
	Tool          gesture.Tool
}

// DefaultConfig returns the default bindings, precedence and look.
func DefaultConfig() Config {
	return Config{
		Bindings:   gesture.DefaultBindings(),
		Precedence: slices.Clone(gesture.DefaultPrecedence),
		Appearance: render.DefaultAppearance(),
		FitPadding: viewport.DefaultFitPadding,
		Tool:       gesture.ToolSelect,
	}
}

func (c Config) normalized() (Config, error) {
	if len(c.Precedence) == 0 {
		c.Precedence = slices.Clone(gesture.DefaultPrecedence)
	}
	if c.FitPadding < 0 {
		return c, fmt.Errorf("engine: negative fit padding %v", c.FitPadding)
	}
	if c.FitPadding == 0 {
		c.FitPadding = viewport.DefaultFitPadding
	}
	if c.WheelModifier != "" {
		c.WheelModifier = gesture.CanonicalKey(c.WheelModifier)
	}
	def := render.DefaultAppearance()
	if c.Appearance.Background == nil {
		c.Appearance.Background = def.Background
	}
	if c.Appearance.Placeholder == nil {
		c.Appearance.Placeholder = def.Placeholder
	}
	if c.Appearance.AdSlot == nil {
		c.Appearance.AdSlot = def.AdSlot
	}
	if c.Appearance.Selection == nil {
		c.Appearance.Selection = def.Selection
	}
	return c, nil
}
