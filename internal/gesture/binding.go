// Package gesture turns pointer and modifier input into exactly one active
// canvas gesture per pointer-down, using configurable button and modifier
// bindings with an explicit precedence order.
package gesture

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrBadBinding is returned by ParseBinding for malformed input.
var ErrBadBinding = errors.New("gesture: malformed binding")

// Button is a mouse button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "Left"
	case ButtonMiddle:
		return "Middle"
	case ButtonRight:
		return "Right"
	default:
		return fmt.Sprintf("Button(%d)", int(b))
	}
}

// Canonical modifier key names.
const (
	KeyShift = "Shift"
	KeyCtrl  = "Ctrl"
	KeyAlt   = "Alt"
	KeySuper = "Super"
	KeySpace = "Space"
)

// CanonicalKey normalises a key name ("control" -> "Ctrl", "cmd" -> "Super").
func CanonicalKey(k string) string {
	switch strings.ToLower(strings.TrimSpace(k)) {
	case "shift":
		return KeyShift
	case "ctrl", "control":
		return KeyCtrl
	case "alt", "option", "opt":
		return KeyAlt
	case "super", "meta", "cmd", "command", "win":
		return KeySuper
	case "space":
		return KeySpace
	default:
		return strings.TrimSpace(k)
	}
}

// KeySet is the set of modifier keys currently held.
type KeySet map[string]struct{}

// NewKeySet builds a set from key names.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		if k = CanonicalKey(k); k != "" {
			s[k] = struct{}{}
		}
	}
	return s
}

// Has reports whether k is held.
func (s KeySet) Has(k string) bool {
	_, ok := s[CanonicalKey(k)]
	return ok
}

// Binding is the trigger for one drag gesture.
type Binding struct {
	Keys   []string
	Button Button
	// Default marks the unconfigured fallback binding, which matches its
	// button regardless of the modifiers held.
	Default bool
}

// Matches reports whether pressing button with held modifiers triggers b.
// A binding without keys requires that no modifier is held.
func (b Binding) Matches(button Button, held KeySet) bool {
	if b.Button != button {
		return false
	}
	if b.Default {
		return true
	}
	if len(b.Keys) == 0 {
		return len(held) == 0
	}
	for _, k := range b.Keys {
		if !held.Has(k) {
			return false
		}
	}
	return true
}

// String formats the binding as "Key+Key+Button".
func (b Binding) String() string {
	parts := make([]string, 0, len(b.Keys)+1)
	for _, k := range b.Keys {
		parts = append(parts, CanonicalKey(k))
	}
	return strings.Join(append(parts, b.Button.String()), "+")
}

// ParseBinding parses the String form, e.g. "Shift+Alt+Right".
func ParseBinding(s string) (Binding, error) {
	fields := strings.Split(s, "+")
	if len(fields) == 0 || strings.TrimSpace(s) == "" {
		return Binding{}, fmt.Errorf("%w: empty", ErrBadBinding)
	}
	var b Binding
	switch strings.ToLower(strings.TrimSpace(fields[len(fields)-1])) {
	case "left":
		b.Button = ButtonLeft
	case "middle":
		b.Button = ButtonMiddle
	case "right":
		b.Button = ButtonRight
	default:
		return Binding{}, fmt.Errorf("%w: %q has no button", ErrBadBinding, s)
	}
	for _, k := range fields[:len(fields)-1] {
		k = CanonicalKey(k)
		if k == "" {
			return Binding{}, fmt.Errorf("%w: %q has an empty key", ErrBadBinding, s)
		}
		if !slices.Contains(b.Keys, k) {
			b.Keys = append(b.Keys, k)
		}
	}
	return b, nil
}

// Bindings configures the drag gestures. A nil entry disables the gesture.
type Bindings struct {
	Pan         *Binding
	DragZoom    *Binding
	WindowMove  *Binding
	OpacityDrag *Binding
}

// DefaultBindings returns the out-of-the-box configuration: middle drag
// pans, Alt+right drag zooms, right drag moves the window and Shift+right
// drag changes window opacity.
func DefaultBindings() Bindings {
	return Bindings{
		Pan:         &Binding{Button: ButtonMiddle, Default: true},
		DragZoom:    &Binding{Keys: []string{KeyAlt}, Button: ButtonRight},
		WindowMove:  &Binding{Button: ButtonRight},
		OpacityDrag: &Binding{Keys: []string{KeyShift}, Button: ButtonRight},
	}
}

func (b Bindings) lookup(k Kind) *Binding {
	switch k {
	case Pan:
		return b.Pan
	case DragZoom:
		return b.DragZoom
	case WindowMove:
		return b.WindowMove
	case OpacityDrag:
		return b.OpacityDrag
	}
	return nil
}
