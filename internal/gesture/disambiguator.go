package gesture

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"refboard/internal/clock"
	"refboard/pkg/geometry"
)

const (
	// WindowMoveThreshold is the distance an armed window-move must travel
	// before it becomes an active drag.
	WindowMoveThreshold = 5.0
	// ContextMenuQuiet is how long context-menu requests are ignored after
	// a drag gesture ends.
	ContextMenuQuiet = 250 * time.Millisecond
)

// Kind is the gesture that owns the pointer.
type Kind int

const (
	None Kind = iota
	Pan
	DragZoom
	WindowMove
	OpacityDrag
	Selection
	PassThrough
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Pan:
		return "pan"
	case DragZoom:
		return "drag-zoom"
	case WindowMove:
		return "window-move"
	case OpacityDrag:
		return "opacity-drag"
	case Selection:
		return "selection"
	case PassThrough:
		return "pass-through"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses the String form of a binding kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{Pan, DragZoom, WindowMove, OpacityDrag} {
		if strings.EqualFold(strings.TrimSpace(s), k.String()) {
			return k, nil
		}
	}
	return None, fmt.Errorf("%w: unknown gesture %q", ErrBadBinding, s)
}

// DefaultPrecedence is the order bindings are tried on pointer-down when
// more than one matches.
var DefaultPrecedence = []Kind{DragZoom, WindowMove, Pan, OpacityDrag}

// Tool is the active left-button tool used when no binding matched.
type Tool int

const (
	ToolSelect Tool = iota
	ToolDraw
)

// Disambiguator tracks the single gesture that owns the pointer between
// pointer-down and pointer-up.
type Disambiguator struct {
	clock clock.Clock

	mu            sync.Mutex
	bindings      Bindings
	precedence    []Kind
	tool          Tool
	active        Kind
	armed         bool
	start         geometry.Point2D
	last          geometry.Point2D
	suppressUntil time.Time
}

// New creates a disambiguator with the given bindings and the default
// precedence.
func New(clk clock.Clock, bindings Bindings) *Disambiguator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Disambiguator{
		clock:      clk,
		bindings:   bindings,
		precedence: slices.Clone(DefaultPrecedence),
	}
}

// SetBindings swaps the bindings. A gesture in progress keeps running.
func (d *Disambiguator) SetBindings(b Bindings) {
	d.mu.Lock()
	d.bindings = b
	d.mu.Unlock()
}

// SetPrecedence sets the order bindings are tried in. It must be a
// permutation of the four binding kinds.
func (d *Disambiguator) SetPrecedence(order []Kind) error {
	if len(order) != len(DefaultPrecedence) {
		return fmt.Errorf("gesture: precedence needs %d kinds, got %d", len(DefaultPrecedence), len(order))
	}
	for _, k := range DefaultPrecedence {
		if !slices.Contains(order, k) {
			return fmt.Errorf("gesture: precedence is missing %s", k)
		}
	}
	d.mu.Lock()
	d.precedence = slices.Clone(order)
	d.mu.Unlock()
	return nil
}

// SetTool sets the left-button fallback tool.
func (d *Disambiguator) SetTool(t Tool) {
	d.mu.Lock()
	d.tool = t
	d.mu.Unlock()
}

// Down starts a gesture. It returns the gesture that now owns the pointer;
// a window-move binding match only arms (Armed reports true) and Down
// returns None until the pointer travels past WindowMoveThreshold.
// While a gesture is active further presses are ignored.
func (d *Disambiguator) Down(button Button, held KeySet, pos geometry.Point2D) Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != None || d.armed {
		return d.active
	}
	d.start, d.last = pos, pos
	for _, k := range d.precedence {
		b := d.bindings.lookup(k)
		if b == nil || !b.Matches(button, held) {
			continue
		}
		if k == WindowMove {
			d.armed = true
			return None
		}
		d.active = k
		return k
	}
	if button == ButtonLeft {
		if d.tool == ToolDraw {
			d.active = PassThrough
		} else {
			d.active = Selection
		}
	}
	return d.active
}

// Move feeds a pointer position to the owning gesture and returns it with
// the screen delta since the previous event.
func (d *Disambiguator) Move(pos geometry.Point2D) (Kind, geometry.Point2D) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.armed {
		if pos.Distance(d.start) <= WindowMoveThreshold {
			return None, geometry.Point2D{}
		}
		d.armed = false
		d.active = WindowMove
	}
	if d.active == None {
		return None, geometry.Point2D{}
	}
	delta := pos.Sub(d.last)
	d.last = pos
	return d.active, delta
}

// Up ends the gesture and returns the kind that was active. Ending a
// pan, zoom, opacity or window drag opens the context-menu quiet window.
func (d *Disambiguator) Up() Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := d.active
	d.active = None
	d.armed = false
	switch k {
	case Pan, DragZoom, WindowMove, OpacityDrag:
		d.suppressUntil = d.clock.Now().Add(ContextMenuQuiet)
	}
	return k
}

// Cancel ends the gesture when the pointer leaves the surface.
func (d *Disambiguator) Cancel() Kind {
	return d.Up()
}

// Active returns the gesture that owns the pointer.
func (d *Disambiguator) Active() Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Armed reports whether a window-move is waiting for the move threshold.
func (d *Disambiguator) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Origin returns the pointer-down position of the current gesture.
func (d *Disambiguator) Origin() geometry.Point2D {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.start
}

// SuppressesSelection reports whether selection boxes must not start
// because the viewport or window is being manipulated.
func (d *Disambiguator) SuppressesSelection() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.active {
	case Pan, DragZoom, WindowMove:
		return true
	}
	return d.armed
}

// ContextMenuAllowed reports whether a context-menu request should be
// honoured now.
func (d *Disambiguator) ContextMenuAllowed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != None && d.active != Selection && d.active != PassThrough {
		return false
	}
	return !d.clock.Now().Before(d.suppressUntil)
}
