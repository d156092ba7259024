package viewport

import (
	"log/slog"
	"sync"
	"time"

	"refboard/internal/clock"
	"refboard/pkg/geometry"
)

// DeltaKind selects how ApplyDelta interprets its input.
type DeltaKind int

const (
	DeltaPan DeltaKind = iota
	DeltaWheelZoom
	DeltaDragZoom
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaPan:
		return "pan"
	case DeltaWheelZoom:
		return "wheel-zoom"
	case DeltaDragZoom:
		return "drag-zoom"
	default:
		return "unknown"
	}
}

// Change is the viewport-change notification payload.
type Change struct {
	X      float64
	Y      float64
	Scale  float64
	Width  float64
	Height float64
	// Live is set for throttled notifications emitted mid-gesture, before
	// the transform is committed.
	Live bool
}

// debounce is one settle timer. gen invalidates callbacks from timers that
// were stopped too late to prevent them firing.
type debounce struct {
	timer   clock.Timer
	gen     uint64
	pending bool
}

type dragZoom struct {
	anchor geometry.Point2D
	sign   float64
}

// Committer applies gesture deltas to the visual transform immediately and
// publishes them to the committed transform once motion settles.
type Committer struct {
	store  *Store
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	wheel    debounce
	pan      debounce
	zoom     *dragZoom
	lastLive time.Time
	onChange []func(Change)
	onVisual []func(Transform)
}

// NewCommitter creates a committer writing to store.
func NewCommitter(store *Store, clk clock.Clock) *Committer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Committer{
		store:  store,
		clock:  clk,
		logger: slog.New(slog.DiscardHandler),
	}
}

// SetLogger sets the logger used for dropped updates and commits.
func (c *Committer) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

// Store returns the store the committer writes to.
func (c *Committer) Store() *Store { return c.store }

// OnChange registers a viewport-change listener. Listeners run after the
// committer's lock is released and may read the store.
func (c *Committer) OnChange(fn func(Change)) {
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

// OnVisual registers a listener called with every visual transform update.
func (c *Committer) OnVisual(fn func(Transform)) {
	c.mu.Lock()
	c.onVisual = append(c.onVisual, fn)
	c.mu.Unlock()
}

// Pending reports whether a wheel or pan commit is waiting on its timer.
func (c *Committer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wheel.pending || c.pan.pending
}

// Begin prepares for a new gesture: any pending debounce is flushed into
// the committed transform so the gesture starts from settled state.
func (c *Committer) Begin() {
	c.mu.Lock()
	c.zoom = nil
	n := c.flushLocked()
	c.mu.Unlock()
	c.emit(n)
}

// Pan moves the visual transform by a screen-space delta. The commit
// happens at End.
func (c *Committer) Pan(dx, dy float64) bool {
	c.mu.Lock()
	n, ok := c.panLocked(dx, dy)
	c.mu.Unlock()
	c.emit(n)
	return ok
}

// PanBy is a programmatic pan that settles on its own debounce timer.
func (c *Committer) PanBy(dx, dy float64) bool {
	c.mu.Lock()
	var flushed notice
	if c.wheel.pending {
		flushed = c.flushLocked()
	}
	n, ok := c.panLocked(dx, dy)
	if ok {
		c.arm(&c.pan)
	}
	c.mu.Unlock()
	c.emit(flushed)
	c.emit(n)
	return ok
}

func (c *Committer) panLocked(dx, dy float64) (notice, bool) {
	v := c.store.Visual()
	next := Transform{X: v.X + dx, Y: v.Y + dy, Scale: v.Scale}
	if !next.Valid() {
		c.logger.Debug("viewport: pan dropped", "dx", dx, "dy", dy)
		return notice{}, false
	}
	c.store.setVisual(next)
	n := notice{visual: &next}
	if now := c.clock.Now(); now.Sub(c.lastLive) >= LiveInterval {
		c.lastLive = now
		ch := c.change(next, true)
		n.change = &ch
	}
	return n, true
}

// Wheel applies one wheel-zoom event anchored at a screen point. Events
// inside the settle window accumulate on the visual transform; the commit
// happens SettleWindow after the last event.
func (c *Committer) Wheel(deltaY float64, anchor geometry.Point2D) bool {
	c.mu.Lock()
	var n notice
	if c.pan.pending {
		n = c.flushLocked()
	}
	v := c.store.Visual()
	next, err := v.ZoomAt(ClampScale(v.Scale+deltaY*WheelStep, MaxScale), anchor)
	if err != nil {
		c.mu.Unlock()
		c.emit(n)
		c.logger.Debug("viewport: wheel zoom dropped", "err", err)
		return false
	}
	c.store.setVisual(next)
	c.arm(&c.wheel)
	n.visual = &next
	c.mu.Unlock()
	c.emit(n)
	return true
}

// BeginDragZoom starts a drag-zoom anchored at a screen point. invert flips
// the direction for handles on the left side.
func (c *Committer) BeginDragZoom(anchor geometry.Point2D, invert bool) {
	c.mu.Lock()
	n := c.flushLocked()
	sign := 1.0
	if invert {
		sign = -1
	}
	c.zoom = &dragZoom{anchor: anchor, sign: sign}
	c.mu.Unlock()
	c.emit(n)
}

// DragZoom applies horizontal pointer movement to the active drag-zoom.
func (c *Committer) DragZoom(dx float64) bool {
	c.mu.Lock()
	if c.zoom == nil {
		c.mu.Unlock()
		return false
	}
	v := c.store.Visual()
	scale := ClampScale(v.Scale+c.zoom.sign*dx*DragZoomStep, MaxDragScale)
	next, err := v.ZoomAt(scale, c.zoom.anchor)
	if err != nil {
		c.mu.Unlock()
		c.logger.Debug("viewport: drag zoom dropped", "err", err)
		return false
	}
	c.store.setVisual(next)
	c.mu.Unlock()
	c.emit(notice{visual: &next})
	return true
}

// ApplyDelta dispatches a continuous gesture delta. For pan the delta is a
// screen offset; for wheel zoom delta.Y is the wheel deltaY; for drag zoom
// delta.X is the horizontal pointer movement.
func (c *Committer) ApplyDelta(kind DeltaKind, delta, anchor geometry.Point2D) bool {
	switch kind {
	case DeltaPan:
		return c.Pan(delta.X, delta.Y)
	case DeltaWheelZoom:
		return c.Wheel(delta.Y, anchor)
	case DeltaDragZoom:
		return c.DragZoom(delta.X)
	}
	return false
}

// End finishes the active gesture: timers are cancelled and the visual
// transform is committed. It reports whether the committed value changed.
func (c *Committer) End() bool {
	c.mu.Lock()
	c.zoom = nil
	n := c.flushLocked()
	c.mu.Unlock()
	c.emit(n)
	return n.change != nil
}

// CommitNow publishes the visual transform immediately.
func (c *Committer) CommitNow() bool {
	return c.End()
}

// Flush commits a pending debounce early. It is a no-op when no timer is
// pending.
func (c *Committer) Flush() bool {
	c.mu.Lock()
	if !c.wheel.pending && !c.pan.pending {
		c.mu.Unlock()
		return false
	}
	n := c.flushLocked()
	c.mu.Unlock()
	c.emit(n)
	return n.change != nil
}

// Jump sets both transforms at once. Discrete navigation uses it. The
// scale is clamped to [MinScale, MaxDragScale].
func (c *Committer) Jump(t Transform) bool {
	if !t.Valid() {
		c.logger.Debug("viewport: jump dropped", "x", t.X, "y", t.Y, "scale", t.Scale)
		return false
	}
	t.Scale = ClampScale(t.Scale, MaxDragScale)
	c.mu.Lock()
	c.zoom = nil
	c.cancel(&c.wheel)
	c.cancel(&c.pan)
	c.store.setBoth(t)
	ch := c.change(t, false)
	c.mu.Unlock()
	c.emit(notice{visual: &t, change: &ch})
	return true
}

// FitTo shows bounds centred with padding, clamped to MaxScale.
func (c *Committer) FitTo(bounds geometry.Rect, padding float64) bool {
	t, err := Fit(bounds, c.store.Size(), padding)
	if err != nil {
		c.logger.Debug("viewport: fit dropped", "err", err)
		return false
	}
	return c.Jump(t)
}

// NavigateTo centres the viewport on a world point at the current scale.
func (c *Committer) NavigateTo(world geometry.Point2D) bool {
	t, err := CenterOn(world, c.store.Size(), c.store.Visual().Scale)
	if err != nil {
		c.logger.Debug("viewport: navigate dropped", "err", err)
		return false
	}
	return c.Jump(t)
}

// ZoomBy multiplies the scale by factor around a screen anchor, clamped to
// the wheel range, and commits immediately.
func (c *Committer) ZoomBy(factor float64, anchor geometry.Point2D) bool {
	v := c.store.Visual()
	t, err := v.ZoomAt(ClampScale(v.Scale*factor, MaxScale), anchor)
	if err != nil {
		c.logger.Debug("viewport: zoom dropped", "err", err)
		return false
	}
	return c.Jump(t)
}

// Reset returns to the identity transform.
func (c *Committer) Reset() bool {
	return c.Jump(Identity())
}

// Close cancels timers after flushing their pending values.
func (c *Committer) Close() {
	c.End()
}

type notice struct {
	visual *Transform
	change *Change
}

func (c *Committer) emit(n notice) {
	if n.visual == nil && n.change == nil {
		return
	}
	c.mu.Lock()
	onVisual := c.onVisual
	onChange := c.onChange
	c.mu.Unlock()
	if n.visual != nil {
		for _, fn := range onVisual {
			fn(*n.visual)
		}
	}
	if n.change != nil {
		for _, fn := range onChange {
			fn(*n.change)
		}
	}
}

func (c *Committer) change(t Transform, live bool) Change {
	size := c.store.Size()
	return Change{X: t.X, Y: t.Y, Scale: t.Scale, Width: size.Width, Height: size.Height, Live: live}
}

// flushLocked cancels both timers and commits the visual transform.
func (c *Committer) flushLocked() notice {
	c.cancel(&c.wheel)
	c.cancel(&c.pan)
	t, changed := c.store.commit()
	if !changed {
		return notice{}
	}
	c.logger.Debug("viewport: commit", "x", t.X, "y", t.Y, "scale", t.Scale)
	ch := c.change(t, false)
	return notice{change: &ch}
}

func (c *Committer) cancel(d *debounce) {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.pending = false
}

func (c *Committer) arm(d *debounce) {
	c.cancel(d)
	d.pending = true
	gen := d.gen
	d.timer = c.clock.AfterFunc(SettleWindow, func() { c.settle(d, gen) })
}

func (c *Committer) settle(d *debounce, gen uint64) {
	c.mu.Lock()
	if !d.pending || d.gen != gen {
		c.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	var n notice
	if t, changed := c.store.commit(); changed {
		c.logger.Debug("viewport: settled", "x", t.X, "y", t.Y, "scale", t.Scale)
		ch := c.change(t, false)
		n.change = &ch
	}
	c.mu.Unlock()
	c.emit(n)
}
