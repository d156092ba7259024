// Package engine wires the viewport, gesture, image cache, renderer and
// minimap components into one board surface driven by pointer and wheel
// input.
package engine

import (
	"image"
	"log/slog"
	"math"
	"sync"

	"refboard/internal/board"
	"refboard/internal/clock"
	"refboard/internal/gesture"
	"refboard/internal/imagecache"
	"refboard/internal/minimap"
	"refboard/internal/render"
	"refboard/internal/viewport"
	"refboard/pkg/geometry"
)

const (
	// OpacityStep is the window opacity change per horizontal pixel.
	OpacityStep = 0.005
	// MinOpacity and MaxOpacity bound the opacity drag.
	MinOpacity = 0.1
	MaxOpacity = 1.0
)

// ItemBoundsFunc returns the current world bounds of an item.
type ItemBoundsFunc func(id string) (geometry.Rect, bool)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock driving debounce windows and frame loops.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithPixelRatio sets the device pixel ratio of the bitmap surface.
func WithPixelRatio(r float64) Option {
	return func(e *Engine) { e.ratio = r }
}

// WithItemBounds overrides where fit-to-item looks up item bounds. The
// default reads the board, ghost positions included.
func WithItemBounds(fn ItemBoundsFunc) Option {
	return func(e *Engine) { e.itemBounds = fn }
}

// WithConfig sets the initial configuration.
func WithConfig(c Config) Option {
	return func(e *Engine) { e.cfg = c }
}

// Engine is one canvas instance. All caches and loops it creates are owned
// by it and released by Close.
type Engine struct {
	clock      clock.Clock
	ratio      float64
	logger     *slog.Logger
	itemBounds ItemBoundsFunc

	board     *board.Board
	store     *viewport.Store
	committer *viewport.Committer
	gestures  *gesture.Disambiguator
	images    *imagecache.Cache
	renderer  *render.Renderer
	minimap   *minimap.Minimap
	frames    *render.Loop

	mu        sync.Mutex
	cfg       Config
	opacity   float64
	selStart  geometry.Point2D
	selRect   geometry.Rect
	selMoved  bool
	started   bool
	closed    bool
	fitLater  bool
	listeners listeners
}

type listeners struct {
	opacity       []func(float64)
	windowMove    []func(dx, dy float64)
	selectionRect []func(geometry.Rect)
	selectIDs     []func([]string)
	contextMenu   []func(geometry.Point2D)
	frame         []func()
}

// New creates an engine for b. Images are loaded through f; a nil f uses a
// file and HTTP router rooted at the working directory.
func New(b *board.Board, f imagecache.Fetcher, opts ...Option) (*Engine, error) {
	e := &Engine{
		clock:   clock.Real{},
		ratio:   1,
		logger:  Logger(),
		board:   b,
		cfg:     DefaultConfig(),
		opacity: MaxOpacity,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.board == nil {
		e.board = board.New()
	}
	if f == nil {
		f = imagecache.NewRouter(".")
	}
	if e.itemBounds == nil {
		e.itemBounds = e.board.ItemBounds
	}

	e.store = viewport.NewStore(viewport.Identity())
	e.committer = viewport.NewCommitter(e.store, e.clock)
	e.committer.SetLogger(e.logger)
	e.gestures = gesture.New(e.clock, e.cfg.Bindings)
	e.images = imagecache.New(f, imagecache.WithClock(e.clock), imagecache.WithLogger(e.logger))
	e.renderer = render.New(e.board, e.store, e.images, e.ratio)
	e.renderer.SetLogger(e.logger)
	e.minimap = minimap.New(e.board, e.committer, e.clock)
	e.minimap.SetLogger(e.logger)
	e.frames = render.NewLoop(e.clock, render.FrameInterval)
	e.images.OnLoad(func(string) { e.renderer.Invalidate() })

	if err := e.SetConfig(e.cfg); err != nil {
		e.images.Close()
		return nil, err
	}
	return e, nil
}

// Board returns the board the engine renders.
func (e *Engine) Board() *board.Board { return e.board }

// Viewport returns the transform store.
func (e *Engine) Viewport() *viewport.Store { return e.store }

// Committer returns the viewport committer.
func (e *Engine) Committer() *viewport.Committer { return e.committer }

// Renderer returns the bitmap renderer.
func (e *Engine) Renderer() *render.Renderer { return e.renderer }

// Minimap returns the minimap.
func (e *Engine) Minimap() *minimap.Minimap { return e.minimap }

// Images returns the image cache.
func (e *Engine) Images() *imagecache.Cache { return e.images }

// Config returns the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig swaps bindings, precedence, wheel modifier, appearance and
// tool without restarting loops. An invalid config leaves the active one
// in place.
func (e *Engine) SetConfig(c Config) error {
	c, err := c.normalized()
	if err != nil {
		return err
	}
	if err := e.gestures.SetPrecedence(c.Precedence); err != nil {
		return err
	}
	e.gestures.SetBindings(c.Bindings)
	e.gestures.SetTool(c.Tool)
	e.renderer.SetAppearance(c.Appearance)
	e.mu.Lock()
	e.cfg = c
	e.mu.Unlock()
	e.logger.Debug("engine: config applied",
		"wheelModifier", c.WheelModifier, "tool", c.Tool, "fitPadding", c.FitPadding)
	return nil
}

// SetTool switches the left-button fallback tool.
func (e *Engine) SetTool(t gesture.Tool) {
	e.gestures.SetTool(t)
	e.mu.Lock()
	e.cfg.Tool = t
	e.mu.Unlock()
}

// OnViewportChange registers a listener for committed and live viewport
// changes.
func (e *Engine) OnViewportChange(fn func(viewport.Change)) {
	e.committer.OnChange(fn)
}

// OnVisualUpdate registers a listener for every visual transform update.
func (e *Engine) OnVisualUpdate(fn func(viewport.Transform)) {
	e.committer.OnVisual(fn)
}

// OnOpacity registers a listener for opacity-drag updates.
func (e *Engine) OnOpacity(fn func(float64)) {
	e.mu.Lock()
	e.listeners.opacity = append(e.listeners.opacity, fn)
	e.mu.Unlock()
}

// OnWindowMove registers a listener for window-move drag deltas in screen
// pixels.
func (e *Engine) OnWindowMove(fn func(dx, dy float64)) {
	e.mu.Lock()
	e.listeners.windowMove = append(e.listeners.windowMove, fn)
	e.mu.Unlock()
}

// OnSelectionRect registers a listener for the world-space rubber band
// during a selection drag.
func (e *Engine) OnSelectionRect(fn func(geometry.Rect)) {
	e.mu.Lock()
	e.listeners.selectionRect = append(e.listeners.selectionRect, fn)
	e.mu.Unlock()
}

// OnSelect registers a listener called with the new selection after a
// selection click or drag.
func (e *Engine) OnSelect(fn func(ids []string)) {
	e.mu.Lock()
	e.listeners.selectIDs = append(e.listeners.selectIDs, fn)
	e.mu.Unlock()
}

// OnContextMenu registers a listener for honoured context-menu requests.
func (e *Engine) OnContextMenu(fn func(screen geometry.Point2D)) {
	e.mu.Lock()
	e.listeners.contextMenu = append(e.listeners.contextMenu, fn)
	e.mu.Unlock()
}

// OnFrame registers a listener called after the frame loop drew.
func (e *Engine) OnFrame(fn func()) {
	e.mu.Lock()
	e.listeners.frame = append(e.listeners.frame, fn)
	e.mu.Unlock()
}

// Start runs the renderer and minimap frame loops and the eviction sweep.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.images.StartSweep()
	e.frames.Start(func() {
		if !e.renderer.Frame() {
			return
		}
		e.mu.Lock()
		fns := e.listeners.frame
		e.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	})
	e.minimap.Start()
	e.logger.Info("engine: started", "items", e.board.Len())
}

// Close stops the loops, commits any pending transform, stops the sweep
// and waits for in-flight image loads.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.frames.Stop()
	e.minimap.Stop()
	e.committer.Close()
	e.images.Close()
	err := e.renderer.Close()
	e.logger.Info("engine: closed")
	return err
}

// Resize sets the viewport size in screen pixels. A fit-all requested
// while the viewport had no area is applied on the first non-empty size.
func (e *Engine) Resize(width, height float64) {
	e.store.SetSize(geometry.NewSize(width, height))
	if width <= 0 || height <= 0 {
		return
	}
	e.mu.Lock()
	deferred := e.fitLater
	e.fitLater = false
	e.mu.Unlock()
	if deferred {
		e.logger.Debug("engine: applying deferred fit", "width", width, "height", height)
		e.FitAll()
	}
}

// Frame draws one frame if anything changed and reports whether it drew.
func (e *Engine) Frame() bool {
	return e.renderer.Frame()
}

// Snapshot draws if needed and returns a copy of the bitmap layer.
func (e *Engine) Snapshot() *image.RGBA {
	e.renderer.Frame()
	return e.renderer.Image()
}

// PointerDown routes a press to the gesture its bindings select and
// returns that gesture. An armed window-move returns gesture.None.
func (e *Engine) PointerDown(button gesture.Button, held gesture.KeySet, pos geometry.Point2D) gesture.Kind {
	if k := e.gestures.Active(); k != gesture.None || e.gestures.Armed() {
		return k
	}
	k := e.gestures.Down(button, held, pos)
	switch k {
	case gesture.DragZoom:
		left := pos.X < e.store.Size().Width/2
		e.committer.BeginDragZoom(pos, left)
	case gesture.Selection:
		e.committer.Begin()
		e.mu.Lock()
		e.selStart = e.store.Visual().ToWorld(pos)
		e.selRect = geometry.Rect{X: e.selStart.X, Y: e.selStart.Y}
		e.selMoved = false
		e.mu.Unlock()
	default:
		e.committer.Begin()
	}
	e.logger.Debug("engine: pointer down", "button", button, "gesture", k, "armed", e.gestures.Armed())
	return k
}

// PointerMove feeds the owning gesture and returns it.
func (e *Engine) PointerMove(pos geometry.Point2D) gesture.Kind {
	k, d := e.gestures.Move(pos)
	switch k {
	case gesture.Pan:
		e.committer.Pan(d.X, d.Y)
	case gesture.DragZoom:
		e.committer.DragZoom(d.X)
	case gesture.WindowMove:
		e.emitWindowMove(d)
	case gesture.OpacityDrag:
		e.adjustOpacity(d.X)
	case gesture.Selection:
		e.dragSelection(pos)
	}
	return k
}

// PointerUp ends the gesture and returns the kind that ended.
func (e *Engine) PointerUp(pos geometry.Point2D) gesture.Kind {
	k := e.gestures.Up()
	e.finish(k, pos, true)
	return k
}

// PointerLeave cancels the gesture when the pointer leaves the surface.
// Viewport gestures still commit; a selection drag is dropped.
func (e *Engine) PointerLeave() gesture.Kind {
	k := e.gestures.Cancel()
	e.finish(k, geometry.Point2D{}, false)
	return k
}

func (e *Engine) finish(k gesture.Kind, pos geometry.Point2D, commit bool) {
	switch k {
	case gesture.Pan, gesture.DragZoom:
		e.committer.End()
	case gesture.Selection:
		if commit {
			e.endSelection(pos)
		}
		e.committer.Flush()
	default:
		e.committer.Flush()
	}
	if k != gesture.None {
		e.logger.Debug("engine: gesture ended", "gesture", k)
	}
}

// Wheel applies a wheel event at a screen position. The wheel zooms unless
// a wheel modifier is configured and not held, in which case it pans.
func (e *Engine) Wheel(dx, dy float64, held gesture.KeySet, pos geometry.Point2D) bool {
	e.mu.Lock()
	mod := e.cfg.WheelModifier
	e.mu.Unlock()
	if mod == "" || held.Has(mod) {
		return e.committer.Wheel(dy, pos)
	}
	return e.committer.PanBy(-dx, -dy)
}

// ContextMenu reports whether a context-menu request at pos is honoured
// and notifies listeners if so.
func (e *Engine) ContextMenu(pos geometry.Point2D) bool {
	if !e.gestures.ContextMenuAllowed() {
		e.logger.Debug("engine: context menu suppressed")
		return false
	}
	e.mu.Lock()
	fns := e.listeners.contextMenu
	e.mu.Unlock()
	for _, fn := range fns {
		fn(pos)
	}
	return true
}

// HitTest returns the top-most item at a world point.
func (e *Engine) HitTest(world geometry.Point2D) (string, bool) {
	return e.board.HitTest(world)
}

// HitTestScreen returns the top-most item under a screen point using the
// visual transform.
func (e *Engine) HitTestScreen(screen geometry.Point2D) (string, bool) {
	return e.board.HitTest(e.store.Visual().ToWorld(screen))
}

// FitToItem jumps to show the item centred with the configured padding.
func (e *Engine) FitToItem(id string) bool {
	e.cancelDeferredFit()
	bounds, ok := e.itemBounds(id)
	if !ok {
		e.logger.Debug("engine: fit to unknown item", "id", id)
		return false
	}
	return e.committer.FitTo(bounds, e.Config().FitPadding)
}

// FitAll jumps to show every item. Before the viewport has a size the fit
// is deferred to the first Resize and FitAll reports false.
func (e *Engine) FitAll() bool {
	items := e.board.Ordered()
	if len(items) == 0 {
		return false
	}
	if size := e.store.Size(); size.Width <= 0 || size.Height <= 0 {
		e.mu.Lock()
		e.fitLater = true
		e.mu.Unlock()
		e.logger.Debug("engine: fit deferred until resize", "items", len(items))
		return false
	}
	bounds := items[0].Extent()
	for _, it := range items[1:] {
		bounds = bounds.Union(it.Extent())
	}
	return e.committer.FitTo(bounds, e.Config().FitPadding)
}

// Jump sets both transforms. It replaces any deferred fit.
func (e *Engine) Jump(t viewport.Transform) bool {
	e.cancelDeferredFit()
	return e.committer.Jump(t)
}

// NavigateTo centres the viewport on a world point.
func (e *Engine) NavigateTo(world geometry.Point2D) bool {
	e.cancelDeferredFit()
	return e.committer.NavigateTo(world)
}

// ZoomBy zooms by factor about the viewport centre.
func (e *Engine) ZoomBy(factor float64) bool {
	e.cancelDeferredFit()
	size := e.store.Size()
	return e.committer.ZoomBy(factor, geometry.NewPoint2D(size.Width/2, size.Height/2))
}

// Reset returns to scale 1 at the origin.
func (e *Engine) Reset() bool {
	e.cancelDeferredFit()
	return e.committer.Reset()
}

func (e *Engine) cancelDeferredFit() {
	e.mu.Lock()
	e.fitLater = false
	e.mu.Unlock()
}

// Opacity returns the window opacity driven by opacity drags.
func (e *Engine) Opacity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opacity
}

// SetOpacity sets the opacity without notifying listeners.
func (e *Engine) SetOpacity(v float64) {
	e.mu.Lock()
	e.opacity = clampOpacity(v)
	e.mu.Unlock()
}

func clampOpacity(v float64) float64 {
	if math.IsNaN(v) {
		return MaxOpacity
	}
	return math.Max(MinOpacity, math.Min(MaxOpacity, v))
}

func (e *Engine) adjustOpacity(dx float64) {
	e.mu.Lock()
	next := clampOpacity(e.opacity + dx*OpacityStep)
	changed := next != e.opacity
	e.opacity = next
	fns := e.listeners.opacity
	e.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range fns {
		fn(next)
	}
}

func (e *Engine) emitWindowMove(d geometry.Point2D) {
	e.mu.Lock()
	fns := e.listeners.windowMove
	e.mu.Unlock()
	for _, fn := range fns {
		fn(d.X, d.Y)
	}
}

func (e *Engine) dragSelection(pos geometry.Point2D) {
	cur := e.store.Visual().ToWorld(pos)
	e.mu.Lock()
	start := e.selStart
	r := geometry.NewRect(
		math.Min(start.X, cur.X), math.Min(start.Y, cur.Y),
		math.Abs(cur.X-start.X), math.Abs(cur.Y-start.Y),
	)
	e.selRect = r
	e.selMoved = true
	fns := e.listeners.selectionRect
	e.mu.Unlock()
	for _, fn := range fns {
		fn(r)
	}
}

// endSelection replaces the selection with the items inside the rubber
// band, or with the item under a plain click.
func (e *Engine) endSelection(pos geometry.Point2D) {
	e.mu.Lock()
	moved, r := e.selMoved, e.selRect
	e.selMoved = false
	fns := e.listeners.selectIDs
	e.mu.Unlock()

	var ids []string
	if moved {
		ids = e.board.Intersecting(r)
	} else if id, ok := e.HitTestScreen(pos); ok {
		ids = []string{id}
	}
	e.board.Selected.Replace(ids...)
	e.renderer.Invalidate()
	for _, fn := range fns {
		fn(ids)
	}
}
