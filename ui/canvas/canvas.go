// Package canvas hosts the board engine in fyne widgets.
package canvas

import (
	"image"
	"image/color"

	"refboard/internal/engine"
	"refboard/internal/gesture"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

// BoardCanvas displays the engine's bitmap layer and feeds it mouse,
// wheel and key input.
type BoardCanvas struct {
	widget.BaseWidget

	engine *engine.Engine
	raster *fynecanvas.Raster

	// Interaction state
	modifiers fyne.KeyModifier
	space     bool
	pressed   bool

	// Context menu items shown on an honoured right click
	menu *fyne.Menu
}

var (
	_ desktop.Mouseable      = (*BoardCanvas)(nil)
	_ desktop.Hoverable      = (*BoardCanvas)(nil)
	_ desktop.Keyable        = (*BoardCanvas)(nil)
	_ fyne.Scrollable        = (*BoardCanvas)(nil)
	_ fyne.SecondaryTappable = (*BoardCanvas)(nil)
)

// NewBoardCanvas creates a canvas for eng. The caller owns the engine's
// lifecycle.
func NewBoardCanvas(eng *engine.Engine) *BoardCanvas {
	bc := &BoardCanvas{engine: eng}
	bc.raster = fynecanvas.NewRaster(bc.draw)
	bc.raster.ScaleMode = fynecanvas.ImageScalePixels
	eng.OnFrame(func() { bc.raster.Refresh() })
	bc.ExtendBaseWidget(bc)
	return bc
}

// SetContextMenu sets the menu shown on right click.
func (bc *BoardCanvas) SetContextMenu(m *fyne.Menu) {
	bc.menu = m
}

// draw is the raster generator. w and h are device pixels.
func (bc *BoardCanvas) draw(w, h int) image.Image {
	if c := fyne.CurrentApp().Driver().CanvasForObject(bc); c != nil && c.Scale() > 0 {
		bc.engine.Renderer().SetPixelRatio(float64(c.Scale()))
	}
	img := bc.engine.Snapshot()
	if img == nil {
		return image.NewUniform(color.Transparent)
	}
	return img
}

// heldKeys returns the current modifier state, preferring the driver's
// view of the keyboard over the last mouse event.
func (bc *BoardCanvas) heldKeys() gesture.KeySet {
	mod := bc.modifiers
	if d, ok := fyne.CurrentApp().Driver().(desktop.Driver); ok {
		mod = d.CurrentKeyModifiers()
	}
	return keySet(mod, bc.space)
}

// MouseDown implements desktop.Mouseable.
func (bc *BoardCanvas) MouseDown(ev *desktop.MouseEvent) {
	button, ok := mouseButton(ev.Button)
	if !ok {
		return
	}
	bc.modifiers = ev.Modifier
	if c := fyne.CurrentApp().Driver().CanvasForObject(bc); c != nil {
		c.Focus(bc)
	}
	bc.pressed = true
	bc.engine.PointerDown(button, bc.heldKeys(), point(ev.Position))
}

// MouseUp implements desktop.Mouseable.
func (bc *BoardCanvas) MouseUp(ev *desktop.MouseEvent) {
	bc.modifiers = ev.Modifier
	bc.pressed = false
	bc.engine.PointerUp(point(ev.Position))
}

// MouseIn implements desktop.Hoverable.
func (bc *BoardCanvas) MouseIn(ev *desktop.MouseEvent) {
	bc.modifiers = ev.Modifier
}

// MouseMoved implements desktop.Hoverable.
func (bc *BoardCanvas) MouseMoved(ev *desktop.MouseEvent) {
	bc.modifiers = ev.Modifier
	if bc.pressed {
		bc.engine.PointerMove(point(ev.Position))
	}
}

// MouseOut implements desktop.Hoverable.
func (bc *BoardCanvas) MouseOut() {
	if bc.pressed {
		bc.pressed = false
		bc.engine.PointerLeave()
	}
}

// Scrolled implements fyne.Scrollable.
func (bc *BoardCanvas) Scrolled(ev *fyne.ScrollEvent) {
	dx, dy := wheelDelta(ev.Scrolled)
	bc.engine.Wheel(dx, dy, bc.heldKeys(), point(ev.Position))
}

// TappedSecondary shows the context menu unless a drag just ended.
func (bc *BoardCanvas) TappedSecondary(ev *fyne.PointEvent) {
	if !bc.engine.ContextMenu(point(ev.Position)) || bc.menu == nil {
		return
	}
	c := fyne.CurrentApp().Driver().CanvasForObject(bc)
	if c == nil {
		return
	}
	widget.ShowPopUpMenuAtPosition(bc.menu, c, ev.AbsolutePosition)
}

// FocusGained implements fyne.Focusable.
func (bc *BoardCanvas) FocusGained() {}

// FocusLost implements fyne.Focusable.
func (bc *BoardCanvas) FocusLost() {
	bc.space = false
}

// TypedRune implements fyne.Focusable.
func (bc *BoardCanvas) TypedRune(rune) {}

// TypedKey handles keyboard navigation.
func (bc *BoardCanvas) TypedKey(ev *fyne.KeyEvent) {
	switch ev.Name {
	case fyne.KeyEqual:
		bc.engine.ZoomBy(1.25)
	case fyne.KeyMinus:
		bc.engine.ZoomBy(0.8)
	case fyne.Key0:
		bc.engine.Reset()
	case fyne.KeyLeft:
		bc.engine.Committer().PanBy(40, 0)
	case fyne.KeyRight:
		bc.engine.Committer().PanBy(-40, 0)
	case fyne.KeyUp:
		bc.engine.Committer().PanBy(0, 40)
	case fyne.KeyDown:
		bc.engine.Committer().PanBy(0, -40)
	}
}

// KeyDown implements desktop.Keyable.
func (bc *BoardCanvas) KeyDown(ev *fyne.KeyEvent) {
	if ev.Name == fyne.KeySpace {
		bc.space = true
	}
}

// KeyUp implements desktop.Keyable.
func (bc *BoardCanvas) KeyUp(ev *fyne.KeyEvent) {
	if ev.Name == fyne.KeySpace {
		bc.space = false
	}
}

// CreateRenderer implements fyne.Widget.
func (bc *BoardCanvas) CreateRenderer() fyne.WidgetRenderer {
	return &boardCanvasRenderer{canvas: bc}
}

type boardCanvasRenderer struct {
	canvas *BoardCanvas
}

func (r *boardCanvasRenderer) Layout(size fyne.Size) {
	r.canvas.raster.Resize(size)
	r.canvas.engine.Resize(float64(size.Width), float64(size.Height))
}

func (r *boardCanvasRenderer) MinSize() fyne.Size {
	return fyne.NewSize(100, 100)
}

func (r *boardCanvasRenderer) Refresh() {
	r.canvas.raster.Refresh()
}

func (r *boardCanvasRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.canvas.raster}
}

func (r *boardCanvasRenderer) Destroy() {}
