package canvas

import (
	"image"
	"image/color"

	"refboard/internal/minimap"
	"refboard/pkg/geometry"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

// MinimapView shows the minimap overlay. Tapping or dragging on it centres
// the board on the point under the pointer.
type MinimapView struct {
	widget.BaseWidget

	minimap *minimap.Minimap
	raster  *fynecanvas.Raster
}

var (
	_ fyne.Tappable  = (*MinimapView)(nil)
	_ fyne.Draggable = (*MinimapView)(nil)
)

// NewMinimapView creates a view for m that redraws when its indicator
// moves.
func NewMinimapView(m *minimap.Minimap) *MinimapView {
	mv := &MinimapView{minimap: m}
	mv.raster = fynecanvas.NewRaster(mv.draw)
	m.OnIndicator(func(geometry.Rect) { mv.raster.Refresh() })
	mv.ExtendBaseWidget(mv)
	return mv
}

func (mv *MinimapView) draw(w, h int) image.Image {
	img := mv.minimap.Draw()
	if img == nil {
		return image.NewUniform(color.Transparent)
	}
	return img
}

// toMinimap converts a widget position into minimap space, which may be
// drawn at a different size than the widget.
func (mv *MinimapView) toMinimap(p fyne.Position) geometry.Point2D {
	size := mv.Size()
	side := mv.minimap.Size()
	if size.Width <= 0 || size.Height <= 0 {
		return point(p)
	}
	return geometry.NewPoint2D(
		float64(p.X)*side/float64(size.Width),
		float64(p.Y)*side/float64(size.Height),
	)
}

// Tapped implements fyne.Tappable.
func (mv *MinimapView) Tapped(ev *fyne.PointEvent) {
	mv.minimap.Click(mv.toMinimap(ev.Position))
}

// Dragged implements fyne.Draggable.
func (mv *MinimapView) Dragged(ev *fyne.DragEvent) {
	mv.minimap.Click(mv.toMinimap(ev.Position))
}

// DragEnd implements fyne.Draggable.
func (mv *MinimapView) DragEnd() {}

// CreateRenderer implements fyne.Widget.
func (mv *MinimapView) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(mv.raster)
}

// MinSize keeps the view square at the minimap's size.
func (mv *MinimapView) MinSize() fyne.Size {
	s := float32(mv.minimap.Size())
	return fyne.NewSize(s, s)
}
