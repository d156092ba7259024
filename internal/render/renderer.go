// Package render paints board media onto an immediate-mode bitmap surface
// in world space. It reads only the visual transform and redraws only when
// its per-frame change signature moves.
package render

import (
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"refboard/internal/board"
	"refboard/internal/imagecache"
	"refboard/internal/viewport"
	"refboard/pkg/geometry"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// CullMinScale is the zoom level below which viewport culling is skipped:
// AABB tests on large world coordinates flicker at extreme zoom-out.
const CullMinScale = 0.2

// SelectionStroke is the outline width in screen pixels.
const SelectionStroke = 3.0

// maxTransformedSide caps the pre-rotated bitmap of a rotated or flipped
// image item.
const maxTransformedSide = 2048

// Appearance is the hot-swappable look of the bitmap layer.
type Appearance struct {
	Background  color.Color
	Placeholder color.Color
	AdSlot      color.Color
	Selection   color.Color
}

// DefaultAppearance returns a dark board with a blue selection outline.
func DefaultAppearance() Appearance {
	return Appearance{
		Background:  color.NRGBA{R: 0x1e, G: 0x1e, B: 0x22, A: 0xff},
		Placeholder: color.NRGBA{R: 0x3a, G: 0x3a, B: 0x40, A: 0xff},
		AdSlot:      color.NRGBA{R: 0x4a, G: 0x42, B: 0x2a, A: 0xff},
		Selection:   color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
	}
}

// signature is everything a frame depends on. Two equal signatures mean
// the previous frame is still correct.
type signature struct {
	visual   viewport.Transform
	width    int
	height   int
	items    int
	selected int
	ghosts   uint64
	hidden   uint64
}

// Renderer owns the bitmap surface.
type Renderer struct {
	board  *board.Board
	store  *viewport.Store
	images *imagecache.Cache
	logger *slog.Logger

	force atomic.Bool

	mu         sync.Mutex
	dc         *gg.Context
	ratio      float64
	appearance Appearance
	last       signature
	drawn      bool
	lastIDs    []string
	frames     uint64
	bufs       map[image.Image]*gg.ImageBuf
	turned     map[turnKey]*gg.ImageBuf
}

// turnKey identifies a pre-transformed copy of a source bitmap.
type turnKey struct {
	img           image.Image
	width, height float64
	rotation      float64
	flipX, flipY  bool
}

func turnKeyOf(img image.Image, it board.Item) turnKey {
	return turnKey{img, it.Width, it.Height, it.Rotation, it.FlipX, it.FlipY}
}

// turned reports whether an item needs its bitmap pre-transformed:
// DrawImageEx only places images axis-aligned.
func turned(it board.Item) bool {
	return it.Rotation != 0 || it.FlipX || it.FlipY
}

// New creates a renderer. ratio is the device pixel ratio.
func New(b *board.Board, store *viewport.Store, images *imagecache.Cache, ratio float64) *Renderer {
	if ratio <= 0 {
		ratio = 1
	}
	return &Renderer{
		board:      b,
		store:      store,
		images:     images,
		logger:     slog.New(slog.DiscardHandler),
		ratio:      ratio,
		appearance: DefaultAppearance(),
		bufs:       make(map[image.Image]*gg.ImageBuf),
		turned:     make(map[turnKey]*gg.ImageBuf),
	}
}

// SetLogger sets the logger.
func (r *Renderer) SetLogger(l *slog.Logger) {
	if l != nil {
		r.mu.Lock()
		r.logger = l
		r.mu.Unlock()
	}
}

// SetAppearance swaps the colours and forces a redraw.
func (r *Renderer) SetAppearance(a Appearance) {
	r.mu.Lock()
	r.appearance = a
	r.mu.Unlock()
	r.Invalidate()
}

// SetPixelRatio changes the device pixel ratio.
func (r *Renderer) SetPixelRatio(ratio float64) {
	if ratio <= 0 || math.IsNaN(ratio) {
		return
	}
	r.mu.Lock()
	r.ratio = ratio
	r.mu.Unlock()
	r.Invalidate()
}

// Invalidate forces the next Frame to draw.
func (r *Renderer) Invalidate() {
	r.force.Store(true)
}

// Frame is the per-frame poll: it draws if the signature changed or a
// redraw was forced, and reports whether it drew.
func (r *Renderer) Frame() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sig := r.signatureLocked()
	forced := r.force.Swap(false)
	if r.drawn && !forced && sig == r.last {
		return false
	}
	r.drawLocked(sig)
	return true
}

// Frames returns the number of draw passes so far.
func (r *Renderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// LastDrawn returns the ids painted by the last pass, in paint order.
func (r *Renderer) LastDrawn() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lastIDs...)
}

// Image returns a copy of the last frame, or nil before the first draw.
func (r *Renderer) Image() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dc == nil {
		return nil
	}
	return r.dc.Image().(*image.RGBA)
}

// Close releases the surface.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dc == nil {
		return nil
	}
	err := r.dc.Close()
	r.dc = nil
	r.drawn = false
	return err
}

func (r *Renderer) signatureLocked() signature {
	size := r.store.Size()
	return signature{
		visual:   r.store.Visual(),
		width:    int(math.Ceil(size.Width * r.ratio)),
		height:   int(math.Ceil(size.Height * r.ratio)),
		items:    r.board.Len(),
		selected: r.board.Selected.Len(),
		ghosts:   r.board.Ghosts.Signature(),
		hidden:   r.board.Hidden.Signature(),
	}
}

func (r *Renderer) drawLocked(sig signature) {
	r.last = sig
	if sig.width <= 0 || sig.height <= 0 {
		return
	}
	if r.dc == nil {
		r.dc = gg.NewContext(sig.width, sig.height)
	} else if r.dc.Width() != sig.width || r.dc.Height() != sig.height {
		if err := r.dc.Resize(sig.width, sig.height); err != nil {
			r.logger.Warn("render: resize failed", "err", err)
			return
		}
	}
	r.drawn = true
	r.frames++

	dc := r.dc
	dc.Identity()
	dc.ClearWithColor(gg.FromColor(r.appearance.Background))

	v := sig.visual
	dc.Scale(r.ratio, r.ratio)
	dc.Translate(v.X, v.Y)
	dc.Scale(v.Scale, v.Scale)

	view := v.WorldRect(r.store.Size())
	items := Cull(r.board.Ordered(), view, v.Scale)

	used := make(map[image.Image]bool)
	turnedUsed := make(map[turnKey]bool)
	r.lastIDs = r.lastIDs[:0]
	for _, it := range items {
		if r.board.Hidden.Has(it.ID) {
			continue
		}
		selected := r.board.Selected.Has(it.ID)
		dc.Push()
		painted := selected && it.IsImage()
		if !painted && it.IsImage() && turned(it) {
			// Drawn in world space before the local transform.
			painted = r.drawTurnedImage(dc, it, used, turnedUsed)
			if painted {
				r.lastIDs = append(r.lastIDs, it.ID)
			}
		}
		placeLocal(dc, it)
		if !painted {
			if r.drawItem(dc, it, used) {
				r.lastIDs = append(r.lastIDs, it.ID)
			}
		}
		if selected && it.Kind != board.KindText {
			dc.SetColor(r.appearance.Selection)
			dc.SetLineWidth(SelectionStroke / v.Scale)
			dc.DrawRectangle(0, 0, it.Width, it.Height)
			_ = dc.Stroke()
		}
		dc.Pop()
	}

	for img := range r.bufs {
		if !used[img] {
			delete(r.bufs, img)
		}
	}
	for k := range r.turned {
		if !turnedUsed[k] {
			delete(r.turned, k)
		}
	}
}

// drawTurnedImage paints a rotated or flipped image item through a
// bitmap pre-transformed into the item's world extent. It reports false
// when the image is not loaded yet, leaving the placeholder to drawItem.
func (r *Renderer) drawTurnedImage(dc *gg.Context, it board.Item, used map[image.Image]bool, turnedUsed map[turnKey]bool) bool {
	if r.images == nil {
		return false
	}
	img, _ := r.images.Image(it)
	if img == nil {
		return false
	}
	used[img] = true
	ext := it.Extent()
	key := turnKeyOf(img, it)
	buf, ok := r.turned[key]
	if !ok {
		t := turnImage(img, it)
		if t == nil {
			return false
		}
		buf = gg.ImageBufFromImage(t)
		r.turned[key] = buf
	}
	turnedUsed[key] = true
	dc.DrawImageEx(buf, gg.DrawImageOptions{
		X:             ext.X,
		Y:             ext.Y,
		DstWidth:      ext.Width,
		DstHeight:     ext.Height,
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
	})
	return true
}

// turnImage resamples src into a bitmap covering it.Extent() with the
// item's rotation and flips applied about its centre, at roughly the
// source's own resolution.
func turnImage(src image.Image, it board.Item) *image.RGBA {
	sb := src.Bounds()
	if sb.Empty() || it.Width <= 0 || it.Height <= 0 {
		return nil
	}
	ext := it.Extent()
	// Bitmap pixels per world unit.
	k := math.Max(float64(sb.Dx())/it.Width, float64(sb.Dy())/it.Height)
	if side := math.Max(ext.Width, ext.Height) * k; side > maxTransformedSide {
		k *= maxTransformedSide / side
	}
	w, h := int(math.Ceil(ext.Width*k)), int(math.Ceil(ext.Height*k))
	if w <= 0 || h <= 0 {
		return nil
	}

	fx, fy := 1.0, 1.0
	if it.FlipX {
		fx = -1
	}
	if it.FlipY {
		fy = -1
	}
	sin, cos := math.Sincos(it.Rotation * math.Pi / 180)
	ux, uy := it.Width/float64(sb.Dx()), it.Height/float64(sb.Dy())
	c := it.Bounds().Center()
	ox, oy := -float64(sb.Min.X)*ux-it.Width/2, -float64(sb.Min.Y)*uy-it.Height/2

	// source pixel -> centred local -> flipped -> rotated -> world -> bitmap
	m := f64.Aff3{
		k * cos * fx * ux, -k * sin * fy * uy, k * (c.X - ext.X + cos*fx*ox - sin*fy*oy),
		k * sin * fx * ux, k * cos * fy * uy, k * (c.Y - ext.Y + sin*fx*ox + cos*fy*oy),
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Transform(dst, m, src, sb, xdraw.Over, nil)
	return dst
}

// placeLocal moves the origin to the item's top-left corner with its
// rotation and flips applied about the centre.
func placeLocal(dc *gg.Context, it board.Item) {
	cx, cy := it.X+it.Width/2, it.Y+it.Height/2
	dc.Translate(cx, cy)
	if it.Rotation != 0 {
		dc.Rotate(it.Rotation * math.Pi / 180)
	}
	sx, sy := 1.0, 1.0
	if it.FlipX {
		sx = -1
	}
	if it.FlipY {
		sy = -1
	}
	if sx != 1 || sy != 1 {
		dc.Scale(sx, sy)
	}
	dc.Translate(-it.Width/2, -it.Height/2)
}

// drawItem paints one item at the local origin and reports whether the
// bitmap layer owns its content.
func (r *Renderer) drawItem(dc *gg.Context, it board.Item, used map[image.Image]bool) bool {
	switch it.Kind {
	case board.KindImage, board.KindAd:
		var img image.Image
		if r.images != nil {
			img, _ = r.images.Image(it)
		}
		if img == nil {
			fill := r.appearance.Placeholder
			if it.Kind == board.KindAd {
				fill = r.appearance.AdSlot
			}
			dc.SetColor(fill)
			dc.DrawRectangle(0, 0, it.Width, it.Height)
			_ = dc.Fill()
			return true
		}
		used[img] = true
		buf, ok := r.bufs[img]
		if !ok {
			buf = gg.ImageBufFromImage(img)
			r.bufs[img] = buf
		}
		dc.DrawImageEx(buf, gg.DrawImageOptions{
			DstWidth:      it.Width,
			DstHeight:     it.Height,
			Interpolation: gg.InterpBilinear,
			Opacity:       1,
		})
		return true
	case board.KindPlaceholder:
		dc.SetColor(r.appearance.Placeholder)
		dc.DrawRectangle(0, 0, it.Width, it.Height)
		_ = dc.Fill()
		return true
	}
	return false
}

// Cull returns the items that may be visible in view. Each item's box is
// grown by its larger side so rotated items are never dropped early.
// Always-visible items are kept, and below CullMinScale nothing is culled.
func Cull(items []board.Item, view geometry.Rect, scale float64) []board.Item {
	if scale < CullMinScale {
		return items
	}
	out := make([]board.Item, 0, len(items))
	for _, it := range items {
		if it.AlwaysVisible() || it.Bounds().Expand(max(it.Width, it.Height)).Intersects(view) {
			out = append(out, it)
		}
	}
	return out
}
