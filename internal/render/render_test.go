package render

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"slices"
	"testing"
	"time"

	"refboard/internal/board"
	"refboard/internal/clock"
	"refboard/internal/imagecache"
	"refboard/internal/viewport"
	"refboard/pkg/geometry"
)

func TestCull(t *testing.T) {
	view := geometry.NewRect(0, 0, 100, 100)
	items := []board.Item{
		{ID: "inside", X: 10, Y: 10, Width: 10, Height: 10},
		{ID: "margin", X: 105, Y: 10, Width: 10, Height: 10},
		{ID: "far", X: 500, Y: 500, Width: 10, Height: 10},
		{ID: "far-left", X: -300, Y: 0, Width: 50, Height: 50},
		{ID: "ad", X: 9000, Y: 9000, Width: 10, Height: 10, Kind: board.KindAd},
	}

	got := idsOf(Cull(items, view, 1))
	want := []string{"inside", "margin", "ad"}
	if !slices.Equal(got, want) {
		t.Errorf("Cull at scale 1 = %v, want %v", got, want)
	}

	if got := Cull(items, view, CullMinScale-0.01); len(got) != len(items) {
		t.Errorf("Cull below %v dropped items: %v", CullMinScale, idsOf(got))
	}
}

func idsOf(items []board.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

type fixture struct {
	board     *board.Board
	store     *viewport.Store
	committer *viewport.Committer
	cache     *imagecache.Cache
	r         *Renderer
}

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func newFixture(t *testing.T, items ...board.Item) *fixture {
	t.Helper()
	return newFixtureWith(t, imagecache.FetcherFunc(func(ctx context.Context, key string) (image.Image, error) {
		return solid(color.RGBA{R: 255, A: 255}), nil
	}), items...)
}

func newFixtureWith(t *testing.T, fetch imagecache.Fetcher, items ...board.Item) *fixture {
	t.Helper()
	b := board.New()
	if err := b.SetItems(items); err != nil {
		t.Fatal(err)
	}
	store := viewport.NewStore(viewport.Identity())
	store.SetSize(geometry.NewSize(100, 100))
	cache := imagecache.New(fetch)
	t.Cleanup(cache.Close)
	r := New(b, store, cache, 1)
	cache.OnLoad(func(string) { r.Invalidate() })
	return &fixture{
		board:     b,
		store:     store,
		committer: viewport.NewCommitter(store, clock.NewFake(time.Unix(0, 0))),
		cache:     cache,
		r:         r,
	}
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -3 && d <= 3
}

func sameColor(got color.RGBA, want color.Color) bool {
	w := color.RGBAModel.Convert(want).(color.RGBA)
	return near(got.R, w.R) && near(got.G, w.G) && near(got.B, w.B)
}

func TestFrameChangeDetection(t *testing.T) {
	f := newFixture(t, board.Item{ID: "p", X: 10, Y: 10, Width: 20, Height: 20, Kind: board.KindPlaceholder})

	if !f.r.Frame() {
		t.Fatal("first frame did not draw")
	}
	if f.r.Frame() {
		t.Fatal("unchanged frame redrew")
	}

	steps := []struct {
		name   string
		change func()
	}{
		{"visual pan", func() { f.committer.Pan(5, 0) }},
		{"ghost", func() { f.board.Ghosts.Set("p", geometry.NewPoint2D(40, 40)) }},
		{"hidden", func() { f.board.Hidden.Add("p") }},
		{"selection", func() { f.board.Selected.Add("p") }},
		{"resize", func() { f.store.SetSize(geometry.NewSize(120, 100)) }},
		{"forced", func() { f.r.Invalidate() }},
		{"item count", func() { _ = f.board.SetItems(nil) }},
	}
	for _, s := range steps {
		s.change()
		if !f.r.Frame() {
			t.Errorf("%s: no redraw", s.name)
		}
		if f.r.Frame() {
			t.Errorf("%s: redrew twice", s.name)
		}
	}
	if got := f.r.Frames(); got != uint64(len(steps)+1) {
		t.Errorf("Frames = %d, want %d", got, len(steps)+1)
	}
}

func TestDrawsFromVisualTransform(t *testing.T) {
	f := newFixture(t, board.Item{ID: "p", X: 0, Y: 0, Width: 20, Height: 20, Kind: board.KindPlaceholder})
	app := DefaultAppearance()

	f.r.Frame()
	img := f.r.Image()
	if !sameColor(img.RGBAAt(10, 10), app.Placeholder) {
		t.Fatalf("placeholder not drawn at origin: %v", img.RGBAAt(10, 10))
	}

	// Pan without committing: the bitmap must follow immediately.
	f.committer.Begin()
	f.committer.Pan(50, 50)
	f.r.Frame()
	img = f.r.Image()
	if !sameColor(img.RGBAAt(10, 10), app.Background) {
		t.Errorf("old position still painted: %v", img.RGBAAt(10, 10))
	}
	if !sameColor(img.RGBAAt(60, 60), app.Placeholder) {
		t.Errorf("item not at visual position: %v", img.RGBAAt(60, 60))
	}
	if f.store.InSync() {
		t.Fatal("test precondition: committed transform should lag")
	}
}

func TestImageLoadsAsDrawSideEffect(t *testing.T) {
	f := newFixture(t, board.Item{ID: "img", X: 10, Y: 10, Width: 40, Height: 40, Kind: board.KindImage, Source: "red.png"})
	app := DefaultAppearance()

	if f.cache.Len() != 0 {
		t.Fatal("cache populated before drawing")
	}
	f.r.Frame()
	if !sameColor(f.r.Image().RGBAAt(30, 30), app.Placeholder) {
		t.Errorf("unloaded image not a placeholder: %v", f.r.Image().RGBAAt(30, 30))
	}
	f.cache.Wait()
	if !f.r.Frame() {
		t.Fatal("load did not force a redraw")
	}
	if got := f.r.Image().RGBAAt(30, 30); !sameColor(got, color.RGBA{R: 255, A: 255}) {
		t.Errorf("loaded pixel = %v, want red", got)
	}
}

func TestRotatedImage(t *testing.T) {
	red, blue := color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255}
	// Left half red, right half blue.
	halves := image.NewRGBA(image.Rect(0, 0, 8, 4))
	draw.Draw(halves, image.Rect(0, 0, 4, 4), &image.Uniform{C: red}, image.Point{}, draw.Src)
	draw.Draw(halves, image.Rect(4, 0, 8, 4), &image.Uniform{C: blue}, image.Point{}, draw.Src)
	fetch := imagecache.FetcherFunc(func(ctx context.Context, key string) (image.Image, error) {
		return halves, nil
	})

	// A quarter turn clockwise about (40,20) stands the item up in
	// x 20..60, y -20..60 with the red half on top.
	f := newFixtureWith(t, fetch, board.Item{ID: "r", X: 0, Y: 0, Width: 80, Height: 40,
		Kind: board.KindImage, Source: "halves.png", Rotation: 90})
	f.committer.Jump(viewport.Transform{X: 0, Y: 40, Scale: 1})
	f.r.Frame()
	f.cache.Wait()
	f.r.Frame()

	img := f.r.Image()
	app := DefaultAppearance()
	tests := []struct {
		name string
		x, y int
		want color.Color
	}{
		{"top half", 40, 30, red},
		{"bottom half", 40, 90, blue},
		{"unrotated footprint", 10, 60, app.Background},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y); !sameColor(got, tt.want) {
			t.Errorf("%s (%d,%d) = %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}
	if got := f.r.LastDrawn(); !slices.Equal(got, []string{"r"}) {
		t.Errorf("LastDrawn = %v", got)
	}
}

func TestSelectedImagesLeftToItemLayer(t *testing.T) {
	f := newFixture(t,
		board.Item{ID: "a", X: 10, Y: 10, Width: 30, Height: 30, Kind: board.KindImage, Source: "x"},
		board.Item{ID: "b", X: 50, Y: 50, Width: 30, Height: 30, Kind: board.KindPlaceholder, ZIndex: -1},
		board.Item{ID: "t", X: 0, Y: 60, Width: 30, Height: 30, Kind: board.KindText},
	)
	f.board.Selected.Replace("a", "t")
	f.r.Frame()
	if got := f.r.LastDrawn(); !slices.Equal(got, []string{"b"}) {
		t.Errorf("LastDrawn = %v, want [b]", got)
	}
	img := f.r.Image()
	app := DefaultAppearance()
	// Outline on the selected image's left edge, interior untouched.
	if got := img.RGBAAt(10, 25); !sameColor(got, app.Selection) {
		t.Errorf("selection outline pixel = %v", got)
	}
	if got := img.RGBAAt(25, 25); !sameColor(got, app.Background) {
		t.Errorf("selected image interior painted: %v", got)
	}
	// Text items get no outline from the bitmap layer.
	if got := img.RGBAAt(0, 75); !sameColor(got, app.Background) {
		t.Errorf("text outline drawn: %v", got)
	}
}

func TestLoopInstanceGuard(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	l := NewLoop(fc, FrameInterval)
	var a, b int
	first := l.Start(func() { a++ })
	fc.Advance(3 * FrameInterval)
	second := l.Start(func() { b++ })
	if second <= first {
		t.Fatalf("instance ids not increasing: %d then %d", first, second)
	}
	fc.Advance(5 * FrameInterval)
	if a != 3 {
		t.Errorf("stale loop ran after replacement: a = %d", a)
	}
	if b != 5 {
		t.Errorf("active loop ran %d times, want 5", b)
	}
	l.Stop()
	fc.Advance(5 * FrameInterval)
	if b != 5 || l.Active() != 0 {
		t.Errorf("loop ran after Stop: b = %d", b)
	}
}
