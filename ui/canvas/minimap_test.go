package canvas

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"refboard/internal/board"
	"refboard/internal/clock"
	"refboard/internal/engine"
	"refboard/internal/imagecache"
	"refboard/pkg/geometry"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	b := board.New()
	if err := b.SetItems([]board.Item{{ID: "a", Width: 100, Height: 100, Kind: board.KindPlaceholder}}); err != nil {
		t.Fatal(err)
	}
	noImages := imagecache.FetcherFunc(func(context.Context, string) (image.Image, error) {
		return nil, errors.New("no images")
	})
	eng, err := engine.New(b, noImages, engine.WithClock(clock.NewFake(time.Unix(0, 0))))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	eng.Resize(400, 300)
	eng.Minimap().Sync()
	return eng
}

func TestMinimapViewTapNavigates(t *testing.T) {
	test.NewApp()
	eng := newTestEngine(t)
	mv := NewMinimapView(eng.Minimap())

	if got := mv.MinSize(); got != fyne.NewSize(200, 200) {
		t.Errorf("MinSize = %v", got)
	}

	// Shown at half size: widget (50,50) is the minimap's centre, which
	// projects to the centre of the board.
	mv.Resize(fyne.NewSize(100, 100))
	mv.Tapped(&fyne.PointEvent{Position: fyne.NewPos(50, 50)})

	centre := eng.Viewport().Committed().ToWorld(geometry.NewPoint2D(200, 150))
	if math.Abs(centre.X-50) > 1e-6 || math.Abs(centre.Y-50) > 1e-6 {
		t.Errorf("viewport centre = %v, want (50,50)", centre)
	}
}

func TestMinimapViewDraws(t *testing.T) {
	test.NewApp()
	mv := NewMinimapView(newTestEngine(t).Minimap())
	img := mv.draw(200, 200)
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("minimap image = %v", b)
	}
}
