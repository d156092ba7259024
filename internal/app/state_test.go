package app

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"refboard/internal/clock"
	"refboard/internal/engine"
	"refboard/internal/gesture"
	"refboard/internal/imagecache"
	"refboard/pkg/geometry"
)

const fixtureDoc = `{"items":[
	{"id":"a","x":0,"y":0,"width":100,"height":100,"type":"image","src":"a.png"},
	{"id":"b","x":200,"y":0,"width":100,"height":100,"type":"placeholder"}
]}`

func newState(t *testing.T) *State {
	t.Helper()
	s := newUnsizedState(t)
	s.Engine.Resize(800, 600)
	return s
}

// newUnsizedState mirrors startup, where the board loads before the
// canvas has been laid out.
func newUnsizedState(t *testing.T) *State {
	t.Helper()
	eng, err := engine.New(nil, imagecache.FileFetcher{}, engine.WithClock(clock.NewFake(time.Unix(0, 0))))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return NewState(eng)
}

func writeFixture(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBoard(t *testing.T) {
	s := newState(t)
	path := writeFixture(t, fixtureDoc)
	var loaded []interface{}
	s.On(EventBoardLoaded, func(data interface{}) { loaded = append(loaded, data) })
	var viewports int
	s.On(EventViewportChanged, func(interface{}) { viewports++ })

	if err := s.LoadBoard(path); err != nil {
		t.Fatal(err)
	}
	if s.Board().Len() != 2 {
		t.Fatalf("items = %d", s.Board().Len())
	}
	it, _ := s.Board().Item("a")
	if want := filepath.Join(filepath.Dir(path), "a.png"); it.Source != want {
		t.Errorf("source = %q, want %q", it.Source, want)
	}
	if len(loaded) != 1 || loaded[0] != path {
		t.Errorf("loaded events = %v", loaded)
	}
	if viewports != 1 {
		t.Errorf("fit on load emitted %d viewport events", viewports)
	}
	v := s.Engine.Viewport().Committed()
	if c := v.ToWorld(geometry.NewPoint2D(400, 300)); math.Abs(c.X-150) > 1e-9 || math.Abs(c.Y-50) > 1e-9 {
		t.Errorf("board not fitted, centre at %v", c)
	}
}

func TestLoadBoardWithView(t *testing.T) {
	s := newState(t)
	path := writeFixture(t, `{"items":[],"view":{"x":5,"y":6,"scale":2}}`)
	if err := s.LoadBoard(path); err != nil {
		t.Fatal(err)
	}
	if v := s.Engine.Viewport().Committed(); v.X != 5 || v.Y != 6 || v.Scale != 2 {
		t.Errorf("view = %+v", v)
	}
}

func TestLoadBoardBeforeLayout(t *testing.T) {
	s := newUnsizedState(t)
	if err := s.LoadBoard(writeFixture(t, fixtureDoc)); err != nil {
		t.Fatal(err)
	}
	s.Engine.Resize(800, 600)
	v := s.Engine.Viewport().Committed()
	if c := v.ToWorld(geometry.NewPoint2D(400, 300)); math.Abs(c.X-150) > 1e-9 || math.Abs(c.Y-50) > 1e-9 {
		t.Errorf("board not fitted after first layout, centre at %v (view %+v)", c, v)
	}
}

func TestLoadBoardViewScaleClamped(t *testing.T) {
	s := newState(t)
	for _, tc := range []struct {
		doc  string
		want float64
	}{
		{`{"items":[],"view":{"x":0,"y":0,"scale":500}}`, 30},
		{`{"items":[],"view":{"x":0,"y":0,"scale":0.000001}}`, 0.01},
	} {
		if err := s.LoadBoard(writeFixture(t, tc.doc)); err != nil {
			t.Fatal(err)
		}
		if got := s.Engine.Viewport().Committed().Scale; got != tc.want {
			t.Errorf("%s: scale = %v, want %v", tc.doc, got, tc.want)
		}
	}
}

func TestLoadBoardErrors(t *testing.T) {
	s := newState(t)
	if err := s.LoadBoard(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file accepted")
	}
	dup := writeFixture(t, `{"items":[{"id":"x"},{"id":"x"}]}`)
	if err := s.LoadBoard(dup); err == nil {
		t.Error("duplicate ids accepted")
	}
	if s.BoardPath != "" {
		t.Errorf("failed load set BoardPath %q", s.BoardPath)
	}
}

func TestSelectionEvent(t *testing.T) {
	s := newState(t)
	if err := s.LoadBoard(writeFixture(t, fixtureDoc)); err != nil {
		t.Fatal(err)
	}
	var got []string
	s.On(EventSelectionChanged, func(data interface{}) { got = data.([]string) })

	p := s.Engine.Viewport().Committed().ToScreen(geometry.NewPoint2D(250, 50))
	s.Engine.PointerDown(gesture.ButtonLeft, nil, p)
	s.Engine.PointerUp(p)
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("selection event = %v", got)
	}
}

func TestReloadBoardKeepsView(t *testing.T) {
	s := newState(t)
	path := writeFixture(t, fixtureDoc)
	if err := s.LoadBoard(path); err != nil {
		t.Fatal(err)
	}
	s.Engine.Reset()
	if err := os.WriteFile(path, []byte(`{"items":[{"id":"c","width":10,"height":10}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.ReloadBoard(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Board().Item("c"); !ok || s.Board().Len() != 1 {
		t.Error("reload did not replace items")
	}
	if s.Engine.Viewport().Committed().Scale != 1 {
		t.Error("reload changed the view")
	}
}

func TestFileWatcherCheck(t *testing.T) {
	path := writeFixture(t, fixtureDoc)
	w := NewFileWatcher(path, time.Second)
	if w == nil {
		t.Fatal("watcher nil for existing file")
	}
	if w.Check() {
		t.Error("unchanged file reported")
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if !w.Check() {
		t.Error("modification not reported")
	}
	if w.Check() {
		t.Error("same modification reported twice")
	}
	if NewFileWatcher(filepath.Join(t.TempDir(), "none"), time.Second) != nil {
		t.Error("watcher for a missing file")
	}
}
