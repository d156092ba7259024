package viewport

import (
	"errors"
	"math"
	"testing"
	"time"

	"refboard/internal/clock"
	"refboard/pkg/geometry"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) <= eps*math.Max(1, math.Abs(b)) }

func newTestCommitter(t Transform) (*Committer, *clock.Fake) {
	fc := clock.NewFake(time.Unix(1000, 0))
	store := NewStore(t)
	store.SetSize(geometry.NewSize(800, 600))
	return NewCommitter(store, fc), fc
}

func TestZoomAtKeepsAnchor(t *testing.T) {
	starts := []Transform{
		{X: 0, Y: 0, Scale: 1},
		{X: -350, Y: 120, Scale: 0.25},
		{X: 1e4, Y: -3e3, Scale: 4.2},
		{X: 3, Y: 7, Scale: MinScale},
	}
	anchors := []geometry.Point2D{{X: 0, Y: 0}, {X: 400, Y: 300}, {X: 13.5, Y: 799}}
	scales := []float64{MinScale, 0.5, 1.1, 5, 30}

	for _, start := range starts {
		for _, p := range anchors {
			for _, s := range scales {
				before := start.ToWorld(p)
				next, err := start.ZoomAt(s, p)
				if err != nil {
					t.Fatalf("ZoomAt(%v,%v) from %+v: %v", s, p, start, err)
				}
				got := next.ToScreen(before)
				if math.Abs(got.X-p.X) > 1e-6 || math.Abs(got.Y-p.Y) > 1e-6 {
					t.Errorf("anchor drift from %+v to scale %v at %v: got %v", start, s, p, got)
				}
			}
		}
	}
}

func TestZoomAtRejectsDegenerate(t *testing.T) {
	if _, err := (Transform{Scale: 0}).ZoomAt(1, geometry.Point2D{}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("zero scale err = %v", err)
	}
	if _, err := Identity().ZoomAt(1, geometry.NewPoint2D(math.Inf(1), 0)); !errors.Is(err, ErrNonFinite) {
		t.Errorf("infinite anchor err = %v", err)
	}
}

func TestWheelZoomThenPan(t *testing.T) {
	c, _ := newTestCommitter(Identity())
	if !c.Wheel(-100, geometry.NewPoint2D(400, 300)) {
		t.Fatal("wheel rejected")
	}
	v := c.Store().Visual()
	if !near(v.Scale, 1.1) {
		t.Fatalf("scale = %v, want 1.1", v.Scale)
	}
	if !near(v.X, -40) || !near(v.Y, -30) {
		t.Fatalf("position = (%v,%v), want (-40,-30)", v.X, v.Y)
	}

	c.Begin()
	c.Pan(50, -20)
	v = c.Store().Visual()
	if !near(v.X, 10) || !near(v.Y, -50) || !near(v.Scale, 1.1) {
		t.Errorf("after pan = %+v, want {10 -50 1.1}", v)
	}
	c.End()
	if !c.Store().InSync() {
		t.Error("visual and committed differ after End")
	}
}

func TestWheelDebounce(t *testing.T) {
	c, fc := newTestCommitter(Identity())
	var changes []Change
	c.OnChange(func(ch Change) { changes = append(changes, ch) })

	anchor := geometry.NewPoint2D(100, 100)
	c.Wheel(-100, anchor)
	fc.Advance(60 * time.Millisecond)
	c.Wheel(-100, anchor)
	fc.Advance(60 * time.Millisecond)

	if got := c.Store().Committed(); got != Identity() {
		t.Fatalf("committed mid-burst: %+v", got)
	}
	if !near(c.Store().Visual().Scale, 1.2) {
		t.Fatalf("visual scale = %v, want 1.2 (accumulated)", c.Store().Visual().Scale)
	}

	fc.Advance(50 * time.Millisecond)
	if !c.Store().InSync() {
		t.Fatal("not committed after settle window")
	}
	if len(changes) != 1 || changes[0].Live || !near(changes[0].Scale, 1.2) {
		t.Errorf("changes = %+v", changes)
	}
	if changes[0].Width != 800 || changes[0].Height != 600 {
		t.Errorf("change size = %vx%v", changes[0].Width, changes[0].Height)
	}
}

func TestHandoffFlushesPendingWheel(t *testing.T) {
	c, fc := newTestCommitter(Identity())
	c.Wheel(-250, geometry.NewPoint2D(400, 300))
	zoomed := c.Store().Visual()

	// A pan starting inside the wheel window must begin from the zoomed state.
	c.Begin()
	if got := c.Store().Committed(); got != zoomed {
		t.Fatalf("committed = %+v, want flushed wheel state %+v", got, zoomed)
	}
	if c.Pending() {
		t.Fatal("wheel timer still pending after handoff")
	}
	c.Pan(10, 10)

	// The cancelled timer must not fire and must not revert anything.
	fc.Advance(time.Second)
	v := c.Store().Visual()
	if !near(v.X, zoomed.X+10) || !near(v.Scale, zoomed.Scale) {
		t.Errorf("visual = %+v after stale timer window", v)
	}
	if got := c.Store().Committed(); got != zoomed {
		t.Errorf("committed moved without End: %+v", got)
	}
}

func TestProgrammaticPanSettles(t *testing.T) {
	c, fc := newTestCommitter(Identity())
	c.PanBy(5, 5)
	c.PanBy(5, 5)
	if c.Store().InSync() {
		t.Fatal("pan committed before settle")
	}
	// Wheel during a pending pan flushes the pan first.
	c.Wheel(-100, geometry.Point2D{})
	if got := c.Store().Committed(); got.X != 10 || got.Y != 10 {
		t.Errorf("pan not flushed on handoff: %+v", got)
	}
	fc.Advance(SettleWindow)
	if !c.Store().InSync() {
		t.Error("wheel did not settle")
	}
}

func TestEndWithoutMovementIsIdempotent(t *testing.T) {
	start := Transform{X: 12, Y: -4, Scale: 2}
	c, _ := newTestCommitter(start)
	notified := 0
	c.OnChange(func(Change) { notified++ })

	c.Begin()
	if c.End() {
		t.Error("End reported a change with no movement")
	}
	if c.Store().Visual() != start || c.Store().Committed() != start {
		t.Errorf("transforms changed: %+v / %+v", c.Store().Visual(), c.Store().Committed())
	}
	if notified != 0 {
		t.Errorf("notified %d times", notified)
	}
}

func TestScaleClamping(t *testing.T) {
	c, _ := newTestCommitter(Identity())
	anchor := geometry.NewPoint2D(10, 10)
	for i := 0; i < 50; i++ {
		c.Wheel(-1000, anchor)
		if s := c.Store().Visual().Scale; s < MinScale || s > MaxScale {
			t.Fatalf("wheel scale out of range: %v", s)
		}
	}
	for i := 0; i < 50; i++ {
		c.Wheel(5000, anchor)
	}
	if s := c.Store().Visual().Scale; s != MinScale {
		t.Errorf("wheel zoom-out floor = %v", s)
	}

	c.BeginDragZoom(anchor, false)
	for i := 0; i < 200; i++ {
		c.DragZoom(400)
		if s := c.Store().Visual().Scale; s < MinScale || s > MaxDragScale {
			t.Fatalf("drag scale out of range: %v", s)
		}
	}
	if s := c.Store().Visual().Scale; s != MaxDragScale {
		t.Errorf("drag zoom ceiling = %v", s)
	}
	c.End()
}

func TestDragZoomInvertedAnchor(t *testing.T) {
	c, _ := newTestCommitter(Identity())
	c.BeginDragZoom(geometry.Point2D{}, true)
	c.DragZoom(100)
	if s := c.Store().Visual().Scale; !near(s, 1-0.35) {
		t.Errorf("inverted drag scale = %v, want 0.65", s)
	}
	if c.Store().Committed() != Identity() {
		t.Error("drag zoom committed before End")
	}
	c.End()
	if !c.Store().InSync() {
		t.Error("drag zoom not committed at End")
	}
	if c.DragZoom(10) {
		t.Error("DragZoom accepted after End")
	}
}

func TestFitToItem(t *testing.T) {
	c, _ := newTestCommitter(Identity())
	if !c.FitTo(geometry.NewRect(100, 100, 200, 100), 40) {
		t.Fatal("fit rejected")
	}
	v := c.Store().Visual()
	if !near(v.Scale, 3.6) {
		t.Fatalf("scale = %v, want 3.6", v.Scale)
	}
	center := v.ToScreen(geometry.NewPoint2D(200, 150))
	if !near(center.X, 400) || !near(center.Y, 300) {
		t.Errorf("item centre maps to %v, want (400,300)", center)
	}
	if !c.Store().InSync() {
		t.Error("fit not applied to committed transform")
	}

	if !c.FitTo(geometry.NewRect(0, 0, 1, 1), 40) || c.Store().Visual().Scale != MaxScale {
		t.Errorf("tiny item scale = %v, want clamp to %v", c.Store().Visual().Scale, MaxScale)
	}
}

func TestNavigateRejectsNonFinite(t *testing.T) {
	start := Transform{X: 1, Y: 2, Scale: 3}
	c, _ := newTestCommitter(start)
	for _, p := range []geometry.Point2D{
		{X: math.NaN(), Y: 0},
		{X: 0, Y: math.Inf(-1)},
	} {
		if c.NavigateTo(p) {
			t.Errorf("NavigateTo(%v) accepted", p)
		}
	}
	if c.Store().Visual() != start || c.Store().Committed() != start {
		t.Error("state mutated by rejected navigate")
	}
	if !c.NavigateTo(geometry.NewPoint2D(10, 10)) {
		t.Fatal("finite navigate rejected")
	}
	if got := c.Store().Visual().ToScreen(geometry.NewPoint2D(10, 10)); !near(got.X, 400) || !near(got.Y, 300) {
		t.Errorf("navigate target at %v", got)
	}
}

func TestJumpClampsScale(t *testing.T) {
	c, _ := newTestCommitter(Identity())
	cases := []struct {
		in, want float64
	}{
		{1000, MaxDragScale},
		{1e-6, MinScale},
		{2.5, 2.5},
	}
	for _, tc := range cases {
		if !c.Jump(Transform{X: 10, Y: -5, Scale: tc.in}) {
			t.Fatalf("Jump(scale %v) rejected", tc.in)
		}
		v, cm := c.Store().Visual(), c.Store().Committed()
		if v.Scale != tc.want || cm.Scale != tc.want {
			t.Errorf("Jump(scale %v): visual %v committed %v, want %v", tc.in, v.Scale, cm.Scale, tc.want)
		}
		if v.X != 10 || v.Y != -5 {
			t.Errorf("Jump(scale %v) moved offset to (%v,%v)", tc.in, v.X, v.Y)
		}
	}

	before := c.Store().Committed()
	if c.Jump(Transform{Scale: math.NaN()}) {
		t.Error("Jump accepted NaN scale")
	}
	if c.Store().Committed() != before {
		t.Error("rejected jump mutated state")
	}
}

func TestLivePanNotificationsThrottled(t *testing.T) {
	c, fc := newTestCommitter(Identity())
	live := 0
	visual := 0
	c.OnChange(func(ch Change) {
		if ch.Live {
			live++
		}
	})
	c.OnVisual(func(Transform) { visual++ })

	c.Begin()
	for i := 0; i < 10; i++ {
		c.Pan(1, 0)
		fc.Advance(4 * time.Millisecond)
	}
	if visual != 10 {
		t.Errorf("visual updates = %d, want 10", visual)
	}
	if live < 2 || live > 4 {
		t.Errorf("live notifications = %d, want throttled to ~16ms", live)
	}
}

func TestApplyDeltaDispatch(t *testing.T) {
	c, _ := newTestCommitter(Identity())
	c.ApplyDelta(DeltaPan, geometry.NewPoint2D(3, 4), geometry.Point2D{})
	if v := c.Store().Visual(); v.X != 3 || v.Y != 4 {
		t.Errorf("pan delta = %+v", v)
	}
	c.ApplyDelta(DeltaWheelZoom, geometry.NewPoint2D(0, -100), geometry.Point2D{})
	if v := c.Store().Visual(); !near(v.Scale, 1.1) {
		t.Errorf("wheel delta scale = %v", v.Scale)
	}
	if c.ApplyDelta(DeltaDragZoom, geometry.NewPoint2D(10, 0), geometry.Point2D{}) {
		t.Error("drag zoom applied without BeginDragZoom")
	}
}
