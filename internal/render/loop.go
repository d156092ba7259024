package render

import (
	"sync"
	"time"

	"refboard/internal/clock"
)

// FrameInterval is the per-frame period, roughly the display refresh rate.
const FrameInterval = 16 * time.Millisecond

// Loop is a self-rescheduling per-frame callback. Every Start takes a new
// instance id; a scheduled callback whose id is no longer the active one
// returns without running, so a torn-down loop can never draw over a newer
// one.
type Loop struct {
	clock    clock.Clock
	interval time.Duration

	mu     sync.Mutex
	active uint64
	next   uint64
	timer  clock.Timer
}

// NewLoop creates a stopped loop.
func NewLoop(clk clock.Clock, interval time.Duration) *Loop {
	if clk == nil {
		clk = clock.Real{}
	}
	if interval <= 0 {
		interval = FrameInterval
	}
	return &Loop{clock: clk, interval: interval}
}

// Start makes step the active loop body and returns its instance id. A
// previously running instance stops at its next tick.
func (l *Loop) Start(step func()) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	id := l.next
	l.active = id
	l.scheduleLocked(id, step)
	return id
}

// Stop deactivates the running instance.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.active = 0
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()
}

// Active returns the running instance id, or 0.
func (l *Loop) Active() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Loop) scheduleLocked(id uint64, step func()) {
	l.timer = l.clock.AfterFunc(l.interval, func() {
		if !l.isActive(id) {
			return
		}
		step()
		l.mu.Lock()
		if l.active == id {
			l.scheduleLocked(id, step)
		}
		l.mu.Unlock()
	})
}

func (l *Loop) isActive(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active == id
}
