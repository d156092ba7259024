// Package imagecache manages per-item bitmaps for the bitmap renderer: lazy
// fetch, a downscaled thumbnail tier, an on-demand original tier that is
// reclaimed when idle, and a failure set that stops retry storms.
package imagecache

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"refboard/internal/board"
	"refboard/internal/clock"

	"golang.org/x/image/draw"
)

const (
	// ThumbnailMax is the longest side of a thumbnail, and the on-board
	// size above which an item wants its original bitmap.
	ThumbnailMax = 512
	// OriginalIdle is how long an original may go unused before eviction.
	OriginalIdle = 5 * time.Second
	// SweepInterval is the period of the eviction sweep.
	SweepInterval = 2 * time.Second
)

// ErrPermanentFailure marks a source key that failed to load.
var ErrPermanentFailure = errors.New("imagecache: source failed permanently")

// Tier identifies which bitmap Image returned.
type Tier int

const (
	TierNone Tier = iota
	TierThumbnail
	TierOriginal
)

// Entry is the cache state for one item.
type Entry struct {
	Thumbnail image.Image
	Original  image.Image
	SourceKey string
	LastUsed  time.Time
	Loading   bool
}

// Cache is owned by one engine instance. All methods are safe for
// concurrent use; fetches run on their own goroutines.
type Cache struct {
	fetcher Fetcher
	clock   clock.Clock
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*Entry
	failed  map[string]error
	onLoad  []func(id string)
	sweep   clock.Timer
	closed  bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the clock used for idle tracking and the sweep timer.
func WithClock(c clock.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cache *Cache) {
		if l != nil {
			cache.logger = l
		}
	}
}

// New creates a cache that loads sources through f.
func New(f Fetcher, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		fetcher: f,
		clock:   clock.Real{},
		logger:  slog.New(slog.DiscardHandler),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*Entry),
		failed:  make(map[string]error),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnLoad registers a callback invoked after a bitmap for id lands.
func (c *Cache) OnLoad(fn func(id string)) {
	c.mu.Lock()
	c.onLoad = append(c.onLoad, fn)
	c.mu.Unlock()
}

func wantsOriginal(it board.Item) bool {
	return max(it.Width, it.Height) > ThumbnailMax
}

// Request starts loading the item's source if nothing usable is resident
// or in flight for its current source key. It never blocks.
func (c *Cache) Request(it board.Item) {
	key := it.SourceKey()
	if key == "" {
		return
	}
	wantOriginal := wantsOriginal(it)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, bad := c.failed[key]; bad {
		c.mu.Unlock()
		return
	}
	e := c.entries[it.ID]
	if e != nil && e.SourceKey == key {
		if e.Loading || e.Original != nil || (e.Thumbnail != nil && !wantOriginal) {
			c.mu.Unlock()
			return
		}
	} else {
		e = &Entry{SourceKey: key}
		c.entries[it.ID] = e
	}
	e.Loading = true
	keepThumb := e.Thumbnail != nil
	c.wg.Add(1)
	c.mu.Unlock()

	go c.load(it.ID, key, wantOriginal, keepThumb)
}

func (c *Cache) load(id, key string, wantOriginal, keepThumb bool) {
	defer c.wg.Done()

	img, err := c.fetcher.Fetch(c.ctx, key)
	var thumb image.Image
	if err == nil && !keepThumb {
		thumb = Thumbnail(img, ThumbnailMax)
	}

	c.mu.Lock()
	e := c.entries[id]
	if e == nil || e.SourceKey != key {
		// Superseded by a newer source key while in flight.
		c.mu.Unlock()
		return
	}
	e.Loading = false
	if err != nil {
		if c.ctx.Err() == nil {
			c.failed[key] = err
			c.logger.Warn("imagecache: load failed", "item", id, "source", key, "err", err)
		}
		c.mu.Unlock()
		return
	}
	if thumb != nil {
		e.Thumbnail = thumb
	}
	if wantOriginal {
		e.Original = img
	}
	e.LastUsed = c.clock.Now()
	listeners := c.onLoad
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(id)
	}
}

// Image returns the best resident bitmap for drawing the item at its
// on-board size: the original when the item is larger than a thumbnail and
// the original is resident, otherwise the thumbnail. Items without an
// entry for their current source key get a load request as a side effect.
func (c *Cache) Image(it board.Item) (image.Image, Tier) {
	key := it.SourceKey()
	if key == "" {
		return nil, TierNone
	}
	wantOriginal := wantsOriginal(it)

	c.mu.Lock()
	e := c.entries[it.ID]
	if e == nil || e.SourceKey != key {
		c.mu.Unlock()
		c.Request(it)
		return nil, TierNone
	}
	now := c.clock.Now()
	if wantOriginal && e.Original != nil {
		e.LastUsed = now
		img := e.Original
		c.mu.Unlock()
		return img, TierOriginal
	}
	thumb := e.Thumbnail
	if thumb != nil {
		e.LastUsed = now
	}
	needOriginal := wantOriginal && !e.Loading
	c.mu.Unlock()

	if needOriginal {
		c.Request(it)
	}
	if thumb == nil {
		return nil, TierNone
	}
	return thumb, TierThumbnail
}

// Entry returns a copy of the entry for id.
func (c *Cache) Entry(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Failed reports whether a source key is in the failure set, wrapping the
// original load error in ErrPermanentFailure.
func (c *Cache) Failed(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failed[key]; ok {
		return errors.Join(ErrPermanentFailure, err)
	}
	return nil
}

// Forget drops the entry for id, e.g. after the item is deleted.
func (c *Cache) Forget(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// EvictStale drops originals unused for longer than OriginalIdle and
// returns how many were dropped. Thumbnails are kept.
func (c *Cache) EvictStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	n := 0
	for _, e := range c.entries {
		if e.Original != nil && now.Sub(e.LastUsed) > OriginalIdle {
			e.Original = nil
			n++
		}
	}
	if n > 0 {
		c.logger.Debug("imagecache: evicted originals", "count", n)
	}
	return n
}

// StartSweep runs EvictStale every SweepInterval until Close.
func (c *Cache) StartSweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sweep != nil {
		return
	}
	c.scheduleSweepLocked()
}

func (c *Cache) scheduleSweepLocked() {
	c.sweep = c.clock.AfterFunc(SweepInterval, func() {
		c.EvictStale()
		c.mu.Lock()
		if !c.closed {
			c.scheduleSweepLocked()
		}
		c.mu.Unlock()
	})
}

// Wait blocks until in-flight loads finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Close stops the sweep, cancels in-flight fetches and waits for them.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	if c.sweep != nil {
		c.sweep.Stop()
		c.sweep = nil
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// Thumbnail downsizes src so its longer side is at most limit pixels.
// Images already within the limit are returned unchanged.
func Thumbnail(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return src
	}
	ratio := float64(limit) / float64(max(w, h))
	nw := max(1, int(float64(w)*ratio+0.5))
	nh := max(1, int(float64(h)*ratio+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
