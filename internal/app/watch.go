package app

import (
	"os"
	"time"
)

// FileWatcher polls a file's modification time and calls back when it
// changes. The desktop viewer uses it to reload a board fixture that is
// being edited by another program.
type FileWatcher struct {
	path          string
	checkInterval time.Duration
	baseline      time.Time
	stopCh        chan struct{}
	onChange      func()
	onTick        func()
}

// NewFileWatcher creates a watcher for path. Returns nil if the file
// cannot be stat'ed.
func NewFileWatcher(path string, checkInterval time.Duration) *FileWatcher {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	return &FileWatcher{
		path:          path,
		checkInterval: checkInterval,
		baseline:      info.ModTime(),
	}
}

// OnChange sets the callback invoked when the file is modified. The
// callback runs on the watcher goroutine.
func (w *FileWatcher) OnChange(callback func()) {
	w.onChange = callback
}

// OnTick sets a callback invoked on every poll.
func (w *FileWatcher) OnTick(callback func()) {
	w.onTick = callback
}

// Start begins polling in a background goroutine.
func (w *FileWatcher) Start() {
	w.stopCh = make(chan struct{})
	go w.watchLoop(w.stopCh)
}

// Stop stops the polling goroutine.
func (w *FileWatcher) Stop() {
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
}

// Path returns the watched file.
func (w *FileWatcher) Path() string {
	return w.path
}

func (w *FileWatcher) watchLoop(stop chan struct{}) {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if w.onTick != nil {
				w.onTick()
			}
			if w.Check() && w.onChange != nil {
				w.onChange()
			}
		}
	}
}

// Check reports whether the file changed since the last check and moves
// the baseline forward.
func (w *FileWatcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	if !info.ModTime().After(w.baseline) {
		return false
	}
	w.baseline = info.ModTime()
	return true
}
