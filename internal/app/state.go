// Package app provides application state, board loading, and events.
package app

import (
	"fmt"
	"path/filepath"
	"sync"

	"refboard/internal/board"
	"refboard/internal/engine"
	"refboard/internal/viewport"
)

// State holds the open board and the engine showing it.
type State struct {
	mu sync.RWMutex

	BoardPath string
	Engine    *engine.Engine

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different application events.
type EventType int

const (
	EventBoardLoaded EventType = iota
	EventBoardReloaded
	EventSelectionChanged
	EventViewportChanged
	EventOpacityChanged
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates application state around an engine and forwards the
// engine's selection, committed viewport and opacity changes as events.
func NewState(eng *engine.Engine) *State {
	s := &State{
		Engine:    eng,
		listeners: make(map[EventType][]EventListener),
	}
	eng.OnSelect(func(ids []string) { s.Emit(EventSelectionChanged, ids) })
	eng.OnViewportChange(func(c viewport.Change) {
		if !c.Live {
			s.Emit(EventViewportChanged, c)
		}
	})
	eng.OnOpacity(func(v float64) { s.Emit(EventOpacityChanged, v) })
	return s
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Board returns the engine's board.
func (s *State) Board() *board.Board {
	return s.Engine.Board()
}

// LoadBoard opens a board fixture, replacing the current items. The
// fixture's view is applied when present; otherwise the board is fitted.
func (s *State) LoadBoard(path string) error {
	f, err := s.readBoard(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.BoardPath = path
	s.mu.Unlock()

	if f.View != nil {
		s.Engine.Jump(viewport.Transform{X: f.View.X, Y: f.View.Y, Scale: f.View.Scale})
	} else {
		s.Engine.FitAll()
	}
	engine.Logger().Info("app: board loaded", "path", path, "items", len(f.Items))
	s.Emit(EventBoardLoaded, path)
	return nil
}

// ReloadBoard re-reads the open board and keeps the current view.
func (s *State) ReloadBoard() error {
	s.mu.RLock()
	path := s.BoardPath
	s.mu.RUnlock()
	if path == "" {
		return nil
	}
	f, err := s.readBoard(path)
	if err != nil {
		return err
	}
	engine.Logger().Info("app: board reloaded", "path", path, "items", len(f.Items))
	s.Emit(EventBoardReloaded, path)
	return nil
}

func (s *State) readBoard(path string) (board.Fixture, error) {
	f, err := board.LoadFixture(path)
	if err != nil {
		return board.Fixture{}, err
	}
	f.ResolveSources(filepath.Dir(path))
	if err := f.Apply(s.Engine.Board()); err != nil {
		return board.Fixture{}, fmt.Errorf("app: load %s: %w", path, err)
	}
	s.Engine.Renderer().Invalidate()
	return f, nil
}
