// Package main provides the entry point for the Refboard viewer.
package main

import (
	"log/slog"
	"os"
	"time"

	"refboard/internal/app"
	"refboard/internal/engine"
	"refboard/internal/imagecache"
	"refboard/internal/version"
	"refboard/ui/mainwindow"
	"refboard/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
)

const appTitle = "Refboard"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{AddSource: true}))
	slog.SetDefault(logger)
	engine.SetLogger(logger)
	logger.Info("starting", "app", appTitle, "version", version.Version)

	appPrefs := prefs.Load()
	cfg, err := appPrefs.EngineConfig(engine.DefaultConfig())
	if err != nil {
		logger.Warn("ignoring preferences", "path", appPrefs.Path(), "err", err)
	}

	// Fixture sources are resolved against the fixture's directory on load.
	eng, err := engine.New(nil, imagecache.NewRouter("."), engine.WithConfig(cfg))
	if err != nil {
		logger.Error("create engine", "err", err)
		os.Exit(1)
	}
	defer eng.Close()

	a := fyneapp.NewWithID("dev.refboard.viewer")
	a.Settings().SetTheme(&app.RefboardTheme{})

	state := app.NewState(eng)
	win := mainwindow.New(a, state, appPrefs)
	win.SetTitle(appTitle)
	win.ApplyPreferences()

	if len(os.Args) > 1 {
		boardPath := os.Args[1]
		if err := state.LoadBoard(boardPath); err != nil {
			logger.Error("load board", "path", boardPath, "err", err)
		} else {
			setupWatch(state, win)
		}
	}

	eng.Start()
	win.ShowAndRun()
}

// setupWatch reloads the board when its file changes on disk and saves
// preferences between checks.
func setupWatch(state *app.State, win *mainwindow.MainWindow) {
	watcher := app.NewFileWatcher(state.BoardPath, 2*time.Second)
	if watcher == nil {
		slog.Warn("board watch: unable to stat board", "path", state.BoardPath)
		return
	}
	slog.Info("board watch: watching", "path", watcher.Path())

	watcher.OnTick(win.SavePreferencesIfChanged)
	watcher.OnChange(func() {
		slog.Info("board watch: reloading", "path", watcher.Path())
		if err := state.ReloadBoard(); err != nil {
			slog.Warn("board watch: reload failed", "err", err)
		}
	})
	watcher.Start()
}
