// Package mainwindow provides the main application window.
package mainwindow

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"refboard/internal/app"
	"refboard/internal/engine"
	"refboard/internal/gesture"
	"refboard/internal/version"
	"refboard/internal/viewport"
	"refboard/ui/canvas"
	"refboard/ui/prefs"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

const prefKeyLastDir = "lastDirectory"

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app     fyne.App
	state   *app.State
	prefs   *prefs.Prefs
	canvas  *canvas.BoardCanvas
	minimap *canvas.MinimapView

	statusBar   *widget.Label
	scaleLabel  *widget.Label
	toolSelect  *widget.RadioGroup
	lastOpacity float64
	dirty       bool
}

// New creates a new main window.
func New(fyneApp fyne.App, state *app.State, p *prefs.Prefs) *MainWindow {
	win := fyneApp.NewWindow("Refboard")

	mw := &MainWindow{
		Window:      win,
		app:         fyneApp,
		state:       state,
		prefs:       p,
		lastOpacity: state.Engine.Opacity(),
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()

	w := float32(p.FloatWithFallback(prefs.KeyWindowWidth, 1200))
	h := float32(p.FloatWithFallback(prefs.KeyWindowHeight, 800))
	mw.Resize(fyne.NewSize(w, h))
	mw.SetCloseIntercept(func() {
		if err := mw.SavePreferences(); err != nil {
			slog.Warn("save preferences", "err", err)
		}
		mw.Close()
	})
	return mw
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	eng := mw.state.Engine
	mw.canvas = canvas.NewBoardCanvas(eng)
	mw.canvas.SetContextMenu(fyne.NewMenu("",
		fyne.NewMenuItem("Fit All", func() { eng.FitAll() }),
		fyne.NewMenuItem("Reset Zoom", func() { eng.Reset() }),
	))
	mw.minimap = canvas.NewMinimapView(eng.Minimap())

	mw.statusBar = widget.NewLabel("Ready")
	mw.scaleLabel = widget.NewLabel(formatScale(eng.Viewport().Committed().Scale))

	toolbar := mw.createToolbar()

	// Minimap pinned to the bottom-right corner above the board.
	overlay := container.NewBorder(nil,
		container.NewHBox(layout.NewSpacer(), container.NewPadded(mw.minimap)),
		nil, nil)
	board := container.NewStack(mw.canvas, overlay)

	content := container.NewBorder(
		toolbar, // top
		container.NewHBox(mw.statusBar, layout.NewSpacer(), mw.scaleLabel), // bottom
		nil,   // left
		nil,   // right
		board, // center
	)
	mw.SetContent(content)
}

// createToolbar creates the toolbar with zoom controls and the tool
// switch.
func (mw *MainWindow) createToolbar() fyne.CanvasObject {
	eng := mw.state.Engine
	zoomOutBtn := widget.NewButton("-", func() { eng.ZoomBy(0.8) })
	zoomInBtn := widget.NewButton("+", func() { eng.ZoomBy(1.25) })
	actualBtn := widget.NewButton("1:1", func() { eng.Reset() })
	fitBtn := widget.NewButton("Fit", func() { eng.FitAll() })

	mw.toolSelect = widget.NewRadioGroup([]string{"Select", "Draw"}, func(s string) {
		if s == "Draw" {
			eng.SetTool(gesture.ToolDraw)
		} else {
			eng.SetTool(gesture.ToolSelect)
		}
	})
	mw.toolSelect.Horizontal = true
	mw.toolSelect.SetSelected("Select")

	return container.NewHBox(
		widget.NewLabel("Zoom:"),
		zoomOutBtn,
		zoomInBtn,
		actualBtn,
		fitBtn,
		widget.NewSeparator(),
		mw.toolSelect,
	)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	eng := mw.state.Engine
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Board...", mw.onOpenBoard),
		fyne.NewMenuItem("Reload", mw.onReload),
	)

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", func() { eng.ZoomBy(1.25) }),
		fyne.NewMenuItem("Zoom Out", func() { eng.ZoomBy(0.8) }),
		fyne.NewMenuItem("Actual Size", func() { eng.Reset() }),
		fyne.NewMenuItem("Fit All", func() { eng.FitAll() }),
		fyne.NewMenuItem("Fit Selection", mw.onFitSelection),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, viewMenu, helpMenu))
}

// setupEventHandlers registers for application events.
func (mw *MainWindow) setupEventHandlers() {
	mw.state.On(app.EventBoardLoaded, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.SetTitle("Refboard - " + filepath.Base(path))
			mw.updateStatus(fmt.Sprintf("Loaded %d items", mw.state.Board().Len()))
		}
	})

	mw.state.On(app.EventBoardReloaded, func(data interface{}) {
		mw.updateStatus(fmt.Sprintf("Reloaded %d items", mw.state.Board().Len()))
	})

	mw.state.On(app.EventSelectionChanged, func(data interface{}) {
		ids, _ := data.([]string)
		switch len(ids) {
		case 0:
			mw.updateStatus("Ready")
		case 1:
			mw.updateStatus("Selected " + ids[0])
		default:
			mw.updateStatus(fmt.Sprintf("%d items selected", len(ids)))
		}
	})

	mw.state.On(app.EventViewportChanged, func(data interface{}) {
		if c, ok := data.(viewport.Change); ok {
			mw.scaleLabel.SetText(formatScale(c.Scale))
		}
	})

	// fyne has no window opacity, so drags are reflected in the status bar
	// and persisted for the next session.
	mw.state.On(app.EventOpacityChanged, func(data interface{}) {
		if v, ok := data.(float64); ok {
			mw.lastOpacity = v
			mw.dirty = true
			mw.updateStatus(fmt.Sprintf("Opacity %.0f%%", v*100))
		}
	})

	mw.state.Engine.OnWindowMove(func(dx, dy float64) {
		mw.updateStatus(fmt.Sprintf("Window move %+.0f, %+.0f", dx, dy))
	})
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

func formatScale(s float64) string {
	return fmt.Sprintf("%.0f%%", s*100)
}

// SavePreferencesIfChanged saves preferences when opacity changed since
// the last save.
func (mw *MainWindow) SavePreferencesIfChanged() {
	if !mw.dirty {
		return
	}
	if err := mw.SavePreferences(); err != nil {
		slog.Warn("save preferences", "err", err)
	}
}

// SavePreferences stores the window size, opacity and engine settings.
func (mw *MainWindow) SavePreferences() error {
	size := mw.Canvas().Size()
	mw.prefs.SetFloat(prefs.KeyWindowWidth, float64(size.Width))
	mw.prefs.SetFloat(prefs.KeyWindowHeight, float64(size.Height))
	mw.prefs.SetFloat(prefs.KeyOpacity, mw.lastOpacity)
	mw.prefs.SetEngineConfig(mw.state.Engine.Config())
	mw.dirty = false
	return mw.prefs.Save()
}

// getLastDir returns the last used directory as a ListableURI, or nil.
func (mw *MainWindow) getLastDir() fyne.ListableURI {
	path := mw.prefs.String(prefKeyLastDir)
	if path == "" {
		return nil
	}
	listable, err := storage.ListerForURI(storage.NewFileURI(path))
	if err != nil {
		return nil
	}
	return listable
}

func (mw *MainWindow) onOpenBoard() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		path := reader.URI().Path()
		mw.prefs.SetString(prefKeyLastDir, filepath.Dir(path))
		if err := mw.state.LoadBoard(path); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".json"}))
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onReload() {
	if err := mw.state.ReloadBoard(); err != nil {
		dialog.ShowError(err, mw.Window)
	}
}

func (mw *MainWindow) onFitSelection() {
	ids := mw.state.Board().Selected.IDs()
	if len(ids) == 0 {
		mw.updateStatus("Nothing selected")
		return
	}
	mw.state.Engine.FitToItem(ids[0])
}

func (mw *MainWindow) onAbout() {
	cfg := mw.state.Engine.Config()
	names := make([]string, len(cfg.Precedence))
	for i, k := range cfg.Precedence {
		names[i] = k.String()
	}
	dialog.ShowInformation("About Refboard",
		fmt.Sprintf("Refboard v%s\n\n"+
			"An infinite reference board viewer.\n\n"+
			"Gesture order: %s\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.Version, strings.Join(names, ", "), version.BuildTime, version.GitCommit),
		mw.Window)
}

// ApplyPreferences restores the persisted opacity into the engine.
func (mw *MainWindow) ApplyPreferences() {
	v := mw.prefs.FloatWithFallback(prefs.KeyOpacity, engine.MaxOpacity)
	mw.state.Engine.SetOpacity(v)
	mw.lastOpacity = mw.state.Engine.Opacity()
}
