package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"refboard/internal/app"
	"refboard/internal/engine"
	"refboard/internal/imagecache"
	"refboard/internal/version"

	"github.com/spf13/cobra"
)

// App holds the persistent flags shared by every subcommand.
type App struct {
	Verbose bool
	Root    string

	logger *slog.Logger
}

// NewRootCmd builds the boardsnap command tree.
func NewRootCmd() *cobra.Command {
	a := &App{}

	cmd := &cobra.Command{
		Use:          "boardsnap",
		Short:        "Render board fixtures headlessly",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Render a fixture to PNG at its stored view
  boardsnap render board.json --out board.png

  # Fit the whole board into a 1920x1080 WebP with the minimap overlay
  boardsnap render board.json --fit --width 1920 --height 1080 --format webp --minimap

  # Serve frames for arbitrary transforms
  boardsnap serve board.json --addr :8080
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if a.Verbose {
			level = slog.LevelDebug
		}
		a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		engine.SetLogger(a.logger)
		return nil
	}

	cmd.PersistentFlags().BoolVarP(&a.Verbose, "verbose", "v", false, "Log gesture and image cache activity")
	cmd.PersistentFlags().StringVar(&a.Root, "root", "", "Directory relative image sources resolve against (default: the fixture's directory)")

	cmd.AddCommand(newRenderCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "boardsnap %s\n", version.String())
		},
	}
}

// openBoard creates an engine sized width x height and loads the fixture
// at path into it.
func (a *App) openBoard(path string, width, height int) (*app.State, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("boardsnap: invalid size %dx%d", width, height)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("boardsnap: %w", err)
	}
	root := a.Root
	if root == "" {
		root = "."
	}
	eng, err := engine.New(nil, imagecache.NewRouter(root))
	if err != nil {
		return nil, err
	}
	eng.Resize(float64(width), float64(height))
	state := app.NewState(eng)
	if err := state.LoadBoard(path); err != nil {
		_ = eng.Close()
		return nil, err
	}
	return state, nil
}

// settle draws until no image load invalidates the frame, so originals
// requested by the first pass are on screen.
func settle(eng *engine.Engine) {
	eng.Frame()
	for i := 0; i < 4; i++ {
		eng.Images().Wait()
		if !eng.Frame() {
			return
		}
	}
}

func (a *App) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return engine.Logger()
}
