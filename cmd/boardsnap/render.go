package main

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"refboard/internal/engine"

	"github.com/HugoSmits86/nativewebp"
	"github.com/spf13/cobra"
	xdraw "golang.org/x/image/draw"
)

// minimapMargin is the gap between the minimap and the frame's corner.
const minimapMargin = 16

type renderOptions struct {
	Width   int
	Height  int
	Out     string
	Format  string
	Fit     bool
	Minimap bool
}

func newRenderCmd(a *App) *cobra.Command {
	opts := renderOptions{}

	cmd := &cobra.Command{
		Use:   "render <board.json>",
		Short: "Render one frame of a board fixture to PNG or WebP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(opts.Format, opts.Out)
			if err != nil {
				return err
			}
			opts.Format = format
			if opts.Out == "" {
				base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				opts.Out = base + "." + format
			}

			img, err := a.renderBoard(args[0], opts)
			if err != nil {
				return err
			}
			f, err := os.Create(opts.Out)
			if err != nil {
				return fmt.Errorf("boardsnap: %w", err)
			}
			if err := encode(f, img, format); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("boardsnap: %w", err)
			}
			a.log().Info("rendered", "board", args[0], "out", opts.Out,
				"width", opts.Width, "height", opts.Height)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Width, "width", 1280, "Frame width in pixels")
	cmd.Flags().IntVar(&opts.Height, "height", 800, "Frame height in pixels")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "Output file (default: <board>.<format>)")
	cmd.Flags().StringVar(&opts.Format, "format", "", "png or webp (default: from --out, else png)")
	cmd.Flags().BoolVar(&opts.Fit, "fit", false, "Fit all items instead of using the fixture's view")
	cmd.Flags().BoolVar(&opts.Minimap, "minimap", false, "Overlay the minimap in the bottom-right corner")
	return cmd
}

// renderBoard loads the fixture, waits for its images and returns the
// composed frame.
func (a *App) renderBoard(path string, opts renderOptions) (image.Image, error) {
	state, err := a.openBoard(path, opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	eng := state.Engine
	defer eng.Close()

	if opts.Fit {
		eng.FitAll()
	}
	settle(eng)
	frame := eng.Snapshot()
	if frame == nil {
		return nil, fmt.Errorf("boardsnap: nothing rendered for %s", path)
	}
	out := image.NewRGBA(frame.Bounds())
	xdraw.Draw(out, out.Bounds(), frame, frame.Bounds().Min, xdraw.Src)
	if opts.Minimap {
		overlayMinimap(out, eng)
	}
	return out, nil
}

// overlayMinimap composites the minimap into dst's bottom-right corner.
// It is skipped when the frame is too small to hold it.
func overlayMinimap(dst *image.RGBA, eng *engine.Engine) {
	mm := eng.Minimap().Draw()
	if mm == nil {
		return
	}
	size := mm.Bounds().Size()
	b := dst.Bounds()
	if size.X+2*minimapMargin > b.Dx() || size.Y+2*minimapMargin > b.Dy() {
		return
	}
	at := image.Pt(b.Max.X-minimapMargin-size.X, b.Max.Y-minimapMargin-size.Y)
	xdraw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(size)}, mm, mm.Bounds().Min, xdraw.Over)
}

// outputFormat picks the encoder from the flag, then the file extension.
func outputFormat(flag, out string) (string, error) {
	format := strings.ToLower(flag)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
	}
	switch format {
	case "", "png":
		return "png", nil
	case "webp":
		return "webp", nil
	default:
		return "", fmt.Errorf("boardsnap: unsupported format %q (want png or webp)", format)
	}
}

func encode(w io.Writer, img image.Image, format string) error {
	var err error
	switch format {
	case "webp":
		err = nativewebp.Encode(w, img, nil)
	default:
		err = png.Encode(w, img)
	}
	if err != nil {
		return fmt.Errorf("boardsnap: encode %s: %w", format, err)
	}
	return nil
}
