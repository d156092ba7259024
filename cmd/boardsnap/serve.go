package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"refboard/internal/app"
	"refboard/internal/version"
	"refboard/internal/viewport"
	"refboard/pkg/geometry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

// maxFrameSide bounds requested frame sizes.
const maxFrameSide = 4096

var errBadQuery = errors.New("bad query")

func newServeCmd(a *App) *cobra.Command {
	var (
		addr          string
		width, height int
	)

	cmd := &cobra.Command{
		Use:   "serve <board.json>",
		Short: "Serve rendered frames of a board fixture over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := a.openBoard(args[0], width, height)
			if err != nil {
				return err
			}
			defer state.Engine.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           newPreviewServer(state, a.log()).routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			a.log().Info("serving", "addr", addr, "board", args[0], "items", state.Board().Len())
			return srv.ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().IntVar(&width, "width", 1280, "Default frame width")
	cmd.Flags().IntVar(&height, "height", 800, "Default frame height")
	return cmd
}

// previewServer renders frames from one engine. Requests are serialized
// because each one resizes and moves the shared viewport.
type previewServer struct {
	mu     sync.Mutex
	state  *app.State
	logger *slog.Logger
}

func newPreviewServer(state *app.State, logger *slog.Logger) *previewServer {
	return &previewServer{state: state, logger: logger}
}

func (s *previewServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.health)
	r.Get("/frame.{format}", s.frame)
	r.Get("/minimap.png", s.minimap)
	r.Get("/hit", s.hit)
	r.Post("/reload", s.reload)
	return r
}

// requestLogger logs each request once it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"took", time.Since(start),
				"id", middleware.GetReqID(r.Context()))
		})
	}
}

// GET /health
func (s *previewServer) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"items":   s.state.Board().Len(),
	})
}

// GET /frame.{png,webp}?x=&y=&scale=&w=&h=
//
// Omitted transform fields keep the current view; omitted sizes keep the
// current viewport size.
func (s *previewServer) frame(w http.ResponseWriter, r *http.Request) {
	format, err := outputFormat(chi.URLParam(r, "format"), "")
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	eng := s.state.Engine

	size := eng.Viewport().Size()
	width, err := queryFloat(r, "w", size.Width)
	if err == nil {
		size.Height, err = queryFloat(r, "h", size.Height)
	}
	if err != nil || width < 1 || size.Height < 1 || width > maxFrameSide || size.Height > maxFrameSide {
		respondError(w, http.StatusBadRequest, "w and h must be between 1 and "+strconv.Itoa(maxFrameSide))
		return
	}
	size.Width = width

	t, err := queryTransform(r, eng.Viewport().Committed())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	eng.Resize(math.Round(size.Width), math.Round(size.Height))
	if !eng.Jump(t) {
		respondError(w, http.StatusBadRequest, "transform rejected")
		return
	}
	settle(eng)

	var buf bytes.Buffer
	if err := encode(&buf, eng.Snapshot(), format); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/"+format)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// GET /minimap.png
func (s *previewServer) minimap(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	img := s.state.Engine.Minimap().Draw()
	s.mu.Unlock()
	if img == nil {
		respondError(w, http.StatusInternalServerError, "minimap unavailable")
		return
	}
	var buf bytes.Buffer
	if err := encode(&buf, img, "png"); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

type hitResponse struct {
	Hit   bool       `json:"hit"`
	ID    string     `json:"id,omitempty"`
	World [2]float64 `json:"world"`
}

// GET /hit?x=&y= with screen coordinates in the current view.
func (s *previewServer) hit(w http.ResponseWriter, r *http.Request) {
	x, errX := queryFloat(r, "x", math.NaN())
	y, errY := queryFloat(r, "y", math.NaN())
	if errX != nil || errY != nil || math.IsNaN(x) || math.IsNaN(y) {
		respondError(w, http.StatusBadRequest, "x and y are required")
		return
	}

	s.mu.Lock()
	eng := s.state.Engine
	screen := geometry.NewPoint2D(x, y)
	world := eng.Viewport().Committed().ToWorld(screen)
	id, ok := eng.HitTestScreen(screen)
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, hitResponse{Hit: ok, ID: id, World: [2]float64{world.X, world.Y}})
}

// POST /reload re-reads the fixture and keeps the view.
func (s *previewServer) reload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.state.ReloadBoard()
	items := s.state.Board().Len()
	s.mu.Unlock()
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func queryFloat(r *http.Request, key string, fallback float64) (float64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s=%q", errBadQuery, key, s)
	}
	return v, nil
}

func queryTransform(r *http.Request, base viewport.Transform) (viewport.Transform, error) {
	t := base
	var err error
	if t.X, err = queryFloat(r, "x", base.X); err != nil {
		return base, err
	}
	if t.Y, err = queryFloat(r, "y", base.Y); err != nil {
		return base, err
	}
	if t.Scale, err = queryFloat(r, "scale", base.Scale); err != nil {
		return base, err
	}
	if t.Scale <= 0 {
		return base, fmt.Errorf("%w: scale must be positive", errBadQuery)
	}
	return t, nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
