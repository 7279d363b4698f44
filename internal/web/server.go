// Package web provides the HTTP server and browser UI for the mood player.
package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/go-spotify-mood-player/internal/session"
)

const (
	// DefaultAddr is the default server address.
	DefaultAddr = ":5000"

	// DefaultFrameInterval paces the video feed.
	DefaultFrameInterval = 100 * time.Millisecond
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr          string
	TemplatesFS   fs.FS
	StaticFS      fs.FS
	FrameInterval time.Duration
	// BlankWidth and BlankHeight size the placeholder frame shown while the
	// camera is closed.
	BlankWidth  int
	BlankHeight int
}

// Deps are the running components the handlers drive.
type Deps struct {
	Detector Detector
	Frames   FrameSource
	State    *session.State
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
}

// NewServer creates a new web server. ctx bounds the detection loops
// started from the UI.
func NewServer(ctx context.Context, cfg ServerConfig, deps Deps) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.BlankWidth <= 0 || cfg.BlankHeight <= 0 {
		cfg.BlankWidth, cfg.BlankHeight = 640, 480
	}

	templates, err := NewTemplates(cfg.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	handlers, err := NewHandlers(ctx, templates, deps, cfg)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()

	s := &Server{
		router:   router,
		handlers: handlers,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.StaticFS)

	s.server = &http.Server{
		Addr:        cfg.Addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /video_feed is a response that lasts as long as
		// the browser tab.
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes(staticFS fs.FS) {
	if staticFS != nil {
		fileServer := http.FileServer(http.FS(staticFS))
		s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	s.router.Get("/", s.handlers.Home)
	s.router.Get("/video_feed", s.handlers.VideoFeed)
	s.router.Get("/current_info", s.handlers.CurrentInfo)
	s.router.Get("/health", s.handlers.Health)

	// GET matches the browser UI; POST is accepted for scripted clients.
	s.router.Get("/start_detection", s.handlers.StartDetection)
	s.router.Post("/start_detection", s.handlers.StartDetection)
	s.router.Get("/stop_detection", s.handlers.StopDetection)
	s.router.Post("/stop_detection", s.handlers.StopDetection)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
