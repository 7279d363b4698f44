package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/frame"
	"github.com/justestif/go-spotify-mood-player/internal/player"
	"github.com/justestif/go-spotify-mood-player/internal/session"
	"github.com/justestif/go-spotify-mood-player/internal/vision"
)

const frameBoundary = "frame"

// Detector is the start/stop control of the detection loop.
type Detector interface {
	Start(ctx context.Context) (bool, error)
	Stop()
	Running() bool
}

// FrameSource exposes the camera's most recent frame.
type FrameSource interface {
	Latest() (frame.Frame, bool)
	IsOpen() bool
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	ctx       context.Context
	templates *Templates
	detector  Detector
	frames    FrameSource
	state     *session.State
	interval  time.Duration
	blank     []byte
}

// NewHandlers creates a new Handlers instance. Detection loops started by
// StartDetection live until ctx is canceled or StopDetection is called.
func NewHandlers(ctx context.Context, templates *Templates, deps Deps, cfg ServerConfig) (*Handlers, error) {
	blank, err := vision.Blank(cfg.BlankWidth, cfg.BlankHeight)
	if err != nil {
		return nil, fmt.Errorf("rendering blank frame: %w", err)
	}

	return &Handlers{
		ctx:       ctx,
		templates: templates,
		detector:  deps.Detector,
		frames:    deps.Frames,
		state:     deps.State,
		interval:  cfg.FrameInterval,
		blank:     blank,
	}, nil
}

// statusResponse is the /current_info body. Track is null until a
// selection has succeeded.
type statusResponse struct {
	Emotion emotion.Emotion   `json:"emotion"`
	Track   *player.TrackInfo `json:"track"`
}

type controlResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Home handles the home page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()

	data := HomePageData{
		PageData: PageData{
			Title:       "Emotion Music Player",
			CurrentPath: r.URL.Path,
		},
		Emotion: snap.Emotion,
		Track:   snap.Track,
		Running: h.detector.Running(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, "home", data); err != nil {
		slog.Error("rendering home page", "error", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}
}

// StartDetection opens the camera and starts the loop (GET /start_detection).
func (h *Handlers) StartDetection(w http.ResponseWriter, r *http.Request) {
	started, err := h.detector.Start(h.ctx)
	if err != nil {
		slog.Error("starting detection", "error", err)
		writeJSON(w, http.StatusInternalServerError, controlResponse{Status: "error", Error: err.Error()})
		return
	}

	status := "already_running"
	if started {
		status = "started"
	}
	writeJSON(w, http.StatusOK, controlResponse{Status: status})
}

// StopDetection asks the loop to stop (GET /stop_detection). The camera is
// released once the current iteration ends.
func (h *Handlers) StopDetection(w http.ResponseWriter, r *http.Request) {
	h.detector.Stop()
	writeJSON(w, http.StatusOK, controlResponse{Status: "stopped"})
}

// CurrentInfo reports the current emotion and track (GET /current_info).
func (h *Handlers) CurrentInfo(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{Emotion: snap.Emotion, Track: snap.Track})
}

// Health reports liveness and whether detection is running (GET /health).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"detecting": h.detector.Running(),
	})
}

// VideoFeed streams annotated camera frames as multipart JPEG
// (GET /video_feed). While the camera is closed a blank frame is sent
// every interval.
func (h *Handlers) VideoFeed(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+frameBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		if data := h.nextFrame(&lastSeq); data != nil {
			if err := writePart(w, data); err != nil {
				slog.Debug("video feed closed", "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				slog.Debug("video feed flush", "error", err)
				return
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// nextFrame returns the JPEG to send, or nil when the camera has nothing
// newer than lastSeq.
func (h *Handlers) nextFrame(lastSeq *uint64) []byte {
	if !h.frames.IsOpen() {
		*lastSeq = 0
		return h.blank
	}

	f, ok := h.frames.Latest()
	if !ok || f.Seq == *lastSeq {
		return nil
	}
	*lastSeq = f.Seq

	snap := h.state.Snapshot()
	annotated, err := vision.Annotate(f.Data, snap.Face, snap.Emotion.String())
	if err != nil {
		slog.Debug("annotating frame", "seq", f.Seq, "error", err)
		return f.Data
	}
	return annotated
}

func writePart(w io.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", frameBoundary, len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing json response", "error", err)
	}
}
