package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/frame"
	"github.com/justestif/go-spotify-mood-player/internal/player"
	"github.com/justestif/go-spotify-mood-player/internal/session"
	"github.com/justestif/go-spotify-mood-player/internal/vision"
	assets "github.com/justestif/go-spotify-mood-player/web"
)

type fakeDetector struct {
	mu       sync.Mutex
	running  bool
	startErr error
	starts   int
	stops    int
}

func (d *fakeDetector) Start(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
	if d.startErr != nil {
		return false, d.startErr
	}
	if d.running {
		return false, nil
	}
	d.running = true
	return true, nil
}

func (d *fakeDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.running = false
}

func (d *fakeDetector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

type fakeFrames struct {
	open  bool
	frame frame.Frame
	ok    bool
}

func (f *fakeFrames) Latest() (frame.Frame, bool) { return f.frame, f.ok }
func (f *fakeFrames) IsOpen() bool                { return f.open }

// newTestServer builds a Server over the embedded templates and assets.
func newTestServer(t *testing.T, det Detector, frames FrameSource, state *session.State) *Server {
	t.Helper()

	templates, err := fs.Sub(assets.TemplatesFS, "templates")
	if err != nil {
		t.Fatalf("templates fs: %v", err)
	}
	static, err := fs.Sub(assets.StaticFS, "static")
	if err != nil {
		t.Fatalf("static fs: %v", err)
	}

	s, err := NewServer(context.Background(), ServerConfig{
		TemplatesFS:   templates,
		StaticFS:      static,
		FrameInterval: 10 * time.Millisecond,
		BlankWidth:    64,
		BlankHeight:   48,
	}, Deps{Detector: det, Frames: frames, State: state})
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestStartDetection(t *testing.T) {
	tests := []struct {
		name       string
		running    bool
		startErr   error
		wantCode   int
		wantStatus string
	}{
		{"starts", false, nil, http.StatusOK, "started"},
		{"already running", true, nil, http.StatusOK, "already_running"},
		{"camera error", false, errors.New("no camera"), http.StatusInternalServerError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{running: tt.running, startErr: tt.startErr}
			s := newTestServer(t, det, &fakeFrames{}, session.New())

			rec := do(t, s, http.MethodGet, "/start_detection")

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body controlResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if det.starts != 1 {
				t.Errorf("Start called %d times, want 1", det.starts)
			}
		})
	}
}

func TestStopDetection(t *testing.T) {
	det := &fakeDetector{running: true}
	s := newTestServer(t, det, &fakeFrames{}, session.New())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := do(t, s, method, "/stop_detection")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status code = %d", method, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"stopped"`) {
			t.Errorf("%s body = %s", method, rec.Body.String())
		}
	}

	if det.stops != 2 || det.Running() {
		t.Errorf("stops = %d, running = %v", det.stops, det.Running())
	}
}

func TestCurrentInfo(t *testing.T) {
	t.Run("no track yet", func(t *testing.T) {
		s := newTestServer(t, &fakeDetector{}, &fakeFrames{}, session.New())

		rec := do(t, s, http.MethodGet, "/current_info")

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		if body["emotion"] != "neutral" {
			t.Errorf("emotion = %v, want neutral", body["emotion"])
		}
		if v, ok := body["track"]; !ok || v != nil {
			t.Errorf("track = %v, want null", v)
		}
	})

	t.Run("after a selection", func(t *testing.T) {
		state := session.New()
		state.SwapEmotion(emotion.Happy)
		state.SetTrack(&player.TrackInfo{
			Name:   "Song A",
			Artist: "Artist",
			Album:  "Album",
			Image:  "https://img/a",
			URI:    "spotify:track:a",
			Stage:  player.StagePlaylist,
		})
		s := newTestServer(t, &fakeDetector{}, &fakeFrames{}, state)

		rec := do(t, s, http.MethodGet, "/current_info")

		var body statusResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		if body.Emotion != emotion.Happy {
			t.Errorf("emotion = %q, want happy", body.Emotion)
		}
		if body.Track == nil || body.Track.Name != "Song A" || body.Track.URI != "spotify:track:a" {
			t.Errorf("track = %+v", body.Track)
		}
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeDetector{running: true}, &fakeFrames{}, session.New())

	rec := do(t, s, http.MethodGet, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"detecting":true`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHome(t *testing.T) {
	state := session.New()
	state.SwapEmotion(emotion.Sad)
	s := newTestServer(t, &fakeDetector{}, &fakeFrames{}, state)

	rec := do(t, s, http.MethodGet, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{`id="startBtn"`, `id="stopBtn"`, `id="emotionText"`, `id="albumArt"`, ">Sad<", "No track playing"} {
		if !strings.Contains(body, want) {
			t.Errorf("home page missing %q", want)
		}
	}
}

func TestStaticAssets(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, &fakeFrames{}, session.New())

	for _, path := range []string{"/static/js/main.js", "/static/css/style.css", "/static/img/default-album.svg"} {
		rec := do(t, s, http.MethodGet, path)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}

// streamFor runs the video feed for d and returns the recorded response.
func streamFor(t *testing.T, s *Server, d time.Duration) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/video_feed", nil).WithContext(ctx)
	s.handlers.VideoFeed(rec, req)
	return rec
}

func TestVideoFeedBlankWhenCameraClosed(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, &fakeFrames{open: false}, session.New())

	rec := streamFor(t, s, 100*time.Millisecond)

	if ct := rec.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Content-Type = %q", ct)
	}
	parts := bytes.Count(rec.Body.Bytes(), []byte("--frame\r\nContent-Type: image/jpeg"))
	if parts < 2 {
		t.Errorf("got %d blank frames, want a steady stream", parts)
	}
	if !bytes.Contains(rec.Body.Bytes(), s.handlers.blank) {
		t.Error("stream does not carry the blank frame")
	}
}

func TestVideoFeedSendsEachFrameOnce(t *testing.T) {
	jpg, err := vision.Blank(32, 24)
	if err != nil {
		t.Fatalf("Blank() error: %v", err)
	}

	frames := &fakeFrames{
		open:  true,
		ok:    true,
		frame: frame.Frame{Data: jpg, Width: 32, Height: 24, Seq: 7},
	}
	state := session.New()
	state.SetFace(&vision.Box{X: 4, Y: 4, Width: 10, Height: 10})
	s := newTestServer(t, &fakeDetector{}, frames, state)

	rec := streamFor(t, s, 100*time.Millisecond)

	parts := bytes.Count(rec.Body.Bytes(), []byte("--frame\r\n"))
	if parts != 1 {
		t.Errorf("got %d parts for one frame, want 1", parts)
	}
}

func TestVideoFeedOpenCameraWithoutFrame(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, &fakeFrames{open: true}, session.New())

	rec := streamFor(t, s, 50*time.Millisecond)

	if rec.Body.Len() != 0 {
		t.Errorf("sent %d bytes before the first frame", rec.Body.Len())
	}
}

func TestEmotionColor(t *testing.T) {
	tests := []struct {
		e    emotion.Emotion
		want string
	}{
		{emotion.Happy, "#ffeb3b"},
		{emotion.Angry, "#ff5252"},
		{emotion.Neutral, "#e0e0e0"},
		{emotion.Emotion("bored"), "#e0e0e0"},
	}

	for _, tt := range tests {
		if got := emotionColor(tt.e); got != tt.want {
			t.Errorf("emotionColor(%q) = %q, want %q", tt.e, got, tt.want)
		}
	}
}

func TestRenderPartialTrack(t *testing.T) {
	templates, err := fs.Sub(assets.TemplatesFS, "templates")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := NewTemplates(templates)
	if err != nil {
		t.Fatalf("NewTemplates() error: %v", err)
	}

	var buf bytes.Buffer
	track := &player.TrackInfo{Name: "Song", Artist: "Band", Album: "LP", Image: "https://img/x"}
	if err := tmpl.RenderPartial(&buf, "track", track); err != nil {
		t.Fatalf("RenderPartial() error: %v", err)
	}
	for _, want := range []string{"Song", "Band", "LP", "https://img/x"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("partial missing %q: %s", want, buf.String())
		}
	}

	if err := tmpl.RenderPartial(&buf, "missing", nil); err == nil {
		t.Error("RenderPartial(missing) error = nil")
	}
}
