// Package detect runs the background loop that turns camera frames into
// emotion changes and music selections.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/events"
	"github.com/justestif/go-spotify-mood-player/internal/frame"
	"github.com/justestif/go-spotify-mood-player/internal/player"
	"github.com/justestif/go-spotify-mood-player/internal/session"
	"github.com/justestif/go-spotify-mood-player/internal/vision"
)

const (
	// DefaultInterval is the pause after each classified frame.
	DefaultInterval = 5 * time.Second

	// DefaultIdleDelay is the pause when no frame is available yet.
	DefaultIdleDelay = 1 * time.Second
)

// FrameSource is a camera that can be opened and closed repeatedly.
type FrameSource interface {
	Open(ctx context.Context) error
	Close() error
	Latest() (frame.Frame, bool)
}

// Player selects and plays music for an emotion.
type Player interface {
	PlayForEmotion(ctx context.Context, e emotion.Emotion) (*player.TrackInfo, error)
}

// Config tunes the loop. Zero values use defaults.
type Config struct {
	Interval  time.Duration
	IdleDelay time.Duration
	Notifier  events.Notifier
}

// Loop samples emotions and triggers playback when the emotion changes.
// At most one loop goroutine runs at a time.
type Loop struct {
	source     FrameSource
	classifier vision.Classifier
	player     Player
	state      *session.State
	cfg        Config

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a stopped loop.
func New(source FrameSource, classifier vision.Classifier, p Player, state *session.State, cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = DefaultIdleDelay
	}
	if cfg.Notifier == nil {
		cfg.Notifier = events.Nop{}
	}
	return &Loop{
		source:     source,
		classifier: classifier,
		player:     p,
		state:      state,
		cfg:        cfg,
	}
}

// Start opens the camera and launches the loop. It returns false without
// error when a loop is already running, including one still finishing its
// last iteration after Stop.
func (l *Loop) Start(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.aliveLocked() {
		return false, nil
	}

	if err := l.source.Open(ctx); err != nil {
		return false, fmt.Errorf("opening camera: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	l.stop, l.done = stop, done

	runID := uuid.NewString()
	slog.Info("detection started", "run_id", runID, "interval", l.cfg.Interval)

	go l.run(ctx, runID, stop, done)
	return true, nil
}

// Stop signals the loop to exit after its current iteration. The camera
// is released by the loop goroutine. Stop does not wait.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stop != nil {
		close(l.stop)
		l.stop = nil
	}
}

// Running reports whether a loop goroutine is alive.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.aliveLocked()
}

// Wait blocks until the current loop goroutine has exited or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) aliveLocked() bool {
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *Loop) run(ctx context.Context, runID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if err := l.source.Close(); err != nil {
			slog.Warn("closing camera", "run_id", runID, "error", err)
		}
		slog.Info("detection stopped", "run_id", runID)
	}()

	// Work already started finishes even when the loop is told to stop.
	work := context.WithoutCancel(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		delay := l.step(work, runID)

		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// step runs one iteration and returns how long to wait before the next.
func (l *Loop) step(ctx context.Context, runID string) time.Duration {
	f, ok := l.source.Latest()
	if !ok {
		return l.cfg.IdleDelay
	}

	res, err := l.classifier.Detect(ctx, f)
	if err != nil {
		slog.Warn("emotion detection failed", "run_id", runID, "trace_id", f.TraceID, "error", err)
		return l.cfg.Interval
	}

	l.state.SetFace(res.Face)
	if !res.Found() {
		return l.cfg.Interval
	}

	prev, changed := l.state.SwapEmotion(res.Emotion)
	if !changed {
		return l.cfg.Interval
	}
	current := emotion.Normalize(string(res.Emotion))

	slog.Info("emotion changed", "run_id", runID, "from", prev, "to", current)

	ev := events.New(events.TypeEmotionChanged, current)
	ev.Previous = prev
	l.notify(ctx, runID, ev)

	track, err := l.player.PlayForEmotion(ctx, current)
	if err != nil {
		slog.Warn("music selection failed, keeping current track",
			"run_id", runID,
			"emotion", current,
			"error", err,
		)
		ev := events.New(events.TypeSelectionFailed, current)
		ev.Error = err.Error()
		l.notify(ctx, runID, ev)
		return l.cfg.Interval
	}

	l.state.SetTrack(track)

	ev = events.New(events.TypeTrackStarted, current)
	ev.Track = track
	l.notify(ctx, runID, ev)

	return l.cfg.Interval
}

func (l *Loop) notify(ctx context.Context, runID string, ev events.Event) {
	ev.RunID = runID
	if err := l.cfg.Notifier.Notify(ctx, ev); err != nil {
		slog.Debug("event not delivered", "type", ev.Type, "error", err)
	}
}
