package detect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/events"
	"github.com/justestif/go-spotify-mood-player/internal/frame"
	"github.com/justestif/go-spotify-mood-player/internal/player"
	"github.com/justestif/go-spotify-mood-player/internal/session"
	"github.com/justestif/go-spotify-mood-player/internal/vision"
)

type fakeSource struct {
	mu      sync.Mutex
	opens   int
	closes  int
	openErr error
	noFrame bool
}

func (s *fakeSource) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opens++
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSource) Latest() (frame.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noFrame {
		return frame.Frame{}, false
	}
	return frame.Frame{Data: []byte{1}, Seq: 1}, true
}

func (s *fakeSource) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes
}

// scriptedClassifier returns results in order, repeating the last one.
type scriptedClassifier struct {
	mu      sync.Mutex
	results []vision.Result
	err     error
	calls   int
}

func (c *scriptedClassifier) Detect(context.Context, frame.Frame) (vision.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return vision.Result{}, c.err
	}
	i := min(c.calls-1, len(c.results)-1)
	return c.results[i], nil
}

func (c *scriptedClassifier) Close() error { return nil }

type fakePlayer struct {
	mu       sync.Mutex
	track    *player.TrackInfo
	err      error
	emotions []emotion.Emotion
	started  chan struct{}
	release  chan struct{}
}

func (p *fakePlayer) PlayForEmotion(_ context.Context, e emotion.Emotion) (*player.TrackInfo, error) {
	p.mu.Lock()
	p.emotions = append(p.emotions, e)
	started, release := p.started, p.release
	p.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if release != nil {
		<-release
	}
	return p.track, p.err
}

func (p *fakePlayer) calls() []emotion.Emotion {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]emotion.Emotion(nil), p.emotions...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func happy() vision.Result {
	return vision.Result{Emotion: emotion.Happy, Face: &vision.Box{X: 1, Y: 2, Width: 3, Height: 4}}
}

func TestStepDebouncesSameEmotion(t *testing.T) {
	state := session.New()
	classifier := &scriptedClassifier{results: []vision.Result{happy()}}
	p := &fakePlayer{track: &player.TrackInfo{Name: "A", URI: "spotify:track:A"}}
	l := New(&fakeSource{}, classifier, p, state, Config{})

	for range 3 {
		l.step(context.Background(), "run")
	}

	if got := p.calls(); len(got) != 1 || got[0] != emotion.Happy {
		t.Fatalf("player calls = %v, want [happy]", got)
	}

	snap := state.Snapshot()
	if snap.Emotion != emotion.Happy {
		t.Errorf("Emotion = %q, want happy", snap.Emotion)
	}
	if snap.Track == nil || snap.Track.URI != "spotify:track:A" {
		t.Errorf("Track = %+v, want A", snap.Track)
	}
	if snap.Face == nil || *snap.Face != *happy().Face {
		t.Errorf("Face = %+v", snap.Face)
	}
}

func TestStepInitialNeutralIsNotAChange(t *testing.T) {
	state := session.New()
	classifier := &scriptedClassifier{results: []vision.Result{{Emotion: emotion.Neutral}}}
	p := &fakePlayer{}
	l := New(&fakeSource{}, classifier, p, state, Config{})

	l.step(context.Background(), "run")

	if got := p.calls(); len(got) != 0 {
		t.Errorf("player calls = %v, want none", got)
	}
}

func TestStepEmotionSequence(t *testing.T) {
	state := session.New()
	classifier := &scriptedClassifier{results: []vision.Result{
		{Emotion: emotion.Happy},
		{Emotion: emotion.Happy},
		{Emotion: emotion.Sad},
		{},
		{Emotion: emotion.Sad},
		{Emotion: emotion.Happy},
	}}
	p := &fakePlayer{track: &player.TrackInfo{Name: "T", URI: "spotify:track:T"}}
	l := New(&fakeSource{}, classifier, p, state, Config{})

	for range 6 {
		l.step(context.Background(), "run")
	}

	want := []emotion.Emotion{emotion.Happy, emotion.Sad, emotion.Happy}
	got := p.calls()
	if len(got) != len(want) {
		t.Fatalf("player calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStepNoFace(t *testing.T) {
	state := session.New()
	state.SwapEmotion(emotion.Sad)

	classifier := &scriptedClassifier{results: []vision.Result{{}}}
	p := &fakePlayer{}
	l := New(&fakeSource{}, classifier, p, state, Config{Interval: time.Second})

	if d := l.step(context.Background(), "run"); d != time.Second {
		t.Errorf("delay = %v, want interval", d)
	}
	if state.Emotion() != emotion.Sad {
		t.Errorf("Emotion = %q, want unchanged sad", state.Emotion())
	}
	if len(p.calls()) != 0 {
		t.Error("player called without a detected emotion")
	}
}

func TestStepNoFrameUsesIdleDelay(t *testing.T) {
	classifier := &scriptedClassifier{results: []vision.Result{happy()}}
	l := New(&fakeSource{noFrame: true}, classifier, &fakePlayer{}, session.New(), Config{
		Interval:  time.Hour,
		IdleDelay: time.Millisecond,
	})

	if d := l.step(context.Background(), "run"); d != time.Millisecond {
		t.Errorf("delay = %v, want idle delay", d)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier called %d times without a frame", classifier.calls)
	}
}

func TestStepClassifierErrorKeepsState(t *testing.T) {
	state := session.New()
	classifier := &scriptedClassifier{err: vision.ErrWorkerClosed}
	p := &fakePlayer{}
	l := New(&fakeSource{}, classifier, p, state, Config{})

	l.step(context.Background(), "run")

	if state.Emotion() != emotion.Neutral || len(p.calls()) != 0 {
		t.Error("classifier failure changed state")
	}
}

func TestStepSelectionFailureKeepsTrack(t *testing.T) {
	state := session.New()
	previous := &player.TrackInfo{Name: "Old", URI: "spotify:track:old"}
	state.SetTrack(previous)

	notifier := &recordingNotifier{}
	classifier := &scriptedClassifier{results: []vision.Result{{Emotion: emotion.Angry}}}
	p := &fakePlayer{err: player.ErrNoTracks}
	l := New(&fakeSource{}, classifier, p, state, Config{Notifier: notifier})

	l.step(context.Background(), "run-1")

	snap := state.Snapshot()
	if snap.Emotion != emotion.Angry {
		t.Errorf("Emotion = %q, want angry", snap.Emotion)
	}
	if snap.Track != previous {
		t.Errorf("Track = %+v, want previous track kept", snap.Track)
	}

	if len(notifier.events) != 2 {
		t.Fatalf("events = %d, want 2", len(notifier.events))
	}
	changed, failed := notifier.events[0], notifier.events[1]
	if changed.Type != events.TypeEmotionChanged || changed.Previous != emotion.Neutral || changed.RunID != "run-1" {
		t.Errorf("first event = %+v", changed)
	}
	if failed.Type != events.TypeSelectionFailed || failed.Error == "" {
		t.Errorf("second event = %+v", failed)
	}
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	classifier := &scriptedClassifier{results: []vision.Result{happy()}}
	p := &fakePlayer{track: &player.TrackInfo{Name: "A", URI: "spotify:track:A"}}
	l := New(src, classifier, p, session.New(), Config{
		Interval:  time.Millisecond,
		IdleDelay: time.Millisecond,
	})

	ctx := context.Background()

	started, err := l.Start(ctx)
	if err != nil || !started {
		t.Fatalf("Start() = (%v, %v), want (true, nil)", started, err)
	}
	if again, err := l.Start(ctx); err != nil || again {
		t.Fatalf("second Start() = (%v, %v), want (false, nil)", again, err)
	}
	if !l.Running() {
		t.Error("Running() = false after Start")
	}

	l.Stop()
	l.Stop() // idempotent

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := l.Wait(waitCtx); err != nil {
		t.Fatalf("loop did not exit: %v", err)
	}
	if l.Running() {
		t.Error("Running() = true after exit")
	}

	opens, closes := src.counts()
	if opens != 1 || closes != 1 {
		t.Errorf("opens=%d closes=%d, want 1 and 1", opens, closes)
	}

	// restartable
	if started, err := l.Start(ctx); err != nil || !started {
		t.Fatalf("restart = (%v, %v), want (true, nil)", started, err)
	}
	l.Stop()
	if err := l.Wait(waitCtx); err != nil {
		t.Fatalf("restarted loop did not exit: %v", err)
	}
}

func TestStartWhileFinishing(t *testing.T) {
	src := &fakeSource{}
	classifier := &scriptedClassifier{results: []vision.Result{happy()}}
	p := &fakePlayer{
		track:   &player.TrackInfo{Name: "A", URI: "spotify:track:A"},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	state := session.New()
	l := New(src, classifier, p, state, Config{Interval: time.Millisecond, IdleDelay: time.Millisecond})

	ctx := context.Background()
	if _, err := l.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-p.started:
	case <-time.After(2 * time.Second):
		t.Fatal("player was never called")
	}

	l.Stop()

	// the in-flight selection holds the goroutine
	if started, err := l.Start(ctx); err != nil || started {
		t.Errorf("Start() during shutdown = (%v, %v), want (false, nil)", started, err)
	}

	close(p.release)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := l.Wait(waitCtx); err != nil {
		t.Fatalf("loop did not exit: %v", err)
	}

	// the selection completed despite Stop
	if snap := state.Snapshot(); snap.Track == nil || snap.Track.Name != "A" {
		t.Errorf("Track = %+v, want A", snap.Track)
	}
}

func TestStartOpenError(t *testing.T) {
	openErr := errors.New("no camera")
	l := New(&fakeSource{openErr: openErr}, &scriptedClassifier{}, &fakePlayer{}, session.New(), Config{})

	started, err := l.Start(context.Background())
	if !errors.Is(err, openErr) || started {
		t.Errorf("Start() = (%v, %v), want (false, %v)", started, err, openErr)
	}
	if l.Running() {
		t.Error("Running() = true after failed Start")
	}
}

func TestLoopExitsOnContextCancel(t *testing.T) {
	src := &fakeSource{noFrame: true}
	l := New(src, &scriptedClassifier{}, &fakePlayer{}, session.New(), Config{IdleDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := l.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cancel()

	waitCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if err := l.Wait(waitCtx); err != nil {
		t.Fatalf("loop did not exit after cancel: %v", err)
	}
	if _, closes := src.counts(); closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
}
