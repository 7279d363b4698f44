// Package events publishes emotion and track changes to interested parties.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/player"
)

// Event types.
const (
	TypeEmotionChanged  = "emotion_changed"
	TypeTrackStarted    = "track_started"
	TypeSelectionFailed = "selection_failed"
)

// Event describes one change observed by the detection loop.
type Event struct {
	ID       string            `json:"id"`
	RunID    string            `json:"run_id,omitempty"`
	Type     string            `json:"type"`
	Emotion  emotion.Emotion   `json:"emotion"`
	Previous emotion.Emotion   `json:"previous,omitempty"`
	Track    *player.TrackInfo `json:"track,omitempty"`
	Error    string            `json:"error,omitempty"`
	Time     time.Time         `json:"time"`
}

// New returns an event of the given type with a fresh ID and timestamp.
func New(typ string, e emotion.Emotion) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Emotion: e,
		Time:    time.Now().UTC(),
	}
}

// Payload encodes the event as JSON.
func (e Event) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// Notifier receives events. Implementations must be safe for use by one
// goroutine at a time and should not block for long.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }
