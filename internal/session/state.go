// Package session holds the state shared between the detection loop and
// the HTTP handlers.
package session

import (
	"sync"
	"time"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/player"
	"github.com/justestif/go-spotify-mood-player/internal/vision"
)

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Emotion   emotion.Emotion
	Track     *player.TrackInfo
	Face      *vision.Box
	UpdatedAt time.Time
}

// State is the current emotion and track. The zero value is not usable;
// call New.
type State struct {
	mu        sync.RWMutex
	emotion   emotion.Emotion
	track     *player.TrackInfo
	face      *vision.Box
	updatedAt time.Time
	now       func() time.Time
}

// New returns a State with emotion neutral and no track.
func New() *State {
	return &State{
		emotion: emotion.Neutral,
		now:     time.Now,
	}
}

// Emotion returns the current emotion.
func (s *State) Emotion() emotion.Emotion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emotion
}

// SwapEmotion sets the current emotion to e when it differs and returns the
// previous value. Unknown labels are stored as neutral.
func (s *State) SwapEmotion(e emotion.Emotion) (prev emotion.Emotion, changed bool) {
	e = emotion.Normalize(string(e))

	s.mu.Lock()
	defer s.mu.Unlock()

	prev = s.emotion
	if prev == e {
		return prev, false
	}
	s.emotion = e
	s.updatedAt = s.now()
	return prev, true
}

// SetTrack replaces the current track. A nil track is ignored so a failed
// selection keeps the previous one.
func (s *State) SetTrack(t *player.TrackInfo) {
	if t == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = t
	s.updatedAt = s.now()
}

// SetFace records the most recent face box; nil clears it.
func (s *State) SetFace(b *vision.Box) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b == nil {
		s.face = nil
		return
	}
	face := *b
	s.face = &face
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Emotion:   s.emotion,
		Track:     s.track,
		UpdatedAt: s.updatedAt,
	}
	if s.face != nil {
		face := *s.face
		snap.Face = &face
	}
	return snap
}
