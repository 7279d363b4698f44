package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/mood"
	"github.com/justestif/go-spotify-mood-player/internal/retry"
)

// DefaultTrackLimit caps every track listing request.
const DefaultTrackLimit = 50

var (
	// ErrNoTracks means every stage came back empty.
	ErrNoTracks = errors.New("no tracks found")

	// ErrNoDevice means the user has no Spotify device to play on.
	ErrNoDevice = errors.New("no playback device available")

	// ErrPlaybackFailed means the device rejected every playback attempt.
	ErrPlaybackFailed = errors.New("playback failed")
)

// Options configures an Orchestrator. Zero values use defaults.
type Options struct {
	Capabilities Capabilities
	Retry        retry.Policy
	TrackLimit   int

	// Features enables the library mood filter when set.
	Features FeatureSource
	Mood     mood.Config

	// Pick returns a uniformly random index in [0, n).
	Pick func(n int) int

	// Stages replaces the default playlist, library, features chain.
	Stages []Stage
}

// Orchestrator selects and plays a track for an emotion.
type Orchestrator struct {
	source     TrackSource
	index      emotion.PlaylistIndex
	caps       Capabilities
	retry      retry.Policy
	trackLimit int
	features   FeatureSource
	moodConfig mood.Config
	pick       func(n int) int
	stages     []Stage
}

// New creates an Orchestrator reading from source.
func New(source TrackSource, index emotion.PlaylistIndex, opts Options) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		index:      index,
		caps:       opts.Capabilities,
		retry:      opts.Retry,
		trackLimit: opts.TrackLimit,
		features:   opts.Features,
		moodConfig: opts.Mood,
		pick:       opts.Pick,
	}

	if o.trackLimit <= 0 {
		o.trackLimit = DefaultTrackLimit
	}
	if o.moodConfig.NumClusters <= 0 {
		o.moodConfig = mood.DefaultConfig()
	}
	if o.pick == nil {
		o.pick = rand.IntN
	}

	o.stages = opts.Stages
	if len(o.stages) == 0 {
		o.stages = o.defaultStages()
	}

	return o
}

// Capabilities returns what the orchestrator may do with the session.
func (o *Orchestrator) Capabilities() Capabilities {
	return o.caps
}

// PlayForEmotion picks a random track for e and, when the session allows
// it, starts playback. Unknown emotions are treated as neutral.
func (o *Orchestrator) PlayForEmotion(ctx context.Context, e emotion.Emotion) (*TrackInfo, error) {
	e = emotion.Normalize(string(e))

	slog.Info("player: finding music", "emotion", e)

	candidates, stage := o.collect(ctx, e)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("emotion %s: %w", e, ErrNoTracks)
	}

	track := candidates[o.pick(len(candidates))]
	info := newTrackInfo(track, stage)

	slog.Info("player: selected track",
		"emotion", e,
		"stage", stage,
		"track", track.Name,
		"artist", info.Artist,
	)

	if !o.caps.Playback {
		slog.Info("player: playback unavailable, returning track only", "uri", track.URI)
		return info, nil
	}

	deviceID, err := o.resolveDevice(ctx)
	if err != nil {
		return nil, err
	}

	err = o.retry.Do(ctx, "start playback", func(ctx context.Context) error {
		return o.source.StartPlayback(ctx, deviceID, track.URI)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPlaybackFailed, track.URI, err)
	}

	slog.Info("player: now playing", "track", track.Name, "device_id", deviceID)
	return info, nil
}

// collect runs the stages in order and returns the first non-empty result
// with the name of the stage that produced it.
func (o *Orchestrator) collect(ctx context.Context, e emotion.Emotion) ([]*Track, string) {
	for _, s := range o.stages {
		tracks, err := s.Fetch(ctx, e)
		switch {
		case errors.Is(err, errNoUserAccess):
			slog.Debug("player: stage skipped", "stage", s.Name, "reason", err)
			continue
		case err != nil:
			slog.Warn("player: stage failed", "stage", s.Name, "emotion", e, "error", err)
			continue
		}

		tracks = playableTracks(tracks)
		if len(tracks) > 0 {
			return tracks, s.Name
		}
		slog.Info("player: stage returned no tracks", "stage", s.Name, "emotion", e)
	}
	return nil, ""
}

// resolveDevice prefers the active device, else the first listed.
func (o *Orchestrator) resolveDevice(ctx context.Context) (string, error) {
	devices, err := o.source.Devices(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: listing devices: %w", ErrNoDevice, err)
	}
	if len(devices) == 0 {
		return "", ErrNoDevice
	}

	device := devices[0]
	for _, d := range devices {
		if d.Active {
			device = d
			break
		}
	}

	slog.Debug("player: using device", "name", device.Name, "type", device.Type)
	return device.ID, nil
}
