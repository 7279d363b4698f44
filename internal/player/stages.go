package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/mood"
)

// Stage names, in fallback order.
const (
	StagePlaylist = "playlist"
	StageLibrary  = "library"
	StageFeatures = "features"
)

var (
	errNoUserAccess = errors.New("no user identity for this session")
	errEmptyResult  = errors.New("no playable tracks")
)

// Stage is one track selection strategy.
type Stage struct {
	Name  string
	Fetch func(ctx context.Context, e emotion.Emotion) ([]*Track, error)
}

// defaultStages builds the playlist, library, features chain.
func (o *Orchestrator) defaultStages() []Stage {
	return []Stage{
		{Name: StagePlaylist, Fetch: o.fromPlaylist},
		{Name: StageLibrary, Fetch: o.fromLibrary},
		{Name: StageFeatures, Fetch: o.fromFeatures},
	}
}

// fromPlaylist reads one randomly chosen playlist assigned to e.
func (o *Orchestrator) fromPlaylist(ctx context.Context, e emotion.Emotion) ([]*Track, error) {
	if !o.caps.UserAccess {
		return nil, errNoUserAccess
	}

	ids := o.index.For(e)
	if len(ids) == 0 {
		ids = o.index.Any()
	}
	if len(ids) == 0 {
		return nil, nil
	}
	playlistID := ids[o.pick(len(ids))]

	slog.Debug("player: reading playlist", "emotion", e, "playlist_id", playlistID)

	var tracks []*Track
	err := o.retry.Do(ctx, "playlist tracks", func(ctx context.Context) error {
		got, err := o.source.PlaylistTracks(ctx, playlistID, o.trackLimit)
		if err != nil {
			return err
		}
		tracks = playableTracks(got)
		if len(tracks) == 0 {
			return fmt.Errorf("playlist %s: %w", playlistID, errEmptyResult)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// fromLibrary reads the user's saved tracks, optionally narrowed to the
// mood cluster nearest e's target features.
func (o *Orchestrator) fromLibrary(ctx context.Context, e emotion.Emotion) ([]*Track, error) {
	if !o.caps.UserAccess {
		return nil, errNoUserAccess
	}

	got, err := o.source.SavedTracks(ctx, o.trackLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching saved tracks: %w", err)
	}
	tracks := playableTracks(got)

	if o.features == nil || len(tracks) == 0 {
		return tracks, nil
	}
	return o.narrowByMood(ctx, e, tracks), nil
}

// narrowByMood keeps the tracks of the k-means cluster closest to e.
// Any failure returns tracks unchanged.
func (o *Orchestrator) narrowByMood(ctx context.Context, e emotion.Emotion, tracks []*Track) []*Track {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.ID != "" {
			ids = append(ids, t.ID)
		}
	}

	features, err := o.features.AudioFeatures(ctx, ids)
	if err != nil {
		slog.Warn("player: audio features unavailable, using whole library", "error", err)
		return tracks
	}

	profile := emotion.ProfileFor(e)
	cluster, err := mood.Narrow(features, profile.Valence, profile.Energy, o.moodConfig)
	if err != nil {
		slog.Debug("player: mood filter skipped", "emotion", e, "error", err)
		return tracks
	}

	keep := make(map[string]bool, len(cluster.TrackIDs))
	for _, id := range cluster.TrackIDs {
		keep[id] = true
	}

	var narrowed []*Track
	for _, t := range tracks {
		if keep[t.ID] {
			narrowed = append(narrowed, t)
		}
	}
	if len(narrowed) == 0 {
		return tracks
	}

	slog.Debug("player: library narrowed by mood",
		"emotion", e,
		"cluster", cluster.Name,
		"kept", len(narrowed),
		"of", len(tracks),
	)
	return narrowed
}

// fromFeatures asks for recommendations seeded by e's genres.
func (o *Orchestrator) fromFeatures(ctx context.Context, e emotion.Emotion) ([]*Track, error) {
	profile := emotion.ProfileFor(e)
	genres := profile.SeedGenres()

	var tracks []*Track
	err := o.retry.Do(ctx, "recommendations", func(ctx context.Context) error {
		got, err := o.source.Recommendations(ctx, genres, profile.Valence, profile.Energy, o.trackLimit)
		if err != nil {
			return err
		}
		tracks = playableTracks(got)
		if len(tracks) == 0 {
			return fmt.Errorf("recommendations for %s: %w", e, errEmptyResult)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}
