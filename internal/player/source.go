package player

import (
	"context"

	"github.com/justestif/go-spotify-mood-player/internal/mood"
)

// TrackSource is the remote music catalog and player.
type TrackSource interface {
	// PlaylistTracks returns up to limit tracks of a playlist. Entries may be
	// nil for removed or local items.
	PlaylistTracks(ctx context.Context, playlistID string, limit int) ([]*Track, error)

	// SavedTracks returns up to limit tracks from the user's library.
	SavedTracks(ctx context.Context, limit int) ([]*Track, error)

	// Recommendations returns up to limit tracks seeded by genres and
	// targeting the given valence and energy.
	Recommendations(ctx context.Context, genres []string, valence, energy float64, limit int) ([]*Track, error)

	Devices(ctx context.Context) ([]Device, error)
	StartPlayback(ctx context.Context, deviceID, uri string) error
}

// FeatureSource supplies audio features for the library mood filter.
type FeatureSource interface {
	AudioFeatures(ctx context.Context, trackIDs []string) ([]mood.Track, error)
}

// Capabilities records what the current Spotify session is allowed to do.
type Capabilities struct {
	// UserAccess is true when a user identity is known, which the playlist
	// and library stages require.
	UserAccess bool

	// Playback is true when the session may control the user's devices.
	Playback bool
}

// FullAccess is the capability set of a user-authorized session.
func FullAccess() Capabilities {
	return Capabilities{UserAccess: true, Playback: true}
}

// ReadOnly is the capability set of an app-only session.
func ReadOnly() Capabilities {
	return Capabilities{}
}
