package spotify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-mood-player/internal/mood"
)

// AudioFeatures retrieves audio features for the given track IDs, batched
// 100 per request. Tracks Spotify has no features for keep nil fields.
func (c *Client) AudioFeatures(ctx context.Context, trackIDs []string) ([]mood.Track, error) {
	if len(trackIDs) == 0 {
		return nil, nil
	}

	tracks := make([]mood.Track, len(trackIDs))
	ids := make([]spotify.ID, len(trackIDs))
	indexByID := make(map[string]int, len(trackIDs))
	for i, id := range trackIDs {
		tracks[i].ID = id
		ids[i] = spotify.ID(id)
		indexByID[id] = i
	}

	total := len(ids)
	for i := 0; i < total; i += maxItemsPerRequest {
		end := min(i+maxItemsPerRequest, total)

		features, err := c.api.GetAudioFeatures(ctx, ids[i:end]...)
		if err != nil {
			return nil, fmt.Errorf("fetching audio features (batch %d-%d): %w", i+1, end, err)
		}

		for _, f := range features {
			if f == nil {
				continue
			}
			idx, ok := indexByID[f.ID.String()]
			if !ok {
				continue
			}
			applyAudioFeatures(&tracks[idx], f)
		}
	}

	slog.Debug("spotify: fetched audio features", "tracks", total)
	return tracks, nil
}

// applyAudioFeatures copies the features the mood filter uses.
func applyAudioFeatures(t *mood.Track, f *spotify.AudioFeatures) {
	t.Energy = &f.Energy
	t.Valence = &f.Valence
	t.Danceability = &f.Danceability
	t.Acousticness = &f.Acousticness
}
