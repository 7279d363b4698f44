package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-mood-player/internal/player"
)

// PlaylistTracks returns up to limit tracks from a playlist. Episodes and
// unavailable entries come back as nil.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string, limit int) ([]*player.Track, error) {
	page, err := c.api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(clampLimit(limit, maxItemsPerRequest)))
	if err != nil {
		return nil, fmt.Errorf("fetching playlist %s: %w", playlistID, err)
	}

	tracks := make([]*player.Track, 0, len(page.Items))
	for _, item := range page.Items {
		if item.Track.Track == nil {
			tracks = append(tracks, nil)
			continue
		}
		tracks = append(tracks, convertFullTrack(item.Track.Track))
	}
	return tracks, nil
}

// SavedTracks returns up to limit of the user's liked songs, most recent first.
func (c *Client) SavedTracks(ctx context.Context, limit int) ([]*player.Track, error) {
	page, err := c.api.CurrentUsersTracks(ctx, spotify.Limit(clampLimit(limit, 50)))
	if err != nil {
		return nil, fmt.Errorf("fetching liked songs: %w", err)
	}

	tracks := make([]*player.Track, 0, len(page.Tracks))
	for i := range page.Tracks {
		tracks = append(tracks, convertFullTrack(&page.Tracks[i].FullTrack))
	}
	return tracks, nil
}

// Recommendations asks Spotify for tracks seeded by genres and targeting
// the given valence and energy.
func (c *Client) Recommendations(ctx context.Context, genres []string, valence, energy float64, limit int) ([]*player.Track, error) {
	seeds := spotify.Seeds{Genres: genres}
	attrs := spotify.NewTrackAttributes().
		TargetValence(valence).
		TargetEnergy(energy)

	recs, err := c.api.GetRecommendations(ctx, seeds, attrs, spotify.Limit(clampLimit(limit, maxItemsPerRequest)))
	if err != nil {
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}

	tracks := make([]*player.Track, 0, len(recs.Tracks))
	for i := range recs.Tracks {
		tracks = append(tracks, convertSimpleTrack(&recs.Tracks[i]))
	}
	return tracks, nil
}

func convertFullTrack(ft *spotify.FullTrack) *player.Track {
	t := convertSimpleTrack(&ft.SimpleTrack)
	t.Album = ft.Album.Name
	t.ImageURL = largestImage(ft.Album.Images)
	return t
}

func convertSimpleTrack(st *spotify.SimpleTrack) *player.Track {
	artists := make([]string, len(st.Artists))
	for i, a := range st.Artists {
		artists[i] = a.Name
	}

	return &player.Track{
		ID:       st.ID.String(),
		Name:     st.Name,
		Artists:  artists,
		Album:    st.Album.Name,
		ImageURL: largestImage(st.Album.Images),
		URI:      string(st.URI),
	}
}

// largestImage returns the first image URL. Spotify lists album art
// widest first.
func largestImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
