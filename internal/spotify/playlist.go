package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-mood-player/internal/emotion"
)

// Playlists returns up to limit of the current user's playlists, following
// pages as needed. A limit of zero or less reads every page.
func (c *Client) Playlists(ctx context.Context, limit int) ([]emotion.Playlist, error) {
	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(50))
	if err != nil {
		return nil, fmt.Errorf("fetching playlists: %w", err)
	}

	var playlists []emotion.Playlist
	for {
		for _, p := range page.Playlists {
			playlists = append(playlists, emotion.Playlist{ID: p.ID.String(), Name: p.Name})
			if limit > 0 && len(playlists) >= limit {
				return playlists, nil
			}
		}

		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching next playlist page: %w", err)
		}
	}

	return playlists, nil
}
