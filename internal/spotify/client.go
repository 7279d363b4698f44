// Package spotify adapts the Spotify Web API to the mood player's track
// source.
package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// maxItemsPerRequest is the Spotify limit for ID batches and playlist pages.
const maxItemsPerRequest = 100

// Client wraps the Spotify API client with the calls the player needs.
type Client struct {
	api *spotify.Client
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", err)
	}
	return user.ID, nil
}
