package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-mood-player/internal/player"
)

// Devices lists the user's Spotify Connect devices.
func (c *Client) Devices(ctx context.Context) ([]player.Device, error) {
	devices, err := c.api.PlayerDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	out := make([]player.Device, len(devices))
	for i, d := range devices {
		out[i] = player.Device{
			ID:     d.ID.String(),
			Name:   d.Name,
			Type:   d.Type,
			Active: d.Active,
		}
	}
	return out, nil
}

// StartPlayback plays a single track URI on the given device.
func (c *Client) StartPlayback(ctx context.Context, deviceID, uri string) error {
	id := spotify.ID(deviceID)
	opts := &spotify.PlayOptions{
		DeviceID: &id,
		URIs:     []spotify.URI{spotify.URI(uri)},
	}
	if err := c.api.PlayOpt(ctx, opts); err != nil {
		return fmt.Errorf("starting playback on %s: %w", deviceID, err)
	}
	return nil
}
