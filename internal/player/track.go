// Package player picks a track for a detected emotion and starts it on the
// user's Spotify device.
package player

import "strings"

// Track is a playable candidate returned by a TrackSource.
type Track struct {
	ID       string
	Name     string
	Artists  []string
	Album    string
	ImageURL string // largest album image, may be empty
	URI      string
}

// playable reports whether t carries everything a TrackInfo needs.
func (t *Track) playable() bool {
	return t != nil &&
		strings.TrimSpace(t.Name) != "" &&
		len(t.Artists) > 0 && strings.TrimSpace(t.Artists[0]) != "" &&
		strings.TrimSpace(t.Album) != "" &&
		strings.TrimSpace(t.URI) != ""
}

// TrackInfo describes the track chosen for an emotion.
// It is built once per selection and never modified afterwards.
type TrackInfo struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Image  string `json:"image"`
	URI    string `json:"uri"`
	Stage  string `json:"stage"`
}

func newTrackInfo(t *Track, stage string) *TrackInfo {
	return &TrackInfo{
		Name:   t.Name,
		Artist: t.Artists[0],
		Album:  t.Album,
		Image:  t.ImageURL,
		URI:    t.URI,
		Stage:  stage,
	}
}

// Device is a Spotify Connect target.
type Device struct {
	ID     string
	Name   string
	Type   string
	Active bool
}

// playableTracks drops nil and incomplete entries, preserving order.
func playableTracks(tracks []*Track) []*Track {
	var out []*Track
	for _, t := range tracks {
		if t.playable() {
			out = append(out, t)
		}
	}
	return out
}
