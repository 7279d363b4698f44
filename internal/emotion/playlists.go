package emotion

import (
	"slices"
	"strings"
)

// FallbackPlaylists is how many of the user's playlists are assigned to an
// emotion that no playlist name matched.
const FallbackPlaylists = 3

// Keywords are matched against lowercased playlist names to classify them.
var Keywords = map[Emotion][]string{
	Angry:    {"angry", "rage", "metal", "hard", "intense"},
	Disgust:  {"dark", "heavy", "intense"},
	Fear:     {"scary", "tense", "suspense", "horror"},
	Happy:    {"happy", "joy", "fun", "dance", "party", "upbeat", "edm"},
	Sad:      {"sad", "melancholy", "emotional", "heartbreak", "slow"},
	Surprise: {"epic", "dramatic", "cinematic", "surprise"},
	Neutral:  {"chill", "relax", "ambient", "focus", "work"},
}

// Playlist is the subset of playlist metadata needed for classification.
type Playlist struct {
	ID   string
	Name string
}

// ClassifyPlaylist returns every emotion whose keywords appear in name,
// in canonical order. The result may be empty.
func ClassifyPlaylist(name string) []Emotion {
	lower := strings.ToLower(name)

	var matches []Emotion
	for _, e := range All {
		for _, kw := range Keywords[e] {
			if strings.Contains(lower, kw) {
				matches = append(matches, e)
				break
			}
		}
	}
	return matches
}

// PlaylistIndex maps emotions to the IDs of playlists that suit them.
// It is built once and never modified.
type PlaylistIndex struct {
	byEmotion map[Emotion][]string
	all       []string
}

// BuildPlaylistIndex classifies playlists by name. Emotions without a match
// receive the first FallbackPlaylists playlists.
func BuildPlaylistIndex(playlists []Playlist) PlaylistIndex {
	idx := PlaylistIndex{byEmotion: make(map[Emotion][]string, len(All))}

	for _, p := range playlists {
		if p.ID == "" {
			continue
		}
		if !slices.Contains(idx.all, p.ID) {
			idx.all = append(idx.all, p.ID)
		}
		for _, e := range ClassifyPlaylist(p.Name) {
			if !slices.Contains(idx.byEmotion[e], p.ID) {
				idx.byEmotion[e] = append(idx.byEmotion[e], p.ID)
			}
		}
	}

	fallback := idx.all[:min(FallbackPlaylists, len(idx.all))]
	for _, e := range All {
		if len(idx.byEmotion[e]) == 0 && len(fallback) > 0 {
			idx.byEmotion[e] = slices.Clone(fallback)
		}
	}

	return idx
}

// For returns the playlist IDs assigned to e. Unknown emotions use neutral.
func (idx PlaylistIndex) For(e Emotion) []string {
	return slices.Clone(idx.byEmotion[Normalize(string(e))])
}

// Any returns every indexed playlist ID.
func (idx PlaylistIndex) Any() []string {
	return slices.Clone(idx.all)
}

// Len returns the number of distinct playlists in the index.
func (idx PlaylistIndex) Len() int {
	return len(idx.all)
}
