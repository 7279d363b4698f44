package emotion

import (
	"reflect"
	"testing"
)

func TestClassifyPlaylist(t *testing.T) {
	tests := []struct {
		name string
		want []Emotion
	}{
		{"Happy Hits", []Emotion{Happy}},
		{"late night CHILL", []Emotion{Neutral}},
		// "intense" also carries the fear keyword "tense".
		{"Intense Workout", []Emotion{Angry, Disgust, Fear, Neutral}},
		{"Heartbreak Hotel", []Emotion{Sad}},
		{"Horror Movie Scores", []Emotion{Fear}},
		{"Road Trip", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPlaylist(tt.name)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ClassifyPlaylist(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestBuildPlaylistIndex(t *testing.T) {
	playlists := []Playlist{
		{ID: "p1", Name: "Road Trip"},
		{ID: "p2", Name: "Party Time"},
		{ID: "p3", Name: "Sad Songs"},
		{ID: "p4", Name: "Focus"},
		{ID: "p5", Name: "Dance Party"},
	}

	idx := BuildPlaylistIndex(playlists)

	tests := []struct {
		emotion Emotion
		want    []string
	}{
		{Happy, []string{"p2", "p5"}},
		{Sad, []string{"p3"}},
		{Neutral, []string{"p4"}},
		// no keyword hit: first three playlists
		{Angry, []string{"p1", "p2", "p3"}},
		{Surprise, []string{"p1", "p2", "p3"}},
		// unknown label uses neutral
		{"bored", []string{"p4"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.emotion), func(t *testing.T) {
			if got := idx.For(tt.emotion); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("For(%q) = %v, want %v", tt.emotion, got, tt.want)
			}
		})
	}

	if idx.Len() != 5 {
		t.Errorf("Len() = %d, want 5", idx.Len())
	}
	if got := idx.Any(); len(got) != 5 || got[0] != "p1" {
		t.Errorf("Any() = %v", got)
	}
}

func TestBuildPlaylistIndexSkipsDuplicatesAndEmptyIDs(t *testing.T) {
	idx := BuildPlaylistIndex([]Playlist{
		{ID: "", Name: "Happy"},
		{ID: "a", Name: "Happy"},
		{ID: "a", Name: "Happy again"},
	})

	if got := idx.For(Happy); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("For(happy) = %v, want [a]", got)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}
}

func TestBuildPlaylistIndexEmpty(t *testing.T) {
	idx := BuildPlaylistIndex(nil)

	for _, e := range All {
		if got := idx.For(e); len(got) != 0 {
			t.Errorf("For(%q) = %v, want empty", e, got)
		}
	}
	if len(idx.Any()) != 0 {
		t.Error("Any() should be empty")
	}
}

func TestPlaylistIndexForReturnsCopy(t *testing.T) {
	idx := BuildPlaylistIndex([]Playlist{{ID: "x", Name: "happy"}})

	ids := idx.For(Happy)
	ids[0] = "mutated"

	if idx.For(Happy)[0] != "x" {
		t.Error("mutating For() result changed the index")
	}
}
