package emotion

// Profile is the music target for an emotion.
type Profile struct {
	Valence float64  // 0.0 (negative) to 1.0 (positive)
	Energy  float64  // 0.0 (calm) to 1.0 (intense)
	Tempo   float64  // Beats per minute
	Genres  []string // Seed genres, most relevant first
}

// MaxSeedGenres is the number of genres sent with a recommendation request.
const MaxSeedGenres = 3

var profiles = map[Emotion]Profile{
	Angry:    {Valence: 0.2, Energy: 0.8, Tempo: 140, Genres: []string{"metal", "hard-rock", "punk"}},
	Disgust:  {Valence: 0.2, Energy: 0.6, Tempo: 120, Genres: []string{"industrial", "metal", "goth"}},
	Fear:     {Valence: 0.3, Energy: 0.7, Tempo: 130, Genres: []string{"ambient", "atmospheric", "industrial"}},
	Happy:    {Valence: 0.8, Energy: 0.7, Tempo: 120, Genres: []string{"pop", "dance", "disco", "edm"}},
	Sad:      {Valence: 0.2, Energy: 0.3, Tempo: 90, Genres: []string{"sad", "acoustic", "piano", "indie"}},
	Surprise: {Valence: 0.6, Energy: 0.8, Tempo: 135, Genres: []string{"edm", "electronic", "dubstep"}},
	Neutral:  {Valence: 0.5, Energy: 0.5, Tempo: 110, Genres: []string{"pop", "rock", "indie"}},
}

// ProfileFor returns the music profile for e.
// Unknown emotions get the neutral profile.
func ProfileFor(e Emotion) Profile {
	p, ok := profiles[Normalize(string(e))]
	if !ok {
		p = profiles[Neutral]
	}
	p.Genres = append([]string(nil), p.Genres...)
	return p
}

// SeedGenres returns at most MaxSeedGenres genres from the profile.
func (p Profile) SeedGenres() []string {
	return p.Genres[:min(MaxSeedGenres, len(p.Genres))]
}
