// Package mood narrows a set of tracks to the cluster that best matches a
// target mood using k-means over audio features.
package mood

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

var (
	// ErrTooFewTracks means there are fewer tracks with features than clusters.
	ErrTooFewTracks = errors.New("too few tracks with audio features")

	// ErrNoCluster means every cluster fell below the minimum size.
	ErrNoCluster = errors.New("no cluster reached the minimum size")
)

// Config holds mood clustering parameters.
type Config struct {
	NumClusters    int // Number of clusters to create (default: 3)
	MinClusterSize int // Clusters smaller than this are discarded
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		NumClusters:    3,
		MinClusterSize: 3,
	}
}

// Track is a track ID with its audio features.
// Features are nil when Spotify has none for the track.
type Track struct {
	ID           string
	Energy       *float32
	Valence      *float32
	Danceability *float32
	Acousticness *float32
}

// Cluster is a group of tracks with a similar mood.
type Cluster struct {
	Name     string
	TrackIDs []string
	Centroid map[string]float32
}

// trackObservation wraps a Track to implement clusters.Observation.
type trackObservation struct {
	track  *Track
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// featureNames defines the audio features used for clustering.
var featureNames = []string{"energy", "valence", "danceability", "acousticness"}

// Partition groups tracks by audio feature similarity.
// Tracks missing features, and clusters below MinClusterSize, are left out.
func Partition(tracks []Track, cfg Config) ([]Cluster, error) {
	if cfg.NumClusters <= 0 {
		cfg.NumClusters = DefaultConfig().NumClusters
	}

	var obs clusters.Observations
	for i := range tracks {
		t := &tracks[i]
		if !hasAudioFeatures(t) {
			continue
		}
		obs = append(obs, trackObservation{track: t, coords: extractFeatures(t)})
	}

	if len(obs) < cfg.NumClusters {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFewTracks, len(obs), cfg.NumClusters)
	}

	km := kmeans.New()
	result, err := km.Partition(obs, cfg.NumClusters)
	if err != nil {
		return nil, fmt.Errorf("running k-means: %w", err)
	}

	var out []Cluster
	for _, c := range result {
		var ids []string
		sums := make([]float64, len(featureNames))
		for _, o := range c.Observations {
			to, ok := o.(trackObservation)
			if !ok {
				continue
			}
			ids = append(ids, to.track.ID)
			for i, v := range to.coords {
				sums[i] += v
			}
		}
		if len(ids) == 0 || len(ids) < cfg.MinClusterSize {
			continue
		}

		// Mean of the members; the k-means center is not recomputed after
		// the final assignment round.
		centroid := make(map[string]float32, len(featureNames))
		for i, name := range featureNames {
			centroid[name] = float32(sums[i] / float64(len(ids)))
		}

		out = append(out, Cluster{
			Name:     describe(centroid),
			TrackIDs: ids,
			Centroid: centroid,
		})
	}

	if len(out) == 0 {
		return nil, ErrNoCluster
	}

	// Largest first so ties in Nearest favor bigger clusters.
	slices.SortStableFunc(out, func(a, b Cluster) int {
		return len(b.TrackIDs) - len(a.TrackIDs)
	})

	return out, nil
}

// Nearest returns the cluster whose centroid is closest to the target
// valence and energy. It reports false when parts is empty.
func Nearest(parts []Cluster, valence, energy float64) (Cluster, bool) {
	if len(parts) == 0 {
		return Cluster{}, false
	}

	best := 0
	bestDist := math.Inf(1)
	for i, c := range parts {
		dv := float64(c.Centroid["valence"]) - valence
		de := float64(c.Centroid["energy"]) - energy
		d := dv*dv + de*de
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return parts[best], true
}

// Narrow partitions tracks and returns the cluster nearest to the target
// valence and energy.
func Narrow(tracks []Track, valence, energy float64, cfg Config) (Cluster, error) {
	parts, err := Partition(tracks, cfg)
	if err != nil {
		return Cluster{}, err
	}
	c, _ := Nearest(parts, valence, energy)
	return c, nil
}

// hasAudioFeatures checks if a track has the required audio features for clustering.
func hasAudioFeatures(t *Track) bool {
	return t.Energy != nil &&
		t.Valence != nil &&
		t.Danceability != nil &&
		t.Acousticness != nil
}

// extractFeatures extracts the audio features used for clustering as a coordinate vector.
func extractFeatures(t *Track) clusters.Coordinates {
	return clusters.Coordinates{
		float64(*t.Energy),
		float64(*t.Valence),
		float64(*t.Danceability),
		float64(*t.Acousticness),
	}
}
