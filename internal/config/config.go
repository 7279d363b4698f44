// Package config loads the mood player configuration from a YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Spotify    SpotifyConfig    `yaml:"spotify"`
	Camera     CameraConfig     `yaml:"camera"`
	Detection  DetectionConfig  `yaml:"detection"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Player     PlayerConfig     `yaml:"player"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Debug bool   `yaml:"debug"`
}

type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	TokenCache   string `yaml:"token_cache"` // empty means the user config dir
	ReadOnly     bool   `yaml:"read_only"`   // skip the browser login and never start playback
}

type CameraConfig struct {
	Index  int    `yaml:"index"`
	Source string `yaml:"source"` // "v4l2" or "test"
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

type DetectionConfig struct {
	Interval  time.Duration `yaml:"interval"`
	IdleDelay time.Duration `yaml:"idle_delay"`
}

type ClassifierConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

type PlayerConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	Backoff           time.Duration `yaml:"backoff"`
	TrackLimit        int           `yaml:"track_limit"`
	LibraryMoodFilter bool          `yaml:"library_mood_filter"`
	MoodClusters      int           `yaml:"mood_clusters"`
}

// MQTTConfig is optional. An empty broker disables event publishing.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":5000"},
		Spotify: SpotifyConfig{
			RedirectURI: "http://127.0.0.1:5000/callback",
		},
		Camera: CameraConfig{
			Source: "v4l2",
			Width:  640,
			Height: 480,
			FPS:    15,
		},
		Detection: DetectionConfig{
			Interval:  5 * time.Second,
			IdleDelay: time.Second,
		},
		Classifier: ClassifierConfig{
			Command: "python3",
			Args:    []string{"models/emotion_worker.py"},
			Timeout: 5 * time.Second,
		},
		Player: PlayerConfig{
			MaxAttempts:  3,
			Backoff:      time.Second,
			TrackLimit:   50,
			MoodClusters: 3,
		},
		MQTT: MQTTConfig{
			Topic:    "mood-player/events",
			ClientID: "mood-player",
			QoS:      1,
		},
	}
}

// Load reads the YAML file at path on top of the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with the environment variables the
// player has always honored.
func (c *Config) applyEnv() error {
	if v := os.Getenv("SPOTIFY_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URI"); v != "" {
		c.Spotify.RedirectURI = v
	}
	if v := os.Getenv("CAMERA_INDEX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CAMERA_INDEX %q: %w", ErrInvalid, v, err)
		}
		c.Camera.Index = n
	}
	if v := os.Getenv("EMOTION_DETECTION_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%w: EMOTION_DETECTION_INTERVAL %q: %w", ErrInvalid, v, err)
		}
		c.Detection.Interval = d
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("%w: PORT %q: %w", ErrInvalid, v, err)
		}
		c.Server.Addr = ":" + v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		c.Server.Debug = isTrue(v)
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	return nil
}

// parseSeconds accepts a plain number of seconds or a Go duration string.
func parseSeconds(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	if c.Camera.Index < 0 {
		return fmt.Errorf("%w: camera.index must be >= 0", ErrInvalid)
	}
	switch c.Camera.Source {
	case "v4l2", "test":
	default:
		return fmt.Errorf("%w: camera.source %q must be v4l2 or test", ErrInvalid, c.Camera.Source)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 || c.Camera.FPS <= 0 {
		return fmt.Errorf("%w: camera width, height and fps must be positive", ErrInvalid)
	}
	if c.Detection.Interval <= 0 {
		return fmt.Errorf("%w: detection.interval must be positive", ErrInvalid)
	}
	if c.Detection.IdleDelay <= 0 {
		return fmt.Errorf("%w: detection.idle_delay must be positive", ErrInvalid)
	}
	if c.Classifier.Command == "" {
		return fmt.Errorf("%w: classifier.command is required", ErrInvalid)
	}
	if c.Player.MaxAttempts < 1 {
		return fmt.Errorf("%w: player.max_attempts must be at least 1", ErrInvalid)
	}
	if c.Player.Backoff < 0 {
		return fmt.Errorf("%w: player.backoff must not be negative", ErrInvalid)
	}
	if c.Player.TrackLimit < 1 || c.Player.TrackLimit > 50 {
		return fmt.Errorf("%w: player.track_limit must be between 1 and 50", ErrInvalid)
	}
	if c.Player.LibraryMoodFilter && c.Player.MoodClusters < 1 {
		return fmt.Errorf("%w: player.mood_clusters must be at least 1", ErrInvalid)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalid)
	}
	return nil
}

// HasCredentials reports whether both Spotify client credentials are set.
func (c *Config) HasCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}
