// Command spotify-mood-player watches the webcam for facial emotions and
// plays matching music on Spotify.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justestif/go-spotify-mood-player/internal/auth"
	"github.com/justestif/go-spotify-mood-player/internal/camera"
	"github.com/justestif/go-spotify-mood-player/internal/config"
	"github.com/justestif/go-spotify-mood-player/internal/detect"
	"github.com/justestif/go-spotify-mood-player/internal/emotion"
	"github.com/justestif/go-spotify-mood-player/internal/events"
	"github.com/justestif/go-spotify-mood-player/internal/mood"
	"github.com/justestif/go-spotify-mood-player/internal/player"
	"github.com/justestif/go-spotify-mood-player/internal/retry"
	"github.com/justestif/go-spotify-mood-player/internal/session"
	"github.com/justestif/go-spotify-mood-player/internal/spotify"
	"github.com/justestif/go-spotify-mood-player/internal/vision"
	"github.com/justestif/go-spotify-mood-player/internal/web"
	webfs "github.com/justestif/go-spotify-mood-player/web"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Server.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authenticator, err := auth.New(auth.Config{
		ClientID:       cfg.Spotify.ClientID,
		ClientSecret:   cfg.Spotify.ClientSecret,
		RedirectURI:    cfg.Spotify.RedirectURI,
		TokenCachePath: cfg.Spotify.TokenCache,
	})
	if err != nil {
		return err
	}

	api, userAccess, err := authenticator.Connect(ctx, cfg.Spotify.ReadOnly)
	if err != nil {
		return fmt.Errorf("connecting to spotify: %w", err)
	}
	client := spotify.New(api)

	caps := player.ReadOnly()
	if userAccess {
		caps = player.FullAccess()
	}
	slog.Info("spotify connected", "user_access", caps.UserAccess, "playback", caps.Playback)

	index := buildPlaylistIndex(ctx, client, caps)

	opts := player.Options{
		Capabilities: caps,
		Retry: retry.Policy{
			MaxAttempts: cfg.Player.MaxAttempts,
			Backoff:     cfg.Player.Backoff,
		},
		TrackLimit: cfg.Player.TrackLimit,
		Mood: mood.Config{
			NumClusters:    cfg.Player.MoodClusters,
			MinClusterSize: mood.DefaultConfig().MinClusterSize,
		},
	}
	if cfg.Player.LibraryMoodFilter {
		opts.Features = client
	}
	orchestrator := player.New(client, index, opts)

	pyCfg := vision.PythonConfig{
		Command: cfg.Classifier.Command,
		Args:    cfg.Classifier.Args,
		Timeout: cfg.Classifier.Timeout,
	}
	classifier, err := vision.Supervise(ctx, func(ctx context.Context) (vision.Classifier, error) {
		return vision.StartPython(ctx, pyCfg)
	})
	if err != nil {
		return fmt.Errorf("starting classifier: %w", err)
	}
	defer classifier.Close()

	notifier, closeNotifier := connectNotifier(cfg.MQTT)
	defer closeNotifier()

	cam := camera.New(camera.Config{
		Index:  cfg.Camera.Index,
		Source: cfg.Camera.Source,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
	})

	state := session.New()
	loop := detect.New(cam, classifier, orchestrator, state, detect.Config{
		Interval:  cfg.Detection.Interval,
		IdleDelay: cfg.Detection.IdleDelay,
		Notifier:  notifier,
	})

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}

	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(ctx, web.ServerConfig{
		Addr:        cfg.Server.Addr,
		TemplatesFS: templates,
		StaticFS:    static,
		BlankWidth:  cfg.Camera.Width,
		BlankHeight: cfg.Camera.Height,
	}, web.Deps{
		Detector: loop,
		Frames:   cam,
		State:    state,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	runErr := server.Run(ctx)

	loop.Stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := loop.Wait(waitCtx); err != nil {
		slog.Warn("detection loop did not stop in time", "error", err)
	}

	return runErr
}

// buildPlaylistIndex classifies the user's playlists by name. Without user
// access, or when the listing fails, the index is empty and the playlist
// stage finds nothing.
func buildPlaylistIndex(ctx context.Context, client *spotify.Client, caps player.Capabilities) emotion.PlaylistIndex {
	if !caps.UserAccess {
		return emotion.BuildPlaylistIndex(nil)
	}

	playlists, err := client.Playlists(ctx, 0)
	if err != nil {
		slog.Warn("could not read playlists, playlist stage disabled", "error", err)
		return emotion.BuildPlaylistIndex(nil)
	}

	index := emotion.BuildPlaylistIndex(playlists)
	slog.Info("playlists indexed", "playlists", len(playlists))
	return index
}

// connectNotifier returns the MQTT publisher when a broker is configured
// and a no-op notifier otherwise.
func connectNotifier(cfg config.MQTTConfig) (events.Notifier, func()) {
	if cfg.Broker == "" {
		return events.Nop{}, func() {}
	}

	pub, err := events.ConnectMQTT(events.MQTTConfig{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Topic:    cfg.Topic,
		QoS:      cfg.QoS,
	})
	if err != nil {
		slog.Warn("event publishing disabled", "broker", cfg.Broker, "error", err)
		return events.Nop{}, func() {}
	}

	return pub, func() {
		published, failed := pub.Stats()
		slog.Info("event publisher closing", "published", published, "failed", failed)
		_ = pub.Close()
	}
}
