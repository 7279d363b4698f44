package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const callbackTimeout = 2 * time.Minute

var (
	// ErrMissingCredentials is returned when the client ID or secret is not set.
	ErrMissingCredentials = errors.New("missing Spotify client ID or secret (SPOTIFY_ID, SPOTIFY_SECRET)")

	// ErrAuthTimeout is returned when the OAuth callback is not received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is logged when a callback carries the wrong OAuth state.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// Scopes are the permissions the player asks the user for.
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistReadPrivate,
}

// Config holds the Spotify application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURI must use the explicit IPv4 loopback for local development.
	// See: https://developer.spotify.com/documentation/web-api/concepts/redirect-uri
	RedirectURI string
	// TokenCachePath overrides the default cache location when set.
	TokenCachePath string
}

// Authenticator handles Spotify OAuth2 authentication.
type Authenticator struct {
	cfg      Config
	auth     *spotifyauth.Authenticator
	cache    *TokenCache
	tokenURL string
}

// New creates an Authenticator. Returns ErrMissingCredentials if the client
// ID or secret is empty.
func New(cfg Config) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	cache := NewTokenCache(cfg.TokenCachePath)
	if cfg.TokenCachePath == "" {
		var err error
		cache, err = DefaultTokenCache()
		if err != nil {
			return nil, fmt.Errorf("creating token cache: %w", err)
		}
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURI),
		spotifyauth.WithScopes(Scopes...),
	)

	return &Authenticator{
		cfg:      cfg,
		auth:     auth,
		cache:    cache,
		tokenURL: spotifyauth.TokenURL,
	}, nil
}

// Connect returns a client and whether it acts for a user. In read-only
// mode, or when the user login fails, it falls back to an app-only client
// that can search the catalog but cannot read the library or control
// playback.
func (a *Authenticator) Connect(ctx context.Context, readOnly bool) (*spotify.Client, bool, error) {
	if !readOnly {
		client, err := a.Authenticate(ctx)
		if err == nil {
			return client, true, nil
		}
		if ctx.Err() != nil {
			return nil, false, err
		}
		slog.Warn("user authentication failed, continuing read-only", "error", err)
	}

	client, err := a.AppOnly(ctx)
	if err != nil {
		return nil, false, err
	}
	return client, false, nil
}

// AppOnly returns a client authorized with the client credentials flow.
// The token is fetched once up front so bad credentials fail here, and
// renewed by the client on expiry.
func (a *Authenticator) AppOnly(ctx context.Context) (*spotify.Client, error) {
	httpClient, err := a.appHTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	return spotify.New(httpClient, spotify.WithRetry(true)), nil
}

func (a *Authenticator) appHTTPClient(ctx context.Context) (*http.Client, error) {
	cc := &clientcredentials.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		TokenURL:     a.tokenURL,
	}

	if _, err := cc.Token(ctx); err != nil {
		return nil, fmt.Errorf("client credentials token: %w", err)
	}

	// Client credentials grants carry no refresh token; cc.Client asks
	// for a new grant whenever the current one expires.
	return cc.Client(ctx), nil
}

// Authenticate returns an authenticated Spotify client.
// It first checks for a cached token and uses it if valid/refreshable.
// Otherwise, it runs the full OAuth flow.
func (a *Authenticator) Authenticate(ctx context.Context) (*spotify.Client, error) {
	token, err := a.cache.Load(Scopes...)
	if err != nil {
		return nil, fmt.Errorf("loading cached token: %w", err)
	}

	if token != nil {
		// oauth2 refreshes an expired token on first use
		client := spotify.New(a.auth.Client(ctx, token), spotify.WithRetry(true))

		_, err := client.CurrentUser(ctx)
		if err == nil {
			newToken, tokenErr := client.Token()
			if tokenErr == nil && newToken.AccessToken != token.AccessToken {
				_ = a.cache.Save(newToken, Scopes...)
			}
			return client, nil
		}

		slog.Info("cached token invalid, starting new authentication", "error", err)
	}

	return a.runOAuthFlow(ctx)
}

// runOAuthFlow performs the full OAuth authorization code flow.
func (a *Authenticator) runOAuthFlow(ctx context.Context) (*spotify.Client, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	addr, path, err := callbackAddr(a.cfg.RedirectURI)
	if err != nil {
		return nil, err
	}

	tokenCh := make(chan *oauth2.Token, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		a.handleCallback(w, r, state, tokenCh, errCh)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(errCh, fmt.Errorf("callback server error: %w", err))
		}
	}()

	// The login URL is for the person at the terminal, not the log.
	fmt.Println("\nTo authenticate, open this URL in your browser:")
	fmt.Println(a.auth.AuthURL(state))
	fmt.Println("\nWaiting for authentication...")

	var token *oauth2.Token
	select {
	case token = <-tokenCh:
	case err := <-errCh:
		_ = server.Shutdown(ctx)
		return nil, err
	case <-time.After(callbackTimeout):
		_ = server.Shutdown(ctx)
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		_ = server.Shutdown(context.Background())
		return nil, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if err := a.cache.Save(token, Scopes...); err != nil {
		slog.Warn("failed to cache token", "path", a.cache.Path(), "error", err)
	}

	return spotify.New(a.auth.Client(ctx, token), spotify.WithRetry(true)), nil
}

// callbackAddr derives the listen address and path from the redirect URI.
func callbackAddr(redirectURI string) (addr, path string, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", "", fmt.Errorf("parsing redirect URI: %w", err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("redirect URI %q has no host", redirectURI)
	}

	addr = u.Host
	if u.Port() == "" {
		addr += ":80"
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	return addr, path, nil
}

// handleCallback processes the OAuth callback from Spotify. A request with
// the wrong state is rejected without ending the login, since anything on
// the loopback can hit this path.
func (a *Authenticator) handleCallback(w http.ResponseWriter, r *http.Request, expectedState string, tokenCh chan<- *oauth2.Token, errCh chan<- error) {
	if r.URL.Query().Get("state") != expectedState {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		slog.Warn("ignoring oauth callback", "error", ErrStateMismatch, "remote", r.RemoteAddr)
		return
	}

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
		report(errCh, fmt.Errorf("spotify auth error: %s", errMsg))
		return
	}

	token, err := a.auth.Token(r.Context(), expectedState, r)
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		report(errCh, fmt.Errorf("exchanging code for token: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body>
<h1>Authentication Successful!</h1>
<p>You can close this window and return to the mood player.</p>
</body>
</html>`)

	select {
	case tokenCh <- token:
	default:
	}
}

// report hands err to the waiting login without blocking when one is
// already pending.
func report(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
		slog.Debug("dropping oauth callback error", "error", err)
	}
}

// generateState creates a random state string for OAuth.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Logout removes the cached token.
func (a *Authenticator) Logout() error {
	return a.cache.Delete()
}
