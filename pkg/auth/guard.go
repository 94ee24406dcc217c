package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brunohrs/stackpilot/internal/observability"
)

const (
	// DefaultAuthBaseURL is the StackSpot identity provider.
	DefaultAuthBaseURL = "https://auth.stackspot.com"

	// DefaultTokenTTL is assumed when the exchange response omits expires_in.
	DefaultTokenTTL = 3600 * time.Second

	defaultTimeout = 30 * time.Second
)

// Config holds the credentials used for the client_credentials exchange.
type Config struct {
	Realm        string
	ClientID     string
	ClientSecret string
	BaseURL      string        // defaults to DefaultAuthBaseURL
	Timeout      time.Duration // defaults to 30s
}

// Guard owns the current credential and renews it through the realm
// token endpoint when it is absent or inside the safety margin. It is
// safe for concurrent use; only one exchange runs at a time and a
// finished exchange is visible to every caller.
type Guard struct {
	cfg        Config
	httpClient *http.Client

	mu      sync.Mutex
	current Credential

	now func() time.Time
}

// NewGuard creates a new credential guard.
func NewGuard(cfg Config) *Guard {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAuthBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Guard{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

// Current returns the credential held right now, which may be stale or zero.
func (g *Guard) Current() Credential {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// EnsureValid returns a usable credential, performing a token exchange
// only when the held one is absent or about to expire. On failure the
// held credential is left untouched.
func (g *Guard) EnsureValid(ctx context.Context) (Credential, error) {
	if err := g.checkConfig(); err != nil {
		return Credential{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current.Usable(g.now()) {
		log.Debug().
			Time("expires_at", g.current.ExpiresAt).
			Msg("Credential still valid, skipping exchange")
		return g.current, nil
	}

	cred, err := g.exchange(ctx)
	if err != nil {
		observability.RecordTokenExchange(false)
		return Credential{}, err
	}

	g.current = cred
	observability.RecordTokenExchange(true)

	log.Info().
		Time("expires_at", cred.ExpiresAt).
		Msg("Credential renewed")

	return cred, nil
}

// checkConfig fails fast before any network call when required values
// are unset or blank.
func (g *Guard) checkConfig() error {
	switch {
	case strings.TrimSpace(g.cfg.Realm) == "":
		return fmt.Errorf("%w: realm is not set", ErrMissingConfig)
	case strings.TrimSpace(g.cfg.ClientID) == "":
		return fmt.Errorf("%w: client id is not set", ErrMissingConfig)
	case strings.TrimSpace(g.cfg.ClientSecret) == "":
		return fmt.Errorf("%w: client secret is not set", ErrMissingConfig)
	}
	return nil
}

// exchange performs the client_credentials grant against the realm
// token endpoint. Callers must hold g.mu.
func (g *Guard) exchange(ctx context.Context) (Credential, error) {
	form := url.Values{}
	form.Set("client_id", g.cfg.ClientID)
	form.Set("client_secret", g.cfg.ClientSecret)
	form.Set("grant_type", "client_credentials")

	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", g.cfg.BaseURL, g.cfg.Realm)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, &ExchangeError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Credential{}, &ExchangeError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return Credential{}, &ExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Credential{}, &ExchangeError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if result.AccessToken == "" {
		return Credential{}, &ExchangeError{Err: fmt.Errorf("response missing access_token")}
	}

	ttl := DefaultTokenTTL
	if result.ExpiresIn > 0 {
		ttl = time.Duration(result.ExpiresIn) * time.Second
	}

	return Credential{
		Token:     result.AccessToken,
		ExpiresAt: g.now().Add(ttl),
	}, nil
}
