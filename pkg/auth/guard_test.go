package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExchangeServer(t *testing.T, calls *atomic.Int64, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func okExchange(token string, expiresIn int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"expires_in":%d}`, token, expiresIn)
	}
}

func TestGuard_EnsureValid_CacheHit(t *testing.T) {
	var calls atomic.Int64
	srv := newExchangeServer(t, &calls, okExchange("unused", 3600))

	guard := NewGuard(Config{
		Realm:        "acme",
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
	})

	now := time.Now()
	guard.now = func() time.Time { return now }
	guard.current = Credential{Token: "cached", ExpiresAt: now.Add(10 * time.Minute)}

	cred, err := guard.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", cred.Token)
	assert.Equal(t, int64(0), calls.Load(), "cache hit must not call the network")
}

func TestGuard_EnsureValid_RefreshesInsideSafetyMargin(t *testing.T) {
	var calls atomic.Int64
	srv := newExchangeServer(t, &calls, okExchange("fresh-token", 1800))

	guard := NewGuard(Config{
		Realm:        "acme",
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
	})

	now := time.Now()
	guard.now = func() time.Time { return now }
	// 4 minutes left is inside the 5-minute margin.
	guard.current = Credential{Token: "stale", ExpiresAt: now.Add(4 * time.Minute)}

	cred, err := guard.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", cred.Token)
	assert.Equal(t, now.Add(1800*time.Second), cred.ExpiresAt)
	assert.Equal(t, int64(1), calls.Load(), "exactly one exchange expected")
}

func TestGuard_EnsureValid_SendsClientCredentialsForm(t *testing.T) {
	var calls atomic.Int64
	srv := newExchangeServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "/realms/acme/protocol/openid-connect/token", r.URL.Path)
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		okExchange("t", 60)(w, r)
	})

	guard := NewGuard(Config{
		Realm:        "acme",
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
	})

	_, err := guard.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGuard_EnsureValid_DefaultTTL(t *testing.T) {
	var calls atomic.Int64
	srv := newExchangeServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok"}`)
	})

	guard := NewGuard(Config{
		Realm:        "acme",
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
	})

	now := time.Now()
	guard.now = func() time.Time { return now }

	cred, err := guard.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultTokenTTL), cred.ExpiresAt)
}

func TestGuard_EnsureValid_MissingConfig(t *testing.T) {
	var calls atomic.Int64
	srv := newExchangeServer(t, &calls, okExchange("tok", 3600))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"blank realm", Config{Realm: " ", ClientID: "c", ClientSecret: "s"}},
		{"missing client id", Config{Realm: "r", ClientSecret: "s"}},
		{"missing client secret", Config{Realm: "r", ClientID: "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.BaseURL = srv.URL
			guard := NewGuard(cfg)

			_, err := guard.EnsureValid(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingConfig))
		})
	}

	assert.Equal(t, int64(0), calls.Load(), "config failures must not call the network")
}

func TestGuard_EnsureValid_ExchangeFailure(t *testing.T) {
	var calls atomic.Int64
	srv := newExchangeServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	})

	guard := NewGuard(Config{
		Realm:        "acme",
		ClientID:     "client",
		ClientSecret: "wrong",
		BaseURL:      srv.URL,
	})

	now := time.Now()
	guard.now = func() time.Time { return now }
	stale := Credential{Token: "stale", ExpiresAt: now.Add(time.Minute)}
	guard.current = stale

	_, err := guard.EnsureValid(context.Background())
	require.Error(t, err)

	var exchErr *ExchangeError
	require.True(t, errors.As(err, &exchErr))
	assert.Equal(t, http.StatusUnauthorized, exchErr.Status)
	assert.Contains(t, exchErr.Body, "invalid_client")

	// Failed exchange leaves the held credential untouched.
	assert.Equal(t, stale, guard.Current())
}

func TestGuard_EnsureValid_SingleFlight(t *testing.T) {
	var calls atomic.Int64
	srv := newExchangeServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		okExchange("tok", 3600)(w, r)
	})

	guard := NewGuard(Config{
		Realm:        "acme",
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := guard.EnsureValid(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok", cred.Token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent callers must share one exchange")
}

func TestCredential_Usable(t *testing.T) {
	now := time.Now()

	t.Run("inside margin is not usable", func(t *testing.T) {
		c := Credential{Token: "t", ExpiresAt: now.Add(4 * time.Minute)}
		assert.False(t, c.Usable(now))
	})

	t.Run("outside margin is usable", func(t *testing.T) {
		c := Credential{Token: "t", ExpiresAt: now.Add(10 * time.Minute)}
		assert.True(t, c.Usable(now))
	})

	t.Run("empty token is never usable", func(t *testing.T) {
		c := Credential{ExpiresAt: now.Add(time.Hour)}
		assert.False(t, c.Usable(now))
	})
}
