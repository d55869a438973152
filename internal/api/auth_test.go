package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"slotbook/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthHandler(cfg *config.APIConfig) http.Handler {
	auth := NewHTTPAuth(cfg)
	return auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, ok := ClientFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if client.IsAdmin {
			w.Header().Set("x-client-role", "admin")
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthDisabledAllowsAnonymous(t *testing.T) {
	handler := newAuthHandler(&config.APIConfig{
		Auth:      config.APIAuthConfig{Enabled: false},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("x-client-role"))
}

func TestAuthKeyLookup(t *testing.T) {
	cfg := &config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "admin-key", Name: "admin", Permissions: []string{"admin"}},
				{Key: "reader-key", Name: "reader"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}
	handler := newAuthHandler(cfg)

	t.Run("MissingKey", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-api-key", "nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("AdminKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-api-key", "admin-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "admin", rec.Header().Get("x-client-role"))
	})

	t.Run("ReaderKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-api-key", "reader-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("x-client-role"))
	})
}

func TestRateLimit(t *testing.T) {
	cfg := &config.APIConfig{
		Auth:      config.APIAuthConfig{Enabled: false},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	}
	handler := newAuthHandler(cfg)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// The burst is spent; the next request is throttled.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := &config.APIConfig{
		Auth:      config.APIAuthConfig{Enabled: false},
		RateLimit: config.APIRateLimitConfig{RPS: 0},
	}
	handler := newAuthHandler(cfg)

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
