package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"slotbook/internal/config"
)

// Client identifies an authenticated API caller. The admin capability used
// to gate schedule administration is carried here; how keys are issued is an
// external concern.
type Client struct {
	Name    string
	IsAdmin bool
}

type clientContextKey struct{}

// ClientFromContext returns the caller identity set by HTTPAuth.Wrap.
func ClientFromContext(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientContextKey{}).(Client)
	return c, ok
}

// HTTPAuth verifies the configured API key header and applies a per-key
// rate limit. Keys compare in constant time.
type HTTPAuth struct {
	cfg             *config.APIConfig
	clientsByAPIKey map[string]config.APIClientKey
	limiter         *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	return &HTTPAuth{
		cfg:             cfg,
		clientsByAPIKey: m,
		limiter:         newRateLimiter(cfg),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := Client{Name: "anonymous"}

		if a.cfg.Auth.Enabled {
			header := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)
			if header == "" {
				header = "x-api-key"
			}
			key := strings.TrimSpace(r.Header.Get(header))
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			matched, ok := a.lookup(key)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			client = Client{Name: matched.Name, IsAdmin: matched.IsAdmin()}
		}

		if !a.limiter.allow(client.Name) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		ctx := context.WithValue(r.Context(), clientContextKey{}, client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *HTTPAuth) lookup(key string) (config.APIClientKey, bool) {
	for candidate, client := range a.clientsByAPIKey {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return client, true
		}
	}
	return config.APIClientKey{}, false
}
