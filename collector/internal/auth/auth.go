// Package auth implements API-key authentication for the collector. Keys
// are held as SHA-256 hashes; plaintext keys exist only in configuration and
// on the wire.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vigil-systems/vigil/collector/internal/metrics"
)

// Errors returned by Authenticate.
var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
)

// Authenticator validates Bearer API keys against a hash set.
type Authenticator struct {
	disabled bool
	hashes   map[string]struct{}
	logger   *slog.Logger
}

// New builds an Authenticator from plaintext keys. With disabled true every
// request passes; meant for local development only.
func New(keys []string, disabled bool, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	hashes := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		hashes[HashKey(key)] = struct{}{}
	}

	if disabled {
		logger.Warn("API authentication is disabled")
	} else if len(hashes) == 0 {
		logger.Warn("no API keys configured, all authenticated requests will be rejected")
	}

	return &Authenticator{disabled: disabled, hashes: hashes, logger: logger}
}

// HashKey returns the hex SHA-256 digest of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Authenticate checks the request's Authorization header. The accepted form
// is "Bearer <key>"; a bare key is tolerated for curl convenience.
func (a *Authenticator) Authenticate(r *http.Request) error {
	if a.disabled {
		return nil
	}

	header := r.Header.Get("Authorization")
	if strings.TrimSpace(header) == "" {
		return ErrMissingKey
	}

	// Strip the scheme before trimming: "Bearer " with no token must read
	// as a missing key, not an invalid one.
	key := header
	if lower := strings.ToLower(header); strings.HasPrefix(lower, "bearer ") {
		key = header[len("bearer "):]
	} else if strings.TrimSpace(lower) == "bearer" {
		return ErrMissingKey
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingKey
	}

	if _, ok := a.hashes[HashKey(key)]; !ok {
		return ErrInvalidKey
	}
	return nil
}

// Middleware rejects unauthenticated requests with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Authenticate(r); err != nil {
			metrics.AuthFailures.Inc()
			a.logger.Warn("authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}
