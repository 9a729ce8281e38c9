package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/kbukum/whisper-gateway/errors"
)

// APIKeyConfig configures the API key middleware.
type APIKeyConfig struct {
	// Hash is the bcrypt hash of the accepted key. Empty disables the check.
	Hash string
	// SkipPaths are URL path prefixes that bypass the check.
	SkipPaths []string
}

// APIKey returns middleware that requires "Authorization: Bearer <key>"
// matching the configured bcrypt hash. The last accepted key is remembered
// so repeat callers skip the bcrypt comparison.
func APIKey(cfg APIKeyConfig) Middleware {
	if cfg.Hash == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	var (
		mu       sync.RWMutex
		accepted string
	)
	verify := func(key string) bool {
		mu.RLock()
		ok := accepted != "" && key == accepted
		mu.RUnlock()
		if ok {
			return true
		}
		if bcrypt.CompareHashAndPassword([]byte(cfg.Hash), []byte(key)) != nil {
			return false
		}
		mu.Lock()
		accepted = key
		mu.Unlock()
		return true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.SkipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization header required")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "Invalid authorization header format")
				return
			}
			if !verify(parts[1]) {
				unauthorized(w, "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(apperrors.Unauthorized(reason).ToResponse())
}
