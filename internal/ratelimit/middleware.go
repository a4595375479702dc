package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "aegis-core/internal/errors"
)

// MiddlewareConfig configures the HTTP rate limiting middleware.
type MiddlewareConfig struct {
	PerClient bool
	// OnReject is invoked for every rejected request, typically a metrics hook.
	OnReject func()
	Logger   *slog.Logger
}

// Middleware rejects requests over the limit with 429. Limiter backend errors
// fail open and are logged.
func Middleware(l Limiter, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r, cfg.PerClient)
			allowed, err := l.Allow(r.Context(), key)
			if err != nil {
				log.Warn("rate limiter unavailable", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if cfg.OnReject != nil {
					cfg.OnReject()
				}
				writeTooManyRequests(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    string(apperrors.CodeRateLimited),
			"message": "Too Many Requests",
		},
	})
}
