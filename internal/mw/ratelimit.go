package mw

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cody-dot-js/mock-api-server/internal/ratelimit"
)

type RateLimitConfig struct {
	RPS       float64
	Burst     int
	RouteName string
}

func (c RateLimitConfig) Enabled() bool { return c.RPS > 0 }

// RateLimit answers 429 once the route's bucket is empty, the way a throttling
// upstream would. Limiter errors let the request through.
func RateLimit(limiter ratelimit.Limiter, cfg RateLimitConfig, next http.Handler) http.Handler {
	if limiter == nil || !cfg.Enabled() {
		return next
	}
	key := "rl:" + cfg.RouteName

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dec, err := limiter.Allow(r.Context(), key, cfg.RPS, cfg.Burst)
		if err != nil || dec.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retry := dec.RetryAfterSeconds
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":               "rate_limited",
			"route":               cfg.RouteName,
			"retry_after_seconds": retry,
		})
	})
}
