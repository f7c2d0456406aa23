package mw

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cody-dot-js/mock-api-server/internal/httpx"
)

// AccessLog writes one record per request. Mocked 5xx answers are logged at
// warn so a failing stub stands out in test output.
func AccessLog(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &httpx.StatusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		if sw.Code() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(context.Background(), level, "http_request",
			slog.String("rid", RID(r.Context())),
			slog.String("route", RouteName(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("query", r.URL.RawQuery),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", sw.Code()),
			slog.Int("bytes", sw.Bytes),
			slog.String("duration", time.Since(start).String()),
		)
	})
}
