package mw

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cody-dot-js/mock-api-server/internal/httpx"
)

// Recover turns a panicking handler into a 500. http.ErrAbortHandler is re-raised
// so net/http can drop the connection as it normally would.
func Recover(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &httpx.StatusWriter{ResponseWriter: w}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Error("handler panic",
				slog.String("rid", RID(r.Context())),
				slog.String("route", RouteName(r.Context())),
				slog.String("panic", fmt.Sprint(rec)),
			)
			if sw.Written() {
				return
			}
			sw.Header().Set("Content-Type", "application/json")
			sw.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(sw).Encode(map[string]any{
				"error": "internal_error",
			})
		}()
		next.ServeHTTP(sw, r)
	})
}
