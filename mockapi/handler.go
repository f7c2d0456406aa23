package mockapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cody-dot-js/mock-api-server/internal/mw"
	"github.com/cody-dot-js/mock-api-server/internal/ratelimit"
)

const allowedMethods = "GET, HEAD, POST"

// app is the serving side of a route table: dispatch plus the middleware around it.
type app struct {
	rtr      *router
	handlers []http.Handler
	notFound http.Handler

	metricsPath string
	metrics     http.Handler

	limiter *ratelimit.MemoryLimiter
}

func newApp(routes []Route, metricsPath string, log *slog.Logger) *app {
	reg := prometheus.NewRegistry()
	metrics := mw.NewMetrics(reg)

	a := &app{
		rtr:         newRouter(routes),
		metricsPath: metricsPath,
		metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	for _, rt := range routes {
		if rt.RateLimit.RPS > 0 {
			a.limiter = ratelimit.NewMemoryLimiter(0, 0)
			break
		}
	}

	wrap := func(routeName string, h http.Handler) http.Handler {
		h = mw.Recover(log, h)
		h = mw.AccessLog(log, h)
		h = mw.Instrument(metrics, h)
		h = mw.WithRoute(h, routeName)
		h = mw.RequestID(h)
		return h
	}

	a.handlers = make([]http.Handler, len(a.rtr.mounts))
	for i, m := range a.rtr.mounts {
		var h http.Handler = dispatch(m.route)
		h = mw.RateLimit(limiterOrNil(a.limiter), mw.RateLimitConfig{
			RPS:       m.route.RateLimit.RPS,
			Burst:     m.route.RateLimit.Burst,
			RouteName: m.route.Path,
		}, h)
		a.handlers[i] = wrap(m.route.Path, h)
	}
	a.notFound = wrap("", http.HandlerFunc(http.NotFound))
	return a
}

// limiterOrNil keeps a nil *MemoryLimiter from turning into a non-nil interface.
func limiterOrNil(l *ratelimit.MemoryLimiter) ratelimit.Limiter {
	if l == nil {
		return nil
	}
	return l
}

func (a *app) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.metricsPath != "" && r.URL.Path == a.metricsPath {
		a.metrics.ServeHTTP(w, r)
		return
	}
	i := a.rtr.match(r.URL.Path)
	if i < 0 {
		a.notFound.ServeHTTP(w, r)
		return
	}
	a.handlers[i].ServeHTTP(w, r)
}

func (a *app) close() {
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
}

// dispatch answers GET and POST alike with the route's evaluated spec. HEAD
// takes the GET path; net/http drops the body.
func dispatch(rt Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
		default:
			w.Header().Set("Allow", allowedMethods)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		resp, err := resolve(rt.Response, r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": err.Error(),
			})
			return
		}
		resp.write(w)
	})
}
