// Package mockapi serves canned or computed HTTP responses on configured paths
// so tests can stub the external APIs their code talks to.
//
// A Server binds its port in New, then Startup hands the socket to a child
// process running the same executable, leaving the test process free to make
// requests. Shutdown stops and reaps the child. Programs that call Startup must
// call Main first thing in TestMain (or main):
//
//	func TestMain(m *testing.M) {
//		mockapi.Main()
//		os.Exit(m.Run())
//	}
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/cody-dot-js/mock-api-server/internal/config"
	"github.com/cody-dot-js/mock-api-server/internal/logging"
)

const (
	defaultShutdownTimeout   = 5 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
)

type Config struct {
	// Name selects a route table passed to Register. Mutually exclusive with Routes.
	Name string
	// Routes must be Static; Dynamic specs need Name.
	Routes []Route

	// Host to bind; empty binds all interfaces. Port 0 picks an ephemeral port.
	Host string
	Port int

	// MetricsPath, when set, serves Prometheus metrics for the mocked routes.
	MetricsPath string

	// LogLevel of the serving process's access log.
	LogLevel string
	// Logger receives lifecycle events in this process and access logs for Serve.
	Logger *slog.Logger
	// Output receives the child's stdout and stderr. Nil discards them.
	Output io.Writer

	// ReadHeaderTimeout of the serving http.Server; defaults to 5s.
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type Server struct {
	cfg    Config
	routes []Route
	port   int
	log    *slog.Logger

	appOnce sync.Once

	mu      sync.Mutex
	app     *app
	ln      net.Listener
	cmd     *exec.Cmd
	serving bool
}

// New validates cfg and binds the listener, so BaseURI is final once New returns.
func New(cfg Config) (*Server, error) {
	routes, err := resolveRoutes(cfg)
	if err != nil {
		return nil, err
	}

	check := toFileConfig(cfg, routes)
	check.Name = ""
	if err := config.Validate(check); err != nil {
		return nil, fmt.Errorf("mockapi: %w", err)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("mockapi: listen: %w", err)
	}
	return newServer(cfg, routes, ln), nil
}

func newServer(cfg Config, routes []Route, ln net.Listener) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	return &Server{
		cfg:    cfg,
		routes: routes,
		port:   ln.Addr().(*net.TCPAddr).Port,
		log:    cfg.Logger,
		ln:     ln,
	}
}

func resolveRoutes(cfg Config) ([]Route, error) {
	if cfg.Name != "" {
		if len(cfg.Routes) > 0 {
			return nil, errors.New("mockapi: Config.Name and Config.Routes are mutually exclusive")
		}
		build, ok := lookup(cfg.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownName, cfg.Name)
		}
		return normalizeRoutes(build()), nil
	}
	routes := normalizeRoutes(cfg.Routes)
	for _, rt := range routes {
		if isDynamic(rt.Response) {
			return nil, fmt.Errorf("%w: %s", ErrDynamicRoutes, rt.Path)
		}
	}
	return routes, nil
}

func normalizeRoutes(in []Route) []Route {
	out := make([]Route, len(in))
	for i, rt := range in {
		rt.Response = normalize(rt.Response)
		out[i] = rt
	}
	return out
}

// BaseURI is the URL the server answers on, e.g. "http://localhost:49152".
func (s *Server) BaseURI() string {
	return "http://localhost:" + strconv.Itoa(s.port)
}

func (s *Server) Port() int { return s.port }

// Running reports whether a child process or Serve currently owns the port.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil || s.serving
}

// Handler returns the route table as an http.Handler for in-process use,
// for example behind httptest.NewServer.
func (s *Server) Handler() http.Handler {
	s.appOnce.Do(func() {
		a := newApp(s.routes, s.cfg.MetricsPath, s.log)
		s.mu.Lock()
		s.app = a
		s.mu.Unlock()
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

// Serve runs the accept loop in the calling goroutine until ctx is done, then
// shuts down gracefully. It fails with ErrAlreadyStarted while a child is running.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd != nil || s.serving {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ln, err := s.listenerLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	// http.Server closes ln on shutdown; the next start binds again.
	s.ln = nil
	s.serving = true
	s.mu.Unlock()
	defer s.markStopped()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("mockapi serving", slog.String("addr", ln.Addr().String()), slog.Int("routes", len(s.routes)))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("mockapi shutdown complete")
	return nil
}

func (s *Server) markStopped() {
	s.mu.Lock()
	s.serving = false
	s.mu.Unlock()
}

// listenerLocked returns the bound listener, binding the known port again if an
// earlier run released it.
func (s *Server) listenerLocked() (net.Listener, error) {
	if s.ln != nil {
		return s.ln, nil
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.port)))
	if err != nil {
		return nil, fmt.Errorf("mockapi: listen: %w", err)
	}
	s.ln = ln
	return ln, nil
}

// Close stops a running child and releases the port and any in-process resources.
func (s *Server) Close() error {
	err := s.Shutdown()

	s.mu.Lock()
	if s.ln != nil {
		if cerr := s.ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.ln = nil
	}
	a := s.app
	s.mu.Unlock()

	if a != nil {
		a.close()
	}
	return err
}
