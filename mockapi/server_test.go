package mockapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	Register("server-test-dynamic", func() []Route {
		return []Route{{Path: "/now", Response: Dynamic(func(*http.Request) (Response, error) {
			return Response{Body: []byte(time.Now().Format(time.RFC3339Nano))}, nil
		})}}
	})
}

func TestNewBindsEphemeralPort(t *testing.T) {
	srv, err := New(Config{Routes: []Route{{Path: "/a"}}})
	require.NoError(t, err)
	defer srv.Close()

	require.NotZero(t, srv.Port())
	assert.Equal(t, "http://localhost:"+strconv.Itoa(srv.Port()), srv.BaseURI())

	// The port is already taken by us.
	_, err = net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(srv.Port())))
	assert.Error(t, err)
}

func TestNewRejectsBadConfigs(t *testing.T) {
	dyn := Dynamic(func(*http.Request) (Response, error) { return Response{}, nil })

	_, err := New(Config{Routes: []Route{{Path: "/d", Response: dyn}}})
	assert.ErrorIs(t, err, ErrDynamicRoutes)

	_, err = New(Config{Name: "never-registered"})
	assert.ErrorIs(t, err, ErrUnknownName)

	_, err = New(Config{Name: "server-test-dynamic", Routes: []Route{{Path: "/a"}}})
	assert.Error(t, err)

	_, err = New(Config{Routes: []Route{{Path: "/a"}, {Path: "/a"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate route path")

	_, err = New(Config{Routes: []Route{{Path: "a"}}})
	assert.Error(t, err)

	_, err = New(Config{Routes: []Route{{Path: "/a", Response: Static{Status: 1000}}}})
	assert.Error(t, err)
}

func TestNewWithRegisteredName(t *testing.T) {
	srv, err := New(Config{Name: "server-test-dynamic"})
	require.NoError(t, err)
	defer srv.Close()

	rec := httptestGet(t, srv.Handler(), "/now")
	assert.Equal(t, http.StatusOK, rec.StatusCode)
}

func TestShutdownWhenIdleIsNoop(t *testing.T) {
	srv, err := New(Config{})
	require.NoError(t, err)
	defer srv.Close()

	assert.NoError(t, srv.Shutdown())
	assert.NoError(t, srv.Shutdown())
	assert.False(t, srv.Running())
}

func TestServeInProcess(t *testing.T) {
	srv, err := New(Config{Routes: []Route{{Path: "/hello", Response: Static{Body: []byte("world")}}}})
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	require.Eventually(t, srv.Running, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, srv.Serve(context.Background()), ErrAlreadyStarted)
	assert.ErrorIs(t, srv.Startup(), ErrAlreadyStarted)

	resp, err := http.Get(srv.BaseURI() + "/hello")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "world", string(b))

	cancel()
	require.NoError(t, <-done)
	assert.False(t, srv.Running())

	_, err = http.Get(srv.BaseURI() + "/hello")
	require.Error(t, err)
	assert.True(t, isConnRefused(err), "expected connection refused, got %v", err)
}

func TestRegisterPanics(t *testing.T) {
	assert.Panics(t, func() { Register("", func() []Route { return nil }) })
	assert.Panics(t, func() { Register("nil-builder", nil) })
	assert.Panics(t, func() { Register("server-test-dynamic", func() []Route { return nil }) })
}

func TestAwaitReady(t *testing.T) {
	assert.NoError(t, awaitReady(strings.NewReader("ready\n")))
	assert.ErrorIs(t, awaitReady(strings.NewReader("")), ErrNotReady)
	assert.ErrorIs(t, awaitReady(strings.NewReader("PASS\n")), ErrNotReady)
}

func TestChildConfigShipsNameOnly(t *testing.T) {
	srv, err := New(Config{Name: "server-test-dynamic", MetricsPath: "/m", ShutdownTimeout: 1500 * time.Millisecond})
	require.NoError(t, err)
	defer srv.Close()

	fc := srv.childConfig()
	assert.Equal(t, "server-test-dynamic", fc.Name)
	assert.Empty(t, fc.Routes)
	assert.Equal(t, "/m", fc.Server.MetricsPath)
	assert.Equal(t, 2, fc.Server.ShutdownTimeoutSeconds)
}

func TestPointerSpecsAreNormalized(t *testing.T) {
	srv, err := New(Config{Routes: []Route{
		{Path: "/p", Response: &Static{Status: http.StatusCreated, Body: []byte("hello")}},
		{Path: "/nil", Response: (*Static)(nil)},
	}})
	require.NoError(t, err)
	defer srv.Close()

	fc := srv.childConfig()
	require.Len(t, fc.Routes, 2)
	assert.Equal(t, http.StatusCreated, fc.Routes[0].Response.Status)
	body, err := fc.Routes[0].Response.BodyBytes()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	rec := httptestGet(t, srv.Handler(), "/nil")
	assert.Equal(t, http.StatusOK, rec.StatusCode)

	dyn := Dynamic(func(*http.Request) (Response, error) { return Response{}, nil })
	_, err = New(Config{Routes: []Route{{Path: "/d", Response: &dyn}}})
	assert.ErrorIs(t, err, ErrDynamicRoutes)
}

func TestStartupRefusedInsideChild(t *testing.T) {
	srv, err := New(Config{Routes: []Route{{Path: "/a"}}})
	require.NoError(t, err)
	defer srv.Close()

	t.Setenv(childEnv, "1")
	assert.ErrorIs(t, srv.Startup(), ErrInChild)
	assert.False(t, srv.Running())
	assert.Zero(t, srv.Pid())
}

func TestLoadConfigCarriesTimeouts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	doc := "server:\n  read_header_timeout_seconds: 2\n  shutdown_timeout_seconds: 1\nroutes:\n  - path: /a\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.ReadHeaderTimeout)
	assert.Equal(t, time.Second, cfg.ShutdownTimeout)

	srv, err := New(cfg)
	require.NoError(t, err)
	defer srv.Close()
	fc := srv.childConfig()
	assert.Equal(t, 2, fc.Server.ReadHeaderTimeoutSeconds)
	assert.Equal(t, 1, fc.Server.ShutdownTimeoutSeconds)
}

func TestCloseWhileHandlerIsBuilt(t *testing.T) {
	srv, err := New(Config{Routes: []Route{{Path: "/a", RateLimit: RateLimit{RPS: 1, Burst: 1}}}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = srv.Handler() }()
	go func() { defer wg.Done(); _ = srv.Close() }()
	wg.Wait()
	require.NotNil(t, srv.Handler())
	assert.NoError(t, srv.Close())
}

func httptestGet(t *testing.T, h http.Handler, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://mock"+path, nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
