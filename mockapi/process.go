package mockapi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"testing"

	"github.com/cody-dot-js/mock-api-server/internal/config"
	"github.com/cody-dot-js/mock-api-server/internal/logging"
)

const (
	childEnv   = "MOCKAPI_CHILD"
	readyLine  = "ready"
	listenerFD = 3 // ExtraFiles[0]
	readyFD    = 4 // ExtraFiles[1]
)

// Startup hands the listener to a child process and returns once the child is
// serving. It fails with ErrAlreadyStarted while a child is running and with
// ErrInChild when called from inside a child.
func (s *Server) Startup() error {
	if os.Getenv(childEnv) != "" {
		return ErrInChild
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil || s.serving {
		return ErrAlreadyStarted
	}
	ln, err := s.listenerLocked()
	if err != nil {
		return err
	}

	cmd, err := s.spawn(ln)
	if err != nil {
		return err
	}

	// The child holds its own copy of the socket now. Dropping ours means the
	// port is really released when the child exits.
	_ = ln.Close()
	s.ln = nil
	s.cmd = cmd

	s.log.Info("mockapi started",
		slog.String("base_uri", s.BaseURI()),
		slog.Int("pid", cmd.Process.Pid),
	)
	return nil
}

// Shutdown sends SIGTERM to the child and waits for it to exit. It is a no-op
// when nothing is running.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	// A child that already exited on its own still has to be reaped.
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("mockapi: signal child %d: %w", cmd.Process.Pid, err)
	}
	err := cmd.Wait()
	s.cmd = nil
	if err != nil {
		return fmt.Errorf("mockapi: wait for child %d: %w", cmd.Process.Pid, err)
	}

	s.log.Info("mockapi stopped", slog.String("base_uri", s.BaseURI()))
	return nil
}

// Pid is the process id of the running child, or 0 when none is recorded.
func (s *Server) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *Server) spawn(ln net.Listener) (*exec.Cmd, error) {
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, fmt.Errorf("mockapi: cannot hand off listener of type %T", ln)
	}
	lf, err := tl.File()
	if err != nil {
		return nil, fmt.Errorf("mockapi: listener file: %w", err)
	}
	defer lf.Close()

	readyR, readyW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("mockapi: ready pipe: %w", err)
	}
	defer readyR.Close()

	var payload bytes.Buffer
	if err := config.Encode(&payload, s.childConfig()); err != nil {
		readyW.Close()
		return nil, fmt.Errorf("mockapi: encode routes: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		readyW.Close()
		return nil, fmt.Errorf("mockapi: locate executable: %w", err)
	}

	cmd := exec.Command(exe, childArgs()...)
	cmd.Env = append(os.Environ(), childEnv+"=1")
	cmd.Stdin = &payload
	cmd.Stdout = s.cfg.Output
	cmd.Stderr = s.cfg.Output
	cmd.ExtraFiles = []*os.File{lf, readyW}

	if err := cmd.Start(); err != nil {
		readyW.Close()
		return nil, fmt.Errorf("mockapi: spawn: %w", err)
	}
	readyW.Close()

	if err := awaitReady(readyR); err != nil {
		_ = cmd.Process.Kill()
		werr := cmd.Wait()
		return nil, errors.Join(err, werr)
	}
	return cmd, nil
}

// childConfig is the document streamed to the child on stdin.
func (s *Server) childConfig() *config.Config {
	fc := toFileConfig(s.cfg, s.routes)
	if fc.Name != "" {
		fc.Routes = nil
	}
	return fc
}

// childArgs keeps a test binary that forgot to call Main from running the suite
// again inside the child.
func childArgs() []string {
	if testing.Testing() {
		return []string{"-test.run=^$"}
	}
	return nil
}

func awaitReady(r io.Reader) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mockapi: read ready pipe: %w", err)
	}
	if line != readyLine+"\n" {
		return ErrNotReady
	}
	return nil
}

// Main serves the route table when this process was spawned by Startup and
// exits afterwards. In any other process it returns immediately.
func Main() {
	if os.Getenv(childEnv) == "" {
		return
	}
	os.Exit(runChild(os.Stdin, os.Stderr))
}

func runChild(stdin io.Reader, stderr io.Writer) int {
	boot := logging.NewWithLevel(stderr, "error")

	fc, err := config.Decode(stdin)
	if err != nil {
		boot.Error("mockapi child: decode routes", slog.String("error", err.Error()))
		return 1
	}
	cfg, err := fromFileConfig(fc)
	if err != nil {
		boot.Error("mockapi child: routes", slog.String("error", err.Error()))
		return 1
	}
	cfg.Logger = logging.NewWithLevel(stderr, fc.Server.LogLevel)

	routes, err := resolveRoutes(cfg)
	if err != nil {
		boot.Error("mockapi child: routes", slog.String("error", err.Error()))
		return 1
	}

	lf := os.NewFile(listenerFD, "mockapi-listener")
	ln, err := net.FileListener(lf)
	lf.Close()
	if err != nil {
		boot.Error("mockapi child: inherit listener", slog.String("error", err.Error()))
		return 1
	}

	srv := newServer(cfg, routes, ln)
	srv.Handler()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready := os.NewFile(readyFD, "mockapi-ready")
	_, err = fmt.Fprintln(ready, readyLine)
	ready.Close()
	if err != nil {
		boot.Error("mockapi child: report ready", slog.String("error", err.Error()))
		return 1
	}

	err = srv.Serve(ctx)
	srv.Close()
	if err != nil {
		cfg.Logger.Error("mockapi child: serve", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
