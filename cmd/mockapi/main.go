package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/cody-dot-js/mock-api-server/internal/logging"
	"github.com/cody-dot-js/mock-api-server/mockapi"
)

// settings come from flags, then MOCKAPI_* env vars, then defaults. A negative
// port keeps the one from the route file.
type settings struct {
	ConfigPath   string
	Host         string
	Port         int
	LogLevel     string
	MetricsPath  string
	ValidateOnly bool
}

func loadSettings(args []string) (settings, error) {
	v := viper.New()
	v.SetEnvPrefix("mockapi")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("config", "./config/routes.example.yaml")
	v.SetDefault("host", "")
	v.SetDefault("port", -1)
	v.SetDefault("log_level", "")
	v.SetDefault("metrics_path", "")

	var s settings
	fs := flag.NewFlagSet("mockapi", flag.ContinueOnError)
	fs.StringVar(&s.ConfigPath, "config", v.GetString("config"), "path to yaml route table")
	fs.StringVar(&s.Host, "host", v.GetString("host"), "bind host (overrides server.host)")
	fs.IntVar(&s.Port, "port", v.GetInt("port"), "listen port, 0 for ephemeral (overrides server.port)")
	fs.StringVar(&s.LogLevel, "log-level", v.GetString("log_level"), "debug|info|warn|error (overrides server.log_level)")
	fs.StringVar(&s.MetricsPath, "metrics-path", v.GetString("metrics_path"), "serve prometheus metrics here (overrides server.metrics_path)")
	fs.BoolVar(&s.ValidateOnly, "validate-config", false, "validate config and exit")
	if err := fs.Parse(args); err != nil {
		return settings{}, err
	}
	return s, nil
}

func (s settings) apply(cfg *mockapi.Config) {
	if s.Host != "" {
		cfg.Host = s.Host
	}
	if s.Port >= 0 {
		cfg.Port = s.Port
	}
	if s.LogLevel != "" {
		cfg.LogLevel = s.LogLevel
	}
	if s.MetricsPath != "" {
		cfg.MetricsPath = s.MetricsPath
	}
}

func main() {
	s, err := loadSettings(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log := logging.New()

	cfg, err := mockapi.LoadConfig(s.ConfigPath)
	if err != nil {
		log.Error("failed to load config", slog.String("path", s.ConfigPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	s.apply(&cfg)

	if s.ValidateOnly {
		log.Info("config ok", slog.Int("routes", len(cfg.Routes)))
		return
	}

	log = logging.NewWithLevel(os.Stdout, cfg.LogLevel)
	cfg.Logger = log

	srv, err := mockapi.New(cfg)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("mockapi listening", slog.String("base_uri", srv.BaseURI()))
	if err := srv.Serve(ctx); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
