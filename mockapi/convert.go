package mockapi

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cody-dot-js/mock-api-server/internal/config"
)

// LoadConfig reads a YAML route table file into a Config. Only static
// responses can be described in a file.
func LoadConfig(path string) (Config, error) {
	fc, err := config.Load(path)
	if err != nil {
		return Config{}, err
	}
	return fromFileConfig(fc)
}

func fromFileConfig(fc *config.Config) (Config, error) {
	cfg := Config{
		Name:        fc.Name,
		Host:        fc.Server.Host,
		Port:        fc.Server.Port,
		MetricsPath: fc.Server.MetricsPath,
		LogLevel:    fc.Server.LogLevel,

		ReadHeaderTimeout: time.Duration(fc.Server.ReadHeaderTimeoutSeconds) * time.Second,
		ShutdownTimeout:   time.Duration(fc.Server.ShutdownTimeoutSeconds) * time.Second,
	}
	for i, rc := range fc.Routes {
		body, err := rc.Response.BodyBytes()
		if err != nil {
			return Config{}, fmt.Errorf("routes[%d]: %w", i, err)
		}
		var headers []Header
		for _, h := range rc.Response.Headers {
			headers = append(headers, Header{Name: h.Name, Value: h.Value})
		}
		cfg.Routes = append(cfg.Routes, Route{
			Path: rc.Path,
			Response: Static{
				Status:  rc.Response.Status,
				Headers: headers,
				Body:    body,
			},
			RateLimit: RateLimit{RPS: rc.RateLimit.RPS, Burst: rc.RateLimit.Burst},
		})
	}
	return cfg, nil
}

// toFileConfig describes cfg in the file format. Dynamic specs keep only their
// path and rate limit, which is enough for validation but not for shipping.
func toFileConfig(cfg Config, routes []Route) *config.Config {
	fc := &config.Config{
		Name: cfg.Name,
		Server: config.ServerConfig{
			Host:        cfg.Host,
			Port:        cfg.Port,
			MetricsPath: cfg.MetricsPath,
			LogLevel:    cfg.LogLevel,

			ReadHeaderTimeoutSeconds: ceilSeconds(cfg.ReadHeaderTimeout),
			ShutdownTimeoutSeconds:   ceilSeconds(cfg.ShutdownTimeout),
		},
	}
	for _, rt := range routes {
		rc := config.RouteConfig{
			Path:      rt.Path,
			RateLimit: config.RouteRLConfig{RPS: rt.RateLimit.RPS, Burst: rt.RateLimit.Burst},
		}
		if s, ok := rt.Response.(Static); ok {
			rc.Response.Status = s.Status
			for _, h := range s.Headers {
				rc.Response.Headers = append(rc.Response.Headers, config.Header{Name: h.Name, Value: h.Value})
			}
			if len(s.Body) > 0 {
				rc.Response.BodyBase64 = base64.StdEncoding.EncodeToString(s.Body)
			}
		}
		fc.Routes = append(fc.Routes, rc)
	}
	return fc
}

// ceilSeconds rounds d up so a sub-second timeout does not become "unset".
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
