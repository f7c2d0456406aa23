package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is a route table file. The same document is what a parent process
// streams to its serving child.
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Name   string        `yaml:"name,omitempty"` // registered route table, instead of Routes
	Routes []RouteConfig `yaml:"routes,omitempty"`
}

type ServerConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	MetricsPath              string `yaml:"metrics_path,omitempty"`
	LogLevel                 string `yaml:"log_level,omitempty"`
	ReadHeaderTimeoutSeconds int    `yaml:"read_header_timeout_seconds,omitempty"`
	ShutdownTimeoutSeconds   int    `yaml:"shutdown_timeout_seconds,omitempty"`
}

type RouteConfig struct {
	Path      string         `yaml:"path"`
	Response  ResponseConfig `yaml:"response"`
	RateLimit RouteRLConfig  `yaml:"rate_limit,omitempty"`
}

type ResponseConfig struct {
	Status     int     `yaml:"status,omitempty"`
	Headers    Headers `yaml:"headers,omitempty"`
	Body       string  `yaml:"body,omitempty"`
	BodyBase64 string  `yaml:"body_base64,omitempty"`
}

type RouteRLConfig struct {
	RPS   float64 `yaml:"rps,omitempty"`
	Burst int     `yaml:"burst,omitempty"`
}

type Header struct {
	Name  string
	Value string
}

// Headers is a YAML mapping that keeps its keys in document order.
type Headers []Header

func (h *Headers) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: headers must be a mapping", n.Line)
	}
	out := make(Headers, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: header %q must be a scalar", v.Line, k.Value)
		}
		out = append(out, Header{Name: k.Value, Value: v.Value})
	}
	*h = out
	return nil
}

func (h Headers) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, hdr := range h {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: hdr.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: hdr.Value},
		)
	}
	return n, nil
}

// BodyBytes decodes the configured body. body_base64 wins when both are set.
func (r ResponseConfig) BodyBytes() ([]byte, error) {
	if r.BodyBase64 != "" {
		return base64.StdEncoding.DecodeString(r.BodyBase64)
	}
	if r.Body == "" {
		return nil, nil
	}
	return []byte(r.Body), nil
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a YAML route table, applies defaults and validates it.
func Decode(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ReadHeaderTimeoutSeconds == 0 {
		cfg.Server.ReadHeaderTimeoutSeconds = 5
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 5
	}
}

func Validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}
	if mp := cfg.Server.MetricsPath; mp != "" && !strings.HasPrefix(mp, "/") {
		return fmt.Errorf("server.metrics_path must start with '/' if set")
	}
	if cfg.Name != "" && len(cfg.Routes) > 0 {
		return errors.New("name and routes are mutually exclusive")
	}

	seenPaths := map[string]struct{}{}
	for i, r := range cfg.Routes {
		idx := fmt.Sprintf("routes[%d]", i)
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("%s.path must start with '/'", idx)
		}
		key := MountKey(r.Path)
		if _, ok := seenPaths[key]; ok {
			return fmt.Errorf("duplicate route path: %q", r.Path)
		}
		seenPaths[key] = struct{}{}
		if cfg.Server.MetricsPath != "" && key == MountKey(cfg.Server.MetricsPath) {
			return fmt.Errorf("%s.path collides with server.metrics_path", idx)
		}

		st := r.Response.Status
		if st != 0 && (st < 200 || st > 999) {
			return fmt.Errorf("%s.response.status must be a 3-digit final code (200-999)", idx)
		}
		if _, err := r.Response.BodyBytes(); err != nil {
			return fmt.Errorf("%s.response.body_base64 invalid: %v", idx, err)
		}
		for _, h := range r.Response.Headers {
			if strings.TrimSpace(h.Name) == "" {
				return fmt.Errorf("%s.response.headers has an empty name", idx)
			}
		}

		if r.RateLimit.RPS < 0 {
			return fmt.Errorf("%s.rate_limit.rps cannot be negative", idx)
		}
		if r.RateLimit.Burst < 0 {
			return fmt.Errorf("%s.rate_limit.burst cannot be negative", idx)
		}
	}
	return nil
}

// MountKey is the form two paths are compared in: "/a" and "/a/" mount the same subtree.
func MountKey(path string) string {
	if k := strings.TrimRight(path, "/"); k != "" {
		return k
	}
	return "/"
}
