// Package config reads and writes ~/.atlvs/config.json.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

type GlobalConfig struct {
	Workspace string `json:"workspace,omitempty"`
	Actor     string `json:"actor,omitempty"`

	// Backend is "sqlite" (default) or "postgres".
	Backend     string `json:"backend,omitempty"`
	DBPath      string `json:"dbPath,omitempty"`
	PostgresURI string `json:"postgresURI,omitempty"`

	// RegistryPath points at a YAML registry replacing the built-in one.
	RegistryPath string `json:"registryPath,omitempty"`

	Listen    string `json:"listen,omitempty"`
	JWTSecret string `json:"jwtSecret,omitempty"`

	LogLevel  string `json:"logLevel,omitempty"`
	LogFormat string `json:"logFormat,omitempty"`
}

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	DefaultListen = "127.0.0.1:8080"
)

func Dir() (string, error) {
	// Keeps tests away from ~/.atlvs.
	if v := strings.TrimSpace(os.Getenv("ATLVS_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".atlvs"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file. A missing file is an empty config.
func Load() (*GlobalConfig, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &GlobalConfig{}, nil
		}
		return nil, err
	}
	var cfg GlobalConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save replaces the config file atomically; concurrent writers never leave a
// torn file behind.
func Save(cfg *GlobalConfig) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(append(b, '\n'))); err != nil {
		return err
	}
	// jwtSecret lives here.
	return os.Chmod(path, 0o600)
}

type field struct {
	env string
	ptr func(*GlobalConfig) *string
}

var fields = map[string]field{
	"workspace":    {"ATLVS_WORKSPACE", func(c *GlobalConfig) *string { return &c.Workspace }},
	"actor":        {"ATLVS_ACTOR", func(c *GlobalConfig) *string { return &c.Actor }},
	"backend":      {"ATLVS_BACKEND", func(c *GlobalConfig) *string { return &c.Backend }},
	"dbPath":       {"ATLVS_DB", func(c *GlobalConfig) *string { return &c.DBPath }},
	"postgresURI":  {"ATLVS_POSTGRES_URI", func(c *GlobalConfig) *string { return &c.PostgresURI }},
	"registryPath": {"ATLVS_REGISTRY", func(c *GlobalConfig) *string { return &c.RegistryPath }},
	"listen":       {"ATLVS_LISTEN", func(c *GlobalConfig) *string { return &c.Listen }},
	"jwtSecret":    {"ATLVS_JWT_SECRET", func(c *GlobalConfig) *string { return &c.JWTSecret }},
	"logLevel":     {"ATLVS_LOG_LEVEL", func(c *GlobalConfig) *string { return &c.LogLevel }},
	"logFormat":    {"ATLVS_LOG_FORMAT", func(c *GlobalConfig) *string { return &c.LogFormat }},
}

// Keys lists the settable keys.
func Keys() []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return fields[key].env
}

// Set assigns one key. An empty value clears it.
func (c *GlobalConfig) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (want one of %s)", key, strings.Join(Keys(), ", "))
	}
	value = strings.TrimSpace(value)
	if key == "backend" && value != "" && value != BackendSQLite && value != BackendPostgres {
		return fmt.Errorf("backend must be %q or %q", BackendSQLite, BackendPostgres)
	}
	*f.ptr(c) = value
	return nil
}

// Get returns one key's value.
func (c *GlobalConfig) Get(key string) (string, bool) {
	f, ok := fields[key]
	if !ok {
		return "", false
	}
	return *f.ptr(c), true
}

// WithEnv returns a copy with ATLVS_* overrides applied and defaults filled in.
func (c *GlobalConfig) WithEnv() (*GlobalConfig, error) {
	out := *c
	for _, f := range fields {
		if v := strings.TrimSpace(os.Getenv(f.env)); v != "" {
			*f.ptr(&out) = v
		}
	}
	if out.Backend == "" {
		out.Backend = BackendSQLite
	}
	if out.Listen == "" {
		out.Listen = DefaultListen
	}
	if out.DBPath == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		out.DBPath = filepath.Join(dir, "atlvs.db")
	}
	return &out, nil
}

// Redacted hides secrets for display.
func (c GlobalConfig) Redacted() GlobalConfig {
	if c.JWTSecret != "" {
		c.JWTSecret = "********"
	}
	if c.PostgresURI != "" {
		c.PostgresURI = redactURI(c.PostgresURI)
	}
	return c
}

func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return uri
	}
	if user, _, hasPass := strings.Cut(creds, ":"); hasPass {
		return scheme + "://" + user + ":********@" + host
	}
	return uri
}
