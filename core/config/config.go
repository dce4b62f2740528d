// Package config loads the agentver configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is named and it exists.
const DefaultPath = ".agentver/config.yaml"

// Environment variables that override the file.
const (
	EnvStoreBackend = "AGENTVER_STORE_BACKEND"
	EnvStorePath    = "AGENTVER_STORE_PATH"
	EnvWorkspace    = "AGENTVER_WORKSPACE"
	EnvLogLevel     = "AGENTVER_LOG_LEVEL"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the full agentver configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" json:"store"`
	Workspace WorkspaceConfig `yaml:"workspace" json:"workspace"`
	VCS       VCSConfig       `yaml:"vcs" json:"vcs"`
	Impact    ImpactConfig    `yaml:"impact" json:"impact"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend" validate:"oneof=file badger sqlite memory"`
	Path    string `yaml:"path" json:"path" validate:"required_unless=Backend memory"`
}

type WorkspaceConfig struct {
	Root string `yaml:"root" json:"root" validate:"required"`
}

// VCSConfig enables git commits and tags for new versions.
type VCSConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Dir         string `yaml:"dir" json:"dir" validate:"required_if=Enabled true"`
	AuthorName  string `yaml:"author_name" json:"author_name"`
	AuthorEmail string `yaml:"author_email" json:"author_email" validate:"omitempty,email"`
}

// ImpactConfig holds the risk thresholds of impact analysis.
type ImpactConfig struct {
	LowMax    int `yaml:"low_max" json:"low_max" validate:"gte=0"`
	MediumMax int `yaml:"medium_max" json:"medium_max" validate:"gtefield=LowMax"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
}

// MetricsConfig names the node_exporter textfile that receives metrics
// after each command. Empty disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" json:"textfile"`
}

// Default returns the configuration used for anything the file omits.
func Default() *Config {
	return &Config{
		Store:     StoreConfig{Backend: BackendFile, Path: ".agentver/store"},
		Workspace: WorkspaceConfig{Root: "agents"},
		VCS:       VCSConfig{Dir: "."},
		Impact:    ImpactConfig{LowMax: 2, MediumMax: 5},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

var validate = validator.New()

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path falls back to DefaultPath when that
// file exists, and to the defaults alone otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode expands ${VAR} references and rejects unknown keys.
func decode(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStoreBackend); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvWorkspace); v != "" {
		c.Workspace.Root = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel converts the configured level name.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the handler selected by Format writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
