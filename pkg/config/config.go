// Package config loads the command-line configuration file. Library
// packages never read it; they are configured through functional options
// built from a Config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/source"
)

// Config is the decoded configuration file.
type Config struct {
	Definition   string              `yaml:"definition" json:"definition,omitempty"`
	OutputDir    string              `yaml:"output_dir" json:"output_dir,omitempty"`
	ResourcePath string              `yaml:"resource_path" json:"resource_path,omitempty"`
	URLBase      string              `yaml:"url_base" json:"url_base,omitempty"`
	HTMLFilename string              `yaml:"html_filename" json:"html_filename,omitempty"`
	HTMLTitle    string              `yaml:"html_title" json:"html_title,omitempty"`
	LogLevel     string              `yaml:"log_level" json:"log_level,omitempty"`
	Theme        string              `yaml:"theme" json:"theme,omitempty"`
	ThemeVariant string              `yaml:"theme_variant" json:"theme_variant,omitempty"`
	CSS          artifact.CSSOptions `yaml:"css" json:"css"`
	Serve        ServeConfig         `yaml:"serve" json:"serve"`
	Watch        WatchConfig         `yaml:"watch" json:"watch"`
	AllowHTTP    bool                `yaml:"allow_http" json:"allow_http,omitempty"`
	HTTPTimeout  time.Duration       `yaml:"http_timeout" json:"http_timeout,omitempty"`
}

// ServeConfig configures the preview server.
type ServeConfig struct {
	Addr string `yaml:"addr" json:"addr,omitempty"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce collapses bursts of file events into one rebuild.
	Debounce time.Duration `yaml:"debounce" json:"debounce,omitempty"`
}

// Defaults returns the values applied to every unset field.
func Defaults() Config {
	return Config{
		OutputDir:    "_urljsf_output",
		URLBase:      "./",
		HTMLFilename: "index.html",
		HTMLTitle:    "urljsf",
		LogLevel:     "info",
		Theme:        artifact.DefaultTheme,
		Serve:        ServeConfig{Addr: "127.0.0.1:8080"},
		Watch:        WatchConfig{Debounce: 200 * time.Millisecond},
		HTTPTimeout:  10 * time.Second,
	}
}

// Load reads a JSON, YAML or TOML configuration file and fills unset fields
// from Defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	format, err := document.FormatFromPath(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(format, path, data)
}

// Parse decodes configuration data in the given format.
func Parse(format document.Format, name string, data []byte) (Config, error) {
	var cfg Config
	if len(bytes.TrimSpace(data)) > 0 {
		value, err := document.Decode(format, name, data)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if value != nil {
			if _, ok := value.(*document.Object); !ok {
				return Config{}, fmt.Errorf("config: %s: %w", name, document.ErrNotObject)
			}
			// Every format funnels through YAML so the struct tags are the
			// only mapping there is.
			raw, err := document.EncodeYAML(value, document.YAMLOptions{})
			if err != nil {
				return Config{}, fmt.Errorf("config: %w", err)
			}
			dec := yaml.NewDecoder(bytes.NewReader(raw))
			dec.KnownFields(true)
			if err := dec.Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("config: %s: %w", name, err)
			}
		}
	}
	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return Config{}, fmt.Errorf("config: apply defaults: %w", err)
	}
	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Override copies every non-zero field of flags over cfg.
func (c *Config) Override(flags Config) error {
	if err := mergo.Merge(c, flags, mergo.WithOverride); err != nil {
		return fmt.Errorf("config: apply overrides: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log_level %q", c.LogLevel)
}

// LoaderOptions returns the source loader options implied by the config.
func (c Config) LoaderOptions() []source.LoaderOption {
	if !c.AllowHTTP {
		return nil
	}
	return []source.LoaderOption{source.WithHTTPFallback(c.HTTPTimeout)}
}

// Hooks builds the static site hooks for this config.
func (c Config) Hooks(logger *slog.Logger) artifact.Hooks {
	return artifact.Hooks{
		CSS:          c.CSS,
		Theme:        c.Theme,
		ThemeVariant: c.ThemeVariant,
		Logger:       logger,
	}
}
