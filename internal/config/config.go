// Package config loads switchboard configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (SWITCHBOARD_BACKEND_BASE_URL, ...)
//  2. Config file (--config, $SWITCHBOARD_CONFIG, or ~/.config/switchboard/config.yaml)
//  3. Built-in defaults
//
// String values of the form "$VAR" are replaced with the variable's value
// for secrets and endpoints.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SWITCHBOARD"

// Config holds all switchboard configuration.
type Config struct {
	Name     string         `mapstructure:"name" yaml:"name"`
	HTTPAddr string         `mapstructure:"http_addr" yaml:"http_addr"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Backend  BackendConfig  `mapstructure:"backend" yaml:"backend"`
	Models   ModelsConfig   `mapstructure:"models" yaml:"models"`
	Keywords KeywordsConfig `mapstructure:"keywords" yaml:"keywords"`
	System   SystemConfig   `mapstructure:"system" yaml:"system"`
	Projects ProjectsConfig `mapstructure:"projects" yaml:"projects"`
	Matrix   MatrixConfig   `mapstructure:"matrix" yaml:"matrix"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
}

// BackendConfig selects and configures the completion backend.
type BackendConfig struct {
	Provider       string        `mapstructure:"provider" yaml:"provider"` // ollama, anthropic
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"` // anthropic only; "$VAR" allowed
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`
}

// ModelsConfig names the model used for each kind of request.
type ModelsConfig struct {
	Default   string            `mapstructure:"default" yaml:"default"`
	Code      string            `mapstructure:"code" yaml:"code"`
	Debug     string            `mapstructure:"debug" yaml:"debug"`
	Review    string            `mapstructure:"review" yaml:"review"`
	Languages map[string]string `mapstructure:"languages" yaml:"languages"`
}

// KeywordsConfig overrides handler vocabularies. Empty lists keep the
// built-in defaults.
type KeywordsConfig struct {
	Code    []string `mapstructure:"code" yaml:"code,omitempty"`
	System  []string `mapstructure:"system" yaml:"system,omitempty"`
	Project []string `mapstructure:"project" yaml:"project,omitempty"`
}

// SystemConfig is the hardware profile shown in system reports.
type SystemConfig struct {
	Host string `mapstructure:"host" yaml:"host,omitempty"`
	GPU  string `mapstructure:"gpu" yaml:"gpu"`
	VRAM string `mapstructure:"vram" yaml:"vram"`
	RAM  string `mapstructure:"ram" yaml:"ram"`
}

// ProjectsConfig configures the project registry.
type ProjectsConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"` // sqlite, postgres, none
	Path        string `mapstructure:"path" yaml:"path"`     // sqlite database file
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url,omitempty"`
	Root        string `mapstructure:"root" yaml:"root"` // directory projects live under
	RecentLimit int    `mapstructure:"recent_limit" yaml:"recent_limit"`
}

// MatrixConfig holds Matrix connection settings.
type MatrixConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Homeserver   string   `mapstructure:"homeserver" yaml:"homeserver,omitempty"` // e.g., http://synapse:8008
	UserID       string   `mapstructure:"user_id" yaml:"user_id,omitempty"`       // e.g., @bot:matrix.example.com
	Password     string   `mapstructure:"password" yaml:"-"`
	ServerName   string   `mapstructure:"server_name" yaml:"server_name,omitempty"`
	AllowedUsers []string `mapstructure:"allowed_users" yaml:"allowed_users,omitempty"`
	DataDir      string   `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
}

// Load reads configuration from path, or from $SWITCHBOARD_CONFIG, or from
// the user config directory. A missing user config file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(UserConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading user config: %w", err)
			}
		}
	}

	return decode(v)
}

// Default returns the built-in configuration with environment overrides
// applied and no config file.
func Default() (*Config, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Backend.BaseURL = resolveEnv(cfg.Backend.BaseURL)
	cfg.Backend.APIKey = resolveEnv(cfg.Backend.APIKey)
	cfg.Projects.PostgresURL = resolveEnv(cfg.Projects.PostgresURL)
	cfg.Matrix.Homeserver = resolveEnv(cfg.Matrix.Homeserver)
	cfg.Matrix.UserID = resolveEnv(cfg.Matrix.UserID)
	cfg.Matrix.Password = resolveEnv(cfg.Matrix.Password)
	cfg.Matrix.ServerName = resolveEnv(cfg.Matrix.ServerName)
	cfg.Projects.Path = expandHome(cfg.Projects.Path)
	cfg.Projects.Root = expandHome(cfg.Projects.Root)
	cfg.Matrix.DataDir = expandHome(cfg.Matrix.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "switchboard")
	v.SetDefault("http_addr", "127.0.0.1:8787")
	v.SetDefault("log.level", "info")

	v.SetDefault("backend.provider", "ollama")
	v.SetDefault("backend.base_url", "http://localhost:11434")
	v.SetDefault("backend.api_key", "$ANTHROPIC_API_KEY")
	v.SetDefault("backend.request_timeout", "2m")
	v.SetDefault("backend.probe_interval", "30s")

	v.SetDefault("models.default", "llama3.2")
	v.SetDefault("models.code", "codellama:7b")
	v.SetDefault("models.debug", "codellama:7b")
	v.SetDefault("models.review", "deepseek-coder:6.7b")
	v.SetDefault("models.languages", map[string]string{
		"python": "codellama:7b",
		"csharp": "deepseek-coder:6.7b",
	})

	v.SetDefault("keywords.code", []string{})
	v.SetDefault("keywords.system", []string{})
	v.SetDefault("keywords.project", []string{})

	v.SetDefault("system.host", "")
	v.SetDefault("system.gpu", "unknown")
	v.SetDefault("system.vram", "")
	v.SetDefault("system.ram", "")

	v.SetDefault("projects.driver", "sqlite")
	v.SetDefault("projects.path", filepath.Join(UserConfigDir(), "projects.db"))
	v.SetDefault("projects.postgres_url", "")
	v.SetDefault("projects.root", "~/AI-Projects")
	v.SetDefault("projects.recent_limit", 5)

	v.SetDefault("matrix.enabled", false)
	v.SetDefault("matrix.homeserver", "$MATRIX_HOMESERVER")
	v.SetDefault("matrix.user_id", "$MATRIX_USER_ID")
	v.SetDefault("matrix.password", "$MATRIX_PASSWORD")
	v.SetDefault("matrix.server_name", "")
	v.SetDefault("matrix.allowed_users", []string{})
	v.SetDefault("matrix.data_dir", filepath.Join(UserConfigDir(), "matrix"))
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Backend.Provider {
	case "ollama":
	case "anthropic":
		if unset(c.Backend.APIKey) {
			return fmt.Errorf("backend.api_key is required for the anthropic provider")
		}
	default:
		return fmt.Errorf("unknown backend.provider %q (want ollama or anthropic)", c.Backend.Provider)
	}
	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("backend.request_timeout must be positive")
	}

	switch c.Projects.Driver {
	case "sqlite":
		if c.Projects.Path == "" {
			return fmt.Errorf("projects.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Projects.PostgresURL == "" {
			return fmt.Errorf("projects.postgres_url is required for the postgres driver")
		}
	case "none":
	default:
		return fmt.Errorf("unknown projects.driver %q (want sqlite, postgres or none)", c.Projects.Driver)
	}

	if c.Matrix.Enabled && (unset(c.Matrix.Homeserver) || unset(c.Matrix.UserID) || unset(c.Matrix.Password)) {
		return fmt.Errorf("matrix.homeserver, matrix.user_id and matrix.password are required when matrix is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}

// UserConfigDir returns the XDG config directory for switchboard.
func UserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "switchboard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "switchboard")
	}
	return filepath.Join(home, ".config", "switchboard")
}

// resolveEnv replaces a $ENV_VAR reference with its value. An unset
// variable leaves the reference unchanged.
func resolveEnv(s string) string {
	if len(s) > 1 && s[0] == '$' {
		if v := os.Getenv(s[1:]); v != "" {
			return v
		}
	}
	return s
}

// unset reports whether s is empty or an unresolved $VAR reference.
func unset(s string) bool {
	return s == "" || s[0] == '$'
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
