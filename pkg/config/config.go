package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/user/cisaudit/pkg/engine"
)

// EnvPrefix prefixes environment overrides, e.g. CISAUDIT_CONCURRENCY.
const EnvPrefix = "CISAUDIT"

type ProviderConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type Config struct {
	// Catalog is a YAML file or directory; empty selects the embedded catalog.
	Catalog        string `mapstructure:"catalog" yaml:"catalog,omitempty"`
	RemediationDir string `mapstructure:"remediation_dir" yaml:"remediation_dir,omitempty"`

	Concurrency      int           `mapstructure:"concurrency" yaml:"concurrency"`
	ShellTimeout     time.Duration `mapstructure:"shell_timeout" yaml:"shell_timeout"`
	DockerBinary     string        `mapstructure:"docker_binary" yaml:"docker_binary"`
	RequireInstances []string      `mapstructure:"require_instances" yaml:"require_instances,omitempty"`

	HistoryDB string       `mapstructure:"history_db" yaml:"history_db,omitempty"`
	LogLevel  string       `mapstructure:"log_level" yaml:"log_level"`
	Server    ServerConfig `mapstructure:"server" yaml:"server"`

	SelectedProvider string                    `mapstructure:"selected_provider" yaml:"selected_provider"`
	SelectedModel    string                    `mapstructure:"selected_model" yaml:"selected_model"`
	Providers        map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// GetConfigDir returns ~/.cisaudit, creating it if needed.
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".cisaudit")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", err
	}
	return configDir, nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog", "")
	v.SetDefault("remediation_dir", "")
	v.SetDefault("concurrency", engine.DefaultConcurrency)
	v.SetDefault("shell_timeout", "30s")
	v.SetDefault("docker_binary", "docker")
	v.SetDefault("require_instances", []string{})
	v.SetDefault("history_db", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("selected_provider", "gemini")
	v.SetDefault("selected_model", "gemini-1.5-flash")
}

// LoadConfig reads the config file at path, or the default path when empty,
// layered over defaults and CISAUDIT_* environment variables. A missing
// default file is not an error; a missing explicit file is.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.HistoryDB == "" {
		dir := filepath.Dir(path)
		cfg.HistoryDB = filepath.Join(dir, "history.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and query kind names.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.ShellTimeout <= 0 {
		return fmt.Errorf("shell_timeout must be positive, got %s", c.ShellTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	_, err := c.RequiredKinds()
	return err
}

// RequiredKinds converts require_instances into engine options.
func (c *Config) RequiredKinds() (map[engine.QueryKind]bool, error) {
	out := make(map[engine.QueryKind]bool, len(c.RequireInstances))
	for _, name := range c.RequireInstances {
		kind := engine.QueryKind(name)
		known := false
		for _, k := range engine.QueryKinds {
			if k == kind {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("require_instances: unknown query kind %q", name)
		}
		out[kind] = true
	}
	return out, nil
}

// SaveConfig writes cfg to path, or the default path when empty.
func SaveConfig(path string, cfg *Config) error {
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// 0600: the file holds api keys
	return os.WriteFile(path, data, 0600)
}

func (c *Config) SetAPIKey(provider, key string) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	p := c.Providers[provider]
	p.APIKey = key
	c.Providers[provider] = p
}

func (c *Config) GetAPIKey(provider string) string {
	return c.Providers[provider].APIKey
}
