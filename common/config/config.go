// Package config provides centralized configuration for the vigil library,
// collector service and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vigil-systems/vigil/filter"
	"github.com/vigil-systems/vigil/storage"
)

// Config is the master configuration struct.
type Config struct {
	Vigil     VigilConfig     `mapstructure:"vigil"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// VigilConfig holds the audit pipeline configuration.
type VigilConfig struct {
	Enabled      bool               `mapstructure:"enabled"`
	Application  string             `mapstructure:"application"`
	Environment  string             `mapstructure:"environment"`
	SigningKey   string             `mapstructure:"signing_key"`
	Sanitization SanitizationConfig `mapstructure:"sanitization"`
	Filters      []filter.Spec      `mapstructure:"filters"`
	Storage      StorageConfig      `mapstructure:"storage"`
}

// SanitizationConfig holds PII redaction settings.
type SanitizationConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	FailOnError bool `mapstructure:"fail_on_error"`
	MaxDepth    int  `mapstructure:"max_depth"`
}

// StorageConfig holds the configured backend list.
type StorageConfig struct {
	Backends []storage.Spec `mapstructure:"backends"`
}

// ServerConfig holds collector HTTP server configuration. CORSOrigins is
// empty by default: browser clients are opt-in.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// AuthConfig holds collector API-key authentication settings. Keys are the
// plaintext API keys; the collector hashes them at startup and compares
// hashes at request time.
type AuthConfig struct {
	Disabled bool     `mapstructure:"disabled"`
	APIKeys  []string `mapstructure:"api_keys"`
}

// RateLimitConfig holds sliding-window rate limiting settings.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// RedisConfig holds Redis connection settings for the rate limiter.
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from $VIGIL_CONFIG_DIR/config.yaml (default
// /etc/vigil) with environment variable overrides. String values may carry
// ${VAR} references resolved from the environment; an unset variable is a
// configuration error, never silently empty.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configDir := os.Getenv("VIGIL_CONFIG_DIR")
	if configDir == "" {
		configDir = "/etc/vigil"
	}

	v.SetConfigFile(filepath.Join(configDir, "config.yaml"))
	v.SetConfigType("yaml")

	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// missing file is fine, defaults and env vars still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := interpolateEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnv resolves ${VAR} references in every string setting,
// including strings nested inside lists of maps such as the storage backend
// specs, where DSNs and URLs carry credentials.
func interpolateEnv(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		value := v.Get(key)
		resolved, changed, err := interpolateValue(value)
		if err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
		if changed {
			v.Set(key, resolved)
		}
	}
	return nil
}

// interpolateValue walks an arbitrary config value, resolving ${VAR}
// references in every string it contains.
func interpolateValue(value any) (any, bool, error) {
	switch v := value.(type) {
	case string:
		resolved, err := Interpolate(v)
		if err != nil {
			return nil, false, err
		}
		return resolved, resolved != v, nil
	case []any:
		changed := false
		out := make([]any, len(v))
		for i, item := range v {
			resolved, c, err := interpolateValue(item)
			if err != nil {
				return nil, false, err
			}
			out[i] = resolved
			changed = changed || c
		}
		return out, changed, nil
	case map[string]any:
		changed := false
		out := make(map[string]any, len(v))
		for key, item := range v {
			resolved, c, err := interpolateValue(item)
			if err != nil {
				return nil, false, err
			}
			out[key] = resolved
			changed = changed || c
		}
		return out, changed, nil
	default:
		return value, false, nil
	}
}

// Interpolate substitutes ${VAR} references in s with environment values.
// Referencing an unset variable returns an error.
func Interpolate(s string) (string, error) {
	var missing []string
	resolved := envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRefPattern.FindStringSubmatch(ref)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return ref
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s is not set", strings.Join(missing, ", "))
	}
	return resolved, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vigil.enabled", true)
	v.SetDefault("vigil.application", "audit")
	v.SetDefault("vigil.environment", "")
	v.SetDefault("vigil.signing_key", "")
	v.SetDefault("vigil.sanitization.enabled", true)
	v.SetDefault("vigil.sanitization.fail_on_error", true)
	v.SetDefault("vigil.sanitization.max_depth", 100)

	v.SetDefault("server.port", 8200)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("auth.disabled", false)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests", 1000)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// CLIConfig holds CLI tool configuration (profiles for collector endpoints
// and API keys), persisted under ~/.vigil/config.yaml.
type CLIConfig struct {
	CurrentProfile string                 `yaml:"current_profile"`
	Profiles       map[string]*CLIProfile `yaml:"profiles"`
	path           string
}

// CLIProfile holds one named collector endpoint and its API key.
type CLIProfile struct {
	CollectorURL string `yaml:"collector_url"`
	APIKey       string `yaml:"api_key"`
}

// DefaultCLI returns a CLIConfig with a default local profile.
func DefaultCLI() *CLIConfig {
	return &CLIConfig{
		CurrentProfile: "default",
		Profiles: map[string]*CLIProfile{
			"default": {CollectorURL: "http://localhost:8200"},
		},
	}
}

// LoadCLI reads the CLI config from disk, returning defaults when the file
// does not exist yet.
func LoadCLI() (*CLIConfig, error) {
	path, err := cliConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultCLI()
			cfg.path = path
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read CLI config: %w", err)
	}

	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse CLI config: %w", err)
	}
	cfg.path = path
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*CLIProfile)
	}
	return &cfg, nil
}

// Save writes the CLI config to disk with owner-only permissions; profiles
// carry API keys.
func (c *CLIConfig) Save() error {
	if c.path == "" {
		path, err := cliConfigPath()
		if err != nil {
			return err
		}
		c.path = path
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}

// SaveProfile stores a profile and makes it current.
func (c *CLIConfig) SaveProfile(name, collectorURL, apiKey string) error {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*CLIProfile)
	}
	c.Profiles[name] = &CLIProfile{CollectorURL: collectorURL, APIKey: apiKey}
	c.CurrentProfile = name
	return c.Save()
}

// GetProfile returns a profile by name, or the current profile when name is
// empty.
func (c *CLIConfig) GetProfile(name string) (*CLIProfile, error) {
	if name == "" {
		name = c.CurrentProfile
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not found", name)
	}
	return profile, nil
}

// RemoveProfile deletes a profile.
func (c *CLIConfig) RemoveProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	delete(c.Profiles, name)
	if c.CurrentProfile == name {
		c.CurrentProfile = ""
	}
	return c.Save()
}

func cliConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vigil", "config.yaml"), nil
}
