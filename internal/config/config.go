// Package config loads taskpilot settings: built-in defaults, then
// .taskpilot/config.yaml, then environment variables (optionally from a .env
// file), then CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harrison/taskpilot/internal/executor"
	"github.com/harrison/taskpilot/internal/telemetry"
)

// RetryConfig mirrors executor.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// TimeoutConfig holds per-attempt timeouts for each capability class.
type TimeoutConfig struct {
	Compute time.Duration
	Network time.Duration
}

// Endpoint is the credential and base URL of one external API.
type Endpoint struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

// APIConfig groups the external data APIs the built-in tools call.
type APIConfig struct {
	GitHub  Endpoint `yaml:"github"`
	Weather Endpoint `yaml:"weather"`
	News    Endpoint `yaml:"news"`
}

// Config represents taskpilot configuration.
type Config struct {
	LogLevel    string        // trace, debug, info, warn, error
	LogDir      string        // Directory for run logs
	PlanTimeout time.Duration // Zero disables the plan-level limit
	Retry       RetryConfig
	Timeouts    TimeoutConfig
	APIs        APIConfig
	Telemetry   telemetry.Config
}

// Default API base URLs.
const (
	DefaultGitHubBaseURL  = "https://api.github.com"
	DefaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5"
	DefaultNewsBaseURL    = "https://newsapi.org/v2"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogDir:   ".taskpilot/logs",
		Retry: RetryConfig{
			MaxAttempts: executor.DefaultMaxAttempts,
			BaseDelay:   executor.DefaultBaseDelay,
			MaxDelay:    executor.DefaultMaxDelay,
			Multiplier:  executor.DefaultMultiplier,
		},
		Timeouts: TimeoutConfig{
			Compute: executor.DefaultComputeTimeout,
			Network: executor.DefaultNetworkTimeout,
		},
		APIs: APIConfig{
			GitHub:  Endpoint{BaseURL: DefaultGitHubBaseURL},
			Weather: Endpoint{BaseURL: DefaultWeatherBaseURL},
			News:    Endpoint{BaseURL: DefaultNewsBaseURL},
		},
		Telemetry: telemetry.Config{
			Exporter:    "none",
			ServiceName: "taskpilot",
			SampleRate:  1.0,
		},
	}
}

// yamlConfig is the on-disk shape. Durations are strings; pointer fields
// distinguish "absent" from an explicit zero.
type yamlConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogDir      string `yaml:"log_dir"`
	PlanTimeout string `yaml:"plan_timeout"`
	Retry       struct {
		MaxAttempts *int     `yaml:"max_attempts"`
		BaseDelay   string   `yaml:"base_delay"`
		MaxDelay    string   `yaml:"max_delay"`
		Multiplier  *float64 `yaml:"multiplier"`
		Jitter      *bool    `yaml:"jitter"`
	} `yaml:"retry"`
	Timeouts struct {
		Compute string `yaml:"compute"`
		Network string `yaml:"network"`
	} `yaml:"timeouts"`
	APIs struct {
		GitHub  Endpoint `yaml:"github"`
		Weather Endpoint `yaml:"weather"`
		News    Endpoint `yaml:"news"`
	} `yaml:"apis"`
	Telemetry struct {
		Enabled     *bool    `yaml:"enabled"`
		Exporter    string   `yaml:"exporter"`
		Endpoint    string   `yaml:"endpoint"`
		ServiceName string   `yaml:"service_name"`
		SampleRate  *float64 `yaml:"sample_rate"`
	} `yaml:"telemetry"`
}

// LoadConfig loads configuration from a YAML file, merged over defaults.
// A missing file is not an error: defaults are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.LogDir != "" {
		cfg.LogDir = yc.LogDir
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"plan_timeout", yc.PlanTimeout, &cfg.PlanTimeout},
		{"retry.base_delay", yc.Retry.BaseDelay, &cfg.Retry.BaseDelay},
		{"retry.max_delay", yc.Retry.MaxDelay, &cfg.Retry.MaxDelay},
		{"timeouts.compute", yc.Timeouts.Compute, &cfg.Timeouts.Compute},
		{"timeouts.network", yc.Timeouts.Network, &cfg.Timeouts.Network},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s format %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}

	if yc.Retry.MaxAttempts != nil {
		cfg.Retry.MaxAttempts = *yc.Retry.MaxAttempts
	}
	if yc.Retry.Multiplier != nil {
		cfg.Retry.Multiplier = *yc.Retry.Multiplier
	}
	if yc.Retry.Jitter != nil {
		cfg.Retry.Jitter = *yc.Retry.Jitter
	}

	mergeEndpoint(&cfg.APIs.GitHub, yc.APIs.GitHub)
	mergeEndpoint(&cfg.APIs.Weather, yc.APIs.Weather)
	mergeEndpoint(&cfg.APIs.News, yc.APIs.News)

	if yc.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *yc.Telemetry.Enabled
	}
	if yc.Telemetry.Exporter != "" {
		cfg.Telemetry.Exporter = yc.Telemetry.Exporter
	}
	if yc.Telemetry.Endpoint != "" {
		cfg.Telemetry.Endpoint = yc.Telemetry.Endpoint
	}
	if yc.Telemetry.ServiceName != "" {
		cfg.Telemetry.ServiceName = yc.Telemetry.ServiceName
	}
	if yc.Telemetry.SampleRate != nil {
		cfg.Telemetry.SampleRate = *yc.Telemetry.SampleRate
	}

	return cfg, nil
}

func mergeEndpoint(dst *Endpoint, src Endpoint) {
	if src.Token != "" {
		dst.Token = src.Token
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
}

// LoadConfigFromDir loads .taskpilot/config.yaml from dir.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".taskpilot", "config.yaml"))
}

// Environment variable names read by ApplyEnv.
const (
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvWeatherAPIKey  = "WEATHER_API_KEY"
	EnvNewsAPIKey     = "NEWS_API_KEY"
	EnvLogLevel       = "TASKPILOT_LOG_LEVEL"
	EnvMaxRetries     = "TASKPILOT_MAX_RETRIES"
	EnvRequestTimeout = "TASKPILOT_REQUEST_TIMEOUT"
)

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// EnvLookup returns a LookupFunc over the process environment, falling back
// to the given .env file. A missing .env file is ignored.
func EnvLookup(dotenvPath string) (LookupFunc, error) {
	fileVars := map[string]string{}
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			vars, err := godotenv.Read(dotenvPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", dotenvPath, err)
			}
			fileVars = vars
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}, nil
}

// ApplyEnv overrides configuration from environment variables. API keys are
// only taken from the environment when the config file leaves them empty.
// TASKPILOT_MAX_RETRIES sets the attempt budget; TASKPILOT_REQUEST_TIMEOUT
// (seconds or a Go duration) sets the network timeout.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if v, ok := lookup(EnvGitHubToken); ok && c.APIs.GitHub.Token == "" {
		c.APIs.GitHub.Token = v
	}
	if v, ok := lookup(EnvWeatherAPIKey); ok && c.APIs.Weather.Token == "" {
		c.APIs.Weather.Token = v
	}
	if v, ok := lookup(EnvNewsAPIKey); ok && c.APIs.News.Token == "" {
		c.APIs.News.Token = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvMaxRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxRetries, v, err)
		}
		c.Retry.MaxAttempts = n
	}
	if v, ok := lookup(EnvRequestTimeout); ok && v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRequestTimeout, v, err)
		}
		c.Timeouts.Network = d
	}
	return nil
}

func parseSecondsOrDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(logLevel, logDir *string, planTimeout *time.Duration, maxAttempts *int) {
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if planTimeout != nil {
		c.PlanTimeout = *planTimeout
	}
	if maxAttempts != nil {
		c.Retry.MaxAttempts = *maxAttempts
	}
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.PlanTimeout < 0 {
		return fmt.Errorf("plan_timeout must be >= 0, got %v", c.PlanTimeout)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must be >= 0, got %v", c.Retry.BaseDelay)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay (%v) must be >= retry.base_delay (%v)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1, got %v", c.Retry.Multiplier)
	}
	if c.Timeouts.Compute <= 0 || c.Timeouts.Network <= 0 {
		return fmt.Errorf("timeouts must be > 0, got compute=%v network=%v", c.Timeouts.Compute, c.Timeouts.Network)
	}

	validExporters := map[string]bool{"otlp-http": true, "stdout": true, "none": true}
	if c.Telemetry.Enabled && !validExporters[c.Telemetry.Exporter] {
		return fmt.Errorf("invalid telemetry.exporter %q, must be one of: otlp-http, stdout, none", c.Telemetry.Exporter)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate)
	}
	return nil
}

// EngineConfig converts the settings the engine needs.
func (c *Config) EngineConfig() executor.Config {
	return executor.Config{
		Retry: executor.RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
			Multiplier:  c.Retry.Multiplier,
			Jitter:      c.Retry.Jitter,
		},
		Timeouts: executor.Timeouts{
			Compute: c.Timeouts.Compute,
			Network: c.Timeouts.Network,
		},
		PlanTimeout: c.PlanTimeout,
	}
}
