package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/incidentlens/incidentlens/internal/aggregate"
	"github.com/incidentlens/incidentlens/internal/clean"
)

// Default values for the configuration.
const (
	DefaultHTTPPort        = 8080
	DefaultWindow          = 7
	DefaultTimeUnit        = "day"
	DefaultDateField       = "date"
	DefaultRefreshInterval = 15 * time.Minute
	DefaultFetchTimeout    = 30 * time.Second
	DefaultHistoryKeep     = 50
)

// Config is the whole parsed configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	History  HistoryConfig  `yaml:"history"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// ServerConfig holds the serve command's listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket stream and /metrics
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`
}

// DatasetConfig describes where raw incident rows come from.
type DatasetConfig struct {
	// Type is one of: file | http.
	Type string `yaml:"type"`

	// Path is the CSV file path (type "file").
	Path string `yaml:"path"`

	// URL is the CSV endpoint (type "http").
	URL string `yaml:"url"`

	// DateField names the CSV column holding the event date (default "date").
	DateField string `yaml:"date_field"`

	// Timeout bounds one HTTP fetch (default 30s; ignored for files).
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures how the HTTP source authenticates to the endpoint.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls outbound authentication for the HTTP record source.
type AuthConfig struct {
	// Mode is one of: none | apikey | bearer | basic.
	Mode string `yaml:"mode"`

	// Header is the header name for apikey mode (default "x-api-key").
	Header string `yaml:"header"`

	// KeyEnv / TokenEnv / PasswordEnv name environment variables holding
	// the respective secret.
	KeyEnv      string `yaml:"key_env"`
	TokenEnv    string `yaml:"token_env"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string { return envOrEmpty(a.KeyEnv) }

// Token returns the bearer token resolved from the environment.
func (a AuthConfig) Token() string { return envOrEmpty(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return envOrEmpty(a.PasswordEnv) }

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// AnalysisConfig holds the pipeline parameters.
type AnalysisConfig struct {
	// GroupBy lists the categorical fields whose value tuples define
	// independent series. Empty means one global series.
	GroupBy []string `yaml:"group_by"`

	// TimeUnit is one of: day | week | month | year (default day).
	TimeUnit string `yaml:"time_unit"`

	// Window is the lagging-average width in buckets (default 7).
	Window int `yaml:"window"`

	// FieldSpecs govern categorical cleaning; rows failing a spec are
	// dropped, never errored.
	FieldSpecs []clean.FieldSpec `yaml:"field_specs"`
}

// RefreshConfig controls the serve command's re-analysis schedule.
type RefreshConfig struct {
	// Interval between pipeline runs (default 15m).
	Interval time.Duration `yaml:"interval"`
}

// HistoryConfig controls the sqlite run-history store.
type HistoryConfig struct {
	// Path is the sqlite database file; empty disables run history.
	Path string `yaml:"path"`

	// Keep is how many runs to retain before pruning (default 50).
	Keep int `yaml:"keep"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition evaluated against
// every fresh report.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the
	// deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "relative_deviation > 2",
	// "dropped_pct > 20", "fit_failures > 0", "rows_kept < 100".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert
	// fires. Defaults to one refresh-friendly hour if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return envOrEmpty(w.URLEnv) }

// Load reads and parses the config file at path. Missing fields are
// filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{HTTPPort: DefaultHTTPPort},
		Dataset: DatasetConfig{
			Type:      "file",
			DateField: DefaultDateField,
			Timeout:   DefaultFetchTimeout,
		},
		Analysis: AnalysisConfig{
			TimeUnit: DefaultTimeUnit,
			Window:   DefaultWindow,
		},
		Refresh: RefreshConfig{Interval: DefaultRefreshInterval},
		History: HistoryConfig{Keep: DefaultHistoryKeep},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}

	switch cfg.Dataset.Type {
	case "file":
		if cfg.Dataset.Path == "" {
			return fmt.Errorf("dataset.path must be set for type \"file\"")
		}
	case "http":
		if cfg.Dataset.URL == "" {
			return fmt.Errorf("dataset.url must be set for type \"http\"")
		}
	default:
		return fmt.Errorf("dataset.type %q unknown: want file|http", cfg.Dataset.Type)
	}
	if cfg.Dataset.DateField == "" {
		return fmt.Errorf("dataset.date_field must not be empty")
	}
	switch cfg.Dataset.Auth.Mode {
	case "", "none", "apikey", "bearer", "basic":
	default:
		return fmt.Errorf("dataset.auth.mode %q unknown: want none|apikey|bearer|basic", cfg.Dataset.Auth.Mode)
	}

	if _, err := aggregate.ParseUnit(cfg.Analysis.TimeUnit); err != nil {
		return err
	}
	if cfg.Analysis.Window <= 0 {
		return fmt.Errorf("analysis.window must be positive, got %d", cfg.Analysis.Window)
	}
	for _, spec := range cfg.Analysis.FieldSpecs {
		if spec.Field == "" {
			return fmt.Errorf("analysis.field_specs: every spec needs a field name")
		}
	}

	if cfg.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive")
	}
	if cfg.History.Keep < 0 {
		return fmt.Errorf("history.keep must not be negative")
	}

	for _, r := range cfg.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("alerts.rules: every rule needs a name and a condition")
		}
		switch r.Severity {
		case "", "critical", "warning", "info":
		default:
			return fmt.Errorf("alerts.rules[%s].severity %q unknown: want critical|warning|info", r.Name, r.Severity)
		}
	}
	return nil
}
