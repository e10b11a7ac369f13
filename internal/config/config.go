// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Sources    []SourceConfig   `mapstructure:"sources"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Run        RunConfig        `mapstructure:"run"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Output     OutputConfig     `mapstructure:"output"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// SourceConfig describes one configured source.
type SourceConfig struct {
	ID          string `mapstructure:"id"`
	Kind        string `mapstructure:"kind"`
	Endpoint    string `mapstructure:"endpoint"`
	Name        string `mapstructure:"name"`
	BaseURL     string `mapstructure:"base_url"`
	Query       string `mapstructure:"query"`
	URLTemplate string `mapstructure:"url_template"`
}

// FetchConfig configures the retrying fetcher and its transport.
type FetchConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	RatePerHost   float64       `mapstructure:"rate_per_host"`
	Burst         int           `mapstructure:"burst"`
}

// RunConfig bounds a single harvesting pass.
type RunConfig struct {
	Workers         int           `mapstructure:"workers"`
	Timeout         time.Duration `mapstructure:"timeout"`
	InitialLookback time.Duration `mapstructure:"initial_lookback"`
}

// CheckpointConfig selects where checkpoints persist.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// NotifyConfig selects the notification channel and its retry discipline.
type NotifyConfig struct {
	Channel     string        `mapstructure:"channel"`
	WebhookURL  string        `mapstructure:"webhook_url"`
	Title       string        `mapstructure:"title"`
	ProjectID   string        `mapstructure:"project_id"`
	Topic       string        `mapstructure:"topic"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	FallbackLog string        `mapstructure:"fallback_log"`
}

// OutputConfig controls where run datasets are written.
type OutputConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	// MetricsAddr is the listen address; empty disables the server.
	MetricsAddr string `mapstructure:"metrics_addr"`
	// APIKey guards run triggering when set.
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.max_retries", harvest.DefaultMaxRetries)
	v.SetDefault("fetch.retry_delay", harvest.DefaultRetryDelay)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.user_agent", "delta-harvester/0.1")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.rate_per_host", 0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("run.workers", 4)
	v.SetDefault("run.timeout", 10*time.Minute)
	v.SetDefault("run.initial_lookback", 0)
	v.SetDefault("checkpoint.backend", "memory")
	v.SetDefault("checkpoint.table", "sources")
	v.SetDefault("notify.channel", "none")
	v.SetDefault("notify.title", "delta-harvester")
	v.SetDefault("notify.max_retries", harvest.DefaultMaxRetries)
	v.SetDefault("notify.retry_delay", harvest.DefaultRetryDelay)
	v.SetDefault("notify.fallback_log", "logs/notify_fallback.log")
	v.SetDefault("output.backend", "none")
	v.SetDefault("output.prefix", "datasets")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "delta-harvester")
	v.SetDefault("telemetry.enabled", false)
}

func (c *Config) normalize() {
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		s.Endpoint = strings.TrimSpace(s.Endpoint)
		if s.ID == "" {
			s.ID = s.Endpoint
		}
	}
	c.Checkpoint.Backend = strings.ToLower(c.Checkpoint.Backend)
	c.Notify.Channel = strings.ToLower(c.Notify.Channel)
	c.Output.Backend = strings.ToLower(c.Output.Backend)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if !harvest.SourceKind(s.Kind).Valid() {
			return fmt.Errorf("sources[%d].kind %q must be listing, sitemap or feed", i, s.Kind)
		}
		if u, err := url.Parse(s.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("sources[%d].endpoint %q must be an absolute URL", i, s.Endpoint)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sources[%d].id %q is duplicated", i, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Fetch.RetryDelay < 0 {
		return fmt.Errorf("fetch.retry_delay must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Run.Workers <= 0 {
		return fmt.Errorf("run.workers must be > 0")
	}
	if c.Run.Timeout < 0 || c.Run.InitialLookback < 0 {
		return fmt.Errorf("run.timeout and run.initial_lookback must be >= 0")
	}
	switch c.Checkpoint.Backend {
	case "memory":
	case "postgres":
		if c.Checkpoint.DSN == "" {
			return fmt.Errorf("checkpoint.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend %q must be memory or postgres", c.Checkpoint.Backend)
	}
	switch c.Notify.Channel {
	case "none":
	case "webhook":
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("notify.webhook_url must be set for the webhook channel")
		}
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set for the pubsub channel")
		}
	default:
		return fmt.Errorf("notify.channel %q must be none, webhook or pubsub", c.Notify.Channel)
	}
	if c.Notify.MaxRetries < 0 || c.Notify.RetryDelay < 0 {
		return fmt.Errorf("notify.max_retries and notify.retry_delay must be >= 0")
	}
	switch c.Output.Backend {
	case "none":
	case "local":
		if c.Output.Dir == "" {
			return fmt.Errorf("output.dir must be set for the local backend")
		}
	case "gcs":
		if c.Output.Bucket == "" {
			return fmt.Errorf("output.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("output.backend %q must be none, local or gcs", c.Output.Backend)
	}
	return nil
}

// HarvestSources converts the configured sources to domain values.
func (c Config) HarvestSources() []harvest.Source {
	out := make([]harvest.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, harvest.Source{
			ID:          s.ID,
			Kind:        harvest.SourceKind(s.Kind),
			Endpoint:    s.Endpoint,
			Name:        s.Name,
			BaseURL:     s.BaseURL,
			Query:       s.Query,
			URLTemplate: s.URLTemplate,
		})
	}
	return out
}
