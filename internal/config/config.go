// Package config loads and validates ingest configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// EnvPrefix is prepended to every environment override, e.g. INGEST_STORAGE_DSN.
const EnvPrefix = "INGEST"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Roles    []RoleConfig   `mapstructure:"roles" yaml:"roles"`
	Sources  SourcesConfig  `mapstructure:"sources" yaml:"sources"`
	Tabular  TabularConfig  `mapstructure:"tabular" yaml:"tabular"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Archive  ArchiveConfig  `mapstructure:"archive" yaml:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub" yaml:"pubsub"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development" yaml:"development"`
	Level       string `mapstructure:"level" yaml:"level"`
}

// PipelineConfig bounds row-level concurrency.
type PipelineConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// FetchConfig controls the rate ceiling and per-attempt HTTP behavior.
type FetchConfig struct {
	RateLimit    RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	PerHostRPS   float64         `mapstructure:"per_host_rps" yaml:"per_host_rps"`
	PerHostBurst int             `mapstructure:"per_host_burst" yaml:"per_host_burst"`
	Timeout      time.Duration   `mapstructure:"timeout" yaml:"timeout"`
	UserAgents   []string        `mapstructure:"user_agents" yaml:"user_agents"`
}

// RateLimitConfig is the global ceiling: Requests per rolling Window.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

// RetryConfig bounds attempts and backoff between them.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Base        time.Duration `mapstructure:"base" yaml:"base"`
	MinWait     time.Duration `mapstructure:"min_wait" yaml:"min_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// RoleConfig is one entry of the ordered role-pattern table.
type RoleConfig struct {
	Role     string   `mapstructure:"role" yaml:"role"`
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
}

// SourcesConfig lists the tabular inputs and extra host patterns per source type.
type SourcesConfig struct {
	Descriptors  []jobs.SourceDescriptor `mapstructure:"descriptors" yaml:"descriptors"`
	HostPatterns map[string][]string     `mapstructure:"host_patterns" yaml:"host_patterns"`
}

// TabularConfig sets header checks applied to every input file.
type TabularConfig struct {
	RequiredColumns []string `mapstructure:"required_columns" yaml:"required_columns"`
}

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Table       string `mapstructure:"table" yaml:"table"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MaxConns    int32  `mapstructure:"max_conns" yaml:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// ArchiveConfig selects where fetched pages are archived, if anywhere.
type ArchiveConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	BaseDir     string `mapstructure:"base_dir" yaml:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket" yaml:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix" yaml:"prefix"`
	ContentType string `mapstructure:"content_type" yaml:"content_type"`
}

// PubSubConfig holds metadata for record notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	Topic     string `mapstructure:"topic" yaml:"topic"`
}

// Enabled reports whether notifications should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey  string `mapstructure:"api_key" yaml:"-"`
}

// ScheduleConfig drives the serve command.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron" yaml:"cron"`
	RunOnStart bool   `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultUserAgents is the pool a fetch attempt draws its User-Agent from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// DefaultRoles is the shipped role table. Order is significant: the first
// matching role wins.
var DefaultRoles = []RoleConfig{
	{Role: "CNA", Patterns: []string{"certified nursing assistant", "nursing assistant", "cna"}},
	{Role: "HHA", Patterns: []string{"home health aide", "hha"}},
	{Role: "LPN", Patterns: []string{"licensed practical nurse", "licensed vocational nurse", "lpn", "lvn"}},
	{Role: "RN", Patterns: []string{"registered nurse"}},
	{Role: "Medical Assistant", Patterns: []string{"medical assistant"}},
	{Role: "Caregiver", Patterns: []string{"caregiver", "personal care aide", "companion"}},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("fetch.rate_limit.requests", 10)
	v.SetDefault("fetch.rate_limit.window", 60*time.Second)
	v.SetDefault("fetch.per_host_rps", 0)
	v.SetDefault("fetch.per_host_burst", 1)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agents", DefaultUserAgents)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base", time.Second)
	v.SetDefault("retry.min_wait", 4*time.Second)
	v.SetDefault("retry.max_wait", 10*time.Second)
	v.SetDefault("roles", rolesDefault())
	v.SetDefault("tabular.required_columns", []string{})
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.table", "jobs")
	v.SetDefault("storage.sqlite_path", "jobs.db")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("storage.auto_migrate", true)
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("schedule.cron", "0 */6 * * *")
	v.SetDefault("schedule.run_on_start", false)
}

func rolesDefault() []map[string]any {
	out := make([]map[string]any, 0, len(DefaultRoles))
	for _, r := range DefaultRoles {
		out = append(out, map[string]any{"role": r.Role, "patterns": r.Patterns})
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.validateFetch(); err != nil {
		return err
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	for i, r := range c.Roles {
		if strings.TrimSpace(r.Role) == "" {
			return fmt.Errorf("roles[%d].role must be set", i)
		}
		if len(r.Patterns) == 0 {
			return fmt.Errorf("roles[%d].patterns must not be empty", i)
		}
	}
	for i, d := range c.Sources.Descriptors {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("sources.descriptors[%d].name must be set", i)
		}
		if strings.TrimSpace(d.FilePath) == "" {
			return fmt.Errorf("sources.descriptors[%d].file_path must be set", i)
		}
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

func (c Config) validateFetch() error {
	if c.Fetch.RateLimit.Requests <= 0 {
		return fmt.Errorf("fetch.rate_limit.requests must be > 0")
	}
	if c.Fetch.RateLimit.Window <= 0 {
		return fmt.Errorf("fetch.rate_limit.window must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.PerHostRPS < 0 {
		return fmt.Errorf("fetch.per_host_rps must be >= 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.MaxWait < c.Retry.MinWait {
		return fmt.Errorf("retry.max_wait must be >= retry.min_wait")
	}
	return nil
}

func (c Config) validateStorage() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for the postgres driver")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, postgres, sqlite (got %q)", c.Storage.Driver)
	}
	return nil
}

func (c Config) validateArchive() error {
	switch c.Archive.Driver {
	case "", "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local driver")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs driver")
		}
	default:
		return fmt.Errorf("archive.driver must be one of none, memory, local, gcs (got %q)", c.Archive.Driver)
	}
	return nil
}
