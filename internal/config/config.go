// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// EnvPrefix namespaces environment overrides, e.g. LEADFINDER_SERVER_PORT.
const EnvPrefix = "LEADFINDER"

// Cache backends.
const (
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheNone     = "none"
)

// Export backends.
const (
	ExportMemory = "memory"
	ExportLocal  = "local"
	ExportGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Leadership LeadershipConfig `mapstructure:"leadership"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Export     ExportConfig     `mapstructure:"export"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Model      ModelConfig      `mapstructure:"model"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// LeadershipConfig holds the per-company engine knobs.
type LeadershipConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	UseAgent            bool          `mapstructure:"use_agent"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayMin       time.Duration `mapstructure:"retry_delay_min"`
	RetryDelayMax       time.Duration `mapstructure:"retry_delay_max"`
	AlternatePaths      []string      `mapstructure:"alternate_paths"`
	MaxLeaders          int           `mapstructure:"max_leaders"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	MaxPages            int           `mapstructure:"max_pages"`
	MaxDepth            int           `mapstructure:"max_depth"`
	PerPageTimeout      time.Duration `mapstructure:"per_page_timeout"`
	PerCompanyTimeout   time.Duration `mapstructure:"per_company_timeout"`
	// RulesFile optionally replaces the built-in role classification table.
	RulesFile string `mapstructure:"rules_file"`
}

// FetchConfig configures the plain fetch path.
type FetchConfig struct {
	UserAgents    []string `mapstructure:"user_agents"`
	RespectRobots bool     `mapstructure:"respect_robots"`
	RPS           float64  `mapstructure:"rps"`
	Burst         int      `mapstructure:"burst"`
	MaxBodyBytes  int      `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures browser rendering.
type HeadlessConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	NavTimeout         time.Duration `mapstructure:"nav_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	ExecPath           string        `mapstructure:"exec_path"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
	// PlainOnlyHosts are never escalated to browser rendering.
	PlainOnlyHosts []string `mapstructure:"plain_only_hosts"`
}

// BatchConfig controls the worker pool.
type BatchConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	QueueDepth   int           `mapstructure:"queue_depth"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxCompanies int           `mapstructure:"max_companies"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Backend    string         `mapstructure:"backend"`
	TTL        time.Duration  `mapstructure:"ttl"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the Postgres cache.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ExportConfig selects where batch reports are written.
type ExportConfig struct {
	Backend     string `mapstructure:"backend"`
	Prefix      string `mapstructure:"prefix"`
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	GCSEndpoint string `mapstructure:"gcs_endpoint"`
}

// PubSubConfig holds metadata for result notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether notifications should be sent.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.TopicName != ""
}

// ModelConfig configures the model-based extraction strategy.
type ModelConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	APIKey         string `mapstructure:"api_key"`
	Name           string `mapstructure:"name"`
	BaseURL        string `mapstructure:"base_url"`
	Mode           string `mapstructure:"mode"`
	MaxPromptChars int    `mapstructure:"max_prompt_chars"`
}

// Load builds a Config from defaults, an optional file and the environment.
// With an empty path, leadfinder.{yaml,toml,json} is looked up in the working
// directory, $HOME/.leadfinder and /etc/leadfinder; a missing file is fine.
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
	} else {
		v.SetConfigName("leadfinder")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.leadfinder")
		v.AddConfigPath("/etc/leadfinder")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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

func setDefaults(v *viper.Viper) {
	d := leadership.DefaultEngineConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	v.SetDefault("leadership.enabled", d.Enabled)
	v.SetDefault("leadership.use_agent", d.UseAgent)
	v.SetDefault("leadership.max_retries", d.MaxRetries)
	v.SetDefault("leadership.retry_delay_min", d.RetryDelayMin.String())
	v.SetDefault("leadership.retry_delay_max", d.RetryDelayMax.String())
	v.SetDefault("leadership.alternate_paths", d.AlternatePaths)
	v.SetDefault("leadership.max_leaders", d.MaxLeaders)
	v.SetDefault("leadership.confidence_threshold", d.ConfidenceThreshold)
	v.SetDefault("leadership.max_pages", d.MaxPages)
	v.SetDefault("leadership.max_depth", d.MaxDepth)
	v.SetDefault("leadership.per_page_timeout", d.PerPageTimeout.String())
	v.SetDefault("leadership.per_company_timeout", d.PerCompanyTimeout.String())
	v.SetDefault("leadership.rules_file", "")

	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.rps", 1.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("fetch.max_body_bytes", 1_500_000)

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout", "25s")
	v.SetDefault("headless.settle_delay", "750ms")
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.promotion_threshold", 0)
	v.SetDefault("headless.plain_only_hosts", []string{})

	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.queue_depth", 256)
	v.SetDefault("batch.timeout", "30m")
	v.SetDefault("batch.max_companies", 5000)

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl", d.CacheTTL.String())
	v.SetDefault("cache.sqlite_path", "leadfinder-cache.db")
	v.SetDefault("cache.postgres.dsn", "")
	v.SetDefault("cache.postgres.table", "leadership_cache")
	v.SetDefault("cache.postgres.max_conns", 4)

	v.SetDefault("export.backend", ExportMemory)
	v.SetDefault("export.prefix", "reports")
	v.SetDefault("export.local_dir", "exports")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.gcs_endpoint", "")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("model.enabled", false)
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.name", "gemini-2.5-flash")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.mode", "supplement")
	v.SetDefault("model.max_prompt_chars", 24000)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.Engine().Validate(); err != nil {
		return fmt.Errorf("leadership: %w", err)
	}
	if c.Fetch.RPS < 0 {
		return fmt.Errorf("fetch.rps must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be > 0")
	}
	if c.Batch.QueueDepth < 0 || c.Batch.Timeout < 0 || c.Batch.MaxCompanies < 0 {
		return fmt.Errorf("batch limits must be >= 0")
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheSQLite:
		if c.Cache.SQLitePath == "" {
			return fmt.Errorf("cache.sqlite_path must be set for the sqlite cache")
		}
	case CachePostgres:
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn must be set for the postgres cache")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	switch c.Export.Backend {
	case ExportMemory:
	case ExportLocal:
		if c.Export.LocalDir == "" {
			return fmt.Errorf("export.local_dir must be set for the local export")
		}
	case ExportGCS:
		if c.Export.GCSBucket == "" {
			return fmt.Errorf("export.gcs_bucket must be set for the gcs export")
		}
	default:
		return fmt.Errorf("unknown export.backend %q", c.Export.Backend)
	}
	if c.Model.Enabled {
		if c.Model.APIKey == "" {
			return fmt.Errorf("model.api_key must be set when the model is enabled")
		}
		if c.Model.Mode != "supplement" && c.Model.Mode != "replace" {
			return fmt.Errorf("model.mode must be supplement or replace")
		}
	}
	return nil
}

// Engine converts the leadership section into the controller's immutable
// configuration.
func (c Config) Engine() leadership.EngineConfig {
	l := c.Leadership
	return leadership.EngineConfig{
		Enabled:             l.Enabled,
		MaxRetries:          l.MaxRetries,
		RetryDelayMin:       l.RetryDelayMin,
		RetryDelayMax:       l.RetryDelayMax,
		AlternatePaths:      append([]string(nil), l.AlternatePaths...),
		MaxLeaders:          l.MaxLeaders,
		ConfidenceThreshold: l.ConfidenceThreshold,
		MaxPages:            l.MaxPages,
		MaxDepth:            l.MaxDepth,
		PerPageTimeout:      l.PerPageTimeout,
		PerCompanyTimeout:   l.PerCompanyTimeout,
		CacheTTL:            c.Cache.TTL,
		UseAgent:            l.UseAgent,
	}
}
