package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/wa-outreach/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Labels   LabelsConfig   `yaml:"labels"`
	Messages MessagesConfig `yaml:"messages"`
	Status   StatusConfig   `yaml:"status"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool connection lifetime as a duration.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig is optional. An empty URL disables the summary cache and
// makes the projector lock fall back to Postgres.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether a Redis URL is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// DispatchConfig points at the external dispatcher that drains runs.
type DispatchConfig struct {
	URL            string `yaml:"url"`
	InternalToken  string `yaml:"internal_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the dispatch request timeout.
func (c DispatchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IngestConfig tunes the inbox projector in cmd/worker.
type IngestConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	BatchSize           int `yaml:"batch_size"`
	LockTTLSeconds      int `yaml:"lock_ttl_seconds"`
}

// PollInterval returns the projector tick interval.
func (c IngestConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LockTTL returns the projector lock expiry.
func (c IngestConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ThrottleConfig holds the deployment-wide throttle defaults that apply
// when neither the segment nor the campaign carries a value.
type ThrottleConfig struct {
	TextMinDelaySec   int    `yaml:"text_min_delay_sec"`
	TextMaxDelaySec   int    `yaml:"text_max_delay_sec"`
	MediaMinDelaySec  int    `yaml:"media_min_delay_sec"`
	MediaMaxDelaySec  int    `yaml:"media_max_delay_sec"`
	PerMinute         int    `yaml:"per_minute"`
	QuietHoursStart   string `yaml:"quiet_hours_start"`
	QuietHoursEnd     string `yaml:"quiet_hours_end"`
	DryRun            *bool  `yaml:"dry_run"`
	FrequencyCapHours int    `yaml:"frequency_cap_hours"`
}

// Defaults converts the configured values into a domain throttle.
func (c ThrottleConfig) Defaults() domain.ThrottleConfig {
	t := domain.ThrottleConfig{
		TextDelay:  [2]int{c.TextMinDelaySec, c.TextMaxDelaySec},
		MediaDelay: [2]int{c.MediaMinDelaySec, c.MediaMaxDelaySec},
		PerMinute:  c.PerMinute,
		QuietHours: [2]string{c.QuietHoursStart, c.QuietHoursEnd},
		DryRun:     true,
		Safeguards: domain.Safeguards{FrequencyCapHours: c.FrequencyCapHours},
	}
	if c.DryRun != nil {
		t.DryRun = *c.DryRun
	}
	return t
}

// LabelsConfig selects the default locale and an optional overrides file.
type LabelsConfig struct {
	DefaultLocale string `yaml:"default_locale"`
	OverridesPath string `yaml:"overrides_path"`
}

// MessagesConfig points at an optional message templates file merged over
// the built-in catalog.
type MessagesConfig struct {
	TemplatesPath string `yaml:"templates_path"`
}

// StatusConfig tunes the dashboard aggregation.
type StatusConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	RecentLimit     int `yaml:"recent_limit"`
}

// CacheTTL returns how long a summary stays cached.
func (c StatusConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether phone numbers are masked. Defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file. An empty path yields the
// defaults only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Dispatch.TimeoutSeconds == 0 {
		cfg.Dispatch.TimeoutSeconds = 30
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 3
	}
	if cfg.Ingest.PollIntervalSeconds == 0 {
		cfg.Ingest.PollIntervalSeconds = 2
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 200
	}
	if cfg.Ingest.LockTTLSeconds == 0 {
		cfg.Ingest.LockTTLSeconds = 30
	}

	def := domain.DefaultThrottle()
	t := &cfg.Throttle
	if t.TextMinDelaySec == 0 && t.TextMaxDelaySec == 0 {
		t.TextMinDelaySec, t.TextMaxDelaySec = def.TextDelay[0], def.TextDelay[1]
	}
	if t.MediaMinDelaySec == 0 && t.MediaMaxDelaySec == 0 {
		t.MediaMinDelaySec, t.MediaMaxDelaySec = def.MediaDelay[0], def.MediaDelay[1]
	}
	if t.PerMinute == 0 {
		t.PerMinute = def.PerMinute
	}
	if t.QuietHoursStart == "" {
		t.QuietHoursStart = def.QuietHours[0]
	}
	if t.QuietHoursEnd == "" {
		t.QuietHoursEnd = def.QuietHours[1]
	}
	if t.FrequencyCapHours == 0 {
		t.FrequencyCapHours = def.Safeguards.FrequencyCapHours
	}

	if cfg.Labels.DefaultLocale == "" {
		cfg.Labels.DefaultLocale = "pt"
	}
	if cfg.Status.CacheTTLSeconds == 0 {
		cfg.Status.CacheTTLSeconds = 2
	}
	if cfg.Status.RecentLimit == 0 {
		cfg.Status.RecentLimit = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars so secrets
// can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("N8N_CAMPAIGN_DISPATCH_URL"); v != "" {
		cfg.Dispatch.URL = v
	}
	if v := os.Getenv("INTERNAL_TOKEN"); v != "" {
		cfg.Dispatch.InternalToken = v
	}
	if v := os.Getenv("DEFAULT_LOCALE"); v != "" {
		cfg.Labels.DefaultLocale = v
	}
	if v := os.Getenv("MESSAGE_TEMPLATES_PATH"); v != "" {
		cfg.Messages.TemplatesPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	envInt("PORT", &cfg.Server.Port)

	envInt("DEFAULT_TEXT_MIN_DELAY_SEC", &cfg.Throttle.TextMinDelaySec)
	envInt("DEFAULT_TEXT_MAX_DELAY_SEC", &cfg.Throttle.TextMaxDelaySec)
	envInt("DEFAULT_MEDIA_MIN_DELAY_SEC", &cfg.Throttle.MediaMinDelaySec)
	envInt("DEFAULT_MEDIA_MAX_DELAY_SEC", &cfg.Throttle.MediaMaxDelaySec)
	envInt("DEFAULT_THROTTLE_PER_MINUTE", &cfg.Throttle.PerMinute)
	if v := os.Getenv("QUIET_HOURS_START"); v != "" {
		cfg.Throttle.QuietHoursStart = v
	}
	if v := os.Getenv("QUIET_HOURS_END"); v != "" {
		cfg.Throttle.QuietHoursEnd = v
	}

	return cfg, nil
}

// envInt overrides dst when the variable holds a valid integer. Garbage
// values are ignored so a typo never zeroes a default.
func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
