package domain

import "time"

// Config is the full Kestrel configuration tree. The tier decides
// which backend each component section is read for.
type Config struct {
	Server ServerConfig `json:"server"`
	Tier   Tier         `json:"tier"`

	// Screening provider and registry settings
	Provider ProviderConfig `json:"provider"`

	// Screening pipeline settings
	Screen ScreenConfig `json:"screen"`

	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ScreenConfig holds screening pipeline settings.
type ScreenConfig struct {
	// QuotaHourly caps screens per tenant per hour. 0 disables the quota.
	QuotaHourly int `json:"quotaHourly"`

	// ReportTTL bounds how long a cached report is reused across listings.
	ReportTTL time.Duration `json:"reportTTL"`

	// AsyncWorker enables the background screening consumer (Pro tier).
	AsyncWorker bool `json:"asyncWorker"`
}

// ServerConfig sets the HTTP listener address and timeouts.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier selects which backends the service runs on.
type Tier string

const (
	// TierCommunity runs on SQLite, the in-process LRU, and channels.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis, and NATS.
	TierPro Tier = "pro"

	// TierEnterprise reserves room for multi-node deployments.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig is the Community tier out-of-the-box setup: SQLite on
// disk, everything else in process. Without provider credentials every
// screen is synthetic.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Provider: ProviderConfig{
			RegistryURL:   "https://api.fbi.gov/wanted/v1",
			CallTimeout:   ProviderTimeoutDefault,
			MaxConcurrent: 4,
		},
		Screen: ScreenConfig{
			QuotaHourly: 0, // unlimited
			ReportTTL:   24 * time.Hour,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig swaps the Community defaults for the Pro backends:
// PostgreSQL, layered Redis caching, NATS, and the async worker.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5 * time.Second,
	}
	cfg.Screen.AsyncWorker = true
	cfg.Tracing.Enabled = true
	return cfg
}
