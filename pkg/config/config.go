package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"PulsePrice/pkg/util"
)

// PricingConfig seeds the runtime engine config. It is only read at startup;
// afterwards the engine owns the live values (POST /config).
type PricingConfig struct {
	Weights              map[string]float64 `yaml:"weights" default:"{\"post\":5,\"like\":1,\"comment\":2,\"rating\":3,\"specialContent\":10,\"prediction\":4,\"stake\":8}"`
	EngagementMultiplier float64            `yaml:"engagement_multiplier" default:"0.001"`
	DropThreshold        float64            `yaml:"drop_threshold" default:"0.5"`
	StagnationHours      float64            `yaml:"stagnation_hours" default:"48"`
	StagnationDropRate   float64            `yaml:"stagnation_drop_rate" default:"0.01"`
	MinPrice             int64              `yaml:"min_price" default:"1000000"`
	UpdateIntervalMs     int64              `yaml:"update_interval_ms" default:"30000"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port         int           `yaml:"port" default:"8080"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		// zero keeps long-lived stream responses open
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Engine struct {
		Workers         int           `yaml:"workers" default:"8"`
		SourceTimeout   time.Duration `yaml:"source_timeout" default:"5s"`
		InitialLookback time.Duration `yaml:"initial_lookback" default:"1h"`
		Pricing         PricingConfig `yaml:"pricing"`
	} `yaml:"engine"`
	Registry struct {
		Backend  string   `yaml:"backend" default:"static"` // static | redis
		Tokens   []string `yaml:"tokens"`
		RedisKey string   `yaml:"redis_key" default:"tokens"`
	} `yaml:"registry"`
	ContentStore struct {
		Backend    string        `yaml:"backend" default:"http"` // http | kafka
		BaseURL    string        `yaml:"base_url"`
		Timeout    time.Duration `yaml:"timeout" default:"5s"`
		KafkaTopic string        `yaml:"kafka_topic" default:"engagement-events"`
		Retention  time.Duration `yaml:"retention" default:"24h"`
	} `yaml:"content_store"`
	Attestation struct {
		Enabled  bool          `yaml:"enabled"`
		BaseURL  string        `yaml:"base_url"`
		APIKey   string        `yaml:"api_key"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
	} `yaml:"attestation"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"pulse"`
	} `yaml:"redis"`
	State struct {
		Backend string `yaml:"backend" default:"none"` // none | memory | redis | layered
		// zero keeps snapshots until overwritten
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"state"`
	Sinks struct {
		BufferSize int `yaml:"buffer_size" default:"64"`
		RetryMax   int `yaml:"retry_max" default:"3"`
	} `yaml:"sinks"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		PriceTopic   string   `yaml:"price_topic" default:"token-prices"`
		LogTopic     string   `yaml:"log_topic" default:"pulse-logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"pulse-price"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"pulse"`
		Table            string        `yaml:"table" default:"price_points"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Stream struct {
		KeepAlive        time.Duration `yaml:"keep_alive" default:"15s"`
		SubscriberBuffer int           `yaml:"subscriber_buffer" default:"16"`
	} `yaml:"stream"`
	RateLimit struct {
		Capacity     float64 `yaml:"capacity" default:"5"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"1"`
	} `yaml:"ratelimit"`
}

// Default returns a config populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PULSE_TOKENS"); v != "" {
		c.Registry.Tokens = util.SplitCSV(v)
	}
	if v := getenv("CONTENT_STORE_URL"); v != "" {
		c.ContentStore.BaseURL = v
	}
	if v := getenv("ATTESTATION_URL"); v != "" {
		c.Attestation.BaseURL = v
		c.Attestation.Enabled = true
	}
	if v := getenv("ATTESTATION_API_KEY"); v != "" {
		c.Attestation.APIKey = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR port: %w", err)
		}
		c.Redis.Host, c.Redis.Port, c.Redis.Enabled = host, p, true
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Registry.Backend {
	case "static":
		if len(c.Registry.Tokens) == 0 {
			return fmt.Errorf("registry.tokens cannot be empty for the static registry")
		}
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("registry.backend 'redis' requires redis.enabled")
		}
	default:
		return fmt.Errorf("registry.backend must be 'static' or 'redis', got '%s'", c.Registry.Backend)
	}
	switch c.ContentStore.Backend {
	case "http":
		if c.ContentStore.BaseURL == "" {
			return fmt.Errorf("content_store.base_url is required for the http backend")
		}
	case "kafka":
		if !c.Kafka.Enabled || len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("content_store.backend 'kafka' requires kafka.enabled and kafka.brokers")
		}
	default:
		return fmt.Errorf("content_store.backend must be 'http' or 'kafka', got '%s'", c.ContentStore.Backend)
	}
	if c.Attestation.Enabled && c.Attestation.BaseURL == "" {
		return fmt.Errorf("attestation.base_url is required when attestation is enabled")
	}
	switch c.State.Backend {
	case "none", "memory":
	case "redis", "layered":
		if !c.Redis.Enabled {
			return fmt.Errorf("state.backend '%s' requires redis.enabled", c.State.Backend)
		}
	default:
		return fmt.Errorf("state.backend must be one of none, memory, redis, layered, got '%s'", c.State.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be positive")
	}
	if c.Engine.SourceTimeout <= 0 {
		return fmt.Errorf("engine.source_timeout must be positive")
	}
	return nil
}
