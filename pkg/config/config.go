package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`

	Domains struct {
		Time      TimeDomain      `yaml:"time"`
		Capacity  CapacityDomain  `yaml:"capacity"`
		Material  MaterialDomain  `yaml:"material"`
		Financial FinancialDomain `yaml:"financial"`
		Surge     SurgeDomain     `yaml:"surge"`
	} `yaml:"domains"`

	Antifragile struct {
		MinSuccessRate     float64       `yaml:"min_success_rate"`
		ActivationCooldown time.Duration `yaml:"activation_cooldown"`
		HistoryRetention   time.Duration `yaml:"history_retention"`
		Patterns           []PatternSpec `yaml:"patterns"`
	} `yaml:"antifragile"`

	Monitoring struct {
		CollectionInterval time.Duration   `yaml:"collection_interval"`
		RetentionPeriod    time.Duration   `yaml:"retention_period"`
		MinAlertSeverity   string          `yaml:"min_alert_severity"`
		Components         ComponentFlags  `yaml:"components"`
		Thresholds         []ThresholdSpec `yaml:"thresholds"`
		AlertChannel       struct {
			KafkaTopic string `yaml:"kafka_topic"`
			WebhookURL string `yaml:"webhook_url"`
		} `yaml:"alert_channel"`
	} `yaml:"monitoring"`

	Router struct {
		MaxBatchSize int `yaml:"max_batch_size"`
		MaxSourceRPS int `yaml:"max_source_rps"`
		BufferSize   int `yaml:"buffer_size"`
	} `yaml:"router"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalsTopic string   `yaml:"signals_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Persistence struct {
		Workers    int           `yaml:"workers"`
		QueueSize  int           `yaml:"queue_size"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"persistence"`

	Feed struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		Channels       []string      `yaml:"channels"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"feed"`
}

// Domain holds the options every margin domain recognizes.
type Domain struct {
	Enabled                  bool          `yaml:"enabled"`
	EmergencyReserve         float64       `yaml:"emergency_reserve"`
	MaxConcurrentAllocations int           `yaml:"max_concurrent_allocations"`
	UpdateInterval           time.Duration `yaml:"update_interval"`
	AllocationTTL            time.Duration `yaml:"allocation_ttl"`
	SeverityUnit             float64       `yaml:"severity_unit"`
	RecentEvents             int           `yaml:"recent_events"`
}

type TimeDomain struct {
	Domain            `yaml:",inline"`
	DefaultBufferTime float64 `yaml:"default_buffer_time"` // minutes
}

type CapacityDomain struct {
	Domain                  `yaml:",inline"`
	DefaultBufferPercentage float64 `yaml:"default_buffer_percentage"`
}

type MaterialDomain struct {
	Domain            `yaml:",inline"`
	DefaultStockUnits float64 `yaml:"default_stock_units"`
}

type FinancialDomain struct {
	Domain                       `yaml:",inline"`
	DefaultContingencyPercentage float64 `yaml:"default_contingency_percentage"`
	Currency                     string  `yaml:"currency"`
}

type SurgeDomain struct {
	Domain               `yaml:",inline"`
	DefaultSurgeCapacity float64 `yaml:"default_surge_capacity"`
	SurgeThreshold       float64 `yaml:"surge_threshold"`
}

// PatternSpec declares one antifragile pattern in configuration.
type PatternSpec struct {
	ID             string        `yaml:"id"`
	Name           string        `yaml:"name"`
	MinStressLevel float64       `yaml:"min_stress_level"`
	SignalTypes    []string      `yaml:"signal_types"`
	Duration       time.Duration `yaml:"duration_threshold"`
	Adaptations    []string      `yaml:"adaptations"`
}

// ThresholdSpec declares one monitoring alert rule.
type ThresholdSpec struct {
	Metric   string  `yaml:"metric"`
	Operator string  `yaml:"operator"`
	Value    float64 `yaml:"value"`
	Severity string  `yaml:"severity"`
}

// ComponentFlags enables or disables individual monitored components.
type ComponentFlags struct {
	Margin      bool `yaml:"margin"`
	Antifragile bool `yaml:"antifragile"`
	Router      bool `yaml:"router"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SIGNALS_TOPIC"); v != "" {
		c.Kafka.SignalsTopic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Monitoring.CollectionInterval <= 0 {
		return fmt.Errorf("monitoring.collection_interval must be positive")
	}
	if c.Monitoring.RetentionPeriod <= 0 {
		return fmt.Errorf("monitoring.retention_period must be positive")
	}
	for _, t := range c.Monitoring.Thresholds {
		switch t.Operator {
		case "GT", "LT", "GTE", "LTE", "EQ":
		default:
			return fmt.Errorf("monitoring.thresholds: unknown operator %q for metric %q", t.Operator, t.Metric)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.SignalsTopic == "" {
		return fmt.Errorf("kafka.signals_topic is required when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Feed.Enabled && c.Feed.WebSocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required when feed is enabled")
	}
	if s := c.Domains.Surge; s.Enabled && s.SurgeThreshold != 0 && s.SurgeThreshold < 1 {
		return fmt.Errorf("domains.surge.surge_threshold must be >= 1")
	}
	return nil
}
