package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultPort is the HTTP listen port when none is configured
	DefaultPort = 4000
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Environment variables recognized as overrides
const (
	EnvQueueConnectionString = "QUEUE_CONNECTION_STRING"
	EnvStoreEndpoint         = "STORE_ENDPOINT"
	EnvStoreKey              = "STORE_KEY"
	EnvStoreDriver           = "STORE_DRIVER"
	EnvPort                  = "PORT"
	EnvRedisAddr             = "REDIS_ADDR"
	EnvManagementURL         = "RABBITMQ_MANAGEMENT_URL"
	EnvLogLevel              = "LOG_LEVEL"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the job store
type StoreConfig struct {
	Driver     string `yaml:"driver"`
	Endpoint   string `yaml:"endpoint"`
	Key        string `yaml:"key"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	// Timeout bounds every store call
	Timeout         time.Duration `yaml:"timeout"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	MaxPoolSize     uint64        `yaml:"max_pool_size"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	ConnectionString string           `yaml:"connection_string"`
	Exchange         ExchangeConfig   `yaml:"exchange"`
	Queue            QueueConfig      `yaml:"queue"`
	RoutingKey       string           `yaml:"routing_key"`
	Connection       ConnectionConfig `yaml:"connection"`
	Publish          PublishConfig    `yaml:"publish"`
	Management       ManagementConfig `yaml:"management"`
}

// ExchangeConfig holds RabbitMQ exchange configuration. An empty name
// publishes through the default exchange.
type ExchangeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	DeadLetter bool   `yaml:"dead_letter"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ManagementConfig points at the RabbitMQ management HTTP API
type ManagementConfig struct {
	URL       string        `yaml:"url"`
	VHost     string        `yaml:"vhost"`
	Timeout   time.Duration `yaml:"timeout"`
	RetryMax  int           `yaml:"retry_max"`
	RetryWait time.Duration `yaml:"retry_wait"`
}

// RedisConfig configures the duplicate delivery cache. Empty Addr disables it.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	DedupTTL  time.Duration `yaml:"dedup_ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// IngestConfig holds event consumer settings
type IngestConfig struct {
	Concurrency   int    `yaml:"concurrency"`
	PrefetchCount int    `yaml:"prefetch_count"`
	ConsumerTag   string `yaml:"consumer_tag"`
}

// Default returns the configuration used for anything a file or the
// environment leaves unset
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:         DriverMongo,
			Database:       "addipi",
			Collection:     "jobs",
			Timeout:        5 * time.Second,
			ConnectTimeout: 10 * time.Second,
			MaxOpenConns:   10,
			MaxIdleConns:   5,
		},
		RabbitMQ: RabbitMQConfig{
			Queue: QueueConfig{Name: "print-queue", DeadLetter: true},
			Connection: ConnectionConfig{
				RetryAttempts: 5,
				RetryInterval: 2 * time.Second,
				Heartbeat:     10 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts:     3,
				RetryInterval:     100 * time.Millisecond,
				BackoffMultiplier: 2,
			},
			Management: ManagementConfig{
				VHost:     "/",
				Timeout:   5 * time.Second,
				RetryMax:  2,
				RetryWait: 200 * time.Millisecond,
			},
		},
		Redis: RedisConfig{
			DedupTTL:  24 * time.Hour,
			KeyPrefix: "queue-service:ingested:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		App: AppConfig{
			Name:        "queue-service",
			Environment: "development",
		},
		Ingest: IngestConfig{
			Concurrency: 4,
			ConsumerTag: "queue-service",
		},
	}
}

// Load reads the configuration file on top of the defaults and applies
// environment overrides. An empty path skips the file.
func Load(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides settings from environment variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(name string, target *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}

	set(EnvQueueConnectionString, &c.RabbitMQ.ConnectionString)
	set(EnvStoreEndpoint, &c.Store.Endpoint)
	set(EnvStoreKey, &c.Store.Key)
	set(EnvStoreDriver, &c.Store.Driver)
	set(EnvRedisAddr, &c.Redis.Addr)
	set(EnvManagementURL, &c.RabbitMQ.Management.URL)
	set(EnvLogLevel, &c.Logging.Level)

	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}

	return nil
}

// Validate checks everything the queue service needs to start
func (c *Config) Validate() error {
	errs := &ConfigurationError{}

	if c.RabbitMQ.ConnectionString == "" {
		errs.Missing = append(errs.Missing, EnvQueueConnectionString)
	}
	c.validateStore(errs)

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		errs.Invalid = append(errs.Invalid,
			fmt.Sprintf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort))
	}
	if c.RabbitMQ.Queue.Name == "" {
		errs.Invalid = append(errs.Invalid, "rabbitmq queue name is required")
	}
	if c.Ingest.Concurrency <= 0 {
		errs.Invalid = append(errs.Invalid, "ingest concurrency must be greater than 0")
	}

	return errs.orNil()
}

// ValidateStore checks only the job store settings
func (c *Config) ValidateStore() error {
	errs := &ConfigurationError{}
	c.validateStore(errs)
	return errs.orNil()
}

func (c *Config) validateStore(errs *ConfigurationError) {
	switch c.Store.Driver {
	case DriverMemory:
		return
	case DriverPostgres, DriverMongo:
	default:
		errs.Invalid = append(errs.Invalid, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
		return
	}

	if c.Store.Endpoint == "" {
		errs.Missing = append(errs.Missing, EnvStoreEndpoint)
	}
	if c.Store.Key == "" {
		errs.Missing = append(errs.Missing, EnvStoreKey)
	}
	if c.Store.Driver == DriverMongo && (c.Store.Database == "" || c.Store.Collection == "") {
		errs.Invalid = append(errs.Invalid, "store database and collection are required")
	}
}
