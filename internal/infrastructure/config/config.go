package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the telemetry core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	API      APIConfig      `yaml:"api"`
	Live     LiveConfig     `yaml:"live"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
// ClientID is the base identity; each collector appends its own suffix.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// MaxAttempts is the number of consecutive reconnect attempts after which
// a collector gives up. 0 means unlimited.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// RedisConfig contains the connection settings for the durable queue store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	Timeout   int    `yaml:"timeout"`
}

// QueueConfig contains job queue settings for both lanes.
type QueueConfig struct {
	// Backend selects the job store: "redis" (durable) or "memory".
	Backend string `yaml:"backend"`

	// IngestBuffer is the capacity of the hand-off channel between a
	// collector's transport callback and the queue.
	IngestBuffer int `yaml:"ingest_buffer"`

	History  LaneConfig `yaml:"history"`
	Realtime LaneConfig `yaml:"realtime"`
}

// LaneConfig configures one queue lane.
type LaneConfig struct {
	Name          string `yaml:"name"`
	Concurrency   int    `yaml:"concurrency"`
	MaxAttempts   int    `yaml:"max_attempts"`
	BackoffMS     int    `yaml:"backoff_ms"`
	Priority      int    `yaml:"priority"`
	KeepCompleted int    `yaml:"keep_completed"`
	KeepFailed    int    `yaml:"keep_failed"`
	PollInterval  int    `yaml:"poll_interval_ms"`
	LeaseTimeout  int    `yaml:"lease_timeout"`
}

// Backoff returns the base retry delay as a Duration.
func (l LaneConfig) Backoff() time.Duration {
	return time.Duration(l.BackoffMS) * time.Millisecond
}

// Poll returns the idle poll interval as a Duration.
func (l LaneConfig) Poll() time.Duration {
	return time.Duration(l.PollInterval) * time.Millisecond
}

// Lease returns the job lease timeout as a Duration.
func (l LaneConfig) Lease() time.Duration {
	return time.Duration(l.LeaseTimeout) * time.Second
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
// Write applies to ordinary requests only; live streams clear their deadline.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LiveConfig contains live stream (SSE and WebSocket) settings.
type LiveConfig struct {
	HeartbeatInterval int `yaml:"heartbeat_interval"`
	SendBuffer        int `yaml:"send_buffer"`
	MaxMessageSize    int `yaml:"max_message_size"`
	PongTimeout       int `yaml:"pong_timeout"`
}

// Heartbeat returns the heartbeat interval as a Duration.
func (l LiveConfig) Heartbeat() time.Duration {
	return time.Duration(l.HeartbeatInterval) * time.Second
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// KafkaConfig contains the dead-letter publisher settings.
type KafkaConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Brokers         []string `yaml:"brokers"`
	DeadLetterTopic string   `yaml:"dead_letter_topic"`
	RequiredAcks    string   `yaml:"required_acks"`
	Compression     string   `yaml:"compression"`
	WriteTimeout    int      `yaml:"write_timeout"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TELEMETRY_SECTION_KEY
// For example: TELEMETRY_DATABASE_PATH, TELEMETRY_REDIS_ADDR
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/telemetry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "data-collector",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     60,
				MaxAttempts:  10,
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			DB:        0,
			KeyPrefix: "telemetry",
			Timeout:   5,
		},
		Queue: QueueConfig{
			Backend:      "redis",
			IngestBuffer: 1024,
			History: LaneConfig{
				Name:          "history-data-queue",
				Concurrency:   5,
				MaxAttempts:   3,
				BackoffMS:     2000,
				Priority:      2,
				KeepCompleted: 100,
				KeepFailed:    500,
				PollInterval:  250,
				LeaseTimeout:  30,
			},
			Realtime: LaneConfig{
				Name:          "realtime-data-queue",
				Concurrency:   5,
				MaxAttempts:   3,
				BackoffMS:     1000,
				Priority:      1,
				KeepCompleted: 100,
				KeepFailed:    500,
				PollInterval:  100,
				LeaseTimeout:  30,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  120,
			},
		},
		Live: LiveConfig{
			HeartbeatInterval: 30,
			SendBuffer:        256,
			MaxMessageSize:    4096,
			PongTimeout:       10,
		},
		Kafka: KafkaConfig{
			DeadLetterTopic: "telemetry.dead-letter",
			RequiredAcks:    "all",
			WriteTimeout:    10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TELEMETRY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("TELEMETRY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TELEMETRY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TELEMETRY_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("TELEMETRY_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("TELEMETRY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TELEMETRY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Redis
	if v := os.Getenv("TELEMETRY_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TELEMETRY_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Queue
	if v := os.Getenv("TELEMETRY_QUEUE_BACKEND"); v != "" {
		cfg.Queue.Backend = v
	}

	// API
	if v := os.Getenv("TELEMETRY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TELEMETRY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("TELEMETRY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Kafka
	if v := os.Getenv("TELEMETRY_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	// Logging
	if v := os.Getenv("TELEMETRY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("TELEMETRY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect.max_attempts cannot be negative")
	}

	switch c.Queue.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required when queue.backend is redis")
		}
	case "memory":
	default:
		errs = append(errs, "queue.backend must be redis or memory")
	}
	errs = append(errs, c.Queue.History.validate("queue.history")...)
	errs = append(errs, c.Queue.Realtime.validate("queue.realtime")...)

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Live.HeartbeatInterval < 1 {
		errs = append(errs, "live.heartbeat_interval must be at least 1 second")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka.brokers is required when kafka is enabled")
	}

	// JWT secret is required: it is the only thing standing between a
	// caller and every site's live data.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set TELEMETRY_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (l LaneConfig) validate(prefix string) []string {
	var errs []string
	if l.Name == "" {
		errs = append(errs, prefix+".name is required")
	}
	if l.Concurrency < 1 {
		errs = append(errs, prefix+".concurrency must be at least 1")
	}
	if l.MaxAttempts < 1 {
		errs = append(errs, prefix+".max_attempts must be at least 1")
	}
	if l.BackoffMS < 0 {
		errs = append(errs, prefix+".backoff_ms cannot be negative")
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
