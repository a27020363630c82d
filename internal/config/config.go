// Package config loads service configuration from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Dead-letter sink kinds accepted in DEAD_LETTER_SINK.
const (
	SinkLog   = "log"
	SinkKafka = "kafka"
	SinkTable = "table"
	SinkQueue = "queue"
)

// Config is the configuration shared by all services. Sections a service does
// not use are simply ignored by it.
type Config struct {
	Service string
	Debug   bool

	Log        LogConfig
	HTTP       HTTPConfig
	Kafka      KafkaConfig
	Consumer   ConsumerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	DeadLetter DeadLetterConfig
	Auth       AuthConfig

	// UserServiceURL is where the divination service looks up usernames.
	UserServiceURL string
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type KafkaConfig struct {
	Brokers        []string
	GroupID        string
	SpreadTopic    string
	InterpTopic    string
	UserTopic      string
	PublishTimeout time.Duration
	Partitions     int
	Replication    int
}

// ConsumerConfig holds reconnect and retry timings for subscriptions.
type ConsumerConfig struct {
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	RetryInitial    time.Duration
	RetryMax        time.Duration
	PartitionBuffer int
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
}

type RedisConfig struct {
	// ConnectionString is either a redis:// URL or the Azure
	// "host:port,password=...,ssl=True" form. Empty disables Redis.
	ConnectionString string
	Channel          string
	UnreadTTL        time.Duration
}

// Enabled reports whether a Redis connection string was provided.
func (r RedisConfig) Enabled() bool { return r.ConnectionString != "" }

type DeadLetterConfig struct {
	Sink                    string
	TopicSuffix             string
	StorageConnectionString string
	Table                   string
	Queue                   string
}

type AuthConfig struct {
	Domain     string
	Audience   string
	TestMode   bool
	TestSecret string
}

// Load reads the configuration for service from environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)
	v.AutomaticEnv()

	cfg := &Config{
		Service: service,
		Debug:   v.GetBool("DEBUG"),
		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
		HTTP: HTTPConfig{
			Addr:            v.GetString("HTTP_ADDR"),
			ShutdownTimeout: v.GetDuration("HTTP_SHUTDOWN_TIMEOUT"),
		},
		Kafka: KafkaConfig{
			Brokers:        splitList(v.GetString("KAFKA_BROKERS")),
			GroupID:        v.GetString("KAFKA_GROUP_ID"),
			SpreadTopic:    v.GetString("SPREAD_TOPIC"),
			InterpTopic:    v.GetString("INTERPRETATION_TOPIC"),
			UserTopic:      v.GetString("USER_TOPIC"),
			PublishTimeout: v.GetDuration("PUBLISH_TIMEOUT"),
			Partitions:     v.GetInt("KAFKA_PARTITIONS"),
			Replication:    v.GetInt("KAFKA_REPLICATION"),
		},
		Consumer: ConsumerConfig{
			BackoffInitial:  v.GetDuration("CONSUMER_BACKOFF_INITIAL"),
			BackoffMax:      v.GetDuration("CONSUMER_BACKOFF_MAX"),
			RetryInitial:    v.GetDuration("HANDLER_RETRY_INITIAL"),
			RetryMax:        v.GetDuration("HANDLER_RETRY_MAX"),
			PartitionBuffer: v.GetInt("PARTITION_BUFFER"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("DATABASE_DSN"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
			SlowThreshold:   v.GetDuration("DATABASE_SLOW_THRESHOLD"),
		},
		Redis: RedisConfig{
			ConnectionString: v.GetString("REDIS_CONNECTION_STRING"),
			Channel:          v.GetString("REDIS_CHANNEL"),
			UnreadTTL:        v.GetDuration("UNREAD_CACHE_TTL"),
		},
		DeadLetter: DeadLetterConfig{
			Sink:                    strings.ToLower(v.GetString("DEAD_LETTER_SINK")),
			TopicSuffix:             v.GetString("DEAD_LETTER_TOPIC_SUFFIX"),
			StorageConnectionString: v.GetString("STORAGE_CONNECTION_STRING"),
			Table:                   v.GetString("DEAD_LETTER_TABLE"),
			Queue:                   v.GetString("DEAD_LETTER_QUEUE"),
		},
		Auth: AuthConfig{
			Domain:     v.GetString("AUTH0_DOMAIN"),
			Audience:   v.GetString("AUTH0_AUDIENCE"),
			TestMode:   v.GetString("AUTH0_TEST_MODE") == "1",
			TestSecret: v.GetString("TEST_JWT_SECRET"),
		},
	}
	cfg.UserServiceURL = v.GetString("USER_SERVICE_URL")
	if cfg.Debug && v.GetString("LOG_LEVEL") == "info" {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 10)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_ID", service)
	v.SetDefault("SPREAD_TOPIC", "spread-events")
	v.SetDefault("INTERPRETATION_TOPIC", "interpretation-events")
	v.SetDefault("USER_TOPIC", "users-events")
	v.SetDefault("PUBLISH_TIMEOUT", 5*time.Second)
	v.SetDefault("KAFKA_PARTITIONS", 3)
	v.SetDefault("KAFKA_REPLICATION", 1)

	v.SetDefault("CONSUMER_BACKOFF_INITIAL", time.Second)
	v.SetDefault("CONSUMER_BACKOFF_MAX", time.Minute)
	v.SetDefault("HANDLER_RETRY_INITIAL", time.Second)
	v.SetDefault("HANDLER_RETRY_MAX", 30*time.Second)
	v.SetDefault("PARTITION_BUFFER", 64)

	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute)
	v.SetDefault("DATABASE_SLOW_THRESHOLD", 200*time.Millisecond)

	v.SetDefault("REDIS_CHANNEL", "notifications")
	v.SetDefault("UNREAD_CACHE_TTL", 10*time.Minute)

	v.SetDefault("DEAD_LETTER_SINK", SinkLog)
	v.SetDefault("DEAD_LETTER_TOPIC_SUFFIX", ".dlq")
	v.SetDefault("DEAD_LETTER_TABLE", "DeadLetters")
	v.SetDefault("DEAD_LETTER_QUEUE", "dead-letters")

	v.SetDefault("USER_SERVICE_URL", "http://user-service:8080")
}

// Validate checks values every service depends on.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is empty"))
	}
	if c.Kafka.PublishTimeout <= 0 {
		errs = append(errs, errors.New("PUBLISH_TIMEOUT must be positive"))
	}
	if c.Consumer.BackoffInitial <= 0 || c.Consumer.BackoffMax < c.Consumer.BackoffInitial {
		errs = append(errs, errors.New("consumer backoff must be positive and CONSUMER_BACKOFF_MAX >= CONSUMER_BACKOFF_INITIAL"))
	}
	if c.Consumer.PartitionBuffer <= 0 {
		errs = append(errs, errors.New("PARTITION_BUFFER must be greater than zero"))
	}
	switch c.DeadLetter.Sink {
	case SinkLog, SinkKafka:
	case SinkTable, SinkQueue:
		if c.DeadLetter.StorageConnectionString == "" {
			errs = append(errs, fmt.Errorf("STORAGE_CONNECTION_STRING is required for dead-letter sink %q", c.DeadLetter.Sink))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DEAD_LETTER_SINK %q", c.DeadLetter.Sink))
	}
	if c.Auth.TestMode && c.Auth.TestSecret == "" {
		errs = append(errs, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1"))
	}
	if c.Redis.Enabled() {
		if _, err := RedisOptions(c.Redis.ConnectionString); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequireDatabase reports an error when no DSN was configured.
func (c *Config) RequireDatabase() error {
	if c.Database.DSN == "" {
		return errors.New("missing database config: DATABASE_DSN")
	}
	return nil
}

// RequireAuth reports an error when neither Auth0 nor test mode is configured.
func (c *Config) RequireAuth() error {
	if c.Auth.TestMode {
		return nil
	}
	if c.Auth.Domain == "" || c.Auth.Audience == "" {
		return errors.New("missing Auth0 config")
	}
	return nil
}

// RedisOptions parses a redis:// URL or an Azure style connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("missing redis config")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	addr := strings.TrimSpace(parts[0])
	if addr == "" || strings.Contains(addr, "=") {
		return nil, fmt.Errorf("invalid redis connection string")
	}
	opts := &redis.Options{Addr: addr}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
