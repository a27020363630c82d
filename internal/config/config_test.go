package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("notification-service")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Kafka.GroupID != "notification-service" {
		t.Fatalf("expected group id to default to service name, got %q", cfg.Kafka.GroupID)
	}
	if cfg.Kafka.PublishTimeout != 5*time.Second {
		t.Fatalf("unexpected publish timeout %v", cfg.Kafka.PublishTimeout)
	}
	if cfg.Consumer.BackoffInitial != time.Second || cfg.Consumer.BackoffMax != time.Minute {
		t.Fatalf("unexpected backoff %v..%v", cfg.Consumer.BackoffInitial, cfg.Consumer.BackoffMax)
	}
	if cfg.Kafka.UserTopic != "users-events" {
		t.Fatalf("unexpected user topic %q", cfg.Kafka.UserTopic)
	}
	if cfg.DeadLetter.Sink != SinkLog {
		t.Fatalf("unexpected sink %q", cfg.DeadLetter.Sink)
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("redis should be disabled without a connection string")
	}
	if cfg.UserServiceURL != "http://user-service:8080" {
		t.Fatalf("unexpected user service url %q", cfg.UserServiceURL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PUBLISH_TIMEOUT", "750ms")
	t.Setenv("DEBUG", "true")
	t.Setenv("DEAD_LETTER_SINK", "Kafka")
	t.Setenv("REDIS_CONNECTION_STRING", "redis://localhost:6379/2")

	cfg, err := Load("divination-service")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.PublishTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected publish timeout %v", cfg.Kafka.PublishTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("DEBUG should raise log level, got %q", cfg.Log.Level)
	}
	if cfg.DeadLetter.Sink != SinkKafka {
		t.Fatalf("unexpected sink %q", cfg.DeadLetter.Sink)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no brokers", map[string]string{"KAFKA_BROKERS": " , "}, "KAFKA_BROKERS"},
		{"bad sink", map[string]string{"DEAD_LETTER_SINK": "s3"}, "DEAD_LETTER_SINK"},
		{"table without storage", map[string]string{"DEAD_LETTER_SINK": "table"}, "STORAGE_CONNECTION_STRING"},
		{"test mode without secret", map[string]string{"AUTH0_TEST_MODE": "1"}, "TEST_JWT_SECRET"},
		{"inverted backoff", map[string]string{"CONSUMER_BACKOFF_INITIAL": "2m"}, "CONSUMER_BACKOFF_MAX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("svc")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireAuth(); err == nil {
		t.Fatalf("expected missing Auth0 config")
	}
	cfg.Auth = AuthConfig{TestMode: true, TestSecret: "s"}
	if err := cfg.RequireAuth(); err != nil {
		t.Fatalf("test mode should satisfy auth: %v", err)
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("cache.example.net:6380,password=secret,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "cache.example.net:6380" || opts.Password != "secret" || opts.TLSConfig == nil {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = RedisOptions("redis://:pw@localhost:6379/3")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.DB != 3 || opts.Password != "pw" {
		t.Fatalf("unexpected url options %+v", opts)
	}

	if _, err := RedisOptions(""); err == nil {
		t.Fatalf("expected error for empty string")
	}
}
