package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad_Defaults 测试配置文件缺失时使用默认值。
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("COSMOS_CONNECTION_STRING", "")
	t.Setenv("FUNCTIONS_CUSTOMHANDLER_PORT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Triggers.Queue.Function != "queue-function" {
		t.Errorf("queue function = %q", cfg.Triggers.Queue.Function)
	}
	if cfg.Triggers.EventStream.Function != "kafka-function" {
		t.Errorf("event stream function = %q", cfg.Triggers.EventStream.Function)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.DocumentStore.ConnectionString != "" {
		t.Errorf("connection string should be empty, got %q", cfg.DocumentStore.ConnectionString)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9000
  shutdown_timeout: 5s
document_store:
  driver: mongo
  connection_string: mongodb://from-file
triggers:
  queue:
    driver: redis
    redis:
      address: localhost:6379
  timers:
    - function: logging_function
      schedule: "0 */5 * * * *"
logging:
  level: debug
  format: text
`)
	t.Setenv("COSMOS_CONNECTION_STRING", "mongodb://from-env")
	t.Setenv("NIMBUS_REDIS_PASSWORD", "secret")
	t.Setenv("FUNCTIONS_CUSTOMHANDLER_PORT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("HTTPPort = %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.DocumentStore.ConnectionString != "mongodb://from-env" {
		t.Errorf("connection string = %q", cfg.DocumentStore.ConnectionString)
	}
	if cfg.Triggers.Queue.Redis.Password != "secret" {
		t.Errorf("redis password = %q", cfg.Triggers.Queue.Redis.Password)
	}
	if cfg.Triggers.Queue.Redis.Queue != "tasks" {
		t.Errorf("redis queue = %q", cfg.Triggers.Queue.Redis.Queue)
	}
	if len(cfg.Triggers.Timers) != 1 || cfg.Triggers.Timers[0].Function != "logging_function" {
		t.Errorf("timers = %+v", cfg.Triggers.Timers)
	}
}

func TestLoad_ConnectionStringFromFile(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "conn")
	if err := os.WriteFile(secret, []byte("mongodb://secret-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COSMOS_CONNECTION_STRING", "mongodb://plain-env")
	t.Setenv("COSMOS_CONNECTION_STRING_FILE", secret)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DocumentStore.ConnectionString != "mongodb://secret-file" {
		t.Errorf("connection string = %q", cfg.DocumentStore.ConnectionString)
	}
}

func TestLoad_EventHubConnectionString(t *testing.T) {
	t.Setenv("EVENTHUB_CONNECTION_STRING", "Endpoint=sb://ns.servicebus.windows.net/;SharedAccessKeyName=k;SharedAccessKey=v")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sasl := cfg.Triggers.EventStream.SASL
	if !sasl.Enabled || sasl.User != "$ConnectionString" || sasl.Password == "" {
		t.Errorf("sasl = %+v", sasl)
	}
	if !cfg.Triggers.EventStream.TLS {
		t.Error("expected TLS enabled")
	}
}

// TestValidate 测试各类非法配置会被拒绝。
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "server:\n  http_port: 70000\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad store driver", "document_store:\n  driver: cassandra\n"},
		{"nats without url", "triggers:\n  queue:\n    driver: nats\n"},
		{"unknown queue driver", "triggers:\n  queue:\n    driver: sqs\n"},
		{"kafka without brokers", "triggers:\n  event_stream:\n    enabled: true\n    topic: t\n"},
		{"timer without schedule", "triggers:\n  timers:\n    - function: logging_function\n"},
		{"sample rate", "telemetry:\n  sample_rate: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EVENTHUB_CONNECTION_STRING", "")
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path, cfg)
	var got string
	w.OnChange(func(c *Config) { got = c.Logging.Level })

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got != "debug" {
		t.Errorf("callback level = %q, want debug", got)
	}
	if w.Config().Logging.Level != "debug" {
		t.Errorf("current level = %q", w.Config().Logging.Level)
	}

	if err := os.WriteFile(path, []byte("logging:\n  format: xml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Reload(); err == nil {
		t.Fatal("expected reload error for invalid config")
	}
	if w.Config().Logging.Level != "debug" {
		t.Error("invalid reload must keep previous config")
	}
}
