package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/telemetry-core/internal/infrastructure/config"
	"github.com/nerrad567/telemetry-core/internal/queue"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv(configEnvVar, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with a missing config file")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing jwt secret",
			content: `
database:
  path: "` + filepath.Join(t.TempDir(), "t.db") + `"
queue:
  backend: memory
`,
			want: "security.jwt.secret is required",
		},
		{
			name: "unknown queue backend",
			content: `
queue:
  backend: rabbit
security:
  jwt:
    secret: "0123456789abcdef0123456789abcdef"
`,
			want: "queue.backend must be redis or memory",
		},
		{
			name:    "malformed yaml",
			content: "queue: [",
			want:    "parsing config file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(configEnvVar, writeConfig(t, tt.content))
			t.Setenv("TELEMETRY_JWT_SECRET", "")

			err := run(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(configEnvVar, "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv(configEnvVar, "/etc/telemetry/config.yaml")
	if got := getConfigPath(); got != "/etc/telemetry/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestOpenQueueStore(t *testing.T) {
	cfg := &config.Config{Queue: config.QueueConfig{Backend: "memory"}}
	store, err := openQueueStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openQueueStore(memory) error = %v", err)
	}
	if _, ok := store.(*queue.MemoryStore); !ok {
		t.Errorf("openQueueStore(memory) = %T, want *queue.MemoryStore", store)
	}

	cfg.Queue.Backend = "sqs"
	if _, err := openQueueStore(context.Background(), cfg); err == nil {
		t.Error("openQueueStore(sqs) should fail")
	}
}

func TestDefaultConfigFileLoads(t *testing.T) {
	t.Setenv("TELEMETRY_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := config.Load(filepath.Join("..", "..", defaultConfigPath))
	if err != nil {
		t.Fatalf("loading shipped config: %v", err)
	}
	if cfg.Queue.History.Name != "history-data-queue" || cfg.Queue.Realtime.Name != "realtime-data-queue" {
		t.Errorf("lane names = %q, %q", cfg.Queue.History.Name, cfg.Queue.Realtime.Name)
	}
}
