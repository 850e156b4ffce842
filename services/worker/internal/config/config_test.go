package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "4")
	cfg, err := Load(writeConfig(t, `
redisAddr: localhost:6379
queueConcurrency: 2
queueRetryDelay: 5s
storeDriver: memory
localStorageDir: ./data/books
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueueConcurrency != 4 || cfg.LocalDir != "./data/books" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "redis", body: "storeDriver: memory\nlocalStorageDir: x\n", wantErr: "redisAddr"},
		{name: "duration", body: "redisAddr: r:6379\nstoreDriver: memory\nlocalStorageDir: x\nocrTimeout: later\n", wantErr: "ocrTimeout"},
		{name: "ocr credentials", body: "redisAddr: r:6379\nstoreDriver: memory\nlocalStorageDir: x\nocrEnabled: true\n", wantErr: "ocrEnabled"},
		{name: "storage", body: "redisAddr: r:6379\nstoreDriver: memory\n", wantErr: "storage backend"},
	}
	t.Setenv("REDIS_ADDR", "")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Load() err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
