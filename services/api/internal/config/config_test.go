package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
port: "8080"
logLevel: debug
redisAddr: localhost:6379
authSecret: 0123456789abcdef0123456789abcdef
jwtLeeway: 45s
storeDriver: memory
localStorageDir: ./data/books
defaultStorage: local
aiProvider: none
corsAllowedOrigins:
  - http://localhost:3000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadInlinesSharedSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreDriver != "memory" || cfg.LocalDir != "./data/books" || cfg.AIProvider != "none" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 1 {
		t.Fatalf("cors origins = %v", cfg.CORSAllowedOrigins)
	}
	leeway, err := ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil || leeway != 45*time.Second {
		t.Fatalf("leeway = %v, %v", leeway, err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("AI_RATE_LIMIT_PER_MINUTE", "7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("LOCAL_STORAGE_DIR", "/var/lib/studyhelper")
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisAddr != "redis:6380" || cfg.AIRateLimitPerMinute != 7 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.LocalDir != "/var/lib/studyhelper" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		wantErr string
	}{
		{name: "missing port", replace: [2]string{`port: "8080"`, ""}, wantErr: "port is required"},
		{name: "short secret", replace: [2]string{"0123456789abcdef0123456789abcdef", "short"}, wantErr: "authSecret"},
		{name: "bad leeway", replace: [2]string{"45s", "soon"}, wantErr: "jwtLeeway"},
		{name: "unknown store", replace: [2]string{"storeDriver: memory", "storeDriver: sqlite"}, wantErr: "storeDriver"},
		{name: "groq without key", replace: [2]string{"aiProvider: none", "aiProvider: groq"}, wantErr: "groqAPIKey"},
	}
	t.Setenv("GROQ_API_KEY", "")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := strings.Replace(sampleConfig, tc.replace[0], tc.replace[1], 1)
			_, err := Load(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Load() err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDuration("x", ""); err != nil || d != 0 {
		t.Fatalf("empty duration = %v, %v", d, err)
	}
	if _, err := ParseDuration("x", "-1m"); err == nil {
		t.Fatalf("expected error for negative duration")
	}
	if d, err := ParseDuration("x", "10m"); err != nil || d != 10*time.Minute {
		t.Fatalf("duration = %v, %v", d, err)
	}
}
