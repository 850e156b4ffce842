package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"studyhelper/internal/bootstrap"
)

// ConfigPath is the default config file, overridable with CONFIG_PATH.
var ConfigPath = configPathFromEnv()

func configPathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return "config.yaml"
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                 string   `yaml:"port"`
	LogLevel             string   `yaml:"logLevel"`
	CORSAllowedOrigins   []string `yaml:"corsAllowedOrigins"`
	TrustedProxyCIDRs    []string `yaml:"trustedProxyCidrs"`
	RedisAddr            string   `yaml:"redisAddr"`
	RedisPassword        string   `yaml:"redisPassword"`
	QueueStream          string   `yaml:"queueStream"`
	QueueMaxRetries      int      `yaml:"queueMaxRetries"`
	AuthSecret           string   `yaml:"authSecret"`
	JWTIssuer            string   `yaml:"jwtIssuer"`
	JWTAudience          string   `yaml:"jwtAudience"`
	JWTLeeway            string   `yaml:"jwtLeeway"`
	FileTokenSecret      string   `yaml:"fileTokenSecret"`
	FileTokenTTL         string   `yaml:"fileTokenTTL"`
	StorageURLExpiry     string   `yaml:"storageURLExpiry"`
	AIRateLimitPerMinute int      `yaml:"aiRateLimitPerMinute"`
	ContextWindowChars   int      `yaml:"contextWindowChars"`
	QuestionHistoryLimit int      `yaml:"questionHistoryLimit"`
	MaxUploadBytes       int64    `yaml:"maxUploadBytes"`

	bootstrap.StoreConfig   `yaml:",inline"`
	bootstrap.StorageConfig `yaml:",inline"`
	bootstrap.AIConfig      `yaml:",inline"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = bootstrap.SplitCSV(v)
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = bootstrap.SplitCSV(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("QUEUE_STREAM"); v != "" {
		cfg.QueueStream = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("FILE_TOKEN_SECRET"); v != "" {
		cfg.FileTokenSecret = v
	}
	if v := os.Getenv("AI_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AIRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	cfg.StoreConfig.ApplyEnv()
	cfg.StorageConfig.ApplyEnv()
	cfg.AIConfig.ApplyEnv()
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for the job queue and AI rate limiting")
	}
	if len(strings.TrimSpace(cfg.AuthSecret)) < 32 {
		return errors.New("config: authSecret must be at least 32 bytes (set in config.yaml or AUTH_SECRET)")
	}
	if secret := strings.TrimSpace(cfg.FileTokenSecret); secret != "" && len(secret) < 32 {
		return errors.New("config: fileTokenSecret must be at least 32 bytes")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return err
	}
	if _, err := ParseDuration("fileTokenTTL", cfg.FileTokenTTL); err != nil {
		return err
	}
	if _, err := ParseDuration("storageURLExpiry", cfg.StorageURLExpiry); err != nil {
		return err
	}
	if cfg.AIRateLimitPerMinute < 0 || cfg.ContextWindowChars < 0 || cfg.QuestionHistoryLimit < 0 || cfg.MaxUploadBytes < 0 {
		return errors.New("config: limits must be >= 0")
	}
	if err := cfg.StoreConfig.Validate(); err != nil {
		return err
	}
	if err := cfg.StorageConfig.Validate(); err != nil {
		return err
	}
	return cfg.AIConfig.Validate()
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// ParseDuration parses an optional duration field; empty means zero.
func ParseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", field, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", field)
	}
	return dur, nil
}
