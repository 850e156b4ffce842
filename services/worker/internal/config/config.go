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

// FileConfig represents configuration loaded from YAML. Only the Google
// Vision settings of the AI section are used, for OCR of scanned pages.
type FileConfig struct {
	HealthPort       string `yaml:"healthPort"`
	LogLevel         string `yaml:"logLevel"`
	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	QueueStream      string `yaml:"queueStream"`
	QueueGroup       string `yaml:"queueGroup"`
	QueueConsumer    string `yaml:"queueConsumer"`
	QueueConcurrency int    `yaml:"queueConcurrency"`
	QueueMaxRetries  int    `yaml:"queueMaxRetries"`
	QueueRetryDelay  string `yaml:"queueRetryDelay"`
	QueueClaimIdle   string `yaml:"queueClaimIdle"`
	MaxFileBytes     int64  `yaml:"maxFileBytes"`
	OCREnabled       bool   `yaml:"ocrEnabled"`
	OCRMaxPages      int    `yaml:"ocrMaxPages"`
	OCRTimeout       string `yaml:"ocrTimeout"`

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
	// Override with environment variables
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
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
	if v := os.Getenv("QUEUE_CONSUMER"); v != "" {
		cfg.QueueConsumer = v
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueConcurrency = n
		}
	}
	if v := os.Getenv("WORKER_OCR_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OCREnabled = b
		}
	}
	cfg.StoreConfig.ApplyEnv()
	cfg.StorageConfig.ApplyEnv()
	cfg.AIConfig.ApplyEnv()
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.QueueConcurrency < 0 || cfg.QueueMaxRetries < 0 || cfg.MaxFileBytes < 0 || cfg.OCRMaxPages < 0 {
		return errors.New("config: queue and file limits must be >= 0")
	}
	for field, value := range map[string]string{
		"queueRetryDelay": cfg.QueueRetryDelay,
		"queueClaimIdle":  cfg.QueueClaimIdle,
		"ocrTimeout":      cfg.OCRTimeout,
	} {
		if _, err := ParseDuration(field, value); err != nil {
			return err
		}
	}
	if cfg.OCREnabled && strings.TrimSpace(cfg.GoogleVisionCredentialsFile) == "" && strings.TrimSpace(cfg.GoogleVisionCredentialsJSON) == "" {
		return errors.New("config: ocrEnabled requires googleVisionCredentialsFile or googleVisionCredentialsJSON")
	}
	if err := cfg.StoreConfig.Validate(); err != nil {
		return err
	}
	return cfg.StorageConfig.Validate()
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
	return dur, nil
}
