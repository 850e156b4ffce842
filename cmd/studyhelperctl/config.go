package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"studyhelper/internal/bootstrap"
)

// cliConfig is the subset of the api config file the CLI needs. Unknown keys
// are ignored so the same config.yaml serves both.
type cliConfig struct {
	LogLevel      string `yaml:"logLevel"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	QueueStream   string `yaml:"queueStream"`

	bootstrap.StoreConfig `yaml:",inline"`
}

func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("CONFIG_PATH")); p != "" {
		return p
	}
	return "config.yaml"
}

func loadConfig(path string) (cliConfig, error) {
	var cfg cliConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cliConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only setups
	default:
		return cliConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := strings.TrimSpace(os.Getenv("QUEUE_STREAM")); v != "" {
		cfg.QueueStream = v
	}
	cfg.StoreConfig.ApplyEnv()

	if err := cfg.StoreConfig.Validate(); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}
