package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the server's runtime settings. Values come from built-in
// defaults, then an optional YAML file, then environment variables, with
// the environment winning.
type Config struct {
	Port                    string `yaml:"port"`
	StorePath               string `yaml:"store_path"`
	SessionDBPath           string `yaml:"session_db_path"`
	PublicDir               string `yaml:"public_dir"`
	MediaDir                string `yaml:"media_dir"`
	SnapshotIntervalSeconds int    `yaml:"snapshot_interval_seconds"`
	DefaultStatsDays        int    `yaml:"default_stats_days"`
}

// defaults mirrors the original deployment layout.
func defaults() *Config {
	return &Config{
		Port:                    "3000",
		StorePath:               "wa_store.json",
		SessionDBPath:           "wa_session.db",
		PublicDir:               "public",
		MediaDir:                "public/media",
		SnapshotIntervalSeconds: 10,
		DefaultStatsDays:        1,
	}
}

// Load builds the configuration. A missing config file is fine; a
// malformed one is an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			log.Printf("Config loaded from %s", path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.StorePath = getEnv("STORE_PATH", cfg.StorePath)
	cfg.SessionDBPath = getEnv("SESSION_DB_PATH", cfg.SessionDBPath)
	cfg.PublicDir = getEnv("PUBLIC_DIR", cfg.PublicDir)
	cfg.MediaDir = getEnv("MEDIA_DIR", cfg.MediaDir)
	cfg.SnapshotIntervalSeconds = getEnvInt("SNAPSHOT_INTERVAL_SECONDS", cfg.SnapshotIntervalSeconds)
	cfg.DefaultStatsDays = getEnvInt("DEFAULT_STATS_DAYS", cfg.DefaultStatsDays)

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a
// default value.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: ignoring non-numeric %s=%q", key, value)
		return defaultValue
	}
	return n
}
