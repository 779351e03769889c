// Package config loads process configuration from environment variables,
// with an optional YAML file to override defaults, in the shape of the
// teacher's getEnv/getEnvInt helpers (api/cmd/main.go) generalized into a
// typed struct.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vsekai/signaling/internal/signaling"
)

// Config holds everything the signaling server needs to boot (spec.md §6
// expansion: process configuration).
type Config struct {
	BindAddr   string        `yaml:"bind_addr"`
	MaxLobbies int           `yaml:"max_lobbies"`
	MaxPeers   int           `yaml:"max_peers"`
	SealGrace  time.Duration `yaml:"seal_grace"`
	LogLevel   string        `yaml:"log_level"`
	LogPretty  bool          `yaml:"log_pretty"`
}

// Default returns the configuration spec.md §6 names as defaults (bind
// address aside, which is an external collaborator concern the spec leaves
// unspecified).
func Default() Config {
	return Config{
		BindAddr:   ":4000",
		MaxLobbies: signaling.DefaultMaxLobbies,
		MaxPeers:   signaling.DefaultMaxPeers,
		SealGrace:  10 * time.Second,
		LogLevel:   "info",
		LogPretty:  false,
	}
}

// Load builds a Config from its defaults, an optional YAML file named by
// SIGNALING_CONFIG_FILE, and environment variable overrides, in that
// precedence order (env wins). This mirrors the teacher's getEnv/getEnvInt
// pattern in api/cmd/main.go, with the YAML layer grounded on the teacher's
// use of gopkg.in/yaml.v3 to parse manifests in api/internal/sync/parser.go.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("SIGNALING_CONFIG_FILE"); path != "" {
		if err := mergeYAMLFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	cfg.BindAddr = getEnv("SIGNALING_BIND_ADDR", cfg.BindAddr)
	cfg.MaxLobbies = getEnvInt("SIGNALING_MAX_LOBBIES", cfg.MaxLobbies)
	cfg.MaxPeers = getEnvInt("SIGNALING_MAX_PEERS", cfg.MaxPeers)
	cfg.SealGrace = getEnvDuration("SIGNALING_SEAL_GRACE", cfg.SealGrace)
	cfg.LogLevel = getEnv("SIGNALING_LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = getEnvBool("SIGNALING_LOG_PRETTY", cfg.LogPretty)

	return cfg, nil
}

func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
