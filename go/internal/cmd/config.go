package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/dbconfig"
	"github.com/mcdev12/lastcoin/go/internal/flip/orchestrator"
	"github.com/rs/zerolog"
)

const (
	persistenceMemory   = "memory"
	persistencePostgres = "postgres"
)

// Config is the process configuration. Game tuning comes from the YAML file;
// everything deployment-specific comes from the environment.
type Config struct {
	Port             string
	LogLevel         zerolog.Level
	Persistence      string
	RequireEntries   bool
	NATSURL          string
	FallbackInterval time.Duration
	Database         dbconfig.Config
	Game             orchestrator.Config
}

func loadConfig() (*Config, error) {
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	game, err := orchestrator.LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		LogLevel:         level,
		Persistence:      getEnv("PERSISTENCE", persistenceMemory),
		RequireEntries:   getEnvAsBool("REQUIRE_ENTRIES", false),
		NATSURL:          os.Getenv("NATS_URL"),
		FallbackInterval: getEnvAsDuration("FALLBACK_INTERVAL", 30*time.Second),
		Database:         dbconfig.NewConfigFromEnv(),
		Game:             game,
	}

	switch cfg.Persistence {
	case persistenceMemory, persistencePostgres:
	default:
		return nil, fmt.Errorf("unknown PERSISTENCE %q", cfg.Persistence)
	}
	if cfg.RequireEntries && cfg.Persistence != persistencePostgres {
		return nil, fmt.Errorf("REQUIRE_ENTRIES needs PERSISTENCE=%s", persistencePostgres)
	}
	return cfg, nil
}

// usesDatabase reports whether any component needs Postgres.
func (c *Config) usesDatabase() bool {
	return c.Persistence == persistencePostgres || c.RequireEntries
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
