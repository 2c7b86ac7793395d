package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the daemon.
type Config struct {
	Addr          string
	DBPath        string
	LogLevel      string
	Timezone      string
	SweepSchedule string
}

const (
	defaultAddr     = ":8080"
	defaultDBPath   = "rota.db"
	defaultLogLevel = "info"
	defaultTimezone = "America/Toronto"
	// Hourly background sweep; read paths also sweep on demand.
	defaultSweepSchedule = "@every 1h"
)

// Load reads configuration from the environment, with an optional .env file
// filling in anything unset. Priority: environment > .env > defaults.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		Addr:          getEnv("ROTA_ADDR", defaultAddr),
		DBPath:        getEnv("ROTA_DB_PATH", defaultDBPath),
		LogLevel:      getEnv("ROTA_LOG_LEVEL", defaultLogLevel),
		Timezone:      getEnv("ROTA_TIMEZONE", defaultTimezone),
		SweepSchedule: getEnv("ROTA_SWEEP_SCHEDULE", defaultSweepSchedule),
	}
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return val
	}
	return defaultVal
}
