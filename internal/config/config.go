package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs at startup. Values come from the
// environment, with a .env file as an optional convenience for local runs.
type Config struct {
	// Storage
	StoreBackend string // postgres | redis | memory
	DatabaseURL  string
	RedisAddr    string
	RedisDB      int

	// Collection verification
	EmptyThreshold  float64       // sensor reading at or below this confirms an emptied bin
	SensorLookback  time.Duration // window in which a reading can resolve a pending collection
	PendingTimeout  time.Duration // pending_sensor collections older than this fall back to driver trust
	BatteryLowLevel float64

	// Pipelines
	BinsInterval        time.Duration
	CollectionsInterval time.Duration
	SensorsInterval     time.Duration
	PerformanceInterval time.Duration

	// Maintenance
	RatioRecomputeSpec string // cron spec for derived metric ratios
	PendingSweepSpec   string // cron spec for the stale pending_sensor sweep
}

// Load reads the environment (and .env if present) into a Config.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	return &Config{
		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvInt("REDIS_DB", 0),

		EmptyThreshold:  getEnvFloat("EMPTY_THRESHOLD", 15),
		SensorLookback:  getEnvDuration("SENSOR_LOOKBACK", 2*time.Hour),
		PendingTimeout:  getEnvDuration("PENDING_TIMEOUT", 24*time.Hour),
		BatteryLowLevel: getEnvFloat("BATTERY_LOW_LEVEL", 20),

		BinsInterval:        getEnvDuration("PIPELINE_BINS_INTERVAL", 30*time.Second),
		CollectionsInterval: getEnvDuration("PIPELINE_COLLECTIONS_INTERVAL", 60*time.Second),
		SensorsInterval:     getEnvDuration("PIPELINE_SENSORS_INTERVAL", 45*time.Second),
		PerformanceInterval: getEnvDuration("PIPELINE_PERFORMANCE_INTERVAL", 120*time.Second),

		RatioRecomputeSpec: getEnv("RATIO_RECOMPUTE_SPEC", "@every 1m"),
		PendingSweepSpec:   getEnv("PENDING_SWEEP_SPEC", "@every 15m"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid value for %s: %q, using default %d", key, v, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid value for %s: %q, using default %v", key, v, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
		log.Printf("⚠️  Invalid value for %s: %q, using default %s", key, v, fallback)
	}
	return fallback
}
