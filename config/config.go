package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Storage configuration
	StorageBackend string // "memory" or "redis"
	RedisURL       string
	RedisPassword  string
	RedisDB        int
	ArchivePath    string // SQLite file for closed stats windows; empty disables archiving

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// ETA calculation
	EmaAlpha           float64
	DefaultServiceRate float64
	MinServiceRate     float64
	CarryForwardEma    bool

	// Queue configuration
	DefaultMaxCapacity int
	MeasurementWindow  time.Duration
	LockTimeout        time.Duration
	StoreTimeout       time.Duration

	// Notification configuration
	EtaNotifyThreshold  int
	PositionSweepPeriod time.Duration

	// Monitoring
	EnableMetrics bool

	// Shutdown
	ShutdownTimeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Storage
		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		ArchivePath:    getEnv("STATS_ARCHIVE_PATH", "smartqueue_stats.db"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// ETA
		EmaAlpha:           getEnvAsFloat("EMA_ALPHA", 0.3),
		DefaultServiceRate: getEnvAsFloat("DEFAULT_SERVICE_RATE", 1.0),
		MinServiceRate:     getEnvAsFloat("MIN_SERVICE_RATE", 0.1),
		CarryForwardEma:    getEnvAsBool("CARRY_FORWARD_EMA", false),

		// Queue
		DefaultMaxCapacity: getEnvAsInt("DEFAULT_MAX_CAPACITY", 100),
		MeasurementWindow:  getEnvAsDuration("MEASUREMENT_WINDOW", "60s"),
		LockTimeout:        getEnvAsDuration("QUEUE_LOCK_TIMEOUT", "5s"),
		StoreTimeout:       getEnvAsDuration("STORE_TIMEOUT", "3s"),

		// Notifications
		EtaNotifyThreshold:  getEnvAsInt("ETA_NOTIFY_THRESHOLD_MINUTES", 10),
		PositionSweepPeriod: getEnvAsDuration("POSITION_SWEEP_PERIOD", "30s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),

		// Shutdown
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", "10s"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
