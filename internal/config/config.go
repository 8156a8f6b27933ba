// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Provider    ProviderConfig
	Cache       CacheConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// ProviderConfig holds external provider configuration
type ProviderConfig struct {
	OverpassURL       string
	IsochroneURL      string
	IsochroneAPIKey   string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// CacheConfig holds spatial cache configuration
type CacheConfig struct {
	// FreshnessWindow is shared by the POI and coverage stores so a cached
	// region and its POIs expire in lockstep.
	FreshnessWindow    time.Duration
	ReconcileWorkers   int
	ReconcileQueueSize int
	FetchTimeout       time.Duration
	UpdatesTopic       string
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "walkabout"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Provider: ProviderConfig{
			OverpassURL:       getEnv("PROVIDER_OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
			IsochroneURL:      getEnv("PROVIDER_ISOCHRONE_URL", "https://api.openrouteservice.org"),
			IsochroneAPIKey:   getEnv("PROVIDER_ISOCHRONE_API_KEY", ""),
			Timeout:           getEnvAsDuration("PROVIDER_TIMEOUT", 25*time.Second),
			RequestsPerSecond: getEnvAsFloat("PROVIDER_REQUESTS_PER_SECOND", 1.0),
		},
		Cache: CacheConfig{
			FreshnessWindow:    getEnvAsDuration("CACHE_FRESHNESS_WINDOW", 30*24*time.Hour),
			ReconcileWorkers:   getEnvAsInt("CACHE_RECONCILE_WORKERS", 2),
			ReconcileQueueSize: getEnvAsInt("CACHE_RECONCILE_QUEUE_SIZE", 64),
			FetchTimeout:       getEnvAsDuration("CACHE_FETCH_TIMEOUT", 60*time.Second),
			UpdatesTopic:       getEnv("CACHE_UPDATES_TOPIC", "poi.updates"),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Cache.FreshnessWindow <= 0 {
		return fmt.Errorf("cache freshness window must be positive")
	}

	if config.Provider.OverpassURL == "" {
		return fmt.Errorf("overpass provider URL must be set")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
