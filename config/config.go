package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the marine scan pipeline service.
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Imagery provider configuration
	ImageryProvider     string // "sentinel" or "stub"
	ImageryTokenURL     string
	ImageryProcessURL   string
	ImageryClientID     string
	ImageryClientSecret string

	// Vision analyzer configuration
	VisionProvider string // "openai" or "stub"
	OpenAIAPIKey   string
	OpenAIModel    string

	// Scheduling
	ScanInterval     time.Duration
	AnalysisInterval time.Duration

	// Pipeline pacing and limits
	AreaPacing       time.Duration
	ImagePacing      time.Duration
	AnalysisBatch    int
	ExternalTimeout  time.Duration
	ScanRecencyHours int

	// RabbitMQ (optional detection event publishing)
	AMQPURL            string
	AMQPExchange       string
	AMQPDetectionRoute string
}

// Load loads configuration from the environment, honoring a local .env
// file when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret"),
		DBName:     getEnv("DB_NAME", "marinescan"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		// Imagery defaults
		ImageryProvider:     getEnv("IMAGERY_PROVIDER", "sentinel"),
		ImageryTokenURL:     getEnv("IMAGERY_TOKEN_URL", "https://services.sentinel-hub.com/oauth/token"),
		ImageryProcessURL:   getEnv("IMAGERY_PROCESS_URL", "https://services.sentinel-hub.com/api/v1/process"),
		ImageryClientID:     getEnv("IMAGERY_CLIENT_ID", ""),
		ImageryClientSecret: getEnv("IMAGERY_CLIENT_SECRET", ""),

		// Vision defaults
		VisionProvider: getEnv("VISION_PROVIDER", "openai"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o"),

		// Scheduling defaults: full scan daily, batch analysis hourly
		ScanInterval:     getDurationEnv("SCAN_INTERVAL", 24*time.Hour),
		AnalysisInterval: getDurationEnv("ANALYSIS_INTERVAL", time.Hour),

		// Pacing defaults
		AreaPacing:       getDurationEnv("AREA_PACING", 5*time.Second),
		ImagePacing:      getDurationEnv("IMAGE_PACING", 2*time.Second),
		AnalysisBatch:    getIntEnv("ANALYSIS_BATCH", 20),
		ExternalTimeout:  getDurationEnv("EXTERNAL_TIMEOUT", 60*time.Second),
		ScanRecencyHours: getIntEnv("SCAN_RECENCY_HOURS", 24),

		// RabbitMQ defaults (publishing disabled unless URL is set)
		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "marinescan"),
		AMQPDetectionRoute: getEnv("AMQP_DETECTION_ROUTING_KEY", "detections"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
