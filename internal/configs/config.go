package configs

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type HTTPConfig struct {
	Port           string
	AllowedOrigins []string
}

type StreamConfig struct {
	Enabled bool
	Addr    string
}

type SearchConfig struct {
	QueueCapacity   int
	SourceTimeout   time.Duration
	RandomDelay     time.Duration
	Sources         []string
	ResultRetention time.Duration
}

type CraigslistConfig struct {
	Location string
}

type RabbitMQConfig struct {
	Enabled bool
	URL     string
	// MirrorPoll also publishes events of HTTP searches to the broker
	MirrorPoll bool
}

type StdoutLogConfig struct {
	Level  string
	IsJSON bool
}

type FluentBitConfig struct {
	Host    string
	Port    int
	Enabled bool
	Level   string
}

// AppConfig holds the whole configuration of the service
type AppConfig struct {
	AppName         string
	HTTP            HTTPConfig
	Stream          StreamConfig
	Search          SearchConfig
	Craigslist      CraigslistConfig
	RabbitMQ        RabbitMQConfig
	FluentBit       FluentBitConfig
	StdoutLogger    StdoutLogConfig
	ShutdownTimeout time.Duration
}

// LoadConfig reads the configuration from the environment. A .env file is
// loaded first when present; a missing one is not an error.
func LoadConfig(envPath ...string) (*AppConfig, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath...)
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		log.Printf("Info: Could not load .env file (path: %v): %v. Using process environment.\n", envPath, err)
	}

	cfg := &AppConfig{}

	cfg.AppName = getEnvAsString("APP_NAME", "used-item-finder")

	cfg.HTTP.Port = getEnvAsString("HTTP_PORT", "8080")
	cfg.HTTP.AllowedOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"})

	cfg.Stream.Enabled = getEnvAsBool("STREAM_ENABLED", true)
	cfg.Stream.Addr = getEnvAsString("STREAM_ADDR", ":5555")

	cfg.Search.QueueCapacity = getEnvAsInt("QUEUE_CAPACITY", 100)
	if cfg.Search.QueueCapacity <= 0 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", cfg.Search.QueueCapacity)
	}
	cfg.Search.SourceTimeout = getEnvAsDuration("SOURCE_TIMEOUT", 30*time.Second)
	if cfg.Search.SourceTimeout <= 0 {
		return nil, fmt.Errorf("SOURCE_TIMEOUT must be positive, got %s", cfg.Search.SourceTimeout)
	}
	cfg.Search.RandomDelay = getEnvAsDuration("SOURCE_RANDOM_DELAY", time.Second)
	cfg.Search.Sources = getEnvAsList("SOURCES", []string{"craigslist", "ebay", "offerup"})
	if len(cfg.Search.Sources) == 0 {
		return nil, fmt.Errorf("SOURCES must name at least one source")
	}
	cfg.Search.ResultRetention = getEnvAsDuration("RESULT_RETENTION", time.Hour)

	cfg.Craigslist.Location = getEnvAsString("CRAIGSLIST_LOCATION", "chicago")

	cfg.RabbitMQ.Enabled = getEnvAsBool("RABBITMQ_ENABLED", false)
	if cfg.RabbitMQ.Enabled {
		cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")
		if cfg.RabbitMQ.URL == "" {
			return nil, fmt.Errorf("RABBITMQ_URL environment variable is required when RABBITMQ_ENABLED is true")
		}
		cfg.RabbitMQ.MirrorPoll = getEnvAsBool("RABBITMQ_MIRROR_POLL", false)
	}

	cfg.FluentBit.Enabled = getEnvAsBool("FLUENTBIT_ENABLED", false)
	if cfg.FluentBit.Enabled {
		cfg.FluentBit.Host = os.Getenv("FLUENTBIT_HOST")
		if cfg.FluentBit.Host == "" {
			log.Println("WARNING: FLUENTBIT_ENABLED is true, but FLUENTBIT_HOST is not set. Disabling Fluent Bit.")
			cfg.FluentBit.Enabled = false
		}
		cfg.FluentBit.Port = getEnvAsInt("FLUENTBIT_PORT", 24224)
		cfg.FluentBit.Level = getEnvAsString("FLUENTBIT_LOG_LEVEL", "info")
	}

	cfg.StdoutLogger.Level = getEnvAsString("STDOUT_LOG_LEVEL", "info")
	cfg.StdoutLogger.IsJSON = getEnvAsBool("LOG_JSON", false)

	cfg.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second)

	return cfg, nil
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt logs a warning and falls back to the default when the value is not an int
func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as int: %v. Using default value: %d\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueInt
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as bool: %v. Using default value: %t\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return valBool
}

// getEnvAsDuration accepts Go durations ("30s", "1h").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as duration: %v. Using default value: %s\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return val
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(valStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
