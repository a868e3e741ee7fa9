package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"spinearn/database"
)

// Storage backends
const (
	StorageBackendPostgres = "postgres"
	StorageBackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// HTTP configuration
	HTTPAddr       string
	AllowedOrigins []string
	CookieSecure   bool

	// Storage configuration
	StorageBackend string // "postgres" or "memory"
	DatabaseURL    string
	DatabaseName   string

	// Session configuration
	RedisAddr       string
	RedisPassword   string
	SessionSecret   string
	SessionTTLHours int

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated), empty disables forwarding

	// Catalog configuration
	CatalogFile string // Optional YAML file overriding the built-in task catalog and withdrawal tiers

	// Logging
	LogLevel string
	Debug    bool // Attach underlying error details to failed responses

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// load loads configuration from environment variables
func load() (*Config, error) {
	// A missing .env file is fine, the process environment is used as-is
	_ = godotenv.Load()

	config := &Config{
		HTTPAddr:     getEnvWithDefault("HTTP_ADDR", ":8080"),
		CookieSecure: os.Getenv("COOKIE_SECURE") == "true",

		StorageBackend: getEnvWithDefault("STORAGE_BACKEND", StorageBackendPostgres),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseName:   os.Getenv("DATABASE_NAME"),

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		SessionTTLHours: 7 * 24,

		NATSServers: os.Getenv("NATS_SERVERS"),
		CatalogFile: os.Getenv("CATALOG_FILE"),

		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),
		Debug:    os.Getenv("DEBUG") == "true",

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if ttl := os.Getenv("SESSION_TTL_HOURS"); ttl != "" {
		if parsed, err := strconv.Atoi(ttl); err == nil && parsed > 0 {
			config.SessionTTLHours = parsed
		}
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, origin)
			}
		}
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageBackendPostgres, StorageBackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.Environment == "test" {
		return nil
	}

	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.StorageBackend == StorageBackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required in production")
	}
	if c.IsProduction() && (len(c.AllowedOrigins) == 0 || slices.Contains(c.AllowedOrigins, "*")) {
		return fmt.Errorf("ALLOWED_ORIGINS must list explicit origins in production")
	}
	if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
		return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
	}
	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		HTTPAddr:        ":0",
		StorageBackend:  StorageBackendMemory,
		SessionSecret:   "test-session-secret",
		SessionTTLHours: 1,
		LogLevel:        "debug",
		Debug:           true,
		Environment:     "test",
	}
}
