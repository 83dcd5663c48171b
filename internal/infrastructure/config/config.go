package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Cache    CacheConfig
	Auth     AuthConfig
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Enabled        bool
	Backend        string // "memory" or "redis"
	MaxMemoryBytes int64  // Maximum memory usage in bytes for the memory backend
	Metrics        bool
	TTLMinutes     int    // Time-to-live for cache entries in minutes
	RedisAddr      string // Redis address (host:port) for the redis backend
	RedisPassword  string
	RedisDB        int
}

// AuthConfig represents authorization manager configuration
type AuthConfig struct {
	CacheKey     string   // Cache key under which the graph snapshot is stored
	DefaultRoles []string // Role names implicitly granted to every user
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Find project root
	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot) // Project root

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "yakuwari")
	viper.SetDefault("DB_NAME", "yakuwari_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_BACKEND", "memory")
	viper.SetDefault("CACHE_MAX_MEMORY_BYTES", 100*1024*1024) // 100MB
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 5) // 5 minutes TTL
	viper.SetDefault("CACHE_REDIS_ADDR", "localhost:6379")
	viper.SetDefault("CACHE_REDIS_DB", 0)

	// Auth defaults
	viper.SetDefault("AUTH_CACHE_KEY", "yakuwari:auth-graph")
	viper.SetDefault("AUTH_DEFAULT_ROLES", []string{})

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:        viper.GetBool("CACHE_ENABLED"),
			Backend:        viper.GetString("CACHE_BACKEND"),
			MaxMemoryBytes: viper.GetInt64("CACHE_MAX_MEMORY_BYTES"),
			Metrics:        viper.GetBool("CACHE_METRICS"),
			TTLMinutes:     viper.GetInt("CACHE_TTL_MINUTES"),
			RedisAddr:      viper.GetString("CACHE_REDIS_ADDR"),
			RedisPassword:  viper.GetString("CACHE_REDIS_PASSWORD"),
			RedisDB:        viper.GetInt("CACHE_REDIS_DB"),
		},
		Auth: AuthConfig{
			CacheKey:     viper.GetString("AUTH_CACHE_KEY"),
			DefaultRoles: viper.GetStringSlice("AUTH_DEFAULT_ROLES"),
		},
	}

	if config.Cache.Backend != "memory" && config.Cache.Backend != "redis" {
		return nil, fmt.Errorf("unknown cache backend: %s", config.Cache.Backend)
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
