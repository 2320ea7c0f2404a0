package config

import (
	"errors"
	"strconv"
	"time"

	"github.com/UnknownOlympus/gaia/internal/sampler"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the tagging service and CLI.
//
// Fields:
// - Env: The current environment (e.g., local, development, production).
// - Port: The port for the monitoring server.
// - Workers: The number of concurrent workers tagging records.
// - Interval: The duration between polls of the record store.
// - BatchSize: The maximum number of records fetched per poll.
// - TagTimeout: The deadline for tagging a single record.
// - GeometryPath, StatesPath: The reference dataset files.
// - Sampler: The coordinate sampler settings.
// - Cache: The cache store holding the built indices.
// - Database: Configuration settings for the PostgreSQL database.
type Config struct {
	Env          string
	Port         int
	Workers      int
	Interval     time.Duration
	BatchSize    int
	TagTimeout   time.Duration
	GeometryPath string
	StatesPath   string
	Sampler      SamplerConfig
	Cache        CacheConfig
	Database     PostgresConfig
}

// SamplerConfig selects how coordinates are drawn from city boxes.
type SamplerConfig struct {
	Mode        sampler.Mode // Mode is centroid, uniform or gaussian.
	Sigma       float64      // Sigma is the longitude deviation of the gaussian mode.
	MaxAttempts int          // MaxAttempts bounds the rejection loop.
}

// CacheConfig selects the backend persisting the built indices.
type CacheConfig struct {
	Type          string // Type is dir, sqlite or redis.
	Path          string // Path is the directory (dir) or database file (sqlite).
	RedisAddr     string // RedisAddr is the Redis server address (redis).
	RedisPassword string // RedisPassword is the Redis password (redis).
	RedisDB       int    // RedisDB is the Redis database number (redis).
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string // Host is the database server address.
	Port     string // Port is the database server port.
	User     string // User is the database user.
	Password string // Password is the database user's password.
	Name     string // Name is the name of the database.
}

var defaults = map[string]any{
	"env":                  "production",
	"health_port":          "8080",
	"workers":              "10",
	"interval":             "1m",
	"batch_size":           "100",
	"tag_timeout":          "5s",
	"geometry_path":        "city.json",
	"states_path":          "us_state_abbrev.json",
	"sampler_mode":         string(sampler.ModeUniform),
	"sampler_sigma":        "1",
	"sampler_max_attempts": strconv.Itoa(sampler.DefaultMaxAttempts),
	"cache_type":           "dir",
	"cache_path":           "cache",
	"redis_addr":           "",
	"redis_password":       "",
	"redis_db":             "0",
	"db_port":              "5432",
}

// Database settings keep their unprefixed environment names.
var databaseEnv = map[string]string{
	"db_host":     "DB_HOST",
	"db_port":     "DB_PORT",
	"db_username": "DB_USERNAME",
	"db_password": "DB_PASSWORD",
	"db_name":     "DB_NAME",
}

// MustLoad loads the configuration from the environment (GAIA_ prefix), an
// optional .env file and an optional gaia.yaml, and returns a Config struct.
// It panics when a value cannot be parsed.
func MustLoad() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GAIA")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, env := range databaseEnv {
		_ = v.BindEnv(key, env)
	}

	v.SetConfigName("gaia")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic("failed to read configuration file")
		}
	}

	interval, err := time.ParseDuration(v.GetString("interval"))
	if err != nil {
		panic("failed to parse interval from configuration")
	}

	tagTimeout, err := time.ParseDuration(v.GetString("tag_timeout"))
	if err != nil {
		panic("failed to parse tag timeout from configuration")
	}

	healthPort, err := strconv.Atoi(v.GetString("health_port"))
	if err != nil {
		panic("failed to parse port for monitoring server from configuration")
	}

	workers, err := strconv.Atoi(v.GetString("workers"))
	if err != nil || workers < 1 {
		panic("failed to parse workers from configuration, must be a positive integer")
	}

	batchSize, err := strconv.Atoi(v.GetString("batch_size"))
	if err != nil || batchSize < 1 {
		panic("failed to parse batch size from configuration, must be a positive integer")
	}

	mode, err := sampler.ParseMode(v.GetString("sampler_mode"))
	if err != nil {
		panic("failed to parse sampler mode from configuration, must be centroid, uniform or gaussian")
	}

	sigma, err := strconv.ParseFloat(v.GetString("sampler_sigma"), 64)
	if err != nil || sigma <= 0 {
		panic("failed to parse sampler sigma from configuration, must be a positive number")
	}

	maxAttempts, err := strconv.Atoi(v.GetString("sampler_max_attempts"))
	if err != nil || maxAttempts < 1 {
		panic("failed to parse sampler max attempts from configuration, must be a positive integer")
	}

	redisDB, err := strconv.Atoi(v.GetString("redis_db"))
	if err != nil {
		panic("failed to parse redis database from configuration, must be an integer")
	}

	return &Config{
		Env:          v.GetString("env"),
		Port:         healthPort,
		Workers:      workers,
		Interval:     interval,
		BatchSize:    batchSize,
		TagTimeout:   tagTimeout,
		GeometryPath: v.GetString("geometry_path"),
		StatesPath:   v.GetString("states_path"),
		Sampler: SamplerConfig{
			Mode:        mode,
			Sigma:       sigma,
			MaxAttempts: maxAttempts,
		},
		Cache: CacheConfig{
			Type:          v.GetString("cache_type"),
			Path:          v.GetString("cache_path"),
			RedisAddr:     v.GetString("redis_addr"),
			RedisPassword: v.GetString("redis_password"),
			RedisDB:       redisDB,
		},
		Database: PostgresConfig{
			Host:     v.GetString("db_host"),
			Port:     v.GetString("db_port"),
			User:     v.GetString("db_username"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
		},
	}
}
