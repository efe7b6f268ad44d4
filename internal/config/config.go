package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the swipequeue server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Worker   WorkerConfig
	Queue    QueueConfig
	Snapshot SnapshotConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// DatabaseConfig selects and tunes the persistence backend. The embedded
// sqlite driver is the default so a single-node deployment needs no external
// services; postgres is for shared deployments.
type DatabaseConfig struct {
	Driver          string
	URL             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional. When URL is empty the server falls back to the
// in-process cache, which is fine for a single instance.
type RedisConfig struct {
	URL string
}

// WorkerConfig points at the remote automation worker API.
type WorkerConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// QueueConfig tunes batching and retry behavior. The debounce interval is how
// long the accumulator waits after the last swipe before flushing; the batch
// ceilings force a flush even under continuous swiping.
type QueueConfig struct {
	DebounceInterval time.Duration
	MaxAttempts      int
	MaxBatchSize     int
	MaxBatchAge      time.Duration
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

type SnapshotConfig struct {
	Capacity int
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var validDrivers = map[string]bool{
	DriverSQLite:   true,
	DriverPostgres: true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SWIPEQUEUE_PORT", 8080),
			Env:  envString("SWIPEQUEUE_ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:          envString("DATABASE_DRIVER", DriverSQLite),
			URL:             os.Getenv("DATABASE_URL"),
			Path:            envString("DATABASE_PATH", "swipequeue.db"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Worker: WorkerConfig{
			BaseURL:  os.Getenv("WORKER_BASE_URL"),
			APIToken: os.Getenv("WORKER_API_TOKEN"),
			Timeout:  envDuration("WORKER_TIMEOUT", 30*time.Second),
		},
		Queue: QueueConfig{
			DebounceInterval: envDuration("QUEUE_DEBOUNCE_INTERVAL", 120*time.Second),
			MaxAttempts:      envInt("QUEUE_MAX_ATTEMPTS", 3),
			MaxBatchSize:     envInt("QUEUE_MAX_BATCH_SIZE", 25),
			MaxBatchAge:      envDuration("QUEUE_MAX_BATCH_AGE", 10*time.Minute),
			RetryBackoffBase: envDuration("QUEUE_RETRY_BACKOFF_BASE", 5*time.Second),
			RetryBackoffMax:  envDuration("QUEUE_RETRY_BACKOFF_MAX", 80*time.Second),
		},
		Snapshot: SnapshotConfig{
			Capacity: envInt("SNAPSHOT_CAPACITY", 500),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("DATABASE_DRIVER must be one of sqlite, postgres; got %q", c.Database.Driver)
	}
	if c.Database.Driver == DriverPostgres && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER is postgres")
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		return fmt.Errorf("DATABASE_PATH is required when DATABASE_DRIVER is sqlite")
	}

	if c.Worker.BaseURL == "" {
		return fmt.Errorf("WORKER_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Worker.BaseURL, "http://") && !strings.HasPrefix(c.Worker.BaseURL, "https://") {
		return fmt.Errorf("WORKER_BASE_URL must start with http:// or https://, got %q", c.Worker.BaseURL)
	}

	if c.Queue.DebounceInterval <= 0 {
		return fmt.Errorf("QUEUE_DEBOUNCE_INTERVAL must be positive, got %s", c.Queue.DebounceInterval)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.MaxBatchSize < 1 {
		return fmt.Errorf("QUEUE_MAX_BATCH_SIZE must be at least 1, got %d", c.Queue.MaxBatchSize)
	}
	if c.Queue.MaxBatchAge < c.Queue.DebounceInterval {
		return fmt.Errorf("QUEUE_MAX_BATCH_AGE must be at least the debounce interval (%s), got %s",
			c.Queue.DebounceInterval, c.Queue.MaxBatchAge)
	}
	if c.Queue.RetryBackoffBase <= 0 || c.Queue.RetryBackoffMax < c.Queue.RetryBackoffBase {
		return fmt.Errorf("retry backoff misconfigured: base %s, max %s",
			c.Queue.RetryBackoffBase, c.Queue.RetryBackoffMax)
	}

	if c.Snapshot.Capacity < 1 {
		return fmt.Errorf("SNAPSHOT_CAPACITY must be at least 1, got %d", c.Snapshot.Capacity)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
