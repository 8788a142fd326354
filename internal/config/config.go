package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	gomoney "github.com/Rhymond/go-money"

	applog "salvadanaio/internal/log"
)

const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"

	SyncModeDirect = "direct"
	SyncModeQueue  = "queue"

	PolicyRevision = "revision"
	PolicyArrival  = "arrival"
)

type Config struct {
	// HTTP Server
	Port string

	// Profile held by this process
	ProfileID string

	// Local cache
	SQLiteDBPath string

	// Remote store
	RemoteBackend   string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	MemorySeedDir   string

	// Push transport
	SyncMode     string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Sync behavior
	ConflictPolicy string
	PushTimeout    time.Duration
	SyncBatchSize  int
	SyncInterval   time.Duration
	SyncMaxRetries int
	PushStatusTTL  time.Duration

	Currency string

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8081"),
		ProfileID: getEnv("PROFILE_ID", "default"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/salvadanaio.db"),

		RemoteBackend:   getEnv("REMOTE_BACKEND", BackendMemory),
		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DATABASE", "salvadanaio"),
		MongoCollection: getEnv("MONGO_COLLECTION", "profiles"),
		MemorySeedDir:   getEnv("MEMORY_SEED_DIR", ""),

		SyncMode:     getEnv("SYNC_MODE", SyncModeDirect),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "salvadanaio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_snapshots"),

		ConflictPolicy: getEnv("CONFLICT_POLICY", PolicyRevision),
		PushTimeout:    getEnvDuration("PUSH_TIMEOUT", 10*time.Second),
		SyncBatchSize:  getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:   getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		SyncMaxRetries: getEnvInt("SYNC_MAX_RETRIES", 5),
		PushStatusTTL:  getEnvDuration("PUSH_STATUS_TTL", 10*time.Minute),

		Currency: getEnv("CURRENCY", gomoney.EUR),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.ProfileID) == "" {
		errors = append(errors, "profile ID cannot be empty")
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	backends := []string{BackendMemory, BackendMongo}
	if !slices.Contains(backends, c.RemoteBackend) {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, backends))
	}

	if c.RemoteBackend == BackendMongo {
		if c.MongoURI == "" {
			errors = append(errors, "MongoDB URI is required when using mongo backend")
		} else if u, err := url.Parse(c.MongoURI); err != nil {
			errors = append(errors, fmt.Sprintf("invalid MongoDB URI: %v", err))
		} else if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
			errors = append(errors, fmt.Sprintf("invalid MongoDB URI scheme '%s': must be 'mongodb' or 'mongodb+srv'", u.Scheme))
		}
		if c.MongoDatabase == "" {
			errors = append(errors, "MongoDB database name cannot be empty when using mongo backend")
		}
		if c.MongoCollection == "" {
			errors = append(errors, "MongoDB collection name cannot be empty when using mongo backend")
		}
	}

	if c.MemorySeedDir != "" {
		if info, err := os.Stat(c.MemorySeedDir); err != nil || !info.IsDir() {
			errors = append(errors, fmt.Sprintf("memory seed directory does not exist: %s", c.MemorySeedDir))
		}
	}

	modes := []string{SyncModeDirect, SyncModeQueue}
	if !slices.Contains(modes, c.SyncMode) {
		errors = append(errors, fmt.Sprintf("invalid sync mode '%s': must be one of %v", c.SyncMode, modes))
	}
	if c.SyncMode == SyncModeQueue && c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required when sync mode is queue")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	policies := []string{PolicyRevision, PolicyArrival}
	if !slices.Contains(policies, c.ConflictPolicy) {
		errors = append(errors, fmt.Sprintf("invalid conflict policy '%s': must be one of %v", c.ConflictPolicy, policies))
	}

	if c.PushTimeout < 100*time.Millisecond || c.PushTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid push timeout %v: must be between 100ms and 5 minutes", c.PushTimeout))
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if c.SyncMaxRetries < 1 || c.SyncMaxRetries > 100 {
		errors = append(errors, fmt.Sprintf("invalid sync max retries %d: must be between 1 and 100", c.SyncMaxRetries))
	}

	if c.PushStatusTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid push status TTL %v: must be at least 1 second", c.PushStatusTTL))
	}

	if gomoney.GetCurrency(c.Currency) == nil {
		errors = append(errors, fmt.Sprintf("unknown currency '%s'", c.Currency))
	}

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
