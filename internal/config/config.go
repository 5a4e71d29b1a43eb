package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server ServerConfig
	Mongo  MongoConfig
	Client ClientConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MongoConfig holds settings for the server's MongoDB store.
type MongoConfig struct {
	URI    string
	DBName string
}

// ClientConfig holds settings for the field client: where the API lives,
// who the rep is, and where the durable offline state is kept.
type ClientConfig struct {
	APIBaseURL    string
	RepID         string
	StateDir      string
	Timeout       time.Duration
	ProbeInterval time.Duration
	SyncCron      string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	timeout, err := durationEnv("REFILL_HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	probe, err := durationEnv("REFILL_PROBE_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Mongo: MongoConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "refill"),
		},
		Client: ClientConfig{
			APIBaseURL:    getenvWithDefault("REFILL_API_URL", "http://localhost:8080"),
			RepID:         os.Getenv("REFILL_REP_ID"),
			StateDir:      getenvWithDefault("REFILL_STATE_DIR", defaultStateDir()),
			Timeout:       timeout,
			ProbeInterval: probe,
			SyncCron:      getenvWithDefault("REFILL_SYNC_CRON", "@every 1m"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.Mongo.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.Mongo.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	}

	if c.Client.APIBaseURL == "" {
		return errors.New("REFILL_API_URL must not be empty")
	}

	if c.Client.StateDir == "" {
		return errors.New("REFILL_STATE_DIR must not be empty")
	}

	return nil
}

// RequireRep ensures a rep identity is configured; mutating client commands
// need one, read-only ones do not.
func (c *Config) RequireRep() error {
	if c.Client.RepID == "" {
		return errors.New("REFILL_REP_ID must be provided")
	}
	return nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".refill"
	}
	return filepath.Join(home, ".refill")
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
