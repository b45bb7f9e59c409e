package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"mailtrack-backend/pkg/crypto"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseDriver     string
	DatabaseURL        string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	FrontendURL        string
	CORSOrigin         string
	JWTSecret          string
	TrustUserHeader    bool
	TokenEncryptionKey []byte
	RedisURL           string
	LogLevel           string
	LogFormat          string
	Sync               SyncConfig
}

// SyncConfig controls the mailbox scan. It can be set from the [sync] table
// of the file named by CONFIG_FILE; environment variables take precedence.
type SyncConfig struct {
	Schedule     string   `toml:"schedule"`
	RunOnStartup bool     `toml:"run_on_startup"`
	LookbackDays int      `toml:"lookback_days"`
	MaxResults   int64    `toml:"max_results"`
	Keywords     []string `toml:"keywords"`
}

type fileConfig struct {
	Sync SyncConfig `toml:"sync"`
}

func defaultSync() SyncConfig {
	return SyncConfig{
		Schedule:     "*/5 * * * *",
		RunOnStartup: true,
		LookbackDays: 7,
		MaxResults:   50,
	}
}

// Load reads configuration from .env, the optional TOML file and the
// environment, and fails on anything the service cannot run without.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	sync := defaultSync()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fc := fileConfig{Sync: sync}
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		sync = fc.Sync
	}

	var err error
	sync.Schedule = getEnv("SCAN_CRON_SCHEDULE", sync.Schedule)
	if sync.RunOnStartup, err = getEnvBool("SCAN_ON_STARTUP", sync.RunOnStartup); err != nil {
		return nil, err
	}
	if sync.LookbackDays, err = getEnvInt("SCAN_LOOKBACK_DAYS", sync.LookbackDays); err != nil {
		return nil, err
	}
	maxResults, err := getEnvInt("SCAN_MAX_RESULTS", int(sync.MaxResults))
	if err != nil {
		return nil, err
	}
	sync.MaxResults = int64(maxResults)

	trustHeader, err := getEnvBool("TRUST_USER_HEADER", true)
	if err != nil {
		return nil, err
	}

	port := getEnv("PORT", "3013")
	frontendURL := strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3001"), "/")
	cfg := &Config{
		Port:               port,
		DatabaseDriver:     getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:"+port+"/api/v1/email/oauth/callback"),
		FrontendURL:        frontendURL,
		CORSOrigin:         getEnv("CORS_ORIGIN", frontendURL),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TrustUserHeader:    trustHeader,
		RedisURL:           getEnv("REDIS_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		Sync:               sync,
	}

	if raw := os.Getenv("TOKEN_ENCRYPTION_KEY"); raw != "" {
		key, err := crypto.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY: %w", err)
		}
		cfg.TokenEncryptionKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.DatabaseDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case "sqlite":
		if c.DatabaseURL == "" {
			c.DatabaseURL = "mailtrack.db"
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if c.Sync.Schedule == "" {
		errs = append(errs, errors.New("SCAN_CRON_SCHEDULE must not be empty"))
	}
	if c.Sync.LookbackDays <= 0 {
		errs = append(errs, errors.New("SCAN_LOOKBACK_DAYS must be positive"))
	}
	if c.Sync.MaxResults <= 0 || c.Sync.MaxResults > 500 {
		errs = append(errs, errors.New("SCAN_MAX_RESULTS must be between 1 and 500"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
