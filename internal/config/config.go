// Package config reads service settings from the environment. A .env file,
// if present, is loaded by the binaries through godotenv/autoload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	// Server
	Port           string
	Environment    string
	AllowedOrigins []string
	LogLevel       string

	// Storage
	StoreBackend string
	DatabaseURL  string
	RedisAddr    string
	RedisDB      int

	// Presence
	StaleThreshold time.Duration
	PresenceTTL    time.Duration

	// Lobby and launch
	CountdownSeconds      int
	LobbyWriteAttempts    int
	CountdownPollInterval time.Duration
	PresenceSweepInterval time.Duration
	ActiveGameTimeout     time.Duration
	LaunchQueueName       string

	// Launcher tokens
	LaunchTokenRequired bool
	LaunchKeyPrivate    string
	LaunchKeyPublic     string
	LaunchTokenTTL      time.Duration

	// Historian
	HistorianBatchSize int
	HistorianFlush     time.Duration
}

// Load builds a Config from the environment with defaults for anything unset.
func Load() (*Config, error) {
	c := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("PFB_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:  getEnv("DATABASE_URL", postgresURLFromParts()),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvInt("REDIS_DB", 0),

		StaleThreshold: getEnvDuration("STALE_THRESHOLD", 3*time.Minute),
		PresenceTTL:    getEnvDuration("PRESENCE_TTL", 5*time.Minute),

		CountdownSeconds:      getEnvInt("COUNTDOWN_SECONDS", 30),
		LobbyWriteAttempts:    getEnvInt("LOBBY_WRITE_ATTEMPTS", 5),
		CountdownPollInterval: getEnvDuration("COUNTDOWN_POLL_INTERVAL", time.Second),
		PresenceSweepInterval: getEnvDuration("PRESENCE_SWEEP_INTERVAL", 30*time.Second),
		ActiveGameTimeout:     getEnvDuration("ACTIVE_GAME_TIMEOUT", 15*time.Minute),
		LaunchQueueName:       getEnv("LAUNCH_QUEUE_NAME", "pfb_launches"),

		LaunchTokenRequired: getEnvBool("LAUNCH_TOKEN_REQUIRED", false),
		LaunchKeyPrivate:    os.Getenv("LAUNCH_KEY_PRIVATE"),
		LaunchKeyPublic:     os.Getenv("LAUNCH_KEY_PUBLIC"),
		LaunchTokenTTL:      getEnvDuration("LAUNCH_TOKEN_TTL", 0),

		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
	}

	if c.IsProduction() {
		c.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	} else {
		c.AllowedOrigins = []string{"https://*", "http://*"}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }

// Addr is the listen address. Outside production only localhost is bound.
func (c *Config) Addr() string {
	if c.IsProduction() {
		return ":" + c.Port
	}
	return "localhost:" + c.Port
}

// Logger builds the process logger for this config.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendPostgres, c.StoreBackend)
	}
	if c.StoreBackend == BackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("STORE_BACKEND=postgres needs DATABASE_URL or POSTGRES_USER/PG_HOST/PG_DATABASE")
	}
	// an empty list would make the CORS layer allow every origin
	if c.IsProduction() && len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must be set in production")
	}
	if c.CountdownSeconds <= 0 {
		return fmt.Errorf("COUNTDOWN_SECONDS must be positive")
	}
	if c.StaleThreshold >= c.PresenceTTL {
		return fmt.Errorf("STALE_THRESHOLD (%s) must be shorter than PRESENCE_TTL (%s)", c.StaleThreshold, c.PresenceTTL)
	}
	if c.LaunchTokenRequired && c.LaunchKeyPublic == "" && c.LaunchKeyPrivate == "" {
		return fmt.Errorf("LAUNCH_TOKEN_REQUIRED needs LAUNCH_KEY_PUBLIC")
	}
	return nil
}

// postgresURLFromParts assembles a DSN from the POSTGRES_*/PG_* variables,
// or returns "" if the host or database is missing.
func postgresURLFromParts() string {
	host, db := os.Getenv("PG_HOST"), os.Getenv("PG_DATABASE")
	if host == "" || db == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		getEnv("PG_PORT", "5432"),
		db,
	)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, defVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defVal
}

func getEnvBool(key string, defVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defVal
	}
	return b
}
