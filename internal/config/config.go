package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultDatabaseURL = "file:data/dmd.db"
	defaultSourceDir   = "data/raw"
	defaultBatchSize   = 1000
	defaultWorkers     = 4
)

// Config captures the runtime configuration for the tariff pipeline.
type Config struct {
	Database DatabaseConfig
	Logging  LoggingConfig
	Pipeline PipelineConfig
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level string
}

// PipelineConfig tunes the batch job.
type PipelineConfig struct {
	SourceDir     string
	BatchSize     int
	Workers       int
	SkipUnchanged bool
}

// Load reads an optional .env file, inspects the environment and builds a
// Config value. Variables already present in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	cfg := Config{}

	cfg.Database = DatabaseConfig{
		URL: firstNonEmpty(
			os.Getenv("DATABASE_URL"),
			os.Getenv("DB_URL"),
			os.Getenv("DB_PATH"),
			defaultDatabaseURL,
		),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_IDLE_CONNS"), 0),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_OPEN_CONNS"), 0),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_LIFETIME"), 0),
		ConnMaxIdleTime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_IDLE_TIME"), 0),
	}
	cfg.Database.Driver = firstNonEmpty(
		strings.ToLower(os.Getenv("DATABASE_DRIVER")),
		DriverFor(cfg.Database.URL),
	)

	cfg.Logging = LoggingConfig{
		Level: firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
	}

	cfg.Pipeline = PipelineConfig{
		SourceDir: firstNonEmpty(os.Getenv("DMD_SOURCE_DIR"), defaultSourceDir),
		BatchSize: parseIntWithDefault(os.Getenv("DMD_BATCH_SIZE"), defaultBatchSize),
		Workers:   parseIntWithDefault(os.Getenv("DMD_WORKERS"), defaultWorkers),

		SkipUnchanged: parseBoolWithDefault(os.Getenv("DMD_SKIP_UNCHANGED"), true),
	}

	switch cfg.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Pipeline.BatchSize <= 0 {
		return Config{}, fmt.Errorf("batch size must be positive, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.Workers <= 0 {
		return Config{}, fmt.Errorf("worker count must be positive, got %d", cfg.Pipeline.Workers)
	}

	return cfg, nil
}

// DriverFor infers the driver from a connection URL.
func DriverFor(url string) string {
	lower := strings.ToLower(strings.TrimSpace(url))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return DriverPostgres
	}
	return DriverSQLite
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseIntWithDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolWithDefault(value string, def bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}
