package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Supported ledger backends.
const (
	DriverPostgres = "postgres"
	DriverMariaDB  = "mariadb"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Database    DatabaseConfig
	Attendance  AttendanceConfig
	Recognition RecognitionConfig
	Notify      NotifyConfig
	Log         LogConfig
	Web         WebConfig
}

type DatabaseConfig struct {
	Driver       string // postgres, mariadb or sqlite (default sqlite)
	URL          string // PostgreSQL connection URL
	MariaDBDSN   string // MariaDB DSN (e.g., attendance:secret@tcp(mariadb:3306)/attendance)
	SQLitePath   string // SQLite database file (default attendance.db)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// DSN returns the connection string of the configured driver.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		return c.URL
	case DriverMariaDB:
		return c.MariaDBDSN
	case DriverSQLite:
		return c.SQLitePath
	}
	return ""
}

type AttendanceConfig struct {
	MinBreak        time.Duration `yaml:"min_break"`
	Timezone        string        `yaml:"timezone"` // IANA name, "Local" or "UTC"
	ConflictRetries int           `yaml:"conflict_retries"`
}

// Location resolves Timezone. An empty value means time.Local.
func (c *AttendanceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type RecognitionConfig struct {
	Window        time.Duration `yaml:"window"`
	MinFrames     int           `yaml:"min_frames"`
	Tolerance     float64       `yaml:"tolerance"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	GalleryPath   string        `yaml:"-"` // Path to export the face HNSW graph (optional)
	OracleURL     string        `yaml:"-"` // Face embedding server, e.g. http://localhost:8000
	OracleMaxSide int           `yaml:"oracle_max_side"`
}

type NotifyConfig struct {
	RedisURL     string `yaml:"-"` // empty disables Redis publishing
	RedisChannel string `yaml:"redis_channel"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

type WebConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
}

// defaults mirrors defaults.yaml.
type defaults struct {
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Notify      NotifyConfig      `yaml:"notify"`
	Log         LogConfig         `yaml:"log"`
}

func loadDefaults() defaults {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

// envString returns the env var or defaultVal when it is unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration parses a positive Go duration ("10m", "90s").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envFloat parses a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envList splits a comma-separated env var, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	d := loadDefaults()

	return &Config{
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DATABASE_DRIVER", DriverSQLite)),
			URL:          os.Getenv("DATABASE_URL"),
			MariaDBDSN:   os.Getenv("MARIADB_DSN"),
			SQLitePath:   envString("SQLITE_PATH", "attendance.db"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Attendance: AttendanceConfig{
			MinBreak:        envDuration("ATTENDANCE_MIN_BREAK", d.Attendance.MinBreak),
			Timezone:        envString("ATTENDANCE_TIMEZONE", d.Attendance.Timezone),
			ConflictRetries: envInt("ATTENDANCE_CONFLICT_RETRIES", d.Attendance.ConflictRetries),
		},
		Recognition: RecognitionConfig{
			Window:        envDuration("RECOGNITION_WINDOW", d.Recognition.Window),
			MinFrames:     envInt("RECOGNITION_MIN_FRAMES", d.Recognition.MinFrames),
			Tolerance:     envFloat("RECOGNITION_TOLERANCE", d.Recognition.Tolerance),
			FrameInterval: envDuration("RECOGNITION_FRAME_INTERVAL", d.Recognition.FrameInterval),
			GalleryPath:   os.Getenv("GALLERY_INDEX_PATH"),
			OracleURL:     os.Getenv("ORACLE_URL"),
			OracleMaxSide: envInt("ORACLE_MAX_SIDE", d.Recognition.OracleMaxSide),
		},
		Notify: NotifyConfig{
			RedisURL:     os.Getenv("REDIS_URL"),
			RedisChannel: envString("REDIS_CHANNEL", d.Notify.RedisChannel),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", d.Log.Level),
			Format: envString("LOG_FORMAT", d.Log.Format),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8080),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverMariaDB:
		if c.Database.MariaDBDSN == "" {
			errs = append(errs, errors.New("MARIADB_DSN is required for the mariadb driver"))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.Database.Driver))
	}

	if c.Attendance.MinBreak <= 0 {
		errs = append(errs, errors.New("minimum break must be positive"))
	}
	if c.Attendance.ConflictRetries < 0 {
		errs = append(errs, errors.New("conflict retries must not be negative"))
	}
	if _, err := c.Attendance.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Recognition.Window <= 0 {
		errs = append(errs, errors.New("recognition window must be positive"))
	}
	if c.Recognition.MinFrames <= 0 {
		errs = append(errs, errors.New("minimum frames must be positive"))
	}
	if c.Recognition.Tolerance <= 0 || c.Recognition.Tolerance > 2 {
		errs = append(errs, fmt.Errorf("tolerance %v outside (0, 2]", c.Recognition.Tolerance))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
