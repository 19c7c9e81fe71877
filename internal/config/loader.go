package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
	StoreRedis  = "redis"
)

// Config captures environment driven configuration values for the court board.
type Config struct {
	HTTPPort int

	CourtCount       int
	MaxGroupSize     int
	SinglesMinutes   int
	DoublesMinutes   int
	MaxPlayMinutes   int
	AvgGameMinutes   int
	AutoClearMinutes int
	// AutoClearInterval is the maintenance period; zero disables it.
	AutoClearInterval time.Duration
	PriorityPolicy    string
	StrictTick        bool
	Location          *time.Location

	Store         string
	SQLiteDSN     string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AMQPURL       string

	AdminPasscodeHash string
	TokenSecret       string
	TokenTTL          time.Duration

	TemplatesFile string
	TraceFile     string
	LogLevel      slog.Level
}

// Load parses configuration values from the process environment, after
// merging a .env file from the working directory when one exists.
//
// Defaults apply to optional fields. Missing required values and invalid
// values are collected and reported together.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}

	cfg := Config{
		HTTPPort:          8080,
		CourtCount:        12,
		MaxGroupSize:      4,
		SinglesMinutes:    60,
		DoublesMinutes:    90,
		MaxPlayMinutes:    210,
		AvgGameMinutes:    75,
		AutoClearMinutes:  180,
		AutoClearInterval: time.Minute,
		PriorityPolicy:    "front-pair",
		Location:          time.UTC,
		Store:             StoreMemory,
		SQLiteDSN:         "file:courtboard.db",
		RedisAddr:         "localhost:6379",
		TokenTTL:          12 * time.Hour,
		LogLevel:          slog.LevelInfo,
	}

	l := &loader{}

	l.positiveInt("COURTBOARD_HTTP_PORT", &cfg.HTTPPort)
	l.positiveInt("COURTBOARD_COURT_COUNT", &cfg.CourtCount)
	l.positiveInt("COURTBOARD_MAX_GROUP_SIZE", &cfg.MaxGroupSize)
	l.positiveInt("COURTBOARD_SINGLES_MINUTES", &cfg.SinglesMinutes)
	l.positiveInt("COURTBOARD_DOUBLES_MINUTES", &cfg.DoublesMinutes)
	l.positiveInt("COURTBOARD_MAX_PLAY_MINUTES", &cfg.MaxPlayMinutes)
	l.positiveInt("COURTBOARD_AVG_GAME_MINUTES", &cfg.AvgGameMinutes)
	l.positiveInt("COURTBOARD_AUTO_CLEAR_MINUTES", &cfg.AutoClearMinutes)

	if value := env("COURTBOARD_AUTO_CLEAR_INTERVAL"); value != "" {
		interval, err := time.ParseDuration(value)
		if err != nil || interval < 0 {
			l.invalid = append(l.invalid, "COURTBOARD_AUTO_CLEAR_INTERVAL")
		} else {
			cfg.AutoClearInterval = interval
		}
	}

	if value := env("COURTBOARD_PRIORITY_POLICY"); value != "" {
		switch strings.ToLower(value) {
		case "front-pair", "front-only":
			cfg.PriorityPolicy = strings.ToLower(value)
		default:
			l.invalid = append(l.invalid, "COURTBOARD_PRIORITY_POLICY")
		}
	}

	if value := env("COURTBOARD_STRICT_TICK"); value != "" {
		strict, err := strconv.ParseBool(value)
		if err != nil {
			l.invalid = append(l.invalid, "COURTBOARD_STRICT_TICK")
		} else {
			cfg.StrictTick = strict
		}
	}

	if value := env("COURTBOARD_TIMEZONE"); value != "" {
		loc, err := time.LoadLocation(value)
		if err != nil {
			l.invalid = append(l.invalid, "COURTBOARD_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if value := env("COURTBOARD_STORE"); value != "" {
		switch strings.ToLower(value) {
		case StoreMemory, StoreSQLite, StoreMySQL, StoreRedis:
			cfg.Store = strings.ToLower(value)
		default:
			l.invalid = append(l.invalid, "COURTBOARD_STORE")
		}
	}

	if dsn := env("COURTBOARD_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	cfg.MySQLDSN = env("COURTBOARD_MYSQL_DSN")
	if cfg.Store == StoreMySQL && cfg.MySQLDSN == "" {
		l.missing = append(l.missing, "COURTBOARD_MYSQL_DSN")
	}

	if addr := env("COURTBOARD_REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
	cfg.RedisPassword = env("COURTBOARD_REDIS_PASSWORD")
	if value := env("COURTBOARD_REDIS_DB"); value != "" {
		db, err := strconv.Atoi(value)
		if err != nil || db < 0 {
			l.invalid = append(l.invalid, "COURTBOARD_REDIS_DB")
		} else {
			cfg.RedisDB = db
		}
	}

	cfg.AMQPURL = env("COURTBOARD_AMQP_URL")

	if hash := env("COURTBOARD_ADMIN_PASSCODE_HASH"); hash == "" {
		l.missing = append(l.missing, "COURTBOARD_ADMIN_PASSCODE_HASH")
	} else {
		cfg.AdminPasscodeHash = hash
	}
	if secret := env("COURTBOARD_TOKEN_SECRET"); secret == "" {
		l.missing = append(l.missing, "COURTBOARD_TOKEN_SECRET")
	} else {
		cfg.TokenSecret = secret
	}
	if value := env("COURTBOARD_TOKEN_TTL"); value != "" {
		ttl, err := time.ParseDuration(value)
		if err != nil || ttl <= 0 {
			l.invalid = append(l.invalid, "COURTBOARD_TOKEN_TTL")
		} else {
			cfg.TokenTTL = ttl
		}
	}

	cfg.TemplatesFile = env("COURTBOARD_TEMPLATES_FILE")
	cfg.TraceFile = env("COURTBOARD_TRACE_FILE")

	if value := env("COURTBOARD_LOG_LEVEL"); value != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(value)); err != nil {
			l.invalid = append(l.invalid, "COURTBOARD_LOG_LEVEL")
		}
	}

	if cfg.SinglesMinutes > cfg.MaxPlayMinutes || cfg.DoublesMinutes > cfg.MaxPlayMinutes {
		l.invalid = append(l.invalid, "COURTBOARD_MAX_PLAY_MINUTES")
	}

	if len(l.missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(l.missing, ", "))
	}
	if len(l.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(l.invalid, ", "))
	}

	return cfg, nil
}

type loader struct {
	missing []string
	invalid []string
}

func (l *loader) positiveInt(key string, dst *int) {
	value := env(key)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		l.invalid = append(l.invalid, key)
		return
	}
	*dst = n
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
