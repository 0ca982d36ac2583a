// Package config reads server settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Addr      string
	DSN       string
	JWTSecret string

	RedisAddr   string
	FeedChannel string
	PublicKey   string
	PresenceKey string
	PresenceTTL time.Duration
	SweepCron   string // empty disables the in-process sweeper
	SendRate    float64
	SendBurst   int
	LogLevel    string
	LogFormat   string // text or json
}

var (
	ErrMissingDSN    = errors.New("DB_DSN is not set")
	ErrMissingSecret = errors.New("JWT_SECRET is not set")
)

// Load reads .env (if present) and then the process environment. Values
// already in the environment win over the file.
func Load() (*Config, error) {
	return load(true)
}

// LoadForSweeper is Load without the JWT requirement, for binaries that
// only touch the database.
func LoadForSweeper() (*Config, error) {
	return load(false)
}

func load(needSecret bool) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Addr:        getenv("ADDR", ":8080"),
		DSN:         os.Getenv("DB_DSN"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
		FeedChannel: getenv("CHAT_FEED_CHANNEL", "chat:feed"),
		PublicKey:   getenv("CHAT_PUBLIC_KEY", "public-channel"),
		PresenceKey: getenv("PRESENCE_KEY", "chat:presence"),
		SweepCron:   getenv("SWEEP_CRON", "*/10 * * * *"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "text"),
	}

	if cfg.DSN == "" {
		return nil, ErrMissingDSN
	}
	if needSecret && cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}

	var err error
	if cfg.PresenceTTL, err = time.ParseDuration(getenv("PRESENCE_TTL", "45s")); err != nil {
		return nil, fmt.Errorf("PRESENCE_TTL: %w", err)
	}
	if cfg.SendRate, err = strconv.ParseFloat(getenv("SEND_RATE", "2"), 64); err != nil {
		return nil, fmt.Errorf("SEND_RATE: %w", err)
	}
	if cfg.SendBurst, err = strconv.Atoi(getenv("SEND_BURST", "5")); err != nil {
		return nil, fmt.Errorf("SEND_BURST: %w", err)
	}

	if cfg.SweepCron != "off" && !gronx.New().IsValid(cfg.SweepCron) {
		return nil, fmt.Errorf("SWEEP_CRON: %q is not a valid cron expression", cfg.SweepCron)
	}
	if cfg.SweepCron == "off" {
		cfg.SweepCron = ""
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// SetupLogging applies the level and format to the standard logrus logger.
func (c *Config) SetupLogging() {
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
