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

type Config struct {
	Port            string
	StoreDriver     string // postgres or memory
	DatabaseURL     string
	DBMaxConns      int32
	JWTSecret       string
	JWTIssuer       string
	RedisAddr       string
	RedisPassword   string
	KafkaBrokers    []string
	KafkaTopic      string
	CORSOrigins     []string
	Mail            MailConfig
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
}

// MailConfig enables lifecycle emails when Provider is set.
type MailConfig struct {
	Provider     string // smtp, plunk or log
	ReplyTo      string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	PlunkAPIKey  string
	PlunkFrom    string
	PlunkAPIURL  string
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Port:          getenv("PORT", "8080"),
		StoreDriver:   getenv("STORE_DRIVER", "postgres"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTIssuer:     os.Getenv("JWT_ISSUER"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:  splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getenv("KAFKA_TOPIC", "skillhub.task-events"),
		CORSOrigins:   splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		Mail: MailConfig{
			Provider:     os.Getenv("MAIL_PROVIDER"),
			ReplyTo:      os.Getenv("MAIL_REPLY_TO"),
			SMTPHost:     os.Getenv("SMTP_HOST"),
			SMTPPort:     getenv("SMTP_PORT", "465"),
			SMTPUsername: os.Getenv("SMTP_USERNAME"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			SMTPFrom:     os.Getenv("SMTP_FROM"),
			PlunkAPIKey:  os.Getenv("PLUNK_API_KEY"),
			PlunkFrom:    os.Getenv("PLUNK_FROM"),
			PlunkAPIURL:  os.Getenv("PLUNK_API_URL"),
		},
	}

	if cfg.DatabaseURL == "" && os.Getenv("DB_HOST") != "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			getenv("DB_PORT", "5432"),
			os.Getenv("DB_NAME"),
		)
	}

	maxConns, err := strconv.Atoi(getenv("DB_MAX_CONNS", "20"))
	if err != nil || maxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be a positive integer")
	}
	cfg.DBMaxConns = int32(maxConns)

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg.ShutdownTimeout, err = time.ParseDuration(getenv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL or DB_HOST must be set"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not supported", c.StoreDriver))
	}
	if c.Mail.Provider != "" && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR must be set when MAIL_PROVIDER is set"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitCSV(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
