package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gymvietai/payment/pkg/payment"
	"github.com/joho/godotenv"
)

// MissingError reports a required configuration key that is not set.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s is required", e.Key)
}

// SMTP holds the outbound mail settings. Mail is disabled unless User and
// Pass are both set.
type SMTP struct {
	Host     string
	Port     int
	User     string
	Pass     string
	FromName string
}

// Enabled reports whether enough is configured to send mail.
func (s SMTP) Enabled() bool {
	return s.User != "" && s.Pass != ""
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port              int
	Env               string
	DatabaseURL       string
	AuthDatabaseURL   string
	JWTSecret         string
	VNPay             payment.Config
	ReturnAdvisory    bool
	FrontendURL       string
	AuthServiceURL    string
	SMTP              SMTP
	KafkaBrokers      []string
	KafkaTopic        string
	CORSOrigins       []string
	DownstreamTimeout time.Duration
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from the environment, after merging a .env file
// if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "3004"))
	if err != nil {
		return nil, fmt.Errorf("PORT must be a number: %w", err)
	}

	cfg := &Config{
		Port:           port,
		Env:            getEnv("APP_ENV", "development"),
		AuthServiceURL: strings.TrimRight(getEnv("AUTH_SERVICE_URL", ""), "/"),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "payment.events"),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	required := []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"JWT_SECRET", &cfg.JWTSecret},
		{"VNP_TMN_CODE", &cfg.VNPay.TmnCode},
		{"VNP_HASH_SECRET", &cfg.VNPay.HashSecret},
		{"VNP_URL", &cfg.VNPay.PayURL},
		{"VNP_RETURN_URL", &cfg.VNPay.ReturnURL},
		{"FRONTEND_URL", &cfg.FrontendURL},
	}
	for _, r := range required {
		v := getEnv(r.key, "")
		if v == "" {
			return nil, &MissingError{Key: r.key}
		}
		*r.dst = v
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	cfg.AuthDatabaseURL = getEnv("AUTH_DATABASE_URL", cfg.DatabaseURL)

	if cfg.ReturnAdvisory, err = strconv.ParseBool(getEnv("VNP_RETURN_ADVISORY", "false")); err != nil {
		return nil, fmt.Errorf("VNP_RETURN_ADVISORY must be a boolean: %w", err)
	}
	if cfg.DownstreamTimeout, err = time.ParseDuration(getEnv("DOWNSTREAM_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("DOWNSTREAM_TIMEOUT must be a duration: %w", err)
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("SMTP_PORT must be a number: %w", err)
	}
	cfg.SMTP = SMTP{
		Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		Port:     smtpPort,
		User:     getEnv("SMTP_USER", ""),
		Pass:     getEnv("SMTP_PASS", ""),
		FromName: getEnv("SMTP_FROM_NAME", "GymVietAI"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
