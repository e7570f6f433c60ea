// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mbd888/pagewatch/internal/logging"
	"github.com/mbd888/pagewatch/internal/phishing"
	"github.com/mbd888/pagewatch/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "local", "dev", "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Phishing analyzer
	AIServerBaseURL     string
	AIServerAnalyzePath string
	AIServerTimeout     time.Duration

	// Browser access
	CORSOrigins string // comma separated; empty uses environment defaults

	// Rate limiting
	RateLimitRPM   int
	RateLimitBurst int

	// Tracing (empty disables export)
	OTLPEndpoint string
}

const (
	DefaultPort      = "8000"
	DefaultEnv       = "local"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultRateRPM   = 600
	DefaultBurst     = 60

	// ExtensionOriginPattern matches browser extension origins in development.
	ExtensionOriginPattern = `^chrome-extension://[a-p]{32}$`
)

// DevOrigins are allowed when CORS_ORIGINS is unset in a development environment.
var DevOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// envFiles are tried in order; the first one that exists is loaded.
var envFiles = []string{".env", "backend/.env"}

// Load reads configuration from environment variables
// It loads a .env file if present (for local development)
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 strings.ToLower(getEnv("APP_ENV", DefaultEnv)),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		AIServerBaseURL:     getEnv("AI_SERVER_BASE_URL", phishing.DefaultBaseURL),
		AIServerAnalyzePath: getEnv("AI_SERVER_ANALYZE_PATH", phishing.DefaultAnalyzePath),
		AIServerTimeout:     getEnvSeconds("AI_SERVER_TIMEOUT_SECONDS", phishing.DefaultTimeout),
		CORSOrigins:         strings.TrimSpace(os.Getenv("CORS_ORIGINS")),
		RateLimitRPM:        getEnvInt("RATE_LIMIT_RPM", DefaultRateRPM),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", DefaultBurst),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFile() {
	for _, path := range envFiles {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}

	base := strings.TrimSpace(c.AIServerBaseURL)
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("AI_SERVER_BASE_URL must be an absolute http(s) URL, got %q", c.AIServerBaseURL)
	}

	if c.RateLimitRPM < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM and RATE_LIMIT_BURST must not be negative")
	}

	return nil
}

// IsDevelopment returns true for local and development environments
func (c *Config) IsDevelopment() bool {
	switch c.Env {
	case "local", "dev", "development":
		return true
	}
	return false
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CORSSettings returns the allowed origins and the optional origin pattern.
// The extension pattern applies only in development environments.
func (c *Config) CORSSettings() (origins []string, pattern string) {
	if c.CORSOrigins != "" {
		for _, o := range strings.Split(c.CORSOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	} else if c.IsDevelopment() {
		origins = append(origins, DevOrigins...)
	}
	if c.IsDevelopment() {
		pattern = ExtensionOriginPattern
	}
	return origins, pattern
}

// OriginPolicy builds the CORS policy from CORSSettings.
func (c *Config) OriginPolicy() (*security.OriginPolicy, error) {
	origins, pattern := c.CORSSettings()
	return security.NewOriginPolicy(origins, pattern)
}

// PhishingConfig returns the analyzer client settings.
func (c *Config) PhishingConfig() phishing.Config {
	return phishing.Config{
		BaseURL:     c.AIServerBaseURL,
		AnalyzePath: c.AIServerAnalyzePath,
		Timeout:     c.AIServerTimeout,
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvSeconds parses a float number of seconds. Invalid values fall back to
// the default; the result is never below phishing.MinTimeout.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	d := defaultValue
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			d = time.Duration(f * float64(time.Second))
		}
	}
	if d < phishing.MinTimeout {
		d = phishing.MinTimeout
	}
	return d
}
