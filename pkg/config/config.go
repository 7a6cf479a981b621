package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port           string
	Env            string
	AllowedOrigins []string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string

	// NATS configuration; empty disables entry publishing
	NATSURL string

	// JWT configuration; empty disables API authentication outside production
	JWTSecret string

	// Accounting policy
	PeriodFreq      string
	PeriodInterval  int
	TaxRateLong     string
	TaxRateShort    string
	UnderfillPolicy string
	Valuation       string

	// PolicyPath points to an optional YAML accounting policy overriding the values above
	PolicyPath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		NATSURL:         getEnv("NATS_URL", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		PeriodFreq:      getEnv("PERIOD_FREQ", "D"),
		PeriodInterval:  getEnvAsInt("PERIOD_INTERVAL", 1),
		TaxRateLong:     getEnv("TAX_RATE_LONG", "0.25"),
		TaxRateShort:    getEnv("TAX_RATE_SHORT", "0.40"),
		UnderfillPolicy: getEnv("UNDERFILL_POLICY", "reject"),
		Valuation:       getEnv("VALUATION", "delta"),
		PolicyPath:      getEnv("ACCOUNTING_POLICY_PATH", ""),
	}

	if cfg.PolicyPath != "" {
		policy, err := LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		policy.Apply(cfg)
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWTSecret == "" && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	switch strings.ToUpper(c.PeriodFreq) {
	case "H", "D", "W", "M":
	default:
		return fmt.Errorf("PERIOD_FREQ must be one of H, D, W, M: got %q", c.PeriodFreq)
	}

	if c.PeriodInterval < 1 {
		return fmt.Errorf("PERIOD_INTERVAL must be at least 1")
	}

	if err := checkRate("TAX_RATE_LONG", c.TaxRateLong); err != nil {
		return err
	}
	if err := checkRate("TAX_RATE_SHORT", c.TaxRateShort); err != nil {
		return err
	}

	switch c.UnderfillPolicy {
	case "reject", "close_available":
	default:
		return fmt.Errorf("UNDERFILL_POLICY must be reject or close_available: got %q", c.UnderfillPolicy)
	}

	switch c.Valuation {
	case "delta", "absolute":
	default:
		return fmt.Errorf("VALUATION must be delta or absolute: got %q", c.Valuation)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated environment variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
