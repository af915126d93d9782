package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Pass     PassConfig
	Redis    RedisConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// PassConfig controls enrollment and scan verification
type PassConfig struct {
	SealKey             []byte
	Issuer              string
	ToleranceSteps      int
	MaxFailedScans      int
	MaxFailedScansPerIP int
	FailedScanWindow    time.Duration
	MaxEnvelopeAge      time.Duration
	AttemptRetention    time.Duration
	CleanupInterval     time.Duration
	RejectDelayMs       int
	RejectJitterMs      int
	ScanRateLimit       int
	ScanRateWindow      time.Duration
}

// RedisConfig enables the Redis replay guard when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	sealKey := getEnv("PASS_SEAL_KEY", "")
	if sealKey == "" {
		return nil, fmt.Errorf("PASS_SEAL_KEY is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "smartpass"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
		},
		Pass: PassConfig{
			SealKey:             []byte(sealKey),
			Issuer:              getEnv("PASS_ISSUER", "MGCLUB"),
			ToleranceSteps:      getEnvAsInt("PASS_TOLERANCE_STEPS", 1),
			MaxFailedScans:      getEnvAsInt("PASS_MAX_FAILED_SCANS", 5),
			MaxFailedScansPerIP: getEnvAsInt("PASS_MAX_FAILED_SCANS_PER_IP", 20),
			FailedScanWindow:    getEnvAsDuration("PASS_FAILED_SCAN_WINDOW", 5*time.Minute),
			MaxEnvelopeAge:      getEnvAsDuration("PASS_MAX_ENVELOPE_AGE", 90*time.Second),
			AttemptRetention:    getEnvAsDuration("PASS_ATTEMPT_RETENTION", 30*24*time.Hour),
			CleanupInterval:     getEnvAsDuration("PASS_CLEANUP_INTERVAL", 1*time.Hour),
			RejectDelayMs:       getEnvAsInt("PASS_REJECT_DELAY_MS", 250),
			RejectJitterMs:      getEnvAsInt("PASS_REJECT_JITTER_MS", 100),
			ScanRateLimit:       getEnvAsInt("PASS_SCAN_RATE_LIMIT", 60),
			ScanRateWindow:      getEnvAsDuration("PASS_SCAN_RATE_WINDOW", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "passes@mgclub.example"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Pass.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (p *PassConfig) validate() error {
	if len(p.SealKey) < 32 {
		return fmt.Errorf("PASS_SEAL_KEY must be at least 32 bytes (got %d)", len(p.SealKey))
	}
	if p.ToleranceSteps < 0 || p.ToleranceSteps > 2 {
		return fmt.Errorf("PASS_TOLERANCE_STEPS must be between 0 and 2 (got %d)", p.ToleranceSteps)
	}
	if p.MaxFailedScans < 1 {
		return fmt.Errorf("PASS_MAX_FAILED_SCANS must be positive")
	}
	if p.MaxFailedScansPerIP < p.MaxFailedScans {
		return fmt.Errorf("PASS_MAX_FAILED_SCANS_PER_IP must be at least PASS_MAX_FAILED_SCANS")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		return splitList(originsStr)
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}

// splitList parses a comma separated list, dropping blanks
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
