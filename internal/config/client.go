package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
)

// Secret store backends for the presenter
const (
	StoreKeyring = "keyring"
	StoreFile    = "file"
)

// ClientConfig configures the pass presenter
type ClientConfig struct {
	VerifierURL    string
	SubjectID      string
	MemberToken    string
	Store          string
	StorePath      string
	HTTPTimeout    time.Duration
	MaxRetries     uint64
	LogLevel       string
	LogFile        string
	QRSize         int
	KeyringService string
}

// LoadClient reads the presenter configuration from the environment
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{
		VerifierURL:    getEnv("SMARTPASS_VERIFIER_URL", "http://localhost:8080"),
		SubjectID:      getEnv("SMARTPASS_SUBJECT_ID", ""),
		MemberToken:    getEnv("SMARTPASS_MEMBER_TOKEN", ""),
		Store:          getEnv("SMARTPASS_STORE", StoreKeyring),
		StorePath:      getEnv("SMARTPASS_STORE_PATH", ""),
		HTTPTimeout:    getEnvAsDuration("SMARTPASS_HTTP_TIMEOUT", 5*time.Second),
		MaxRetries:     uint64(getEnvAsInt("SMARTPASS_MAX_RETRIES", 3)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("SMARTPASS_LOG_FILE", ""),
		QRSize:         getEnvAsInt("SMARTPASS_QR_SIZE", 256),
		KeyringService: getEnv("SMARTPASS_KEYRING_SERVICE", "mgclub-smartpass"),
	}

	if cfg.SubjectID == "" {
		return nil, fmt.Errorf("SMARTPASS_SUBJECT_ID is required")
	}

	u, err := url.Parse(cfg.VerifierURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("SMARTPASS_VERIFIER_URL must be an http(s) URL")
	}

	if cfg.Store != StoreKeyring && cfg.Store != StoreFile {
		return nil, fmt.Errorf("SMARTPASS_STORE must be %q or %q (got %q)", StoreKeyring, StoreFile, cfg.Store)
	}

	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("SMARTPASS_HTTP_TIMEOUT must be positive")
	}

	return cfg, nil
}
