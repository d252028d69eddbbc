package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ProviderClientID     string
	ProviderClientSecret string
	ProviderRedirectURI  string
	ProviderAuthURL      string
	ProviderTokenURL     string
	ProviderUserInfoURL  string
	ProviderRevokeURL    string
	ProviderScopes       []string
	ProviderTimeout      time.Duration

	TokenEncryptionSecret string
	TokenEncryptionSalt   string
	SessionSigningSecret  string
	SessionTTL            time.Duration
	RefreshSafetyMargin   time.Duration

	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

const minSecretLength = 32

// weakSalts are placeholder values that must never reach production. Matching
// is case-insensitive after trimming.
var weakSalts = map[string]struct{}{
	"changemechangemechangemechangeme":  {},
	"default-salt-default-salt-default": {},
	"0123456789abcdef0123456789abcdef":  {},
	"00000000000000000000000000000000":  {},
	"secretsecretsecretsecretsecretse":  {},
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		ProviderClientID:     strings.TrimSpace(os.Getenv("PROVIDER_CLIENT_ID")),
		ProviderClientSecret: strings.TrimSpace(os.Getenv("PROVIDER_CLIENT_SECRET")),
		ProviderRedirectURI:  strings.TrimSpace(os.Getenv("PROVIDER_REDIRECT_URI")),
		ProviderAuthURL:      strings.TrimSpace(os.Getenv("PROVIDER_AUTH_URL")),
		ProviderTokenURL:     strings.TrimSpace(os.Getenv("PROVIDER_TOKEN_URL")),
		ProviderUserInfoURL:  strings.TrimSpace(os.Getenv("PROVIDER_USERINFO_URL")),
		ProviderRevokeURL:    strings.TrimSpace(os.Getenv("PROVIDER_REVOKE_URL")),
		ProviderScopes:       getList("PROVIDER_SCOPES", []string{"openid", "email", "profile"}),
		ProviderTimeout:      getDuration("PROVIDER_TIMEOUT", 10*time.Second),

		TokenEncryptionSecret: os.Getenv("TOKEN_ENCRYPTION_SECRET"),
		TokenEncryptionSalt:   os.Getenv("TOKEN_ENCRYPTION_SALT"),
		SessionSigningSecret:  os.Getenv("SESSION_SIGNING_SECRET"),
		SessionTTL:            getDuration("SESSION_TTL", time.Hour),
		RefreshSafetyMargin:   getDuration("REFRESH_SAFETY_MARGIN", 5*time.Minute),

		ServiceName:          getEnv("SERVICE_NAME", "stillontime-auth"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ProviderClientID == "" || cfg.ProviderClientSecret == "" {
		return Config{}, fmt.Errorf("PROVIDER_CLIENT_ID and PROVIDER_CLIENT_SECRET are required")
	}
	if cfg.ProviderRedirectURI == "" {
		return Config{}, fmt.Errorf("PROVIDER_REDIRECT_URI is required")
	}
	if cfg.ProviderAuthURL == "" || cfg.ProviderTokenURL == "" || cfg.ProviderUserInfoURL == "" {
		return Config{}, fmt.Errorf("PROVIDER_AUTH_URL, PROVIDER_TOKEN_URL and PROVIDER_USERINFO_URL are required")
	}
	if cfg.TokenEncryptionSecret == "" {
		return Config{}, fmt.Errorf("TOKEN_ENCRYPTION_SECRET is required")
	}
	if err := ValidateEncryptionSalt(cfg.TokenEncryptionSalt); err != nil {
		return Config{}, err
	}
	if len(cfg.SessionSigningSecret) < minSecretLength {
		return Config{}, fmt.Errorf("SESSION_SIGNING_SECRET must be at least %d characters", minSecretLength)
	}
	if cfg.SessionSigningSecret == cfg.TokenEncryptionSecret {
		return Config{}, fmt.Errorf("SESSION_SIGNING_SECRET must differ from TOKEN_ENCRYPTION_SECRET")
	}
	if cfg.RefreshSafetyMargin <= 0 {
		cfg.RefreshSafetyMargin = 5 * time.Minute
	}

	return cfg, nil
}

// ValidateEncryptionSalt rejects salts that are too short or known placeholders.
func ValidateEncryptionSalt(salt string) error {
	if len(salt) < minSecretLength {
		return fmt.Errorf("TOKEN_ENCRYPTION_SALT must be at least %d characters", minSecretLength)
	}
	if _, weak := weakSalts[strings.ToLower(strings.TrimSpace(salt))]; weak {
		return fmt.Errorf("TOKEN_ENCRYPTION_SALT is a known placeholder value")
	}
	if allSameByte(salt) {
		return fmt.Errorf("TOKEN_ENCRYPTION_SALT has no entropy")
	}
	return nil
}

func allSameByte(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return len(s) > 0
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
