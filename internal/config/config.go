package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret backends.
const (
	BackendSQLite = "sqlite"
	BackendSSM    = "ssm"
	BackendEnv    = "env"
)

// DefaultTokenURL is the OS Data Hub OAuth2 token endpoint.
const DefaultTokenURL = "https://api.os.uk/oauth2/token/v1"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds application configuration loaded from environment and file.
// Priority: Env vars → config.toml → defaults
type Config struct {
	// ServerPort is the address to bind the server to (e.g., ":8080")
	ServerPort string

	TokenURL string
	Scopes   []string

	// SecretBackend selects where the client credentials are read from.
	SecretBackend      string
	ClientIDSecret     string
	ClientSecretSecret string

	// RefreshMargin is how long before expiry a cached token is replaced.
	RefreshMargin  time.Duration
	SecretCacheTTL time.Duration

	AllowedOrigins []string

	// RateLimit is requests per minute per client IP on public routes (0 = unlimited).
	RateLimit int

	// TrustProxy keys the rate limiter on X-Forwarded-For.
	TrustProxy bool

	// TileUpstream enables the /tiles/ proxy when set.
	TileUpstream string

	AWSRegion string
	SSMPrefix string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from file and environment variables.
// Environment variables override file config values.
func Load() *Config {
	fileConfig, err := LoadFile()
	if err != nil || fileConfig == nil {
		fileConfig = &FileConfig{}
	}
	return fromFile(fileConfig)
}

func fromFile(fc *FileConfig) *Config {
	return &Config{
		ServerPort:         getEnvOrFile("SERVER_PORT", fc.ServerPort, ":8080"),
		TokenURL:           getEnvOrFile("TOKEN_URL", fc.TokenURL, DefaultTokenURL),
		Scopes:             getEnvListOrFile("SCOPES", fc.Scopes, nil),
		SecretBackend:      getEnvOrFile("SECRET_BACKEND", fc.SecretBackend, BackendSQLite),
		ClientIDSecret:     getEnvOrFile("CLIENT_ID_SECRET", fc.ClientIDSecret, "project-api-key"),
		ClientSecretSecret: getEnvOrFile("CLIENT_SECRET_SECRET", fc.ClientSecretSecret, "client-secret"),
		RefreshMargin:      getEnvDurationOrFile("REFRESH_MARGIN", fc.RefreshMargin, 30*time.Second),
		SecretCacheTTL:     getEnvDurationOrFile("SECRET_CACHE_TTL", fc.SecretCacheTTL, 5*time.Minute),
		AllowedOrigins:     getEnvListOrFile("ALLOWED_ORIGINS", fc.AllowedOrigins, []string{"*"}),
		RateLimit:          getEnvIntOrFile("RATE_LIMIT", fc.RateLimit, 60),
		TrustProxy:         getEnvBoolOrFile("TRUST_PROXY", fc.TrustProxy, false),
		TileUpstream:       getEnvOrFile("TILE_UPSTREAM", fc.TileUpstream, ""),
		AWSRegion:          getEnvOrFile("AWS_REGION", fc.AWSRegion, ""),
		SSMPrefix:          getEnvOrFile("SSM_PREFIX", fc.SSMPrefix, ""),
		LogLevel:           getEnvOrFile("LOG_LEVEL", fc.LogLevel, "info"),
		LogFormat:          getEnvOrFile("LOG_FORMAT", fc.LogFormat, "text"),
	}
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	if err := validateHTTPURL("token_url", c.TokenURL, true); err != nil {
		return err
	}
	if err := validateHTTPURL("tile_upstream", c.TileUpstream, false); err != nil {
		return err
	}

	switch c.SecretBackend {
	case BackendSQLite, BackendSSM, BackendEnv:
	default:
		return fmt.Errorf("%w: unknown secret_backend %q", ErrInvalidConfig, c.SecretBackend)
	}

	if c.ClientIDSecret == "" || c.ClientSecretSecret == "" {
		return fmt.Errorf("%w: client_id_secret and client_secret_secret are required", ErrInvalidConfig)
	}
	if c.RefreshMargin < 0 {
		return fmt.Errorf("%w: refresh_margin must not be negative", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

func validateHTTPURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, field)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an http(s) URL", ErrInvalidConfig, field)
	}
	return nil
}

// getEnvOrFile returns env value, file value, or default (in priority order)
func getEnvOrFile(key, fileValue, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

// getEnvIntOrFile returns env int, file int, or default (in priority order).
// Unparseable env values are ignored.
func getEnvIntOrFile(key string, fileValue *int, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}

// getEnvBoolOrFile returns env bool, file bool, or default (in priority order)
func getEnvBoolOrFile(key string, fileValue *bool, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}

// getEnvDurationOrFile parses Go duration strings ("30s", "5m").
func getEnvDurationOrFile(key, fileValue string, defaultValue time.Duration) time.Duration {
	for _, raw := range []string{os.Getenv(key), fileValue} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvListOrFile splits a comma-separated env value.
func getEnvListOrFile(key string, fileValue, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	if len(fileValue) > 0 {
		return fileValue
	}
	return defaultValue
}
