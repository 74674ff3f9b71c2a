package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file structure.
// Pointer and zero values mean "not set" so env vars and defaults can apply.
type FileConfig struct {
	ServerPort         string   `toml:"server_port"`
	TokenURL           string   `toml:"token_url"`
	Scopes             []string `toml:"scopes"`
	SecretBackend      string   `toml:"secret_backend"`
	ClientIDSecret     string   `toml:"client_id_secret"`
	ClientSecretSecret string   `toml:"client_secret_secret"`
	RefreshMargin      string   `toml:"refresh_margin"`
	SecretCacheTTL     string   `toml:"secret_cache_ttl"`
	AllowedOrigins     []string `toml:"allowed_origins"`
	RateLimit          *int     `toml:"rate_limit"`
	TrustProxy         *bool    `toml:"trust_proxy"`
	TileUpstream       string   `toml:"tile_upstream"`
	AWSRegion          string   `toml:"aws_region"`
	SSMPrefix          string   `toml:"ssm_prefix"`
	LogLevel           string   `toml:"log_level"`
	LogFormat          string   `toml:"log_format"`
}

// ConfigPath returns the path to the config file (~/.maptoken/config.toml).
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// LoadFile loads configuration from the TOML file.
// Returns an empty FileConfig if the file doesn't exist.
func LoadFile() (*FileConfig, error) {
	return loadFileFrom(ConfigPath())
}

func loadFileFrom(path string) (*FileConfig, error) {
	cfg := &FileConfig{}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureConfigFile creates a default config file with commented examples if none exists.
func EnsureConfigFile() error {
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := EnsureDataDir(); err != nil {
		return err
	}

	defaultConfig := `# maptoken configuration
# server_port = ":8080"

# OAuth2 token endpoint (client credentials grant)
# token_url = "https://api.os.uk/oauth2/token/v1"
# scopes = []

# Where the API key and secret are read from: "sqlite", "ssm" or "env"
# secret_backend = "sqlite"
# client_id_secret = "project-api-key"
# client_secret_secret = "client-secret"

# Refresh the token this long before the vendor expiry
# refresh_margin = "30s"
# secret_cache_ttl = "5m"

# Browser origins allowed to call /api/token
# allowed_origins = ["https://maps.example.com"]
# rate_limit = 60  # requests per minute per client IP, 0 = unlimited
# trust_proxy = false  # key the rate limit on X-Forwarded-For

# Optional tile proxy; requests to /tiles/... are forwarded here with the bearer token
# tile_upstream = "https://api.os.uk/maps/raster/v1/zxy"

# AWS Systems Manager Parameter Store (secret_backend = "ssm")
# aws_region = "eu-west-2"
# ssm_prefix = "/maptoken/"

# log_level = "info"   # debug, info, warn, error
# log_format = "text"  # text or json
`

	return os.WriteFile(path, []byte(defaultConfig), 0600)
}
