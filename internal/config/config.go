package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultCodeAssistEndpoint is Google's Code Assist API base URL.
	DefaultCodeAssistEndpoint = "https://cloudcode-pa.googleapis.com"

	// CLIVersion is reported in the upstream User-Agent string.
	CLIVersion = "0.1.5"
)

// DefaultScopes are the OAuth scopes requested for every account.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Config holds the full runtime configuration.
type Config struct {
	// Server settings
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"log_file"`

	// Inbound authentication: the single shared secret accepted via
	// Bearer, Basic password, ?key= or x-goog-api-key.
	AuthPassword string `yaml:"auth_password"`

	// Account storage
	AccountsDir    string `yaml:"accounts_dir"`
	CredentialFile string `yaml:"credential_file"` // legacy single-account fallback

	// Upstream settings
	CodeAssistEndpoint string `yaml:"code_assist_endpoint"`
	GoogleProjectID    string `yaml:"google_project_id"` // optional override for project discovery
	ProxyURL           string `yaml:"proxy_url"`

	// OAuth client identity used for refresh and the one-time login flow
	OAuthClientID     string `yaml:"oauth_client_id"`
	OAuthClientSecret string `yaml:"oauth_client_secret"`
	OAuthCallbackPort int    `yaml:"oauth_callback_port"`

	// Transport timeouts (seconds)
	DialTimeoutSec           int `yaml:"dial_timeout_sec"`
	TLSHandshakeTimeoutSec   int `yaml:"tls_handshake_timeout_sec"`
	ResponseHeaderTimeoutSec int `yaml:"response_header_timeout_sec"`
	RequestTimeoutSec        int `yaml:"request_timeout_sec"`
	StreamTimeoutSec         int `yaml:"stream_timeout_sec"`

	// Token refresh behavior
	RefreshAheadSec    int `yaml:"refresh_ahead_sec"`
	RefreshIntervalMin int `yaml:"refresh_interval_min"`
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	return &Config{
		Host:                     "127.0.0.1",
		Port:                     "8888",
		AuthPassword:             "123456",
		AccountsDir:              "accounts",
		CredentialFile:           "oauth_creds.json",
		CodeAssistEndpoint:       DefaultCodeAssistEndpoint,
		OAuthCallbackPort:        8080,
		DialTimeoutSec:           10,
		TLSHandshakeTimeoutSec:   10,
		ResponseHeaderTimeoutSec: 60,
		RequestTimeoutSec:        120,
		StreamTimeoutSec:         600,
		RefreshAheadSec:          180,
		RefreshIntervalMin:       10,
	}
}

// LoadWithFile loads configuration from a YAML file (if it exists) and then
// applies environment variable overrides. A missing file is not an error;
// the defaults plus environment carry a usable configuration.
func LoadWithFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			log.Debugf("config file %s not found, using defaults", path)
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if cfg.CodeAssistEndpoint == "" {
		cfg.CodeAssistEndpoint = DefaultCodeAssistEndpoint
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Host, "HOST")
	setString(&c.Port, "PORT")
	setString(&c.AuthPassword, "GEMINI_AUTH_PASSWORD")
	setString(&c.AccountsDir, "ACCOUNTS_DIR")
	setString(&c.CredentialFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.CodeAssistEndpoint, "CODE_ASSIST_ENDPOINT")
	setString(&c.GoogleProjectID, "GOOGLE_CLOUD_PROJECT")
	setString(&c.ProxyURL, "PROXY_URL")
	setString(&c.OAuthClientID, "OAUTH_CLIENT_ID")
	setString(&c.OAuthClientSecret, "OAUTH_CLIENT_SECRET")
	setInt(&c.OAuthCallbackPort, "OAUTH_CALLBACK_PORT")
	setBool(&c.Debug, "DEBUG")
}

// ValidateAndExpandPaths normalizes relative paths against the working
// directory and ensures the accounts directory exists.
func (c *Config) ValidateAndExpandPaths() error {
	if c.AccountsDir == "" {
		return fmt.Errorf("accounts_dir must not be empty")
	}
	abs, err := filepath.Abs(c.AccountsDir)
	if err != nil {
		return fmt.Errorf("resolve accounts dir: %w", err)
	}
	c.AccountsDir = abs
	if err := os.MkdirAll(c.AccountsDir, 0o755); err != nil {
		return fmt.Errorf("create accounts dir: %w", err)
	}
	if c.CredentialFile != "" {
		if abs, err := filepath.Abs(c.CredentialFile); err == nil {
			c.CredentialFile = abs
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
