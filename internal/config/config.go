package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `toml:"server"`

	// Database configuration
	Database DatabaseConfig `toml:"database"`

	// Logging configuration
	Log LogConfig `toml:"log"`

	// Security configuration
	Security SecurityConfig `toml:"security"`

	// GitHub App configuration
	GitHub GitHubConfig `toml:"github"`

	// Message broker configuration
	AMQP AMQPConfig `toml:"amqp"`

	// Seed template configuration
	Seed SeedConfig `toml:"seed"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host               string        `toml:"host"`
	Port               int           `toml:"port"`
	ReadTimeout        time.Duration `toml:"read_timeout"`
	WriteTimeout       time.Duration `toml:"write_timeout"`
	ShutdownTimeout    time.Duration `toml:"shutdown_timeout"`
	RateLimitPerMinute int           `toml:"rate_limit_per_minute"`
	TrustProxyHeaders  bool          `toml:"trust_proxy_headers"`
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "text"
}

// SecurityConfig holds security-specific configuration
type SecurityConfig struct {
	// API Keys - sent by clients for authentication
	APIKeys []string `toml:"api_keys"`
}

// GitHubConfig holds GitHub credentials. Either AppID with a private key,
// or Token, must be set.
type GitHubConfig struct {
	AppID          int64  `toml:"app_id"`
	PrivateKey     string `toml:"private_key"`
	PrivateKeyPath string `toml:"private_key_path"`
	Token          string `toml:"token"`
	APIURL         string `toml:"api_url"`
	WebhookSecret  string `toml:"webhook_secret"`
}

// AMQPConfig holds the optional outcome publisher configuration
type AMQPConfig struct {
	URL   string `toml:"url"`
	Queue string `toml:"queue"`
}

// SeedConfig holds seed template configuration
type SeedConfig struct {
	// Dir replaces the packaged seed templates when set
	Dir string `toml:"dir"`
}

// Options controls where Load reads from
type Options struct {
	// EnvFile is loaded into the environment first; missing is fine
	EnvFile string

	// ConfigFile is an optional TOML file. Falls back to APP_CONFIG_FILE.
	ConfigFile string
}

// Load loads configuration from defaults, an optional TOML file and the
// environment, in increasing order of precedence
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Try to load .env file (ignore errors - it's optional)
	_ = godotenv.Load(envFile)

	cfg := defaults()

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = os.Getenv("APP_CONFIG_FILE")
	}
	if configFile != "" {
		if _, err := toml.DecodeFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       60 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			RateLimitPerMinute: 600,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:dynamic-pr-templates.db?_foreign_keys=on",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		GitHub: GitHubConfig{
			APIURL: "https://api.github.com/",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.RateLimitPerMinute = getEnvAsInt("RATE_LIMIT_PER_MINUTE", cfg.Server.RateLimitPerMinute)
	cfg.Server.TrustProxyHeaders = getEnvAsBool("TRUST_PROXY_HEADERS", cfg.Server.TrustProxyHeaders)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("DB_DSN", cfg.Database.DSN)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Security.APIKeys = getEnvAsSlice("API_KEYS", cfg.Security.APIKeys)

	cfg.GitHub.AppID = getEnvAsInt64("GITHUB_APP_ID", cfg.GitHub.AppID)
	cfg.GitHub.PrivateKey = getEnv("GITHUB_PRIVATE_KEY", cfg.GitHub.PrivateKey)
	cfg.GitHub.PrivateKeyPath = getEnv("GITHUB_PRIVATE_KEY_PATH", cfg.GitHub.PrivateKeyPath)
	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", cfg.GitHub.Token)
	cfg.GitHub.APIURL = getEnv("GITHUB_API_URL", cfg.GitHub.APIURL)
	cfg.GitHub.WebhookSecret = getEnv("GITHUB_WEBHOOK_SECRET", cfg.GitHub.WebhookSecret)

	cfg.AMQP.URL = getEnv("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Queue = getEnv("AMQP_QUEUE", cfg.AMQP.Queue)

	cfg.Seed.Dir = getEnv("SEED_DIR", cfg.Seed.Dir)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %q (expected json or text)", c.Log.Format)
	}

	// GitHub credentials
	if c.GitHub.UsesApp() && c.GitHub.Token != "" {
		return fmt.Errorf("set either GITHUB_APP_ID or GITHUB_TOKEN, not both")
	}
	if !c.GitHub.UsesApp() && c.GitHub.Token == "" {
		return fmt.Errorf("github credentials are required: set GITHUB_APP_ID with a private key, or GITHUB_TOKEN")
	}
	if c.GitHub.UsesApp() && c.GitHub.PrivateKey == "" && c.GitHub.PrivateKeyPath == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY or GITHUB_PRIVATE_KEY_PATH is required with GITHUB_APP_ID")
	}
	if c.GitHub.UsesApp() && c.GitHub.WebhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET is required with GITHUB_APP_ID")
	}

	// Security validation
	if len(c.Security.APIKeys) == 0 {
		return fmt.Errorf("at least one API key is required")
	}

	// Check for default/insecure API keys
	for _, key := range c.Security.APIKeys {
		if key == "default-api-key" || key == "api-key-123" || len(key) < 8 {
			return fmt.Errorf("insecure or default API key detected: '%s'. Please set secure API keys in environment variables", key)
		}
	}

	return nil
}

// Address returns the server address in the format host:port
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UsesApp reports whether GitHub App authentication is configured
func (g *GitHubConfig) UsesApp() bool {
	return g.AppID != 0
}

// PrivateKeyPEM returns the app private key. An inline key may carry
// escaped newlines, as is common in environment files.
func (g *GitHubConfig) PrivateKeyPEM() ([]byte, error) {
	if g.PrivateKey != "" {
		return []byte(strings.ReplaceAll(g.PrivateKey, `\n`, "\n")), nil
	}

	key, err := os.ReadFile(g.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read github private key: %w", err)
	}
	return key, nil
}

// Helper functions to get environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	// Split by comma and trim spaces
	values := make([]string, 0)
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}

	return values
}
