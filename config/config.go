package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// MaxPort is the maximum valid port number
	MaxPort = 65535
	// DefaultMaxBodySize limits webhook request bodies (1MB)
	DefaultMaxBodySize = 1024 * 1024
)

// Config holds all configuration for the vigil ingestion service
type Config struct {
	Listeners struct {
		Syslog struct {
			Host string `mapstructure:"host"`
			Port int    `mapstructure:"port"`
		} `mapstructure:"syslog"`
		Webhook struct {
			Host        string `mapstructure:"host"`
			Port        int    `mapstructure:"port"`
			Secret      string `mapstructure:"secret"`
			MaxBodySize int64  `mapstructure:"max_body_size"`
		} `mapstructure:"webhook"`
		RateLimit           int `mapstructure:"rate_limit"`
		MaxTCPConnections   int `mapstructure:"max_tcp_connections"`
		MaxConnectionsPerIP int `mapstructure:"max_connections_per_ip"`
	} `mapstructure:"listeners"`

	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"api"`

	Storage struct {
		// DataDir is the base data directory (VIGIL_DATA_DIR, default: ./data)
		DataDir string `mapstructure:"data_dir"`
		// SQLitePath is the event store path (VIGIL_SQLITE_PATH, default: ${DataDir}/vigil.db)
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("listeners.syslog.host", "0.0.0.0")
	viper.SetDefault("listeners.syslog.port", 514)
	viper.SetDefault("listeners.webhook.host", "0.0.0.0")
	viper.SetDefault("listeners.webhook.port", 8080)
	viper.SetDefault("listeners.webhook.secret", "")
	viper.SetDefault("listeners.webhook.max_body_size", DefaultMaxBodySize)
	viper.SetDefault("listeners.rate_limit", 5000)
	viper.SetDefault("listeners.max_tcp_connections", 1000)
	viper.SetDefault("listeners.max_connections_per_ip", 10)
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8081)
	viper.SetDefault("storage.data_dir", "./data")
	viper.SetDefault("storage.sqlite_path", "") // Empty = derive from data_dir
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("VIGIL")
	viper.AutomaticEnv()

	// Explicit bindings for shorter env var names. The unprefixed variants
	// match what existing FortiGate/FortiSIEM deployments already export.
	_ = viper.BindEnv("listeners.webhook.secret", "VIGIL_WEBHOOK_SECRET", "WEBHOOK_SECRET")
	_ = viper.BindEnv("listeners.webhook.port", "VIGIL_HTTP_PORT")
	_ = viper.BindEnv("listeners.syslog.port", "VIGIL_SYSLOG_PORT", "SYSLOG_PORT")
	_ = viper.BindEnv("api.port", "VIGIL_API_PORT")
	_ = viper.BindEnv("storage.data_dir", "VIGIL_DATA_DIR")
	_ = viper.BindEnv("storage.sqlite_path", "VIGIL_SQLITE_PATH")
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if err := validatePort(config.Listeners.Syslog.Port); err != nil {
		return fmt.Errorf("syslog listener: %w", err)
	}
	if err := validatePort(config.Listeners.Webhook.Port); err != nil {
		return fmt.Errorf("webhook listener: %w", err)
	}
	if err := validatePort(config.API.Port); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	if config.Listeners.Webhook.Secret == "" {
		return fmt.Errorf("webhook shared secret must be set (VIGIL_WEBHOOK_SECRET)")
	}
	if config.Listeners.Webhook.MaxBodySize <= 0 {
		config.Listeners.Webhook.MaxBodySize = DefaultMaxBodySize
	}
	return nil
}

// validatePort validates that a port number is within the valid range.
// Port 0 is allowed for automatic port assignment (commonly used in testing).
func validatePort(port int) error {
	if port < 0 || port > MaxPort {
		return fmt.Errorf("invalid port number: %d (must be between 0 and %d)", port, MaxPort)
	}
	return nil
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.ResolveDataPaths()

	return &config, nil
}

// ResolveDataPaths derives the SQLite path from DataDir when not set explicitly
func (c *Config) ResolveDataPaths() {
	dataDir := c.Storage.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(dataDir, "vigil.db")
	} else if !filepath.IsAbs(c.Storage.SQLitePath) {
		c.Storage.SQLitePath = filepath.Clean(c.Storage.SQLitePath)
	}
	c.Storage.DataDir = dataDir
}
