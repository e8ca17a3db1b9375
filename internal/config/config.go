package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Storage  StorageConfig  `yaml:"storage"`
	KV       KVConfig       `yaml:"kv"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	Fetch    FetchConfig    `yaml:"fetch"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
}

// AppConfig holds the packaging configuration of the hybrid app
type AppConfig struct {
	AppID  string          `yaml:"app_id" json:"app_id"`
	Name   string          `yaml:"app_name" json:"app_name"`
	WebDir string          `yaml:"web_dir" json:"web_dir"`
	Server AppServerConfig `yaml:"server" json:"server"`
}

// AppServerConfig overrides where the packaged app loads its web content from.
// Hostname is optional; an empty value means bundled assets on localhost.
type AppServerConfig struct {
	Hostname      string `yaml:"hostname" json:"hostname,omitempty"`
	AndroidScheme string `yaml:"android_scheme" json:"android_scheme"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// RuntimeConfig selects how the native-shell check is answered.
// Platform is one of "hybrid", "web" or "auto" (per request, from the X-Platform header).
// FileURLTTLMinutes bounds how long a translated file URL stays loadable.
type RuntimeConfig struct {
	Platform          string `yaml:"platform"`
	FileURLTTLMinutes int    `yaml:"file_url_ttl_minutes"`
}

// StorageConfig holds file storage configuration
type StorageConfig struct {
	Driver      string             `yaml:"driver"` // local or s3
	UniqueNames bool               `yaml:"unique_names"`
	Local       LocalStorageConfig `yaml:"local"`
	S3Prefix    string             `yaml:"s3_prefix"`
}

// LocalStorageConfig maps filesystem directories to paths on disk
type LocalStorageConfig struct {
	External string `yaml:"external"`
	Data     string `yaml:"data"`
	Cache    string `yaml:"cache"`
}

// KVConfig holds key-value storage configuration
type KVConfig struct {
	Driver string `yaml:"driver"` // memory or postgres
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds AWS configuration
type AWSConfig struct {
	Region     string `yaml:"region"`
	S3Bucket   string `yaml:"s3_bucket"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"`
	DisableSSL bool   `yaml:"disable_ssl"`
}

// FetchConfig limits outbound fetches of web photo paths.
// Loopback, private and link-local addresses are refused unless AllowPrivateNetworks is set.
type FetchConfig struct {
	TimeoutSeconds       int      `yaml:"timeout_seconds"`
	RatePerSecond        float64  `yaml:"rate_per_second"`
	Burst                int      `yaml:"burst"`
	AllowedHosts         []string `yaml:"allowed_hosts"`
	AllowPrivateNetworks bool     `yaml:"allow_private_networks"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file, then applies .env and environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// .env is optional outside development
	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

// Parse decodes YAML configuration and fills in defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.App.WebDir == "" {
		c.App.WebDir = "www"
	}
	if c.App.Server.AndroidScheme == "" {
		c.App.Server.AndroidScheme = "https"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Runtime.Platform == "" {
		c.Runtime.Platform = "web"
	}
	if c.Runtime.FileURLTTLMinutes == 0 {
		c.Runtime.FileURLTTLMinutes = 24 * 60
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.Local.External == "" {
		c.Storage.Local.External = "data/external"
	}
	if c.Storage.Local.Data == "" {
		c.Storage.Local.Data = "data/app"
	}
	if c.Storage.Local.Cache == "" {
		c.Storage.Local.Cache = "data/cache"
	}
	if c.KV.Driver == "" {
		c.KV.Driver = "memory"
	}
	if c.Fetch.TimeoutSeconds == 0 {
		c.Fetch.TimeoutSeconds = 15
	}
	if c.Fetch.RatePerSecond == 0 {
		c.Fetch.RatePerSecond = 10
	}
	if c.Fetch.Burst == 0 {
		c.Fetch.Burst = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Runtime.Platform {
	case "hybrid", "web", "auto":
	default:
		return fmt.Errorf("invalid runtime.platform %q", c.Runtime.Platform)
	}

	switch c.Storage.Driver {
	case "local":
	case "s3":
		if c.AWS.S3Bucket == "" {
			return fmt.Errorf("aws.s3_bucket is required for the s3 storage driver")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q", c.Storage.Driver)
	}

	switch c.KV.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid kv.driver %q", c.KV.Driver)
	}

	return nil
}

// applyEnv overrides secrets and deployment-specific values from the environment
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("LASER_JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := os.LookupEnv("LASER_DB_PASSWORD"); ok {
		c.Database.Password = v
	}
	if v, ok := os.LookupEnv("LASER_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("LASER_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
		c.AWS.AccessKey = v
	}
	if v, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
		c.AWS.SecretKey = v
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
