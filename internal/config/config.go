package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Queue     QueueConfig     `yaml:"queue" envconfig:"QUEUE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Issuer    IssuerConfig    `yaml:"issuer" envconfig:"ISSUER"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// RetryConfig describes an exponential backoff policy
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	InitialDelay time.Duration `yaml:"initial_delay" envconfig:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" envconfig:"MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" envconfig:"MULTIPLIER"`
}

// LicenseConfig contains license validation configuration
type LicenseConfig struct {
	ServerURL            string        `yaml:"server_url" envconfig:"SERVER_URL"`
	Key                  string        `yaml:"key" envconfig:"KEY"`
	AppID                string        `yaml:"app_id" envconfig:"APP_ID"`
	Issuer               string        `yaml:"issuer" envconfig:"ISSUER"`
	TokenSecret          string        `yaml:"token_secret" envconfig:"TOKEN_SECRET"`
	Algorithm            string        `yaml:"algorithm" envconfig:"ALGORITHM"`
	DataDir              string        `yaml:"data_dir" envconfig:"DATA_DIR"`
	CacheMaxAge          time.Duration `yaml:"cache_max_age" envconfig:"CACHE_MAX_AGE"`
	RefreshInterval      time.Duration `yaml:"refresh_interval" envconfig:"REFRESH_INTERVAL"`
	RefreshThreshold     time.Duration `yaml:"refresh_threshold" envconfig:"REFRESH_THRESHOLD"`
	NetworkTimeout       time.Duration `yaml:"network_timeout" envconfig:"NETWORK_TIMEOUT"`
	WarningThresholdDays int           `yaml:"warning_threshold_days" envconfig:"WARNING_THRESHOLD_DAYS"`
	Retry                RetryConfig   `yaml:"retry" envconfig:"RETRY"`
}

// CacheFile returns the path of the signed validation cache
func (l LicenseConfig) CacheFile() string {
	return filepath.Join(l.DataDir, LicenseCacheFileName)
}

// OfflineStateFile returns the path of the persisted offline state
func (l LicenseConfig) OfflineStateFile() string {
	return filepath.Join(l.DataDir, OfflineStateFileName)
}

// QueueConfig contains job queue configuration
type QueueConfig struct {
	Workers           int           `yaml:"workers" envconfig:"WORKERS"`
	MaxRetries        int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout" envconfig:"PROCESSING_TIMEOUT"`
	PollInterval      time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
	AutoRetry         bool          `yaml:"auto_retry" envconfig:"AUTO_RETRY"`
	SnapshotFile      string        `yaml:"snapshot_file" envconfig:"SNAPSHOT_FILE"`
	Retry             RetryConfig   `yaml:"retry" envconfig:"RETRY"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT"`
	TracingEnabled bool   `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// IssuerConfig configures the development issuing server
type IssuerConfig struct {
	Port     int           `yaml:"port" envconfig:"PORT"`
	SeedFile string        `yaml:"seed_file" envconfig:"SEED_FILE"`
	TokenTTL time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (when non-empty and present), then LICENSEGATE_* environment variables.
// Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg. Keys absent from the file
// keep their current values.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// findConfigFile returns the first config file found in the usual locations
func findConfigFile() string {
	locations := []string{
		DefaultConfigFile,
		filepath.Join("configs", DefaultConfigFile),
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// resolvePaths makes data paths absolute
func (c *Config) resolvePaths() error {
	dataDir, err := filepath.Abs(c.License.DataDir)
	if err != nil {
		return err
	}
	c.License.DataDir = dataDir

	if c.Queue.SnapshotFile == "" {
		c.Queue.SnapshotFile = filepath.Join(dataDir, QueueSnapshotName)
	}
	return nil
}

// EnsureDirectories creates the license data directory if needed
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.License.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", c.License.DataDir, err)
	}
	return nil
}

// Validate checks the configuration for values that would break startup
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if len(c.License.TokenSecret) < MinTokenSecretLength {
		return fmt.Errorf("license token secret must be at least %d characters", MinTokenSecretLength)
	}
	switch strings.ToUpper(c.License.Algorithm) {
	case "HS256", "HS384", "HS512":
		c.License.Algorithm = strings.ToUpper(c.License.Algorithm)
	default:
		return fmt.Errorf("unsupported token algorithm: %q", c.License.Algorithm)
	}
	if c.License.AppID == "" {
		return fmt.Errorf("license app id must be set")
	}
	if c.License.NetworkTimeout <= 0 {
		return fmt.Errorf("license network timeout must be positive")
	}
	if c.License.WarningThresholdDays < 0 {
		return fmt.Errorf("warning threshold days cannot be negative")
	}
	if err := c.License.Retry.validate("license.retry"); err != nil {
		return err
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be at least 1")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue max retries cannot be negative")
	}
	if c.Queue.ProcessingTimeout <= 0 {
		return fmt.Errorf("queue processing timeout must be positive")
	}
	if err := c.Queue.Retry.validate("queue.retry"); err != nil {
		return err
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "console"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

func (r RetryConfig) validate(section string) error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries cannot be negative", section)
	}
	if r.InitialDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("%s delays cannot be negative", section)
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("%s.multiplier must be at least 1", section)
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		License: LicenseConfig{
			ServerURL:            "http://127.0.0.1:8090",
			AppID:                "licensegate-desktop",
			Issuer:               "licensegate-issuer",
			Algorithm:            "HS256",
			DataDir:              "data",
			CacheMaxAge:          DefaultCacheMaxAge,
			RefreshInterval:      DefaultRefreshInterval,
			RefreshThreshold:     72 * time.Hour,
			NetworkTimeout:       DefaultNetworkTimeout,
			WarningThresholdDays: 3,
			Retry: RetryConfig{
				MaxRetries:   3,
				InitialDelay: time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
			},
		},
		Queue: QueueConfig{
			Workers:           2,
			MaxRetries:        3,
			ProcessingTimeout: DefaultProcessingTimeout,
			PollInterval:      500 * time.Millisecond,
			AutoRetry:         true,
			Retry: RetryConfig{
				MaxRetries:   3,
				InitialDelay: time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "licensegate",
			Environment:    "development",
			TracingEnabled: false,
			MetricsEnabled: true,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Issuer: IssuerConfig{
			Port:     8090,
			SeedFile: "licenses.yaml",
			TokenTTL: 30 * 24 * time.Hour,
		},
	}
}
