package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageMinio  = "minio"

	DefaultMaxUploadBytes = 100 << 20
	DefaultCacheControl   = "public, max-age=259200"
)

type MoveConfig struct {
	Concurrency int           `toml:"concurrency"`
	StepTimeout time.Duration `toml:"step_timeout"`
	PageSize    int           `toml:"page_size"`
}

type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

type StorageConfig struct {
	Backend string      `toml:"backend"`
	DataDir string      `toml:"data_dir"`
	Minio   MinioConfig `toml:"minio"`
}

type NotifyConfig struct {
	TelegramToken  string        `toml:"telegram_token"`
	TelegramChatID string        `toml:"telegram_chat_id"`
	WebhookURL     string        `toml:"webhook_url"`
	QueueSize      int           `toml:"queue_size"`
	Timeout        time.Duration `toml:"timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the complete runtime configuration of the file manager.
type Config struct {
	Listen          string        `toml:"listen"`
	Secret          string        `toml:"auth_password"`
	Title           string        `toml:"title"`
	MaxUploadBytes  int64         `toml:"max_upload_bytes"`
	CacheControl    string        `toml:"cache_control"`
	Metrics         bool          `toml:"metrics"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	Move    MoveConfig    `toml:"move"`
	Storage StorageConfig `toml:"storage"`
	Notify  NotifyConfig  `toml:"notify"`
	Log     LogConfig     `toml:"log"`
}

type ConfigOption func(*Config)

func WithSecret(secret string) ConfigOption {
	return func(cfg *Config) {
		cfg.Secret = secret
	}
}

func WithListen(addr string) ConfigOption {
	return func(cfg *Config) {
		cfg.Listen = addr
	}
}

func WithMaxUploadBytes(n int64) ConfigOption {
	return func(cfg *Config) {
		cfg.MaxUploadBytes = n
	}
}

func WithMoveConcurrency(n int) ConfigOption {
	return func(cfg *Config) {
		cfg.Move.Concurrency = n
	}
}

func WithStorageBackend(backend string) ConfigOption {
	return func(cfg *Config) {
		cfg.Storage.Backend = backend
	}
}

func WithDataDir(dataDir string) ConfigOption {
	return func(cfg *Config) {
		cfg.Storage.DataDir = dataDir
	}
}

// NewConfig returns the defaults with opts applied on top.
func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{
		Listen:          ":8080",
		Title:           "Shelf",
		MaxUploadBytes:  DefaultMaxUploadBytes,
		CacheControl:    DefaultCacheControl,
		Metrics:         true,
		ShutdownTimeout: 10 * time.Second,
		Move: MoveConfig{
			Concurrency: 8,
			StepTimeout: 30 * time.Second,
			PageSize:    1000,
		},
		Storage: StorageConfig{
			Backend: StorageLocal,
			DataDir: "./data",
			Minio: MinioConfig{
				Endpoint: "localhost:9000",
				Bucket:   "shelf",
				Region:   "us-east-1",
			},
		},
		Notify: NotifyConfig{
			QueueSize: 256,
			Timeout:   10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if c.Secret == "" {
		errs = append(errs, errors.New("auth password must be set"))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address must be set"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.Move.Concurrency < 1 || c.Move.Concurrency > 64 {
		errs = append(errs, fmt.Errorf("move concurrency must be between 1 and 64, got %d", c.Move.Concurrency))
	}
	if c.Move.StepTimeout <= 0 {
		errs = append(errs, errors.New("move step timeout must be positive"))
	}
	if c.Move.PageSize < 1 || c.Move.PageSize > 1000 {
		errs = append(errs, fmt.Errorf("list page size must be between 1 and 1000, got %d", c.Move.PageSize))
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("data dir must be set for local storage"))
		}
	case StorageMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			errs = append(errs, errors.New("minio endpoint and bucket must be set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, errors.New("telegram token and chat id must be set together"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
