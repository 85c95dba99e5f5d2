package core

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "SHELF_"

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration from, in increasing precedence: defaults, the
// TOML file named by -config or SHELF_CONFIG, a .env file, environment
// variables, and command line flags.
func Load(args []string, lookup LookupFunc) (Config, error) {
	cfg, _, err := LoadArgs(args, lookup)
	return cfg, err
}

// LoadArgs is Load but also returns the arguments left after the flags.
func LoadArgs(args []string, lookup LookupFunc) (Config, []string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	fs := flag.NewFlagSet("shelf", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configPath = fs.String("config", "", "path to a TOML configuration file")
		envFile    = fs.String("env-file", ".env", "path to a dotenv file")
		listen     = fs.String("listen", "", "HTTP listen address")
		backend    = fs.String("storage", "", "storage backend: memory, local or minio")
		dataDir    = fs.String("data-dir", "", "directory for the local storage backend")
		logLevel   = fs.String("log-level", "", "log level: debug, info, warn or error")
	)

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, fmt.Errorf("parse flags: %w", err)
	}

	cfg := NewConfig()

	path := *configPath
	if path == "" {
		path, _ = lookup(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	dotenv, err := godotenv.Read(*envFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, nil, fmt.Errorf("read env file %s: %w", *envFile, err)
	}

	// Real environment variables win over the dotenv file.
	env := func(key string) (string, bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok
	}

	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "storage":
			cfg.Storage.Backend = *backend
		case "data-dir":
			cfg.Storage.DataDir = *dataDir
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	return cfg, fs.Args(), nil
}

func applyEnv(cfg *Config, env LookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := env(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := env(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	integer64 := func(key string, dst *int64) {
		if v, ok := env(key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := env(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("LISTEN", &cfg.Listen)
	str("AUTH_PASSWORD", &cfg.Secret)
	str("TITLE", &cfg.Title)
	integer64("MAX_UPLOAD_BYTES", &cfg.MaxUploadBytes)
	str("CACHE_CONTROL", &cfg.CacheControl)
	boolean("METRICS", &cfg.Metrics)
	duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	integer("MOVE_CONCURRENCY", &cfg.Move.Concurrency)
	duration("MOVE_STEP_TIMEOUT", &cfg.Move.StepTimeout)
	integer("LIST_PAGE_SIZE", &cfg.Move.PageSize)

	str("STORAGE", &cfg.Storage.Backend)
	str("DATA_DIR", &cfg.Storage.DataDir)
	str("S3_ENDPOINT", &cfg.Storage.Minio.Endpoint)
	str("S3_ACCESS_KEY", &cfg.Storage.Minio.AccessKey)
	str("S3_SECRET_KEY", &cfg.Storage.Minio.SecretKey)
	str("S3_BUCKET", &cfg.Storage.Minio.Bucket)
	str("S3_REGION", &cfg.Storage.Minio.Region)
	boolean("S3_SSL", &cfg.Storage.Minio.UseSSL)

	str("TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	str("TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	str("WEBHOOK_URL", &cfg.Notify.WebhookURL)
	integer("NOTIFY_QUEUE_SIZE", &cfg.Notify.QueueSize)
	duration("NOTIFY_TIMEOUT", &cfg.Notify.Timeout)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}
