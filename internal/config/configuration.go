package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	StorageLocal = "local"
	StorageCloud = "cloud"

	LockLocal    = "local"
	LockFile     = "file"
	LockPostgres = "postgres"
	LockRedis    = "redis"
)

type Config struct {
	// STORAGE_BACKEND selects filesystem + SQLite ("local") or S3 +
	// PostgreSQL ("cloud").
	StorageBackend string `mapstructure:"STORAGE_BACKEND" validate:"required,oneof=local cloud"`
	// LOCK_BACKEND defaults to "file" for local storage and "postgres" for
	// cloud storage.
	LockBackend string `mapstructure:"LOCK_BACKEND" validate:"omitempty,oneof=local file postgres redis"`

	Database DatabaseConfig `mapstructure:",squash"`
	S3       S3Config       `mapstructure:",squash"`
	Redis    RedisConfig    `mapstructure:",squash"`
	Local    LocalConfig    `mapstructure:",squash"`
	Staging  StagingConfig  `mapstructure:",squash"`
	Tools    ToolsConfig    `mapstructure:",squash"`
	Naming   NamingConfig   `mapstructure:",squash"`
	Retry    RetryConfig    `mapstructure:",squash"`
	Log      LogConfig      `mapstructure:",squash"`

	SignedURLTTL      time.Duration `mapstructure:"SIGNED_URL_TTL" validate:"gt=0"`
	UploadConcurrency int           `mapstructure:"UPLOAD_CONCURRENCY" validate:"gte=1,lte=64"`
}

type DatabaseConfig struct {
	DatabaseDSN     string `mapstructure:"DATABASE_DSN"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"S3_ENDPOINT"`
	AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	SecretKey string `mapstructure:"S3_SECRET_KEY"`
	Bucket    string `mapstructure:"S3_BUCKET"`
	Region    string `mapstructure:"S3_REGION"`
	UseSSL    bool   `mapstructure:"S3_USE_SSL"`
}

type RedisConfig struct {
	Addr       string        `mapstructure:"REDIS_ADDR"`
	Password   string        `mapstructure:"REDIS_PASSWORD"`
	DB         int           `mapstructure:"REDIS_DB" validate:"gte=0"`
	LockPrefix string        `mapstructure:"REDIS_LOCK_PREFIX"`
	LockTTL    time.Duration `mapstructure:"REDIS_LOCK_TTL"`
}

type LocalConfig struct {
	// DATA_DIR holds objects/, the SQLite database and lock files.
	DataDir string `mapstructure:"DATA_DIR" validate:"required"`
	// PUBLIC_BASE_URL prefixes signed links to local objects.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL" validate:"required,url"`
	SigningKey    string `mapstructure:"SIGNING_KEY"`
}

type StagingConfig struct {
	StagingDir    string        `mapstructure:"STAGING_DIR" validate:"required"`
	StagingMaxAge time.Duration `mapstructure:"STAGING_MAX_AGE"`
}

type ToolsConfig struct {
	// TOOL_SEARCH_PATH is the only PATH tools see.
	SearchPath string `mapstructure:"TOOL_SEARCH_PATH"`
	// TOOL_HOME is exported as HOME to tools that cache state there.
	Home        string        `mapstructure:"TOOL_HOME"`
	Timeout     time.Duration `mapstructure:"TOOL_TIMEOUT" validate:"gt=0"`
	OutputLimit string        `mapstructure:"TOOL_OUTPUT_LIMIT" validate:"required"`

	// OutputLimitBytes is OutputLimit parsed.
	OutputLimitBytes int64 `mapstructure:"-"`

	YtdlpPath         string `mapstructure:"YTDLP_PATH" validate:"required"`
	YtdlpCookiesFile  string `mapstructure:"YTDLP_COOKIES_FILE"`
	FFmpegPath        string `mapstructure:"FFMPEG_PATH" validate:"required"`
	FFprobePath       string `mapstructure:"FFPROBE_PATH" validate:"required"`
	SpleeterPath      string `mapstructure:"SPLEETER_PATH" validate:"required"`
	SpleeterModelPath string `mapstructure:"SPLEETER_MODEL_PATH"`
	PythonPath        string `mapstructure:"PYTHON_PATH" validate:"required"`
	ChordScript       string `mapstructure:"CHORD_SCRIPT"`
}

type NamingConfig struct {
	NamingStyle       string `mapstructure:"NAMING_STYLE" validate:"oneof=counter timestamp"`
	NamingMaxAttempts int    `mapstructure:"NAMING_MAX_ATTEMPTS" validate:"gte=1"`
}

type RetryConfig struct {
	RetryAttempts  uint64        `mapstructure:"STORE_RETRY_ATTEMPTS"`
	RetryBaseDelay time.Duration `mapstructure:"STORE_RETRY_BASE_DELAY"`
}

type LogConfig struct {
	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`
}

// EffectiveLockBackend resolves the default lock backend for the storage
// backend.
func (c *Config) EffectiveLockBackend() string {
	if c.LockBackend != "" {
		return c.LockBackend
	}
	if c.StorageBackend == StorageCloud {
		return LockPostgres
	}
	return LockFile
}

// LogValue keeps secrets out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("storage_backend", c.StorageBackend),
		slog.String("lock_backend", c.EffectiveLockBackend()),
		slog.String("data_dir", c.Local.DataDir),
		slog.String("s3_endpoint", c.S3.Endpoint),
		slog.String("s3_bucket", c.S3.Bucket),
		slog.String("redis_addr", c.Redis.Addr),
		slog.String("staging_dir", c.Staging.StagingDir),
		slog.String("tool_output_limit", humanize.IBytes(uint64(c.Tools.OutputLimitBytes))),
		slog.Duration("tool_timeout", c.Tools.Timeout),
		slog.String("naming_style", c.Naming.NamingStyle),
		slog.String("log_level", c.Log.LogLevel),
	)
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && (tag == "" || strings.Contains(opts, "squash")) {
			bindEnv(field.Type)
			continue
		}

		if tag != "" && tag != "-" {
			viper.BindEnv(tag)
		}
	}
}

func setDefaults() {
	viper.SetDefault("STORAGE_BACKEND", StorageLocal)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("S3_USE_SSL", true)
	viper.SetDefault("REDIS_LOCK_PREFIX", "sonicstream:lock:")
	viper.SetDefault("REDIS_LOCK_TTL", 30*time.Second)
	viper.SetDefault("DATA_DIR", "./data")
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080/files/")
	viper.SetDefault("STAGING_DIR", filepath.Join(os.TempDir(), "sonicstream"))
	viper.SetDefault("STAGING_MAX_AGE", 24*time.Hour)
	viper.SetDefault("TOOL_SEARCH_PATH", "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin")
	viper.SetDefault("TOOL_TIMEOUT", 30*time.Minute)
	viper.SetDefault("TOOL_OUTPUT_LIMIT", "10MiB")
	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("FFPROBE_PATH", "ffprobe")
	viper.SetDefault("SPLEETER_PATH", "spleeter")
	viper.SetDefault("PYTHON_PATH", "python3")
	viper.SetDefault("NAMING_STYLE", "counter")
	viper.SetDefault("NAMING_MAX_ATTEMPTS", 1000)
	viper.SetDefault("STORE_RETRY_ATTEMPTS", 3)
	viper.SetDefault("STORE_RETRY_BASE_DELAY", 200*time.Millisecond)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("SIGNED_URL_TTL", 15*time.Minute)
	viper.SetDefault("UPLOAD_CONCURRENCY", 4)
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(reflect.TypeOf(Config{}))
	viper.AutomaticEnv()

	// Defaults
	setDefaults()

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	limit, err := humanize.ParseBytes(cfg.Tools.OutputLimit)
	if err != nil || limit == 0 {
		return nil, fmt.Errorf("validate config: TOOL_OUTPUT_LIMIT %q is not a positive size", cfg.Tools.OutputLimit)
	}
	cfg.Tools.OutputLimitBytes = int64(limit)

	if err := cfg.validateBackends(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	slog.Info("Loaded configuration", "config", cfg)

	return &cfg, nil
}

// validateBackends checks settings that are only required by the selected
// backends.
func (c *Config) validateBackends() error {
	var errs []error
	require := func(val, key string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	switch c.StorageBackend {
	case StorageCloud:
		require(c.Database.DatabaseDSN, "DATABASE_DSN")
		require(c.S3.Endpoint, "S3_ENDPOINT")
		require(c.S3.Bucket, "S3_BUCKET")
		require(c.S3.AccessKey, "S3_ACCESS_KEY")
		require(c.S3.SecretKey, "S3_SECRET_KEY")
	case StorageLocal:
		if n := len(c.Local.SigningKey); n < 16 || n > 64 {
			errs = append(errs, errors.New("SIGNING_KEY must be 16 to 64 bytes"))
		}
	}

	switch c.EffectiveLockBackend() {
	case LockPostgres:
		require(c.Database.DatabaseDSN, "DATABASE_DSN")
	case LockRedis:
		require(c.Redis.Addr, "REDIS_ADDR")
		if c.Redis.LockTTL <= 0 {
			errs = append(errs, errors.New("REDIS_LOCK_TTL must be positive"))
		}
	}

	return errors.Join(errs...)
}
