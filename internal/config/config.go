package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/ferry/internal/progress"
)

// EnvPrefix is the prefix of every environment variable read by LoadFromEnv.
const EnvPrefix = "FERRY_"

// Config defines configuration for the ferry CLI.
type Config struct {
	// Bucket is a gocloud bucket URL (mem://, file://, s3://, gs://).
	Bucket string `yaml:"bucket"`
	// Gateway is the base URL of an object gateway. Used instead of Bucket.
	Gateway string `yaml:"gateway"`

	BucketID string `yaml:"bucket_id"`
	User     string `yaml:"user"`
	Token    string `yaml:"token"`

	Workers   int           `yaml:"workers"`
	ChunkSize int64         `yaml:"chunk_size"`
	Progress  bool          `yaml:"progress"`
	Timeout   time.Duration `yaml:"timeout"`
	Retry     RetryConfig   `yaml:"retry"`
	Redis     RedisConfig   `yaml:"redis"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	// Attempts is the retry budget of each chunk.
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// RedisConfig locates the retry journal.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Workers:   6,
		ChunkSize: 8 * 1024 * 1024, // 8MiB
		Timeout:   5 * time.Minute,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "ferry:retry",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Bucket    string          `yaml:"bucket"`
	Gateway   string          `yaml:"gateway"`
	BucketID  string          `yaml:"bucket_id"`
	User      string          `yaml:"user"`
	Token     string          `yaml:"token"`
	Workers   int             `yaml:"workers"`
	ChunkSize string          `yaml:"chunk_size"`
	Progress  bool            `yaml:"progress"`
	Timeout   string          `yaml:"timeout"`
	Retry     yamlRetryConfig `yaml:"retry"`
	Redis     RedisConfig     `yaml:"redis"`
}

type yamlRetryConfig struct {
	Attempts   *int   `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	override := Config{
		Bucket:   yc.Bucket,
		Gateway:  yc.Gateway,
		BucketID: yc.BucketID,
		User:     yc.User,
		Token:    yc.Token,
		Workers:  yc.Workers,
		Progress: yc.Progress,
		Redis:    yc.Redis,
	}
	if yc.ChunkSize != "" {
		if override.ChunkSize, err = progress.ParseBytes(yc.ChunkSize); err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
	}
	if override.Timeout, err = parseDuration("timeout", yc.Timeout); err != nil {
		return Config{}, err
	}
	if override.Retry.Backoff, err = parseDuration("retry.backoff", yc.Retry.Backoff); err != nil {
		return Config{}, err
	}
	if override.Retry.MaxBackoff, err = parseDuration("retry.max_backoff", yc.Retry.MaxBackoff); err != nil {
		return Config{}, err
	}

	cfg := Default().Merge(override)
	// Zero is a valid budget, so attempts bypasses Merge.
	set(&cfg.Retry.Attempts, yc.Retry.Attempts)
	return cfg, nil
}

func parseDuration(name, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}

// envConfig mirrors Config for envconfig. Pointer fields stay nil when the
// variable is unset.
type envConfig struct {
	Bucket    *string        `env:"BUCKET, noinit"`
	Gateway   *string        `env:"GATEWAY, noinit"`
	BucketID  *string        `env:"BUCKET_ID, noinit"`
	User      *string        `env:"USER, noinit"`
	Token     *string        `env:"TOKEN, noinit"`
	Workers   *int           `env:"WORKERS, noinit"`
	ChunkSize *string        `env:"CHUNK_SIZE, noinit"`
	Progress  *bool          `env:"PROGRESS, noinit"`
	Timeout   *time.Duration `env:"TIMEOUT, noinit"`

	RetryAttempts   *int           `env:"RETRY_ATTEMPTS, noinit"`
	RetryBackoff    *time.Duration `env:"RETRY_BACKOFF, noinit"`
	RetryMaxBackoff *time.Duration `env:"RETRY_MAX_BACKOFF, noinit"`

	RedisAddr     *string `env:"REDIS_ADDR, noinit"`
	RedisPassword *string `env:"REDIS_PASSWORD, noinit"`
	RedisDB       *int    `env:"REDIS_DB, noinit"`
	RedisKey      *string `env:"REDIS_KEY, noinit"`
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the FERRY_ prefix.
func (c *Config) LoadFromEnv(ctx context.Context) error {
	return c.loadFromEnv(ctx, envconfig.OsLookuper())
}

func (c *Config) loadFromEnv(ctx context.Context, l envconfig.Lookuper) error {
	var in envConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &in,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, l),
	}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	set(&c.Bucket, in.Bucket)
	set(&c.Gateway, in.Gateway)
	set(&c.BucketID, in.BucketID)
	set(&c.User, in.User)
	set(&c.Token, in.Token)
	set(&c.Workers, in.Workers)
	set(&c.Progress, in.Progress)
	set(&c.Timeout, in.Timeout)
	set(&c.Retry.Attempts, in.RetryAttempts)
	set(&c.Retry.Backoff, in.RetryBackoff)
	set(&c.Retry.MaxBackoff, in.RetryMaxBackoff)
	set(&c.Redis.Addr, in.RedisAddr)
	set(&c.Redis.Password, in.RedisPassword)
	set(&c.Redis.DB, in.RedisDB)
	set(&c.Redis.Key, in.RedisKey)

	if in.ChunkSize != nil {
		size, err := progress.ParseBytes(*in.ChunkSize)
		if err != nil {
			return fmt.Errorf("parse %sCHUNK_SIZE: %w", EnvPrefix, err)
		}
		c.ChunkSize = size
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate validates the settings shared by every command. Object
// identifiers are checked by the commands that need them.
func (c *Config) Validate() error {
	if c.Bucket == "" && c.Gateway == "" {
		return errors.New("config: bucket or gateway is required")
	}
	if c.Bucket != "" && c.Gateway != "" {
		return errors.New("config: bucket and gateway are mutually exclusive")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts must not be negative")
	}
	if c.Retry.MaxBackoff < c.Retry.Backoff {
		return errors.New("config: retry.max_backoff must not be below retry.backoff")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.Gateway != "" {
		c.Gateway = override.Gateway
	}
	if override.BucketID != "" {
		c.BucketID = override.BucketID
	}
	if override.User != "" {
		c.User = override.User
	}
	if override.Token != "" {
		c.Token = override.Token
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Redis.Addr != "" {
		c.Redis.Addr = override.Redis.Addr
	}
	if override.Redis.Password != "" {
		c.Redis.Password = override.Redis.Password
	}
	if override.Redis.DB != 0 {
		c.Redis.DB = override.Redis.DB
	}
	if override.Redis.Key != "" {
		c.Redis.Key = override.Redis.Key
	}
	return c
}
