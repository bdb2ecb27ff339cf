package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const EnvPrefix = "BOOKING"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	Mode           string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type BookingConfig struct {
	SlotMinutes int           `mapstructure:"slot_minutes"`
	Location    string        `mapstructure:"location"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	// LockBackend is "local" or "redis".
	LockBackend string `mapstructure:"lock_backend"`
}

func (b BookingConfig) SlotDuration() time.Duration {
	return time.Duration(b.SlotMinutes) * time.Minute
}

// TimeZone resolves Location; the calendar's notion of "today" follows it.
func (b BookingConfig) TimeZone() (*time.Location, error) {
	if b.Location == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(b.Location)
}

type CacheConfig struct {
	ScheduleTTL     time.Duration `mapstructure:"schedule_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type OutboxConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Retention     time.Duration `mapstructure:"retention"`
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
	// Seed is a YAML or JSON file of practitioners and requesters loaded
	// into the memory driver at startup.
	Seed string `mapstructure:"seed"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Secrets are read straight from the environment and win over the config file.
type Secrets struct {
	DBPassword string `envconfig:"DB_PASSWORD"`
	JWTSecret  string `envconfig:"JWT_SECRET"`
	RedisURL   string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "booking")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.issuer", "booking-engine")
	v.SetDefault("jwt.ttl", time.Hour)

	v.SetDefault("booking.slot_minutes", 30)
	v.SetDefault("booking.location", "UTC")
	v.SetDefault("booking.lock_ttl", 5*time.Second)
	v.SetDefault("booking.lock_backend", "local")

	v.SetDefault("cache.schedule_ttl", 5*time.Minute)
	v.SetDefault("cache.cleanup_interval", 10*time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50.0)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("outbox.enabled", true)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 500*time.Millisecond)
	v.SetDefault("outbox.retention", 7*24*time.Hour)

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.seed", "")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads .env, then config.yaml (optional, or the file at path),
// then BOOKING_* environment variables, then secrets.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(EnvPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	cfg.applySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
}

func (c *Config) Validate() error {
	if c.Booking.SlotMinutes <= 0 || c.Booking.SlotMinutes > 24*60 {
		return fmt.Errorf("booking.slot_minutes must be between 1 and 1440, got %d", c.Booking.SlotMinutes)
	}
	if _, err := c.Booking.TimeZone(); err != nil {
		return fmt.Errorf("booking.location: %w", err)
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	switch c.Booking.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("booking.lock_backend must be local or redis, got %q", c.Booking.LockBackend)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required (set %s_JWT_SECRET)", EnvPrefix)
	}
	return nil
}
