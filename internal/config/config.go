package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Cache backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMinIO    = "minio"
)

// Sweep modes.
const (
	SweepModeInProcess = "inprocess"
	SweepModeQueue     = "queue"
)

type Config struct {
	Server    ServerConfig
	Cache     CacheConfig
	Resolver  ResolverConfig
	Proxy     ProxyConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	MinIO     MinIOConfig
	RabbitMQ  RabbitMQConfig
}

type ServerConfig struct {
	Port        int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	// Zero disables the write deadline; downloads can run for as long as the caller reads.
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `envconfig:"API_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

type CacheConfig struct {
	Backend          string        `envconfig:"CACHE_BACKEND" default:"file"`
	Dir              string        `envconfig:"CACHE_DIR" default:"./cache"`
	FreshnessWindow  time.Duration `envconfig:"CACHE_FRESHNESS_WINDOW" default:"6h"`
	RetentionWindow  time.Duration `envconfig:"CACHE_RETENTION_WINDOW" default:"24h"`
	SweepTimeout     time.Duration `envconfig:"CACHE_SWEEP_TIMEOUT" default:"30s"`
	SweepMinInterval time.Duration `envconfig:"CACHE_SWEEP_MIN_INTERVAL" default:"1m"`
	SweepMode        string        `envconfig:"CACHE_SWEEP_MODE" default:"inprocess"`
}

type ResolverConfig struct {
	BinaryPath string        `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	Timeout    time.Duration `envconfig:"YTDLP_TIMEOUT" default:"30s"`
}

type ProxyConfig struct {
	UserAgent             string        `envconfig:"PROXY_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`
	Referer               string        `envconfig:"PROXY_REFERER" default:"https://www.youtube.com/"`
	DialTimeout           time.Duration `envconfig:"PROXY_DIAL_TIMEOUT" default:"10s"`
	TLSHandshakeTimeout   time.Duration `envconfig:"PROXY_TLS_HANDSHAKE_TIMEOUT" default:"10s"`
	ResponseHeaderTimeout time.Duration `envconfig:"PROXY_RESPONSE_HEADER_TIMEOUT" default:"15s"`
}

type RateLimitConfig struct {
	Enabled  bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Requests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	Burst    int           `envconfig:"RATE_LIMIT_BURST" default:"10"`
	IdleTTL  time.Duration `envconfig:"RATE_LIMIT_IDLE_TTL" default:"10m"`
	// TrustForwarded keys callers by X-Forwarded-For; enable only behind a trusted proxy.
	TrustForwarded bool `envconfig:"RATE_LIMIT_TRUST_FORWARDED" default:"false"`
}

type WorkerConfig struct {
	// TaskMaxDelay drops queued sweep tasks older than this; a newer task will follow.
	TaskMaxDelay    time.Duration `envconfig:"WORKER_TASK_MAX_DELAY" default:"10m"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"vidrelay"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"vidrelay"`
	DBName   string `envconfig:"POSTGRES_DB" default:"vidrelay"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"item-cache"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"vidrelay"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"vidrelay"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that envconfig cannot express as types.
func (c *Config) Validate() error {
	var errs []error

	switch c.Cache.Backend {
	case BackendFile, BackendRedis, BackendPostgres, BackendMinIO:
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND %q is not one of file, redis, postgres, minio", c.Cache.Backend))
	}
	if c.Cache.Backend == BackendFile && c.Cache.Dir == "" {
		errs = append(errs, errors.New("CACHE_DIR must be set for the file backend"))
	}

	switch c.Cache.SweepMode {
	case SweepModeInProcess, SweepModeQueue:
	default:
		errs = append(errs, fmt.Errorf("CACHE_SWEEP_MODE %q is not one of inprocess, queue", c.Cache.SweepMode))
	}

	if c.Cache.FreshnessWindow <= 0 {
		errs = append(errs, errors.New("CACHE_FRESHNESS_WINDOW must be positive"))
	}
	if c.Cache.RetentionWindow <= c.Cache.FreshnessWindow {
		errs = append(errs, fmt.Errorf("CACHE_RETENTION_WINDOW (%s) must be longer than CACHE_FRESHNESS_WINDOW (%s)",
			c.Cache.RetentionWindow, c.Cache.FreshnessWindow))
	}
	if c.Resolver.Timeout <= 0 {
		errs = append(errs, errors.New("YTDLP_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}
