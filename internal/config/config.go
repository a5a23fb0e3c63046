package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lupppig/notifyflow/internal/breaker"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/retry"
)

const (
	DefaultConfigFileName = "notifyflow.yaml"
	EnvPrefix             = "NOTIFYFLOW_"
)

type NATSConfig struct {
	URL     string `yaml:"url" env:"URL"`
	Stream  string `yaml:"stream" env:"STREAM"`
	Durable string `yaml:"durable" env:"DURABLE"`
}

type PostgresConfig struct {
	URL           string        `yaml:"url" env:"URL"`
	MaxConns      int32         `yaml:"max_conns" env:"MAX_CONNS"`
	RetryAttempts int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryInterval time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
}

// RedisConfig selects the template cache backend. An empty URL keeps the
// cache in process.
type RedisConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type TemplatesConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

type WorkerConfig struct {
	Workers        int           `yaml:"workers" env:"WORKERS"`
	Batch          int           `yaml:"batch" env:"BATCH"`
	FetchWait      time.Duration `yaml:"fetch_wait" env:"FETCH_WAIT"`
	AckWait        time.Duration `yaml:"ack_wait" env:"ACK_WAIT"`
	MaxDeliver     int           `yaml:"max_deliver" env:"MAX_DELIVER"`
	PersistRetries uint64        `yaml:"persist_retries" env:"PERSIST_RETRIES"`
	PersistBackoff time.Duration `yaml:"persist_backoff" env:"PERSIST_BACKOFF"`
	FinishTimeout  time.Duration `yaml:"finish_timeout" env:"FINISH_TIMEOUT"`
	OutcomeTimeout time.Duration `yaml:"outcome_timeout" env:"OUTCOME_TIMEOUT"`
}

type PostmarkConfig struct {
	ServerToken    string `yaml:"server_token" env:"SERVER_TOKEN"`
	AccountToken   string `yaml:"account_token" env:"ACCOUNT_TOKEN"`
	SenderEmail    string `yaml:"sender_email" env:"SENDER_EMAIL"`
	DefaultSubject string `yaml:"default_subject" env:"DEFAULT_SUBJECT"`
}

// GatewayConfig points an HTTP delivery gateway (SMS or push). An empty URL
// falls back to logging deliveries.
type GatewayConfig struct {
	URL     string        `yaml:"url" env:"URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type SweepConfig struct {
	Interval    time.Duration `yaml:"interval" env:"INTERVAL"`
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BatchSize   int           `yaml:"batch_size" env:"BATCH_SIZE"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	File  string `yaml:"file" env:"FILE"`
}

// ChannelConfig overrides the global resilience settings for one channel.
type ChannelConfig struct {
	Retry   retry.Config   `yaml:"retry"`
	Breaker breaker.Config `yaml:"breaker"`
}

type Config struct {
	NATS        NATSConfig      `yaml:"nats" envPrefix:"NATS_"`
	Postgres    PostgresConfig  `yaml:"postgres" envPrefix:"POSTGRES_"`
	Redis       RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Templates   TemplatesConfig `yaml:"templates" envPrefix:"TEMPLATES_"`
	Worker      WorkerConfig    `yaml:"worker" envPrefix:"WORKER_"`
	Retry       retry.Config    `yaml:"retry" envPrefix:"RETRY_"`
	Breaker     breaker.Config  `yaml:"breaker" envPrefix:"BREAKER_"`
	Postmark    PostmarkConfig  `yaml:"postmark" envPrefix:"POSTMARK_"`
	SMSGateway  GatewayConfig   `yaml:"sms_gateway" envPrefix:"SMS_GATEWAY_"`
	PushGateway GatewayConfig   `yaml:"push_gateway" envPrefix:"PUSH_GATEWAY_"`
	Sweep       SweepConfig     `yaml:"sweep" envPrefix:"SWEEP_"`
	Log         LogConfig       `yaml:"log" envPrefix:"LOG_"`
	HTTPAddr    string          `yaml:"http_addr" env:"HTTP_ADDR"`
	GRPCAddr    string          `yaml:"grpc_addr" env:"GRPC_ADDR"`
	// AdminToken guards the admin HTTP stream and gRPC endpoints when set.
	AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN"`

	// Channels is filled from the `channels` YAML section after the global
	// retry and breaker settings are final, so overrides only name the
	// fields they change.
	Channels map[domain.Channel]ChannelConfig `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Stream:  "NOTIFICATIONS",
			Durable: "notifyflow-worker",
		},
		Postgres: PostgresConfig{
			URL:           "postgres://localhost:5432/notifyflow?sslmode=disable",
			MaxConns:      10,
			RetryAttempts: 3,
			RetryInterval: 2 * time.Second,
		},
		Templates: TemplatesConfig{CacheTTL: time.Hour},
		Worker: WorkerConfig{
			Workers:        4,
			Batch:          1,
			FetchWait:      5 * time.Second,
			AckWait:        2 * time.Minute,
			MaxDeliver:     10,
			PersistRetries: 3,
			PersistBackoff: 200 * time.Millisecond,
			FinishTimeout:  10 * time.Second,
			OutcomeTimeout: 5 * time.Second,
		},
		Retry:   retry.DefaultConfig(),
		Breaker: breaker.DefaultConfig(),
		Postmark: PostmarkConfig{
			DefaultSubject: "Notification from our service",
		},
		SMSGateway:  GatewayConfig{Timeout: 10 * time.Second},
		PushGateway: GatewayConfig{Timeout: 10 * time.Second},
		Sweep: SweepConfig{
			Interval:    0,
			MaxAttempts: 5,
			BatchSize:   50,
		},
		Log:      LogConfig{Level: "info"},
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		Channels: make(map[domain.Channel]ChannelConfig),
	}
}

// Policy returns the resilience settings that apply to channel.
func (c *Config) Policy(channel domain.Channel) (retry.Config, breaker.Config) {
	if cc, ok := c.Channels[channel]; ok {
		return cc.Retry, cc.Breaker
	}
	return c.Retry, c.Breaker
}

func (c *Config) Validate() error {
	var errs []error
	if c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required"))
	}
	if c.NATS.Stream == "" || c.NATS.Durable == "" {
		errs = append(errs, errors.New("nats.stream and nats.durable are required"))
	}
	if c.Postgres.URL == "" {
		errs = append(errs, errors.New("postgres.url is required"))
	}
	if c.Templates.CacheTTL <= 0 {
		errs = append(errs, errors.New("templates.cache_ttl must be positive"))
	}
	if c.Worker.Workers < 1 {
		errs = append(errs, fmt.Errorf("worker.workers must be at least 1, got %d", c.Worker.Workers))
	}
	if c.Worker.Batch < 1 {
		errs = append(errs, fmt.Errorf("worker.batch must be at least 1, got %d", c.Worker.Batch))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	if err := c.Breaker.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("breaker: %w", err))
	}
	for ch, cc := range c.Channels {
		if err := cc.Retry.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channels.%s.retry: %w", ch.Subject(), err))
		}
		if err := cc.Breaker.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channels.%s.breaker: %w", ch.Subject(), err))
		}
	}
	if c.Sweep.Interval < 0 || c.Sweep.MaxAttempts < 1 || c.Sweep.BatchSize < 1 {
		errs = append(errs, errors.New("sweep: interval must not be negative, max_attempts and batch_size must be positive"))
	}
	return errors.Join(errs...)
}

// Load builds the configuration from defaults, the YAML file at path (a
// missing file is not an error), a .env file and NOTIFYFLOW_* environment
// variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigFileName
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Ignore errors - the .env file might not exist and that's ok
	_ = godotenv.Load()

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if len(data) > 0 {
		if err := cfg.loadChannels(data); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadChannels(data []byte) error {
	var raw struct {
		Channels map[string]yaml.Node `yaml:"channels"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	for name, node := range raw.Channels {
		ch, err := domain.ParseChannel(name)
		if err != nil {
			return fmt.Errorf("channels: %w", err)
		}
		cc := ChannelConfig{Retry: c.Retry, Breaker: c.Breaker}
		if err := node.Decode(&cc); err != nil {
			return fmt.Errorf("channels.%s: %w", strings.ToLower(name), err)
		}
		c.Channels[ch] = cc
	}
	return nil
}
