package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/vani-inventory/pkg/utils"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"local"`
	Log        Log        `yaml:"log"`
	HTTP       HTTP       `yaml:"http"`
	GRPC       GRPC       `yaml:"grpc"`
	Metrics    Metrics    `yaml:"metrics"`
	Postgres   PG         `yaml:"postgres"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	Outbox     Outbox     `yaml:"outbox"`
	Projection Projection `yaml:"projection"`
	Auth       Auth       `yaml:"auth"`
	Confirm    Confirm    `yaml:"confirm"`
	Tracing    Tracing    `yaml:"tracing"`
	Currency   string     `yaml:"currency" env:"CURRENCY" env-default:"USD"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	File  string `yaml:"file" env:"LOG_FILE"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
	// RateLimit is requests per RateWindow and client IP, 0 disables it.
	RateLimit  int           `yaml:"rate_limit" env:"HTTP_RATE_LIMIT" env-default:"60"`
	RateWindow time.Duration `yaml:"rate_window" env-default:"1m"`
}

type GRPC struct {
	Port string `yaml:"port" env:"GRPC_PORT" env-default:":50051"`
}

type Metrics struct {
	Port string `yaml:"port" env:"METRICS_PORT" env-default:":9091"`
}

type PG struct {
	URL string `yaml:"url" env:"DB_URL"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"inventory_events"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"inventory-projection"`
}

type Outbox struct {
	BatchSize   int           `yaml:"batch_size" env-default:"50"`
	Interval    time.Duration `yaml:"interval" env-default:"500ms"`
	MaxAttempts int           `yaml:"max_attempts" env-default:"10"`
	Retention   time.Duration `yaml:"retention" env:"OUTBOX_RETENTION" env-default:"24h"`
}

type Projection struct {
	// Feed is either "postgres" (LISTEN/NOTIFY) or "kafka" (inventory topic).
	Feed string `yaml:"feed" env:"PROJECTION_FEED" env-default:"postgres"`
}

type Auth struct {
	Mode         string `yaml:"mode" env:"AUTH_MODE" env-default:"passcode"`
	PasscodeHash string `yaml:"passcode_hash" env:"AUTH_PASSCODE_HASH"`
	RemoteURL    string `yaml:"remote_url" env:"AUTH_REMOTE_URL"`

	// ChallengeTimeout bounds one biometric challenge, including the time a
	// person takes to touch the sensor.
	ChallengeTimeout time.Duration `yaml:"challenge_timeout" env:"AUTH_CHALLENGE_TIMEOUT" env-default:"60s"`

	SessionTTL  time.Duration `yaml:"session_ttl" env:"AUTH_SESSION_TTL" env-default:"12h"`
	TokenSecret string        `yaml:"token_secret" env:"AUTH_TOKEN_SECRET"`
	TokenTTL    time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"15m"`
}

type Confirm struct {
	TTL time.Duration `yaml:"ttl" env:"CONFIRM_TTL" env-default:"2m"`
}

type Tracing struct {
	Enabled  bool   `yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	Endpoint string `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
}

// Load reads the yaml file named by CONFIG_PATH and applies env overrides.
func Load() (*Config, error) {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Projection.Feed {
	case "postgres", "kafka":
	default:
		return fmt.Errorf("unknown projection feed %q", c.Projection.Feed)
	}

	switch c.Auth.Mode {
	case "passcode", "remote":
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}

	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres url is required")
	}

	return nil
}
