package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdownTimeout"` // 10s
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // roomcoord
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Storage struct {
	Driver string `yaml:"driver"` // memory|postgres
}

type Postgres struct {
	DSN               string `yaml:"dsn"`
	MaxConns          int32  `yaml:"maxConns"`
	MinConns          int32  `yaml:"minConns"`
	MaxConnLifetime   string `yaml:"maxConnLifetime"`
	MaxConnIdleTime   string `yaml:"maxConnIdleTime"`
	HealthCheckPeriod string `yaml:"healthCheckPeriod"`
	ApplicationName   string `yaml:"applicationName"`
}

type Rooms struct {
	DefaultUserLimit int `yaml:"defaultUserLimit"`
	MaxUserLimit     int `yaml:"maxUserLimit"`
	MaxMessageLen    int `yaml:"maxMessageLen"`
}

type Claim struct {
	Retention string `yaml:"retention"` // 2m; "0s" выключает удержание
}

type WS struct {
	PingEvery      string   `yaml:"pingEvery"`
	SendBuffer     int      `yaml:"sendBuffer"`
	ReadLimit      int64    `yaml:"readLimit"`
	AllowedOrigins []string `yaml:"allowedOrigins"` // пусто: любой Origin
	RateBurst      int      `yaml:"rateBurst"`
	RateEvery      string   `yaml:"rateEvery"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	Rooms    Rooms    `yaml:"rooms"`
	Claim    Claim    `yaml:"claim"`
	WS       WS       `yaml:"ws"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse разбирает YAML, проверяет обязательные поля и заполняет дефолты.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}

	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = DriverMemory
	case DriverMemory, DriverPostgres:
	default:
		return fmt.Errorf("storage.driver %q: want memory or postgres", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverPostgres && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for storage.driver=postgres")
	}

	durations := map[string]string{
		"http.shutdownTimeout":       c.HTTP.ShutdownTimeout,
		"postgres.maxConnLifetime":   c.Postgres.MaxConnLifetime,
		"postgres.maxConnIdleTime":   c.Postgres.MaxConnIdleTime,
		"postgres.healthCheckPeriod": c.Postgres.HealthCheckPeriod,
		"claim.retention":            c.Claim.Retention,
		"ws.pingEvery":               c.WS.PingEvery,
		"ws.rateEvery":               c.WS.RateEvery,
	}
	for key, raw := range durations {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d < 0 {
			return fmt.Errorf("%s: invalid duration %q", key, raw)
		}
	}

	if c.Rooms.MaxUserLimit < 0 || c.Rooms.DefaultUserLimit < 0 || c.Rooms.MaxMessageLen < 0 {
		return errors.New("rooms limits must not be negative")
	}
	if c.Rooms.MaxUserLimit > 0 && c.Rooms.DefaultUserLimit > c.Rooms.MaxUserLimit {
		return errors.New("rooms.defaultUserLimit exceeds rooms.maxUserLimit")
	}

	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "roomcoord"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Rooms.DefaultUserLimit == 0 {
		c.Rooms.DefaultUserLimit = 10
	}
	if c.Rooms.MaxUserLimit == 0 {
		c.Rooms.MaxUserLimit = 100
	}
	if c.Rooms.MaxMessageLen == 0 {
		c.Rooms.MaxMessageLen = 4000
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 1 << 20
	}
	if c.WS.RateBurst <= 0 {
		c.WS.RateBurst = 20
	}
	return nil
}

func (c *Config) ShutdownTimeout() time.Duration {
	return parseDurationOr(10*time.Second, c.HTTP.ShutdownTimeout)
}

// ClaimRetention: по умолчанию 2m, явный "0s" выключает удержание.
func (c *Config) ClaimRetention() time.Duration {
	if c.Claim.Retention == "" {
		return 2 * time.Minute
	}
	d, _ := time.ParseDuration(c.Claim.Retention)
	return d
}

func (c *Config) PingEvery() time.Duration {
	return parseDurationOr(15*time.Second, c.WS.PingEvery)
}

func (c *Config) RateEvery() time.Duration {
	return parseDurationOr(100*time.Millisecond, c.WS.RateEvery)
}

func (p Postgres) Lifetime() time.Duration     { return parseDurationOr(0, p.MaxConnLifetime) }
func (p Postgres) IdleTime() time.Duration     { return parseDurationOr(0, p.MaxConnIdleTime) }
func (p Postgres) HealthPeriod() time.Duration { return parseDurationOr(0, p.HealthCheckPeriod) }

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
