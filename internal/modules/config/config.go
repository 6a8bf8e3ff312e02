package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs"
	envPrefix         = "ENGINE"

	tokenTelegramENV = "TELEGRAM_TOKEN"
	databaseDSN      = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Log      LogConfig      `mapstructure:"log"`
	Health   HealthConfig   `mapstructure:"health"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Brokers  []BrokerConfig `mapstructure:"brokers"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServiceConfig struct {
	Name string `mapstructure:"name"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug | info | warn | error
}

type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres | sqlite | yaml
	DSN    string `mapstructure:"dsn"`
	Path   string `mapstructure:"path"` // файл sqlite или yaml
}

type BrokerConfig struct {
	Name    string `mapstructure:"name"`
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`

	// fallback, если в хранилище нет кредов брокера
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
	ClientCode  string `mapstructure:"client_code"`
	FeedToken   string `mapstructure:"feed_token"`

	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
}

type PipelineConfig struct {
	HistoryLimit      int           `mapstructure:"history_limit"`
	FastEMA           int           `mapstructure:"fast_ema"`
	SlowEMA           int           `mapstructure:"slow_ema"`
	TickBuffer        int           `mapstructure:"tick_buffer"`
	SignalBuffer      int           `mapstructure:"signal_buffer"`
	FlushInterval     time.Duration `mapstructure:"flush_interval"` // 0: не закрывать свечи по таймеру
	ReloadInterval    time.Duration `mapstructure:"reload_interval"`
	FormulaCacheSize  int           `mapstructure:"formula_cache_size"`
	WarmupConcurrency int           `mapstructure:"warmup_concurrency"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "signal-engine")
	v.SetDefault("log.level", "info")
	v.SetDefault("health.addr", ":8081")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "data/engine.db")

	v.SetDefault("pipeline.history_limit", 500)
	v.SetDefault("pipeline.fast_ema", 50)
	v.SetDefault("pipeline.slow_ema", 200)
	v.SetDefault("pipeline.tick_buffer", 8192)
	v.SetDefault("pipeline.signal_buffer", 4096)
	v.SetDefault("pipeline.flush_interval", "0s")
	v.SetDefault("pipeline.reload_interval", "5m")
	v.SetDefault("pipeline.formula_cache_size", 256)
	v.SetDefault("pipeline.warmup_concurrency", 8)

	v.SetDefault("kafka.topic", "signals")
	v.SetDefault("kafka.client_id", "signal-engine")

	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
}

// дефолты брокера, которые viper не умеет проставлять внутрь слайса
func (b *BrokerConfig) applyDefaults() {
	if b.BaseDelay <= 0 {
		b.BaseDelay = time.Second
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 5
	}
	if b.HealthInterval <= 0 {
		b.HealthInterval = time.Minute
	}
	if b.PingInterval <= 0 {
		b.PingInterval = 20 * time.Second
	}
	if b.DialTimeout <= 0 {
		b.DialTimeout = 10 * time.Second
	}
}

// NewConfig читает configs/$CONFIG_FILE (по умолчанию values_local.yaml).
// Отсутствующий файл не ошибка: остаются дефолты и env.
func NewConfig() (*Config, error) {
	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = "values_local.yaml"
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(configDir, name)
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("telegram.token", envPrefix+"_TELEGRAM_TOKEN", tokenTelegramENV)
	_ = v.BindEnv("storage.dsn", envPrefix+"_STORAGE_DSN", databaseDSN)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	for i := range cfg.Brokers {
		cfg.Brokers[i].applyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for postgres driver")
		}
	case "sqlite", "yaml":
		if c.Storage.Path == "" {
			return errors.Errorf("storage.path is required for %s driver", c.Storage.Driver)
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Pipeline.FastEMA <= 0 || c.Pipeline.SlowEMA <= 0 {
		return errors.New("pipeline ema periods must be positive")
	}
	if c.Pipeline.HistoryLimit < c.Pipeline.SlowEMA {
		return errors.Errorf("pipeline.history_limit %d is below slow ema period %d",
			c.Pipeline.HistoryLimit, c.Pipeline.SlowEMA)
	}
	seen := make(map[string]struct{}, len(c.Brokers))
	for _, b := range c.Brokers {
		if b.Name == "" {
			return errors.New("broker without name")
		}
		if _, dup := seen[b.Name]; dup {
			return errors.Errorf("broker %q configured twice", b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}

func (c *Config) Broker(name string) (BrokerConfig, bool) {
	for _, b := range c.Brokers {
		if b.Name == name {
			return b, true
		}
	}
	return BrokerConfig{}, false
}
