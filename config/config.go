package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// KOBARA_GRPC_ADDR or KOBARA_BROADCAST_TOPIC.
const EnvPrefix = "KOBARA"

const (
	PublisherNone   = "none"
	PublisherSarama = "sarama"
	PublisherKafka  = "kafka-go"
)

// Config is the full server configuration.
type Config struct {
	GRPCAddr    string `mapstructure:"grpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

// OutboxConfig locates the trade outbox. An empty Dir keeps it in memory.
type OutboxConfig struct {
	Dir string `mapstructure:"dir"`
}

// BroadcastConfig controls publication of trade events.
type BroadcastConfig struct {
	Publisher string        `mapstructure:"publisher"`
	Brokers   []string      `mapstructure:"brokers"`
	Topic     string        `mapstructure:"topic"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// Default returns a configuration that runs a standalone engine.
func Default() Config {
	return Config{
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",
		LogFormat:   "json",
		Broadcast: BroadcastConfig{
			Publisher: PublisherNone,
			Topic:     "kobara.trades",
			Interval:  250 * time.Millisecond,
			BatchSize: 512,
		},
	}
}

// SetDefaults seeds v with Default so every key is known to viper,
// which AutomaticEnv needs to resolve nested keys during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("grpc_addr", d.GRPCAddr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("outbox.dir", d.Outbox.Dir)
	v.SetDefault("broadcast.publisher", d.Broadcast.Publisher)
	v.SetDefault("broadcast.brokers", d.Broadcast.Brokers)
	v.SetDefault("broadcast.topic", d.Broadcast.Topic)
	v.SetDefault("broadcast.interval", d.Broadcast.Interval)
	v.SetDefault("broadcast.batch_size", d.Broadcast.BatchSize)
}

// InitEnv makes v read KOBARA_* variables.
func InitEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the optional config file and decodes v into a validated Config.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("grpc_addr is required")
	}
	switch c.Broadcast.Publisher {
	case PublisherNone:
		return nil
	case PublisherSarama, PublisherKafka:
	default:
		return fmt.Errorf("broadcast.publisher must be one of %s, %s, %s; got %q",
			PublisherNone, PublisherSarama, PublisherKafka, c.Broadcast.Publisher)
	}
	if len(c.Broadcast.Brokers) == 0 {
		return errors.New("broadcast.brokers is required when a publisher is set")
	}
	if c.Broadcast.Topic == "" {
		return errors.New("broadcast.topic is required when a publisher is set")
	}
	if c.Broadcast.Interval <= 0 {
		return errors.New("broadcast.interval must be positive")
	}
	return nil
}
