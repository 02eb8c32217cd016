// Package config loads service settings from defaults, an optional config
// file and SPORTING_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/store/sqlstore"
	"github.com/lucasjlepore/sporting/threshold"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Threshold ThresholdConfig `mapstructure:"threshold"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Driver            string        `mapstructure:"driver"`
	DSN               string        `mapstructure:"dsn"`
	BootstrapAttempts int           `mapstructure:"bootstrap_attempts"`
	BootstrapDelay    time.Duration `mapstructure:"bootstrap_delay"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type IngestConfig struct {
	CollisionPolicy string `mapstructure:"collision_policy"`
}

type ThresholdConfig struct {
	TieBreak string `mapstructure:"tie_break"`
}

type CalendarConfig struct {
	LookbackDays int `mapstructure:"lookback_days"`
}

// RedisConfig enables the view cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration. Extra search paths are tried after ./config and
// the working directory.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPORTING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_upload_bytes", 32<<20)

	v.SetDefault("database.driver", string(sqlstore.SQLite))
	v.SetDefault("database.dsn", "file:sporting.db?_pragma=busy_timeout(5000)")
	v.SetDefault("database.bootstrap_attempts", 5)
	v.SetDefault("database.bootstrap_delay", "2s")
	v.SetDefault("database.write_timeout", "10s")

	v.SetDefault("ingest.collision_policy", "reject")
	v.SetDefault("threshold.tie_break", "latest_insert")
	v.SetDefault("calendar.lookback_days", 92)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "sporting.workouts")

	v.SetDefault("log.level", "info")
}

// Validate checks every enumerated setting parses.
func (c *Config) Validate() error {
	if _, err := sqlstore.ParseDialect(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Database.BootstrapAttempts < 1 {
		return fmt.Errorf("database bootstrap_attempts must be at least 1")
	}
	if _, err := c.CollisionPolicy(); err != nil {
		return err
	}
	if _, err := c.TieBreak(); err != nil {
		return err
	}
	if c.Calendar.LookbackDays < 0 {
		return fmt.Errorf("calendar lookback_days must not be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}

func (c *Config) Dialect() sqlstore.Dialect {
	d, _ := sqlstore.ParseDialect(c.Database.Driver)
	return d
}

func (c *Config) CollisionPolicy() (activity.CollisionPolicy, error) {
	return activity.ParseCollisionPolicy(c.Ingest.CollisionPolicy)
}

func (c *Config) TieBreak() (threshold.TieBreak, error) {
	return threshold.ParseTieBreak(c.Threshold.TieBreak)
}
