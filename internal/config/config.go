// Package config loads and validates the engine's Config, following the
// teacher's viper + mapstructure + sync.Once singleton pattern
// (internal/config/config.go), narrowed to the sections this engine
// actually reads: queue, book, parser, aggregator, metrics and the NATS
// ingress transport.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the engine's full, validated configuration tree.
type Config struct {
	Queue struct {
		Capacity int    `mapstructure:"capacity" validate:"required,min=2"`
		Mode     string `mapstructure:"mode" validate:"required,oneof=spsc mpsc"`
	} `mapstructure:"queue"`

	Book struct {
		StaleAfterSeconds int `mapstructure:"stale_after_seconds" validate:"required,min=1"`
	} `mapstructure:"book"`

	Parser struct {
		EnforceChecksum bool `mapstructure:"enforce_checksum"`
		MaxFields       int  `mapstructure:"max_fields" validate:"required,min=1,max=256"`
	} `mapstructure:"parser"`

	Aggregator struct {
		BatchDrainSize  int `mapstructure:"batch_drain_size" validate:"required,min=1"`
		IdleSleepMicros int `mapstructure:"idle_sleep_micros" validate:"min=0"`
	} `mapstructure:"aggregator"`

	Metrics struct {
		ListenAddr string `mapstructure:"listen_addr" validate:"required"`
	} `mapstructure:"metrics"`

	Ingress struct {
		NATSURL       string `mapstructure:"nats_url" validate:"required"`
		Subject       string `mapstructure:"subject" validate:"required"`
		ProducerCount int    `mapstructure:"producer_count" validate:"required,min=1"`
	} `mapstructure:"ingress"`
}

var (
	cfg  *Config
	once sync.Once
)

// Load reads the configuration from configPath (directory to search) plus
// TRADSYS_-prefixed environment overrides, validates it, and caches the
// result for subsequent Get calls.
func Load(configPath string) (*Config, error) {
	var err error

	once.Do(func() {
		cfg = &Config{}
		setDefaults()

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/marketcore")
		}

		v.AutomaticEnv()
		v.SetEnvPrefix("TRADSYS")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		for _, key := range []string{
			"queue.capacity", "queue.mode", "book.stale_after_seconds",
			"parser.enforce_checksum", "parser.max_fields",
			"aggregator.batch_drain_size", "aggregator.idle_sleep_micros",
			"metrics.listen_addr", "ingress.nats_url", "ingress.subject", "ingress.producer_count",
		} {
			_ = v.BindEnv(key)
		}

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("config: read: %w", readErr)
				return
			}
		}

		if unmarshalErr := v.Unmarshal(cfg); unmarshalErr != nil {
			err = fmt.Errorf("config: unmarshal: %w", unmarshalErr)
			return
		}

		if validateErr := validator.New().Struct(cfg); validateErr != nil {
			err = fmt.Errorf("config: validate: %w", validateErr)
		}
	})

	return cfg, err
}

// Get returns the cached Config, loading defaults if Load was never called.
func Get() *Config {
	if cfg == nil {
		c, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("config: failed to load: %v", err))
		}
		return c
	}
	return cfg
}

func setDefaults() {
	cfg.Queue.Capacity = 65536
	cfg.Queue.Mode = "mpsc"

	cfg.Book.StaleAfterSeconds = 300

	cfg.Parser.EnforceChecksum = false
	cfg.Parser.MaxFields = 256

	cfg.Aggregator.BatchDrainSize = 256
	cfg.Aggregator.IdleSleepMicros = 50

	cfg.Metrics.ListenAddr = ":9090"

	cfg.Ingress.NATSURL = "nats://127.0.0.1:4222"
	cfg.Ingress.Subject = "marketdata.raw"
	cfg.Ingress.ProducerCount = 1
}
