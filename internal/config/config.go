// Path: internal/config/config.go
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Broker   BrokerConfig
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
}

// BrokerConfig holds the delivery settings of the broker.
type BrokerConfig struct {
	QueueCapacity   int           `mapstructure:"queue_capacity"`
	DeliveryPolicy  string        `mapstructure:"delivery_policy"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	DefaultChannels []string      `mapstructure:"default_channels"`
}

// DatabaseConfig holds the channel catalog connection settings.
// An empty URI keeps the catalog in memory.
type DatabaseConfig struct {
	URI        string `mapstructure:"uri"`
	Name       string `mapstructure:"name"`
	Collection string `mapstructure:"collection"`
}

// ServerConfig holds the admin API settings. An empty port disables it.
type ServerConfig struct {
	Port              string `mapstructure:"port"`
	RequestsPerSecond int    `mapstructure:"requests_per_second"`
	BurstLimit        int    `mapstructure:"burst_limit"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads the configuration from .env, the config file and environment variables.
func Load() (*Config, error) {
	return load(viper.New(), "./configs")
}

func load(v *viper.Viper, configPaths ...string) (*Config, error) {
	// A missing .env file is fine; the process environment still applies.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Set default values
	v.SetDefault("BROKER.QUEUE_CAPACITY", 100)
	v.SetDefault("BROKER.DELIVERY_POLICY", "block")
	v.SetDefault("BROKER.DELIVERY_TIMEOUT", time.Duration(0))
	v.SetDefault("BROKER.DEFAULT_CHANNELS", []string{"general"})
	v.SetDefault("DATABASE.URI", "")
	v.SetDefault("DATABASE.NAME", "chanbroker")
	v.SetDefault("DATABASE.COLLECTION", "channels")
	v.SetDefault("SERVER.PORT", "")
	v.SetDefault("SERVER.REQUESTS_PER_SECOND", 5)
	v.SetDefault("SERVER.BURST_LIMIT", 10)
	v.SetDefault("LOG.LEVEL", "info")
	v.SetDefault("LOG.FORMAT", "text")

	// Load from config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err // Only return error if it's not a "file not found" error
		}
	}

	// Load from environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
