package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	DBDriver string `mapstructure:"DB_DRIVER"`
	DBUrl    string `mapstructure:"DB_URL"`
	RedisUrl string `mapstructure:"REDIS_URL"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Motion classification
	MovementThresholdM float64       `mapstructure:"MOVEMENT_THRESHOLD_M"`
	RestThreshold      time.Duration `mapstructure:"REST_THRESHOLD"`

	// Location delivery requested from the provider
	LocationInterval         time.Duration `mapstructure:"LOCATION_INTERVAL"`
	LocationDistanceM        float64       `mapstructure:"LOCATION_DISTANCE_M"`
	LocationDeferredInterval time.Duration `mapstructure:"LOCATION_DEFERRED_INTERVAL"`

	SyncInterval time.Duration `mapstructure:"SYNC_INTERVAL"`
	RemoteUrl    string        `mapstructure:"REMOTE_URL"`
}

var defaults = map[string]any{
	"PORT":                       ":8080",
	"DB_DRIVER":                  "sqlite",
	"DB_URL":                     "trektrace.db",
	"REDIS_URL":                  "",
	"LOG_LEVEL":                  "info",
	"MOVEMENT_THRESHOLD_M":       10.0,
	"REST_THRESHOLD":             5 * time.Minute,
	"LOCATION_INTERVAL":          10 * time.Second,
	"LOCATION_DISTANCE_M":        10.0,
	"LOCATION_DEFERRED_INTERVAL": 60 * time.Second,
	"SYNC_INTERVAL":              0,
	"REMOTE_URL":                 "",
}

func LoadConfig() (c Config, err error) {
	// Get environment type from ENV variable or use development as default
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Load environment file
	v.SetConfigName(fmt.Sprintf(".env.%s", env))
	v.SetConfigType("env")
	v.AddConfigPath(".")

	// Environment variables take precedence over config file
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Continue even if file is not found
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, err
		}
	}

	if err = v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("unable to decode config: %w", err)
	}

	return c, c.Validate()
}

// Validate rejects values the tracking core cannot work with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDriver != "memory" && c.DBUrl == "" {
		return errors.New("DB_URL is required")
	}
	if c.MovementThresholdM <= 0 {
		return errors.New("MOVEMENT_THRESHOLD_M must be positive")
	}
	if c.RestThreshold <= 0 {
		return errors.New("REST_THRESHOLD must be positive")
	}
	if c.SyncInterval < 0 {
		return errors.New("SYNC_INTERVAL must not be negative")
	}
	return nil
}
