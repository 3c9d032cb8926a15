package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	Port       string `yaml:"port" env:"PORT" env-default:"4050"`
	AppVersion string `yaml:"app-version" env:"APP_VERSION" env-default:"local"`
	LogLevel   string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat  string `yaml:"log-format" env:"LOG_FORMAT" env-default:"console"`

	CORSAllowedOrigin string `yaml:"cors-allowed-origin" env:"CORS_ALLOWED_ORIGIN" env-default:"*"`
	WSAllowedOrigin   string `yaml:"ws-allowed-origin" env:"WS_ALLOWED_ORIGIN" env-default:"*"`
	DebugSocket       bool   `yaml:"debug-socket" env:"DEBUG_SOCKET" env-default:"false"`

	Storage Storage `yaml:"storage"`
	Redis   Redis   `yaml:"redis"`

	SweepInterval   time.Duration `yaml:"sweep-interval" env:"SWEEP_INTERVAL" env-default:"1m"`
	RateLimitEvents float64       `yaml:"rate-limit-events" env:"RATE_LIMIT_EVENTS" env-default:"100"`
	RateLimitBurst  int           `yaml:"rate-limit-burst" env:"RATE_LIMIT_BURST" env-default:"200"`
}

type Storage struct {
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite-path" env:"SQLITE_PATH" env-default:"./data/tally.db"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB   int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Load reads path when it exists and falls back to the environment alone
// otherwise. Environment variables override file values either way.
func Load(path string) (*Config, error) {
	config := &Config{}

	var err error
	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		err = cleanenv.ReadConfig(path, config)
	} else if path != "" && !errors.Is(statErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to stat config file: %w", statErr)
	} else {
		err = cleanenv.ReadEnv(config)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// MustLoad - load configuration or panic.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}
	return config
}

func (that *Config) Validate() error {
	switch that.Storage.Driver {
	case StorageSQLite, StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", that.Storage.Driver)
	}
	if that.SweepInterval <= 0 {
		return fmt.Errorf("sweep-interval must be positive, got %s", that.SweepInterval)
	}
	if that.RateLimitEvents <= 0 || that.RateLimitBurst <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
