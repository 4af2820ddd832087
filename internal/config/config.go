package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrUnknownJoinMode   = errors.New("unknown rooms join mode")
	ErrUnknownDifficulty = errors.New("unknown default difficulty")
	ErrBadDuration       = errors.New("duration must be positive")
	ErrBadJournalLimit   = errors.New("journal limit must be positive")
)

type Config struct {
	LogLevel     string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	SocketPort   string `yaml:"socket-port" env:"SOCKET_PORT" env-default:"8080"`
	JWTSecretKey string `yaml:"jwt-secret-key" env:"JWT_SECRET_KEY"`
	Rooms        Rooms  `yaml:"rooms" env-prefix:"ROOMS_"`
	Redis        Redis  `yaml:"redis" env-prefix:"REDIS_"`
}

type Rooms struct {
	JoinMode          string        `yaml:"join-mode" env:"JOIN_MODE" env-default:"join-or-create"`
	StaleAfter        time.Duration `yaml:"stale-after" env:"STALE_AFTER" env-default:"10m"`
	ReapInterval      time.Duration `yaml:"reap-interval" env:"REAP_INTERVAL" env-default:"30s"`
	DefaultDifficulty string        `yaml:"default-difficulty" env:"DEFAULT_DIFFICULTY" env-default:"medium"`
}

type Redis struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Host         string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port         string `yaml:"port" env:"PORT" env-default:"6379"`
	JournalKey   string `yaml:"journal-key" env:"JOURNAL_KEY" env-default:"rooms:results"`
	JournalLimit int64  `yaml:"journal-limit" env:"JOURNAL_LIMIT" env-default:"1000"`
}

// MustLoad - load configuration from the yaml file at path overlaid by the environment.
// A missing file falls back to the environment alone.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config: %w", err))
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err = cleanenv.ReadConfig(path, config); err != nil {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	} else if err = cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("unable to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (that *Config) Validate() error {
	switch that.Rooms.JoinMode {
	case "join-or-create", "create-then-join":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJoinMode, that.Rooms.JoinMode)
	}

	switch that.Rooms.DefaultDifficulty {
	case "easy", "medium", "hard":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDifficulty, that.Rooms.DefaultDifficulty)
	}

	if that.Rooms.StaleAfter <= 0 || that.Rooms.ReapInterval <= 0 {
		return fmt.Errorf("%w: stale-after %s, reap-interval %s", ErrBadDuration, that.Rooms.StaleAfter, that.Rooms.ReapInterval)
	}

	if that.Redis.Enabled && that.Redis.JournalLimit <= 0 {
		return fmt.Errorf("%w: %d", ErrBadJournalLimit, that.Redis.JournalLimit)
	}

	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
