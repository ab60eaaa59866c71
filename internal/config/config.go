package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const envPrefix = "YACALL_"

// Messaging drivers
const (
	DriverWS    = "ws"
	DriverNATS  = "nats"
	DriverRedis = "redis"
)

// Config holds the server configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Messaging MessagingConfig `yaml:"messaging"`
	Device    DeviceConfig    `yaml:"device"`
	History   HistoryConfig   `yaml:"history"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// MessagingConfig selects how end-of-call notifications reach the peer.
type MessagingConfig struct {
	Driver string      `yaml:"driver"`
	NATS   NATSConfig  `yaml:"nats"`
	Redis  RedisConfig `yaml:"redis"`
}

type NATSConfig struct {
	URL             string        `yaml:"url"`
	CredentialsFile string        `yaml:"credentials_file"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxReconnects   int           `yaml:"max_reconnects"`
}

type RedisConfig struct {
	Addr          string        `yaml:"addr"`
	ChannelPrefix string        `yaml:"channel_prefix"`
	PingTimeout   time.Duration `yaml:"ping_timeout"`
}

type DeviceConfig struct {
	// UserID is the local user; notifications carry it as sender.
	UserID         string        `yaml:"user_id"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type HistoryConfig struct {
	// DSN is empty to disable call history.
	DSN string `yaml:"dsn"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Messaging: MessagingConfig{
			Driver: DriverWS,
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				SubjectPrefix: "yacall",
				ReconnectWait: 2 * time.Second,
				MaxReconnects: -1, // unlimited
			},
			Redis: RedisConfig{
				Addr:          "127.0.0.1:6379",
				ChannelPrefix: "yacall:calls",
				PingTimeout:   2 * time.Second,
			},
		},
		Device: DeviceConfig{
			RequestTimeout: 10 * time.Second,
		},
		History: HistoryConfig{
			DSN: "file:yacall.db",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists), a .env file in the working directory, and YACALL_* variables, in
// that order of precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HTTP_ADDR":             &c.HTTP.Addr,
		"LOG_LEVEL":             &c.Log.Level,
		"MESSAGING_DRIVER":      &c.Messaging.Driver,
		"NATS_URL":              &c.Messaging.NATS.URL,
		"NATS_CREDENTIALS_FILE": &c.Messaging.NATS.CredentialsFile,
		"NATS_SUBJECT_PREFIX":   &c.Messaging.NATS.SubjectPrefix,
		"REDIS_ADDR":            &c.Messaging.Redis.Addr,
		"REDIS_CHANNEL_PREFIX":  &c.Messaging.Redis.ChannelPrefix,
		"DEVICE_USER_ID":        &c.Device.UserID,
		"HISTORY_DSN":           &c.History.DSN,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"HTTP_SHUTDOWN_TIMEOUT":  &c.HTTP.ShutdownTimeout,
		"NATS_RECONNECT_WAIT":    &c.Messaging.NATS.ReconnectWait,
		"REDIS_PING_TIMEOUT":     &c.Messaging.Redis.PingTimeout,
		"DEVICE_REQUEST_TIMEOUT": &c.Device.RequestTimeout,
	}
	var errs []error
	for key, dst := range durations {
		v, ok := lookup(envPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			continue
		}
		*dst = d
	}

	if v, ok := lookup(envPrefix + "NATS_MAX_RECONNECTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sNATS_MAX_RECONNECTS: %w", envPrefix, err))
		} else {
			c.Messaging.NATS.MaxReconnects = n
		}
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be positive"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Device.UserID) == "" {
		errs = append(errs, errors.New("device.user_id is required"))
	}
	if c.Device.RequestTimeout <= 0 {
		errs = append(errs, errors.New("device.request_timeout must be positive"))
	}

	switch c.Messaging.Driver {
	case DriverWS:
	case DriverNATS:
		if c.Messaging.NATS.URL == "" {
			errs = append(errs, errors.New("messaging.nats.url is required for the nats driver"))
		}
	case DriverRedis:
		if c.Messaging.Redis.Addr == "" {
			errs = append(errs, errors.New("messaging.redis.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("messaging.driver %q is not one of ws, nats, redis", c.Messaging.Driver))
	}
	return errors.Join(errs...)
}

func (c *Config) LogLevel() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
