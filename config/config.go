package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerCfg struct {
	Addr string `mapstructure:"addr"`
}

type NatsCfg struct {
	URL                   string `mapstructure:"url"`
	StreamName            string `mapstructure:"stream"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	HistoryMaxAgeHours    int    `mapstructure:"history_max_age_hours"`
}

type SessionCfg struct {
	RetryIntervalMs int `mapstructure:"retry_interval_ms"`
	EventBuffer     int `mapstructure:"event_buffer"`
}

type WSCfg struct {
	MaxMessageSize   int64 `mapstructure:"max_message_size"`
	PongWaitSeconds  int   `mapstructure:"pong_wait_seconds"`
	WriteWaitSeconds int   `mapstructure:"write_wait_seconds"`
}

type AuthCfg struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogCfg struct {
	Development bool `mapstructure:"development"`
}

type RelayCfg struct {
	Enabled bool   `mapstructure:"enabled"`
	Queue   string `mapstructure:"queue"`
}

type Config struct {
	Server  ServerCfg  `mapstructure:"server"`
	Nats    NatsCfg    `mapstructure:"nats"`
	Session SessionCfg `mapstructure:"session"`
	WS      WSCfg      `mapstructure:"ws"`
	Auth    AuthCfg    `mapstructure:"auth"`
	Log     LogCfg     `mapstructure:"log"`
	Relay   RelayCfg   `mapstructure:"relay"`

	// derived
	ConnectTimeout time.Duration
	HistoryMaxAge  time.Duration
	RetryInterval  time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.stream", "CHAT")
	v.SetDefault("nats.connect_timeout_seconds", 2)
	v.SetDefault("nats.history_max_age_hours", 24*30)
	v.SetDefault("session.retry_interval_ms", 5000)
	v.SetDefault("session.event_buffer", 256)
	v.SetDefault("ws.max_message_size", 64*1024)
	v.SetDefault("ws.pong_wait_seconds", 60)
	v.SetDefault("ws.write_wait_seconds", 10)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.development", false)
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.queue", "chat-relay")
}

// Load reads the optional config file at path, then .env, then CHAT_* environment
// variables (CHAT_NATS_URL overrides nats.url).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	derive(&cfg)
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Nats.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Nats.StreamName == "" {
		return errors.New("nats.stream is required")
	}
	if cfg.Session.RetryIntervalMs <= 0 {
		return errors.New("session.retry_interval_ms must be positive")
	}
	return nil
}

func derive(cfg *Config) {
	if cfg.Session.EventBuffer <= 0 {
		cfg.Session.EventBuffer = 256
	}
	cfg.ConnectTimeout = time.Duration(cfg.Nats.ConnectTimeoutSeconds) * time.Second
	cfg.HistoryMaxAge = time.Duration(cfg.Nats.HistoryMaxAgeHours) * time.Hour
	cfg.RetryInterval = time.Duration(cfg.Session.RetryIntervalMs) * time.Millisecond
	cfg.PongWait = time.Duration(cfg.WS.PongWaitSeconds) * time.Second
	// pings must go out before the peer's read deadline expires
	cfg.PingPeriod = cfg.PongWait * 9 / 10
	cfg.WriteWait = time.Duration(cfg.WS.WriteWaitSeconds) * time.Second
}
