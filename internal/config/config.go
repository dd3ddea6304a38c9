package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "COLLAB"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultLogLevel    = "info"
	defaultSendBuffer  = 32
)

// AppConfig captures runtime configuration for the collaboration server.
type AppConfig struct {
	HTTPAddress    string
	LogLevel       string
	AllowedOrigins []string
	SendBuffer     int
	// LockTTL enables the stale-lock janitor when non-zero. Zero keeps the
	// protocol's native behavior: locks live until their owner disconnects.
	LockTTL       time.Duration
	SweepInterval time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("ws.allowed_origins", []string{"*"})
	configViper.SetDefault("ws.send_buffer", defaultSendBuffer)
	configViper.SetDefault("lock.ttl_seconds", 0)
	configViper.SetDefault("lock.sweep_interval_seconds", 60)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		LogLevel:       configViper.GetString("log.level"),
		AllowedOrigins: configViper.GetStringSlice("ws.allowed_origins"),
		SendBuffer:     configViper.GetInt("ws.send_buffer"),
		LockTTL:        time.Duration(configViper.GetInt("lock.ttl_seconds")) * time.Second,
		SweepInterval:  time.Duration(configViper.GetInt("lock.sweep_interval_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive")
	}
	if c.LockTTL < 0 {
		return fmt.Errorf("lock.ttl_seconds must not be negative")
	}
	if c.LockTTL > 0 && c.SweepInterval <= 0 {
		return fmt.Errorf("lock.sweep_interval_seconds must be positive when a lock TTL is set")
	}
	return nil
}
