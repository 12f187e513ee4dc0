package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "CAMPVIBE"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultDataDir     = "data"
	defaultLogLevel    = "info"
	defaultRateRPS     = 50.0
	defaultRateBurst   = 100
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DataDir        string
	LogLevel       string
	LogFile        string
	RateLimitRPS   float64
	RateLimitBurst int
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
	configViper.SetDefault("data.dir", defaultDataDir)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("ratelimit.rps", defaultRateRPS)
	configViper.SetDefault("ratelimit.burst", defaultRateBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DataDir:        configViper.GetString("data.dir"),
		LogLevel:       configViper.GetString("log.level"),
		LogFile:        configViper.GetString("log.file"),
		RateLimitRPS:   configViper.GetFloat64("ratelimit.rps"),
		RateLimitBurst: configViper.GetInt("ratelimit.burst"),
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
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be positive")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("ratelimit.burst must be positive")
	}
	return nil
}
