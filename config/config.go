// Package config loads hospctl settings from defaults, an optional
// hospctl.yaml, a .env file and HOSPCTL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	APIBaseURL string
	StatePath  string

	LogLevel string
	LogFile  string

	SearchDebounce    time.Duration
	BookingCloseDelay time.Duration
	LoginCloseDelay   time.Duration
	BookingSettle     time.Duration
	LoginSettle       time.Duration

	// Circuit breaker around the HTTP transport.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	ThemeDefault string
}

// EnvPrefix is prepended to every environment override, e.g.
// HOSPCTL_API_BASE_URL.
const EnvPrefix = "HOSPCTL"

// New returns a viper instance with every default set and the env binding in
// place. Flags are bound onto it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("hospctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".hospctl"))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("state.path", defaultStatePath())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("search.debounce", 600*time.Millisecond)
	v.SetDefault("booking.close_delay", 1200*time.Millisecond)
	v.SetDefault("login.close_delay", 800*time.Millisecond)
	v.SetDefault("modal.settle_booking", 120*time.Millisecond)
	v.SetDefault("modal.settle_login", 80*time.Millisecond)
	v.SetDefault("breaker.failures", 5)
	v.SetDefault("breaker.cooldown", 30*time.Second)
	v.SetDefault("theme.default", "")
	return v
}

// Load reads .env (if present), then the config file (if present), and
// resolves every key.
func Load(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		APIBaseURL:        v.GetString("api.base_url"),
		StatePath:         v.GetString("state.path"),
		LogLevel:          v.GetString("log.level"),
		LogFile:           v.GetString("log.file"),
		SearchDebounce:    v.GetDuration("search.debounce"),
		BookingCloseDelay: v.GetDuration("booking.close_delay"),
		LoginCloseDelay:   v.GetDuration("login.close_delay"),
		BookingSettle:     v.GetDuration("modal.settle_booking"),
		LoginSettle:       v.GetDuration("modal.settle_login"),
		BreakerFailures:   v.GetUint32("breaker.failures"),
		BreakerCooldown:   v.GetDuration("breaker.cooldown"),
		ThemeDefault:      v.GetString("theme.default"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		return errors.New("api.base_url must not be empty")
	}
	if c.StatePath == "" {
		return errors.New("state.path must not be empty")
	}
	switch c.ThemeDefault {
	case "", "light", "dark":
	default:
		return fmt.Errorf("theme.default must be light or dark, got %q", c.ThemeDefault)
	}
	return nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "hospctl.db"
	}
	return filepath.Join(home, ".hospctl", "state.db")
}
