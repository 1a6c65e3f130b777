// Package config loads gostint-tui settings from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const EnvPrefix = "GOSTINT_TUI"

type Config struct {
	Gostint GostintConfig `mapstructure:"gostint"`
	Vault   VaultConfig   `mapstructure:"vault"`
	UI      UIConfig      `mapstructure:"ui"`
	Log     LogConfig     `mapstructure:"log"`

	// Token is the primary credential for non-interactive commands. It is
	// read from the environment or a flag and never written anywhere.
	Token string `mapstructure:"token"`
}

type GostintConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

type VaultConfig struct {
	URL  string `mapstructure:"url"`
	Role string `mapstructure:"role"`
}

type UIConfig struct {
	ListRefresh  time.Duration `mapstructure:"list_refresh"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Profile      string        `mapstructure:"profile"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".gostint")
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("gostint.url", "https://127.0.0.1:3232")
	v.SetDefault("gostint.timeout", "20s")
	v.SetDefault("gostint.rate_limit", 0)
	v.SetDefault("vault.url", "")
	v.SetDefault("vault.role", "gostint-role")
	v.SetDefault("ui.list_refresh", "10s")
	v.SetDefault("ui.poll_interval", "2s")
	v.SetDefault("ui.profile", filepath.Join(homeDir(), "profile.yaml"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(homeDir(), "tui.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("token", "")
}

// New returns a viper instance wired for env overrides. configFile may be
// empty, in which case ~/.gostint/config.yaml is used when present.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the usual vault variables work as well
	_ = v.BindEnv("vault.url", EnvPrefix+"_VAULT_URL", "VAULT_ADDR")
	_ = v.BindEnv("token", EnvPrefix+"_TOKEN", "VAULT_TOKEN")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(homeDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gostint.URL) == "" {
		return errors.New("gostint.url is required")
	}
	if c.Gostint.Timeout <= 0 {
		return errors.New("gostint.timeout must be positive")
	}
	if c.Gostint.RateLimit < 0 {
		return errors.New("gostint.rate_limit must not be negative")
	}
	if c.UI.ListRefresh <= 0 || c.UI.PollInterval <= 0 {
		return errors.New("ui.list_refresh and ui.poll_interval must be positive")
	}
	if strings.TrimSpace(c.Vault.Role) == "" {
		return errors.New("vault.role is required")
	}
	return nil
}
