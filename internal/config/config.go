// Package config loads server settings from the environment, an optional .env
// file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SPLITLEDGER_PORT.
const EnvPrefix = "SPLITLEDGER"

type Config struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DBPath          string        `mapstructure:"db_path"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	// RecurringSchedule is a standard 5-field cron spec. Empty disables the sweep.
	RecurringSchedule string `mapstructure:"recurring_schedule"`

	GatewayURL       string        `mapstructure:"gateway_url"`
	GatewayMerchant  string        `mapstructure:"gateway_merchant"`
	GatewaySecret    string        `mapstructure:"gateway_secret"`
	GatewayReturnURL string        `mapstructure:"gateway_return_url"`
	GatewayTimeout   time.Duration `mapstructure:"gateway_timeout"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SMTPFrom     string `mapstructure:"smtp_from"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"port":               8080,
	"shutdown_timeout":   10 * time.Second,
	"db_path":            "./data/ledger.db",
	"jwt_secret":         "",
	"token_ttl":          24 * time.Hour,
	"recurring_schedule": "*/15 * * * *",
	"gateway_url":        "",
	"gateway_merchant":   "",
	"gateway_secret":     "",
	"gateway_return_url": "",
	"gateway_timeout":    15 * time.Second,
	"smtp_host":          "",
	"smtp_port":          587,
	"smtp_user":          "",
	"smtp_password":      "",
	"smtp_from":          "",
	"log_level":          "info",
	"log_format":         "text",
}

// Load reads configuration. Values from the environment override the config file
// at path, which may be empty. A .env file in the working directory is loaded
// first if present; variables already set in the environment are kept.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// LOG_LEVEL without the prefix is honored too.
	if err := v.BindEnv("log_level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.RecurringSchedule != "" {
		if _, err := cron.ParseStandard(c.RecurringSchedule); err != nil {
			errs = append(errs, fmt.Errorf("recurring_schedule: %w", err))
		}
	}
	if c.GatewayEnabled() && (c.GatewayMerchant == "" || c.GatewaySecret == "") {
		errs = append(errs, errors.New("gateway_merchant and gateway_secret are required with gateway_url"))
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		errs = append(errs, errors.New("smtp_from is required with smtp_host"))
	}
	return errors.Join(errs...)
}

// GatewayEnabled reports whether online payments are configured.
func (c *Config) GatewayEnabled() bool { return c.GatewayURL != "" }

// MailEnabled reports whether notification emails are configured.
func (c *Config) MailEnabled() bool { return c.SMTPHost != "" }
