// Package config provides environment-based configuration for the Harbormail
// auth core.
//
// Configuration is loaded from environment variables using Viper, with sensible
// defaults for development. This package handles the enabled auth provider
// chain, token secrets and lifetimes, registration ledger settings, logging
// levels and the server port.
//
// # Environment Variables
//
//   - AUTH_PROVIDERS: Ordered, comma-separated list of enabled auth providers. Default: harbor
//   - TOKEN_SECRET: HMAC key material for the opaque token codec.
//   - JWT_SECRET: HMAC key material for the JWT provider.
//   - AUTH_TOKEN_LIFETIME: Default lifetime for ordinary auth tokens. Default: 12h
//   - ADMIN_AUTH_TOKEN_LIFETIME: Default lifetime for admin auth tokens. Default: 12h
//   - TWO_FACTOR_AUTH_TOKEN_LIFETIME: Lifetime for 2FA step tokens. Default: 1h
//   - TWO_FACTOR_ENABLEMENT_TOKEN_LIFETIME: Lifetime for enable-2FA tokens. Default: 10m
//   - TOKEN_CLOCK_SKEW: Allowed clock skew for expiry checks. Default: 0
//   - TOKEN_CACHE_SIZE: Size of the decoded-token cache. Default: 5000
//   - LEDGER: Registration ledger backend (memory, sqlite). Default: memory
//   - DSN: Ledger database connection string. Default: harbormail.db
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - PORT: HTTP server port. Default: 8080
//
// # Example Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry.Refresh(cfg.ProviderNames())
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AuthProviders string `mapstructure:"AUTH_PROVIDERS"`

	TokenSecret string `mapstructure:"TOKEN_SECRET"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`

	AuthTokenLifetime                time.Duration `mapstructure:"AUTH_TOKEN_LIFETIME"`
	AdminAuthTokenLifetime           time.Duration `mapstructure:"ADMIN_AUTH_TOKEN_LIFETIME"`
	TwoFactorAuthTokenLifetime       time.Duration `mapstructure:"TWO_FACTOR_AUTH_TOKEN_LIFETIME"`
	TwoFactorEnablementTokenLifetime time.Duration `mapstructure:"TWO_FACTOR_ENABLEMENT_TOKEN_LIFETIME"`

	TokenClockSkew time.Duration `mapstructure:"TOKEN_CLOCK_SKEW"`
	TokenCacheSize int           `mapstructure:"TOKEN_CACHE_SIZE"`

	Ledger string `mapstructure:"LEDGER"` // memory, sqlite
	DSN    string `mapstructure:"DSN"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	Port     int    `mapstructure:"PORT"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("AUTH_PROVIDERS", "harbor")
	viper.SetDefault("AUTH_TOKEN_LIFETIME", "12h")
	viper.SetDefault("ADMIN_AUTH_TOKEN_LIFETIME", "12h")
	viper.SetDefault("TWO_FACTOR_AUTH_TOKEN_LIFETIME", "1h")
	viper.SetDefault("TWO_FACTOR_ENABLEMENT_TOKEN_LIFETIME", "10m")
	viper.SetDefault("TOKEN_CLOCK_SKEW", "0s")
	viper.SetDefault("TOKEN_CACHE_SIZE", 5000)
	viper.SetDefault("LEDGER", "memory")
	viper.SetDefault("DSN", "harbormail.db")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PORT", 8080)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ProviderNames splits the configured provider list into an ordered slice of
// names, dropping empty entries.
func (c *Config) ProviderNames() []string {
	var names []string
	for _, name := range strings.Split(c.AuthProviders, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
