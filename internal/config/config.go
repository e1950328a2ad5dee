// Package config provides ambient process bootstrap configuration —
// bind addresses, the data directory, and logging shape — loaded from a
// YAML file with automatic environment variable binding via viper.
//
// This intentionally does not hold THREADS, UPSTREAM, or admin
// credentials: those are runtime-mutable settings owned by ConfigStore's
// flat data.txt file (internal/configstore), not process bootstrap
// configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (DNSDEN_* prefix)
//  2. YAML config file (if specified with -config)
//  3. Hardcoded defaults
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Uses DNSDEN_ prefix: DNSDEN_DNS_PORT -> dns.port
	v.SetEnvPrefix("DNSDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("dns.host", "0.0.0.0")
	v.SetDefault("dns.port", 53)

	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 8181)
	v.SetDefault("admin.api_key", "")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", true)
	v.SetDefault("logging.format", "json")

	v.SetDefault("data_dir", "./data")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	loadDNSConfig(v, cfg)
	loadAdminConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	cfg.DataDir = v.GetString("data_dir")

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDNSConfig(v *viper.Viper, cfg *Config) {
	cfg.DNS.Host = v.GetString("dns.host")
	cfg.DNS.Port = v.GetInt("dns.port")
}

func loadAdminConfig(v *viper.Viper, cfg *Config) {
	cfg.Admin.Host = v.GetString("admin.host")
	cfg.Admin.Port = v.GetInt("admin.port")
	cfg.Admin.APIKey = v.GetString("admin.api_key")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.Format = v.GetString("logging.format")
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.DNS.Port <= 0 || cfg.DNS.Port > 65535 {
		return errors.New("dns.port must be 1..65535")
	}
	if cfg.Admin.Port <= 0 || cfg.Admin.Port > 65535 {
		return errors.New("admin.port must be 1..65535")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}

	return nil
}
