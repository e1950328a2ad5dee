// Package config provides ambient process bootstrap configuration for
// dnsden using Viper. Configuration is loaded from a YAML file with
// automatic environment variable binding.
//
// Environment variables use the DNSDEN_ prefix and underscore-separated
// keys:
//   - DNSDEN_DNS_HOST   -> dns.host
//   - DNSDEN_DNS_PORT   -> dns.port
//   - DNSDEN_ADMIN_PORT -> admin.port
//   - DNSDEN_DATA_DIR   -> data_dir
package config

import (
	"os"
	"strings"
)

// DNSConfig controls the UDP listener the Receiver binds.
type DNSConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// AdminConfig controls the control-plane HTTP listener.
type AdminConfig struct {
	Host   string `yaml:"host"    mapstructure:"host"`
	Port   int    `yaml:"port"    mapstructure:"port"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// LoggingConfig controls slog output shape.
type LoggingConfig struct {
	Level      string `yaml:"level"      mapstructure:"level"`
	Structured bool   `yaml:"structured" mapstructure:"structured"`
	Format     string `yaml:"format"     mapstructure:"format"` // "json" or "text"
}

// Config is the root process bootstrap configuration. It deliberately
// excludes THREADS, UPSTREAM, and admin credentials — those are
// runtime-mutable and live in ConfigStore's data.txt instead.
type Config struct {
	DNS     DNSConfig     `yaml:"dns"      mapstructure:"dns"`
	Admin   AdminConfig   `yaml:"admin"    mapstructure:"admin"`
	Logging LoggingConfig `yaml:"logging"  mapstructure:"logging"`
	DataDir string        `yaml:"data_dir" mapstructure:"data_dir"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("DNSDEN_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable
// overrides. This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (DNSDEN_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
