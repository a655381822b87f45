package config

import (
	"path/filepath"

	"ccs-host/internal/env"

	"github.com/spf13/viper"
)

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, "console" for stdout
 */
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

/**
 * Release endpoint configuration for proxy binary acquisition
 * @property {string} base_url - Base URL of the release artifact server
 * @property {string} package_name - Name of the distributed proxy package
 * @property {string} version - Pinned version, empty means latest
 */
type ReleaseConfig struct {
	BaseUrl     string `mapstructure:"base_url"`
	PackageName string `mapstructure:"package_name"`
	Version     string `mapstructure:"version"`
}

/**
 * Shared proxy process configuration
 * @property {int} port - Port the shared proxy listens on
 * @property {string} process_name - Executable name used for port-owner classification
 * @property {string} health_path - Liveness probe path on the proxy
 * @property {string} backend - Backend variant recorded in the session ledger
 */
type ProxyConfig struct {
	Port           int    `mapstructure:"port"`
	ProcessName    string `mapstructure:"process_name"`
	HealthPath     string `mapstructure:"health_path"`
	Backend        string `mapstructure:"backend"`
	StartupTimeout int    `mapstructure:"startup_timeout"` // seconds
}

// ReasoningConfig controls the effort-injection link.
type ReasoningConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	Provider      string            `mapstructure:"provider"`
	DefaultEffort string            `mapstructure:"default_effort"`
	ModelEfforts  map[string]string `mapstructure:"model_efforts"` // per-model override, wins over tier mapping
	SecondaryTier []string          `mapstructure:"secondary_tier"`
	TertiaryTier  []string          `mapstructure:"tertiary_tier"`
}

// SanitizerConfig controls the identifier-length link.
type SanitizerConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	MaxLength int  `mapstructure:"max_length"`
}

// TunnelConfig controls the TLS-bridging link.
type TunnelConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	RemoteAddr string `mapstructure:"remote_addr"`
	Insecure   bool   `mapstructure:"insecure"`
}

// ChainConfig groups the transformation link settings.
type ChainConfig struct {
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Sanitizer SanitizerConfig `mapstructure:"sanitizer"`
	Tunnel    TunnelConfig    `mapstructure:"tunnel"`
}

type AppConfig struct {
	Log     LogConfig     `mapstructure:"log"`
	Release ReleaseConfig `mapstructure:"release"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Chain   ChainConfig   `mapstructure:"chain"`
}

/**
 * Load application configuration from YAML file
 * @description
 * - Reads ~/.ccs/config.yaml via viper
 * - Missing file is not an error, defaults apply
 */
func LoadConfig() (*AppConfig, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(env.CcsDir)
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var Config AppConfig

func collectConfig(cfg *AppConfig) *AppConfig {
	if cfg.Log.Path == "" {
		cfg.Log.Path = filepath.Join(env.LogDir(), "ccs.log")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Release.BaseUrl == "" {
		cfg.Release.BaseUrl = "https://release.ccs.dev/ccs-proxy"
	}
	if cfg.Release.PackageName == "" {
		cfg.Release.PackageName = "ccs-proxy"
	}
	if cfg.Proxy.Port == 0 {
		cfg.Proxy.Port = 3180
	}
	if cfg.Proxy.ProcessName == "" {
		cfg.Proxy.ProcessName = "ccs-proxy"
	}
	if cfg.Proxy.HealthPath == "" {
		cfg.Proxy.HealthPath = "/"
	}
	if cfg.Proxy.StartupTimeout == 0 {
		cfg.Proxy.StartupTimeout = 30
	}
	if cfg.Chain.Reasoning.DefaultEffort == "" {
		cfg.Chain.Reasoning.DefaultEffort = "xhigh"
	}
	if cfg.Chain.Reasoning.Provider == "" {
		cfg.Chain.Reasoning.Provider = "openai"
	}
	if cfg.Chain.Sanitizer.MaxLength == 0 {
		cfg.Chain.Sanitizer.MaxLength = 64
	}
	return cfg
}

func init() {
	cfg, err := LoadConfig()
	if err == nil {
		Config = *cfg
	}
	collectConfig(&Config)
}
