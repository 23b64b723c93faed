// Package config loads engine configuration from environment variables,
// following the viper idiom used by CloudPasture-kubevirt-shepherd's
// internal/config package: defaults set first, then AutomaticEnv overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the engine (spec.md §6).
type Config struct {
	Port      int    `mapstructure:"port"`
	DataDir   string `mapstructure:"data_dir"`
	ConfigDir string `mapstructure:"config_dir"`

	MaxBodyBytes       int64 `mapstructure:"max_body_bytes"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute"`

	MultiTenantEnabled bool `mapstructure:"multi_tenant_enabled"`
	AuthEnabled        bool `mapstructure:"auth_enabled"`

	SystemAdminEmail    string `mapstructure:"system_admin_email"`
	SystemAdminPassword string `mapstructure:"system_admin_password"`
}

const (
	defaultPort              = 8080
	defaultDataDir           = "./data"
	defaultConfigDir         = "./config"
	defaultMaxBodyBytes      = 1 << 20 // 1 MiB
	defaultRateLimitPerMinute = 600
)

// Load reads configuration from environment variables, with defaults
// matching spec.md §6. No config file is read: the engine is
// environment-variable driven only (unlike CloudPasture, which layers a
// config.yaml ahead of env vars).
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", defaultPort)
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("config_dir", defaultConfigDir)
	v.SetDefault("max_body_bytes", defaultMaxBodyBytes)
	v.SetDefault("rate_limit_per_minute", defaultRateLimitPerMinute)
	v.SetDefault("multi_tenant_enabled", false)
	v.SetDefault("auth_enabled", false)
	v.SetDefault("system_admin_email", "")
	v.SetDefault("system_admin_password", "")
}

// bindEnv maps each mapstructure key to its spec-named environment
// variable. AutomaticEnv alone would look up PORT, DATA_DIR, etc. via the
// key's uppercased form already, but explicit BindEnv keeps the mapping
// visible and immune to a future mapstructure tag rename.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("data_dir", "DATA_DIR")
	_ = v.BindEnv("config_dir", "CONFIG_DIR")
	_ = v.BindEnv("max_body_bytes", "MAX_BODY_BYTES")
	_ = v.BindEnv("rate_limit_per_minute", "RATE_LIMIT_PER_MINUTE")
	_ = v.BindEnv("multi_tenant_enabled", "MULTI_TENANT_ENABLED")
	_ = v.BindEnv("auth_enabled", "AUTH_ENABLED")
	_ = v.BindEnv("system_admin_email", "SYSTEM_ADMIN_EMAIL")
	_ = v.BindEnv("system_admin_password", "SYSTEM_ADMIN_PASSWORD")
}

// Validate checks for configuration values that would make the engine
// unable to start.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.ConfigDir == "" {
		return fmt.Errorf("config_dir must not be empty")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate_limit_per_minute must be positive")
	}
	return nil
}
