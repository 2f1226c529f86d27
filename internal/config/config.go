// Package config loads the server settings from an optional config file
// and MEMDB_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "MEMDB"

type LogConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Debug   bool `mapstructure:"debug"`
}

type Config struct {
	Port int       `mapstructure:"port"`
	Log  LogConfig `mapstructure:"log"`
	// initial admin account
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// $TABLE schema file defined at startup, optional
	Schema         string `mapstructure:"schema"`
	MaxConcurrency int64  `mapstructure:"max_concurrency"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 7085)
	v.SetDefault("log.enabled", true)
	v.SetDefault("log.debug", false)
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("schema", "")
	v.SetDefault("max_concurrency", 0)
}

// Load reads config_path when it is not empty, then lets environment
// variables override it: MEMDB_PORT, MEMDB_LOG_DEBUG and so on.
func Load(config_path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if len(config_path) > 0 {
		v.SetConfigFile(config_path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", config_path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if len(cfg.Username) == 0 || len(cfg.Password) == 0 {
		return fmt.Errorf("username and password are required")
	}
	return nil
}
