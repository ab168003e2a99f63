// Package config loads project settings from vxrn.config.{json,yaml,toml}
// and VXRN_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// BaseName is the config file name without extension.
const BaseName = "vxrn.config"

// FileName is the file Save writes.
const FileName = BaseName + ".json"

// EnvPrefix prefixes environment overrides, e.g. VXRN_PORT.
const EnvPrefix = "VXRN"

// Config holds project settings.
type Config struct {
	// Entry overrides the detected entry file.
	Entry  string `mapstructure:"entry" json:"entry,omitempty"`
	Host   string `mapstructure:"host" json:"host"`
	Port   int    `mapstructure:"port" json:"port"`
	OutDir string `mapstructure:"out_dir" json:"out_dir"`
	// HotCacheSize bounds cached hot updates per platform.
	HotCacheSize int  `mapstructure:"hot_cache_size" json:"hot_cache_size"`
	ForcePatches bool `mapstructure:"force_patches" json:"force_patches,omitempty"`
	// DisabledPatches lists module names whose built-in patches are skipped.
	DisabledPatches []string `mapstructure:"disabled_patches" json:"disabled_patches,omitempty"`
	// Prebuilt lists runtime packages bundled ahead of time.
	Prebuilt    []string `mapstructure:"prebuilt" json:"prebuilt"`
	Worker      bool     `mapstructure:"worker" json:"worker,omitempty"`
	WatchIgnore []string `mapstructure:"watch_ignore" json:"watch_ignore,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         8081,
		OutDir:       "dist",
		HotCacheSize: 500,
		Prebuilt:     []string{"react-native", "react", "react/jsx-runtime"},
	}
}

// Load reads the config for the project in dir. It returns the defaults,
// with environment overrides applied, when no file exists. The second
// return value is the file that was read, if any.
func Load(dir string) (*Config, string, error) {
	v := viper.New()
	defaults := Default()
	v.SetDefault("entry", defaults.Entry)
	v.SetDefault("host", defaults.Host)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("out_dir", defaults.OutDir)
	v.SetDefault("hot_cache_size", defaults.HotCacheSize)
	v.SetDefault("force_patches", defaults.ForcePatches)
	v.SetDefault("disabled_patches", defaults.DisabledPatches)
	v.SetDefault("prebuilt", defaults.Prebuilt)
	v.SetDefault("worker", defaults.Worker)
	v.SetDefault("watch_ignore", defaults.WatchIgnore)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(BaseName)
	v.AddConfigPath(dir)

	path := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("reading %s: %w", BaseName, err)
		}
	} else {
		path = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", BaseName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, path, nil
}

// Validate rejects values the dev server cannot use.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.HotCacheSize <= 0 {
		return fmt.Errorf("hot_cache_size must be positive, got %d", c.HotCacheSize)
	}
	return nil
}

// Save writes cfg as JSON to dir/vxrn.config.json.
func Save(dir string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", FileName, err)
	}
	return nil
}
