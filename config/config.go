// Package config loads ccb configuration from .ccb/config.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	ccberrors "github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/paths"
)

// DefaultAskTimeout bounds a synchronous ask when neither the config nor
// the caller says otherwise. Assistant replies can take a long time, so
// the default is generous.
const DefaultAskTimeout = time.Hour

// ProviderConfig describes how to run and locate one provider.
type ProviderConfig struct {
	// Command launches the provider's CLI process for the daemon.
	Command []string `yaml:"command"`
	// Root overrides where the provider stores session transcripts.
	Root string `yaml:"root,omitempty"`
}

// Config is the root of .ccb/config.yml.
type Config struct {
	DefaultProvider string                    `yaml:"default_provider"`
	AskTimeoutSecs  int                       `yaml:"ask_timeout_secs,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = "claude"
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if _, ok := c.Providers["claude"]; !ok {
		c.Providers["claude"] = ProviderConfig{Command: []string{"claude"}}
	}
}

// AskTimeout returns the effective synchronous ask timeout:
// CCB_ASK_TIMEOUT (seconds) wins, then ask_timeout_secs, then the
// default.
func (c *Config) AskTimeout() time.Duration {
	if raw := os.Getenv("CCB_ASK_TIMEOUT"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if c.AskTimeoutSecs > 0 {
		return time.Duration(c.AskTimeoutSecs) * time.Second
	}
	return DefaultAskTimeout
}

// Provider returns the configuration for a named provider, falling back
// to a bare command equal to the provider name.
func (c *Config) Provider(name string) ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return ProviderConfig{Command: []string{name}}
}

// UnmarshalExtension decodes a specific extension's configuration from
// the inline Extensions map into a typed struct.
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	raw, ok := c.Extensions[key]
	if !ok {
		return fmt.Errorf("extension %q not found in config", key)
	}
	return mapstructure.Decode(raw, target)
}

// FindConfigFile walks up from startDir looking for .ccb/config.yml.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, paths.StateDirName, "config.yml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ccberrors.New(ccberrors.ErrCodeConfigNotFound,
				fmt.Sprintf("no %s/config.yml found above %s", paths.StateDirName, startDir))
		}
		dir = parent
	}
}

// Load reads a config file. A missing file yields defaults, not an
// error; a malformed file is CONFIG_INVALID.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.SetDefaults()
			return &cfg, nil
		}
		return nil, ccberrors.Wrap(err, ccberrors.ErrCodeConfigInvalid, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ccberrors.ConfigInvalid(path, err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// LoadDefault loads configuration for the effective working directory,
// returning defaults when no config file exists anywhere above it.
func LoadDefault() (*Config, error) {
	wd, err := paths.WorkDir()
	if err != nil {
		return nil, ccberrors.Wrap(err, ccberrors.ErrCodeInternal, "resolve work dir")
	}
	path, err := FindConfigFile(wd)
	if err != nil {
		cfg := &Config{}
		cfg.SetDefaults()
		return cfg, nil
	}
	return Load(path)
}
