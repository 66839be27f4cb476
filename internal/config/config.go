// Package config loads the smartpos configuration. The sync engine
// consumes this surface, it does not own it: the same file configures the
// POS application around the engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Deployment modes. A local terminal captures and pushes changes; the
// cloud deployment receives and merges them.
const (
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// Config is the root smartpos configuration.
type Config struct {
	BranchID string `mapstructure:"branch_id"`
	Mode     string `mapstructure:"mode"`
	DataDir  string `mapstructure:"data_dir"`

	Sync  SyncConfig  `mapstructure:"sync"`
	Cloud CloudConfig `mapstructure:"cloud"`
	Log   LogConfig   `mapstructure:"log"`
}

// SyncConfig configures the branch-side sync engine.
type SyncConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Transport selects the cloud transport backing: "http" or "zmq".
	Transport string `mapstructure:"transport"`
	Endpoint  string `mapstructure:"endpoint"`
	Token     string `mapstructure:"token"`

	PushInterval   time.Duration `mapstructure:"push_interval"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	BatchSize int `mapstructure:"batch_size"`
	PullLimit int `mapstructure:"pull_limit"`

	// StaleTimeout is how long a record may sit in_flight before a
	// restart requeues it as pending.
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`

	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

// CloudConfig configures the cloud authority deployment.
type CloudConfig struct {
	Listen              string   `mapstructure:"listen"`
	AllowedBranchTokens []string `mapstructure:"allowed_branch_tokens"`
}

// LogConfig configures rotating logs for the long-running commands.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from the given file (or smartpos.yaml in the
// working directory when path is empty), with SMARTPOS_* environment
// variables taking precedence over file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SMARTPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("smartpos")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/smartpos")
		if err := v.ReadInConfig(); err != nil {
			// Missing file is fine: defaults plus env cover a bare install.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("branch_id", "")
	v.SetDefault("mode", ModeLocal)
	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.transport", "http")
	v.SetDefault("sync.endpoint", "")
	v.SetDefault("sync.token", "")
	v.SetDefault("sync.push_interval", 30*time.Second)
	v.SetDefault("sync.retry_interval", 60*time.Second)
	v.SetDefault("sync.request_timeout", 30*time.Second)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.pull_limit", 200)
	v.SetDefault("sync.stale_timeout", 5*time.Minute)
	v.SetDefault("sync.backoff_base", 2*time.Second)
	v.SetDefault("sync.backoff_max", 5*time.Minute)

	v.SetDefault("cloud.listen", ":8743")
	v.SetDefault("cloud.allowed_branch_tokens", []string{})

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Mode != ModeLocal && c.Mode != ModeCloud {
		return fmt.Errorf("invalid mode %q (want %q or %q)", c.Mode, ModeLocal, ModeCloud)
	}
	if c.Sync.Enabled && c.Mode == ModeLocal {
		if c.BranchID == "" {
			return fmt.Errorf("sync is enabled but branch_id is empty")
		}
		if c.Sync.Endpoint == "" {
			return fmt.Errorf("sync is enabled but sync.endpoint is empty")
		}
	}
	if c.Sync.Transport != "http" && c.Sync.Transport != "zmq" {
		return fmt.Errorf("invalid sync.transport %q (want \"http\" or \"zmq\")", c.Sync.Transport)
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffMax < c.Sync.BackoffBase {
		return fmt.Errorf("backoff bounds must satisfy 0 < base <= max")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartpos"
	}
	return filepath.Join(home, ".smartpos")
}

// DefaultYAML is the template written by `smartpos init`.
const DefaultYAML = `# smartpos configuration
branch_id: ""        # unique branch identifier, e.g. "tashkent-01"
mode: local          # local terminal or cloud authority
data_dir: ""         # defaults to ~/.smartpos

sync:
  enabled: false
  transport: http    # http or zmq
  endpoint: ""       # e.g. https://cloud.example.com/api/sync
  token: ""          # branch auth token
  push_interval: 30s
  retry_interval: 60s
  request_timeout: 30s
  batch_size: 100
  pull_limit: 200
  stale_timeout: 5m
  backoff_base: 2s
  backoff_max: 5m

cloud:
  listen: ":8743"
  allowed_branch_tokens: []

log:
  file: ""           # empty logs to stderr only
  max_size_mb: 50
  max_backups: 5
  max_age_days: 30
`

// WriteDefault writes the default config template, refusing to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.WriteFile(path, []byte(DefaultYAML), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
