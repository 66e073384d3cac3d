// Package config loads the weft client configuration: built-in defaults,
// overlaid by an optional rc file at ~/.weft/weft.yml, overlaid by WEFT_*
// environment variables. There is no process-wide config object; callers
// pass the Config to whatever needs one.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weft-testbed/weft/pkg/util"
)

// Config carries everything the client needs to reach the testbed.
type Config struct {
	// OrchestratorHost is the control framework API host.
	OrchestratorHost string `yaml:"orchestrator_host"`

	// CredmgrHost is the credential manager host. weft never calls it
	// directly; it appears in operator-facing messages about token refresh.
	CredmgrHost string `yaml:"credmgr_host"`

	BastionHost        string `yaml:"bastion_host"`
	BastionUser        string `yaml:"bastion_username"`
	BastionKeyLocation string `yaml:"bastion_key_location"`

	ProjectID     string `yaml:"project_id"`
	TokenLocation string `yaml:"token_location"`

	SlicePrivateKeyFile string `yaml:"slice_private_key_file"`
	SlicePublicKeyFile  string `yaml:"slice_public_key_file"`
	SliceKeyPassphrase  string `yaml:"slice_key_passphrase,omitempty"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`

	// StateDir roots local slice state; slice records live in
	// <state_dir>/slices. StateRedisAddr switches persistence to redis.
	StateDir       string `yaml:"state_dir"`
	StateRedisAddr string `yaml:"state_redis_addr,omitempty"`
}

// weftDir returns ~/.weft, or a relative .weft when the home directory
// cannot be determined.
func weftDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".weft"
	}
	return filepath.Join(home, ".weft")
}

// DefaultPath returns the standard rc file location.
func DefaultPath() string {
	return filepath.Join(weftDir(), "weft.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := weftDir()
	return &Config{
		OrchestratorHost:    "orchestrator.weft-testbed.net",
		CredmgrHost:         "cm.weft-testbed.net",
		BastionHost:         "bastion.weft-testbed.net",
		TokenLocation:       filepath.Join(dir, "tokens.json"),
		SlicePrivateKeyFile: filepath.Join(dir, "slice_key"),
		SlicePublicKeyFile:  filepath.Join(dir, "slice_key.pub"),
		LogLevel:            "info",
		StateDir:            dir,
	}
}

// Load builds the effective configuration: defaults, the rc file at
// DefaultPath when present, then environment overrides.
func Load() (*Config, error) {
	c := Default()
	if err := c.mergeFile(DefaultPath(), false); err != nil {
		return nil, err
	}
	c.applyEnv()
	return c, nil
}

// LoadFrom is Load with an explicit rc file, which must exist.
func LoadFrom(path string) (*Config, error) {
	c := Default()
	if err := c.mergeFile(path, true); err != nil {
		return nil, err
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	// Unmarshal into the existing struct so keys absent from the file keep
	// their default values.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	for _, v := range []struct {
		name string
		dst  *string
	}{
		{"WEFT_ORCHESTRATOR_HOST", &c.OrchestratorHost},
		{"WEFT_CREDMGR_HOST", &c.CredmgrHost},
		{"WEFT_BASTION_HOST", &c.BastionHost},
		{"WEFT_BASTION_USERNAME", &c.BastionUser},
		{"WEFT_BASTION_KEY_LOCATION", &c.BastionKeyLocation},
		{"WEFT_PROJECT_ID", &c.ProjectID},
		{"WEFT_TOKEN_LOCATION", &c.TokenLocation},
		{"WEFT_SLICE_PRIVATE_KEY_FILE", &c.SlicePrivateKeyFile},
		{"WEFT_SLICE_PUBLIC_KEY_FILE", &c.SlicePublicKeyFile},
		{"WEFT_SLICE_KEY_PASSPHRASE", &c.SliceKeyPassphrase},
		{"WEFT_LOG_LEVEL", &c.LogLevel},
		{"WEFT_LOG_FILE", &c.LogFile},
		{"WEFT_STATE_DIR", &c.StateDir},
		{"WEFT_STATE_REDIS_ADDR", &c.StateRedisAddr},
	} {
		if val, ok := os.LookupEnv(v.name); ok {
			*v.dst = val
		}
	}
}

// OrchestratorEndpoint returns the control framework base URL, defaulting
// the scheme to https when the host carries none.
func (c *Config) OrchestratorEndpoint() string {
	return withScheme(c.OrchestratorHost)
}

// CredmgrEndpoint returns the credential manager base URL.
func (c *Config) CredmgrEndpoint() string {
	return withScheme(c.CredmgrHost)
}

func withScheme(host string) string {
	if host == "" || strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// SliceDir returns the directory for local slice records.
func (c *Config) SliceDir() string {
	return filepath.Join(c.StateDir, "slices")
}

// ApplyLogging configures the global logger from LogLevel and LogFile.
func (c *Config) ApplyLogging() error {
	if c.LogLevel != "" {
		if err := util.SetLogLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if c.LogFile != "" {
		if err := util.SetLogFile(c.LogFile); err != nil {
			return fmt.Errorf("log_file: %w", err)
		}
	}
	return nil
}
