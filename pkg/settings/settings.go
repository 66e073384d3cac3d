// Package settings manages persistent user settings for the weft CLI.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds persistent user preferences
type Settings struct {
	// DefaultProject is the project to use when --project is not specified
	DefaultProject string `json:"default_project,omitempty"`

	// OutputFormat is the default rendering for list/show: table or json
	OutputFormat string `json:"output_format,omitempty"`

	// StateBackend selects slice record storage: file or redis
	StateBackend string `json:"state_backend,omitempty"`

	// RedisAddr is the redis endpoint when StateBackend is redis
	RedisAddr string `json:"redis_addr,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "weft_settings.json"
	}
	return filepath.Join(home, ".weft", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SetProject sets the default project
func (s *Settings) SetProject(project string) {
	s.DefaultProject = project
}

// SetOutputFormat sets the default output format
func (s *Settings) SetOutputFormat(format string) {
	s.OutputFormat = format
}

// GetOutputFormat returns the output format (with fallback)
func (s *Settings) GetOutputFormat() string {
	if s.OutputFormat != "" {
		return s.OutputFormat
	}
	return "table"
}

// SetStateBackend sets the state backend
func (s *Settings) SetStateBackend(backend string) {
	s.StateBackend = backend
}

// GetStateBackend returns the state backend (with fallback)
func (s *Settings) GetStateBackend() string {
	if s.StateBackend != "" {
		return s.StateBackend
	}
	return "file"
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
