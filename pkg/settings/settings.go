// Package settings manages persistent settings for the lookupclassd daemon.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Defaults used when a setting is not present in the file.
const (
	DefaultRedisAddr    = "127.0.0.1:6379"
	DefaultSSHUser      = "admin"
	DefaultSSHPort      = 22
	DefaultPollInterval = 2 * time.Second
	DefaultGNMIAddr     = ":9339"
	DefaultMetricsAddr  = ":9101"
	DefaultLogLevel     = "info"
)

// Settings holds persistent daemon settings
type Settings struct {
	// RedisAddr is the switch's redis when no SSH host is set
	RedisAddr string `json:"redis_addr,omitempty"`

	// SSHHost tunnels redis through SSH to this host when set
	SSHHost string `json:"ssh_host,omitempty"`
	SSHUser string `json:"ssh_user,omitempty"`
	SSHPort int    `json:"ssh_port,omitempty"`

	// PollInterval is a Go duration string, e.g. "500ms"
	PollInterval string `json:"poll_interval,omitempty"`

	GNMIAddr    string `json:"gnmi_addr,omitempty"`
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// AuditLog enables the classID journal at this path
	AuditLog string `json:"audit_log,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "lookupclass_settings.json"
	}
	return filepath.Join(home, ".lookupclass", "settings.json")
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

// GetRedisAddr returns the redis address (with fallback)
func (s *Settings) GetRedisAddr() string {
	if s.RedisAddr != "" {
		return s.RedisAddr
	}
	return DefaultRedisAddr
}

// GetSSHUser returns the SSH user (with fallback)
func (s *Settings) GetSSHUser() string {
	if s.SSHUser != "" {
		return s.SSHUser
	}
	return DefaultSSHUser
}

// GetSSHPort returns the SSH port (with fallback)
func (s *Settings) GetSSHPort() int {
	if s.SSHPort > 0 {
		return s.SSHPort
	}
	return DefaultSSHPort
}

// GetPollInterval returns the poll interval. Unparsable or non-positive
// values fall back to the default.
func (s *Settings) GetPollInterval() time.Duration {
	if d, err := time.ParseDuration(s.PollInterval); err == nil && d > 0 {
		return d
	}
	return DefaultPollInterval
}

// GetGNMIAddr returns the gNMI listen address (with fallback)
func (s *Settings) GetGNMIAddr() string {
	if s.GNMIAddr != "" {
		return s.GNMIAddr
	}
	return DefaultGNMIAddr
}

// GetMetricsAddr returns the metrics listen address (with fallback)
func (s *Settings) GetMetricsAddr() string {
	if s.MetricsAddr != "" {
		return s.MetricsAddr
	}
	return DefaultMetricsAddr
}

// GetLogLevel returns the log level (with fallback)
func (s *Settings) GetLogLevel() string {
	if s.LogLevel != "" {
		return s.LogLevel
	}
	return DefaultLogLevel
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
