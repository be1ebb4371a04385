// Package config manages remotedesk configuration persistence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/remotedesk/remotedesk/internal/capture"
	"github.com/remotedesk/remotedesk/internal/frame"
	"github.com/remotedesk/remotedesk/internal/netconn"
)

const (
	// ConfigDirName is the name of the config directory
	ConfigDirName = ".remotedesk"
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
)

// Config holds the daemon and client configuration. Flag values
// override anything loaded from disk.
type Config struct {
	// Port is the TCP port the server binds.
	Port int `json:"port"`
	// FPS is the capture rate, clamped to [1,60] at load.
	FPS int `json:"fps"`
	// Quality is the JPEG quality, clamped to [1,100] at load.
	Quality int `json:"quality"`
	// Announce enables UDP LAN discovery broadcasts.
	Announce bool `json:"announce"`
	// Verbose enables verbose logging.
	Verbose bool `json:"verbose"`
	// TLS configures the optional TLS wrap.
	TLS *TLSConfig `json:"tls,omitempty"`
	// Credentials, when set, installs a static auth policy. Absent
	// credentials mean any peer is accepted.
	Credentials *Credentials `json:"credentials,omitempty"`
}

// TLSConfig points at the server certificate and key files.
type TLSConfig struct {
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
}

// Credentials is the single accepted username/password pair.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Paths holds commonly used paths
type Paths struct {
	// ConfigDir is ~/.remotedesk
	ConfigDir string
	// ConfigFile is ~/.remotedesk/config.json
	ConfigFile string
	// DeviceIDFile is ~/.remotedesk/device_id
	DeviceIDFile string
}

// GetPaths returns the standard paths
func GetPaths() (*Paths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ConfigDirName)
	return &Paths{
		ConfigDir:    configDir,
		ConfigFile:   filepath.Join(configDir, ConfigFileName),
		DeviceIDFile: filepath.Join(configDir, "device_id"),
	}, nil
}

// Default returns a new Config with default values
func Default() *Config {
	return &Config{
		Port:    netconn.DefaultPort,
		FPS:     capture.DefaultFPS,
		Quality: capture.DefaultQuality,
	}
}

// Load loads configuration from disk, falling back to defaults when
// no config file exists yet.
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}
	return LoadFrom(paths.ConfigFile)
}

// LoadFrom reads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.Port = clampPort(config.Port)
	config.FPS = clampFPS(config.FPS)
	config.Quality = frame.ClampQuality(config.Quality)
	return config, nil
}

// Save saves configuration to disk
func (c *Config) Save() error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}
	return c.SaveTo(paths.ConfigFile)
}

// SaveTo writes configuration to an explicit path.
func (c *Config) SaveTo(path string) error {
	// The config can carry credentials, so the directory is private.
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func clampPort(port int) int {
	if port < 1 || port > 65535 {
		return netconn.DefaultPort
	}
	return port
}

func clampFPS(fps int) int {
	if fps < capture.MinFPS {
		return capture.MinFPS
	}
	if fps > capture.MaxFPS {
		return capture.MaxFPS
	}
	return fps
}
