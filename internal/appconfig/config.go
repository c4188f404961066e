package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int          `mapstructure:"config_version" yaml:"config_version"`
	SocketPath    string       `mapstructure:"socket_path" yaml:"socket_path"`
	Client        ClientConfig `mapstructure:"client" yaml:"client"`
	Sim           SimConfig    `mapstructure:"sim" yaml:"sim"`
	SSH           SSHConfig    `mapstructure:"ssh" yaml:"ssh"`
	Debug         DebugConfig  `mapstructure:"debug" yaml:"debug"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ClientConfig controls the display side of the link.
type ClientConfig struct {
	Renderer            string            `mapstructure:"renderer" yaml:"renderer"`
	ColorMode           string            `mapstructure:"color_mode" yaml:"color_mode"`
	StatusLine          bool              `mapstructure:"status_line" yaml:"status_line"`
	KeyHoldMS           int               `mapstructure:"key_hold_ms" yaml:"key_hold_ms"`
	MaxFPS              int               `mapstructure:"max_fps" yaml:"max_fps"`
	RingSize            int               `mapstructure:"ring_size" yaml:"ring_size"`
	ConnectAttempts     int               `mapstructure:"connect_attempts" yaml:"connect_attempts"`
	ConnectBackoffMS    int               `mapstructure:"connect_backoff_ms" yaml:"connect_backoff_ms"`
	ConnectBackoffMaxMS int               `mapstructure:"connect_backoff_max_ms" yaml:"connect_backoff_max_ms"`
	ConfigVars          map[string]string `mapstructure:"config_vars" yaml:"config_vars"`
}

// SimConfig controls the demo simulation host.
type SimConfig struct {
	TickRate int `mapstructure:"tick_rate" yaml:"tick_rate"`
	KeyQueue int `mapstructure:"key_queue" yaml:"key_queue"`
}

// SSHConfig configures the SSH display server.
type SSHConfig struct {
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
}

// DebugConfig configures the optional debug HTTP endpoint. An empty Addr
// disables it.
type DebugConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		SocketPath:    filepath.Join(defaultRuntimeDir(), "simlink", "link.sock"),
		Client: ClientConfig{
			Renderer:            "cells",
			ColorMode:           "truecolor",
			StatusLine:          true,
			KeyHoldMS:           300,
			MaxFPS:              35,
			RingSize:            64 << 10,
			ConnectAttempts:     10,
			ConnectBackoffMS:    100,
			ConnectBackoffMaxMS: 2000,
			ConfigVars:          map[string]string{},
		},
		Sim: SimConfig{
			TickRate: 35,
			KeyQueue: 512,
		},
		SSH: SSHConfig{
			Addr:               ":27522",
			HostKeyPath:        filepath.Join(home, ".simlink", "ssh_host_key"),
			AuthorizedKeysPath: filepath.Join(home, ".ssh", "authorized_keys"),
		},
		Debug: DebugConfig{
			Addr: "",
		},
	}, nil
}

func defaultRuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("simlink-%d", os.Getuid()))
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".simlink", "config.yaml"), nil
}
