package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/simlink/internal/render"
	"pkt.systems/simlink/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("socket_path", cfg.SocketPath)
	v.SetDefault("client.renderer", cfg.Client.Renderer)
	v.SetDefault("client.color_mode", cfg.Client.ColorMode)
	v.SetDefault("client.status_line", cfg.Client.StatusLine)
	v.SetDefault("client.key_hold_ms", cfg.Client.KeyHoldMS)
	v.SetDefault("client.max_fps", cfg.Client.MaxFPS)
	v.SetDefault("client.ring_size", cfg.Client.RingSize)
	v.SetDefault("client.connect_attempts", cfg.Client.ConnectAttempts)
	v.SetDefault("client.connect_backoff_ms", cfg.Client.ConnectBackoffMS)
	v.SetDefault("client.connect_backoff_max_ms", cfg.Client.ConnectBackoffMaxMS)
	v.SetDefault("client.config_vars", cfg.Client.ConfigVars)
	v.SetDefault("sim.tick_rate", cfg.Sim.TickRate)
	v.SetDefault("sim.key_queue", cfg.Sim.KeyQueue)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("debug.addr", cfg.Debug.Addr)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		// an explicit path that does not exist surfaces as a filesystem error
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the link.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.SocketPath) == "" {
		return fmt.Errorf("socket_path is required")
	}
	if _, err := render.ParseKind(cfg.Client.Renderer); err != nil {
		return fmt.Errorf("client.renderer: %w", err)
	}
	if _, err := render.ParseColorMode(cfg.Client.ColorMode); err != nil {
		return fmt.Errorf("client.color_mode: %w", err)
	}
	if cfg.Client.KeyHoldMS <= 0 {
		return fmt.Errorf("client.key_hold_ms must be positive")
	}
	if n := cfg.Client.RingSize; n < 512 || n&(n-1) != 0 {
		return fmt.Errorf("client.ring_size must be a power of two of at least 512, got %d", n)
	}
	if cfg.Client.ConnectAttempts <= 0 {
		return fmt.Errorf("client.connect_attempts must be positive")
	}
	if cfg.Client.ConnectBackoffMS <= 0 || cfg.Client.ConnectBackoffMaxMS < cfg.Client.ConnectBackoffMS {
		return fmt.Errorf("client.connect_backoff_ms must be positive and not above client.connect_backoff_max_ms")
	}
	for name, value := range cfg.Client.ConfigVars {
		if name == "" || len(name) > schema.MaxConfigNameLen {
			return fmt.Errorf("client.config_vars name %q must be 1 to %d bytes", name, schema.MaxConfigNameLen)
		}
		if len(value) > schema.MaxConfigValueLen {
			return fmt.Errorf("client.config_vars.%s value is %d bytes, limit %d", name, len(value), schema.MaxConfigValueLen)
		}
	}
	if cfg.Sim.TickRate <= 0 || cfg.Sim.TickRate > 1000 {
		return fmt.Errorf("sim.tick_rate must be between 1 and 1000")
	}
	if n := cfg.Sim.KeyQueue; n < 4 || n&(n-1) != 0 {
		return fmt.Errorf("sim.key_queue must be a power of two of at least 4, got %d", n)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.SocketPath = expandEnv(cfg.SocketPath)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandEnv(cfg.SSH.AuthorizedKeysPath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
