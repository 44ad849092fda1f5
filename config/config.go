// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"

	"clack/mixer"
	"clack/output"
)

// Config represents the clack configuration.
type Config struct {
	Input  InputConfig  `toml:"input"`
	Output OutputConfig `toml:"output"`
	Mixer  MixerConfig  `toml:"mixer"`
}

// InputConfig selects keyboard devices.
type InputConfig struct {
	Devices []string `toml:"devices,omitempty"` // /dev/input/eventN paths, empty = auto-detect
}

// OutputConfig selects the audio sink.
type OutputConfig struct {
	Backend string   `toml:"backend"` // pulse, malgo, oto
	Device  string   `toml:"device"`  // backend device id, empty = default
	Latency Duration `toml:"latency"`
}

// MixerConfig holds playback tuning.
type MixerConfig struct {
	Voices int     `toml:"voices"` // soft cap on overlapping sounds
	Volume float64 `toml:"volume"` // 0.0 to 1.0
}

// Duration is a time.Duration written as a string such as "50ms".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Backend: output.DefaultBackend,
			Latency: Duration(output.DefaultLatency),
		},
		Mixer: MixerConfig{
			Voices: mixer.DefaultCapacity,
			Volume: mixer.DefaultVolume,
		},
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "clack", "config.toml")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	if !slices.Contains(output.Backends, c.Output.Backend) {
		return fmt.Errorf("unknown output backend %q", c.Output.Backend)
	}
	if c.Output.Latency <= 0 {
		return fmt.Errorf("output latency must be positive")
	}
	if c.Mixer.Voices < 1 {
		return fmt.Errorf("mixer voices must be at least 1, got %d", c.Mixer.Voices)
	}
	if c.Mixer.Volume < 0 || c.Mixer.Volume > 1 {
		return fmt.Errorf("mixer volume must be between 0 and 1, got %g", c.Mixer.Volume)
	}
	return nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// MixerSettings returns the mixer settings in the mixer's terms.
func (c *Config) MixerSettings() mixer.Config {
	return mixer.Config{
		Capacity:  c.Mixer.Voices,
		QueueSize: mixer.DefaultQueueSize,
		Volume:    c.Mixer.Volume,
	}
}

// OutputSettings returns the sink settings in the output package's terms.
func (c *Config) OutputSettings() output.Config {
	return output.Config{
		Backend: c.Output.Backend,
		Device:  c.Output.Device,
		Latency: time.Duration(c.Output.Latency),
	}
}
