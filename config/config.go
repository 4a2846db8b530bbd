// Package config loads murmur's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"murmur/clipboard"
	"murmur/dictation"
	"murmur/dictionary"
	"murmur/transcriber"
)

// OverlayModes lists the accepted overlay.mode values. "auto" picks the
// window when built with it, else the terminal indicator when stdout is a
// terminal, else nothing.
var OverlayModes = []string{"auto", "gui", "tui", "none"}

var logLevels = []string{"", "debug", "info", "warn", "error"}

type Config struct {
	LogLevel    string                 `yaml:"log_level"`
	Hotkey      dictation.Registration `yaml:"hotkey"`
	Capture     Capture                `yaml:"capture"`
	Transcriber transcriber.Config     `yaml:"transcriber"`
	Dictionary  []dictionary.Term      `yaml:"dictionary"`
	Paste       Paste                  `yaml:"paste"`
	Sound       Sound                  `yaml:"sound"`
	Overlay     Overlay                `yaml:"overlay"`
	History     History                `yaml:"history"`
}

type Capture struct {
	Device         string        `yaml:"device"`
	Language       string        `yaml:"language"`
	Gain           int32         `yaml:"gain"`
	Bands          int           `yaml:"bands"`
	MaxDuration    time.Duration `yaml:"max_duration"`
	MinDuration    time.Duration `yaml:"min_duration"`
	SilenceWarn    time.Duration `yaml:"silence_warn"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
}

type Paste struct {
	Mode         clipboard.Mode `yaml:"mode"`
	Restore      bool           `yaml:"restore"`
	RestoreDelay time.Duration  `yaml:"restore_delay"`
}

type Sound struct {
	Enabled bool `yaml:"enabled"`
}

type Overlay struct {
	Mode string `yaml:"mode"`
}

type History struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // empty means <config dir>/murmur/history
	Keep    int    `yaml:"keep"`
}

func Default() *Config {
	return &Config{
		Hotkey: dictation.DefaultRegistration(),
		Capture: Capture{
			Bands:          8,
			MaxDuration:    5 * time.Minute,
			MinDuration:    100 * time.Millisecond,
			SilenceWarn:    8 * time.Second,
			SilenceTimeout: 30 * time.Second,
		},
		Paste:   Paste{Mode: clipboard.ModePaste, Restore: true, RestoreDelay: 600 * time.Millisecond},
		Sound:   Sound{Enabled: true},
		Overlay: Overlay{Mode: "auto"},
		History: History{Enabled: true, Keep: 500},
	}
}

// DefaultPath is config.yaml under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "murmur", "config.yaml"), nil
}

// HistoryDir resolves History.Dir, defaulting to history/ under the user's
// config directory.
func (c *Config) HistoryDir() (string, error) {
	if c.History.Dir != "" {
		return c.History.Dir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "murmur", "history"), nil
}

// Load reads the file at path over the defaults. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(logLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", c.LogLevel))
	}
	if err := c.Hotkey.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("hotkey: %w", err))
	}

	if c.Capture.Bands < 1 {
		errs = append(errs, fmt.Errorf("capture.bands must be at least 1"))
	}
	if c.Capture.MaxDuration < 0 || c.Capture.MinDuration < 0 || c.Capture.SilenceTimeout < 0 {
		errs = append(errs, fmt.Errorf("capture durations must not be negative"))
	}
	if c.Capture.MaxDuration > 0 && c.Capture.MinDuration >= c.Capture.MaxDuration {
		errs = append(errs, fmt.Errorf("capture.min_duration %v must be below max_duration %v", c.Capture.MinDuration, c.Capture.MaxDuration))
	}
	if c.Capture.Gain < 0 {
		errs = append(errs, fmt.Errorf("capture.gain must not be negative"))
	}

	switch c.Transcriber.Provider {
	case "", transcriber.ProviderGroq, transcriber.ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("transcriber.provider %q is invalid; valid values: groq, openai", c.Transcriber.Provider))
	}
	if c.Transcriber.Timeout < 0 {
		errs = append(errs, fmt.Errorf("transcriber.timeout must not be negative"))
	}

	for i, t := range c.Dictionary {
		if t.Term == "" {
			errs = append(errs, fmt.Errorf("dictionary[%d].term is required", i))
		}
	}

	if !c.Paste.Mode.Valid() {
		errs = append(errs, fmt.Errorf("paste.mode %q is invalid; valid values: paste, type, copy", c.Paste.Mode))
	}
	if c.Paste.RestoreDelay < 0 {
		errs = append(errs, fmt.Errorf("paste.restore_delay must not be negative"))
	}

	if !slices.Contains(OverlayModes, c.Overlay.Mode) {
		errs = append(errs, fmt.Errorf("overlay.mode %q is invalid; valid values: auto, gui, tui, none", c.Overlay.Mode))
	}
	if c.History.Keep < 0 {
		errs = append(errs, fmt.Errorf("history.keep must not be negative"))
	}

	return errors.Join(errs...)
}
