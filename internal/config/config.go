// Package config provides configuration management for the kmhook CLI.
package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"go.yaml.in/yaml/v3"

	"kmhook/internal/hotkey"
)

const maxConfigFileBytes int64 = 1 << 20

// Config represents the application configuration
type Config struct {
	// General contains engine and output settings
	General GeneralConfig `yaml:"general"`

	// Bindings maps hotkeys to actions
	Bindings []Binding `yaml:"bindings"`
}

// GeneralConfig contains general application settings. Every field can be
// overridden from the environment.
type GeneralConfig struct {
	// QueueSize is the engine handoff buffer (default: 1024)
	QueueSize int `yaml:"queue_size" env:"KMHOOK_QUEUE_SIZE"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level" env:"KMHOOK_LOG_LEVEL"`

	// Tray shows a status icon with a Quit item
	Tray bool `yaml:"tray" env:"KMHOOK_TRAY"`

	// JSON prints events as JSON lines instead of text
	JSON bool `yaml:"json" env:"KMHOOK_JSON"`

	// Print selects which events are echoed: all, keys, mouse or none
	Print string `yaml:"print" env:"KMHOOK_PRINT"`

	// DeviceDir is the evdev directory on Linux (default: /dev/input)
	DeviceDir string `yaml:"device_dir,omitempty" env:"KMHOOK_DEVICE_DIR"`
}

// Binding ties a hotkey to an action.
type Binding struct {
	// Hotkey is a chord such as "Ctrl+Shift+K"
	Hotkey string `yaml:"hotkey"`

	// Action is "log", "stop" or "send:<chord>"
	Action string `yaml:"action"`

	// Presses makes the binding fire on the n-th press (double tap is 2)
	Presses int `yaml:"presses,omitempty"`

	// Within is the longest gap between presses (default: 500ms)
	Within time.Duration `yaml:"within,omitempty"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			QueueSize: 1024,
			LogLevel:  "info",
			Print:     PrintAll,
		},
		Bindings: []Binding{
			{Hotkey: "Ctrl+Alt+Shift+Esc", Action: "stop"},
		},
	}
}

// Print modes.
const (
	PrintAll   = "all"
	PrintKeys  = "keys"
	PrintMouse = "mouse"
	PrintNone  = "none"
)

// Action kinds.
const (
	ActionLog  = "log"
	ActionStop = "stop"
	ActionSend = "send"
)

// Action is a parsed Binding.Action.
type Action struct {
	Kind string
	// Chord is set for send actions.
	Chord string
}

// ParseAction parses "log", "stop" or "send:<chord>".
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	kind, arg, _ := strings.Cut(s, ":")
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case ActionLog:
		return Action{Kind: ActionLog}, nil
	case ActionStop:
		return Action{Kind: ActionStop}, nil
	case ActionSend:
		arg = strings.TrimSpace(arg)
		if _, err := hotkey.Parse(arg); err != nil {
			return Action{}, fmt.Errorf("action %q: %w", s, err)
		}
		return Action{Kind: ActionSend, Chord: arg}, nil
	}
	return Action{}, fmt.Errorf("unknown action %q", s)
}

// Options returns the matcher options for the binding's trigger.
func (b Binding) Options() []hotkey.Option {
	if b.Presses <= 1 {
		return nil
	}
	return []hotkey.Option{hotkey.WithPresses(b.Presses, b.Within)}
}

// SlogLevel converts LogLevel to a slog level.
func (g GeneralConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(g.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// Validate checks every field and binding. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error
	if c.General.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.General.QueueSize))
	}
	if _, err := c.General.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.General.Print {
	case PrintAll, PrintKeys, PrintMouse, PrintNone:
	default:
		errs = append(errs, fmt.Errorf("print must be all, keys, mouse or none, got %q", c.General.Print))
	}
	for i, b := range c.Bindings {
		if _, err := hotkey.ParseDefinition(b.Hotkey, b.Options()...); err != nil {
			errs = append(errs, fmt.Errorf("bindings[%d]: hotkey %q: %w", i, b.Hotkey, err))
		}
		if _, err := ParseAction(b.Action); err != nil {
			errs = append(errs, fmt.Errorf("bindings[%d]: %w", i, err))
		}
		if b.Presses < 0 || b.Within < 0 {
			errs = append(errs, fmt.Errorf("bindings[%d]: presses and within must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

type locator struct {
	Path string `env:"KMHOOK_CONFIG"`
}

// NewManager creates a new configuration manager. An empty path means
// $KMHOOK_CONFIG, then the per-user config directory.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var loc locator
		if err := env.Parse(&loc); err != nil {
			return nil, fmt.Errorf("parse env: %w", err)
		}
		path = loc.Path
	}
	if path == "" {
		p, err := getConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}, nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "kmhook")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "kmhook")
	default:
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(dir, "kmhook")
	}

	return filepath.Join(configDir, "config.yaml"), nil
}

// Path returns the configuration file location.
func (m *Manager) Path() string { return m.configPath }

// Load reads the configuration from disk, applies environment overrides and
// validates the result. A missing file means defaults.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	data, err := readLimited(m.configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	case len(data) > 0:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", m.configPath, err)
		}
	}

	if err := env.Parse(&cfg.General); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.Set(cfg)
	return nil
}

func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxConfigFileBytes {
		return nil, fmt.Errorf("config %s is larger than %d bytes", path, maxConfigFileBytes)
	}
	return os.ReadFile(path)
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set replaces the configuration and runs the change callback.
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	onChanged := m.onChanged
	m.mu.Unlock()
	if onChanged != nil {
		onChanged()
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// SetBinding updates the binding for hotkey or adds a new one
func (m *Manager) SetBinding(b Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.config.Bindings {
		if m.config.Bindings[i].Hotkey == b.Hotkey {
			m.config.Bindings[i] = b
			return
		}
	}
	m.config.Bindings = append(m.config.Bindings, b)
}

// DeleteBinding removes the binding for hotkey
func (m *Manager) DeleteBinding(hotkey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.config.Bindings {
		if m.config.Bindings[i].Hotkey == hotkey {
			m.config.Bindings = append(m.config.Bindings[:i], m.config.Bindings[i+1:]...)
			return true
		}
	}
	return false
}
