package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/emacshere/internal/logger"
	"github.com/bryanchriswhite/emacshere/internal/pathmap"
)

// EnvPrefix prefixes environment overrides, e.g. EMACSHERE_TARGET_CLASS
const EnvPrefix = "EMACSHERE"

// RemoteConfig controls the path rewrite for remote sessions
type RemoteConfig struct {
	Env      []string `json:"env" yaml:"env" mapstructure:"env"`
	Template string   `json:"template" yaml:"template" mapstructure:"template"`
}

// Config represents the application configuration
type Config struct {
	// TargetClass is the WM_CLASS instance name of the target application
	TargetClass string `json:"target_class" yaml:"target_class" mapstructure:"target_class"`
	// MaxVersion caps the negotiated XDND version
	MaxVersion uint32 `json:"max_version" yaml:"max_version" mapstructure:"max_version"`
	// Display overrides $DISPLAY
	Display    string       `json:"display" yaml:"display" mapstructure:"display"`
	LogLevel   string       `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool         `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
	ServerPort int          `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	Remote     RemoteConfig `json:"remote" yaml:"remote" mapstructure:"remote"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		TargetClass: "emacs",
		MaxVersion:  5,
		LogLevel:    "warn",
		LogPretty:   true,
		ServerPort:  7077,
		Remote: RemoteConfig{
			Env:      []string{"SSH_CONNECTION"},
			Template: pathmap.DefaultTemplate,
		},
	}
}

// Validate checks values a typo in the config file could break
func (c *Config) Validate() error {
	if c.TargetClass == "" {
		return errors.New("target_class must not be empty")
	}
	if c.MaxVersion < 1 || c.MaxVersion > 5 {
		return fmt.Errorf("max_version must be between 1 and 5, got %d", c.MaxVersion)
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port: %d", c.ServerPort)
	}
	return nil
}

// Mapping returns the remote path rewrite described by the config
func (c *Config) Mapping() pathmap.Mapping {
	return pathmap.Mapping{
		Env:      c.Remote.Env,
		Template: c.Remote.Template,
	}
}

// Manager layers defaults, the optional config file, EMACSHERE_* variables
// and command line flags bound to its viper instance
type Manager struct {
	configPath string
	v          *viper.Viper
}

// DefaultPath returns $HOME/.config/emacshere/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "emacshere", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty, into v. A
// missing file is not an error; the defaults apply.
func NewManager(configFile string, v *viper.Viper) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = path
	}

	m := &Manager{
		configPath: actualConfigPath,
		v:          v,
	}
	m.setDefaults()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	log := logger.WithComponent("config")
	if _, err := os.Stat(m.configPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug().Str("path", m.configPath).Msg("No config file, using defaults")
		return m, nil
	}

	v.SetConfigFile(m.configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Debug().Str("path", m.configPath).Msg("Config loaded")
	return m, nil
}

func (m *Manager) setDefaults() {
	d := Defaults()
	m.v.SetDefault("target_class", d.TargetClass)
	m.v.SetDefault("max_version", d.MaxVersion)
	m.v.SetDefault("display", d.Display)
	m.v.SetDefault("log_level", d.LogLevel)
	m.v.SetDefault("log_pretty", d.LogPretty)
	m.v.SetDefault("server_port", d.ServerPort)
	m.v.SetDefault("remote.env", d.Remote.Env)
	m.v.SetDefault("remote.template", d.Remote.Template)
}

// Get returns the effective, validated configuration
func (m *Manager) Get() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to the config file as YAML
func (m *Manager) Save(cfg *Config) error {
	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
