package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thruflo/reachy-remix/internal/logging"
)

// Dir is the per-project directory holding config and the move library.
const Dir = ".reachy-remix"

// Default values for Config.
const (
	DefaultServerName      = "0.0.0.0"
	DefaultServerPort      = 7860
	DefaultPortRange       = 100
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultCloseTimeout    = 5 * time.Second
	DefaultBaudRate        = 1_000_000
	DefaultRobotTimeout    = 100 * time.Millisecond
	DefaultConnectAttempts = 3
	DefaultLogLevel        = "info"
)

// DefaultLibraryPath is the move library location relative to the base path.
var DefaultLibraryPath = filepath.Join(Dir, "moves.db")

// DefaultServerConfig returns a ServerConfig with sensible default values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ServerName:   DefaultServerName,
		Port:         DefaultServerPort,
		PortRange:    DefaultPortRange,
		PollInterval: DefaultPollInterval,
		CloseTimeout: DefaultCloseTimeout,
		WaitMode:     WaitModeBlock,
		ShowError:    true,
	}
}

// DefaultRobotConfig returns a RobotConfig with sensible default values.
func DefaultRobotConfig() RobotConfig {
	return RobotConfig{
		BaudRate:        DefaultBaudRate,
		Timeout:         DefaultRobotTimeout,
		ConnectAttempts: DefaultConnectAttempts,
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Server:  DefaultServerConfig(),
		Robot:   DefaultRobotConfig(),
		Library: LibraryConfig{Path: DefaultLibraryPath},
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Path returns the config file location under basePath.
func Path(basePath string) string {
	return filepath.Join(basePath, Dir, "config.yaml")
}

// LoadConfig reads and parses .reachy-remix/config.yaml from the given base
// path. If the file doesn't exist, returns default config.
// Applies defaults for any missing fields.
func LoadConfig(basePath string) (*Config, error) {
	data, err := os.ReadFile(Path(basePath))
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if err := ValidateServerConfig(&cfg.Server); err != nil {
		return err
	}
	if err := ValidateRobotConfig(&cfg.Robot); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Library.Path) == "" {
		return ValidationError{Field: "library.path", Message: "required field is empty"}
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return ValidationError{Field: "log.level", Message: "must be one of debug, info, warn, error"}
	}
	return nil
}

// ValidateServerConfig checks that server config values are valid.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ValidationError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	if cfg.PortRange < 1 {
		return ValidationError{Field: "server.port_range", Message: "must be positive"}
	}
	if cfg.PollInterval <= 0 {
		return ValidationError{Field: "server.poll_interval", Message: "must be positive"}
	}
	if cfg.CloseTimeout <= 0 {
		return ValidationError{Field: "server.close_timeout", Message: "must be positive"}
	}
	switch cfg.WaitMode {
	case WaitModeBlock, WaitModePoll:
	default:
		return ValidationError{Field: "server.wait_mode", Message: "must be block or poll"}
	}
	return nil
}

// ValidateRobotConfig checks that robot config values are valid.
func ValidateRobotConfig(cfg *RobotConfig) error {
	if cfg.BaudRate <= 0 {
		return ValidationError{Field: "robot.baud_rate", Message: "must be positive"}
	}
	if cfg.Timeout <= 0 {
		return ValidationError{Field: "robot.timeout", Message: "must be positive"}
	}
	if cfg.ConnectAttempts <= 0 {
		return ValidationError{Field: "robot.connect_attempts", Message: "must be positive"}
	}
	return nil
}

// ResolveLibraryPath returns the library path, joined to basePath when relative.
func (c *Config) ResolveLibraryPath(basePath string) string {
	if filepath.IsAbs(c.Library.Path) {
		return c.Library.Path
	}
	return filepath.Join(basePath, c.Library.Path)
}

// SaveConfig writes cfg to .reachy-remix/config.yaml under basePath.
func SaveConfig(basePath string, cfg *Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := Path(basePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
