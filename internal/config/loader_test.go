package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, Dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return tmpDir
}

func TestLoadConfig_Default(t *testing.T) {
	t.Parallel()

	// Create temp directory without config file
	tmpDir := t.TempDir()

	cfg, err := LoadConfig(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, DefaultServerName, cfg.Server.ServerName)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultPollInterval, cfg.Server.PollInterval)
	assert.Equal(t, WaitModeBlock, cfg.Server.WaitMode)
	assert.True(t, cfg.Server.ShowError)
	assert.False(t, cfg.Server.Monitor)
	assert.Equal(t, DefaultBaudRate, cfg.Robot.BaudRate)
	assert.Equal(t, DefaultConnectAttempts, cfg.Robot.ConnectAttempts)
	assert.Empty(t, cfg.Robot.Port)
	assert.Equal(t, DefaultLibraryPath, cfg.Library.Path)
	assert.False(t, cfg.Discovery.MDNS)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Parallel()

	tmpDir := writeConfig(t, `server:
  server_name: 127.0.0.1
  port: 9000
  port_range: 10
  poll_interval: 250ms
  close_timeout: 2s
  wait_mode: poll
  monitor: true
  show_error: false
  quiet: true
robot:
  port: /dev/ttyACM0
  baud_rate: 115200
  timeout: 50ms
  connect_attempts: 5
library:
  path: /tmp/moves.db
discovery:
  mdns: true
log:
  level: debug
`)

	cfg, err := LoadConfig(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.ServerName)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.PortRange)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Server.CloseTimeout)
	assert.Equal(t, WaitModePoll, cfg.Server.WaitMode)
	assert.True(t, cfg.Server.Monitor)
	assert.False(t, cfg.Server.ShowError)
	assert.True(t, cfg.Server.Quiet)
	assert.Equal(t, "/dev/ttyACM0", cfg.Robot.Port)
	assert.Equal(t, 115200, cfg.Robot.BaudRate)
	assert.Equal(t, 50*time.Millisecond, cfg.Robot.Timeout)
	assert.Equal(t, 5, cfg.Robot.ConnectAttempts)
	assert.Equal(t, "/tmp/moves.db", cfg.Library.Path)
	assert.True(t, cfg.Discovery.MDNS)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_PartialFile(t *testing.T) {
	t.Parallel()

	// Only set the port, rest should keep defaults
	tmpDir := writeConfig(t, `server:
  port: 8000
`)

	cfg, err := LoadConfig(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, DefaultServerName, cfg.Server.ServerName)
	assert.Equal(t, DefaultCloseTimeout, cfg.Server.CloseTimeout)
	assert.True(t, cfg.Server.ShowError)
	assert.Equal(t, DefaultRobotTimeout, cfg.Robot.Timeout)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	tmpDir := writeConfig(t, `server: [`)

	_, err := LoadConfig(tmpDir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Parallel()

	tmpDir := writeConfig(t, `server:
  poll_interval: soon
`)

	_, err := LoadConfig(tmpDir)
	assert.Error(t, err)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"port too large", "server:\n  port: 70000\n", "server.port"},
		{"negative port", "server:\n  port: -1\n", "server.port"},
		{"zero port range", "server:\n  port_range: 0\n", "server.port_range"},
		{"zero poll interval", "server:\n  poll_interval: 0s\n", "server.poll_interval"},
		{"zero close timeout", "server:\n  close_timeout: 0s\n", "server.close_timeout"},
		{"unknown wait mode", "server:\n  wait_mode: spin\n", "server.wait_mode"},
		{"zero baud rate", "robot:\n  baud_rate: 0\n", "robot.baud_rate"},
		{"zero robot timeout", "robot:\n  timeout: 0s\n", "robot.timeout"},
		{"zero connect attempts", "robot:\n  connect_attempts: 0\n", "robot.connect_attempts"},
		{"empty library path", "library:\n  path: \"\"\n", "library.path"},
		{"unknown log level", "log:\n  level: loud\n", "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tmpDir := writeConfig(t, tt.content)

			_, err := LoadConfig(tmpDir)
			require.Error(t, err)

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestPortZeroIsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Server.Port = 0
	assert.NoError(t, ValidateConfig(&cfg))
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Server.Port = 7999
	cfg.Server.WaitMode = WaitModePoll
	cfg.Discovery.MDNS = true

	require.NoError(t, SaveConfig(tmpDir, &cfg))

	loaded, err := LoadConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestSaveConfig_RejectsInvalid(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Server.WaitMode = ""

	err := SaveConfig(tmpDir, &cfg)
	assert.True(t, IsValidationError(err))

	_, statErr := os.Stat(Path(tmpDir))
	assert.True(t, os.IsNotExist(statErr))
}

func TestResolveLibraryPath(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("/srv/app", Dir, "moves.db"), cfg.ResolveLibraryPath("/srv/app"))

	cfg.Library.Path = "/var/lib/moves.db"
	assert.Equal(t, "/var/lib/moves.db", cfg.ResolveLibraryPath("/srv/app"))
}

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	ve := ValidationError{Field: "test.field", Message: "must be valid"}
	assert.Equal(t, "validation error: test.field: must be valid", ve.Error())
}

func TestIsValidationError(t *testing.T) {
	t.Parallel()

	ve := ValidationError{Field: "test", Message: "test"}
	assert.True(t, IsValidationError(ve))
	assert.True(t, IsValidationError(fmt.Errorf("load: %w", ve)))
	assert.False(t, IsValidationError(os.ErrNotExist))
}
