package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thruflo/reachy-remix/internal/config"
)

// SetupTestDir creates a temporary directory with a .reachy-remix config
// that binds an ephemeral loopback port. The directory is cleaned up when
// the test completes.
func SetupTestDir(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Server.ServerName = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.CloseTimeout = config.DefaultCloseTimeout
	require.NoError(t, config.SaveConfig(tmpDir, &cfg))

	return tmpDir
}
