package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/reachy-remix/internal/config"
)

// newRunFlags returns a command with the run flags bound, so tests do not
// share Changed state through runCmd.
func newRunFlags() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&runHost, "host", "", "")
	cmd.Flags().IntVarP(&runPort, "port", "p", -1, "")
	cmd.Flags().StringVar(&runWaitMode, "wait-mode", "", "")
	cmd.Flags().BoolVar(&runMonitor, "monitor", false, "")
	cmd.Flags().BoolVar(&runMDNS, "mdns", false, "")
	cmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "")
	return cmd
}

func TestApplyRunFlags_Unset(t *testing.T) {
	cfg := config.DefaultConfig()
	applyRunFlags(newRunFlags(), &cfg)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestApplyRunFlags_Overrides(t *testing.T) {
	cmd := newRunFlags()
	require.NoError(t, cmd.ParseFlags([]string{
		"--host", "127.0.0.1",
		"-p", "9000",
		"--wait-mode", "poll",
		"--monitor",
		"--mdns",
		"-q",
	}))

	cfg := config.DefaultConfig()
	applyRunFlags(cmd, &cfg)

	assert.Equal(t, "127.0.0.1", cfg.Server.ServerName)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, config.WaitModePoll, cfg.Server.WaitMode)
	assert.True(t, cfg.Server.Monitor)
	assert.True(t, cfg.Discovery.MDNS)
	assert.True(t, cfg.Server.Quiet)
}

func TestRunCommandRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "demo", "moves"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}
