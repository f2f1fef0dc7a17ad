package cli

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thruflo/reachy-remix/internal/config"
	"github.com/thruflo/reachy-remix/internal/server"
	"github.com/thruflo/reachy-remix/internal/testutil"
)

func TestLanURL(t *testing.T) {
	tests := []struct {
		name     string
		localURL string
		lanIP    string
		want     string
	}{
		{"wildcard", "http://0.0.0.0:7860/", "192.168.1.20", "http://192.168.1.20:7860/"},
		{"ipv6 wildcard", "http://[::]:7861/", "10.0.0.5", "http://10.0.0.5:7861/"},
		{"wildcard without lan", "http://0.0.0.0:7860/", "", ""},
		{"loopback", "http://127.0.0.1:7860/", "192.168.1.20", ""},
		{"localhost", "http://localhost:7860/", "192.168.1.20", ""},
		{"concrete", "http://192.168.1.30:7860/", "192.168.1.20", "http://192.168.1.30:7860/"},
		{"invalid", "://", "192.168.1.20", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lanURL(tt.localURL, tt.lanIP))
		})
	}
}

func TestModeBanner(t *testing.T) {
	demo := modeBanner(nil)
	assert.Contains(t, demo, server.ModeDemo)
	assert.Contains(t, demo, "simulated")

	withRobot := modeBanner(testutil.NewFakeRobot())
	assert.Contains(t, withRobot, server.ModeRobot)
	assert.Contains(t, withRobot, "fake-mini")
}

func TestPrintLaunchInfo(t *testing.T) {
	var buf bytes.Buffer
	printLaunchInfo(&buf, server.LaunchResult{
		LocalURL: "http://127.0.0.1:7860/",
		Addr:     &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7860},
	}, true)

	out := buf.String()
	assert.Contains(t, out, "http://127.0.0.1:7860/")
	assert.NotContains(t, out, "Network:", "loopback binds have no LAN URL")
}

func TestPrintLaunchInfoWildcard(t *testing.T) {
	var buf bytes.Buffer
	printLaunchInfo(&buf, server.LaunchResult{LocalURL: "http://0.0.0.0:7860/"}, false)
	assert.Contains(t, buf.String(), "http://localhost:7860/")
}

func TestDemoLaunchOptions(t *testing.T) {
	cfg := config.DefaultServerConfig()
	opts := demoLaunchOptions(cfg, true)

	assert.False(t, opts.PreventThreadLock, "demo launches blocking")
	assert.True(t, opts.InBrowser)
	assert.Equal(t, cfg.ServerName, opts.ServerName)
	assert.Equal(t, cfg.Port, opts.Port)
	assert.Equal(t, cfg.PortRange, opts.PortRange)

	assert.False(t, demoLaunchOptions(cfg, false).InBrowser)
}

func TestDemoHelpDescribesRecording(t *testing.T) {
	assert.Contains(t, demoCmd.Long, "Recording needs a connected robot")
	assert.NotContains(t, demoCmd.Long, "created")
}
