package cli

import (
	"context"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thruflo/reachy-remix/internal/config"
	"github.com/thruflo/reachy-remix/internal/hostapp"
	"github.com/thruflo/reachy-remix/internal/logging"
	"github.com/thruflo/reachy-remix/internal/mdns"
	"github.com/thruflo/reachy-remix/internal/metrics"
	"github.com/thruflo/reachy-remix/internal/server"
	"github.com/thruflo/reachy-remix/internal/stopsignal"
)

var (
	runHost     string
	runPort     int
	runWaitMode string
	runMonitor  bool
	runMDNS     bool
	runQuiet    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the motion builder until stopped",
	Long: `Connects to the robot if one is configured or found, serves the motion
builder and publishes its URL. The server runs until SIGINT or SIGTERM.

Without a robot the builder runs in demo mode with simulated playback.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runHost, "host", "", "address to bind (default from config)")
	runCmd.Flags().IntVarP(&runPort, "port", "p", -1, "first port to try (default from config)")
	runCmd.Flags().StringVar(&runWaitMode, "wait-mode", "", "how to wait for the stop signal: block or poll")
	runCmd.Flags().BoolVar(&runMonitor, "monitor", false, "close the server from a monitor goroutine as soon as stop is requested")
	runCmd.Flags().BoolVar(&runMDNS, "mdns", false, "advertise the UI on the local network")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "do not log the local URL")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, base, logger, err := loadSettings()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := config.ValidateServerConfig(&cfg.Server); err != nil {
		return err
	}

	stop := stopsignal.New()
	release := stopsignal.NotifyOS(stop, os.Interrupt, syscall.SIGTERM)
	defer release()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return runHosted(ctx, cfg, base, logger, stop)
}

// applyRunFlags overrides config values with flags the user set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.ServerName = runHost
	}
	if flags.Changed("port") {
		cfg.Server.Port = runPort
	}
	if flags.Changed("wait-mode") {
		cfg.Server.WaitMode = runWaitMode
	}
	if flags.Changed("monitor") {
		cfg.Server.Monitor = runMonitor
	}
	if flags.Changed("mdns") {
		cfg.Discovery.MDNS = runMDNS
	}
	if flags.Changed("quiet") {
		cfg.Server.Quiet = runQuiet
	}
}

// runHosted connects the robot, then serves until stop is set or ctx ends.
func runHosted(ctx context.Context, cfg *config.Config, base string, logger *logging.Logger, stop *stopsignal.Signal) error {
	store, err := openLibrary(ctx, cfg, base)
	if err != nil {
		return err
	}
	defer store.Close()

	rb, err := connectOrDemo(ctx, cfg.Robot, logger)
	if err != nil {
		return err
	}
	if rb != nil {
		defer rb.Close()
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	builder := server.NewBuilder(appOptions(cfg, base, logger, store, m, reg)...)

	opts := hostapp.OptionsFromConfig(cfg.Server)
	opts.Logger = logger
	opts.Metrics = m
	if cfg.Discovery.MDNS {
		opts.Announcer = mdns.Announcer{}
	}

	return hostapp.NewApp(builder, opts).Run(ctx, rb, stop)
}
