package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thruflo/reachy-remix/internal/config"
	"github.com/thruflo/reachy-remix/internal/logging"
	"github.com/thruflo/reachy-remix/internal/metrics"
	"github.com/thruflo/reachy-remix/internal/motion"
	"github.com/thruflo/reachy-remix/internal/robot"
	"github.com/thruflo/reachy-remix/internal/server"
	"github.com/thruflo/reachy-remix/web"
)

// connectRobot opens the robot described by cfg. Tests replace it.
var connectRobot = func(ctx context.Context, cfg config.RobotConfig, logger *logging.Logger) (robot.Robot, error) {
	cal := robot.DefaultCalibration()
	if cfg.Calibration != "" {
		loaded, err := robot.LoadCalibration(cfg.Calibration)
		if err != nil {
			return nil, err
		}
		cal = loaded
	}
	return robot.Connect(ctx, robot.ConnectConfig{
		Port:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		Timeout:     cfg.Timeout,
		Attempts:    cfg.ConnectAttempts,
		Calibration: cal,
	}, logger)
}

// resolveBase returns the --dir flag or the working directory.
func resolveBase() (string, error) {
	if baseDir != "" {
		return baseDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// loadSettings reads the config file and builds the logger it asks for.
func loadSettings() (*config.Config, string, *logging.Logger, error) {
	base, err := resolveBase()
	if err != nil {
		return nil, "", nil, err
	}

	cfg, err := config.LoadConfig(base)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}

	levelName := cfg.Log.Level
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, "", nil, err
	}

	logger := logging.New()
	logger.SetLevel(level)
	return cfg, base, logger, nil
}

// connectOrDemo connects the robot, returning nil for demo mode when no
// robot can be reached. Cancellation is still reported as an error.
func connectOrDemo(ctx context.Context, cfg config.RobotConfig, logger *logging.Logger) (robot.Robot, error) {
	rb, err := connectRobot(ctx, cfg, logger)
	if err == nil {
		return rb, nil
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}

	logger.Warn("Robot unavailable, continuing in demo mode", "error", err)
	fmt.Fprintf(os.Stderr, "Warning: no robot connected (%v); running in demo mode\n", err)
	return nil, nil
}

// openLibrary opens the move library at the configured path.
func openLibrary(ctx context.Context, cfg *config.Config, base string) (*motion.Store, error) {
	store, err := motion.OpenStore(ctx, cfg.ResolveLibraryPath(base))
	if err != nil {
		return nil, fmt.Errorf("failed to open move library: %w", err)
	}
	return store, nil
}

// appOptions are the server options shared by run and demo. A web/dist
// directory under base replaces the embedded page.
func appOptions(cfg *config.Config, base string, logger *logging.Logger, lib motion.Library, m *metrics.Metrics, reg *prometheus.Registry) []server.Option {
	return []server.Option{
		server.WithAssets(web.GetAssetsWithBase(base)),
		server.WithLogger(logger),
		server.WithLibrary(lib),
		server.WithMetrics(m, reg),
		server.WithCloseTimeout(cfg.Server.CloseTimeout),
	}
}
