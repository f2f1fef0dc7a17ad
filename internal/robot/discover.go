package robot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.bug.st/serial"

	"github.com/thruflo/reachy-remix/internal/logging"
)

// ConnectConfig describes how to find and open the robot.
type ConnectConfig struct {
	// Port is the serial port to open. Empty means scan all ports.
	Port     string
	BaudRate int
	Timeout  time.Duration
	// Attempts is the total number of connection attempts.
	Attempts    int
	Calibration Calibration
}

// Discoverer finds a robot on the serial ports, retrying with exponential
// backoff.
type Discoverer struct {
	Config ConnectConfig
	Logger *logging.Logger

	// ListPorts enumerates candidate serial ports.
	ListPorts func() ([]string, error)
	// Open opens a robot on a single port.
	Open func(ctx context.Context, port string) (Robot, error)
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// ProbeTimeout bounds a single port scan.
	ProbeTimeout time.Duration
}

// NewDiscoverer returns a Discoverer using the real serial ports.
func NewDiscoverer(cfg ConnectConfig, logger *logging.Logger) *Discoverer {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Discoverer{
		Config:          cfg,
		Logger:          logger,
		ListPorts:       serial.GetPortsList,
		InitialInterval: 500 * time.Millisecond,
		ProbeTimeout:    2 * time.Second,
	}
	d.Open = func(ctx context.Context, port string) (Robot, error) {
		return OpenMini(ctx, port, BusSettings{BaudRate: cfg.BaudRate, Timeout: cfg.Timeout}, cfg.Calibration)
	}
	return d
}

// Connect opens the configured robot, or the first port with one.
func Connect(ctx context.Context, cfg ConnectConfig, logger *logging.Logger) (Robot, error) {
	return NewDiscoverer(cfg, logger).Connect(ctx)
}

// Connect tries up to Config.Attempts times. It returns ErrNotFound when
// no port answered.
func (d *Discoverer) Connect(ctx context.Context) (Robot, error) {
	attempts := d.Config.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.InitialInterval
	b.MaxElapsedTime = 0

	var found Robot
	op := func() error {
		r, err := d.connectOnce(ctx)
		if err != nil {
			return err
		}
		found = r
		return nil
	}
	notify := func(err error, next time.Duration) {
		d.Logger.Debug("Robot not found, retrying", "error", err, "backoff", next)
	}

	// WithMaxRetries treats zero as unlimited, so a single attempt must
	// stop explicitly.
	var retries backoff.BackOff = &backoff.StopBackOff{}
	if attempts > 1 {
		retries = backoff.WithMaxRetries(b, uint64(attempts-1))
	}
	policy := backoff.WithContext(retries, ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return found, nil
}

func (d *Discoverer) connectOnce(ctx context.Context) (Robot, error) {
	if d.Config.Port != "" {
		r, err := d.probe(ctx, d.Config.Port)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return r, nil
	}

	ports, err := d.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	var errs []error
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		r, err := d.probe(ctx, port)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		d.Logger.Info("Found robot", "port", port)
		return r, nil
	}

	if len(errs) == 0 {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: %v", ErrNotFound, errors.Join(errs...))
}

func (d *Discoverer) probe(ctx context.Context, port string) (Robot, error) {
	if d.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.ProbeTimeout)
		defer cancel()
	}
	return d.Open(ctx, port)
}
