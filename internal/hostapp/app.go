// Package hostapp runs the motion-builder UI on behalf of a launcher.
//
// A launcher calls App.Run with an optional robot handle and a stop
// signal. Run builds the UI app, launches it without blocking, publishes
// the browser URL on a Session, waits for the signal and closes the app.
// Run returns only once the server has fully stopped.
package hostapp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/thruflo/reachy-remix/internal/config"
	"github.com/thruflo/reachy-remix/internal/logging"
	"github.com/thruflo/reachy-remix/internal/metrics"
	"github.com/thruflo/reachy-remix/internal/robot"
	"github.com/thruflo/reachy-remix/internal/server"
	"github.com/thruflo/reachy-remix/internal/stopsignal"
)

// ErrAlreadyRunning is returned by Run while another Run is in progress.
var ErrAlreadyRunning = errors.New("app is already running")

// Announcer advertises a published URL. The returned stop withdraws it.
type Announcer interface {
	Announce(port int, path string) (stop func(), err error)
}

// Options configure an App.
type Options struct {
	Logger *logging.Logger
	// Clock drives poll waits. Defaults to the real clock.
	Clock clockwork.Clock

	ServerName string
	// Port is the first port tried. Zero binds any free port.
	Port      int
	PortRange int
	ShowError bool
	Quiet     bool

	// WaitMode is config.WaitModeBlock or config.WaitModePoll.
	WaitMode     string
	PollInterval time.Duration
	// Monitor starts a goroutine that closes the app as soon as the stop
	// signal is set.
	Monitor bool

	Announcer Announcer
	Metrics   *metrics.Metrics
}

// OptionsFromConfig maps server settings onto Options.
func OptionsFromConfig(cfg config.ServerConfig) Options {
	return Options{
		ServerName:   cfg.ServerName,
		Port:         cfg.Port,
		PortRange:    cfg.PortRange,
		ShowError:    cfg.ShowError,
		Quiet:        cfg.Quiet,
		WaitMode:     cfg.WaitMode,
		PollInterval: cfg.PollInterval,
		Monitor:      cfg.Monitor,
	}
}

// App is the host adapter. It allows one Run at a time.
type App struct {
	builder server.Builder
	opts    Options
	logger  *logging.Logger
	running atomic.Bool

	mu      sync.RWMutex
	session *Session
	url     string
}

// NewApp returns an App that builds its UI with builder. A nil builder
// uses server.NewBuilder with the App's logger.
func NewApp(builder server.Builder, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.ServerName == "" {
		opts.ServerName = server.DefaultServerName
	}
	if opts.PortRange <= 0 {
		opts.PortRange = server.DefaultPortRange
	}
	if opts.WaitMode == "" {
		opts.WaitMode = config.WaitModeBlock
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = stopsignal.DefaultPollInterval
	}

	logger := opts.Logger.With("component", "hostapp")
	if builder == nil {
		builder = server.NewBuilder(server.WithLogger(opts.Logger))
	}

	return &App{builder: builder, opts: opts, logger: logger}
}

// Session returns the session of the current or most recent Run, or nil
// before the first Run.
func (a *App) Session() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// URL returns the most recently published URL. It stays readable after
// Run returns.
func (a *App) URL() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.url
}

// Run builds and serves the UI until stop is set or ctx ends, then closes
// it. rb may be nil for demo mode. A nil stop waits on ctx alone.
//
// Build, launch and serve failures are logged and returned wrapped with
// the step that failed, leaving the session FAILED. Otherwise Run returns
// the error from closing the server, which is nil on a clean shutdown.
func (a *App) Run(ctx context.Context, rb robot.Robot, stop *stopsignal.Signal) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	if stop == nil {
		stop = stopsignal.New()
	}

	s := newSession(a.recordState)
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()

	a.logger.Banner(logging.LevelInfo, "REACHY REMIX APP STARTING")
	defer a.logger.Banner(logging.LevelInfo, "REACHY REMIX APP EXITING")

	if err := s.transition(StateStarting); err != nil {
		return err
	}

	if rb != nil {
		a.logger.Info("Starting motion builder", "robot", rb.Name())
	} else {
		a.logger.Info("Starting motion builder", "robot", "none", "mode", server.ModeDemo)
	}

	app, err := a.builder(rb, nil)
	if err != nil {
		return a.fail(s, "build app", err)
	}
	if app == nil {
		return a.fail(s, "build app", errors.New("builder returned no app"))
	}
	s.setApp(app)

	app.Queue()
	res, err := app.Launch(server.LaunchOptions{
		ServerName:        a.opts.ServerName,
		Port:              a.opts.Port,
		PortRange:         a.opts.PortRange,
		PreventThreadLock: true,
		ShowError:         a.opts.ShowError,
		Quiet:             a.opts.Quiet,
		InBrowser:         false,
	})
	if err != nil {
		return a.fail(s, "launch server", err)
	}

	if err := s.publish(res); err != nil {
		return a.fail(s, "resolve url", err)
	}
	a.mu.Lock()
	a.url = s.URL()
	a.mu.Unlock()
	a.logger.Info("URL assigned", "url", s.URL(), "bind", s.BindAddr())

	if err := s.transition(StateRunning); err != nil {
		return a.fail(s, "start", err)
	}

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	monitorDone := make(chan struct{})
	if a.opts.Monitor {
		go a.monitor(monitorCtx, s, stop, monitorDone)
	} else {
		close(monitorDone)
	}

	withdraw := a.announce(s)

	if serveErr := a.waitOrFail(ctx, stop, app); serveErr != nil {
		withdraw()
		cancelMonitor()
		<-monitorDone
		return a.fail(s, "serve", serveErr)
	}

	withdraw()

	if err := s.transition(StateStopping); err != nil {
		cancelMonitor()
		<-monitorDone
		return err
	}

	closeErr := s.close()
	cancelMonitor()
	<-monitorDone

	if closeErr != nil {
		a.logger.Error("Failed to close UI server", "error", closeErr)
	}
	if err := s.transition(StateStopped); err != nil {
		return err
	}
	a.logger.Info("UI server stopped")

	if closeErr != nil {
		return fmt.Errorf("close app: %w", closeErr)
	}
	return nil
}

// fail logs err with the step that produced it, marks the session failed
// and releases anything already started.
func (a *App) fail(s *Session, step string, err error) error {
	a.logger.Error("Motion builder failed", "step", step, "error", err)
	if terr := s.transition(StateFailed); terr != nil {
		a.logger.Debug("Could not mark session failed", "error", terr)
	}
	if cerr := s.close(); cerr != nil {
		a.logger.Warn("Failed to close partially started app", "error", cerr)
	}
	return fmt.Errorf("%s: %w", step, err)
}

// waitOrFail blocks until stop is set, ctx ends or the app stops serving
// on its own. Only the last case returns an error.
func (a *App) waitOrFail(ctx context.Context, stop *stopsignal.Signal, app server.App) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	waited := make(chan error, 1)
	go func() {
		waited <- a.wait(waitCtx, stop)
	}()

	select {
	case err := <-waited:
		if err != nil {
			a.logger.Info("Stop requested", "reason", err)
		} else {
			a.logger.Info("Stop requested", "reason", "signal")
		}
		return nil
	case err := <-app.Err():
		cancel()
		<-waited
		return err
	}
}

func (a *App) wait(ctx context.Context, stop *stopsignal.Signal) error {
	if a.opts.WaitMode == config.WaitModePoll {
		return stop.Poll(ctx, a.opts.Clock, a.opts.PollInterval)
	}
	return stop.Wait(ctx)
}

// monitor closes the app as soon as stop is set. Run still performs its
// own close, which becomes a no-op.
func (a *App) monitor(ctx context.Context, s *Session, stop *stopsignal.Signal, done chan<- struct{}) {
	defer close(done)

	select {
	case <-ctx.Done():
		return
	case <-stop.Done():
	}

	a.logger.Debug("Monitor closing UI server")
	if err := s.close(); err != nil {
		a.logger.Warn("Monitor close failed", "error", err)
	}
}

func (a *App) announce(s *Session) (withdraw func()) {
	if a.opts.Announcer == nil {
		return func() {}
	}

	path := "/"
	if u, err := url.Parse(s.URL()); err == nil && u.Path != "" {
		path = u.Path
	}

	stop, err := a.opts.Announcer.Announce(s.Port(), path)
	if err != nil {
		a.logger.Warn("LAN advertisement unavailable", "error", err)
		return func() {}
	}
	a.logger.Info("Advertising on local network", "port", s.Port())
	return stop
}

func (a *App) recordState(st State) {
	a.opts.Metrics.SetState(st.String(), StateNames())
	a.logger.Debug("Session state changed", "state", st)
}
