package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/thruflo/reachy-remix/internal/logging"
	"github.com/thruflo/reachy-remix/internal/metrics"
	"github.com/thruflo/reachy-remix/internal/motion"
	"github.com/thruflo/reachy-remix/internal/robot"
	"github.com/thruflo/reachy-remix/web"
)

// Launch defaults.
const (
	DefaultServerName   = "0.0.0.0"
	DefaultPort         = 7860
	DefaultPortRange    = 100
	DefaultCloseTimeout = 5 * time.Second
)

var (
	// ErrNoFreePort is returned by Launch when every port in the range is taken.
	ErrNoFreePort = errors.New("no free port in range")
	// ErrClosed is returned by Launch after Close.
	ErrClosed = errors.New("app closed")
	// ErrAlreadyLaunched is returned by a second Launch.
	ErrAlreadyLaunched = errors.New("app already launched")
)

// Controller drives playback of a move. *motion.Player satisfies it.
type Controller interface {
	Play(ctx context.Context, m motion.Move, onFrame func(motion.Frame)) error
}

// LaunchOptions control how an App binds and serves.
type LaunchOptions struct {
	ServerName string
	// Port is the first port tried. Zero asks the OS for any free port.
	Port      int
	PortRange int
	// Share requests a public tunnel. Not supported; logged and ignored.
	Share bool
	// PreventThreadLock makes Launch return as soon as the server is
	// serving. When false Launch blocks until Close.
	PreventThreadLock bool
	// ShowError includes error details in API error responses.
	ShowError bool
	Quiet     bool
	InBrowser bool
}

// LaunchResult describes where a launched App is serving.
type LaunchResult struct {
	// LocalURL is built from the bind host, so it may be a wildcard
	// address such as http://0.0.0.0:7860/.
	LocalURL string
	ShareURL string
	Addr     net.Addr
}

// App is a UI application that can be queued, launched and closed.
type App interface {
	Queue()
	Launch(opts LaunchOptions) (LaunchResult, error)
	// Err delivers at most one error if serving stops unexpectedly after
	// a successful Launch.
	Err() <-chan error
	Close() error
}

// Builder constructs an App around an optional robot and controller.
type Builder func(r robot.Robot, ctrl Controller) (App, error)

// Option configures a UIApp.
type Option func(*UIApp)

// WithAssets overrides the web assets.
func WithAssets(assets fs.FS) Option {
	return func(a *UIApp) { a.assets = assets }
}

// WithLibrary sets the move library. The app does not close it.
func WithLibrary(lib motion.Library) Option {
	return func(a *UIApp) { a.library = lib }
}

// WithClock sets the clock used for playback, recording and streaming.
func WithClock(clock clockwork.Clock) Option {
	return func(a *UIApp) { a.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(a *UIApp) { a.logger = logger }
}

// WithMetrics shares a metrics set and the registry it is registered on.
func WithMetrics(m *metrics.Metrics, reg *prometheus.Registry) Option {
	return func(a *UIApp) {
		a.metrics = m
		a.registry = reg
	}
}

// WithCloseTimeout bounds graceful shutdown before connections are
// force closed.
func WithCloseTimeout(d time.Duration) Option {
	return func(a *UIApp) { a.closeTimeout = d }
}

// WithPlayLimit sets the per-client play request rate.
func WithPlayLimit(perSecond float64, burst int) Option {
	return func(a *UIApp) { a.limiter = newPlayLimiter(perSecond, burst) }
}

// WithBrowserOpener replaces the function used to open a browser.
func WithBrowserOpener(open func(url string) error) Option {
	return func(a *UIApp) { a.openBrowser = open }
}

// WithStreamInterval sets how often robot positions are pushed to
// websocket clients.
func WithStreamInterval(d time.Duration) Option {
	return func(a *UIApp) { a.streamInterval = d }
}

// WithOnLaunch registers fn to run once Launch is serving, before a
// blocking Launch starts waiting.
func WithOnLaunch(fn func(LaunchResult)) Option {
	return func(a *UIApp) { a.onLaunch = fn }
}

// UIApp is the motion-builder web app.
type UIApp struct {
	robot          robot.Robot
	ctrl           Controller
	assets         fs.FS
	library        motion.Library
	clock          clockwork.Clock
	logger         *logging.Logger
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	closeTimeout   time.Duration
	limiter        *playLimiter
	openBrowser    func(url string) error
	streamInterval time.Duration
	onLaunch       func(LaunchResult)
	recorder       *motion.Recorder
	hub            *hub

	mu        sync.Mutex
	queue     *jobQueue
	server    *http.Server
	listener  net.Listener
	localURL  string
	showError bool
	launched  bool
	closed    bool
	cancel    context.CancelFunc
	bg        sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	serveErr  chan error
}

var _ App = (*UIApp)(nil)

// NewApp creates the motion-builder app. r may be nil for demo mode. A nil
// ctrl plays moves with a motion.Player on r.
func NewApp(r robot.Robot, ctrl Controller, opts ...Option) (*UIApp, error) {
	a := &UIApp{
		robot:          r,
		ctrl:           ctrl,
		closeTimeout:   DefaultCloseTimeout,
		openBrowser:    openBrowser,
		streamInterval: 100 * time.Millisecond,
		showError:      true,
		done:           make(chan struct{}),
		serveErr:       make(chan error, 1),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = logging.Default()
	}
	a.logger = a.logger.With("component", "server")
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}
	if a.assets == nil {
		a.assets = web.GetAssets("")
	}
	if a.library == nil {
		a.library = motion.NewMemoryLibrary()
	}
	if a.registry == nil {
		a.registry = metrics.NewRegistry()
		a.metrics = metrics.New(a.registry)
	}
	if a.limiter == nil {
		a.limiter = newPlayLimiter(2, 5)
	}
	if a.ctrl == nil {
		a.ctrl = motion.NewPlayer(r, a.clock, 0)
	}
	if r != nil {
		a.recorder = motion.NewRecorder(r, a.clock, 0)
	}
	a.hub = newHub(a.logger, a.metrics)

	return a, nil
}

// NewBuilder returns a Builder that passes opts to NewApp.
func NewBuilder(opts ...Option) Builder {
	return func(r robot.Robot, ctrl Controller) (App, error) {
		return NewApp(r, ctrl, opts...)
	}
}

// Queue enables the job queue so play requests run one at a time in
// arrival order. Calling it more than once has no further effect.
func (a *UIApp) Queue() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queue != nil || a.closed {
		return
	}
	a.queue = newJobQueue(a.logger, defaultQueueSize)
}

func (a *UIApp) jobQueue() *jobQueue {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue
}

// Launch binds a listener and starts serving.
func (a *UIApp) Launch(opts LaunchOptions) (LaunchResult, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return LaunchResult{}, ErrClosed
	}
	if a.launched {
		a.mu.Unlock()
		return LaunchResult{}, ErrAlreadyLaunched
	}

	if opts.ServerName == "" {
		opts.ServerName = DefaultServerName
	}
	if opts.PortRange <= 0 {
		opts.PortRange = DefaultPortRange
	}

	listener, err := listen(opts.ServerName, opts.Port, opts.PortRange)
	if err != nil {
		a.mu.Unlock()
		return LaunchResult{}, err
	}

	port := listener.Addr().(*net.TCPAddr).Port
	localURL := "http://" + net.JoinHostPort(opts.ServerName, strconv.Itoa(port)) + "/"

	mux := http.NewServeMux()
	a.setupRoutes(mux)

	a.listener = listener
	a.localURL = localURL
	a.showError = opts.ShowError
	a.server = &http.Server{
		Handler:           a.metrics.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	a.launched = true

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	srv := a.server
	a.mu.Unlock()

	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		a.streamPositions(ctx)
	}()

	go a.serve(srv, listener)

	if opts.Share {
		a.logger.Warn("Share links are not supported; serving locally only")
	}
	if !opts.Quiet {
		a.logger.Info("Running on local URL", "url", localURL)
	}

	if opts.InBrowser {
		if browserURL, err := PublicURL(localURL); err == nil {
			if err := a.openBrowser(browserURL); err != nil {
				a.logger.Warn("Could not open browser", "url", browserURL, "error", err)
			}
		}
	}

	result := LaunchResult{LocalURL: localURL, Addr: listener.Addr()}
	if a.onLaunch != nil {
		a.onLaunch(result)
	}

	if !opts.PreventThreadLock {
		<-a.done
	}
	return result, nil
}

func (a *UIApp) serve(srv *http.Server, ln net.Listener) {
	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	a.logger.Error("Server stopped unexpectedly", "error", err)
	select {
	case a.serveErr <- err:
	default:
	}
}

// Err returns a channel that receives the error if the HTTP server stops
// serving before Close.
func (a *UIApp) Err() <-chan error {
	return a.serveErr
}

// LocalURL returns the URL reported by Launch, or "" before launch.
func (a *UIApp) LocalURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.localURL
}

// Done returns a channel closed once Close has finished.
func (a *UIApp) Done() <-chan struct{} {
	return a.done
}

// Close stops the HTTP server, the job queue, any recording and the
// websocket clients. Only the first call does any work; later calls
// return the same result.
func (a *UIApp) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.shutdown()
		close(a.done)
	})
	return a.closeErr
}

func (a *UIApp) shutdown() error {
	a.mu.Lock()
	a.closed = true
	srv, queue, cancel := a.server, a.queue, a.cancel
	a.mu.Unlock()

	var errs []error

	if cancel != nil {
		cancel()
	}
	a.hub.closeAll()

	if srv != nil {
		ctx, cancelShutdown := context.WithTimeout(context.Background(), a.closeTimeout)
		err := srv.Shutdown(ctx)
		cancelShutdown()
		if err != nil {
			a.logger.Warn("Graceful shutdown timed out, forcing close", "timeout", a.closeTimeout, "error", err)
			if cerr := srv.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("force close: %w", cerr))
			}
			errs = append(errs, fmt.Errorf("shutdown: %w", err))
		}
	}

	if queue != nil {
		queue.close()
	}

	if a.recorder != nil {
		if err := a.recorder.Abort(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("abort recording: %w", err))
		}
	}

	a.bg.Wait()
	return errors.Join(errs...)
}

// listen binds host on the first free port in [port, port+portRange).
// Port zero binds an ephemeral port.
func listen(host string, port, portRange int) (net.Listener, error) {
	if port == 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", host, err)
		}
		return ln, nil
	}

	var lastErr error
	for p := port; p < port+portRange && p <= 65535; p++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen on %s:%d: %w", host, p, err)
		}
	}
	return nil, fmt.Errorf("%w: %s:%d-%d: %v", ErrNoFreePort, host, port, port+portRange-1, lastErr)
}

// PublicURL rewrites a wildcard or empty host in raw to localhost,
// keeping the scheme, port and path.
func PublicURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse url %q: missing scheme or host", raw)
	}

	host := u.Hostname()
	if isWildcardHost(host) {
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort("localhost", port)
		} else {
			u.Host = "localhost"
		}
	}
	return u.String(), nil
}

func isWildcardHost(host string) bool {
	if host == "" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}
