package hostapp

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/thruflo/reachy-remix/internal/robot"
	"github.com/thruflo/reachy-remix/internal/server"
)

// fakeApp is a server.App that binds a real listener so tests can observe
// whether it was released.
type fakeApp struct {
	launchErr error
	closeErr  error
	// host is reported in LocalURL. Defaults to 0.0.0.0.
	host string

	mu       sync.Mutex
	queued   bool
	opts     server.LaunchOptions
	listener net.Listener
	srv      *http.Server
	closes   atomic.Int32
	closed   chan struct{}
	serveErr chan error
}

func newFakeApp() *fakeApp {
	return &fakeApp{closed: make(chan struct{}), serveErr: make(chan error, 1)}
}

func (f *fakeApp) Queue() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = true
}

func (f *fakeApp) Launch(opts server.LaunchOptions) (server.LaunchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = opts
	if f.launchErr != nil {
		return server.LaunchResult{}, f.launchErr
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return server.LaunchResult{}, err
	}
	f.listener = ln
	f.srv = &http.Server{Handler: http.NotFoundHandler()}
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.serveErr <- err
		}
	}(f.srv)

	host := f.host
	if host == "" {
		host = "0.0.0.0"
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return server.LaunchResult{
		LocalURL: "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/",
		Addr:     ln.Addr(),
	}, nil
}

func (f *fakeApp) Err() <-chan error {
	return f.serveErr
}

// breakListener closes the listener under the server so Serve fails.
func (f *fakeApp) breakListener() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener.Close()
}

func (f *fakeApp) Close() error {
	if f.closes.Add(1) == 1 {
		f.mu.Lock()
		if f.srv != nil {
			f.srv.Close()
		}
		f.mu.Unlock()
		close(f.closed)
	}
	return f.closeErr
}

func (f *fakeApp) addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

func (f *fakeApp) launchOptions() server.LaunchOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

func (f *fakeApp) isQueued() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued
}

// builderCall records the arguments a builder received.
type builderCall struct {
	robot robot.Robot
	ctrl  server.Controller
}

func recordingBuilder(app server.App, err error, calls *[]builderCall, mu *sync.Mutex) server.Builder {
	return func(r robot.Robot, ctrl server.Controller) (server.App, error) {
		mu.Lock()
		*calls = append(*calls, builderCall{robot: r, ctrl: ctrl})
		mu.Unlock()
		if err != nil {
			return nil, err
		}
		return app, nil
	}
}

type fakeAnnouncer struct {
	mu      sync.Mutex
	port    int
	path    string
	err     error
	stopped bool
}

func (f *fakeAnnouncer) Announce(port int, path string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.port, f.path = port, path
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopped = true
	}, nil
}
