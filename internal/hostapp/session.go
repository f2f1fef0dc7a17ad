package hostapp

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/thruflo/reachy-remix/internal/server"
)

// Session is one run of the UI server. It is created when Run starts and
// never reused. All getters are safe to call from any goroutine while Run
// is blocked.
type Session struct {
	mu       sync.RWMutex
	state    State
	url      string
	bindAddr string
	port     int
	app      server.App
	onState  func(State)

	closeOnce sync.Once
	closeErr  error
}

func newSession(onState func(State)) *Session {
	s := &Session{state: StateCreated, onState: onState}
	if onState != nil {
		onState(StateCreated)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// URL returns the browser-facing URL, or "" until the server is bound.
func (s *Session) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// BindAddr returns the host:port the server listens on.
func (s *Session) BindAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bindAddr
}

// Port returns the bound port, or 0 until the server is bound.
func (s *Session) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	from := s.state
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	s.state = to
	onState := s.onState
	s.mu.Unlock()

	if onState != nil {
		onState(to)
	}
	return nil
}

func (s *Session) setApp(app server.App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app = app
}

// publish records where the app is serving. The URL shown to browsers has
// any wildcard host replaced by localhost.
func (s *Session) publish(res server.LaunchResult) error {
	public, err := server.PublicURL(res.LocalURL)
	if err != nil {
		return err
	}
	u, err := url.Parse(res.LocalURL)
	if err != nil {
		return err
	}

	port := 0
	if tcp, ok := res.Addr.(*net.TCPAddr); ok {
		port = tcp.Port
	} else if p, err := strconv.Atoi(u.Port()); err == nil {
		port = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = public
	s.bindAddr = u.Host
	s.port = port
	return nil
}

// close closes the app once. Later calls return the first result.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.mu.RLock()
		app := s.app
		s.mu.RUnlock()
		if app != nil {
			s.closeErr = app.Close()
		}
	})
	return s.closeErr
}
