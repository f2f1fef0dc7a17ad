// Package stopsignal provides the cooperative stop flag a launcher uses to
// ask a running app to shut down.
//
// A Signal can be observed two ways: Wait blocks on a channel and wakes
// immediately, Poll checks the flag on a fixed interval driven by a
// clockwork.Clock so tests can advance time without sleeping.
package stopsignal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultPollInterval bounds shutdown latency for Poll.
const DefaultPollInterval = 100 * time.Millisecond

// Signal is a one-shot stop flag. The zero value is not usable; call New.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// New returns an unset Signal.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set raises the flag. Calling Set more than once is a no-op.
func (s *Signal) Set() {
	s.once.Do(func() {
		close(s.done)
	})
}

// IsSet reports whether Set has been called.
func (s *Signal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the flag is raised.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the flag is raised or ctx ends. It returns ctx.Err()
// if the context ended first.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll checks the flag every interval until it is raised or ctx ends.
// Staleness is bounded by interval. A nil clock uses the real clock and a
// non-positive interval uses DefaultPollInterval.
func (s *Signal) Poll(ctx context.Context, clock clockwork.Clock, interval time.Duration) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if s.IsSet() {
		return nil
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if s.IsSet() {
				return nil
			}
		}
	}
}

// FromContext returns a Signal that is raised when ctx ends.
func FromContext(ctx context.Context) *Signal {
	s := New()
	go func() {
		select {
		case <-ctx.Done():
			s.Set()
		case <-s.done:
		}
	}()
	return s
}

// NotifyOS raises s when any of the given OS signals arrives. The returned
// function stops the relay; it is safe to call more than once.
func NotifyOS(s *Signal, sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	quit := make(chan struct{})
	var once sync.Once

	go func() {
		select {
		case <-ch:
			s.Set()
		case <-quit:
		}
	}()

	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}
