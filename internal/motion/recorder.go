package motion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/thruflo/reachy-remix/internal/robot"
)

// DefaultSampleInterval is the recorder's default sampling period.
const DefaultSampleInterval = 100 * time.Millisecond

// ErrRecording is returned by Start while a recording is in progress.
var ErrRecording = errors.New("recording already in progress")

// ErrNotRecording is returned by Stop when nothing is being recorded.
var ErrNotRecording = errors.New("not recording")

// Recorder samples robot positions into keyframes. Torque is released
// while recording so the robot can be posed by hand.
type Recorder struct {
	robot    robot.Robot
	clock    clockwork.Clock
	interval time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	keyframes []Keyframe
	err       error
}

// NewRecorder returns a Recorder for r. A nil clock uses the real clock.
func NewRecorder(r robot.Robot, clock clockwork.Clock, interval time.Duration) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Recorder{robot: r, clock: clock, interval: interval}
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Start begins sampling. The first keyframe is taken immediately.
func (r *Recorder) Start(ctx context.Context) error {
	if r.robot == nil {
		return ErrNoRobot
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.done != nil {
		return ErrRecording
	}

	if err := r.robot.Disable(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	r.keyframes = nil
	r.err = nil

	go r.run(ctx, r.done)
	return nil
}

func (r *Recorder) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	start := r.clock.Now()
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.sample(ctx, 0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.sample(ctx, r.clock.Since(start))
		}
	}
}

func (r *Recorder) sample(ctx context.Context, at time.Duration) {
	positions, err := r.robot.ReadPositions(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if r.err == nil && ctx.Err() == nil {
			r.err = err
		}
		return
	}
	r.keyframes = append(r.keyframes, Keyframe{At: at, Positions: positions})
}

// Stop ends the recording and returns a move named name. Torque is
// restored before returning.
func (r *Recorder) Stop(ctx context.Context, name string) (Move, error) {
	done, ok := r.finish()
	if !ok {
		return Move{}, ErrNotRecording
	}
	<-done

	r.mu.Lock()
	keyframes, sampleErr := r.keyframes, r.err
	r.done, r.keyframes, r.err = nil, nil, nil
	r.mu.Unlock()

	enableErr := r.robot.Enable(ctx)
	if sampleErr != nil {
		return Move{}, sampleErr
	}
	if enableErr != nil {
		return Move{}, enableErr
	}

	m := NewMove(name, keyframes, r.clock.Now())
	if err := m.Validate(); err != nil {
		return Move{}, err
	}
	return m, nil
}

// Abort ends any recording in progress without producing a move and
// restores torque.
func (r *Recorder) Abort(ctx context.Context) error {
	done, ok := r.finish()
	if !ok {
		return nil
	}
	<-done

	r.mu.Lock()
	r.done, r.keyframes, r.err = nil, nil, nil
	r.mu.Unlock()

	return r.robot.Enable(ctx)
}

// finish claims the running recording and cancels its sampler. Only one
// caller wins; Start stays refused until the winner clears done.
func (r *Recorder) finish() (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return nil, false
	}
	r.cancel()
	r.cancel = nil
	return r.done, true
}
