package testutil

import (
	"context"
	"sync"

	"github.com/thruflo/reachy-remix/internal/robot"
)

// FakeRobot is an in-memory robot.Robot. Written positions become the
// positions read back.
type FakeRobot struct {
	mu        sync.Mutex
	name      string
	positions robot.Positions
	writes    []robot.Positions
	enabled   bool
	closed    int

	// ReadErr and WriteErr, when set, are returned by the matching calls.
	ReadErr  error
	WriteErr error
}

var _ robot.Robot = (*FakeRobot)(nil)

// NewFakeRobot returns a FakeRobot with every motor centered.
func NewFakeRobot() *FakeRobot {
	return &FakeRobot{name: "fake-mini", positions: SamplePose(0), enabled: true}
}

func (f *FakeRobot) Name() string { return f.name }

func (f *FakeRobot) Motors() []robot.MotorName { return robot.AllMotors() }

func (f *FakeRobot) ReadPositions(context.Context) (robot.Positions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	return f.positions.Clone(), nil
}

func (f *FakeRobot) WritePositions(_ context.Context, p robot.Positions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.writes = append(f.writes, p.Clone())
	for k, v := range p {
		f.positions[k] = v
	}
	return nil
}

func (f *FakeRobot) Enable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
	return nil
}

func (f *FakeRobot) Disable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
	return nil
}

func (f *FakeRobot) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// SetPositions replaces the pose read back by ReadPositions.
func (f *FakeRobot) SetPositions(p robot.Positions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = p.Clone()
}

// Writes returns a copy of every pose written so far.
func (f *FakeRobot) Writes() []robot.Positions {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]robot.Positions, len(f.writes))
	copy(out, f.writes)
	return out
}

// Enabled reports whether torque is on.
func (f *FakeRobot) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// CloseCount returns how many times Close was called.
func (f *FakeRobot) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
