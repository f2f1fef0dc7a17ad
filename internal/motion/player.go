package motion

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/thruflo/reachy-remix/internal/robot"
)

// DefaultFrameInterval is the player's default output period (50 Hz).
const DefaultFrameInterval = 20 * time.Millisecond

// Frame is one interpolated pose sent during playback.
type Frame struct {
	At        time.Duration
	Positions robot.Positions
}

// Player plays moves on a robot. With a nil robot frames are only
// reported to the callback.
type Player struct {
	robot    robot.Robot
	clock    clockwork.Clock
	interval time.Duration
}

// NewPlayer returns a Player. A nil clock uses the real clock.
func NewPlayer(r robot.Robot, clock clockwork.Clock, interval time.Duration) *Player {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Player{robot: r, clock: clock, interval: interval}
}

// Simulated reports whether frames are not sent to hardware.
func (p *Player) Simulated() bool {
	return p.robot == nil
}

// Play interpolates m on a fixed frame interval until its last keyframe.
// The final pose is always sent exactly. onFrame may be nil.
func (p *Player) Play(ctx context.Context, m Move, onFrame func(Frame)) error {
	if err := m.Validate(); err != nil {
		return err
	}

	emit := func(at time.Duration) error {
		f := Frame{At: at, Positions: m.Interpolate(at)}
		if p.robot != nil {
			if err := p.robot.WritePositions(ctx, f.Positions); err != nil {
				return fmt.Errorf("play %s at %s: %w", m.Name, at, err)
			}
		}
		if onFrame != nil {
			onFrame(f)
		}
		return nil
	}

	total := m.Duration()
	if err := emit(0); err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	start := p.clock.Now()
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			at := p.clock.Since(start)
			if at >= total {
				return emit(total)
			}
			if err := emit(at); err != nil {
				return err
			}
		}
	}
}
