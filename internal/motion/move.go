// Package motion holds recorded robot moves: their model, the library
// that persists them, and the recorder and player that move them between
// the robot and the library.
package motion

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thruflo/reachy-remix/internal/robot"
)

var (
	// ErrMoveNotFound is returned when a move ID is not in the library.
	ErrMoveNotFound = errors.New("move not found")
	// ErrNoRobot is returned when an operation needs hardware in demo mode.
	ErrNoRobot = errors.New("no robot connected")
	// ErrInvalidMove is wrapped by Validate failures.
	ErrInvalidMove = errors.New("invalid move")
)

// Keyframe is the pose of the robot at an offset from the start of a move.
type Keyframe struct {
	At        time.Duration
	Positions robot.Positions
}

type keyframeJSON struct {
	AtMS      int64           `json:"at_ms"`
	Positions robot.Positions `json:"positions"`
}

// MarshalJSON encodes At as whole milliseconds.
func (k Keyframe) MarshalJSON() ([]byte, error) {
	return json.Marshal(keyframeJSON{AtMS: k.At.Milliseconds(), Positions: k.Positions})
}

// UnmarshalJSON decodes At from milliseconds.
func (k *Keyframe) UnmarshalJSON(data []byte) error {
	var raw keyframeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	k.At = time.Duration(raw.AtMS) * time.Millisecond
	k.Positions = raw.Positions
	return nil
}

// Move is a named sequence of keyframes.
type Move struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Keyframes []Keyframe `json:"keyframes"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewMove returns a move with a fresh ID.
func NewMove(name string, keyframes []Keyframe, now time.Time) Move {
	return Move{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Keyframes: keyframes,
		CreatedAt: now.UTC(),
	}
}

// Validate checks the name, that there is at least one keyframe, and that
// keyframe times never go backwards.
func (m Move) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMove)
	}
	if len(m.Keyframes) == 0 {
		return fmt.Errorf("%w: at least one keyframe is required", ErrInvalidMove)
	}
	for i, kf := range m.Keyframes {
		if kf.At < 0 {
			return fmt.Errorf("%w: keyframe %d has negative time", ErrInvalidMove, i)
		}
		if i > 0 && kf.At < m.Keyframes[i-1].At {
			return fmt.Errorf("%w: keyframe %d is earlier than keyframe %d", ErrInvalidMove, i, i-1)
		}
		for name, v := range kf.Positions {
			if v < -100 || v > 100 {
				return fmt.Errorf("%w: keyframe %d motor %s out of range", ErrInvalidMove, i, name)
			}
		}
	}
	return nil
}

// Duration is the time of the last keyframe.
func (m Move) Duration() time.Duration {
	if len(m.Keyframes) == 0 {
		return 0
	}
	return m.Keyframes[len(m.Keyframes)-1].At
}

// Interpolate returns the pose at t, linearly blending the surrounding
// keyframes. Times outside the move hold the first or last pose. A motor
// missing from the next keyframe holds its previous value. A motor that
// first appears in the next keyframe blends from its last earlier value,
// or holds the new value when it has none.
func (m Move) Interpolate(t time.Duration) robot.Positions {
	n := len(m.Keyframes)
	if n == 0 {
		return robot.Positions{}
	}
	if t <= m.Keyframes[0].At {
		return m.Keyframes[0].Positions.Clone()
	}
	if t >= m.Keyframes[n-1].At {
		return m.Keyframes[n-1].Positions.Clone()
	}

	// First keyframe strictly after t.
	i := sort.Search(n, func(i int) bool { return m.Keyframes[i].At > t })
	a, b := m.Keyframes[i-1], m.Keyframes[i]

	span := b.At - a.At
	frac := 0.0
	if span > 0 {
		frac = float64(t-a.At) / float64(span)
	}

	out := make(robot.Positions, len(a.Positions))
	for name, from := range a.Positions {
		to, ok := b.Positions[name]
		if !ok {
			out[name] = from
			continue
		}
		out[name] = from + (to-from)*frac
	}
	for name, to := range b.Positions {
		if _, ok := a.Positions[name]; ok {
			continue
		}
		if from, ok := m.lastKnown(name, i-1); ok {
			out[name] = from + (to-from)*frac
		} else {
			out[name] = to
		}
	}
	return out
}

// lastKnown returns the value of motor in the latest keyframe before
// index that sets it.
func (m Move) lastKnown(motor robot.MotorName, before int) (float64, bool) {
	for j := before - 1; j >= 0; j-- {
		if v, ok := m.Keyframes[j].Positions[motor]; ok {
			return v, true
		}
	}
	return 0, false
}

// Summary is the list view of a move.
type Summary struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	Keyframes  int           `json:"keyframes"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Summarize returns the list view of m.
func (m Move) Summarize() Summary {
	return Summary{
		ID:         m.ID,
		Name:       m.Name,
		Keyframes:  len(m.Keyframes),
		Duration:   m.Duration(),
		DurationMS: m.Duration().Milliseconds(),
		CreatedAt:  m.CreatedAt,
	}
}
