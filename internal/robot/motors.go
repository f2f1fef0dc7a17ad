// Package robot provides the handle to a Reachy Mini connected over a
// Feetech serial bus.
package robot

import (
	"context"
	"errors"
)

// MotorName identifies a motor on the robot.
type MotorName string

// Motor names for the Reachy Mini, in servo ID order.
const (
	BodyRotation MotorName = "body_rotation"
	Stewart1     MotorName = "stewart_1"
	Stewart2     MotorName = "stewart_2"
	Stewart3     MotorName = "stewart_3"
	Stewart4     MotorName = "stewart_4"
	Stewart5     MotorName = "stewart_5"
	Stewart6     MotorName = "stewart_6"
	RightAntenna MotorName = "right_antenna"
	LeftAntenna  MotorName = "left_antenna"
)

// AllMotors returns all motor names in order (matching servo IDs 1-9).
func AllMotors() []MotorName {
	return []MotorName{
		BodyRotation,
		Stewart1,
		Stewart2,
		Stewart3,
		Stewart4,
		Stewart5,
		Stewart6,
		RightAntenna,
		LeftAntenna,
	}
}

// Positions maps motor names to normalized positions in [-100, 100].
type Positions map[MotorName]float64

// Clone returns a copy of p.
func (p Positions) Clone() Positions {
	out := make(Positions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ErrNotFound is returned when no robot answers on any serial port.
var ErrNotFound = errors.New("robot not found")

// Robot is an open handle to a physical robot. The UI app never closes
// it; the caller that opened it owns it.
type Robot interface {
	Name() string
	Motors() []MotorName
	ReadPositions(ctx context.Context) (Positions, error)
	WritePositions(ctx context.Context, positions Positions) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Close() error
}
