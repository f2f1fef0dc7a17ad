package testutil

import "github.com/thruflo/reachy-remix/internal/robot"

// SamplePose returns a pose with every motor at v.
func SamplePose(v float64) robot.Positions {
	p := make(robot.Positions, len(robot.AllMotors()))
	for _, name := range robot.AllMotors() {
		p[name] = v
	}
	return p
}

// SampleNod returns the head pose for a nod at the given depth.
func SampleNod(depth float64) robot.Positions {
	p := SamplePose(0)
	p[robot.Stewart1] = depth
	p[robot.Stewart4] = -depth
	return p
}
