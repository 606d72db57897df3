package sim

import (
	"math"

	"github.com/banshee-data/pose.report/internal/geom"
)

// Trajectory yields the ground-truth pose at each simulation step.
type Trajectory interface {
	At(step int) geom.Pose
}

// StraightLine moves StepLen per step along the start heading.
type StraightLine struct {
	Start   geom.Pose
	StepLen float64
}

// At returns the pose after step straight moves.
func (t StraightLine) At(step int) geom.Pose {
	sin, cos := math.Sincos(t.Start.Heading)
	d := float64(step) * t.StepLen
	return geom.NewPose(t.Start.X+d*cos, t.Start.Y+d*sin, t.Start.Heading)
}

// Circle orbits a center at fixed radius, heading tangent to the
// path. One full loop takes StepsPerLoop steps.
type Circle struct {
	Center       geom.Point
	Radius       float64
	StepsPerLoop int
}

// At returns the pose after step arc moves.
func (t Circle) At(step int) geom.Pose {
	phi := 2 * math.Pi * float64(step) / float64(t.StepsPerLoop)
	return geom.NewPose(
		t.Center.X+t.Radius*math.Cos(phi),
		t.Center.Y+t.Radius*math.Sin(phi),
		phi+math.Pi/2,
	)
}
