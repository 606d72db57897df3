// Package geom provides the planar geometry primitives shared by the
// localizer: points, poses, and angle arithmetic.
//
// Headings are radians normalized to [-pi, pi). All frames are
// right-handed with heading measured counter-clockwise from +X.
package geom

import "math"

// Point is a position in world coordinates (meters).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q component-wise.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p - q component-wise.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Norm returns the distance of p from the origin.
func (p Point) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Pose is a position plus heading.
type Pose struct {
	Point
	Heading float64 `json:"heading"`
}

// NewPose returns a pose with the heading normalized.
func NewPose(x, y, heading float64) Pose {
	return Pose{Point: Point{X: x, Y: y}, Heading: NormalizeAngle(heading)}
}

// TransformBy applies a body-frame delta to the pose: the delta's
// translation is rotated into the pose's heading frame before being
// added, and the headings compose.
func (p Pose) TransformBy(delta Pose) Pose {
	sin, cos := math.Sincos(p.Heading)
	return Pose{
		Point: Point{
			X: p.X + delta.X*cos - delta.Y*sin,
			Y: p.Y + delta.X*sin + delta.Y*cos,
		},
		Heading: NormalizeAngle(p.Heading + delta.Heading),
	}
}

// Offset translates the pose in world coordinates and rotates the
// heading, without any frame rotation. Used for additive noise.
func (p Pose) Offset(dx, dy, dtheta float64) Pose {
	return Pose{
		Point:   Point{X: p.X + dx, Y: p.Y + dy},
		Heading: NormalizeAngle(p.Heading + dtheta),
	}
}

// HeadingTo returns the bearing from the pose's position to q.
func (p Pose) HeadingTo(q Point) float64 {
	return math.Atan2(q.Y-p.Y, q.X-p.X)
}

// NormalizeAngle wraps an angle into [-pi, pi).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// AngleDiff returns the smallest signed difference a-b in [-pi, pi).
func AngleDiff(a, b float64) float64 {
	return NormalizeAngle(a - b)
}
