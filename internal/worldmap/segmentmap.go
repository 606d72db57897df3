package worldmap

import (
	"fmt"
	"math"

	"github.com/banshee-data/pose.report/internal/geom"
)

// Segment is a wall between two endpoints.
type Segment struct {
	A geom.Point `json:"a"`
	B geom.Point `json:"b"`
}

// SegmentMap models the environment as a set of line-segment walls.
// Ray-casts intersect each segment analytically, so accuracy is exact
// and cost is O(walls) per beam. Suitable for floor plans with tens to
// a few hundred walls; use GridMap for dense occupancy data.
type SegmentMap struct {
	segments []Segment
	min, max geom.Point
}

// NewSegmentMap builds a map from wall segments. At least one segment
// is required so every ray has something to terminate against.
func NewSegmentMap(segments []Segment) (*SegmentMap, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("worldmap: segment map requires at least one wall")
	}
	m := &SegmentMap{
		segments: append([]Segment(nil), segments...),
		min:      geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		max:      geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, s := range m.segments {
		for _, p := range []geom.Point{s.A, s.B} {
			if math.IsNaN(p.X) || math.IsNaN(p.Y) {
				return nil, fmt.Errorf("worldmap: segment endpoint contains NaN")
			}
			m.min.X = math.Min(m.min.X, p.X)
			m.min.Y = math.Min(m.min.Y, p.Y)
			m.max.X = math.Max(m.max.X, p.X)
			m.max.Y = math.Max(m.max.Y, p.Y)
		}
	}
	return m, nil
}

// NewBox returns a rectangular room with walls on the given extent.
// Convenience for tests and simulation scenarios.
func NewBox(min, max geom.Point) (*SegmentMap, error) {
	if max.X <= min.X || max.Y <= min.Y {
		return nil, fmt.Errorf("worldmap: box extent is empty: min=%v max=%v", min, max)
	}
	a := geom.Point{X: min.X, Y: min.Y}
	b := geom.Point{X: max.X, Y: min.Y}
	c := geom.Point{X: max.X, Y: max.Y}
	d := geom.Point{X: min.X, Y: max.Y}
	return NewSegmentMap([]Segment{{a, b}, {b, c}, {c, d}, {d, a}})
}

// Segments returns a copy of the wall set, for rendering consumers.
func (m *SegmentMap) Segments() []Segment {
	return append([]Segment(nil), m.segments...)
}

// Contains reports whether p lies inside the map's bounding extent.
func (m *SegmentMap) Contains(p geom.Point) bool {
	return p.X >= m.min.X && p.X <= m.max.X && p.Y >= m.min.Y && p.Y <= m.max.Y
}

// Bounds returns the axis-aligned extent of the wall set.
func (m *SegmentMap) Bounds() (min, max geom.Point) {
	return m.min, m.max
}

// RayCast intersects the ray from the pose position along bearing with
// every wall and returns the nearest hit distance, capped at maxRange.
func (m *SegmentMap) RayCast(from geom.Pose, bearing, maxRange float64) (float64, error) {
	if !m.Contains(from.Point) {
		return maxRange, ErrOutOfBounds
	}
	sin, cos := math.Sincos(bearing)
	nearest := math.Inf(1)
	for _, s := range m.segments {
		if d, ok := raySegment(from.Point, cos, sin, s); ok && d < nearest {
			nearest = d
		}
	}
	if nearest > maxRange {
		return maxRange, ErrNoIntersection
	}
	return nearest, nil
}

// raySegment returns the distance along the ray (origin o, unit
// direction (dx,dy)) to segment s, if they intersect.
func raySegment(o geom.Point, dx, dy float64, s Segment) (float64, bool) {
	ex := s.B.X - s.A.X
	ey := s.B.Y - s.A.Y
	denom := dx*ey - dy*ex
	if math.Abs(denom) < 1e-12 {
		return 0, false // parallel
	}
	ax := s.A.X - o.X
	ay := s.A.Y - o.Y
	t := (ax*ey - ay*ex) / denom // distance along ray
	u := (ax*dy - ay*dx) / denom // position along segment
	if t < 0 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}
