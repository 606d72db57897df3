package worldmap

import (
	"fmt"
	"math"

	"github.com/banshee-data/pose.report/internal/geom"
)

// GridMap models the environment as a binary occupancy grid. Cells are
// square with side Resolution meters; cell (0,0)'s lower-left corner
// sits at Origin. Ray-casts walk the grid with a DDA traversal, so
// cost per beam is proportional to range/resolution.
type GridMap struct {
	origin     geom.Point
	resolution float64
	width      int
	height     int
	occupied   []bool
}

// NewGridMap builds an occupancy grid. cells is row-major
// (cells[y*width+x]), true meaning occupied.
func NewGridMap(origin geom.Point, resolution float64, width, height int, cells []bool) (*GridMap, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("worldmap: grid resolution must be positive, got %v", resolution)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("worldmap: grid dimensions must be positive, got %dx%d", width, height)
	}
	if len(cells) != width*height {
		return nil, fmt.Errorf("worldmap: grid cell count %d does not match %dx%d", len(cells), width, height)
	}
	return &GridMap{
		origin:     origin,
		resolution: resolution,
		width:      width,
		height:     height,
		occupied:   append([]bool(nil), cells...),
	}, nil
}

// Contains reports whether p lies within the grid extent.
func (m *GridMap) Contains(p geom.Point) bool {
	return p.X >= m.origin.X && p.Y >= m.origin.Y &&
		p.X <= m.origin.X+float64(m.width)*m.resolution &&
		p.Y <= m.origin.Y+float64(m.height)*m.resolution
}

// Bounds returns the axis-aligned extent of the grid.
func (m *GridMap) Bounds() (min, max geom.Point) {
	return m.origin, geom.Point{
		X: m.origin.X + float64(m.width)*m.resolution,
		Y: m.origin.Y + float64(m.height)*m.resolution,
	}
}

// OccupiedAt reports whether the cell containing p is occupied.
// Points outside the grid report false.
func (m *GridMap) OccupiedAt(p geom.Point) bool {
	cx := int(math.Floor((p.X - m.origin.X) / m.resolution))
	cy := int(math.Floor((p.Y - m.origin.Y) / m.resolution))
	if cx < 0 || cx >= m.width || cy < 0 || cy >= m.height {
		return false
	}
	return m.occupied[cy*m.width+cx]
}

// RayCast walks cells from the pose position along bearing until it
// enters an occupied cell or exceeds maxRange. The returned distance
// is to the boundary of the occupied cell.
func (m *GridMap) RayCast(from geom.Pose, bearing, maxRange float64) (float64, error) {
	if !m.Contains(from.Point) {
		return maxRange, ErrOutOfBounds
	}
	sin, cos := math.Sincos(bearing)

	cx := int(math.Floor((from.X - m.origin.X) / m.resolution))
	cy := int(math.Floor((from.Y - m.origin.Y) / m.resolution))

	// Distance along the ray to the next vertical/horizontal cell
	// boundary, and the per-cell stride (standard DDA setup).
	stepX, stepY := 1, 1
	tMaxX, tMaxY := math.Inf(1), math.Inf(1)
	tDeltaX, tDeltaY := math.Inf(1), math.Inf(1)

	if cos > 0 {
		tMaxX = ((m.origin.X+float64(cx+1)*m.resolution)-from.X) / cos
		tDeltaX = m.resolution / cos
	} else if cos < 0 {
		stepX = -1
		tMaxX = ((m.origin.X+float64(cx)*m.resolution)-from.X) / cos
		tDeltaX = -m.resolution / cos
	}
	if sin > 0 {
		tMaxY = ((m.origin.Y+float64(cy+1)*m.resolution)-from.Y) / sin
		tDeltaY = m.resolution / sin
	} else if sin < 0 {
		stepY = -1
		tMaxY = ((m.origin.Y+float64(cy)*m.resolution)-from.Y) / sin
		tDeltaY = -m.resolution / sin
	}

	for {
		var t float64
		if tMaxX < tMaxY {
			t = tMaxX
			tMaxX += tDeltaX
			cx += stepX
		} else {
			t = tMaxY
			tMaxY += tDeltaY
			cy += stepY
		}
		if t > maxRange {
			return maxRange, ErrNoIntersection
		}
		if cx < 0 || cx >= m.width || cy < 0 || cy >= m.height {
			return maxRange, ErrNoIntersection
		}
		if m.occupied[cy*m.width+cx] {
			return t, nil
		}
	}
}
