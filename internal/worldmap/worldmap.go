// Package worldmap holds the static environment models the localizer
// ray-casts against. A map is built once at startup and is immutable
// afterwards, so it is safe to share across all measurement workers
// without locking.
package worldmap

import (
	"errors"

	"github.com/banshee-data/pose.report/internal/geom"
)

// ErrOutOfBounds is returned when a ray-cast origin lies outside the
// map extent. Callers are expected to treat the reading as max-range
// rather than fail the cycle.
var ErrOutOfBounds = errors.New("worldmap: query origin outside map bounds")

// ErrNoIntersection is returned when a ray reaches maxRange without
// hitting any obstacle.
var ErrNoIntersection = errors.New("worldmap: no obstacle within max range")

// Map is the read-only contract the filter core needs from an
// environment model. Implementations must be deterministic and
// side-effect free; RayCast is called from many goroutines at once.
type Map interface {
	// RayCast returns the distance from the pose's position to the first
	// obstacle along the given absolute bearing, capped at maxRange.
	// Returns ErrOutOfBounds if from lies outside the map, and
	// ErrNoIntersection if nothing is hit within maxRange.
	RayCast(from geom.Pose, bearing, maxRange float64) (float64, error)

	// Contains reports whether p lies inside the map extent.
	Contains(p geom.Point) bool

	// Bounds returns the axis-aligned extent of the map.
	Bounds() (min, max geom.Point)
}
