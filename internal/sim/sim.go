// Package sim fabricates odometry and range-scan streams from a
// ground-truth trajectory and the same map the filter localizes
// against. It exists so the estimation core can be exercised
// end-to-end, deterministically, without hardware.
package sim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/scan"
	"github.com/banshee-data/pose.report/internal/worldmap"
)

// MotionSensor produces noisy odometry deltas from ground-truth pose
// changes. Noise margins are interpreted as three standard deviations,
// so a margin of 0.3 means draws land within +-0.3 almost always.
type MotionSensor struct {
	xySigma      float64
	headingSigma float64
	prev         geom.Pose
	rng          *rand.Rand
}

// NewMotionSensor starts tracking from the initial ground-truth pose.
func NewMotionSensor(initial geom.Pose, xyMargin, headingMargin float64, rng *rand.Rand) *MotionSensor {
	return &MotionSensor{
		xySigma:      xyMargin / 3,
		headingSigma: headingMargin / 3,
		prev:         initial,
		rng:          rng,
	}
}

// Step advances to the new ground-truth pose and returns the odometry
// reading for the move: the true body-frame delta plus Gaussian noise.
func (ms *MotionSensor) Step(truth geom.Pose, stamp time.Time) mcl.Control {
	// World-frame displacement rotated back into the previous heading
	// frame, which is what wheel odometry reports.
	d := truth.Point.Sub(ms.prev.Point)
	sin, cos := math.Sincos(ms.prev.Heading)
	ctrl := mcl.Control{
		DX:     d.X*cos + d.Y*sin + ms.rng.NormFloat64()*ms.xySigma,
		DY:     -d.X*sin + d.Y*cos + ms.rng.NormFloat64()*ms.xySigma,
		DTheta: geom.AngleDiff(truth.Heading, ms.prev.Heading) + ms.rng.NormFloat64()*ms.headingSigma,
		Stamp:  stamp,
	}
	ms.prev = truth
	return ctrl
}

// RangeScanner ray-casts a fan of beams from the ground-truth pose and
// perturbs each return with Gaussian range noise. Beams that hit
// nothing within maxRange come back invalid, as a real sensor's
// dropouts would.
type RangeScanner struct {
	m          worldmap.Map
	beams      int
	maxRange   float64
	rangeSigma float64
	rng        *rand.Rand
}

// NewRangeScanner builds a scanner with beams spread evenly over the
// full circle. noiseMargin is three standard deviations of range noise.
func NewRangeScanner(m worldmap.Map, beams int, maxRange, noiseMargin float64, rng *rand.Rand) (*RangeScanner, error) {
	if beams <= 0 {
		return nil, fmt.Errorf("sim: beam count must be positive, got %d", beams)
	}
	if maxRange <= 0 {
		return nil, fmt.Errorf("sim: max range must be positive, got %v", maxRange)
	}
	return &RangeScanner{
		m:          m,
		beams:      beams,
		maxRange:   maxRange,
		rangeSigma: noiseMargin / 3,
		rng:        rng,
	}, nil
}

// Scan produces one sweep as seen from the ground-truth pose.
func (rs *RangeScanner) Scan(truth geom.Pose, stamp time.Time) *scan.Scan {
	s := &scan.Scan{Stamp: stamp, Beams: make([]scan.Beam, rs.beams)}
	for i := 0; i < rs.beams; i++ {
		bearing := -math.Pi + float64(i)*2*math.Pi/float64(rs.beams)
		b := scan.Beam{Bearing: bearing}
		r, err := rs.m.RayCast(truth, truth.Heading+bearing, rs.maxRange)
		if err != nil {
			b.Range = -1
		} else {
			b.Range = r + rs.rng.NormFloat64()*rs.rangeSigma
			b.Valid = true
		}
		s.Beams[i] = b
	}
	s.MarkInvalid(rs.maxRange)
	return s
}
