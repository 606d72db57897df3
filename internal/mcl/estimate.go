package mcl

import (
	"math"
	"time"

	"github.com/banshee-data/pose.report/internal/geom"
	"gonum.org/v1/gonum/stat"
)

// Estimate is the reduced belief: a single pose with a spread signal.
// It is recomputed from the particle set each cycle and carries no
// authority of its own.
type Estimate struct {
	Pose geom.Pose `json:"pose"`
	// Cov holds the weighted variances (x, y) and the circular variance
	// of the heading in [0,1].
	Cov   [3]float64 `json:"cov"`
	ESS   float64    `json:"ess"`
	Stamp time.Time  `json:"stamp"`
}

// Estimator reduces a weighted particle set to a pose estimate:
// weighted arithmetic mean for position, weighted circular mean for
// heading (angles do not average linearly across the +-pi seam).
// Read-only; never mutates the set and is safe to call mid-cycle on a
// snapshot.
type Estimator struct{}

// Estimate computes the current best pose and spread.
func (Estimator) Estimate(ps *ParticleSet, stamp time.Time) Estimate {
	particles := ps.Particles()
	n := len(particles)

	xs := make([]float64, n)
	ys := make([]float64, n)
	ws := make([]float64, n)
	sinSum, cosSum := 0.0, 0.0
	wsum := 0.0
	for i, p := range particles {
		xs[i] = p.Pose.X
		ys[i] = p.Pose.Y
		ws[i] = p.W
		wsum += p.W
		sin, cos := math.Sincos(p.Pose.Heading)
		sinSum += p.W * sin
		cosSum += p.W * cos
	}
	if wsum <= 0 {
		// All-zero weights: fall back to the unweighted mean so callers
		// still get the population's region.
		for i := range ws {
			ws[i] = 1
		}
		wsum = float64(n)
		sinSum, cosSum = 0, 0
		for _, p := range particles {
			sin, cos := math.Sincos(p.Pose.Heading)
			sinSum += sin
			cosSum += cos
		}
	}

	heading := stat.CircularMean(headings(particles), ws)

	// Mean resultant length R in [0,1]; 1-R is the circular variance.
	r := math.Hypot(sinSum, cosSum) / wsum

	return Estimate{
		Pose: geom.NewPose(stat.Mean(xs, ws), stat.Mean(ys, ws), heading),
		Cov: [3]float64{
			stat.Variance(xs, ws),
			stat.Variance(ys, ws),
			1 - r,
		},
		ESS:   ps.ESS(),
		Stamp: stamp,
	}
}

func headings(particles []Particle) []float64 {
	out := make([]float64, len(particles))
	for i, p := range particles {
		out[i] = p.Pose.Heading
	}
	return out
}
