// Package mcl implements Monte Carlo localization: a particle filter
// that fuses odometry deltas with range scans ray-cast against a known
// map. The filter core is deterministic given a seeded generator; all
// randomness flows through injected sources.
package mcl

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/pose.report/internal/geom"
)

// Particle is one weighted pose hypothesis.
type Particle struct {
	Pose geom.Pose `json:"pose"`
	W    float64   `json:"w"`
}

// ParticleSet is the filter's belief state: a fixed-size population of
// weighted pose hypotheses. It is owned by a single filter cycle at a
// time; Snapshot produces copies for read-only consumers.
type ParticleSet struct {
	particles []Particle
}

// NewUniform seeds n particles uniformly over the given extent with
// uniform weights.
func NewUniform(n int, min, max geom.Point, rng *rand.Rand) (*ParticleSet, error) {
	if n <= 0 {
		return nil, fmt.Errorf("mcl: particle count must be positive, got %d", n)
	}
	if max.X <= min.X || max.Y <= min.Y {
		return nil, fmt.Errorf("mcl: seeding extent is empty: min=%v max=%v", min, max)
	}
	ps := &ParticleSet{particles: make([]Particle, n)}
	w := 1.0 / float64(n)
	for i := range ps.particles {
		ps.particles[i] = Particle{
			Pose: geom.NewPose(
				min.X+rng.Float64()*(max.X-min.X),
				min.Y+rng.Float64()*(max.Y-min.Y),
				-math.Pi+rng.Float64()*2*math.Pi,
			),
			W: w,
		}
	}
	return ps, nil
}

// NewFromPrior seeds n particles from a Gaussian around a prior pose.
// spread gives the standard deviations (XY shared, heading separate).
func NewFromPrior(n int, prior geom.Pose, xySigma, headingSigma float64, rng *rand.Rand) (*ParticleSet, error) {
	if n <= 0 {
		return nil, fmt.Errorf("mcl: particle count must be positive, got %d", n)
	}
	if xySigma < 0 || headingSigma < 0 {
		return nil, fmt.Errorf("mcl: prior spread must be non-negative, got xy=%v heading=%v", xySigma, headingSigma)
	}
	ps := &ParticleSet{particles: make([]Particle, n)}
	w := 1.0 / float64(n)
	for i := range ps.particles {
		ps.particles[i] = Particle{
			Pose: geom.NewPose(
				prior.X+rng.NormFloat64()*xySigma,
				prior.Y+rng.NormFloat64()*xySigma,
				prior.Heading+rng.NormFloat64()*headingSigma,
			),
			W: w,
		}
	}
	return ps, nil
}

// Len returns the population size.
func (ps *ParticleSet) Len() int { return len(ps.particles) }

// Particles exposes the backing slice for in-place mutation by the
// motion and measurement models. Callers outside the filter cycle must
// use Snapshot instead.
func (ps *ParticleSet) Particles() []Particle { return ps.particles }

// Snapshot returns a deep copy for rendering and API consumers.
func (ps *ParticleSet) Snapshot() []Particle {
	out := make([]Particle, len(ps.particles))
	copy(out, ps.particles)
	return out
}

// WeightSum returns the current (possibly unnormalized) weight total.
func (ps *ParticleSet) WeightSum() float64 {
	sum := 0.0
	for i := range ps.particles {
		sum += ps.particles[i].W
	}
	return sum
}

// Normalize rescales weights to sum to one. If the total has collapsed
// to numerical zero (or is not finite), weights are reset to uniform
// and ErrDegenerateWeights is returned.
func (ps *ParticleSet) Normalize() error {
	sum := ps.WeightSum()
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		ps.SetUniformWeights()
		return ErrDegenerateWeights
	}
	inv := 1.0 / sum
	for i := range ps.particles {
		ps.particles[i].W *= inv
	}
	return nil
}

// SetUniformWeights resets every weight to 1/N.
func (ps *ParticleSet) SetUniformWeights() {
	w := 1.0 / float64(len(ps.particles))
	for i := range ps.particles {
		ps.particles[i].W = w
	}
}

// ESS returns the effective sample size 1/sum(w_i^2) of the normalized
// weights. A value near N means healthy diversity; near 1 means the
// weight mass sits on a single particle.
func (ps *ParticleSet) ESS() float64 {
	sum := ps.WeightSum()
	if sum <= 0 {
		return 0
	}
	sq := 0.0
	for i := range ps.particles {
		w := ps.particles[i].W / sum
		sq += w * w
	}
	if sq == 0 {
		return 0
	}
	return 1.0 / sq
}
