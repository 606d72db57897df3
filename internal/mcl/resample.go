package mcl

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Resampler redraws the particle population proportionally to weight
// using the systematic (low-variance) scheme: one uniform offset in
// [0, 1/N), then fixed 1/N strides across the cumulative weight
// distribution. High-weight particles are duplicated, low-weight ones
// eliminated, and the output is always exactly N particles at uniform
// weight.
type Resampler struct {
	essFraction float64
	jitter      ResampleJitter
}

// NewResampler builds a resampler from validated config.
func NewResampler(essFraction float64, jitter ResampleJitter) *Resampler {
	return &Resampler{essFraction: essFraction, jitter: jitter}
}

// Needed reports whether the degeneracy criterion is met: ESS below
// the configured fraction of N. Resampling every cycle would bleed
// particle diversity, so the caller gates on this.
func (r *Resampler) Needed(ps *ParticleSet) bool {
	return ps.ESS() < r.essFraction*float64(ps.Len())
}

// Resample replaces the population in place. Deterministic for a fixed
// rng state and input weights. When every weight is exactly zero the
// selection falls back to uniform over the index space rather than
// dividing by zero.
func (r *Resampler) Resample(ps *ParticleSet, rng *rand.Rand) {
	particles := ps.Particles()
	n := len(particles)

	sum := ps.WeightSum()
	if sum <= 0 {
		// Degenerate input: keep the population, just reset weights.
		ps.SetUniformWeights()
		sum = 1
	}

	out := make([]Particle, n)
	step := sum / float64(n)
	u := rng.Float64() * step
	cum := particles[0].W
	src := 0
	w := 1.0 / float64(n)

	var jx, jt distuv.Normal
	jittering := r.jitter.XYSigma > 0 || r.jitter.HeadingSigma > 0
	if jittering {
		jx = distuv.Normal{Mu: 0, Sigma: r.jitter.XYSigma, Src: rng}
		jt = distuv.Normal{Mu: 0, Sigma: r.jitter.HeadingSigma, Src: rng}
	}

	for i := 0; i < n; i++ {
		for u > cum && src < n-1 {
			src++
			cum += particles[src].W
		}
		out[i] = Particle{Pose: particles[src].Pose, W: w}
		if jittering {
			out[i].Pose = out[i].Pose.Offset(jx.Rand(), jx.Rand(), jt.Rand())
		}
		u += step
	}
	copy(particles, out)
}
