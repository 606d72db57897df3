package mcl

import (
	"math"
	"testing"

	"github.com/banshee-data/pose.report/internal/geom"
)

func weightedSet(weights ...float64) *ParticleSet {
	ps := &ParticleSet{particles: make([]Particle, len(weights))}
	for i, w := range weights {
		ps.particles[i] = Particle{Pose: geom.NewPose(float64(i), 0, 0), W: w}
	}
	return ps
}

func TestResamplePreservesCount(t *testing.T) {
	r := NewResampler(0.5, ResampleJitter{})
	for _, n := range []int{1, 7, 100, 501} {
		ps := &ParticleSet{particles: make([]Particle, n)}
		for i := range ps.particles {
			ps.particles[i] = Particle{Pose: geom.NewPose(float64(i), 0, 0), W: float64(i + 1)}
		}
		r.Resample(ps, testRNG(5))
		if ps.Len() != n {
			t.Fatalf("n=%d: resample returned %d particles", n, ps.Len())
		}
	}
}

func TestResampleUniformWeightsAfter(t *testing.T) {
	r := NewResampler(0.5, ResampleJitter{})
	ps := weightedSet(0.9, 0.05, 0.03, 0.02)
	r.Resample(ps, testRNG(5))
	for i, p := range ps.Particles() {
		if math.Abs(p.W-0.25) > 1e-12 {
			t.Errorf("particle %d weight = %v, want 0.25", i, p.W)
		}
	}
	if ess := ps.ESS(); math.Abs(ess-4) > 1e-9 {
		t.Errorf("post-resample ESS = %v, want N=4", ess)
	}
}

func TestResampleDeterministicForFixedSeed(t *testing.T) {
	r := NewResampler(0.5, ResampleJitter{XYSigma: 0.01, HeadingSigma: 0.01})

	run := func() []Particle {
		ps := weightedSet(0.1, 0.2, 0.3, 0.4)
		r.Resample(ps, testRNG(77))
		return ps.Snapshot()
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("resample not deterministic at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestResampleConcentratesOnHighWeight(t *testing.T) {
	r := NewResampler(0.5, ResampleJitter{})

	// Statistical property: over many trials, particle 3 (80% of mass)
	// should occupy roughly 80% of output slots. Systematic resampling
	// has low variance, so a single large population suffices.
	ps := &ParticleSet{particles: make([]Particle, 1000)}
	for i := range ps.particles {
		w := 0.2 / 999.0
		if i == 3 {
			w = 0.8
		}
		ps.particles[i] = Particle{Pose: geom.NewPose(float64(i), 0, 0), W: w}
	}
	r.Resample(ps, testRNG(13))

	hits := 0
	for _, p := range ps.Particles() {
		if p.Pose.X == 3 {
			hits++
		}
	}
	if hits < 780 || hits > 820 {
		t.Errorf("dominant particle copied %d times, want ~800", hits)
	}
}

func TestResampleZeroWeightsFallsBackToUniform(t *testing.T) {
	r := NewResampler(0.5, ResampleJitter{})
	ps := weightedSet(0, 0, 0, 0)
	r.Resample(ps, testRNG(5))
	if ps.Len() != 4 {
		t.Fatalf("count = %d, want 4", ps.Len())
	}
	// With uniform fallback and systematic strides, every source index
	// survives exactly once.
	seen := map[float64]int{}
	for _, p := range ps.Particles() {
		seen[p.Pose.X]++
	}
	if len(seen) != 4 {
		t.Errorf("uniform fallback selected %d distinct sources, want 4", len(seen))
	}
}

func TestNeeded(t *testing.T) {
	r := NewResampler(0.5, ResampleJitter{})

	ps := weightedSet(0.25, 0.25, 0.25, 0.25)
	if r.Needed(ps) {
		t.Error("uniform weights should not need resampling")
	}

	ps = weightedSet(0.97, 0.01, 0.01, 0.01)
	if !r.Needed(ps) {
		t.Error("collapsed weights should need resampling")
	}
}

func TestResampleJitterSpreadsDuplicates(t *testing.T) {
	r := NewResampler(0.5, ResampleJitter{XYSigma: 0.05, HeadingSigma: 0.02})
	ps := weightedSet(1, 0, 0, 0)
	r.Resample(ps, testRNG(21))

	// All four outputs descend from particle 0 but must not be exact
	// copies of each other.
	distinct := map[geom.Pose]bool{}
	for _, p := range ps.Particles() {
		distinct[p.Pose] = true
		if math.Abs(p.Pose.X) > 0.5 {
			t.Errorf("jittered particle strayed to %v", p.Pose)
		}
	}
	if len(distinct) < 2 {
		t.Error("jitter left all duplicates identical")
	}
}
