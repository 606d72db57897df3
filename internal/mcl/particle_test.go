package mcl

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/pose.report/internal/geom"
)

func testRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

func TestNewUniformSeedsWithinBounds(t *testing.T) {
	rng := testRNG(7)
	ps, err := NewUniform(200, geom.Point{X: 1, Y: 2}, geom.Point{X: 4, Y: 6}, rng)
	if err != nil {
		t.Fatalf("NewUniform: %v", err)
	}
	if ps.Len() != 200 {
		t.Fatalf("Len = %d, want 200", ps.Len())
	}
	for i, p := range ps.Particles() {
		if p.Pose.X < 1 || p.Pose.X > 4 || p.Pose.Y < 2 || p.Pose.Y > 6 {
			t.Fatalf("particle %d outside bounds: %+v", i, p.Pose)
		}
		if p.Pose.Heading < -math.Pi || p.Pose.Heading >= math.Pi {
			t.Fatalf("particle %d heading not normalized: %v", i, p.Pose.Heading)
		}
	}
	if s := ps.WeightSum(); math.Abs(s-1) > 1e-9 {
		t.Errorf("initial weight sum = %v, want 1", s)
	}
}

func TestNewUniformRejectsBadArgs(t *testing.T) {
	rng := testRNG(1)
	if _, err := NewUniform(0, geom.Point{}, geom.Point{X: 1, Y: 1}, rng); err == nil {
		t.Error("expected error for zero particles")
	}
	if _, err := NewUniform(10, geom.Point{X: 2, Y: 2}, geom.Point{X: 1, Y: 1}, rng); err == nil {
		t.Error("expected error for empty extent")
	}
}

func TestNewFromPriorSpread(t *testing.T) {
	rng := testRNG(3)
	prior := geom.NewPose(5, 5, 1)
	ps, err := NewFromPrior(500, prior, 0.1, 0.05, rng)
	if err != nil {
		t.Fatalf("NewFromPrior: %v", err)
	}
	var sx, sy float64
	for _, p := range ps.Particles() {
		sx += p.Pose.X
		sy += p.Pose.Y
	}
	n := float64(ps.Len())
	if math.Abs(sx/n-5) > 0.05 || math.Abs(sy/n-5) > 0.05 {
		t.Errorf("prior mean drifted: (%v, %v)", sx/n, sy/n)
	}

	// Zero spread collapses all particles onto the prior exactly.
	ps, err = NewFromPrior(10, prior, 0, 0, rng)
	if err != nil {
		t.Fatalf("NewFromPrior zero spread: %v", err)
	}
	for _, p := range ps.Particles() {
		if p.Pose != prior {
			t.Fatalf("zero-spread particle = %+v, want %+v", p.Pose, prior)
		}
	}
}

func TestNormalize(t *testing.T) {
	ps := &ParticleSet{particles: []Particle{{W: 2}, {W: 6}, {W: 0}}}
	if err := ps.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	got := ps.Particles()
	if math.Abs(got[0].W-0.25) > 1e-12 || math.Abs(got[1].W-0.75) > 1e-12 || got[2].W != 0 {
		t.Errorf("normalized weights = %v %v %v", got[0].W, got[1].W, got[2].W)
	}
}

func TestNormalizeDegenerateFallsBackToUniform(t *testing.T) {
	ps := &ParticleSet{particles: []Particle{{W: 0}, {W: 0}, {W: 0}, {W: 0}}}
	err := ps.Normalize()
	if !errors.Is(err, ErrDegenerateWeights) {
		t.Fatalf("err = %v, want ErrDegenerateWeights", err)
	}
	for _, p := range ps.Particles() {
		if p.W != 0.25 {
			t.Errorf("fallback weight = %v, want 0.25", p.W)
		}
	}
}

func TestESS(t *testing.T) {
	// Uniform weights: ESS == N.
	ps := &ParticleSet{particles: make([]Particle, 100)}
	ps.SetUniformWeights()
	if ess := ps.ESS(); math.Abs(ess-100) > 1e-9 {
		t.Errorf("uniform ESS = %v, want 100", ess)
	}

	// All mass on one particle: ESS == 1.
	ps.particles[0].W = 1
	for i := 1; i < 100; i++ {
		ps.particles[i].W = 0
	}
	if ess := ps.ESS(); math.Abs(ess-1) > 1e-9 {
		t.Errorf("collapsed ESS = %v, want 1", ess)
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	rng := testRNG(9)
	ps, err := NewUniform(10, geom.Point{}, geom.Point{X: 1, Y: 1}, rng)
	if err != nil {
		t.Fatalf("NewUniform: %v", err)
	}
	snap := ps.Snapshot()
	ps.Particles()[0].Pose.X = 99
	if snap[0].Pose.X == 99 {
		t.Error("snapshot aliases the live particle slice")
	}
}
