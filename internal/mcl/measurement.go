package mcl

import (
	"math"

	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/scan"
	"github.com/banshee-data/pose.report/internal/worldmap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// MeasurementModel reweights particles by comparing an observed scan
// against ranges ray-cast from each particle's pose. Scoring is
// independent per particle and fans out across the worker pool; weight
// normalization happens only after the barrier.
type MeasurementModel struct {
	beam BeamModel
	m    worldmap.Map
}

// NewMeasurementModel binds a beam model to a map. The map is shared
// read-only across all workers.
func NewMeasurementModel(beam BeamModel, m worldmap.Map) *MeasurementModel {
	return &MeasurementModel{beam: beam, m: m}
}

// Update mutates weights in place: w_i <- w_i * L_i(scan), then
// normalizes. Invalid beams are skipped; if no beam is valid the
// weights are left untouched and ErrEmptyScan is returned. A total
// collapse of weights resets them to uniform and surfaces
// ErrDegenerateWeights; the particle poses stay usable either way.
func (mm *MeasurementModel) Update(ps *ParticleSet, s *scan.Scan, p *pool) error {
	beams := usableBeams(s, mm.beam.BeamStride)
	if len(beams) == 0 {
		return ErrEmptyScan
	}

	particles := ps.Particles()
	logliks := make([]float64, len(particles))
	p.run(len(particles), func(_ *worker, start, end int) {
		for i := start; i < end; i++ {
			logliks[i] = mm.scoreParticle(particles[i].Pose, beams)
		}
	})

	// Move to log space before mixing in the old weights: the per-beam
	// products underflow float64 well before a scan finishes otherwise.
	logw := make([]float64, len(particles))
	for i := range particles {
		if particles[i].W > 0 {
			logw[i] = math.Log(particles[i].W) + logliks[i]
		} else {
			logw[i] = math.Inf(-1)
		}
	}
	logsum := floats.LogSumExp(logw)
	if math.IsInf(logsum, -1) || math.IsNaN(logsum) {
		ps.SetUniformWeights()
		return ErrDegenerateWeights
	}
	for i := range particles {
		particles[i].W = math.Exp(logw[i] - logsum)
	}
	return nil
}

// scoreParticle returns the log-likelihood of the scan viewed from a
// candidate pose.
func (mm *MeasurementModel) scoreParticle(pose geom.Pose, beams []scan.Beam) float64 {
	ll := 0.0
	for _, b := range beams {
		bearing := pose.Heading + b.Bearing
		predicted, err := mm.m.RayCast(pose, bearing, mm.beam.MaxRange)
		if err != nil {
			// Out-of-bounds and no-hit both read as max-range.
			predicted = mm.beam.MaxRange
		}
		ll += math.Log(mm.beamLikelihood(b.Range, predicted))
	}
	return ll
}

// beamLikelihood is the standard four-part mixture: a Gaussian around
// the predicted range, an exponential for unexpected-short returns, a
// point mass at max range, and a uniform noise floor. The floor terms
// keep a single outlier beam from zeroing a particle.
func (mm *MeasurementModel) beamLikelihood(observed, predicted float64) float64 {
	b := mm.beam
	p := 0.0

	if b.ZHit > 0 {
		hit := distuv.Normal{Mu: predicted, Sigma: b.RangeSigma}
		p += b.ZHit * hit.Prob(observed)
	}
	if b.ZShort > 0 && observed < predicted {
		short := distuv.Exponential{Rate: b.ShortLambda}
		// Normalized over [0, predicted].
		norm := 1 - math.Exp(-b.ShortLambda*predicted)
		if norm > 0 {
			p += b.ZShort * short.Prob(observed) / norm
		}
	}
	if b.ZMax > 0 && observed >= b.MaxRange-b.RangeSigma {
		p += b.ZMax / b.RangeSigma
	}
	if b.ZRand > 0 {
		p += b.ZRand / b.MaxRange
	}

	if p <= 0 {
		// Guard log(0); the mixture floor should make this unreachable
		// with a validated config.
		p = math.SmallestNonzeroFloat64
	}
	return p
}

// usableBeams filters invalid readings and applies the configured
// stride.
func usableBeams(s *scan.Scan, stride int) []scan.Beam {
	if s == nil {
		return nil
	}
	out := make([]scan.Beam, 0, len(s.Beams)/stride+1)
	kept := 0
	for _, b := range s.Beams {
		if !b.Valid {
			continue
		}
		if kept%stride == 0 {
			out = append(out, b)
		}
		kept++
	}
	return out
}
