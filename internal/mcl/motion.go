package mcl

import (
	"math"
	"time"

	"github.com/banshee-data/pose.report/internal/geom"
	"gonum.org/v1/gonum/stat/distuv"
)

// Control is one odometry delta in the robot body frame: forward,
// lateral, and rotation since the previous reading. Controls are
// consumed once per prediction step.
type Control struct {
	DX     float64   `json:"dx"`
	DY     float64   `json:"dy"`
	DTheta float64   `json:"dtheta"`
	Stamp  time.Time `json:"stamp"`
}

// valid rejects controls with non-finite fields before they can smear
// NaN across the particle set.
func (c Control) valid() bool {
	for _, v := range []float64{c.DX, c.DY, c.DTheta} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// add coalesces a burst of controls into a single prediction step.
// Deltas are body-frame and rotations are small between readings, so
// component-wise summation is the standard approximation.
func (c Control) add(d Control) Control {
	return Control{
		DX:     c.DX + d.DX,
		DY:     c.DY + d.DY,
		DTheta: c.DTheta + d.DTheta,
		Stamp:  d.Stamp,
	}
}

// MotionModel advances particles through an odometry delta plus
// sampled noise. The same control is applied to every particle with
// independent draws; the resulting spread is what the measurement
// update disambiguates.
type MotionModel struct {
	noise MotionNoise
}

// NewMotionModel builds a motion model from validated noise params.
func NewMotionModel(noise MotionNoise) *MotionModel {
	return &MotionModel{noise: noise}
}

// Predict mutates every particle's pose in place. Weights are never
// touched. Returns ErrInvalidControl (with no state change) for
// non-finite inputs.
func (m *MotionModel) Predict(ps *ParticleSet, ctrl Control, p *pool) error {
	if !ctrl.valid() {
		return ErrInvalidControl
	}

	transMag := math.Hypot(ctrl.DX, ctrl.DY)
	transSigma := m.noise.TransSigma + m.noise.SlipScale*transMag
	rotSigma := m.noise.RotSigma + m.noise.SlipScale*math.Abs(ctrl.DTheta)

	particles := ps.Particles()
	p.run(len(particles), func(w *worker, start, end int) {
		trans := distuv.Normal{Mu: 0, Sigma: transSigma, Src: w.src}
		rot := distuv.Normal{Mu: 0, Sigma: rotSigma, Src: w.src}
		for i := start; i < end; i++ {
			delta := geom.Pose{
				Point: geom.Point{
					X: ctrl.DX + trans.Rand(),
					Y: ctrl.DY + trans.Rand(),
				},
				Heading: ctrl.DTheta + rot.Rand(),
			}
			particles[i].Pose = particles[i].Pose.TransformBy(delta)
		}
	})
	return nil
}
