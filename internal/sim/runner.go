package sim

import (
	"math/rand/v2"
	"time"

	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/monitoring"
	"github.com/banshee-data/pose.report/internal/worldmap"
)

// RunConfig parameterizes a closed-loop synthetic run.
type RunConfig struct {
	Steps         int
	Beams         int
	MaxRange      float64
	MotionMargin  float64 // xy noise margin (3 sigma), meters per step
	HeadingMargin float64 // heading noise margin (3 sigma), radians per step
	RangeMargin   float64 // range noise margin (3 sigma), meters
	Seed          uint64
	StepPeriod    time.Duration
}

// StepResult records one cycle of a run for storage and plotting.
type StepResult struct {
	Step     int
	Truth    geom.Pose
	Estimate mcl.Estimate
	Err      float64 // position error, meters
}

// Run drives the controller in lockstep along the trajectory: each
// step advances the truth, feeds the noisy odometry delta and scan,
// and records the estimate against the truth.
func Run(ctrl *mcl.Controller, m worldmap.Map, traj Trajectory, cfg RunConfig) ([]StepResult, error) {
	rng := rand.New(rand.NewPCG(cfg.Seed, 1))

	scanner, err := NewRangeScanner(m, cfg.Beams, cfg.MaxRange, cfg.RangeMargin, rng)
	if err != nil {
		return nil, err
	}
	motion := NewMotionSensor(traj.At(0), cfg.MotionMargin, cfg.HeadingMargin, rng)

	period := cfg.StepPeriod
	if period == 0 {
		period = 100 * time.Millisecond
	}
	start := time.Now()

	results := make([]StepResult, 0, cfg.Steps)
	for i := 1; i <= cfg.Steps; i++ {
		truth := traj.At(i)
		stamp := start.Add(time.Duration(i) * period)

		c := motion.Step(truth, stamp)
		s := scanner.Scan(truth, stamp)
		est := ctrl.Step(&c, s)

		r := StepResult{
			Step:     i,
			Truth:    truth,
			Estimate: est,
			Err:      est.Pose.Point.Dist(truth.Point),
		}
		results = append(results, r)
		monitoring.Debugf("sim: step %d truth=(%.2f,%.2f) est=(%.2f,%.2f) err=%.3f ess=%.0f",
			i, truth.X, truth.Y, est.Pose.X, est.Pose.Y, r.Err, est.ESS)
	}
	return results, nil
}
