package mcl

import (
	"fmt"
	"math"
	"runtime"
	"time"
)

// MotionNoise parameterizes the prediction step's stochastic model.
// Sigmas are standard deviations; SlipScale grows the translation
// sigma proportionally to the commanded motion magnitude, modelling
// wheel slip on larger moves.
type MotionNoise struct {
	TransSigma float64 `json:"trans_sigma"`
	RotSigma   float64 `json:"rot_sigma"`
	SlipScale  float64 `json:"slip_scale"`
}

// BeamModel parameterizes the per-beam measurement likelihood: a
// Gaussian around the map-predicted range mixed with floor mass for
// unexpectedly short returns, max-range returns, and uniform noise.
// The four Z mixture weights must sum to 1.
type BeamModel struct {
	RangeSigma float64 `json:"range_sigma"`
	ZHit       float64 `json:"z_hit"`
	ZShort     float64 `json:"z_short"`
	ZMax       float64 `json:"z_max"`
	ZRand      float64 `json:"z_rand"`
	MaxRange   float64 `json:"max_range"`
	// ShortLambda is the decay rate of the unexpected-short exponential.
	ShortLambda float64 `json:"short_lambda"`
	// BeamStride subsamples the scan: only every stride-th valid beam is
	// scored. 1 scores everything.
	BeamStride int `json:"beam_stride"`
}

// ResampleJitter is the regularization noise added to each resampled
// particle, keeping duplicated particles from being exact copies.
type ResampleJitter struct {
	XYSigma      float64 `json:"xy_sigma"`
	HeadingSigma float64 `json:"heading_sigma"`
}

// Config holds every tunable of a filter instance. Zero values are
// invalid; use DefaultConfig and override.
type Config struct {
	NumParticles int         `json:"num_particles"`
	Motion       MotionNoise `json:"motion"`
	Beam         BeamModel   `json:"beam"`
	// ESSFraction triggers resampling when ESS < ESSFraction * N.
	ESSFraction float64        `json:"ess_fraction"`
	Jitter      ResampleJitter `json:"jitter"`
	// Workers sets the measurement/prediction fan-out width. Zero means
	// one worker per CPU.
	Workers int `json:"workers"`
	// Seed fixes the filter's random stream for reproducible runs.
	Seed uint64 `json:"seed"`
	// ControlQueue and ScanQueue bound the controller's input channels.
	ControlQueue int `json:"control_queue"`
	ScanQueue    int `json:"scan_queue"`
	// ReestimateInterval re-publishes an estimate from the last weights
	// when no scan has arrived for this long. Zero disables the ticker.
	ReestimateInterval time.Duration `json:"reestimate_interval"`
}

// DefaultConfig returns the tuning used for the reference indoor
// scenarios: 1000 particles, 12m sensor window, resample below half
// the nominal sample size.
func DefaultConfig() Config {
	return Config{
		NumParticles: 1000,
		Motion: MotionNoise{
			TransSigma: 0.05,
			RotSigma:   0.02,
			SlipScale:  0.1,
		},
		Beam: BeamModel{
			RangeSigma:  0.15,
			ZHit:        0.85,
			ZShort:      0.05,
			ZMax:        0.05,
			ZRand:       0.05,
			MaxRange:    12.0,
			ShortLambda: 1.0,
			BeamStride:  1,
		},
		ESSFraction: 0.5,
		Jitter: ResampleJitter{
			XYSigma:      0.02,
			HeadingSigma: 0.01,
		},
		Workers:      0,
		Seed:         1,
		ControlQueue: 32,
		ScanQueue:    4,
	}
}

// Validate rejects configurations that would corrupt the filter. It is
// called at construction; a filter never starts with a bad config.
func (c *Config) Validate() error {
	if c.NumParticles <= 0 {
		return fmt.Errorf("mcl: num_particles must be positive, got %d", c.NumParticles)
	}
	if c.Motion.TransSigma < 0 || c.Motion.RotSigma < 0 || c.Motion.SlipScale < 0 {
		return fmt.Errorf("mcl: motion noise sigmas must be non-negative: %+v", c.Motion)
	}
	if c.Beam.RangeSigma <= 0 {
		return fmt.Errorf("mcl: beam range_sigma must be positive, got %v", c.Beam.RangeSigma)
	}
	if c.Beam.MaxRange <= 0 {
		return fmt.Errorf("mcl: beam max_range must be positive, got %v", c.Beam.MaxRange)
	}
	if c.Beam.BeamStride < 1 {
		return fmt.Errorf("mcl: beam_stride must be >= 1, got %d", c.Beam.BeamStride)
	}
	zsum := c.Beam.ZHit + c.Beam.ZShort + c.Beam.ZMax + c.Beam.ZRand
	if c.Beam.ZHit < 0 || c.Beam.ZShort < 0 || c.Beam.ZMax < 0 || c.Beam.ZRand < 0 || math.Abs(zsum-1) > 1e-6 {
		return fmt.Errorf("mcl: beam mixture weights must be non-negative and sum to 1, got %v", zsum)
	}
	if c.ESSFraction <= 0 || c.ESSFraction > 1 {
		return fmt.Errorf("mcl: ess_fraction must be in (0,1], got %v", c.ESSFraction)
	}
	if c.Jitter.XYSigma < 0 || c.Jitter.HeadingSigma < 0 {
		return fmt.Errorf("mcl: resample jitter sigmas must be non-negative: %+v", c.Jitter)
	}
	if c.Workers < 0 {
		return fmt.Errorf("mcl: workers must be non-negative, got %d", c.Workers)
	}
	if c.ControlQueue < 1 || c.ScanQueue < 1 {
		return fmt.Errorf("mcl: input queues must hold at least one entry")
	}
	return nil
}

// workerCount resolves the configured fan-out width.
func (c *Config) workerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
