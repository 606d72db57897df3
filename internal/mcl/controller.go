package mcl

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/monitoring"
	"github.com/banshee-data/pose.report/internal/scan"
	"github.com/banshee-data/pose.report/internal/worldmap"
	"github.com/google/uuid"
)

// Publisher receives the estimate produced by each completed cycle.
// Implementations must not block; slow sinks should buffer or drop.
type Publisher interface {
	Publish(est Estimate)
}

// Controller owns a particle set and drives the filter cycle:
// predict on arriving controls, update on arriving scans, resample
// when diversity degrades, then estimate and publish. Exactly one
// cycle is in flight at a time; input arrives through bounded queues
// so sensor I/O never stalls the numeric core.
type Controller struct {
	cfg       Config
	worldMap  worldmap.Map
	motion    *MotionModel
	meas      *MeasurementModel
	resampler *Resampler
	estimator Estimator
	pool      *pool
	rng       *rand.Rand

	controls chan Control
	scans    chan *scan.Scan
	priors   chan prior

	sessionID uuid.UUID

	// beliefMu guards the particle set and the last estimate. The run
	// loop holds it for the duration of each cycle stage, so Snapshot
	// observes only pre- or post-cycle state, never a torn one.
	beliefMu  sync.Mutex
	particles *ParticleSet
	lastEst   Estimate

	publishers []Publisher

	stopped         atomic.Bool
	cycles          atomic.Uint64
	droppedControls atomic.Uint64
	droppedScans    atomic.Uint64
	degenerations   atomic.Uint64
	resamples       atomic.Uint64
}

type prior struct {
	pose         geom.Pose
	xySigma      float64
	headingSigma float64
}

// NewController validates the config, seeds the initial belief
// uniformly over the map extent, and prepares the worker pool. The
// map must outlive the controller and is never written to.
func NewController(cfg Config, m worldmap.Map, publishers ...Publisher) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("mcl: controller requires a map")
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, 0))
	min, max := m.Bounds()
	ps, err := NewUniform(cfg.NumParticles, min, max, rng)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:        cfg,
		worldMap:   m,
		motion:     NewMotionModel(cfg.Motion),
		meas:       NewMeasurementModel(cfg.Beam, m),
		resampler:  NewResampler(cfg.ESSFraction, cfg.Jitter),
		pool:       newPool(cfg.workerCount(), cfg.Seed),
		rng:        rng,
		controls:   make(chan Control, cfg.ControlQueue),
		scans:      make(chan *scan.Scan, cfg.ScanQueue),
		priors:     make(chan prior, 1),
		sessionID:  uuid.New(),
		particles:  ps,
		publishers: publishers,
	}
	c.lastEst = c.estimator.Estimate(ps, time.Now())
	return c, nil
}

// SessionID identifies this filter run in logs and the run store.
func (c *Controller) SessionID() uuid.UUID { return c.sessionID }

// OfferControl queues an odometry delta without blocking. When the
// queue is full the oldest queued control is discarded so the freshest
// motion is never the one lost.
func (c *Controller) OfferControl(ctrl Control) error {
	if c.stopped.Load() {
		return ErrFilterStopped
	}
	if !ctrl.valid() {
		return ErrInvalidControl
	}
	for {
		select {
		case c.controls <- ctrl:
			return nil
		default:
			select {
			case <-c.controls:
				c.droppedControls.Add(1)
			default:
			}
		}
	}
}

// OfferScan queues a scan without blocking. A full queue drops the new
// scan: the queued ones are already ordered, and the next sweep
// arrives within a rotation period anyway.
func (c *Controller) OfferScan(s *scan.Scan) error {
	if c.stopped.Load() {
		return ErrFilterStopped
	}
	if s == nil || len(s.Beams) == 0 {
		return scan.ErrInvalidScan
	}
	select {
	case c.scans <- s:
		return nil
	default:
		c.droppedScans.Add(1)
		return nil
	}
}

// SetPrior reseeds the belief around an externally supplied pose, e.g.
// an operator fix or another subsystem's estimate. Takes effect before
// the next cycle; only the latest pending prior is kept.
func (c *Controller) SetPrior(pose geom.Pose, xySigma, headingSigma float64) error {
	if c.stopped.Load() {
		return ErrFilterStopped
	}
	if xySigma < 0 || headingSigma < 0 {
		return fmt.Errorf("mcl: prior spread must be non-negative")
	}
	for {
		select {
		case c.priors <- prior{pose, xySigma, headingSigma}:
			return nil
		default:
			select {
			case <-c.priors:
			default:
			}
		}
	}
}

// Snapshot returns a copy of the particle population and the latest
// estimate for read-only consumers (rendering, API). Safe to call from
// any goroutine; blocks at most one cycle stage.
func (c *Controller) Snapshot() ([]Particle, Estimate) {
	c.beliefMu.Lock()
	defer c.beliefMu.Unlock()
	return c.particles.Snapshot(), c.lastEst
}

// LastEstimate returns the most recently published estimate.
func (c *Controller) LastEstimate() Estimate {
	c.beliefMu.Lock()
	defer c.beliefMu.Unlock()
	return c.lastEst
}

// Run drives the filter loop until the context is cancelled. Input is
// consumed in arrival order; a burst of controls is coalesced into one
// prediction. Cancellation is honored between cycles, never inside
// one, so the particle set is always either pre-cycle or post-cycle
// state.
func (c *Controller) Run(ctx context.Context) error {
	monitoring.Logf("mcl: session %s starting: %d particles, %d workers",
		c.sessionID, c.cfg.NumParticles, c.cfg.workerCount())

	var reestimate <-chan time.Time
	if c.cfg.ReestimateInterval > 0 {
		t := time.NewTicker(c.cfg.ReestimateInterval)
		defer t.Stop()
		reestimate = t.C
	}

	statsTicker := time.NewTicker(time.Minute)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()

		case pr := <-c.priors:
			if err := c.applyPrior(pr); err != nil {
				monitoring.Logf("mcl: prior reseed failed: %v", err)
			}

		case ctrl := <-c.controls:
			c.predict(c.coalesceControls(ctrl))
			// If a scan is already waiting, finish the cycle now rather
			// than letting prediction drift accumulate.
			select {
			case s := <-c.scans:
				c.cycle(s)
			default:
				c.publishEstimate(time.Now())
			}

		case s := <-c.scans:
			c.cycle(s)

		case <-reestimate:
			c.publishEstimate(time.Now())

		case <-statsTicker.C:
			c.logStats()
		}
	}
}

// Step runs one synchronous predict/update cycle outside the Run
// loop and returns the resulting estimate. The simulator and the
// deterministic end-to-end tests drive the filter in lockstep through
// this; it must not be called concurrently with Run.
func (c *Controller) Step(ctrl *Control, s *scan.Scan) Estimate {
	select {
	case pr := <-c.priors:
		if err := c.applyPrior(pr); err != nil {
			monitoring.Logf("mcl: prior reseed failed: %v", err)
		}
	default:
	}
	if ctrl != nil {
		c.predict(*ctrl)
	}
	if s != nil {
		c.cycle(s)
	} else {
		c.publishEstimate(time.Now())
	}
	return c.LastEstimate()
}

// coalesceControls drains whatever controls queued while the previous
// cycle ran and folds them into one delta.
func (c *Controller) coalesceControls(first Control) Control {
	ctrl := first
	for {
		select {
		case next := <-c.controls:
			ctrl = ctrl.add(next)
		default:
			return ctrl
		}
	}
}

func (c *Controller) predict(ctrl Control) {
	c.beliefMu.Lock()
	err := c.motion.Predict(c.particles, ctrl, c.pool)
	c.beliefMu.Unlock()
	if err != nil {
		monitoring.Logf("mcl: dropping control: %v", err)
	}
}

// cycle runs update -> resample check -> estimate for one scan.
func (c *Controller) cycle(s *scan.Scan) {
	c.beliefMu.Lock()
	err := c.meas.Update(c.particles, s, c.pool)
	resampled := false
	if c.resampler.Needed(c.particles) {
		c.resampler.Resample(c.particles, c.rng)
		resampled = true
	}
	c.beliefMu.Unlock()

	switch {
	case errors.Is(err, ErrDegenerateWeights):
		c.degenerations.Add(1)
		monitoring.Logf("mcl: measurement update degenerated, weights reset to uniform")
	case errors.Is(err, ErrEmptyScan):
		monitoring.Debugf("mcl: scan at %v had no valid beams, re-estimating from last weights", s.Stamp)
	case err != nil:
		monitoring.Logf("mcl: measurement update failed: %v", err)
	}
	if resampled {
		c.resamples.Add(1)
	}

	c.cycles.Add(1)
	c.publishEstimate(s.Stamp)
}

func (c *Controller) publishEstimate(stamp time.Time) {
	c.beliefMu.Lock()
	est := c.estimator.Estimate(c.particles, stamp)
	c.lastEst = est
	c.beliefMu.Unlock()
	for _, p := range c.publishers {
		p.Publish(est)
	}
}

func (c *Controller) applyPrior(pr prior) error {
	ps, err := NewFromPrior(c.cfg.NumParticles, pr.pose, pr.xySigma, pr.headingSigma, c.rng)
	if err != nil {
		return err
	}
	c.beliefMu.Lock()
	c.particles = ps
	c.beliefMu.Unlock()
	monitoring.Logf("mcl: belief reseeded around (%.2f, %.2f, %.2f)", pr.pose.X, pr.pose.Y, pr.pose.Heading)
	c.publishEstimate(time.Now())
	return nil
}

func (c *Controller) shutdown() {
	c.stopped.Store(true)
	c.logStats()
	monitoring.Logf("mcl: session %s stopped", c.sessionID)
}

func (c *Controller) logStats() {
	monitoring.Logf("mcl: session %s: cycles=%d resamples=%d degenerations=%d dropped_controls=%d dropped_scans=%d ess=%.1f",
		c.sessionID, c.cycles.Load(), c.resamples.Load(), c.degenerations.Load(),
		c.droppedControls.Load(), c.droppedScans.Load(), c.LastEstimate().ESS)
}
