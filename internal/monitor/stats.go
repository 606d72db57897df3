// Package monitor serves the localization debug dashboard: a live
// particle-cloud chart over the map walls and time-series charts of
// filter health.
package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/pose.report/internal/mcl"
)

const historyCapacity = 600 // ~10 minutes at one estimate per second

// EstimateSample is one point of the filter-health time series.
type EstimateSample struct {
	At      time.Time
	X       float64
	Y       float64
	Heading float64
	ESS     float64
	CovXY   float64 // cov_x + cov_y, the planar spread
}

// StatsTracker keeps a ring of recent estimates. It implements
// mcl.Publisher so the controller feeds it directly.
type StatsTracker struct {
	mu      sync.Mutex
	samples []EstimateSample
	next    int
	full    bool
}

// NewStatsTracker creates an empty tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{samples: make([]EstimateSample, historyCapacity)}
}

// Publish records one estimate. Never blocks.
func (t *StatsTracker) Publish(est mcl.Estimate) {
	sample := EstimateSample{
		At:      est.Stamp,
		X:       est.Pose.X,
		Y:       est.Pose.Y,
		Heading: est.Pose.Heading,
		ESS:     est.ESS,
		CovXY:   est.Cov[0] + est.Cov[1],
	}

	t.mu.Lock()
	t.samples[t.next] = sample
	t.next = (t.next + 1) % len(t.samples)
	if t.next == 0 {
		t.full = true
	}
	t.mu.Unlock()
}

// History returns the recorded samples, oldest first.
func (t *StatsTracker) History() []EstimateSample {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		out := make([]EstimateSample, t.next)
		copy(out, t.samples[:t.next])
		return out
	}
	out := make([]EstimateSample, 0, len(t.samples))
	out = append(out, t.samples[t.next:]...)
	out = append(out, t.samples[:t.next]...)
	return out
}
