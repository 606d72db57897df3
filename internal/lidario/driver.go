// Package lidario drives the scan head: it subscribes to the serial
// line stream, parses sweep frames, and hands complete scans to the
// localization pipeline over a bounded channel.
package lidario

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pose.report/internal/monitoring"
	"github.com/banshee-data/pose.report/internal/scan"
	"github.com/banshee-data/pose.report/internal/serialmux"
)

// DriverConfig contains configuration options for the scan driver.
type DriverConfig struct {
	// MaxRange marks readings beyond this distance invalid before
	// delivery. Defaults to 12m, the scan head's rated window.
	MaxRange float64
	// QueueSize bounds the parsed-scan channel. When the consumer
	// falls behind, the oldest queued scan is dropped.
	QueueSize int
	// LogInterval controls periodic stats logging. Zero disables it.
	LogInterval time.Duration
}

// Driver consumes sweep lines from a serial mux and produces parsed
// scans.
type Driver struct {
	mux serialmux.SerialMuxInterface
	cfg DriverConfig

	scans chan *scan.Scan

	received     atomic.Uint64
	parsed       atomic.Uint64
	parseErrors  atomic.Uint64
	droppedScans atomic.Uint64
}

// DriverStats is a point-in-time snapshot of driver counters.
type DriverStats struct {
	LinesReceived uint64
	ScansParsed   uint64
	ParseErrors   uint64
	ScansDropped  uint64
}

// NewDriver wraps a mux. The mux must be monitored separately; the
// driver only subscribes to its line stream.
func NewDriver(mux serialmux.SerialMuxInterface, cfg DriverConfig) (*Driver, error) {
	if mux == nil {
		return nil, errors.New("lidario: nil serial mux")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4
	}
	if cfg.MaxRange <= 0 {
		cfg.MaxRange = 12
	}
	return &Driver{
		mux:   mux,
		cfg:   cfg,
		scans: make(chan *scan.Scan, cfg.QueueSize),
	}, nil
}

// Scans returns the channel of parsed scans. The channel is closed
// when Run returns.
func (d *Driver) Scans() <-chan *scan.Scan { return d.scans }

// NextScan pops the oldest queued scan without blocking. Returns nil
// when no scan is waiting.
func (d *Driver) NextScan() *scan.Scan {
	select {
	case s := <-d.scans:
		return s
	default:
		return nil
	}
}

// Stats returns a snapshot of the driver counters.
func (d *Driver) Stats() DriverStats {
	return DriverStats{
		LinesReceived: d.received.Load(),
		ScansParsed:   d.parsed.Load(),
		ParseErrors:   d.parseErrors.Load(),
		ScansDropped:  d.droppedScans.Load(),
	}
}

// Run initializes the scan head and consumes lines until the context
// is cancelled. Malformed lines are counted and skipped; the stream
// recovers on the next well-formed sweep.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.scans)

	if err := d.mux.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize scan head: %w", err)
	}

	id, lines := d.mux.Subscribe()
	defer d.mux.Unsubscribe(id)

	var statsTick <-chan time.Time
	if d.cfg.LogInterval > 0 {
		ticker := time.NewTicker(d.cfg.LogInterval)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	monitoring.Logf("lidario: scan head initialized, consuming sweeps")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-statsTick:
			s := d.Stats()
			monitoring.Logf("lidario: lines=%d scans=%d parse_errors=%d dropped=%d",
				s.LinesReceived, s.ScansParsed, s.ParseErrors, s.ScansDropped)

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			d.received.Add(1)
			d.handleLine(line)
		}
	}
}

func (d *Driver) handleLine(line string) {
	s, err := scan.ParseLine(line, d.cfg.MaxRange)
	if err != nil {
		d.parseErrors.Add(1)
		monitoring.Debugf("lidario: dropping malformed line: %v", err)
		return
	}
	d.parsed.Add(1)

	for {
		select {
		case d.scans <- s:
			return
		default:
		}
		// Queue full: drop the oldest scan so the consumer always
		// sees the freshest sweep.
		select {
		case <-d.scans:
			d.droppedScans.Add(1)
		default:
		}
	}
}
