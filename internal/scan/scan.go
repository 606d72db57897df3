// Package scan defines the range-scan type exchanged between the LIDAR
// driver, the simulator, and the filter core, plus the wire parsers
// for the serial and UDP transports.
package scan

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidScan reports a scan frame that could not be decoded or
// fails basic sanity checks. Consumers drop the frame and keep their
// last-good state.
var ErrInvalidScan = errors.New("scan: invalid scan frame")

// Beam is a single range reading. Bearing is in the robot body frame,
// radians, counter-clockwise from the robot's forward axis.
type Beam struct {
	Bearing float64 `json:"bearing"`
	Range   float64 `json:"range"`
	Valid   bool    `json:"valid"`
}

// Scan is one full sensor sweep. Beams are ordered by bearing as
// produced by the sensor. Invalid beams (dropouts, out-of-range
// returns) stay in the slice with Valid=false so consumers can choose
// to skip or down-weight them.
type Scan struct {
	Stamp time.Time `json:"stamp"`
	Beams []Beam    `json:"beams"`
}

// ValidCount returns the number of usable beams.
func (s *Scan) ValidCount() int {
	n := 0
	for _, b := range s.Beams {
		if b.Valid {
			n++
		}
	}
	return n
}

// MarkInvalid flags beams whose range is non-positive, non-finite, or
// beyond maxRange. Called by transports after decoding so the filter
// never sees unsanitized readings.
func (s *Scan) MarkInvalid(maxRange float64) {
	for i := range s.Beams {
		b := &s.Beams[i]
		if b.Range <= 0 || math.IsNaN(b.Range) || math.IsInf(b.Range, 0) || b.Range > maxRange {
			b.Valid = false
		}
	}
}
