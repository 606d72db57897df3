package scan

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The serial wire format is one line per sweep:
//
//	$SCAN,<stamp_us>,<bearing>:<range>;<bearing>:<range>;...*<checksum>
//
// Bearings are radians, ranges meters. A range of -1 marks a dropout
// (no return within the sensor's window). The trailing *<checksum> is
// an NMEA-style XOR over the bytes between '$' and '*' and is optional
// on input.

// ParseLine decodes one serial scan line. maxRange is used to flag
// out-of-range readings as invalid. All decode failures wrap
// ErrInvalidScan so the driver can count and drop them uniformly.
func ParseLine(line string, maxRange float64) (*Scan, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$SCAN,") {
		return nil, fmt.Errorf("%w: missing $SCAN header", ErrInvalidScan)
	}
	body := line[1:]

	if idx := strings.LastIndexByte(body, '*'); idx >= 0 {
		want, err := strconv.ParseUint(body[idx+1:], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: bad checksum field %q", ErrInvalidScan, body[idx+1:])
		}
		if got := xorChecksum(body[:idx]); got != byte(want) {
			return nil, fmt.Errorf("%w: checksum mismatch: got %02X want %02X", ErrInvalidScan, got, want)
		}
		body = body[:idx]
	}

	parts := strings.SplitN(body, ",", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 fields, got %d", ErrInvalidScan, len(parts))
	}

	stampUS, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", ErrInvalidScan, parts[1])
	}

	readings := strings.Split(parts[2], ";")
	s := &Scan{
		Stamp: time.UnixMicro(stampUS),
		Beams: make([]Beam, 0, len(readings)),
	}
	for _, r := range readings {
		if r == "" {
			continue
		}
		bearing, rng, err := parseReading(r)
		if err != nil {
			return nil, err
		}
		s.Beams = append(s.Beams, Beam{Bearing: bearing, Range: rng, Valid: rng >= 0})
	}
	if len(s.Beams) == 0 {
		return nil, fmt.Errorf("%w: no readings", ErrInvalidScan)
	}
	s.MarkInvalid(maxRange)
	return s, nil
}

func parseReading(r string) (bearing, rng float64, err error) {
	i := strings.IndexByte(r, ':')
	if i < 0 {
		return 0, 0, fmt.Errorf("%w: reading %q has no separator", ErrInvalidScan, r)
	}
	bearing, err = strconv.ParseFloat(r[:i], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad bearing %q", ErrInvalidScan, r[:i])
	}
	rng, err = strconv.ParseFloat(r[i+1:], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad range %q", ErrInvalidScan, r[i+1:])
	}
	return bearing, rng, nil
}

// FormatLine encodes a scan as a serial line, with checksum. Used by
// the simulator and by tests to produce driver input.
func FormatLine(s *Scan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SCAN,%d,", s.Stamp.UnixMicro())
	for i, beam := range s.Beams {
		if i > 0 {
			b.WriteByte(';')
		}
		rng := beam.Range
		if !beam.Valid {
			rng = -1
		}
		fmt.Fprintf(&b, "%.4f:%.3f", beam.Bearing, rng)
	}
	payload := b.String()
	return fmt.Sprintf("$%s*%02X", payload, xorChecksum(payload))
}

func xorChecksum(s string) byte {
	var c byte
	for i := 0; i < len(s); i++ {
		c ^= s[i]
	}
	return c
}
