package mcl

import "errors"

var (
	// ErrDegenerateWeights reports that every particle weight collapsed
	// to numerical zero after a measurement update. The particle set has
	// been reset to uniform weights; the caller should log and continue.
	ErrDegenerateWeights = errors.New("mcl: all particle weights are zero, reset to uniform")

	// ErrInvalidControl reports a control input with non-finite fields.
	// The input is dropped and no particle state changes.
	ErrInvalidControl = errors.New("mcl: control input contains non-finite values")

	// ErrEmptyScan reports a measurement update attempted with no valid
	// beams. Weights are left untouched.
	ErrEmptyScan = errors.New("mcl: scan contains no valid beams")

	// ErrFilterStopped reports input offered to a controller after
	// shutdown.
	ErrFilterStopped = errors.New("mcl: filter is stopped")
)
