// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code
// duplication across test files.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/pose.report/internal/geom"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertStatusCode fails the test when an HTTP handler responded with
// an unexpected status.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status = %d, want %d", got, want)
	}
}

// AssertInDelta checks that got is within delta of want.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > delta {
		t.Errorf("value = %v, want %v ± %v", got, want, delta)
	}
}

// AssertPoseNear checks that two poses agree within xyTol meters and
// headingTol radians, treating headings as circular.
func AssertPoseNear(t *testing.T, got, want geom.Pose, xyTol, headingTol float64) {
	t.Helper()
	if d := got.Point.Dist(want.Point); d > xyTol {
		t.Errorf("pose position = (%v, %v), want (%v, %v): off by %v m",
			got.X, got.Y, want.X, want.Y, d)
	}
	if d := math.Abs(geom.AngleDiff(got.Heading, want.Heading)); d > headingTol {
		t.Errorf("pose heading = %v, want %v: off by %v rad", got.Heading, want.Heading, d)
	}
}
