package sim

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/worldmap"
)

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

func box(t *testing.T) worldmap.Map {
	t.Helper()
	m, err := worldmap.NewBox(geom.Point{}, geom.Point{X: 10, Y: 10})
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	return m
}

func TestMotionSensorNoiselessDelta(t *testing.T) {
	ms := NewMotionSensor(geom.NewPose(1, 1, 0), 0, 0, testRand(1))

	ctrl := ms.Step(geom.NewPose(2, 1, 0), time.Now())
	if math.Abs(ctrl.DX-1) > 1e-12 || math.Abs(ctrl.DY) > 1e-12 || math.Abs(ctrl.DTheta) > 1e-12 {
		t.Errorf("straight step delta = %+v, want dx=1", ctrl)
	}

	// Facing +Y, a +Y world move is a body-frame forward move.
	ms = NewMotionSensor(geom.NewPose(0, 0, math.Pi/2), 0, 0, testRand(1))
	ctrl = ms.Step(geom.NewPose(0, 2, math.Pi/2), time.Now())
	if math.Abs(ctrl.DX-2) > 1e-12 || math.Abs(ctrl.DY) > 1e-12 {
		t.Errorf("body-frame delta = %+v, want dx=2 dy=0", ctrl)
	}
}

func TestMotionSensorTracksHeadingWrap(t *testing.T) {
	ms := NewMotionSensor(geom.NewPose(0, 0, math.Pi-0.05), 0, 0, testRand(1))
	ctrl := ms.Step(geom.NewPose(0, 0, -math.Pi+0.05), time.Now())
	if math.Abs(ctrl.DTheta-0.1) > 1e-12 {
		t.Errorf("wrapped heading delta = %v, want 0.1", ctrl.DTheta)
	}
}

func TestRangeScannerNoiselessMatchesRayCast(t *testing.T) {
	m := box(t)
	rs, err := NewRangeScanner(m, 8, 12, 0, testRand(2))
	if err != nil {
		t.Fatalf("NewRangeScanner: %v", err)
	}
	truth := geom.NewPose(5, 5, 0)
	s := rs.Scan(truth, time.Now())
	if len(s.Beams) != 8 {
		t.Fatalf("beam count = %d, want 8", len(s.Beams))
	}
	for _, b := range s.Beams {
		if !b.Valid {
			t.Fatalf("beam %v invalid in closed box", b.Bearing)
		}
		want, err := m.RayCast(truth, truth.Heading+b.Bearing, 12)
		if err != nil {
			t.Fatalf("RayCast: %v", err)
		}
		if math.Abs(b.Range-want) > 1e-9 {
			t.Errorf("beam %v range = %v, want %v", b.Bearing, b.Range, want)
		}
	}
}

func TestRangeScannerMarksDropouts(t *testing.T) {
	// Single far wall: most bearings hit nothing within max range.
	m, err := worldmap.NewSegmentMap([]worldmap.Segment{
		{A: geom.Point{X: -50, Y: 40}, B: geom.Point{X: 50, Y: 40}},
	})
	if err != nil {
		t.Fatalf("NewSegmentMap: %v", err)
	}
	rs, err := NewRangeScanner(m, 16, 5, 0, testRand(3))
	if err != nil {
		t.Fatalf("NewRangeScanner: %v", err)
	}
	s := rs.Scan(geom.NewPose(0, 0, 0), time.Now())
	if s.ValidCount() != 0 {
		t.Errorf("far-wall scan has %d valid beams, want 0", s.ValidCount())
	}
}

func TestRangeScannerValidation(t *testing.T) {
	m := box(t)
	if _, err := NewRangeScanner(m, 0, 12, 0, testRand(1)); err == nil {
		t.Error("expected error for zero beams")
	}
	if _, err := NewRangeScanner(m, 8, 0, 0, testRand(1)); err == nil {
		t.Error("expected error for zero max range")
	}
}

func TestTrajectories(t *testing.T) {
	line := StraightLine{Start: geom.NewPose(1, 1, math.Pi/2), StepLen: 0.5}
	p := line.At(4)
	if math.Abs(p.X-1) > 1e-12 || math.Abs(p.Y-3) > 1e-12 {
		t.Errorf("line At(4) = %v, want (1,3)", p.Point)
	}

	circle := Circle{Center: geom.Point{X: 5, Y: 5}, Radius: 2, StepsPerLoop: 4}
	p = circle.At(1)
	if math.Abs(p.X-5) > 1e-9 || math.Abs(p.Y-7) > 1e-9 {
		t.Errorf("circle At(1) = %v, want (5,7)", p.Point)
	}
	if math.Abs(geom.AngleDiff(p.Heading, math.Pi)) > 1e-9 {
		t.Errorf("circle At(1) heading = %v, want pi", p.Heading)
	}
}
