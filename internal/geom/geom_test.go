package geom

import (
	"math"
	"testing"
)

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"pi wraps to -pi", math.Pi, -math.Pi},
		{"minus pi stays", -math.Pi, -math.Pi},
		{"two pi", 2 * math.Pi, 0},
		{"three half pi", 1.5 * math.Pi, -0.5 * math.Pi},
		{"negative three half pi", -1.5 * math.Pi, 0.5 * math.Pi},
		{"large positive", 7 * math.Pi, -math.Pi},
		{"large negative", -7 * math.Pi, -math.Pi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeAngle(tt.in)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("NormalizeAngle(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAngleDiffWrapsAtBoundary(t *testing.T) {
	// Just either side of the +-pi seam: the short way round is 0.2 rad.
	got := AngleDiff(math.Pi-0.1, -math.Pi+0.1)
	if math.Abs(got - -0.2) > 1e-12 {
		t.Errorf("AngleDiff across seam = %v, want -0.2", got)
	}
}

func TestTransformByRotatesDeltaIntoHeadingFrame(t *testing.T) {
	// Robot facing +Y; a 1m forward step moves it along +Y.
	p := NewPose(2, 3, math.Pi/2)
	got := p.TransformBy(Pose{Point: Point{X: 1}, Heading: 0})
	if math.Abs(got.X-2) > 1e-12 || math.Abs(got.Y-4) > 1e-12 {
		t.Errorf("forward step from heading pi/2: got (%v,%v), want (2,4)", got.X, got.Y)
	}

	// Composed heading wraps.
	p = NewPose(0, 0, math.Pi-0.1)
	got = p.TransformBy(Pose{Heading: 0.2})
	if math.Abs(got.Heading - (-math.Pi + 0.1)) > 1e-12 {
		t.Errorf("heading composition = %v, want %v", got.Heading, -math.Pi+0.1)
	}
}

func TestPointDist(t *testing.T) {
	if d := (Point{0, 0}).Dist(Point{3, 4}); d != 5 {
		t.Errorf("Dist = %v, want 5", d)
	}
}

func TestHeadingTo(t *testing.T) {
	p := NewPose(1, 1, 0)
	if b := p.HeadingTo(Point{1, 2}); math.Abs(b-math.Pi/2) > 1e-12 {
		t.Errorf("HeadingTo = %v, want pi/2", b)
	}
}
