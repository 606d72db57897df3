package lidario

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/pose.report/internal/scan"
	"github.com/banshee-data/pose.report/internal/serialmux"
)

func startDriver(t *testing.T, cfg DriverConfig) (*Driver, *serialmux.MockSerialPort, func()) {
	t.Helper()
	mux, port := serialmux.NewMockSerialMux()
	driver, err := NewDriver(mux, cfg)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go mux.Monitor(ctx)
	go driver.Run(ctx)

	// Initialize writes the start sequence before subscribing; wait
	// for it so pushed lines are not lost to an empty subscriber set.
	deadline := time.Now().Add(time.Second)
	for !strings.Contains(port.Written(), "$MODE,SCAN") {
		if time.Now().After(deadline) {
			t.Fatal("driver never initialized the scan head")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)

	return driver, port, func() {
		cancel()
		port.Close()
	}
}

func waitScan(t *testing.T, d *Driver) *scan.Scan {
	t.Helper()
	select {
	case s := <-d.Scans():
		return s
	case <-time.After(time.Second):
		t.Fatal("no scan delivered")
		return nil
	}
}

func TestDriverParsesSweeps(t *testing.T) {
	driver, port, stop := startDriver(t, DriverConfig{MaxRange: 10})
	defer stop()

	if err := port.PushLine("$SCAN,1500000,0.0:2.5;1.5707963:4.0;3.1415926:-1"); err != nil {
		t.Fatalf("push: %v", err)
	}

	s := waitScan(t, driver)
	if got := s.Stamp.UnixMicro(); got != 1500000 {
		t.Errorf("stamp = %d, want 1500000", got)
	}
	if len(s.Beams) != 3 {
		t.Fatalf("beams = %d, want 3", len(s.Beams))
	}
	if s.ValidCount() != 2 {
		t.Errorf("valid beams = %d, want 2 (dropout marked invalid)", s.ValidCount())
	}
	if math.Abs(s.Beams[1].Range-4.0) > 1e-9 {
		t.Errorf("beam 1 range = %v, want 4.0", s.Beams[1].Range)
	}

	stats := driver.Stats()
	if stats.ScansParsed != 1 || stats.ParseErrors != 0 {
		t.Errorf("stats = %+v, want 1 parsed, 0 errors", stats)
	}
}

func TestDriverClampsToMaxRange(t *testing.T) {
	driver, port, stop := startDriver(t, DriverConfig{MaxRange: 3})
	defer stop()

	if err := port.PushLine("$SCAN,1,0.0:2.0;0.1:5.0"); err != nil {
		t.Fatalf("push: %v", err)
	}
	s := waitScan(t, driver)
	if s.Beams[0].Valid != true || s.Beams[1].Valid != false {
		t.Errorf("validity = [%v %v], want [true false]", s.Beams[0].Valid, s.Beams[1].Valid)
	}
}

func TestDriverSkipsMalformedLines(t *testing.T) {
	driver, port, stop := startDriver(t, DriverConfig{})
	defer stop()

	for _, line := range []string{
		"garbage",
		"$SCAN,notanumber,0.0:1.0",
		"$SCAN,2,0.0:1.0*FF", // checksum mismatch
	} {
		if err := port.PushLine(line); err != nil {
			t.Fatalf("push %q: %v", line, err)
		}
	}
	if err := port.PushLine("$SCAN,3,0.0:1.0"); err != nil {
		t.Fatalf("push: %v", err)
	}

	s := waitScan(t, driver)
	if got := s.Stamp.UnixMicro(); got != 3 {
		t.Errorf("delivered stamp = %d, want 3 (malformed lines skipped)", got)
	}

	stats := driver.Stats()
	if stats.ParseErrors != 3 {
		t.Errorf("parse errors = %d, want 3", stats.ParseErrors)
	}
	if stats.LinesReceived != 4 {
		t.Errorf("lines received = %d, want 4", stats.LinesReceived)
	}
}

func TestDriverDropsOldestWhenFull(t *testing.T) {
	driver, port, stop := startDriver(t, DriverConfig{QueueSize: 2})
	defer stop()

	for stamp := 1; stamp <= 5; stamp++ {
		line := scan.FormatLine(&scan.Scan{
			Stamp: time.UnixMicro(int64(stamp)),
			Beams: []scan.Beam{{Bearing: 0, Range: 1, Valid: true}},
		})
		if err := port.PushLine(line); err != nil {
			t.Fatalf("push %d: %v", stamp, err)
		}
	}

	// The first three sweeps are discarded once the queue fills;
	// wait for the drops before draining so the queue state is known.
	deadline := time.Now().Add(time.Second)
	for driver.Stats().ScansDropped < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("dropped %d scans, want 3", driver.Stats().ScansDropped)
		}
		time.Sleep(time.Millisecond)
	}

	first := waitScan(t, driver)
	if got := first.Stamp.UnixMicro(); got != 4 {
		t.Errorf("oldest surviving stamp = %d, want 4", got)
	}
	var last *scan.Scan
	for last == nil {
		if time.Now().After(deadline) {
			t.Fatal("freshest scan never queued")
		}
		last = driver.NextScan()
	}
	if got := last.Stamp.UnixMicro(); got != 5 {
		t.Errorf("freshest queued stamp = %d, want 5", got)
	}
	if driver.Stats().ScansDropped != 3 {
		t.Errorf("dropped = %d, want 3", driver.Stats().ScansDropped)
	}
	if driver.NextScan() != nil {
		t.Error("NextScan returned a scan from an empty queue")
	}
}

func TestDriverRejectsNilMux(t *testing.T) {
	if _, err := NewDriver(nil, DriverConfig{}); err == nil {
		t.Error("NewDriver accepted a nil mux")
	}
}
