package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/worldmap"
)

type fakeSource struct {
	particles []mcl.Particle
	est       mcl.Estimate
}

func (f *fakeSource) Snapshot() ([]mcl.Particle, mcl.Estimate) { return f.particles, f.est }

func populatedSource(n int) *fakeSource {
	particles := make([]mcl.Particle, n)
	for i := range particles {
		particles[i] = mcl.Particle{
			Pose: geom.NewPose(float64(i)*0.01, float64(i)*0.02, 0),
			W:    1 / float64(n),
		}
	}
	return &fakeSource{
		particles: particles,
		est:       mcl.Estimate{Pose: geom.NewPose(1, 2, 0.3), ESS: float64(n)},
	}
}

func testWalls(t *testing.T) []worldmap.Segment {
	t.Helper()
	m, err := worldmap.NewBox(geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 10})
	if err != nil {
		t.Fatalf("box map: %v", err)
	}
	return m.Segments()
}

func get(ws *WebServer, path string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	ws.AttachRoutes(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestParticleChartRenders(t *testing.T) {
	ws := NewWebServer(populatedSource(500), testWalls(t), nil)

	w := get(ws, "/debug/localization/particles")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("content type = %q, want html", ct)
	}
	if !strings.Contains(w.Body.String(), "echarts") {
		t.Error("rendered page does not embed echarts")
	}
}

func TestParticleChartEmptyCloud(t *testing.T) {
	ws := NewWebServer(&fakeSource{}, nil, nil)
	if w := get(ws, "/debug/localization/particles"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestParticleChartHonorsMaxPoints(t *testing.T) {
	ws := NewWebServer(populatedSource(5000), nil, nil)
	w := get(ws, "/debug/localization/particles?max_points=100")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "stride=50") {
		t.Error("subtitle does not reflect downsampling stride")
	}
}

func TestHealthChart(t *testing.T) {
	stats := NewStatsTracker()
	ws := NewWebServer(populatedSource(10), nil, stats)

	// Before any estimate: 404.
	if w := get(ws, "/debug/localization/health"); w.Code != http.StatusNotFound {
		t.Errorf("empty history status = %d, want 404", w.Code)
	}

	for i := 0; i < 5; i++ {
		stats.Publish(mcl.Estimate{
			ESS:   float64(500 - i),
			Cov:   [3]float64{0.01, 0.01, 0},
			Stamp: time.UnixMicro(int64(i) * 1_000_000),
		})
	}
	if w := get(ws, "/debug/localization/health"); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestDashboard(t *testing.T) {
	ws := NewWebServer(populatedSource(10), nil, nil)
	w := get(ws, "/debug/localization")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	for _, frame := range []string{"/debug/localization/particles", "/debug/localization/health"} {
		if !strings.Contains(w.Body.String(), frame) {
			t.Errorf("dashboard missing iframe for %s", frame)
		}
	}
}

func TestStatsTrackerRingWraps(t *testing.T) {
	stats := NewStatsTracker()
	total := historyCapacity + 50
	for i := 0; i < total; i++ {
		stats.Publish(mcl.Estimate{ESS: float64(i)})
	}

	history := stats.History()
	if len(history) != historyCapacity {
		t.Fatalf("history length = %d, want %d", len(history), historyCapacity)
	}
	if history[0].ESS != 50 {
		t.Errorf("oldest sample ESS = %v, want 50", history[0].ESS)
	}
	if history[len(history)-1].ESS != float64(total-1) {
		t.Errorf("newest sample ESS = %v, want %d", history[len(history)-1].ESS, total-1)
	}
}
