package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/posedb"
	"github.com/banshee-data/pose.report/internal/testutil"
)

type stubFilter struct {
	id        uuid.UUID
	est       mcl.Estimate
	particles []mcl.Particle
	priors    []geom.Pose
	priorErr  error
}

func (f *stubFilter) Snapshot() ([]mcl.Particle, mcl.Estimate) { return f.particles, f.est }
func (f *stubFilter) LastEstimate() mcl.Estimate               { return f.est }
func (f *stubFilter) SessionID() uuid.UUID                     { return f.id }
func (f *stubFilter) SetPrior(pose geom.Pose, xySigma, headingSigma float64) error {
	if f.priorErr != nil {
		return f.priorErr
	}
	f.priors = append(f.priors, pose)
	return nil
}

type stubRunStore struct {
	runs []posedb.Run
	err  error
}

func (s *stubRunStore) Runs() ([]posedb.Run, error) { return s.runs, s.err }

func newTestServer(t *testing.T, filter *stubFilter, runs RunStore) *Server {
	t.Helper()
	params, err := NewParamStore(mcl.DefaultConfig())
	if err != nil {
		t.Fatalf("param store: %v", err)
	}
	return NewServer(filter, params, runs)
}

func defaultStubFilter() *stubFilter {
	return &stubFilter{
		id: uuid.New(),
		est: mcl.Estimate{
			Pose:  geom.NewPose(1, 2, 0.5),
			ESS:   800,
			Stamp: time.UnixMicro(42),
		},
		particles: []mcl.Particle{
			{Pose: geom.NewPose(1, 2, 0.5), W: 0.6},
			{Pose: geom.NewPose(1.1, 2.1, 0.4), W: 0.4},
		},
	}
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, req)
	return w
}

func TestShowPose(t *testing.T) {
	filter := defaultStubFilter()
	s := newTestServer(t, filter, nil)

	w := doRequest(s, http.MethodGet, "/api/pose", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp poseResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != filter.id {
		t.Errorf("session = %s, want %s", resp.SessionID, filter.id)
	}
	if resp.Estimate.Pose != filter.est.Pose {
		t.Errorf("pose = %+v, want %+v", resp.Estimate.Pose, filter.est.Pose)
	}

	if w := doRequest(s, http.MethodPost, "/api/pose", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/pose = %d, want 405", w.Code)
	}
}

func TestShowParticles(t *testing.T) {
	s := newTestServer(t, defaultStubFilter(), nil)

	w := doRequest(s, http.MethodGet, "/api/particles", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp particlesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Particles) != 2 {
		t.Errorf("particles = %d, want 2", len(resp.Particles))
	}

	if w := doRequest(s, http.MethodGet, "/api/particles?limit=1", ""); w.Code != http.StatusOK {
		t.Errorf("limited request = %d, want 200", w.Code)
	} else {
		resp = particlesResponse{}
		json.NewDecoder(w.Body).Decode(&resp)
		if len(resp.Particles) != 1 {
			t.Errorf("limited particles = %d, want 1", len(resp.Particles))
		}
	}

	if w := doRequest(s, http.MethodGet, "/api/particles?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", w.Code)
	}
}

func TestSetPrior(t *testing.T) {
	filter := defaultStubFilter()
	s := newTestServer(t, filter, nil)

	body := `{"x": 3, "y": 4, "heading": 1.2, "xy_sigma": 0.5, "heading_sigma": 0.2}`
	w := doRequest(s, http.MethodPost, "/api/prior", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}
	if len(filter.priors) != 1 {
		t.Fatalf("priors delivered = %d, want 1", len(filter.priors))
	}
	if got := filter.priors[0]; got != geom.NewPose(3, 4, 1.2) {
		t.Errorf("prior pose = %+v", got)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"x": `, http.StatusBadRequest},
		{"missing sigmas", `{"x": 1, "y": 2}`, http.StatusBadRequest},
		{"negative sigma", `{"x":1,"y":2,"xy_sigma":-1,"heading_sigma":0.1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doRequest(s, http.MethodPost, "/api/prior", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	filter.priorErr = mcl.ErrFilterStopped
	body = `{"x":0,"y":0,"xy_sigma":1,"heading_sigma":1}`
	if w := doRequest(s, http.MethodPost, "/api/prior", body); w.Code != http.StatusInternalServerError {
		t.Errorf("stopped filter = %d, want 500", w.Code)
	}
}

func TestParamsRoundTrip(t *testing.T) {
	s := newTestServer(t, defaultStubFilter(), nil)

	w := doRequest(s, http.MethodGet, "/api/params", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET params = %d, want 200", w.Code)
	}
	var current config.TuningConfig
	if err := json.NewDecoder(w.Body).Decode(&current); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if current.NumParticles == nil || *current.NumParticles != 1000 {
		t.Errorf("num_particles = %v, want 1000", current.NumParticles)
	}

	w = doRequest(s, http.MethodPost, "/api/params", `{"num_particles": 500}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST params = %d, want 200: %s", w.Code, w.Body)
	}
	if got := s.params.Current().NumParticles; got != 500 {
		t.Errorf("stored num_particles = %d, want 500", got)
	}

	// A rejected update leaves the store untouched.
	w = doRequest(s, http.MethodPost, "/api/params", `{"num_particles": -5}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid update = %d, want 400", w.Code)
	}
	if got := s.params.Current().NumParticles; got != 500 {
		t.Errorf("num_particles after rejected update = %d, want 500", got)
	}
}

func TestListRuns(t *testing.T) {
	finished := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &stubRunStore{runs: []posedb.Run{
		{ID: uuid.New(), MapName: "warehouse", StartedAt: finished.Add(-time.Hour), FinishedAt: &finished},
	}}
	s := newTestServer(t, defaultStubFilter(), store)

	w := doRequest(s, http.MethodGet, "/api/runs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var runs []Run
	if err := json.NewDecoder(w.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].MapName != "warehouse" {
		t.Errorf("runs = %+v", runs)
	}

	store.err = errors.New("disk gone")
	if w := doRequest(s, http.MethodGet, "/api/runs", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("store error = %d, want 500", w.Code)
	}

	noStore := newTestServer(t, defaultStubFilter(), nil)
	if w := doRequest(noStore, http.MethodGet, "/api/runs", ""); w.Code != http.StatusNotFound {
		t.Errorf("no store = %d, want 404", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	filter := defaultStubFilter()
	s := newTestServer(t, filter, nil)

	w := doRequest(s, http.MethodGet, "/healthz", "")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["session_id"] != filter.id.String() {
		t.Errorf("healthz = %v", resp)
	}
}
