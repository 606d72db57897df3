// Package api exposes the localization daemon's HTTP surface: the
// current pose, the particle cloud, prior injection, and tuning
// parameters.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/monitoring"
	"github.com/banshee-data/pose.report/internal/posedb"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Filter is the controller surface the API serves. Implemented by
// mcl.Controller.
type Filter interface {
	Snapshot() ([]mcl.Particle, mcl.Estimate)
	LastEstimate() mcl.Estimate
	SetPrior(pose geom.Pose, xySigma, headingSigma float64) error
	SessionID() uuid.UUID
}

// RunStore lists recorded runs. Implemented by posedb.PoseDB; nil
// disables the /api/runs endpoint.
type RunStore interface {
	Runs() ([]posedb.Run, error)
}

// Run mirrors one stored run row for the API.
type Run struct {
	ID         uuid.UUID  `json:"run_id"`
	MapName    string     `json:"map_name"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Server struct {
	filter Filter
	params *ParamStore
	runs   RunStore
}

func NewServer(filter Filter, params *ParamStore, runs RunStore) *Server {
	return &Server{
		filter: filter,
		params: params,
		runs:   runs,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// AttachRoutes registers the API handlers on mux.
func (s *Server) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/pose", s.showPose)
	mux.HandleFunc("/api/particles", s.showParticles)
	mux.HandleFunc("/api/prior", s.setPrior)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/healthz", s.healthz)
}

// ServeMux returns a mux with all API routes attached.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.AttachRoutes(mux)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type poseResponse struct {
	SessionID uuid.UUID    `json:"session_id"`
	Estimate  mcl.Estimate `json:"estimate"`
}

func (s *Server) showPose(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := poseResponse{
		SessionID: s.filter.SessionID(),
		Estimate:  s.filter.LastEstimate(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write pose")
		return
	}
}

type particlesResponse struct {
	Estimate  mcl.Estimate   `json:"estimate"`
	Particles []mcl.Particle `json:"particles"`
}

func (s *Server) showParticles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	particles, est := s.filter.Snapshot()

	// A full cloud is large; honor an optional cap for dashboards.
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		if limit < len(particles) {
			stride := len(particles) / limit
			thinned := make([]mcl.Particle, 0, limit)
			for i := 0; i < len(particles) && len(thinned) < limit; i += stride {
				thinned = append(thinned, particles[i])
			}
			particles = thinned
		}
	}

	resp := particlesResponse{Estimate: est, Particles: particles}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write particles")
		return
	}
}

type priorRequest struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Heading      float64 `json:"heading"`
	XYSigma      float64 `json:"xy_sigma"`
	HeadingSigma float64 `json:"heading_sigma"`
}

func (s *Server) setPrior(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req priorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.XYSigma <= 0 || req.HeadingSigma <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "xy_sigma and heading_sigma must be positive")
		return
	}

	pose := geom.NewPose(req.X, req.Y, req.Heading)
	if err := s.filter.SetPrior(pose, req.XYSigma, req.HeadingSigma); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to set prior: %v", err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(config.FromConfig(s.params.Current()))

	case http.MethodPost:
		var overlay config.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&overlay); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
		merged, err := s.params.Update(&overlay)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		json.NewEncoder(w).Encode(config.FromConfig(merged))

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.runs == nil {
		s.writeJSONError(w, http.StatusNotFound, "run store not configured")
		return
	}

	stored, err := s.runs.Runs()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list runs: %v", err))
		return
	}
	runs := make([]Run, len(stored))
	for i, r := range stored {
		runs[i] = Run{
			ID:         r.ID,
			MapName:    r.MapName,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		}
	}
	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write runs")
		return
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":     "ok",
		"session_id": s.filter.SessionID().String(),
	})
}
