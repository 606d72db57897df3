package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/worldmap"
)

// ParticleSource is the filter surface the dashboard reads.
// Implemented by mcl.Controller.
type ParticleSource interface {
	Snapshot() ([]mcl.Particle, mcl.Estimate)
}

// WebServer renders the localization debug charts.
type WebServer struct {
	filter ParticleSource
	walls  []worldmap.Segment
	stats  *StatsTracker
}

// NewWebServer builds the dashboard over a filter, the map walls (nil
// for grid maps), and an estimate history.
func NewWebServer(filter ParticleSource, walls []worldmap.Segment, stats *StatsTracker) *WebServer {
	return &WebServer{filter: filter, walls: walls, stats: stats}
}

// AttachRoutes registers the dashboard handlers on mux.
func (ws *WebServer) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/localization", ws.handleDashboard)
	mux.HandleFunc("/debug/localization/particles", ws.handleParticleChart)
	mux.HandleFunc("/debug/localization/health", ws.handleHealthChart)
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleParticleChart renders the particle cloud as an XY scatter
// colored by weight, with the map walls overlaid as line series.
// Query params:
//   - max_points (optional; default 2000) to reduce payload size
func (ws *WebServer) handleParticleChart(w http.ResponseWriter, r *http.Request) {
	particles, est := ws.filter.Snapshot()
	if len(particles) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no particles available")
		return
	}

	maxPoints := 2000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v >= 100 && v <= 50000 {
			maxPoints = v
		}
	}
	stride := 1
	if len(particles) > maxPoints {
		stride = (len(particles) + maxPoints - 1) / maxPoints
	}

	data := make([]opts.ScatterData, 0, len(particles)/stride+1)
	maxW := 0.0
	for i := 0; i < len(particles); i += stride {
		p := particles[i]
		if p.W > maxW {
			maxW = p.W
		}
		data = append(data, opts.ScatterData{Value: []interface{}{p.Pose.X, p.Pose.Y, p.W}})
	}
	if maxW == 0 {
		maxW = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Particle Cloud", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Particle Cloud",
			Subtitle: fmt.Sprintf("estimate=(%.2f, %.2f, %.2f) ess=%.0f points=%d stride=%d", est.Pose.X, est.Pose.Y, est.Pose.Heading, est.ESS, len(data), stride),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxW),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("particles", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	// Estimate marker on top of the cloud.
	scatter.AddSeries("estimate",
		[]opts.ScatterData{{Value: []interface{}{est.Pose.X, est.Pose.Y, maxW}}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}),
	)

	page := components.NewPage()
	page.AddCharts(scatter)
	if wallChart := ws.wallChart(); wallChart != nil {
		page.AddCharts(wallChart)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// wallChart draws the map walls so the cloud can be read in context.
// Returns nil when the map has no segment representation.
func (ws *WebServer) wallChart() *charts.Line {
	if len(ws.walls) == 0 {
		return nil
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Map Walls"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "X (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Y (m)"}),
	)
	for i, seg := range ws.walls {
		line.AddSeries(fmt.Sprintf("wall-%d", i), []opts.LineData{
			{Value: []interface{}{seg.A.X, seg.A.Y}},
			{Value: []interface{}{seg.B.X, seg.B.Y}},
		}, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line
}

// handleHealthChart renders ESS and planar covariance over time.
func (ws *WebServer) handleHealthChart(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no stats tracker available")
		return
	}
	history := ws.stats.History()
	if len(history) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no estimates recorded yet")
		return
	}

	x := make([]string, len(history))
	ess := make([]opts.LineData, len(history))
	cov := make([]opts.LineData, len(history))
	for i, s := range history {
		x[i] = s.At.Format("15:04:05.000")
		ess[i] = opts.LineData{Value: s.ESS}
		cov[i] = opts.LineData{Value: s.CovXY}
	}

	essLine := charts.NewLine()
	essLine.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Effective Sample Size", Subtitle: time.Now().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	essLine.SetXAxis(x).AddSeries("ess", ess)

	covLine := charts.NewLine()
	covLine.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Planar Covariance"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	covLine.SetXAxis(x).AddSeries("cov_xy", cov)

	page := components.NewPage()
	page.AddCharts(essLine, covLine)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head><title>Localization Debug</title>
<style>body{margin:0;background:#111;color:#eee;font-family:sans-serif} iframe{border:0;width:100%}</style>
</head>
<body>
<h2 style="padding:8px">Localization Debug</h2>
<iframe src="/debug/localization/particles" height="960"></iframe>
<iframe src="/debug/localization/health" height="800"></iframe>
</body>
</html>`

// handleDashboard renders a simple page with iframes to the debug
// charts.
func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}
