package posedb

import (
	"encoding/json"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pose.report/internal/monitoring"
)

// AttachDebugRoutes mounts the database debug surface on mux: a
// tailsql console under /debug/tailsql/ and a JSON stats endpoint
// under /debug/db-stats.
func (p *PoseDB) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("posedb: failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+p.path, p.DB, &tailsql.DBOptions{
		Label: "Pose DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Pose store row counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats := struct {
			Runs  int64 `json:"runs"`
			Poses int64 `json:"poses"`
		}{}
		if err := p.QueryRow("SELECT COUNT(*) FROM runs").Scan(&stats.Runs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := p.QueryRow("SELECT COUNT(*) FROM poses").Scan(&stats.Poses); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}))
}
