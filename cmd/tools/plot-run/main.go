// Command plot-run renders PNG charts of a recorded localization run:
// the estimated path over the map walls, and ESS / covariance over
// time.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pose.report/internal/posedb"
	"github.com/banshee-data/pose.report/internal/worldmap"
)

var (
	dbFile  = flag.String("db", "poses.db", "Path to pose database")
	runFlag = flag.String("run", "", "Run ID to plot; empty plots the most recent run")
	mapPath = flag.String("map", "", "Map JSON to overlay on the path plot (optional)")
	outDir  = flag.String("out", ".", "Output directory for PNGs")
)

func main() {
	flag.Parse()

	db, err := posedb.NewPoseDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open pose database: %v", err)
	}
	defer db.Close()

	runID, err := pickRun(db)
	if err != nil {
		log.Fatal(err)
	}

	records, err := db.PosesForRun(runID)
	if err != nil {
		log.Fatalf("failed to load poses: %v", err)
	}
	if len(records) == 0 {
		log.Fatalf("run %s has no poses", runID)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	pathFile := filepath.Join(*outDir, fmt.Sprintf("run_%s_path.png", shortID(runID)))
	if err := plotPath(records, pathFile); err != nil {
		log.Fatalf("failed to plot path: %v", err)
	}
	healthFile := filepath.Join(*outDir, fmt.Sprintf("run_%s_health.png", shortID(runID)))
	if err := plotHealth(records, healthFile); err != nil {
		log.Fatalf("failed to plot health: %v", err)
	}

	log.Printf("wrote %s and %s (%d poses)", pathFile, healthFile, len(records))
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func pickRun(db *posedb.PoseDB) (uuid.UUID, error) {
	if *runFlag != "" {
		id, err := uuid.Parse(*runFlag)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid run ID %q: %w", *runFlag, err)
		}
		return id, nil
	}

	runs, err := db.Runs()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return uuid.Nil, fmt.Errorf("no runs recorded in %s", *dbFile)
	}
	return runs[0].ID, nil
}

// plotPath draws the estimated trajectory, optionally over the map
// walls.
func plotPath(records []posedb.PoseRecord, outFile string) error {
	p := plot.New()
	p.Title.Text = "Estimated Path"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	if *mapPath != "" {
		m, err := worldmap.Load(*mapPath)
		if err != nil {
			return fmt.Errorf("load map: %w", err)
		}
		if sm, ok := m.(*worldmap.SegmentMap); ok {
			for _, seg := range sm.Segments() {
				wall, err := plotter.NewLine(plotter.XYs{
					{X: seg.A.X, Y: seg.A.Y},
					{X: seg.B.X, Y: seg.B.Y},
				})
				if err != nil {
					return fmt.Errorf("wall line: %w", err)
				}
				wall.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
				p.Add(wall)
			}
		}
	}

	pts := make(plotter.XYs, len(records))
	var truthPts plotter.XYs
	for i, r := range records {
		pts[i] = plotter.XY{X: r.Pose.X, Y: r.Pose.Y}
		if r.Truth != nil {
			truthPts = append(truthPts, plotter.XY{X: r.Truth.X, Y: r.Truth.Y})
		}
	}
	path, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("path line: %w", err)
	}
	path.Color = color.RGBA{R: 31, G: 158, B: 137, A: 255}
	p.Add(path)
	p.Legend.Add("estimate", path)

	// Simulated runs also carry the ground-truth track.
	if len(truthPts) > 0 {
		truth, err := plotter.NewLine(truthPts)
		if err != nil {
			return fmt.Errorf("truth line: %w", err)
		}
		truth.Color = color.RGBA{R: 68, G: 1, B: 84, A: 255}
		truth.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(truth)
		p.Legend.Add("truth", truth)
	}
	p.Legend.Top = true

	return p.Save(10*vg.Inch, 10*vg.Inch, outFile)
}

// plotHealth draws ESS and planar covariance against time.
func plotHealth(records []posedb.PoseRecord, outFile string) error {
	p := plot.New()
	p.Title.Text = "Filter Health"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "ESS / Cov (scaled)"

	t0 := records[0].StampUS
	essPts := make(plotter.XYs, len(records))
	covPts := make(plotter.XYs, len(records))
	var errPts plotter.XYs
	for i, r := range records {
		t := float64(r.StampUS-t0) / 1e6
		essPts[i] = plotter.XY{X: t, Y: r.ESS}
		// Scaled so both series read on one axis.
		covPts[i] = plotter.XY{X: t, Y: (r.Cov[0] + r.Cov[1]) * 1000}
		if r.Err != nil {
			errPts = append(errPts, plotter.XY{X: t, Y: *r.Err * 100})
		}
	}

	essLine, err := plotter.NewLine(essPts)
	if err != nil {
		return fmt.Errorf("ess line: %w", err)
	}
	essLine.Color = color.RGBA{R: 53, G: 183, B: 121, A: 255}

	covLine, err := plotter.NewLine(covPts)
	if err != nil {
		return fmt.Errorf("cov line: %w", err)
	}
	covLine.Color = color.RGBA{R: 253, G: 231, B: 37, A: 255}

	p.Add(essLine, covLine)
	p.Legend.Add("ess", essLine)
	p.Legend.Add("cov_xy x1000", covLine)

	if len(errPts) > 0 {
		errLine, err := plotter.NewLine(errPts)
		if err != nil {
			return fmt.Errorf("err line: %w", err)
		}
		errLine.Color = color.RGBA{R: 220, G: 50, B: 47, A: 255}
		p.Add(errLine)
		p.Legend.Add("err x100 (cm)", errLine)
	}
	p.Legend.Top = true

	return p.Save(14*vg.Inch, 6*vg.Inch, outFile)
}
