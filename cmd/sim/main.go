// Command sim runs the particle filter closed-loop against a
// synthetic robot and reports tracking error. Runs can be recorded to
// the pose database for later plotting.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/posedb"
	"github.com/banshee-data/pose.report/internal/sim"
	"github.com/banshee-data/pose.report/internal/worldmap"
)

var (
	mapPath    = flag.String("map", "", "Path to map JSON; empty uses a built-in 10x10 box")
	dbFile     = flag.String("db", "", "Record the run to this pose database (optional)")
	tuningPath = flag.String("tuning", "", "Path to tuning JSON overrides (optional)")
	steps      = flag.Int("steps", 100, "Simulation steps")
	beams      = flag.Int("beams", 36, "Beams per synthetic scan")
	seed       = flag.Uint64("seed", 42, "Random seed for the truth side")
	trajectory = flag.String("trajectory", "circle", "Trajectory: line or circle")
	xyNoise    = flag.Float64("xy-noise", 0.05, "Odometry xy noise margin per step (m)")
	hdgNoise   = flag.Float64("heading-noise", 0.02, "Odometry heading noise margin per step (rad)")
	rangeNoise = flag.Float64("range-noise", 0.1, "Scanner range noise margin (m)")
)

func main() {
	flag.Parse()

	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		runMigrate(args[1:], *dbFile)
		return
	}

	worldMap, err := loadMap(*mapPath)
	if err != nil {
		log.Fatalf("failed to load map: %v", err)
	}

	cfg := mcl.DefaultConfig()
	if *tuningPath != "" {
		tuning, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning: %v", err)
		}
		cfg = tuning.Apply(cfg)
	}

	ctrl, err := mcl.NewController(cfg, worldMap)
	if err != nil {
		log.Fatalf("failed to create filter: %v", err)
	}

	traj, err := buildTrajectory(*trajectory, worldMap)
	if err != nil {
		log.Fatal(err)
	}

	// Seed the filter near the truth so the run measures tracking, not
	// global relocalization.
	start := traj.At(0)
	if err := ctrl.SetPrior(start, 0.3, 0.1); err != nil {
		log.Fatalf("failed to set prior: %v", err)
	}

	results, err := sim.Run(ctrl, worldMap, traj, sim.RunConfig{
		Steps:         *steps,
		Beams:         *beams,
		MaxRange:      cfg.Beam.MaxRange,
		MotionMargin:  *xyNoise,
		HeadingMargin: *hdgNoise,
		RangeMargin:   *rangeNoise,
		Seed:          *seed,
	})
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	report(results)

	if *dbFile != "" {
		if err := record(results, cfg); err != nil {
			log.Fatalf("failed to record run: %v", err)
		}
	}
}

func loadMap(path string) (worldmap.Map, error) {
	if path == "" {
		return worldmap.NewBox(geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 10})
	}
	return worldmap.Load(path)
}

func buildTrajectory(name string, m worldmap.Map) (sim.Trajectory, error) {
	min, max := m.Bounds()
	center := geom.Point{X: (min.X + max.X) / 2, Y: (min.Y + max.Y) / 2}
	span := math.Min(max.X-min.X, max.Y-min.Y)

	switch name {
	case "circle":
		return sim.Circle{Center: center, Radius: span / 4, StepsPerLoop: 120}, nil
	case "line":
		return sim.StraightLine{
			Start:   geom.NewPose(min.X+span/4, center.Y, 0),
			StepLen: (span / 2) / float64(*steps),
		}, nil
	default:
		return nil, fmt.Errorf("unknown trajectory %q: want line or circle", name)
	}
}

func report(results []sim.StepResult) {
	var sum, worst float64
	for _, r := range results {
		sum += r.Err
		if r.Err > worst {
			worst = r.Err
		}
	}
	mean := sum / float64(len(results))
	last := results[len(results)-1]
	fmt.Printf("steps=%d mean_err=%.3fm max_err=%.3fm final_err=%.3fm final_ess=%.0f\n",
		len(results), mean, worst, last.Err, last.Estimate.ESS)
}

func record(results []sim.StepResult, cfg mcl.Config) error {
	db, err := posedb.NewPoseDB(*dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	cfgJSON, _ := json.Marshal(cfg)
	mapName := *mapPath
	if mapName == "" {
		mapName = "builtin-box"
	}
	runID, err := db.CreateRun(mapName, string(cfgJSON), time.Now())
	if err != nil {
		return err
	}

	records := make([]posedb.PoseRecord, len(results))
	for i, r := range results {
		truth := r.Truth
		posErr := r.Err
		records[i] = posedb.PoseRecord{
			StampUS: r.Estimate.Stamp.UnixMicro(),
			Pose:    r.Estimate.Pose,
			Cov:     r.Estimate.Cov,
			ESS:     r.Estimate.ESS,
			Truth:   &truth,
			Err:     &posErr,
		}
	}
	if err := db.InsertPoses(runID, records); err != nil {
		return err
	}
	if err := db.FinishRun(runID, time.Now()); err != nil {
		return err
	}
	log.Printf("recorded run %s (%d poses) to %s", runID, len(records), *dbFile)
	return nil
}

func runMigrate(args []string, dbPath string) {
	if dbPath == "" {
		log.Fatal("migrate requires -db")
	}
	if len(args) < 1 {
		fmt.Println("Usage: sim -db <path> migrate <up|down|status>")
		os.Exit(1)
	}

	db, err := posedb.NewPoseDB(dbPath)
	if err != nil {
		log.Fatalf("failed to open pose database: %v", err)
	}
	defer db.Close()

	switch args[0] {
	case "up":
		if err := db.MigrateUp(); err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		log.Println("all migrations applied")
	case "down":
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		log.Println("rolled back one migration")
	case "status":
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			log.Fatalf("failed to read migration status: %v", err)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
	default:
		fmt.Printf("unknown migrate action %q\n", args[0])
		os.Exit(1)
	}
}
