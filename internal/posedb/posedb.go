// Package posedb persists localization runs and their pose estimates
// in SQLite. One run per daemon session; poses are appended in
// batches so the filter cycle never waits on disk.
package posedb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/pose.report/internal/geom"
	"github.com/banshee-data/pose.report/internal/mcl"
)

// PoseDB wraps the SQLite handle for the pose store.
type PoseDB struct {
	*sql.DB
	path string
}

// Run is one localization session.
type Run struct {
	ID         uuid.UUID
	MapName    string
	Config     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// PoseRecord is one stored estimate. Truth and Err are set only for
// simulated runs, where the ground-truth pose is known.
type PoseRecord struct {
	StampUS int64
	Pose    geom.Pose
	Cov     [3]float64
	ESS     float64
	Truth   *geom.Pose
	Err     *float64
}

// NewPoseDB opens (creating if needed) the pose database at path and
// applies pending migrations.
func NewPoseDB(path string) (*PoseDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pose database: %w", err)
	}

	// WAL keeps readers (debug UI, reports) from blocking the
	// recorder's write batches.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	p := &PoseDB{DB: db, path: path}
	if err := p.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// CreateRun inserts a new run row and returns its ID.
func (p *PoseDB) CreateRun(mapName, config string, startedAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := p.Exec(
		`INSERT INTO runs (run_id, map_name, config, started_at) VALUES (?, ?, ?, ?)`,
		id.String(), mapName, config, startedAt.UTC(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's end time.
func (p *PoseDB) FinishRun(id uuid.UUID, finishedAt time.Time) error {
	res, err := p.Exec(
		`UPDATE runs SET finished_at = ? WHERE run_id = ?`,
		finishedAt.UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("failed to finish run: no run %s", id)
	}
	return err
}

// InsertPoses appends a batch of poses to a run in one transaction.
func (p *PoseDB) InsertPoses(runID uuid.UUID, records []PoseRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin pose batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO poses (run_id, stamp_us, x, y, heading, cov_x, cov_y, cov_heading, ess,
		                    truth_x, truth_y, truth_heading, err)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare pose insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var truthX, truthY, truthHeading, posErr interface{}
		if r.Truth != nil {
			truthX, truthY, truthHeading = r.Truth.X, r.Truth.Y, r.Truth.Heading
		}
		if r.Err != nil {
			posErr = *r.Err
		}
		if _, err := stmt.Exec(
			runID.String(), r.StampUS,
			r.Pose.X, r.Pose.Y, r.Pose.Heading,
			r.Cov[0], r.Cov[1], r.Cov[2], r.ESS,
			truthX, truthY, truthHeading, posErr,
		); err != nil {
			return fmt.Errorf("failed to insert pose: %w", err)
		}
	}
	return tx.Commit()
}

// RecordEstimate stores a single filter estimate. Prefer the batching
// Recorder on the live path.
func (p *PoseDB) RecordEstimate(runID uuid.UUID, est mcl.Estimate) error {
	return p.InsertPoses(runID, []PoseRecord{estimateRecord(est)})
}

// Runs lists all runs, newest first.
func (p *PoseDB) Runs() ([]Run, error) {
	rows, err := p.Query(
		`SELECT run_id, map_name, config, started_at, finished_at FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			idStr    string
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&idStr, &r.MapName, &r.Config, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("corrupt run_id %q: %w", idStr, err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PosesForRun returns a run's poses in stamp order.
func (p *PoseDB) PosesForRun(runID uuid.UUID) ([]PoseRecord, error) {
	rows, err := p.Query(
		`SELECT stamp_us, x, y, heading, cov_x, cov_y, cov_heading, ess,
		        truth_x, truth_y, truth_heading, err
		 FROM poses WHERE run_id = ? ORDER BY stamp_us ASC`,
		runID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PoseRecord
	for rows.Next() {
		var (
			r                            PoseRecord
			truthX, truthY, truthHeading sql.NullFloat64
			posErr                       sql.NullFloat64
		)
		if err := rows.Scan(
			&r.StampUS, &r.Pose.X, &r.Pose.Y, &r.Pose.Heading,
			&r.Cov[0], &r.Cov[1], &r.Cov[2], &r.ESS,
			&truthX, &truthY, &truthHeading, &posErr,
		); err != nil {
			return nil, err
		}
		if truthX.Valid && truthY.Valid && truthHeading.Valid {
			truth := geom.NewPose(truthX.Float64, truthY.Float64, truthHeading.Float64)
			r.Truth = &truth
		}
		if posErr.Valid {
			e := posErr.Float64
			r.Err = &e
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func estimateRecord(est mcl.Estimate) PoseRecord {
	return PoseRecord{
		StampUS: est.Stamp.UnixMicro(),
		Pose:    est.Pose,
		Cov:     est.Cov,
		ESS:     est.ESS,
	}
}
