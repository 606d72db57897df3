package posedb

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/monitoring"
)

const (
	recorderQueueSize = 256
	recorderBatchSize = 64
)

// Recorder implements mcl.Publisher by batching estimates into the
// pose store. Publish never blocks; when the queue is full the
// estimate is dropped and counted.
type Recorder struct {
	db            *PoseDB
	runID         uuid.UUID
	flushInterval time.Duration

	channel chan mcl.Estimate
	dropped atomic.Uint64
	stored  atomic.Uint64
}

// NewRecorder creates a recorder appending to the given run.
func NewRecorder(db *PoseDB, runID uuid.UUID, flushInterval time.Duration) *Recorder {
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Recorder{
		db:            db,
		runID:         runID,
		flushInterval: flushInterval,
		channel:       make(chan mcl.Estimate, recorderQueueSize),
	}
}

// Publish queues an estimate for storage. Non-blocking.
func (r *Recorder) Publish(est mcl.Estimate) {
	select {
	case r.channel <- est:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports estimates discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Stored reports estimates written to the database.
func (r *Recorder) Stored() uint64 { return r.stored.Load() }

// Run batches queued estimates into the store until the context is
// cancelled, then flushes what remains.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]PoseRecord, 0, recorderBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.db.InsertPoses(r.runID, batch); err != nil {
			monitoring.Logf("posedb: failed to store %d poses: %v", len(batch), err)
		} else {
			r.stored.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is queued so a clean shutdown loses
			// nothing.
			for {
				select {
				case est := <-r.channel:
					batch = append(batch, estimateRecord(est))
				default:
					flush()
					return ctx.Err()
				}
			}

		case est := <-r.channel:
			batch = append(batch, estimateRecord(est))
			if len(batch) >= recorderBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}
