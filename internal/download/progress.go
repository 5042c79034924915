package download

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTaskNotRunning means the task record left the running state, usually
// because it was cancelled from outside.
var ErrTaskNotRunning = errors.New("task is no longer running")

// Progress receives cumulative counters from a run.
type Progress interface {
	Start(ctx context.Context, c Counters) error
	MaybeFlush(ctx context.Context, c Counters) (bool, error)
	Finish(ctx context.Context, c Counters) error
}

// TaskStore is the progress sink of a run.
type TaskStore interface {
	UpdateProgress(ctx context.Context, taskID string, processed int, results string) (bool, error)
	Finish(ctx context.Context, taskID string, processed int, results string, endTime time.Time) error
}

const DefaultFlushInterval = time.Second

// Reporter writes counters to the task record at most once per interval.
type Reporter struct {
	store    TaskStore
	taskID   string
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastWrite time.Time
}

// NewReporter builds a Reporter for taskID.
func NewReporter(store TaskStore, taskID string, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Reporter{
		store:    store,
		taskID:   taskID,
		interval: interval,
		now:      time.Now,
	}
}

// Start writes the initial counters unconditionally.
func (r *Reporter) Start(ctx context.Context, c Counters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(ctx, c)
}

// MaybeFlush writes c if the interval has passed since the last write.
func (r *Reporter) MaybeFlush(ctx context.Context, c Counters) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastWrite.IsZero() && r.now().Sub(r.lastWrite) < r.interval {
		return false, nil
	}
	if err := r.write(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

// Finish writes the final counters and closes the task.
func (r *Reporter) Finish(ctx context.Context, c Counters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if err := r.store.Finish(ctx, r.taskID, c.ProcessedRows, c.JSON(), now); err != nil {
		return err
	}
	r.lastWrite = now
	return nil
}

func (r *Reporter) write(ctx context.Context, c Counters) error {
	running, err := r.store.UpdateProgress(ctx, r.taskID, c.ProcessedRows, c.JSON())
	if err != nil {
		return err
	}
	r.lastWrite = r.now()
	if !running {
		return ErrTaskNotRunning
	}
	return nil
}
