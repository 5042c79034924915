package task

import (
	"context"
	"time"

	"PdfVault/internal/download"
	"PdfVault/model"
)

// RunStatus is the polled view of a task.
type RunStatus struct {
	TaskID         string            `json:"task_id"`
	Status         string            `json:"status"`
	SourceFile     string            `json:"source_file"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        *time.Time        `json:"end_time"`
	Elapsed        time.Duration     `json:"-"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	StartRow       int               `json:"start_row"`
	RowCount       int               `json:"row_count"`
	ProcessedRows  int               `json:"processed_rows"`
	Counters       download.Counters `json:"results"`
}

// Status returns the current state of a task or ErrTaskNotFound.
func (r *Runner) Status(ctx context.Context, taskID string) (*RunStatus, error) {
	t, err := r.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s := r.toStatus(t)
	return &s, nil
}

// List returns the most recent tasks.
func (r *Runner) List(ctx context.Context, limit int) ([]RunStatus, error) {
	tasks, err := r.tasks.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunStatus, 0, len(tasks))
	for i := range tasks {
		out = append(out, r.toStatus(&tasks[i]))
	}
	return out, nil
}

func (r *Runner) toStatus(t *model.RunningTask) RunStatus {
	end := r.now()
	if t.EndTime != nil {
		end = *t.EndTime
	}
	elapsed := end.Sub(t.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	// counters written by an older version may not parse; the row count
	// column is still authoritative
	counters, _ := download.ParseCounters(t.Results)
	counters.ProcessedRows = t.ProcessedRows
	return RunStatus{
		TaskID:         t.TaskID,
		Status:         t.Status,
		SourceFile:     t.RunningFile,
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		Elapsed:        elapsed,
		ElapsedSeconds: elapsed.Seconds(),
		StartRow:       t.StartRow,
		RowCount:       t.NumRows,
		ProcessedRows:  t.ProcessedRows,
		Counters:       counters,
	}
}
