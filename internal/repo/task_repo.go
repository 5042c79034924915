package repo

import (
	"PdfVault/model"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskRepo persists RunningTask progress records.
type TaskRepo struct {
	db *gorm.DB
}

// NewTaskRepo builds a TaskRepo on db.
func NewTaskRepo(db *gorm.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// Create inserts a new task.
func (r *TaskRepo) Create(ctx context.Context, task *model.RunningTask) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Get returns the task or ErrTaskNotFound.
func (r *TaskRepo) Get(ctx context.Context, taskID string) (*model.RunningTask, error) {
	var task model.RunningTask
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return &task, nil
}

// FindRunning returns the running task for sourceFile, or nil.
func (r *TaskRepo) FindRunning(ctx context.Context, sourceFile string) (*model.RunningTask, error) {
	var tasks []model.RunningTask
	err := r.db.WithContext(ctx).
		Where("running_file = ? AND status = ?", sourceFile, model.TaskRunning).
		Limit(1).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

// List returns the most recent tasks first.
func (r *TaskRepo) List(ctx context.Context, limit int) ([]model.RunningTask, error) {
	if limit <= 0 {
		limit = 20
	}
	var tasks []model.RunningTask
	err := r.db.WithContext(ctx).
		Order("start_time DESC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// UpdateProgress writes counters while the task is running. It reports
// false when the task is no longer running (cancelled or finished).
func (r *TaskRepo) UpdateProgress(ctx context.Context, taskID string, processed int, results string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.RunningTask{}).
		Where("task_id = ? AND status = ?", taskID, model.TaskRunning).
		Updates(map[string]interface{}{
			"processed_rows": processed,
			"results":        results,
		})
	if res.Error != nil {
		return false, fmt.Errorf("update progress %s: %w", taskID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Finish writes the final counters and end time. A running task becomes
// finished; a cancelled task keeps its status.
func (r *TaskRepo) Finish(ctx context.Context, taskID string, processed int, results string, endTime time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.RunningTask{}).
			Where("task_id = ?", taskID).
			Updates(map[string]interface{}{
				"processed_rows": processed,
				"results":        results,
				"end_time":       &endTime,
			})
		if res.Error != nil {
			return fmt.Errorf("finish task %s: %w", taskID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		return tx.Model(&model.RunningTask{}).
			Where("task_id = ? AND status = ?", taskID, model.TaskRunning).
			Update("status", model.TaskFinished).Error
	})
}

// Cancel flips a running task to cancelled. It returns the status the task
// had and whether it was changed.
func (r *TaskRepo) Cancel(ctx context.Context, taskID string) (string, bool, error) {
	res := r.db.WithContext(ctx).Model(&model.RunningTask{}).
		Where("task_id = ? AND status = ?", taskID, model.TaskRunning).
		Update("status", model.TaskCancelled)
	if res.Error != nil {
		return "", false, fmt.Errorf("cancel task %s: %w", taskID, res.Error)
	}
	if res.RowsAffected > 0 {
		return model.TaskRunning, true, nil
	}
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return "", false, err
	}
	return task.Status, false, nil
}
