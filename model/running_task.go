package model

import "time"

const (
	TaskRunning   = "running"
	TaskFinished  = "finished"
	TaskCancelled = "cancelled"
)

// RowsToEnd is stored in NumRows when a run covers the rest of the file.
const RowsToEnd = -1

// RunningTask is the progress record of one coordinator run.
type RunningTask struct {
	TaskID      string `gorm:"column:task_id;type:varchar(36);primaryKey" json:"task_id"`
	Name        string `gorm:"column:name;type:varchar(50);not null" json:"name"`
	Status      string `gorm:"column:status;type:varchar(10);index;not null" json:"status"`
	RunningFile string `gorm:"column:running_file;type:varchar(255);index;not null" json:"running_file"`

	StartTime time.Time  `gorm:"column:start_time" json:"start_time"`
	EndTime   *time.Time `gorm:"column:end_time" json:"end_time"`

	StartRow      int `gorm:"column:start_row;not null" json:"start_row"`
	NumRows       int `gorm:"column:num_rows;not null" json:"num_rows"`
	ProcessedRows int `gorm:"column:processed_rows;default:0" json:"processed_rows"`

	Results string `gorm:"column:results;type:text" json:"results"`
}

// TableName returns the database table name.
func (RunningTask) TableName() string {
	return "running_tasks"
}
