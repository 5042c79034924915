package dto

// StartRunResponse is returned when a run is accepted.
type StartRunResponse struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	SourceFile string `json:"source_file"`
	StartRow   int    `json:"start_row"`
	RowCount   int    `json:"row_count"`
}

// CancelRunResponse reports the outcome of a cancel request.
type CancelRunResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
	Status    string `json:"status"`
}
