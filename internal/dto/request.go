package dto

type StartRunRequest struct {
	SourceFile string `json:"source_file" binding:"required"`
	StartRow   int    `json:"start_row" binding:"gte=0"`
	RowCount   *int   `json:"row_count" binding:"omitempty,gte=0"`
}

type RunListQuery struct {
	Limit int `form:"limit"`
}

type ReportListQuery struct {
	Status   string `form:"status"`
	Country  string `form:"country"`
	Year     string `form:"year"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

type ArtifactQuery struct {
	Mode string `form:"mode"`
}
