package model

import "time"

const (
	DownloadSuccess = "SUCCESS"
	DownloadFailure = "FAILURE"
)

// ReportRecord is the persisted download outcome for one catalog key.
type ReportRecord struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	BRNumber string `gorm:"column:brnumber;type:varchar(50);uniqueIndex;not null" json:"brnumber"`

	Title              string `gorm:"column:title;type:text" json:"title"`
	PublicationYear    string `gorm:"column:publication_year;type:text" json:"publication_year"`
	OrganizationName   string `gorm:"column:organization_name;type:text" json:"organization_name"`
	OrganizationType   string `gorm:"column:organization_type;type:text" json:"organization_type"`
	OrganizationSector string `gorm:"column:organization_sector;type:text" json:"organization_sector"`
	Country            string `gorm:"column:country;type:text" json:"country"`
	Region             string `gorm:"column:region;type:text" json:"region"`

	PdfURL       string `gorm:"column:pdf_url;type:text" json:"pdf_url"`
	PdfBackupURL string `gorm:"column:pdf_backup_url;type:text" json:"pdf_backup_url"`

	FileName   string `gorm:"column:file_name;type:text" json:"file_name"`
	FileFolder string `gorm:"column:file_folder;type:text" json:"file_folder"`
	ObjectName string `gorm:"column:object_name;type:varchar(255)" json:"object_name,omitempty"`

	DownloadStatus    string    `gorm:"column:download_status;type:varchar(16);index;not null" json:"download_status"`
	DownloadMessage   string    `gorm:"column:download_message;type:text" json:"download_message"`
	DownloadAttemptAt time.Time `gorm:"column:download_attempt_date" json:"download_attempt_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (ReportRecord) TableName() string {
	return "gri_pdfs"
}

// Downloaded reports whether the record points at a stored file.
func (r *ReportRecord) Downloaded() bool {
	return r.DownloadStatus == DownloadSuccess && r.FileName != ""
}
