package download

import (
	"context"
	"time"

	"PdfVault/model"
)

// ReportStore is the persistence the recorder needs.
type ReportStore interface {
	FindSuccess(ctx context.Context, brnumber string) (*model.ReportRecord, error)
	Upsert(ctx context.Context, rec *model.ReportRecord) error
}

// Recorder writes one outcome per catalog key.
type Recorder struct {
	store ReportStore
	now   func() time.Time
}

// NewRecorder builds a Recorder on store.
func NewRecorder(store ReportStore) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// PriorSuccess returns an earlier successful record for key, or nil.
func (r *Recorder) PriorSuccess(ctx context.Context, key string) (*model.ReportRecord, error) {
	return r.store.FindSuccess(ctx, key)
}

// Outcome is one resolved item as it is persisted.
type Outcome struct {
	Success    bool
	FileName   string
	Folder     string
	ObjectName string
	Message    string
}

// Record upserts the outcome of item. Failures never keep a file name or folder.
func (r *Recorder) Record(ctx context.Context, item *model.CatalogItem, out Outcome) error {
	rec := &model.ReportRecord{
		BRNumber:           item.Key,
		Title:              item.Meta.Title,
		PublicationYear:    item.Meta.PublicationYear,
		OrganizationName:   item.Meta.OrganizationName,
		OrganizationType:   item.Meta.OrganizationType,
		OrganizationSector: item.Meta.OrganizationSector,
		Country:            item.Meta.Country,
		Region:             item.Meta.Region,
		PdfURL:             item.PrimaryURL,
		PdfBackupURL:       item.BackupURL,
		DownloadMessage:    out.Message,
		DownloadAttemptAt:  r.now(),
	}
	if out.Success {
		rec.DownloadStatus = model.DownloadSuccess
		rec.FileName = out.FileName
		rec.FileFolder = out.Folder
		rec.ObjectName = out.ObjectName
	} else {
		rec.DownloadStatus = model.DownloadFailure
	}
	return r.store.Upsert(ctx, rec)
}
