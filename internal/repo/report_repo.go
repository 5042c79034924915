package repo

import (
	"PdfVault/model"
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrReportNotFound = errors.New("report not found")

// ReportRepo stores one download outcome per catalog key.
type ReportRepo struct {
	db *gorm.DB
}

// NewReportRepo builds a ReportRepo on db.
func NewReportRepo(db *gorm.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// GetByKey returns the record for brnumber or ErrReportNotFound.
func (r *ReportRepo) GetByKey(ctx context.Context, brnumber string) (*model.ReportRecord, error) {
	var rec model.ReportRecord
	err := r.db.WithContext(ctx).Where("brnumber = ?", brnumber).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", brnumber, err)
	}
	return &rec, nil
}

// FindSuccess returns the successful record for brnumber, or nil if there is none.
func (r *ReportRepo) FindSuccess(ctx context.Context, brnumber string) (*model.ReportRecord, error) {
	var recs []model.ReportRecord
	err := r.db.WithContext(ctx).
		Where("brnumber = ? AND download_status = ?", brnumber, model.DownloadSuccess).
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("find success %s: %w", brnumber, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// upsertColumns are overwritten when a record for the key already exists.
var upsertColumns = []string{
	"title",
	"publication_year",
	"organization_name",
	"organization_type",
	"organization_sector",
	"country",
	"region",
	"pdf_url",
	"pdf_backup_url",
	"file_name",
	"file_folder",
	"object_name",
	"download_status",
	"download_message",
	"download_attempt_date",
	"updated_at",
}

// Upsert inserts rec or overwrites the existing record with the same key
// in a single statement.
func (r *ReportRepo) Upsert(ctx context.Context, rec *model.ReportRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "brnumber"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("upsert report %s: %w", rec.BRNumber, err)
	}
	return nil
}

// ReportFilter narrows List results.
type ReportFilter struct {
	Status  string
	Country string
	Year    string
}

// List returns one page of records ordered by key, with the total count.
func (r *ReportRepo) List(ctx context.Context, filter ReportFilter, page, pageSize int) ([]model.ReportRecord, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}
	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&model.ReportRecord{})
		if filter.Status != "" {
			query = query.Where("download_status = ?", filter.Status)
		}
		if filter.Country != "" {
			query = query.Where("country = ?", filter.Country)
		}
		if filter.Year != "" {
			query = query.Where("publication_year = ?", filter.Year)
		}
		return query
	}
	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var recs []model.ReportRecord
	err := scoped().Order("brnumber ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&recs).Error
	return recs, total, err
}
