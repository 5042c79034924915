package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"PdfVault/internal/repo"
	"PdfVault/model"
)

var ErrInvalidFilter = errors.New("invalid report filter")

// ReportQuery is the read side of the report store.
type ReportQuery interface {
	ReportReader
	List(ctx context.Context, filter repo.ReportFilter, page, pageSize int) ([]model.ReportRecord, int64, error)
}

// ReportPage is one page of report records.
type ReportPage struct {
	Items    []model.ReportRecord `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// ReportService lists and looks up download outcomes.
type ReportService struct {
	reports ReportQuery
}

func NewReportService(reports ReportQuery) *ReportService {
	return &ReportService{reports: reports}
}

// Get returns the record of key or ErrReportNotFound.
func (s *ReportService) Get(ctx context.Context, key string) (*model.ReportRecord, error) {
	return s.reports.GetByKey(ctx, key)
}

// List returns one page of records. Status is matched case-insensitively
// against SUCCESS and FAILURE.
func (s *ReportService) List(ctx context.Context, filter repo.ReportFilter, page, pageSize int) (*ReportPage, error) {
	filter.Status = strings.ToUpper(strings.TrimSpace(filter.Status))
	switch filter.Status {
	case "", model.DownloadSuccess, model.DownloadFailure:
	default:
		return nil, fmt.Errorf("%w: status %q", ErrInvalidFilter, filter.Status)
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}
	items, total, err := s.reports.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &ReportPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}
