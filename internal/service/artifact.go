package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"PdfVault/internal/repo"
	"PdfVault/internal/storage"
	"PdfVault/model"
	"PdfVault/utils"
)

var (
	ErrReportNotFound = repo.ErrReportNotFound
	ErrNotDownloaded  = errors.New("report has not been downloaded")
	ErrFileMissing    = errors.New("downloaded file is missing")
	ErrNotMirrored    = errors.New("report is not mirrored to object storage")
	ErrInvalidMode    = errors.New("invalid artifact mode")
)

// Artifact modes.
const (
	ModeDownload = "download"
	ModeLink     = "link"
	ModeLocal    = "local"
	ModePresign  = "presign"
)

const defaultPresignExpiry = 15 * time.Minute

// ReportReader looks up report records.
type ReportReader interface {
	GetByKey(ctx context.Context, brnumber string) (*model.ReportRecord, error)
}

// Artifact is what a report resolves to in one mode. Only the fields of the
// requested mode are set.
type Artifact struct {
	Key          string `json:"brnumber"`
	Mode         string `json:"mode"`
	Path         string `json:"-"`
	FileName     string `json:"file_name,omitempty"`
	URL          string `json:"url,omitempty"`
	PdfURL       string `json:"pdf_url,omitempty"`
	PdfBackupURL string `json:"pdf_backup_url,omitempty"`
}

// ArtifactService resolves the stored artifacts of reports.
type ArtifactService struct {
	reports ReportReader
	store   storage.Store
	bucket  string
	expiry  time.Duration
}

// NewArtifactService builds an ArtifactService. store may be nil when no
// object storage is configured; presign then reports ErrNotMirrored.
func NewArtifactService(reports ReportReader, store storage.Store, bucket string) *ArtifactService {
	return &ArtifactService{reports: reports, store: store, bucket: bucket, expiry: defaultPresignExpiry}
}

// Resolve returns the artifact of key in mode.
func (s *ArtifactService) Resolve(ctx context.Context, key, mode string) (*Artifact, error) {
	switch mode {
	case ModeDownload, ModeLink, ModeLocal, ModePresign:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	rec, err := s.reports.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	art := &Artifact{Key: rec.BRNumber, Mode: mode}

	if mode == ModeLink {
		art.PdfURL = rec.PdfURL
		art.PdfBackupURL = rec.PdfBackupURL
		return art, nil
	}
	if !rec.Downloaded() {
		return nil, ErrNotDownloaded
	}

	switch mode {
	case ModeDownload, ModeLocal:
		path := filepath.Join(rec.FileFolder, rec.FileName)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		art.FileName = rec.FileName
		if mode == ModeDownload {
			art.Path = path
		} else {
			art.URL = fileURL(path)
		}
	case ModePresign:
		if s.store == nil || rec.ObjectName == "" {
			return nil, ErrNotMirrored
		}
		if _, err := s.store.StatObject(ctx, s.bucket, rec.ObjectName); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotMirrored, err)
		}
		link, err := s.store.PresignedGetObject(ctx, s.bucket, rec.ObjectName, s.expiry, map[string]string{
			"response-content-type":        "application/pdf",
			"response-content-disposition": utils.AttachmentDisposition(rec.FileName),
		})
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", rec.ObjectName, err)
		}
		art.FileName = rec.FileName
		art.URL = link
	}
	return art, nil
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}
