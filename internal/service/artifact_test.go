package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PdfVault/internal/repo"
	"PdfVault/internal/storage"
	"PdfVault/model"
)

type presignStore struct {
	params  map[string]string
	err     error
	missing bool
}

func (p *presignStore) PutObject(context.Context, string, string, io.Reader, int64, storage.PutOptions) error {
	return nil
}

func (p *presignStore) StatObject(_ context.Context, _, object string) (storage.ObjectInfo, error) {
	if p.missing {
		return storage.ObjectInfo{}, errors.New("The specified key does not exist.")
	}
	return storage.ObjectInfo{ObjectName: object, Size: 8}, nil
}

func (p *presignStore) PresignedGetObject(_ context.Context, bucket, object string, _ time.Duration, params map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.params = params
	return "http://minio.local/" + bucket + "/" + object, nil
}

func setupReports(t *testing.T) (*repo.ReportRepo, string) {
	t.Helper()
	db, err := repo.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() { _ = repo.CloseDB(db) })
	reports := repo.NewReportRepo(db)
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "ok.pdf"), []byte("%PDF-1.4"), 0o644))

	ctx := context.Background()
	for _, rec := range []model.ReportRecord{
		{BRNumber: "OK", PdfURL: "http://a/ok.pdf", FileName: "ok.pdf", FileFolder: folder, ObjectName: "OK/ok.pdf", DownloadStatus: model.DownloadSuccess},
		{BRNumber: "GONE", PdfURL: "http://a/gone.pdf", FileName: "gone.pdf", FileFolder: folder, DownloadStatus: model.DownloadSuccess},
		{BRNumber: "BAD", PdfURL: "http://a/bad.pdf", PdfBackupURL: "http://b/bad.pdf", DownloadStatus: model.DownloadFailure, DownloadMessage: "bad status: 404 Not Found"},
	} {
		rec := rec
		rec.DownloadAttemptAt = time.Now()
		require.NoError(t, reports.Upsert(ctx, &rec))
	}
	return reports, folder
}

func TestResolveModes(t *testing.T) {
	reports, folder := setupReports(t)
	store := &presignStore{}
	svc := NewArtifactService(reports, store, "pdf-files")
	ctx := context.Background()

	art, err := svc.Resolve(ctx, "OK", ModeDownload)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(folder, "ok.pdf"), art.Path)
	assert.Equal(t, "ok.pdf", art.FileName)

	art, err = svc.Resolve(ctx, "OK", ModeLocal)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(art.URL, "file://"))
	assert.True(t, strings.HasSuffix(art.URL, "/ok.pdf"))

	art, err = svc.Resolve(ctx, "BAD", ModeLink)
	require.NoError(t, err)
	assert.Equal(t, "http://a/bad.pdf", art.PdfURL)
	assert.Equal(t, "http://b/bad.pdf", art.PdfBackupURL)

	art, err = svc.Resolve(ctx, "OK", ModePresign)
	require.NoError(t, err)
	assert.Equal(t, "http://minio.local/pdf-files/OK/ok.pdf", art.URL)
	assert.Equal(t, "attachment; filename=\"ok.pdf\"", store.params["response-content-disposition"])
}

func TestResolveErrors(t *testing.T) {
	reports, _ := setupReports(t)
	svc := NewArtifactService(reports, nil, "pdf-files")
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "NOPE", ModeLink)
	assert.ErrorIs(t, err, ErrReportNotFound)

	_, err = svc.Resolve(ctx, "OK", "zip")
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = svc.Resolve(ctx, "BAD", ModeDownload)
	assert.ErrorIs(t, err, ErrNotDownloaded)

	_, err = svc.Resolve(ctx, "BAD", ModeLocal)
	assert.ErrorIs(t, err, ErrNotDownloaded)

	_, err = svc.Resolve(ctx, "GONE", ModeDownload)
	assert.ErrorIs(t, err, ErrFileMissing)

	_, err = svc.Resolve(ctx, "OK", ModePresign)
	assert.ErrorIs(t, err, ErrNotMirrored)

	_, err = NewArtifactService(reports, &presignStore{}, "b").Resolve(ctx, "GONE", ModePresign)
	assert.ErrorIs(t, err, ErrNotMirrored)

	_, err = NewArtifactService(reports, &presignStore{missing: true}, "b").Resolve(ctx, "OK", ModePresign)
	assert.ErrorIs(t, err, ErrNotMirrored)

	_, err = NewArtifactService(reports, &presignStore{err: errors.New("offline")}, "b").Resolve(ctx, "OK", ModePresign)
	assert.ErrorContains(t, err, "offline")
}

func TestReportList(t *testing.T) {
	reports, _ := setupReports(t)
	svc := NewReportService(reports)
	ctx := context.Background()

	page, err := svc.List(ctx, repo.ReportFilter{Status: "success"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "GONE", page.Items[0].BRNumber)

	page, err = svc.List(ctx, repo.ReportFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 1)

	_, err = svc.List(ctx, repo.ReportFilter{Status: "maybe"}, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidFilter)

	rec, err := svc.Get(ctx, "BAD")
	require.NoError(t, err)
	assert.Equal(t, model.DownloadFailure, rec.DownloadStatus)
}
