package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	logger "github.com/sirupsen/logrus"

	"PdfVault/internal/repo"
	"PdfVault/internal/rowsource"
	"PdfVault/internal/service"
	"PdfVault/internal/task"
	"PdfVault/model"
	"PdfVault/utils"
)

// RunService starts and tracks runs.
type RunService interface {
	Start(ctx context.Context, req task.StartRequest) (*model.RunningTask, error)
	Status(ctx context.Context, taskID string) (*task.RunStatus, error)
	Cancel(ctx context.Context, taskID string) (bool, string, error)
	List(ctx context.Context, limit int) ([]task.RunStatus, error)
}

// ReportService lists download outcomes.
type ReportService interface {
	Get(ctx context.Context, key string) (*model.ReportRecord, error)
	List(ctx context.Context, filter repo.ReportFilter, page, pageSize int) (*service.ReportPage, error)
}

// ArtifactResolver resolves stored report files.
type ArtifactResolver interface {
	Resolve(ctx context.Context, key, mode string) (*service.Artifact, error)
}

// Handler serves the HTTP API.
type Handler struct {
	runs      RunService
	reports   ReportService
	artifacts ArtifactResolver
}

// New builds a Handler.
func New(runs RunService, reports ReportService, artifacts ArtifactResolver) *Handler {
	return &Handler{runs: runs, reports: reports, artifacts: artifacts}
}

// fail maps domain errors to HTTP statuses.
func fail(c *gin.Context, err error) {
	var formatErr *rowsource.FormatError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &formatErr),
		errors.Is(err, task.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidMode),
		errors.Is(err, service.ErrInvalidFilter):
		status = http.StatusBadRequest
	case errors.Is(err, task.ErrSourceNotFound),
		errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, service.ErrReportNotFound),
		errors.Is(err, service.ErrNotDownloaded),
		errors.Is(err, service.ErrFileMissing),
		errors.Is(err, service.ErrNotMirrored):
		status = http.StatusNotFound
	case errors.Is(err, task.ErrAlreadyRunning):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	utils.FailWithStatus(c, status, err)
}
