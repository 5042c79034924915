package handler

import (
	"github.com/gin-gonic/gin"

	"PdfVault/internal/dto"
	"PdfVault/internal/repo"
	"PdfVault/internal/service"
	"PdfVault/utils"
)

// ListReports returns one page of download outcomes.
func (h *Handler) ListReports(c *gin.Context) {
	var q dto.ReportListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	page, err := h.reports.List(c.Request.Context(), repo.ReportFilter{
		Status:  q.Status,
		Country: q.Country,
		Year:    q.Year,
	}, q.Page, q.PageSize)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, page)
}

// GetReport returns the outcome recorded for one catalog key.
func (h *Handler) GetReport(c *gin.Context) {
	rec, err := h.reports.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, rec)
}

// ReportFile serves a report file in the requested mode; download streams
// the file, the other modes answer with links.
func (h *Handler) ReportFile(c *gin.Context) {
	var q dto.ArtifactQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	if q.Mode == "" {
		q.Mode = service.ModeDownload
	}
	art, err := h.artifacts.Resolve(c.Request.Context(), c.Param("key"), q.Mode)
	if err != nil {
		fail(c, err)
		return
	}
	if q.Mode == service.ModeDownload {
		c.FileAttachment(art.Path, utils.AttachmentName(art.FileName))
		return
	}
	utils.Success(c, art)
}
