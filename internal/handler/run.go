package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"PdfVault/internal/dto"
	"PdfVault/internal/task"
	"PdfVault/utils"
)

// StartRun launches a run over a window of a catalog file.
func (h *Handler) StartRun(c *gin.Context) {
	var req dto.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, fmt.Errorf("start run: %w", err))
		return
	}
	t, err := h.runs.Start(c.Request.Context(), task.StartRequest{
		SourceFile: req.SourceFile,
		StartRow:   req.StartRow,
		RowCount:   req.RowCount,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": dto.StartRunResponse{
			TaskID:     t.TaskID,
			Status:     t.Status,
			SourceFile: t.RunningFile,
			StartRow:   t.StartRow,
			RowCount:   t.NumRows,
		},
	})
}

// GetRun returns the progress of a run.
func (h *Handler) GetRun(c *gin.Context) {
	status, err := h.runs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, status)
}

// ListRuns returns recent runs.
func (h *Handler) ListRuns(c *gin.Context) {
	var q dto.RunListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	runs, err := h.runs.List(c.Request.Context(), q.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, runs)
}

// CancelRun stops a running run. Cancelling a run that is not running
// answers 409 with its current status.
func (h *Handler) CancelRun(c *gin.Context) {
	id := c.Param("id")
	cancelled, status, err := h.runs.Cancel(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	resp := dto.CancelRunResponse{TaskID: id, Cancelled: cancelled, Status: status}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{
			"code": -1,
			"msg":  "run is not running",
			"data": resp,
		})
		return
	}
	utils.Success(c, resp)
}
