package router

import (
	"PdfVault/internal/handler"
	"PdfVault/utils"

	"github.com/gin-gonic/gin"
)

// InitRouter builds API routes.
func InitRouter(h *handler.Handler) *gin.Engine {
	r := gin.Default()
	r.Use(utils.CORSMiddleware())

	api := r.Group("/api")
	{
		runs := api.Group("/runs")
		{
			runs.POST("", h.StartRun)
			runs.GET("", h.ListRuns)
			runs.GET("/:id", h.GetRun)
			runs.POST("/:id/cancel", h.CancelRun)
		}

		reports := api.Group("/reports")
		{
			reports.GET("", h.ListReports)
			reports.GET("/:key", h.GetReport)
			reports.GET("/:key/file", h.ReportFile)
		}
	}
	return r
}
