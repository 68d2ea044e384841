package router

import (
	"github.com/gin-gonic/gin"

	"recon-engine/api/handler"
)

func RegisterRoutes(r *gin.Engine, reconH *handler.ReconHandler) {
	api := r.Group("/api/v1")
	{
		contract := api.Group("/contract")
		{
			contract.POST("/upload", reconH.Upload)
		}
		reconcile := api.Group("/reconcile")
		{
			reconcile.POST("/:doc_id", reconH.Reconcile)
			reconcile.GET("/:doc_id/report", reconH.Report)
		}
		clause := api.Group("/clause")
		{
			clause.POST("/search", reconH.ClauseSearch)
		}
		library := api.Group("/library")
		{
			library.POST("/template", reconH.LibraryTemplate)
		}
	}
}
