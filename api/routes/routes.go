package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/study-assistant/api/handlers"
	"github.com/feichai0017/study-assistant/api/middleware"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

type Config struct {
	AllowOrigins []string
	// MaxBodyBytes bounds upload requests. Multipart framing needs some
	// headroom over the file size limit.
	MaxBodyBytes int64
}

// SetupRoutes registers every route on r.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, cfg Config, log logger.Logger) {
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(logger.NewContextLogger(log.Named("http"))))
	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/health", h.Health.Check)

	upload := middleware.MaxBodySize(cfg.MaxBodyBytes)

	ai := r.Group("/api/ai")
	{
		ai.POST("/upload", upload, h.AI.Upload)
	}

	v1 := r.Group("/api/v1")

	materials := v1.Group("/materials")
	{
		materials.POST("/process", upload, h.Material.ProcessMaterial)
		materials.POST("/batch", upload, h.Material.ProcessBatch)
		materials.GET("/status/:taskId", h.Material.GetStatus)
		materials.GET("/download/:taskId", h.Material.DownloadResult)
		materials.DELETE("/task/:taskId", h.Material.CancelTask)
	}

	hist := v1.Group("/history", middleware.RequireUser(handlers.UserHeader))
	{
		hist.POST("", h.History.Create)
		hist.GET("", h.History.List)
		hist.GET("/action/:action", h.History.ListByAction)
		hist.GET("/:id", h.History.Get)
		hist.DELETE("/:id", h.History.Delete)
	}
}
