package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-backend/internal/handlers"
	"github.com/skillforge/skillforge-backend/internal/middleware"
	"github.com/skillforge/skillforge-backend/internal/pkg/envutil"
)

type RouterConfig struct {
	AuthMiddleware     *middleware.AuthMiddleware
	InternalMiddleware *middleware.InternalAuthMiddleware
	GenerationHandler  *handlers.GenerationHandler
	InternalJobs       *handlers.InternalJobsHandler
	SSEHandler         *handlers.SSEHandler
	ChatHandler        *handlers.ChatHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := strings.Split(envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173"), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Internal  ||
	// ===============
	internal := router.Group("/internal")
	internal.Use(cfg.InternalMiddleware.RequireInternalSecret())
	internal.POST("/jobs/execute", cfg.InternalJobs.ExecuteJob)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// SSE
	protected.GET("/sse/stream", cfg.SSEHandler.Stream)
	// Generation jobs
	api := protected.Group("/api")
	api.POST("/generation-jobs", cfg.GenerationHandler.Submit)
	api.GET("/generation-jobs/latest", cfg.GenerationHandler.GetLatest)
	api.GET("/generation-jobs/:id", cfg.GenerationHandler.GetByID)
	api.POST("/generation-jobs/:id/cancel", cfg.GenerationHandler.Cancel)
	// Chat
	api.POST("/chat/messages", cfg.ChatHandler.PostMessage)

	return router
}
