package api

import (
	"github.com/gin-gonic/gin"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/api/handler"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/api/middleware"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/healing"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/logger"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/repository"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	orchestrator *healing.Orchestrator,
	scheduler *healing.Scheduler,
	runs *repository.RunRepository,
	log *logger.Logger,
	cors middleware.CORSConfig,
	mode string,
) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cors))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	healingHandler := handler.NewHealingHandler(orchestrator, scheduler, runs)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Healing triggers
		v1.POST("/jobs/:id/heal", healingHandler.Trigger)
		v1.POST("/jobs/:id/heal/schedule", healingHandler.Schedule)
		v1.DELETE("/healing/schedules/:id", healingHandler.CancelSchedule)

		// Ledger queries
		v1.GET("/jobs/:id/healing/status", healingHandler.Status)
		v1.GET("/jobs/:id/healing/runs", healingHandler.Runs)
	}

	return r
}
