package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/api/dto"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.HealthResponse{OK: true})
	})

	jobHandler := handler.NewJobHandler(deps)
	queueHandler := handler.NewQueueHandler(deps)

	// GET /queue - list jobs with ordering and pagination
	r.GET("/queue", jobHandler.ListJobs)

	// GET /queue/next - the job that should run next
	r.GET("/queue/next", jobHandler.NextJob)

	// GET /queues[/:count] - broker queue statistics
	r.GET("/queues", queueHandler.ListQueues)
	r.GET("/queues/:count", queueHandler.ListQueues)

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not found")
	})

	return r
}
