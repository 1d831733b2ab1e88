package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/workbridge/marketplace-be/internal/api/handler"
	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	registerValidators()

	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "marketplace-api-service",
		})
	})

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jobHandler := handler.NewJobHandler(deps)
	chatHandler := handler.NewChatHandler(deps)

	// Websocket endpoint verifies identity itself so auth failures can be
	// reported as close frames.
	r.GET("/ws", chatHandler.ServeWS)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(IdentityMiddleware(deps.Verifier))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create a new job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/publish - Open a draft job for bidding
			jobs.POST("/:job_id/publish", jobHandler.PublishJob)

			// POST /api/v1/jobs/:job_id/progress - Update completion percentage
			jobs.POST("/:job_id/progress", jobHandler.UpdateProgress)

			// POST /api/v1/jobs/:job_id/complete - Mark a job completed
			jobs.POST("/:job_id/complete", jobHandler.CompleteJob)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a job
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)

			// POST /api/v1/jobs/:job_id/bids - Submit a bid
			jobs.POST("/:job_id/bids", jobHandler.SubmitBid)

			// GET /api/v1/jobs/:job_id/bids - List bids visible to the caller
			jobs.GET("/:job_id/bids", jobHandler.ListBids)
		}

		bids := v1.Group("/bids")
		{
			bids.POST("/:bid_id/accept", jobHandler.AcceptBid)
			bids.POST("/:bid_id/reject", jobHandler.RejectBid)
			bids.POST("/:bid_id/withdraw", jobHandler.WithdrawBid)
		}

		rooms := v1.Group("/rooms")
		{
			// GET /api/v1/rooms/:room_id/messages - Message history, oldest first
			rooms.GET("/:room_id/messages", chatHandler.ListMessages)
		}

		// GET /api/v1/presence/:user_id - Online status
		v1.GET("/presence/:user_id", chatHandler.GetPresence)
	}

	return r
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("jobstatus", func(fl validator.FieldLevel) bool {
			return domain.ValidJobStatus(fl.Field().String())
		})
	}
}
