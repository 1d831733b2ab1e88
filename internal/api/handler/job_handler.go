package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workbridge/marketplace-be/internal/api/dto"
	"github.com/workbridge/marketplace-be/internal/marketplace/lifecycle"
	"github.com/workbridge/marketplace-be/internal/marketplace/storage"
)

// JobHandler serves the job and bid endpoints. All state transitions are
// delegated to the lifecycle service.
type JobHandler struct {
	logger    *slog.Logger
	lifecycle *lifecycle.Service
	store     Store
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		lifecycle: deps.Lifecycle,
		store:     deps.Store,
	}
}

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	job, err := h.lifecycle.CreateJob(c.Request.Context(), currentUser(c), req.Title, req.Description, req.Budget)
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromJob(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.store.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	filter := storage.JobFilter{
		RequesterID: req.RequesterID,
		Status:      req.Status,
		PageSize:    req.PageSize,
		Cursor:      cursor,
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	items := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		items[i] = dto.FromJob(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       items,
		NextCursor: nextCursor,
	})
}

// PublishJob handles POST /api/v1/jobs/:job_id/publish
func (h *JobHandler) PublishJob(c *gin.Context) {
	job, err := h.lifecycle.PublishJob(c.Request.Context(), currentUser(c), c.Param("job_id"))
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromJob(job))
}

// CompleteJob handles POST /api/v1/jobs/:job_id/complete
func (h *JobHandler) CompleteJob(c *gin.Context) {
	job, err := h.lifecycle.CompleteJob(c.Request.Context(), currentUser(c), c.Param("job_id"))
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromJob(job))
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.lifecycle.CancelJob(c.Request.Context(), currentUser(c), c.Param("job_id"))
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromJob(job))
}

// UpdateProgress handles POST /api/v1/jobs/:job_id/progress
func (h *JobHandler) UpdateProgress(c *gin.Context) {
	var req dto.UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	job, err := h.lifecycle.UpdateProgress(c.Request.Context(), currentUser(c), c.Param("job_id"), req.Progress)
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromJob(job))
}

// SubmitBid handles POST /api/v1/jobs/:job_id/bids
func (h *JobHandler) SubmitBid(c *gin.Context) {
	var req dto.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	bid, err := h.lifecycle.SubmitBid(c.Request.Context(), currentUser(c), c.Param("job_id"), req.Amount, req.Note)
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromBid(bid))
}

// ListBids handles GET /api/v1/jobs/:job_id/bids
func (h *JobHandler) ListBids(c *gin.Context) {
	jobID := c.Param("job_id")

	// Only the two sides of the job may see its bid sheet.
	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}

	actor := currentUser(c)
	bids, err := h.store.ListBidsByJob(c.Request.Context(), jobID)
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}

	items := make([]dto.BidDTO, 0, len(bids))
	for i := range bids {
		if job.RequesterID != actor && bids[i].ProviderID != actor {
			continue
		}
		items = append(items, dto.FromBid(&bids[i]))
	}

	c.JSON(http.StatusOK, gin.H{"bids": items})
}

// AcceptBid handles POST /api/v1/bids/:bid_id/accept
func (h *JobHandler) AcceptBid(c *gin.Context) {
	bid, err := h.lifecycle.AcceptBid(c.Request.Context(), currentUser(c), c.Param("bid_id"))
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromBid(bid))
}

// RejectBid handles POST /api/v1/bids/:bid_id/reject
func (h *JobHandler) RejectBid(c *gin.Context) {
	bid, err := h.lifecycle.RejectBid(c.Request.Context(), currentUser(c), c.Param("bid_id"))
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromBid(bid))
}

// WithdrawBid handles POST /api/v1/bids/:bid_id/withdraw
func (h *JobHandler) WithdrawBid(c *gin.Context) {
	bid, err := h.lifecycle.WithdrawBid(c.Request.Context(), currentUser(c), c.Param("bid_id"))
	if err != nil {
		replyDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromBid(bid))
}
