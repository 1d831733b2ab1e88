package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workbridge/marketplace-be/internal/chat"
	"github.com/workbridge/marketplace-be/internal/identity"
	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
	"github.com/workbridge/marketplace-be/internal/marketplace/lifecycle"
	"github.com/workbridge/marketplace-be/internal/marketplace/storage"
)

// Store is the read-side slice of the persistent store the handlers need.
// Mutations go through the lifecycle service.
type Store interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	ListBidsByJob(ctx context.Context, jobID string) ([]domain.Bid, error)
	ListMessages(ctx context.Context, roomID string, filter storage.MessageFilter) ([]domain.Message, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Lifecycle     *lifecycle.Service
	Rooms         *chat.Rooms
	Hub           *chat.Hub
	Store         Store
	Verifier      *identity.Verifier
	Presence      chat.Presence
	MaxFrameBytes int64
}

// currentUser returns the verified user id set by the identity middleware.
func currentUser(c *gin.Context) string {
	return c.GetString("user_id")
}

// replyDomainError translates the error taxonomy to HTTP statuses.
func replyDomainError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidState):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPersistence):
		logger.Error("Store write failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		logger.Error("Request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
