package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
)

// Store is the slice of the persistent store the lifecycle needs.
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	UpdateJob(ctx context.Context, jobID string, patch domain.JobPatch) error
	CreateBid(ctx context.Context, bid *domain.Bid) error
	GetBid(ctx context.Context, bidID string) (*domain.Bid, error)
	ListBidsByJob(ctx context.Context, jobID string) ([]domain.Bid, error)
	UpdateBid(ctx context.Context, bidID string, patch domain.BidPatch) error
}

// RoomRequired is emitted when a bid acceptance binds two parties to a job
// and a chat room must exist for them.
type RoomRequired struct {
	JobID       string
	RequesterID string
	ProviderID  string
}

// RoomRequiredHandler consumes RoomRequired events.
type RoomRequiredHandler func(ctx context.Context, event RoomRequired) error

// Service enforces the job and bid state machines. All status and assignee
// mutations go through here.
type Service struct {
	store          Store
	logger         *slog.Logger
	onRoomRequired RoomRequiredHandler
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// OnRoomRequired registers the handler for RoomRequired events. Must be set
// before the service handles traffic.
func (s *Service) OnRoomRequired(handler RoomRequiredHandler) {
	s.onRoomRequired = handler
}

// CreateJob records a new job in draft status.
func (s *Service) CreateJob(ctx context.Context, requesterID, title, description string, budget float64) (*domain.Job, error) {
	now := time.Now().UTC()
	job := &domain.Job{
		JobID:       uuid.New().String(),
		RequesterID: requesterID,
		Title:       title,
		Description: description,
		Budget:      budget,
		Status:      domain.JobStatusDraft,
		Progress:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("requester_id", requesterID),
	)

	return job, nil
}

// PublishJob moves a draft job to open, making it biddable.
func (s *Service) PublishJob(ctx context.Context, actorID, jobID string) (*domain.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.RequesterID != actorID {
		return nil, fmt.Errorf("%w: only the requester may publish a job", domain.ErrUnauthorized)
	}
	if job.Status != domain.JobStatusDraft {
		return nil, fmt.Errorf("%w: job %s is %s, not draft", domain.ErrInvalidState, jobID, job.Status)
	}

	status := domain.JobStatusOpen
	draft := domain.JobStatusDraft
	if err := s.store.UpdateJob(ctx, jobID, domain.JobPatch{Status: &status, ExpectStatus: &draft}); err != nil {
		return nil, err
	}
	job.Status = status

	s.logger.Info("Job published", slog.String("job_id", jobID))
	return job, nil
}

// SubmitBid records a pending bid by a provider against an open job.
// A duplicate bid by the same provider surfaces as ErrConflict from the
// store's unique index on (job_id, provider_id).
func (s *Service) SubmitBid(ctx context.Context, providerID, jobID string, amount float64, note string) (*domain.Bid, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusOpen {
		return nil, fmt.Errorf("%w: job %s is %s, not open", domain.ErrInvalidState, jobID, job.Status)
	}
	if job.RequesterID == providerID {
		return nil, fmt.Errorf("%w: requester may not bid on their own job", domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	bid := &domain.Bid{
		BidID:      uuid.New().String(),
		JobID:      jobID,
		ProviderID: providerID,
		Amount:     amount,
		Note:       note,
		Status:     domain.BidStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreateBid(ctx, bid); err != nil {
		return nil, err
	}

	s.logger.Info("Bid submitted",
		slog.String("bid_id", bid.BidID),
		slog.String("job_id", jobID),
		slog.String("provider_id", providerID),
	)

	return bid, nil
}

// AcceptBid accepts the bid, rejects every sibling pending bid, moves the job
// to in_progress with the bid's provider as contractor, and emits RoomRequired.
func (s *Service) AcceptBid(ctx context.Context, actorID, bidID string) (*domain.Bid, error) {
	bid, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, bid.JobID)
	if err != nil {
		return nil, err
	}
	if job.RequesterID != actorID {
		return nil, fmt.Errorf("%w: only the requester may accept a bid", domain.ErrUnauthorized)
	}
	if job.Status != domain.JobStatusOpen {
		return nil, fmt.Errorf("%w: job %s is %s, not open", domain.ErrInvalidState, job.JobID, job.Status)
	}
	if bid.Status != domain.BidStatusPending {
		return nil, fmt.Errorf("%w: bid %s is %s, not pending", domain.ErrInvalidState, bidID, bid.Status)
	}

	// The job transition goes first and is conditional on the job still
	// being open, so of two racing accepts only one can claim the job; the
	// loser gets ErrInvalidState before any bid is touched.
	inProgress := domain.JobStatusInProgress
	contractor := bid.ProviderID
	open := domain.JobStatusOpen
	if err := s.store.UpdateJob(ctx, job.JobID, domain.JobPatch{
		Status:       &inProgress,
		ContractorID: &contractor,
		ExpectStatus: &open,
	}); err != nil {
		return nil, err
	}

	accepted := domain.BidStatusAccepted
	if err := s.store.UpdateBid(ctx, bidID, domain.BidPatch{Status: &accepted}); err != nil {
		return nil, err
	}
	bid.Status = accepted

	siblings, err := s.store.ListBidsByJob(ctx, bid.JobID)
	if err != nil {
		return nil, err
	}
	rejected := domain.BidStatusRejected
	for _, sibling := range siblings {
		if sibling.BidID == bidID || sibling.Status != domain.BidStatusPending {
			continue
		}
		if err := s.store.UpdateBid(ctx, sibling.BidID, domain.BidPatch{Status: &rejected}); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Bid accepted",
		slog.String("bid_id", bidID),
		slog.String("job_id", job.JobID),
		slog.String("provider_id", bid.ProviderID),
	)

	if s.onRoomRequired != nil {
		event := RoomRequired{
			JobID:       job.JobID,
			RequesterID: job.RequesterID,
			ProviderID:  bid.ProviderID,
		}
		if err := s.onRoomRequired(ctx, event); err != nil {
			// The acceptance itself is committed; the room will be created
			// on first join through the ambiguous-id resolution path.
			s.logger.Error("RoomRequired handler failed",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
		}
	}

	return bid, nil
}

// RejectBid moves a pending bid to rejected. No job-level side effects.
func (s *Service) RejectBid(ctx context.Context, actorID, bidID string) (*domain.Bid, error) {
	bid, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, bid.JobID)
	if err != nil {
		return nil, err
	}
	if job.RequesterID != actorID {
		return nil, fmt.Errorf("%w: only the requester may reject a bid", domain.ErrUnauthorized)
	}
	if bid.Status != domain.BidStatusPending {
		return nil, fmt.Errorf("%w: bid %s is %s, not pending", domain.ErrInvalidState, bidID, bid.Status)
	}

	rejected := domain.BidStatusRejected
	if err := s.store.UpdateBid(ctx, bidID, domain.BidPatch{Status: &rejected}); err != nil {
		return nil, err
	}
	bid.Status = rejected

	s.logger.Info("Bid rejected", slog.String("bid_id", bidID))
	return bid, nil
}

// WithdrawBid moves a pending bid to withdrawn. No job-level side effects.
func (s *Service) WithdrawBid(ctx context.Context, actorID, bidID string) (*domain.Bid, error) {
	bid, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.ProviderID != actorID {
		return nil, fmt.Errorf("%w: only the bid owner may withdraw it", domain.ErrUnauthorized)
	}
	if bid.Status != domain.BidStatusPending {
		return nil, fmt.Errorf("%w: bid %s is %s, not pending", domain.ErrInvalidState, bidID, bid.Status)
	}

	withdrawn := domain.BidStatusWithdrawn
	if err := s.store.UpdateBid(ctx, bidID, domain.BidPatch{Status: &withdrawn}); err != nil {
		return nil, err
	}
	bid.Status = withdrawn

	s.logger.Info("Bid withdrawn", slog.String("bid_id", bidID))
	return bid, nil
}

// UpdateProgress sets the progress percentage of an in-progress job.
func (s *Service) UpdateProgress(ctx context.Context, actorID, jobID string, progress int) (*domain.Job, error) {
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("%w: progress %d out of range", domain.ErrInvalidState, progress)
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ContractorID == nil || *job.ContractorID != actorID {
		return nil, fmt.Errorf("%w: only the contractor may report progress", domain.ErrUnauthorized)
	}
	if job.Status != domain.JobStatusInProgress {
		return nil, fmt.Errorf("%w: job %s is %s, not in_progress", domain.ErrInvalidState, jobID, job.Status)
	}

	inProgress := domain.JobStatusInProgress
	if err := s.store.UpdateJob(ctx, jobID, domain.JobPatch{Progress: &progress, ExpectStatus: &inProgress}); err != nil {
		return nil, err
	}
	job.Progress = progress

	return job, nil
}

// CompleteJob moves an in-progress job to completed with progress 100. The
// room is not closed; its history remains browsable.
func (s *Service) CompleteJob(ctx context.Context, actorID, jobID string) (*domain.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.RequesterID != actorID {
		return nil, fmt.Errorf("%w: only the requester may complete a job", domain.ErrUnauthorized)
	}
	if job.Status != domain.JobStatusInProgress {
		return nil, fmt.Errorf("%w: job %s is %s, not in_progress", domain.ErrInvalidState, jobID, job.Status)
	}

	completed := domain.JobStatusCompleted
	progress := 100
	inProgress := domain.JobStatusInProgress
	if err := s.store.UpdateJob(ctx, jobID, domain.JobPatch{
		Status:       &completed,
		Progress:     &progress,
		ExpectStatus: &inProgress,
	}); err != nil {
		return nil, err
	}
	job.Status = completed
	job.Progress = progress

	s.logger.Info("Job completed", slog.String("job_id", jobID))
	return job, nil
}

// CancelJob moves a draft, open, or in-progress job to cancelled.
func (s *Service) CancelJob(ctx context.Context, actorID, jobID string) (*domain.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.RequesterID != actorID {
		return nil, fmt.Errorf("%w: only the requester may cancel a job", domain.ErrUnauthorized)
	}
	if domain.IsTerminal(job.Status) {
		return nil, fmt.Errorf("%w: job %s is already %s", domain.ErrInvalidState, jobID, job.Status)
	}

	// Cancelling an in-progress job releases its contractor; a set
	// contractor implies in_progress or completed. The status guard keeps
	// a racing complete from being overwritten.
	cancelled := domain.JobStatusCancelled
	observed := job.Status
	if err := s.store.UpdateJob(ctx, jobID, domain.JobPatch{
		Status:          &cancelled,
		ClearContractor: job.ContractorID != nil,
		ExpectStatus:    &observed,
	}); err != nil {
		return nil, err
	}
	job.Status = cancelled
	job.ContractorID = nil

	s.logger.Info("Job cancelled", slog.String("job_id", jobID))
	return job, nil
}
