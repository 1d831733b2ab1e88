package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
	"github.com/workbridge/marketplace-be/internal/marketplace/lifecycle"
)

// RoomStore is the slice of the persistent store the membership manager needs.
type RoomStore interface {
	GetChatRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error)
	GetChatRoomByJob(ctx context.Context, jobID string) (*domain.ChatRoom, error)
	CreateChatRoom(ctx context.Context, room *domain.ChatRoom) error
	AddParticipant(ctx context.Context, roomID, userID string) error
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListBidsByJob(ctx context.Context, jobID string) ([]domain.Bid, error)
}

// Rooms maps job identities to chat rooms and participant sets. Rooms are a
// projection of the job/bid lifecycle: they spring into existence when a bid
// is accepted or when a party first opens an inquiry.
type Rooms struct {
	store  RoomStore
	logger *slog.Logger
}

func NewRooms(store RoomStore, logger *slog.Logger) *Rooms {
	return &Rooms{store: store, logger: logger}
}

// EnsureRoomForJob returns the room bound to the job, creating it if absent.
// Concurrent callers race on the store's unique index on job_id; the loser
// refetches the winner's room, so exactly one room per job ever exists.
func (r *Rooms) EnsureRoomForJob(ctx context.Context, jobID string) (*domain.ChatRoom, error) {
	room, err := r.store.GetChatRoomByJob(ctx, jobID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	room = &domain.ChatRoom{
		RoomID:    uuid.New().String(),
		JobID:     jobID,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateChatRoom(ctx, room); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return r.store.GetChatRoomByJob(ctx, jobID)
		}
		return nil, err
	}

	r.logger.Info("Chat room created",
		slog.String("room_id", room.RoomID),
		slog.String("job_id", jobID),
	)
	return room, nil
}

// AddParticipant enrols a user in the room. Already-enrolled users are a
// no-op; participants are never removed.
func (r *Rooms) AddParticipant(ctx context.Context, roomID, userID string) error {
	return r.store.AddParticipant(ctx, roomID, userID)
}

// IsParticipant reports whether the user is enrolled in the room.
func (r *Rooms) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	return r.store.IsParticipant(ctx, roomID, userID)
}

// HandleRoomRequired consumes a lifecycle RoomRequired event: it ensures the
// job's room exists and enrols both parties.
func (r *Rooms) HandleRoomRequired(ctx context.Context, event lifecycle.RoomRequired) error {
	room, err := r.EnsureRoomForJob(ctx, event.JobID)
	if err != nil {
		return fmt.Errorf("ensure room for job %s: %w", event.JobID, err)
	}
	if err := r.store.AddParticipant(ctx, room.RoomID, event.RequesterID); err != nil {
		return fmt.Errorf("enrol requester: %w", err)
	}
	if err := r.store.AddParticipant(ctx, room.RoomID, event.ProviderID); err != nil {
		return fmt.Errorf("enrol provider: %w", err)
	}

	r.logger.Info("Room bound to accepted bid",
		slog.String("room_id", room.RoomID),
		slog.String("job_id", event.JobID),
		slog.String("requester_id", event.RequesterID),
		slog.String("provider_id", event.ProviderID),
	)
	return nil
}

// Lookup accepts either a room id or a job id and returns the existing room,
// without ever creating one.
func (r *Rooms) Lookup(ctx context.Context, roomOrJobID string) (*domain.ChatRoom, error) {
	room, err := r.store.GetChatRoom(ctx, roomOrJobID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	// Not a room id; try it as a job id.
	return r.store.GetChatRoomByJob(ctx, roomOrJobID)
}

// Resolve accepts either a room id or a job id (the wire protocol lets
// callers address a room by its owning job) and resolves to the canonical
// room. When the id is a job without a room yet, the room is created only if
// the caller is tied to the job: its requester, its assigned contractor, or a
// provider with an existing bid.
func (r *Rooms) Resolve(ctx context.Context, roomOrJobID, userID string) (*domain.ChatRoom, error) {
	room, err := r.Lookup(ctx, roomOrJobID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	ok, err := r.CanInquire(ctx, roomOrJobID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %s is not tied to job %s", domain.ErrUnauthorized, userID, roomOrJobID)
	}

	return r.EnsureRoomForJob(ctx, roomOrJobID)
}

// CanInquire reports whether the user may open (or be enrolled in) the job's
// room before a bid is accepted.
func (r *Rooms) CanInquire(ctx context.Context, jobID, userID string) (bool, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.RequesterID == userID {
		return true, nil
	}
	if job.ContractorID != nil && *job.ContractorID == userID {
		return true, nil
	}

	bids, err := r.store.ListBidsByJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	for _, bid := range bids {
		if bid.ProviderID == userID && bid.Status != domain.BidStatusWithdrawn {
			return true, nil
		}
	}
	return false, nil
}
