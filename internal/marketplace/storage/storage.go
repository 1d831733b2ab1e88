package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
	"github.com/workbridge/marketplace-be/shared/postgresql"
)

// pgUniqueViolation is the Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

// Store is the Postgres-backed persistent store for jobs, bids, chat rooms,
// participants, and messages.
type Store struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewStore(pg *postgresql.Client) *Store {
	return &Store{
		db: pg.GetDB(),
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pqErr.Constraint)
	}
	return err
}

// --- Jobs ---

func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, requester_id, title, description,
			budget, status, progress, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.RequesterID,
		job.Title,
		job.Description,
		job.Budget,
		job.Status,
		job.Progress,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", mapError(err))
	}

	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := `
		SELECT
			job_id, requester_id, contractor_id, title, description,
			budget, status, progress, created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to get job: %w", mapError(err))
	}

	return &job, nil
}

func (s *Store) UpdateJob(ctx context.Context, jobID string, patch domain.JobPatch) error {
	update := s.sb.Update("jobs").Set("updated_at", time.Now().UTC())

	if patch.Status != nil {
		update = update.Set("status", *patch.Status)
	}
	if patch.ClearContractor {
		update = update.Set("contractor_id", nil)
	} else if patch.ContractorID != nil {
		update = update.Set("contractor_id", *patch.ContractorID)
	}
	if patch.Progress != nil {
		update = update.Set("progress", *patch.Progress)
	}

	where := sq.And{sq.Eq{"job_id": jobID}}
	if patch.ExpectStatus != nil {
		where = append(where, sq.Eq{"status": *patch.ExpectStatus})
	}

	query, args, err := update.Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build job update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", mapError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if patch.ExpectStatus != nil {
			return fmt.Errorf("%w: job %s is no longer %s", domain.ErrInvalidState, jobID, *patch.ExpectStatus)
		}
		return domain.ErrNotFound
	}

	return nil
}

// JobFilter narrows ListJobs results. Zero-valued fields are ignored.
type JobFilter struct {
	RequesterID string
	Status      string
	PageSize    int
	Cursor      *JobCursor
}

// JobCursor is the keyset pagination cursor over (created_at, job_id).
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	q := s.sb.
		Select(
			"job_id", "requester_id", "contractor_id", "title", "description",
			"budget", "status", "progress", "created_at", "updated_at",
		).
		From("jobs")

	if filter.RequesterID != "" {
		q = q.Where(sq.Eq{"requester_id": filter.RequesterID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Cursor != nil {
		q = q.Where(
			sq.Expr("(created_at, job_id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.JobID),
		)
	}

	// Fetch one extra row so the caller can detect another page.
	q = q.OrderBy("created_at DESC", "job_id DESC").Limit(uint64(filter.PageSize + 1))

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build job list query: %w", err)
	}

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", mapError(err))
	}

	return jobs, nil
}

// --- Bids ---

func (s *Store) CreateBid(ctx context.Context, bid *domain.Bid) error {
	query := `
		INSERT INTO bids (
			bid_id, job_id, provider_id, amount, note,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		bid.BidID,
		bid.JobID,
		bid.ProviderID,
		bid.Amount,
		bid.Note,
		bid.Status,
		bid.CreatedAt,
		bid.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create bid: %w", mapError(err))
	}

	return nil
}

func (s *Store) GetBid(ctx context.Context, bidID string) (*domain.Bid, error) {
	var bid domain.Bid
	query := `
		SELECT bid_id, job_id, provider_id, amount, note, status, created_at, updated_at
		FROM bids
		WHERE bid_id = $1
	`

	if err := s.db.GetContext(ctx, &bid, query, bidID); err != nil {
		return nil, fmt.Errorf("failed to get bid: %w", mapError(err))
	}

	return &bid, nil
}

func (s *Store) ListBidsByJob(ctx context.Context, jobID string) ([]domain.Bid, error) {
	var bids []domain.Bid
	query := `
		SELECT bid_id, job_id, provider_id, amount, note, status, created_at, updated_at
		FROM bids
		WHERE job_id = $1
		ORDER BY created_at ASC, bid_id ASC
	`

	if err := s.db.SelectContext(ctx, &bids, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", mapError(err))
	}

	return bids, nil
}

func (s *Store) UpdateBid(ctx context.Context, bidID string, patch domain.BidPatch) error {
	update := s.sb.Update("bids").Set("updated_at", time.Now().UTC())

	if patch.Status != nil {
		update = update.Set("status", *patch.Status)
	}

	query, args, err := update.Where(sq.Eq{"bid_id": bidID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build bid update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update bid: %w", mapError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// --- Chat rooms ---

func (s *Store) CreateChatRoom(ctx context.Context, room *domain.ChatRoom) error {
	query := `
		INSERT INTO chat_rooms (room_id, job_id, created_at)
		VALUES ($1, $2, $3)
	`

	_, err := s.db.ExecContext(ctx, query, room.RoomID, room.JobID, room.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat room: %w", mapError(err))
	}

	return nil
}

func (s *Store) GetChatRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	var room domain.ChatRoom
	query := `SELECT room_id, job_id, created_at FROM chat_rooms WHERE room_id = $1`

	if err := s.db.GetContext(ctx, &room, query, roomID); err != nil {
		return nil, fmt.Errorf("failed to get chat room: %w", mapError(err))
	}

	return &room, nil
}

func (s *Store) GetChatRoomByJob(ctx context.Context, jobID string) (*domain.ChatRoom, error) {
	var room domain.ChatRoom
	query := `SELECT room_id, job_id, created_at FROM chat_rooms WHERE job_id = $1`

	if err := s.db.GetContext(ctx, &room, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to get chat room by job: %w", mapError(err))
	}

	return &room, nil
}

// AddParticipant enrols a user in a room. Enrolling an existing participant
// is a no-op.
func (s *Store) AddParticipant(ctx context.Context, roomID, userID string) error {
	query := `
		INSERT INTO chat_participants (room_id, user_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, roomID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", mapError(err))
	}

	return nil
}

func (s *Store) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM chat_participants WHERE room_id = $1 AND user_id = $2)`

	if err := s.db.GetContext(ctx, &exists, query, roomID, userID); err != nil {
		return false, fmt.Errorf("failed to check participant: %w", mapError(err))
	}

	return exists, nil
}

func (s *Store) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	var participants []domain.Participant
	query := `
		SELECT room_id, user_id, last_read_at
		FROM chat_participants
		WHERE room_id = $1
		ORDER BY user_id ASC
	`

	if err := s.db.SelectContext(ctx, &participants, query, roomID); err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", mapError(err))
	}

	return participants, nil
}

// --- Messages ---

// CreateMessage persists a message and returns it with the server-assigned
// id and timestamp filled in.
func (s *Store) CreateMessage(ctx context.Context, roomID, senderID, senderName, content, messageType string) (*domain.Message, error) {
	msg := domain.Message{
		RoomID:      roomID,
		SenderID:    senderID,
		SenderName:  senderName,
		Content:     content,
		MessageType: messageType,
	}

	query := `
		INSERT INTO chat_messages (room_id, sender_id, sender_name, content, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING message_id, created_at
	`

	err := s.db.QueryRowxContext(ctx, query, roomID, senderID, senderName, content, messageType).
		Scan(&msg.MessageID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create message: %v", domain.ErrPersistence, err)
	}

	return &msg, nil
}

// MessageFilter narrows ListMessages results to messages older than BeforeID.
type MessageFilter struct {
	BeforeID int64
	PageSize int
}

func (s *Store) ListMessages(ctx context.Context, roomID string, filter MessageFilter) ([]domain.Message, error) {
	q := s.sb.
		Select("message_id", "room_id", "sender_id", "sender_name", "content", "message_type", "created_at").
		From("chat_messages").
		Where(sq.Eq{"room_id": roomID})

	if filter.BeforeID > 0 {
		q = q.Where(sq.Lt{"message_id": filter.BeforeID})
	}

	q = q.OrderBy("message_id DESC").Limit(uint64(filter.PageSize))

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build message list query: %w", err)
	}

	var messages []domain.Message
	if err := s.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", mapError(err))
	}

	// Return oldest first so the caller can render in order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
