package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
)

// MemoryStore is an in-memory store with the same surface and error semantics
// as the Postgres Store. It backs tests and local development without a
// database, including the unique constraints the concurrency strategy of room
// creation relies on.
type MemoryStore struct {
	mu sync.Mutex

	jobs         map[string]domain.Job
	bids         map[string]domain.Bid
	rooms        map[string]domain.ChatRoom // room_id -> room
	roomByJob    map[string]string          // job_id -> room_id
	participants map[string]map[string]domain.Participant
	messages     map[string][]domain.Message
	nextMsgID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:         make(map[string]domain.Job),
		bids:         make(map[string]domain.Bid),
		rooms:        make(map[string]domain.ChatRoom),
		roomByJob:    make(map[string]string),
		participants: make(map[string]map[string]domain.Participant),
		messages:     make(map[string][]domain.Message),
		nextMsgID:    1,
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; ok {
		return fmt.Errorf("failed to create job: %w", domain.ErrConflict)
	}
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("failed to get job: %w", domain.ErrNotFound)
	}
	return &job, nil
}

func (s *MemoryStore) UpdateJob(ctx context.Context, jobID string, patch domain.JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.ExpectStatus != nil && job.Status != *patch.ExpectStatus {
		return fmt.Errorf("%w: job %s is no longer %s", domain.ErrInvalidState, jobID, *patch.ExpectStatus)
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.ClearContractor {
		job.ContractorID = nil
	} else if patch.ContractorID != nil {
		contractor := *patch.ContractorID
		job.ContractorID = &contractor
	}
	if patch.Progress != nil {
		job.Progress = *patch.Progress
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []domain.Job
	for _, job := range s.jobs {
		if filter.RequesterID != "" && job.RequesterID != filter.RequesterID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil {
			if !job.CreatedAt.Before(filter.Cursor.CreatedAt) &&
				!(job.CreatedAt.Equal(filter.Cursor.CreatedAt) && job.JobID < filter.Cursor.JobID) {
				continue
			}
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].JobID > jobs[j].JobID
	})

	if filter.PageSize > 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}
	return jobs, nil
}

func (s *MemoryStore) CreateBid(ctx context.Context, bid *domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.bids {
		if existing.JobID == bid.JobID && existing.ProviderID == bid.ProviderID {
			return fmt.Errorf("failed to create bid: %w", domain.ErrConflict)
		}
	}
	s.bids[bid.BidID] = *bid
	return nil
}

func (s *MemoryStore) GetBid(ctx context.Context, bidID string) (*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bid, ok := s.bids[bidID]
	if !ok {
		return nil, fmt.Errorf("failed to get bid: %w", domain.ErrNotFound)
	}
	return &bid, nil
}

func (s *MemoryStore) ListBidsByJob(ctx context.Context, jobID string) ([]domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bids []domain.Bid
	for _, bid := range s.bids {
		if bid.JobID == jobID {
			bids = append(bids, bid)
		}
	}
	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].CreatedAt.Before(bids[j].CreatedAt)
		}
		return bids[i].BidID < bids[j].BidID
	})
	return bids, nil
}

func (s *MemoryStore) UpdateBid(ctx context.Context, bidID string, patch domain.BidPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bid, ok := s.bids[bidID]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.Status != nil {
		bid.Status = *patch.Status
	}
	bid.UpdatedAt = time.Now().UTC()
	s.bids[bidID] = bid
	return nil
}

func (s *MemoryStore) CreateChatRoom(ctx context.Context, room *domain.ChatRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roomByJob[room.JobID]; ok {
		return fmt.Errorf("failed to create chat room: %w", domain.ErrConflict)
	}
	s.rooms[room.RoomID] = *room
	s.roomByJob[room.JobID] = room.RoomID
	return nil
}

func (s *MemoryStore) GetChatRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("failed to get chat room: %w", domain.ErrNotFound)
	}
	return &room, nil
}

func (s *MemoryStore) GetChatRoomByJob(ctx context.Context, jobID string) (*domain.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.roomByJob[jobID]
	if !ok {
		return nil, fmt.Errorf("failed to get chat room by job: %w", domain.ErrNotFound)
	}
	room := s.rooms[roomID]
	return &room, nil
}

func (s *MemoryStore) AddParticipant(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return fmt.Errorf("failed to add participant: %w", domain.ErrNotFound)
	}
	members := s.participants[roomID]
	if members == nil {
		members = make(map[string]domain.Participant)
		s.participants[roomID] = members
	}
	if _, ok := members[userID]; !ok {
		members[userID] = domain.Participant{
			RoomID:     roomID,
			UserID:     userID,
			LastReadAt: time.Now().UTC(),
		}
	}
	return nil
}

func (s *MemoryStore) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.participants[roomID]
	if !ok {
		return false, nil
	}
	_, ok = members[userID]
	return ok, nil
}

func (s *MemoryStore) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var participants []domain.Participant
	for _, p := range s.participants[roomID] {
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].UserID < participants[j].UserID
	})
	return participants, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, roomID, senderID, senderName, content, messageType string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, fmt.Errorf("%w: failed to create message: unknown room %s", domain.ErrPersistence, roomID)
	}

	msg := domain.Message{
		MessageID:   s.nextMsgID,
		RoomID:      roomID,
		SenderID:    senderID,
		SenderName:  senderName,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   time.Now().UTC(),
	}
	s.nextMsgID++
	s.messages[roomID] = append(s.messages[roomID], msg)
	return &msg, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, roomID string, filter MessageFilter) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[roomID]
	var messages []domain.Message
	for i := len(all) - 1; i >= 0; i-- {
		if filter.BeforeID > 0 && all[i].MessageID >= filter.BeforeID {
			continue
		}
		messages = append(messages, all[i])
		if filter.PageSize > 0 && len(messages) == filter.PageSize {
			break
		}
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
