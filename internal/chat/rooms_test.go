package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
	"github.com/workbridge/marketplace-be/internal/marketplace/lifecycle"
	"github.com/workbridge/marketplace-be/internal/marketplace/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedJob inserts a job directly; lifecycle transitions are not under test here.
func seedJob(t *testing.T, store *storage.MemoryStore, jobID, requesterID, status string) {
	t.Helper()
	err := store.CreateJob(context.Background(), &domain.Job{
		JobID:       jobID,
		RequesterID: requesterID,
		Title:       "t",
		Status:      status,
	})
	require.NoError(t, err)
}

func seedBid(t *testing.T, store *storage.MemoryStore, bidID, jobID, providerID, status string) {
	t.Helper()
	err := store.CreateBid(context.Background(), &domain.Bid{
		BidID:      bidID,
		JobID:      jobID,
		ProviderID: providerID,
		Status:     status,
	})
	require.NoError(t, err)
}

func TestEnsureRoomForJob(t *testing.T) {
	store := storage.NewMemoryStore()
	rooms := NewRooms(store, discardLogger())
	ctx := context.Background()
	seedJob(t, store, "job-1", "req-1", domain.JobStatusOpen)

	room, err := rooms.EnsureRoomForJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", room.JobID)

	again, err := rooms.EnsureRoomForJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, room.RoomID, again.RoomID)
}

func TestEnsureRoomForJob_Concurrent(t *testing.T) {
	store := storage.NewMemoryStore()
	rooms := NewRooms(store, discardLogger())
	ctx := context.Background()
	seedJob(t, store, "job-1", "req-1", domain.JobStatusOpen)

	const callers = 16
	results := make([]string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			room, err := rooms.EnsureRoomForJob(ctx, "job-1")
			if err == nil {
				results[i] = room.RoomID
			}
		}(i)
	}
	wg.Wait()

	// Everyone converged on the same room.
	require.NotEmpty(t, results[0])
	for _, roomID := range results {
		assert.Equal(t, results[0], roomID)
	}
}

func TestHandleRoomRequired(t *testing.T) {
	store := storage.NewMemoryStore()
	rooms := NewRooms(store, discardLogger())
	ctx := context.Background()
	seedJob(t, store, "job-1", "req-1", domain.JobStatusInProgress)

	err := rooms.HandleRoomRequired(ctx, lifecycle.RoomRequired{
		JobID:       "job-1",
		RequesterID: "req-1",
		ProviderID:  "prov-1",
	})
	require.NoError(t, err)

	room, err := rooms.Lookup(ctx, "job-1")
	require.NoError(t, err)

	for _, userID := range []string{"req-1", "prov-1"} {
		member, err := rooms.IsParticipant(ctx, room.RoomID, userID)
		require.NoError(t, err)
		assert.True(t, member, userID)
	}
}

func TestLookup(t *testing.T) {
	store := storage.NewMemoryStore()
	rooms := NewRooms(store, discardLogger())
	ctx := context.Background()
	seedJob(t, store, "job-1", "req-1", domain.JobStatusOpen)

	room, err := rooms.EnsureRoomForJob(ctx, "job-1")
	require.NoError(t, err)

	byRoom, err := rooms.Lookup(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, room.RoomID, byRoom.RoomID)

	byJob, err := rooms.Lookup(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, room.RoomID, byJob.RoomID)

	_, err = rooms.Lookup(ctx, "nothing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResolve(t *testing.T) {
	store := storage.NewMemoryStore()
	rooms := NewRooms(store, discardLogger())
	ctx := context.Background()
	seedJob(t, store, "job-1", "req-1", domain.JobStatusOpen)
	seedBid(t, store, "bid-1", "job-1", "prov-1", domain.BidStatusPending)
	seedBid(t, store, "bid-2", "job-1", "prov-2", domain.BidStatusWithdrawn)

	t.Run("requester creates the room on first resolve", func(t *testing.T) {
		room, err := rooms.Resolve(ctx, "job-1", "req-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", room.JobID)
	})

	t.Run("bidding provider may resolve", func(t *testing.T) {
		room, err := rooms.Resolve(ctx, "job-1", "prov-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", room.JobID)
	})

	t.Run("withdrawn provider still resolves an existing room", func(t *testing.T) {
		// The room already exists from the requester's resolve, so the
		// inquiry gate is not consulted.
		room, err := rooms.Resolve(ctx, "job-1", "prov-2")
		require.NoError(t, err)
		assert.Equal(t, "job-1", room.JobID)
	})

	t.Run("stranger cannot create a room", func(t *testing.T) {
		seedJob(t, store, "job-2", "req-1", domain.JobStatusOpen)

		_, err := rooms.Resolve(ctx, "job-2", "someone-else")
		assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	})

	t.Run("withdrawn provider cannot create a room", func(t *testing.T) {
		seedJob(t, store, "job-3", "req-1", domain.JobStatusOpen)
		seedBid(t, store, "bid-3", "job-3", "prov-2", domain.BidStatusWithdrawn)

		_, err := rooms.Resolve(ctx, "job-3", "prov-2")
		assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := rooms.Resolve(ctx, "nothing", "req-1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}
