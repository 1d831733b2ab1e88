package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
	"github.com/workbridge/marketplace-be/internal/marketplace/storage"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, logger), store
}

func createOpenJob(t *testing.T, svc *Service, requesterID string) *domain.Job {
	t.Helper()
	ctx := context.Background()
	job, err := svc.CreateJob(ctx, requesterID, "Fix the roof", "Tiles are loose", 500)
	require.NoError(t, err)
	job, err = svc.PublishJob(ctx, requesterID, job.JobID)
	require.NoError(t, err)
	return job
}

func TestCreateJob(t *testing.T) {
	svc, _ := newTestService(t)

	job, err := svc.CreateJob(context.Background(), "req-1", "Fix the roof", "Tiles are loose", 500)
	require.NoError(t, err)

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, "req-1", job.RequesterID)
	assert.Equal(t, domain.JobStatusDraft, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Nil(t, job.ContractorID)
}

func TestPublishJob(t *testing.T) {
	tests := []struct {
		name    string
		actorID string
		setup   func(svc *Service) string
		wantErr error
	}{
		{
			name:    "requester publishes draft",
			actorID: "req-1",
			setup: func(svc *Service) string {
				job, _ := svc.CreateJob(context.Background(), "req-1", "t", "d", 10)
				return job.JobID
			},
		},
		{
			name:    "non-requester rejected",
			actorID: "someone-else",
			setup: func(svc *Service) string {
				job, _ := svc.CreateJob(context.Background(), "req-1", "t", "d", 10)
				return job.JobID
			},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "already open",
			actorID: "req-1",
			setup: func(svc *Service) string {
				return createOpenJob(t, svc, "req-1").JobID
			},
			wantErr: domain.ErrInvalidState,
		},
		{
			name:    "unknown job",
			actorID: "req-1",
			setup:   func(svc *Service) string { return "no-such-job" },
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			jobID := tt.setup(svc)

			job, err := svc.PublishJob(context.Background(), tt.actorID, jobID)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusOpen, job.Status)
		})
	}
}

func TestSubmitBid(t *testing.T) {
	t.Run("pending bid on open job", func(t *testing.T) {
		svc, _ := newTestService(t)
		job := createOpenJob(t, svc, "req-1")

		bid, err := svc.SubmitBid(context.Background(), "prov-1", job.JobID, 450, "can start monday")
		require.NoError(t, err)
		assert.Equal(t, domain.BidStatusPending, bid.Status)
		assert.Equal(t, "prov-1", bid.ProviderID)
	})

	t.Run("job not open", func(t *testing.T) {
		svc, _ := newTestService(t)
		job, err := svc.CreateJob(context.Background(), "req-1", "t", "d", 10)
		require.NoError(t, err)

		_, err = svc.SubmitBid(context.Background(), "prov-1", job.JobID, 450, "")
		assert.True(t, errors.Is(err, domain.ErrInvalidState))
	})

	t.Run("requester may not bid on own job", func(t *testing.T) {
		svc, _ := newTestService(t)
		job := createOpenJob(t, svc, "req-1")

		_, err := svc.SubmitBid(context.Background(), "req-1", job.JobID, 450, "")
		assert.True(t, errors.Is(err, domain.ErrInvalidState))
	})

	t.Run("duplicate bid by same provider", func(t *testing.T) {
		svc, _ := newTestService(t)
		job := createOpenJob(t, svc, "req-1")

		_, err := svc.SubmitBid(context.Background(), "prov-1", job.JobID, 450, "")
		require.NoError(t, err)

		_, err = svc.SubmitBid(context.Background(), "prov-1", job.JobID, 400, "lower offer")
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})
}

func TestAcceptBid(t *testing.T) {
	t.Run("acceptance cascades to siblings and job", func(t *testing.T) {
		svc, store := newTestService(t)
		ctx := context.Background()
		job := createOpenJob(t, svc, "req-1")

		winner, err := svc.SubmitBid(ctx, "prov-1", job.JobID, 450, "")
		require.NoError(t, err)
		loser, err := svc.SubmitBid(ctx, "prov-2", job.JobID, 480, "")
		require.NoError(t, err)
		withdrawn, err := svc.SubmitBid(ctx, "prov-3", job.JobID, 490, "")
		require.NoError(t, err)
		_, err = svc.WithdrawBid(ctx, "prov-3", withdrawn.BidID)
		require.NoError(t, err)

		var event RoomRequired
		svc.OnRoomRequired(func(ctx context.Context, ev RoomRequired) error {
			event = ev
			return nil
		})

		accepted, err := svc.AcceptBid(ctx, "req-1", winner.BidID)
		require.NoError(t, err)
		assert.Equal(t, domain.BidStatusAccepted, accepted.Status)

		got, err := store.GetBid(ctx, loser.BidID)
		require.NoError(t, err)
		assert.Equal(t, domain.BidStatusRejected, got.Status)

		// Withdrawn siblings are left alone.
		got, err = store.GetBid(ctx, withdrawn.BidID)
		require.NoError(t, err)
		assert.Equal(t, domain.BidStatusWithdrawn, got.Status)

		updatedJob, err := store.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusInProgress, updatedJob.Status)
		require.NotNil(t, updatedJob.ContractorID)
		assert.Equal(t, "prov-1", *updatedJob.ContractorID)

		assert.Equal(t, job.JobID, event.JobID)
		assert.Equal(t, "req-1", event.RequesterID)
		assert.Equal(t, "prov-1", event.ProviderID)
	})

	t.Run("only requester may accept", func(t *testing.T) {
		svc, _ := newTestService(t)
		ctx := context.Background()
		job := createOpenJob(t, svc, "req-1")
		bid, err := svc.SubmitBid(ctx, "prov-1", job.JobID, 450, "")
		require.NoError(t, err)

		_, err = svc.AcceptBid(ctx, "prov-1", bid.BidID)
		assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	})

	t.Run("acceptance survives handler failure", func(t *testing.T) {
		svc, store := newTestService(t)
		ctx := context.Background()
		job := createOpenJob(t, svc, "req-1")
		bid, err := svc.SubmitBid(ctx, "prov-1", job.JobID, 450, "")
		require.NoError(t, err)

		svc.OnRoomRequired(func(ctx context.Context, ev RoomRequired) error {
			return errors.New("room store down")
		})

		accepted, err := svc.AcceptBid(ctx, "req-1", bid.BidID)
		require.NoError(t, err)
		assert.Equal(t, domain.BidStatusAccepted, accepted.Status)

		updatedJob, err := store.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusInProgress, updatedJob.Status)
	})

	t.Run("cannot accept twice", func(t *testing.T) {
		svc, _ := newTestService(t)
		ctx := context.Background()
		job := createOpenJob(t, svc, "req-1")
		bid, err := svc.SubmitBid(ctx, "prov-1", job.JobID, 450, "")
		require.NoError(t, err)

		_, err = svc.AcceptBid(ctx, "req-1", bid.BidID)
		require.NoError(t, err)

		_, err = svc.AcceptBid(ctx, "req-1", bid.BidID)
		assert.True(t, errors.Is(err, domain.ErrInvalidState))
	})
}

func TestWithdrawBid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	job := createOpenJob(t, svc, "req-1")
	bid, err := svc.SubmitBid(ctx, "prov-1", job.JobID, 450, "")
	require.NoError(t, err)

	_, err = svc.WithdrawBid(ctx, "prov-2", bid.BidID)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	withdrawn, err := svc.WithdrawBid(ctx, "prov-1", bid.BidID)
	require.NoError(t, err)
	assert.Equal(t, domain.BidStatusWithdrawn, withdrawn.Status)

	_, err = svc.WithdrawBid(ctx, "prov-1", bid.BidID)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestUpdateProgress(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	job := createOpenJob(t, svc, "req-1")
	bid, err := svc.SubmitBid(ctx, "prov-1", job.JobID, 450, "")
	require.NoError(t, err)
	_, err = svc.AcceptBid(ctx, "req-1", bid.BidID)
	require.NoError(t, err)

	_, err = svc.UpdateProgress(ctx, "prov-1", job.JobID, 101)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	_, err = svc.UpdateProgress(ctx, "req-1", job.JobID, 50)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	updated, err := svc.UpdateProgress(ctx, "prov-1", job.JobID, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Progress)
}

func TestCompleteJob(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	job := createOpenJob(t, svc, "req-1")
	bid, err := svc.SubmitBid(ctx, "prov-1", job.JobID, 450, "")
	require.NoError(t, err)
	_, err = svc.AcceptBid(ctx, "req-1", bid.BidID)
	require.NoError(t, err)

	_, err = svc.CompleteJob(ctx, "prov-1", job.JobID)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	completed, err := svc.CompleteJob(ctx, "req-1", job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, completed.Status)
	assert.Equal(t, 100, completed.Progress)

	_, err = svc.CompleteJob(ctx, "req-1", job.JobID)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestCancelJob(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "req-1", "t", "d", 10)
	require.NoError(t, err)

	cancelled, err := svc.CancelJob(ctx, "req-1", job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)

	_, err = svc.CancelJob(ctx, "req-1", job.JobID)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestCancelJobInProgressClearsContractor(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	job := createOpenJob(t, svc, "req-1")

	bid, err := svc.SubmitBid(ctx, "prov-1", job.JobID, 450, "")
	require.NoError(t, err)
	_, err = svc.AcceptBid(ctx, "req-1", bid.BidID)
	require.NoError(t, err)

	cancelled, err := svc.CancelJob(ctx, "req-1", job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.ContractorID)

	stored, err := store.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, stored.Status)
	assert.Nil(t, stored.ContractorID)
}

// openJobGate holds racing accepts at the job read so both observe the job
// as still open before either one writes.
type openJobGate struct {
	*storage.MemoryStore
	rendezvous chan struct{}
	armed      atomic.Bool
}

func (g *openJobGate) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := g.MemoryStore.GetJob(ctx, jobID)
	if err == nil && g.armed.Load() && job.Status == domain.JobStatusOpen {
		select {
		case g.rendezvous <- struct{}{}:
		case <-g.rendezvous:
		}
	}
	return job, err
}

func TestAcceptBidConcurrentAcceptsSingleWinner(t *testing.T) {
	store := storage.NewMemoryStore()
	gate := &openJobGate{MemoryStore: store, rendezvous: make(chan struct{})}
	svc := NewService(gate, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "req-1", "t", "d", 10)
	require.NoError(t, err)
	_, err = svc.PublishJob(ctx, "req-1", job.JobID)
	require.NoError(t, err)
	first, err := svc.SubmitBid(ctx, "prov-1", job.JobID, 100, "")
	require.NoError(t, err)
	second, err := svc.SubmitBid(ctx, "prov-2", job.JobID, 90, "")
	require.NoError(t, err)

	gate.armed.Store(true)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.AcceptBid(ctx, "req-1", first.BidID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.AcceptBid(ctx, "req-1", second.BidID)
	}()
	wg.Wait()

	winners := 0
	for _, acceptErr := range errs {
		if acceptErr == nil {
			winners++
		} else {
			assert.True(t, errors.Is(acceptErr, domain.ErrInvalidState))
		}
	}
	assert.Equal(t, 1, winners)

	bids, err := store.ListBidsByJob(ctx, job.JobID)
	require.NoError(t, err)
	accepted := 0
	for _, b := range bids {
		if b.Status == domain.BidStatusAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)

	final, err := store.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusInProgress, final.Status)
	require.NotNil(t, final.ContractorID)
}
