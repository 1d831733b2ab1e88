package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbridge/marketplace-be/internal/api/handler"
	"github.com/workbridge/marketplace-be/internal/chat"
	"github.com/workbridge/marketplace-be/internal/identity"
	"github.com/workbridge/marketplace-be/internal/marketplace/lifecycle"
	"github.com/workbridge/marketplace-be/internal/marketplace/storage"
)

type testEnv struct {
	router   *gin.Engine
	store    *storage.MemoryStore
	verifier *identity.Verifier
	rooms    *chat.Rooms
	svc      *lifecycle.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	svc := lifecycle.NewService(store, logger)
	rooms := chat.NewRooms(store, logger)
	svc.OnRoomRequired(rooms.HandleRoomRequired)
	verifier := identity.NewVerifier("test-secret", true)

	r := SetupRouter(&handler.Dependencies{
		Logger:    logger,
		Lifecycle: svc,
		Rooms:     rooms,
		Store:     store,
		Verifier:  verifier,
		Presence:  chat.NopPresence{},
	})

	return &testEnv{router: r, store: store, verifier: verifier, rooms: rooms, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.verifier.Token(userID))
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/jobs", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer user-1:forged")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	// Create
	w := env.do(t, http.MethodPost, "/api/v1/jobs", "req-1", `{"title":"Fix the roof","budget":500}`)
	require.Equal(t, http.StatusCreated, w.Code)
	job := decodeBody(t, w)
	jobID := job["job_id"].(string)
	assert.Equal(t, "draft", job["status"])

	// Publish
	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/publish", "req-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "open", decodeBody(t, w)["status"])

	// A stranger may not publish
	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/publish", "intruder", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Bid
	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/bids", "prov-1", `{"amount":450,"note":"can start monday"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	bidID := decodeBody(t, w)["bid_id"].(string)

	// Duplicate bid conflicts
	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/bids", "prov-1", `{"amount":400}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Accept
	w = env.do(t, http.MethodPost, "/api/v1/bids/"+bidID+"/accept", "req-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "accepted", decodeBody(t, w)["status"])

	// Acceptance created the shared room.
	room, err := env.rooms.Lookup(context.Background(), jobID)
	require.NoError(t, err)
	for _, userID := range []string{"req-1", "prov-1"} {
		member, err := env.rooms.IsParticipant(context.Background(), room.RoomID, userID)
		require.NoError(t, err)
		assert.True(t, member, userID)
	}

	// Progress and completion
	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/progress", "prov-1", `{"progress":50}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(50), decodeBody(t, w)["progress"])

	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/complete", "req-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(100), body["progress"])

	// Terminal jobs reject further transitions.
	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/cancel", "req-1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/jobs", "req-1", `{"title":"t"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	jobID := decodeBody(t, w)["job_id"].(string)

	w = env.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, "req-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/jobs/does-not-exist", "req-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/api/v1/jobs", "req-1", `{"title":"t"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/v1/jobs", "req-2", `{"title":"t"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("filter by requester", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/jobs?requester_id=req-1", "req-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Len(t, body["jobs"], 3)
	})

	t.Run("cursor pagination", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/jobs?page_size=2", "req-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		require.Len(t, body["jobs"], 2)
		cursor, _ := body["next_cursor"].(string)
		require.NotEmpty(t, cursor)

		w = env.do(t, http.MethodGet, "/api/v1/jobs?page_size=2&cursor="+cursor, "req-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		body = decodeBody(t, w)
		assert.Len(t, body["jobs"], 2)
		_, hasMore := body["next_cursor"]
		assert.False(t, hasMore)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/jobs?status=bogus", "req-1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/jobs?cursor=%25%25", "req-1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListBidsVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.CreateJob(ctx, "req-1", "t", "", 100)
	require.NoError(t, err)
	_, err = env.svc.PublishJob(ctx, "req-1", job.JobID)
	require.NoError(t, err)
	_, err = env.svc.SubmitBid(ctx, "prov-1", job.JobID, 90, "")
	require.NoError(t, err)
	_, err = env.svc.SubmitBid(ctx, "prov-2", job.JobID, 95, "")
	require.NoError(t, err)

	// The requester sees every bid.
	w := env.do(t, http.MethodGet, "/api/v1/jobs/"+job.JobID+"/bids", "req-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["bids"], 2)

	// A provider sees only their own.
	w = env.do(t, http.MethodGet, "/api/v1/jobs/"+job.JobID+"/bids", "prov-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	bids := decodeBody(t, w)["bids"].([]any)
	require.Len(t, bids, 1)
	assert.Equal(t, "prov-1", bids[0].(map[string]any)["provider_id"])
}

func TestRoomMessagesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.CreateJob(ctx, "req-1", "t", "", 100)
	require.NoError(t, err)
	_, err = env.svc.PublishJob(ctx, "req-1", job.JobID)
	require.NoError(t, err)
	bid, err := env.svc.SubmitBid(ctx, "prov-1", job.JobID, 90, "")
	require.NoError(t, err)
	_, err = env.svc.AcceptBid(ctx, "req-1", bid.BidID)
	require.NoError(t, err)

	room, err := env.rooms.Lookup(ctx, job.JobID)
	require.NoError(t, err)
	for _, content := range []string{"hello", "hi there"} {
		_, err = env.store.CreateMessage(ctx, room.RoomID, "req-1", "", content, "text")
		require.NoError(t, err)
	}

	// Addressable by job id, oldest first.
	w := env.do(t, http.MethodGet, "/api/v1/rooms/"+job.JobID+"/messages", "prov-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	messages := decodeBody(t, w)["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].(map[string]any)["content"])

	// Non-participants are shut out.
	w = env.do(t, http.MethodGet, "/api/v1/rooms/"+room.RoomID+"/messages", "stranger", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/rooms/no-such-room/messages", "req-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPresenceDisabled(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/presence/user-1", "req-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
