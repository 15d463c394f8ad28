package workspaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oakline/atrium/internal/domain"
	"github.com/oakline/atrium/internal/infrastructure/ws"
)

type fakeSnapshotRepo struct {
	snapshots map[string]*domain.WorkspaceSnapshot
}

func (r *fakeSnapshotRepo) Save(_ context.Context, snapshot *domain.WorkspaceSnapshot) error {
	r.snapshots[snapshot.WorkspaceID] = snapshot
	return nil
}

func (r *fakeSnapshotRepo) GetByWorkspaceID(_ context.Context, workspaceID string) (*domain.WorkspaceSnapshot, error) {
	snapshot, ok := r.snapshots[workspaceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return snapshot, nil
}

func newSnapshotTestRouter(repo *fakeSnapshotRepo) http.Handler {
	h := NewHandler(nil, nil, nil, repo, ws.ClientOptions{}, zap.NewNop().Sugar())
	r := chi.NewRouter()
	r.Get("/api/workspaces/{workspaceId}/snapshot", h.GetSnapshotHandler)
	return r
}

func TestGetSnapshotHandler(t *testing.T) {
	repo := &fakeSnapshotRepo{snapshots: map[string]*domain.WorkspaceSnapshot{
		"ws1": {
			WorkspaceID: "ws1",
			SavedBy:     "alice",
			SavedAt:     time.Now().UTC(),
		},
	}}
	router := newSnapshotTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/ws1/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.WorkspaceSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ws1", got.WorkspaceID)
	assert.Equal(t, "alice", got.SavedBy)
}

func TestGetSnapshotHandlerNotFound(t *testing.T) {
	repo := &fakeSnapshotRepo{snapshots: map[string]*domain.WorkspaceSnapshot{}}
	router := newSnapshotTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/ghost/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
