package workspaces

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oakline/atrium/internal/collab"
	"github.com/oakline/atrium/internal/domain"
	"github.com/oakline/atrium/internal/infrastructure/json"
	"github.com/oakline/atrium/internal/infrastructure/ws"
	"github.com/oakline/atrium/internal/presentation/utils"
)

const defaultSessionLimit = 50

type Handler struct {
	coordinator *collab.Coordinator
	store       *collab.Store
	sessions    domain.SessionRepository
	snapshots   domain.SnapshotRepository
	clientOpts  ws.ClientOptions
	logger      *zap.SugaredLogger
}

func NewHandler(
	coordinator *collab.Coordinator,
	store *collab.Store,
	sessions domain.SessionRepository,
	snapshots domain.SnapshotRepository,
	clientOpts ws.ClientOptions,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		coordinator: coordinator,
		store:       store,
		sessions:    sessions,
		snapshots:   snapshots,
		clientOpts:  clientOpts,
		logger:      logger,
	}
}

// JoinWorkspaceHandler upgrades the request to a websocket and attaches the
// connection to the workspace room. Identity is resolved before the upgrade
// so the user id cookie can still be set on the handshake response.
func (h *Handler) JoinWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	if workspaceID == "" {
		json.WriteValidationError(w, errors.New("workspace ID is missing"))
		return
	}

	ident := utils.IdentityFromRequest(w, r)

	conn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "workspaceId", workspaceID, "error", err)
		return
	}

	client := ws.NewClient(conn, uuid.NewString(), h.clientOpts, h.logger)

	// The request context dies with the handler; the connection outlives it.
	ctx := context.Background()
	if err := h.coordinator.HandleConnect(ctx, client, workspaceID, ident); err != nil {
		h.logger.Warnw("join rejected", "workspaceId", workspaceID, "error", err)
		client.Send(collab.NewError(collab.CodeValidation, "failed to join workspace"))
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(ctx, h.coordinator)
}

// GetObjectsHandler returns the live shared objects of a workspace.
func (h *Handler) GetObjectsHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	if workspaceID == "" {
		json.WriteValidationError(w, errors.New("workspace ID is missing"))
		return
	}

	objects := h.store.Objects(workspaceID)
	json.Write(w, http.StatusOK, objectsResponse{
		WorkspaceID: workspaceID,
		Objects:     objects,
		Count:       len(objects),
	})
}

// GetSnapshotHandler returns the last saved snapshot of a workspace.
func (h *Handler) GetSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	if workspaceID == "" {
		json.WriteValidationError(w, errors.New("workspace ID is missing"))
		return
	}

	snapshot, err := h.snapshots.GetByWorkspaceID(r.Context(), workspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			json.WriteNotFoundError(w, "workspace has no saved snapshot")
			return
		}
		h.logger.Errorw("failed to load snapshot", "workspaceId", workspaceID, "error", err)
		json.WriteInternalError(w, err)
		return
	}

	json.Write(w, http.StatusOK, snapshot)
}

// GetSessionsHandler returns recent sessions for a workspace, newest first.
func (h *Handler) GetSessionsHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	if workspaceID == "" {
		json.WriteValidationError(w, errors.New("workspace ID is missing"))
		return
	}

	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			json.WriteValidationError(w, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	sessions, err := h.sessions.GetByWorkspaceID(r.Context(), workspaceID, limit)
	if err != nil {
		h.logger.Errorw("failed to load sessions", "workspaceId", workspaceID, "error", err)
		json.WriteInternalError(w, err)
		return
	}

	json.Write(w, http.StatusOK, sessionsResponse{
		WorkspaceID: workspaceID,
		Sessions:    sessions,
		Count:       len(sessions),
	})
}
