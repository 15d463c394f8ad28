package collab

import (
	"context"
	"sync"

	"github.com/oakline/atrium/internal/domain"
	"go.uber.org/zap"
)

// SessionPublisher announces session lifecycle to interested consumers.
type SessionPublisher interface {
	PublishSessionStarted(ctx context.Context, session domain.Session) error
	PublishSessionEnded(ctx context.Context, session domain.Session) error
}

// SnapshotPublisher announces persisted workspace snapshots to interested
// consumers.
type SnapshotPublisher interface {
	PublishRoomSaved(ctx context.Context, snapshot *domain.WorkspaceSnapshot) error
}

// SessionTracker records workspace occupancy for audit and export. A session
// opens on the first join into an idle workspace and ends when its last
// participant leaves; ended sessions are terminal and a later join opens a
// fresh one. Persistence happens only at these boundaries.
type SessionTracker struct {
	mu        sync.Mutex
	active    map[string]*domain.Session // workspace id -> active session
	repo      domain.SessionRepository
	publisher SessionPublisher
	logger    *zap.SugaredLogger
}

func NewSessionTracker(repo domain.SessionRepository, publisher SessionPublisher, logger *zap.SugaredLogger) *SessionTracker {
	return &SessionTracker{
		active:    make(map[string]*domain.Session),
		repo:      repo,
		publisher: publisher,
		logger:    logger.Named("sessions"),
	}
}

// Join extends the workspace's active session with the participant, opening a
// new session if none is active.
func (t *SessionTracker) Join(ctx context.Context, workspaceID, userID, connID string) {
	t.mu.Lock()
	session, ok := t.active[workspaceID]
	started := false
	if !ok {
		session = domain.NewSession(workspaceID)
		t.active[workspaceID] = session
		started = true
	}
	session.AddParticipant(userID, connID)
	snapshot := *session
	t.mu.Unlock()

	if err := t.repo.Save(ctx, &snapshot); err != nil {
		t.logger.Errorw("failed to persist session", "sessionId", snapshot.ID, "error", err)
	}
	if started && t.publisher != nil {
		if err := t.publisher.PublishSessionStarted(ctx, snapshot); err != nil {
			t.logger.Errorw("failed to publish session start", "sessionId", snapshot.ID, "error", err)
		}
	}
}

// Leave stamps the participant's interval end. When the last participant
// leaves, the session ends: the tracker stamps end time, derives duration,
// persists the record and publishes the closure. An abrupt disconnect takes
// this same path. Returns the ended session, if any.
func (t *SessionTracker) Leave(ctx context.Context, workspaceID, connID string) *domain.Session {
	t.mu.Lock()
	session, ok := t.active[workspaceID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	remaining := session.MarkLeft(connID)
	var ended *domain.Session
	if remaining == 0 {
		session.End()
		delete(t.active, workspaceID)
		ended = session
	}
	snapshot := *session
	t.mu.Unlock()

	if err := t.repo.Save(ctx, &snapshot); err != nil {
		t.logger.Errorw("failed to persist session", "sessionId", snapshot.ID, "error", err)
	}
	if ended != nil && t.publisher != nil {
		if err := t.publisher.PublishSessionEnded(ctx, snapshot); err != nil {
			t.logger.Errorw("failed to publish session end", "sessionId", snapshot.ID, "error", err)
		}
	}
	return ended
}

// RecordInteraction counts one accepted mutation against the workspace's
// active session.
func (t *SessionTracker) RecordInteraction(workspaceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if session, ok := t.active[workspaceID]; ok {
		session.Interactions++
	}
}

// Active returns a copy of the workspace's active session, if any.
func (t *SessionTracker) Active(workspaceID string) (domain.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.active[workspaceID]
	if !ok {
		return domain.Session{}, false
	}
	return *session, true
}
