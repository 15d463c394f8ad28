package collab

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oakline/atrium/internal/domain"
	"github.com/oakline/atrium/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// Coordinator receives mutation intents from connections, applies them to the
// shared object store under its conflict policy, and fans the accepted result
// out to every other participant in the same workspace. Errors go back to the
// requester only; no error here is process-fatal.
type Coordinator struct {
	registry  *Registry
	directory *Directory
	store     *Store
	sessions  *SessionTracker
	relay     *Relay
	snapshots domain.SnapshotRepository
	publisher SnapshotPublisher
	authz     domain.Authorizer
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger

	sweepInterval time.Duration
}

func NewCoordinator(
	registry *Registry,
	directory *Directory,
	store *Store,
	sessions *SessionTracker,
	relay *Relay,
	snapshots domain.SnapshotRepository,
	publisher SnapshotPublisher,
	authz domain.Authorizer,
	m *metrics.Metrics,
	logger *zap.SugaredLogger,
) *Coordinator {
	return &Coordinator{
		registry:      registry,
		directory:     directory,
		store:         store,
		sessions:      sessions,
		relay:         relay,
		snapshots:     snapshots,
		publisher:     publisher,
		authz:         authz,
		metrics:       m,
		logger:        logger.Named("coordinator"),
		sweepInterval: 10 * time.Second,
	}
}

// Run sweeps workspaces whose grace period has expired, dropping their shared
// state. It blocks until the context is cancelled.
func (co *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(co.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, workspaceID := range co.registry.Reap(now, co.store.DropWorkspace) {
				co.logger.Infow("workspace reclaimed", "workspaceId", workspaceID)
			}
			co.metrics.OpenWorkspaces.Set(float64(co.registry.RoomCount()))
		}
	}
}

// HandleConnect joins the connection to a workspace. A connection already in
// another workspace leaves it first, with full cleanup; rejoining the same
// workspace is a no-op.
func (co *Coordinator) HandleConnect(ctx context.Context, c Conn, workspaceID string, ident domain.Identity) error {
	if workspaceID == "" {
		return domain.ErrValidation
	}

	if prev, ok := co.registry.WorkspaceOf(c.ID()); ok {
		if prev == workspaceID {
			return nil
		}
		co.detach(ctx, c)
	}

	if _, err := co.registry.Join(workspaceID, c); err != nil {
		return err
	}

	p := domain.NewParticipant(c.ID(), workspaceID, ident)
	co.directory.Register(p)
	co.sessions.Join(ctx, workspaceID, p.UserID, c.ID())

	co.metrics.Participants.Set(float64(co.directory.Count()))
	co.metrics.OpenWorkspaces.Set(float64(co.registry.RoomCount()))

	existing := make(map[string]ParticipantPayload)
	for id, peer := range co.directory.Snapshot(workspaceID, c.ID()) {
		existing[id] = participantPayload(peer)
	}
	c.Send(&Event{
		Type:        ParticipantExisting,
		WorkspaceID: workspaceID,
		Data:        ExistingParticipantsPayload{Participants: existing},
	})

	co.fanOut(workspaceID, c, NewParticipantJoined(*p))
	co.logger.Infow("participant joined",
		"workspaceId", workspaceID, "connectionId", c.ID(), "userId", p.UserID)
	return nil
}

// HandleDisconnect runs the full leave path for a closed connection. An
// abrupt disconnect and a graceful leave are indistinguishable here.
func (co *Coordinator) HandleDisconnect(ctx context.Context, c Conn) {
	co.detach(ctx, c)
}

// detach removes every trace of a connection: locks are released and its
// in-flight stroke discarded before any session accounting runs, so no
// resource outlives its owner.
func (co *Coordinator) detach(ctx context.Context, c Conn) {
	connID := c.ID()
	workspaceID, ok := co.registry.WorkspaceOf(connID)
	if !ok {
		co.registry.Leave(connID)
		return
	}

	for _, obj := range co.store.ReleaseLocks(workspaceID, connID) {
		co.fanOut(workspaceID, c, NewObjectLock(obj))
	}
	co.store.DiscardPendingStroke(workspaceID, connID)

	p, registered := co.directory.Remove(connID)
	co.registry.Leave(connID)
	if registered {
		co.fanOut(workspaceID, c, NewParticipantLeft(p))
	}

	if ended := co.sessions.Leave(ctx, workspaceID, connID); ended != nil {
		co.metrics.SessionsEnded.Inc()
		co.logger.Infow("session ended",
			"workspaceId", workspaceID, "sessionId", ended.ID,
			"durationMinutes", ended.DurationMinutes)
	}

	co.metrics.Participants.Set(float64(co.directory.Count()))
	co.logger.Infow("participant left", "workspaceId", workspaceID, "connectionId", connID)
}

// HandleMessage dispatches one inbound envelope. A malformed or rejected
// message affects only its own workspace and originating connection.
func (co *Coordinator) HandleMessage(ctx context.Context, c Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		co.reject(c, "envelope", domain.ErrValidation)
		return
	}

	switch env.Type {
	case RoomJoin:
		var p JoinPayload
		if !co.decode(c, env, &p) {
			return
		}
		ident := domain.Identity{}
		if existing, ok := co.directory.Get(c.ID()); ok {
			ident = domain.Identity{UserID: existing.UserID, Name: existing.Name}
		}
		if err := co.HandleConnect(ctx, c, p.WorkspaceID, ident); err != nil {
			co.reject(c, env.Type, err)
		}

	case RoomLeave:
		co.detach(ctx, c)

	case RoomSave:
		co.handleSave(ctx, c)

	case PresenceMove:
		var p MovePayload
		if !co.decode(c, env, &p) {
			return
		}
		// Silent no-op when unregistered: a late move after disconnect
		// must not resurrect state.
		if updated, ok := co.directory.UpdatePosition(c.ID(), p.Position); ok {
			co.fanOut(updated.WorkspaceID, c, &Event{
				Type:        ParticipantMoved,
				WorkspaceID: updated.WorkspaceID,
				Data: ParticipantMovedPayload{
					ConnectionID: c.ID(),
					Position:     updated.Position,
				},
			})
		}

	case VoiceStart, VoiceStop:
		if updated, ok := co.directory.SetVoiceActive(c.ID(), env.Type == VoiceStart); ok {
			co.fanOut(updated.WorkspaceID, c, &Event{
				Type:        ParticipantVoice,
				WorkspaceID: updated.WorkspaceID,
				Data: ParticipantVoicePayload{
					ConnectionID: c.ID(),
					UserID:       updated.UserID,
					VoiceActive:  updated.VoiceActive,
				},
			})
		}

	case NoteCreate:
		co.handleNoteCreate(c, env)

	case NoteUpdate:
		co.handleUpdate(c, env, false)

	case ModelMove:
		co.handleUpdate(c, env, true)

	case NoteDelete, ModelDelete:
		co.handleDelete(ctx, c, env)

	case NoteLock, NoteUnlock:
		co.handleLock(c, env)

	case ModelCreate:
		co.handleModelCreate(c, env)

	case StrokeStart:
		co.handleStrokeStart(c, env)

	case StrokePoint:
		co.handleStrokePoint(c, env)

	case StrokeCommit:
		co.handleStrokeCommit(c)

	case SignalOffer, SignalAnswer, SignalCandidate:
		var p SignalPayload
		if !co.decode(c, env, &p) {
			return
		}
		co.relay.Forward(env.Type, c, p.Target, p.Payload)

	default:
		co.logger.Warnw("unknown event type", "type", env.Type, "connectionId", c.ID())
		co.reject(c, env.Type, domain.ErrValidation)
	}
}

// participant resolves the sender and its workspace, rejecting mutations from
// connections that are not members of any workspace.
func (co *Coordinator) participant(c Conn) (domain.Participant, bool) {
	p, ok := co.directory.Get(c.ID())
	if !ok {
		co.reject(c, "membership", domain.ErrNotInWorkspace)
		return domain.Participant{}, false
	}
	return p, true
}

func (co *Coordinator) handleNoteCreate(c Conn, env Envelope) {
	p, ok := co.participant(c)
	if !ok {
		return
	}
	var req CreateNotePayload
	if !co.decode(c, env, &req) {
		return
	}

	obj, err := co.store.CreateNote(p.WorkspaceID, req.ID, p.UserID, domain.Note{
		Text:     req.Text,
		Position: req.Position,
		Color:    req.Color,
		Size:     req.Size,
	})
	if err != nil {
		co.reject(c, env.Type, err)
		return
	}
	co.accept(c, p.WorkspaceID, obj, ObjectCreated, true)
}

func (co *Coordinator) handleModelCreate(c Conn, env Envelope) {
	p, ok := co.participant(c)
	if !ok {
		return
	}
	var req CreateModelPayload
	if !co.decode(c, env, &req) {
		return
	}

	obj, err := co.store.CreateModel(p.WorkspaceID, req.ID, p.UserID, domain.ModelTransform{
		Name:     req.Name,
		FileRef:  req.FileRef,
		Format:   req.Format,
		Position: req.Position,
		Rotation: req.Rotation,
		Scale:    req.Scale,
	})
	if err != nil {
		co.reject(c, env.Type, err)
		return
	}
	co.accept(c, p.WorkspaceID, obj, ObjectCreated, true)
}

func (co *Coordinator) handleUpdate(c Conn, env Envelope, moveOnly bool) {
	p, ok := co.participant(c)
	if !ok {
		return
	}
	var req UpdateObjectPayload
	if !co.decode(c, env, &req) {
		return
	}

	var (
		obj *domain.SharedObject
		err error
	)
	if moveOnly {
		obj, err = co.store.Move(p.WorkspaceID, req.ObjectID, req.Patch, c.ID(), p.UserID)
	} else {
		obj, err = co.store.Update(p.WorkspaceID, req.ObjectID, req.Patch, c.ID(), p.UserID)
	}
	if err != nil {
		co.reject(c, env.Type, err)
		return
	}
	co.accept(c, p.WorkspaceID, obj, ObjectUpdated, false)
}

func (co *Coordinator) handleDelete(ctx context.Context, c Conn, env Envelope) {
	p, ok := co.participant(c)
	if !ok {
		return
	}
	var req ObjectRefPayload
	if !co.decode(c, env, &req) {
		return
	}

	obj, err := co.store.Get(p.WorkspaceID, req.ObjectID)
	if err != nil {
		co.reject(c, env.Type, err)
		return
	}

	allowed := obj.CreatedBy == p.UserID
	if !allowed {
		allowed, err = co.authz.CanDelete(ctx, p.WorkspaceID, p.UserID, obj)
		if err != nil {
			co.logger.Errorw("authorization check failed", "objectId", req.ObjectID, "error", err)
			allowed = false
		}
	}
	if !allowed {
		co.reject(c, env.Type, domain.ErrPermissionDenied)
		return
	}

	if _, err := co.store.Delete(p.WorkspaceID, req.ObjectID); err != nil {
		co.reject(c, env.Type, err)
		return
	}

	co.metrics.MutationsAccepted.WithLabelValues(string(obj.Kind)).Inc()
	co.sessions.RecordInteraction(p.WorkspaceID)
	co.fanOut(p.WorkspaceID, c, &Event{
		Type:        ObjectDeleted,
		WorkspaceID: p.WorkspaceID,
		Data:        ObjectDeletedPayload{ObjectID: req.ObjectID, DeletedBy: p.UserID},
	})
}

func (co *Coordinator) handleLock(c Conn, env Envelope) {
	p, ok := co.participant(c)
	if !ok {
		return
	}
	var req ObjectRefPayload
	if !co.decode(c, env, &req) {
		return
	}

	var (
		obj *domain.SharedObject
		err error
	)
	if env.Type == NoteLock {
		obj, err = co.store.Lock(p.WorkspaceID, req.ObjectID, c.ID())
	} else {
		obj, err = co.store.Unlock(p.WorkspaceID, req.ObjectID, c.ID())
	}
	if err != nil {
		co.reject(c, env.Type, err)
		return
	}
	co.fanOut(p.WorkspaceID, c, NewObjectLock(obj))
}

func (co *Coordinator) handleStrokeStart(c Conn, env Envelope) {
	p, ok := co.participant(c)
	if !ok {
		return
	}
	var req StartStrokePayload
	if !co.decode(c, env, &req) {
		return
	}

	stroke := co.store.StartStroke(p.WorkspaceID, c.ID(), p.UserID, req)
	co.fanOut(p.WorkspaceID, c, &Event{
		Type:        StrokeStarted,
		WorkspaceID: p.WorkspaceID,
		Data: StrokeProgressPayload{
			ConnectionID: c.ID(),
			StrokeID:     stroke.ID,
			Point:        req.Point,
			Color:        stroke.Stroke.Color,
			Width:        stroke.Stroke.Width,
			Tool:         stroke.Stroke.Tool,
		},
	})
}

func (co *Coordinator) handleStrokePoint(c Conn, env Envelope) {
	p, ok := co.participant(c)
	if !ok {
		return
	}
	var req StrokePointPayload
	if !co.decode(c, env, &req) {
		return
	}

	stroke, err := co.store.AppendStrokePoint(p.WorkspaceID, c.ID(), req.Point)
	if err != nil {
		co.reject(c, env.Type, err)
		return
	}
	co.fanOut(p.WorkspaceID, c, &Event{
		Type:        StrokeContinued,
		WorkspaceID: p.WorkspaceID,
		Data: StrokeProgressPayload{
			ConnectionID: c.ID(),
			StrokeID:     stroke.ID,
			Point:        req.Point,
		},
	})
}

func (co *Coordinator) handleStrokeCommit(c Conn) {
	p, ok := co.participant(c)
	if !ok {
		return
	}

	obj, err := co.store.CommitStroke(p.WorkspaceID, c.ID())
	if err != nil {
		co.reject(c, StrokeCommit, err)
		return
	}
	co.accept(c, p.WorkspaceID, obj, StrokeCompleted, true)
}

// handleSave flushes a flat snapshot (objects + participants) through the
// persistence collaborator and acks the author. Persistence is never
// consulted mid-mutation; this is one of the two session boundaries.
func (co *Coordinator) handleSave(ctx context.Context, c Conn) {
	p, ok := co.participant(c)
	if !ok {
		return
	}

	snapshot := &domain.WorkspaceSnapshot{
		WorkspaceID:  p.WorkspaceID,
		Objects:      co.store.Objects(p.WorkspaceID),
		Participants: co.directory.All(p.WorkspaceID),
		SavedBy:      p.UserID,
		SavedAt:      time.Now().UTC(),
	}
	if err := co.snapshots.Save(ctx, snapshot); err != nil {
		co.logger.Errorw("snapshot save failed", "workspaceId", p.WorkspaceID, "error", err)
		c.Send(NewError(CodeInternal, "failed to save workspace"))
		return
	}

	if co.publisher != nil {
		if err := co.publisher.PublishRoomSaved(ctx, snapshot); err != nil {
			co.logger.Errorw("failed to publish room save", "workspaceId", p.WorkspaceID, "error", err)
		}
	}

	c.Send(&Event{
		Type:        RoomSaved,
		WorkspaceID: p.WorkspaceID,
		Data:        RoomSavedPayload{WorkspaceID: p.WorkspaceID, ObjectCount: len(snapshot.Objects)},
	})
}

// accept records an accepted mutation, optionally acking the author with the
// committed state (creates and stroke commits carry server-assigned ids and
// versions the author does not have yet), then fans out to everyone else.
func (co *Coordinator) accept(c Conn, workspaceID string, obj *domain.SharedObject, eventType string, ackAuthor bool) {
	co.metrics.MutationsAccepted.WithLabelValues(string(obj.Kind)).Inc()
	co.sessions.RecordInteraction(workspaceID)

	ev := NewObjectEvent(eventType, obj)
	if ackAuthor {
		c.Send(ev)
	}
	co.fanOut(workspaceID, c, ev)
}

// fanOut sends the event to every workspace member except the author. A full
// peer buffer drops the event for that peer only; its write pump deals with
// the connection's health.
func (co *Coordinator) fanOut(workspaceID string, except Conn, ev *Event) {
	exceptID := ""
	if except != nil {
		exceptID = except.ID()
	}
	for _, peer := range co.registry.Peers(workspaceID, exceptID) {
		if peer.Send(ev) {
			co.metrics.FanOutMessages.Inc()
		} else {
			co.metrics.FanOutDropped.Inc()
			co.logger.Warnw("peer send buffer full, dropping event",
				"workspaceId", workspaceID, "peer", peer.ID(), "type", ev.Type)
		}
	}
}

func (co *Coordinator) decode(c Conn, env Envelope, dst any) bool {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		co.reject(c, env.Type, domain.ErrValidation)
		return false
	}
	return true
}

// reject reports a failure to the requester only. No fan-out, no state
// change.
func (co *Coordinator) reject(c Conn, op string, err error) {
	code := errorCode(err)
	co.metrics.MutationsRejected.WithLabelValues(code).Inc()
	co.logger.Debugw("rejected", "op", op, "connectionId", c.ID(), "code", code, "error", err)
	c.Send(NewError(code, err.Error()))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrLockConflict):
		return CodeLockConflict
	case errors.Is(err, domain.ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrWorkspaceNotFound):
		return CodeNotFound
	default:
		return CodeValidation
	}
}
