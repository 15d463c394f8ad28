package collab

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oakline/atrium/internal/domain"
	"github.com/oakline/atrium/internal/infrastructure/metrics"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []*Event
	full   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(ev *Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeConn) eventsOfType(eventType string) []*Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Event
	for _, ev := range f.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeConn) lastError() (ErrorPayload, bool) {
	errs := f.eventsOfType(ErrorEvent)
	if len(errs) == 0 {
		return ErrorPayload{}, false
	}
	payload, ok := errs[len(errs)-1].Data.(ErrorPayload)
	return payload, ok
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

type fakeSessionRepo struct {
	mu    sync.Mutex
	saved []domain.Session
}

func (r *fakeSessionRepo) Save(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, *session)
	return nil
}

func (r *fakeSessionRepo) GetByWorkspaceID(_ context.Context, workspaceID string, limit int) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.saved {
		if s.WorkspaceID == workspaceID && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeSnapshotRepo struct {
	mu    sync.Mutex
	saved []*domain.WorkspaceSnapshot
	err   error
}

func (r *fakeSnapshotRepo) Save(_ context.Context, snapshot *domain.WorkspaceSnapshot) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, snapshot)
	return nil
}

func (r *fakeSnapshotRepo) GetByWorkspaceID(_ context.Context, workspaceID string) (*domain.WorkspaceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.saved {
		if s.WorkspaceID == workspaceID {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeAuthorizer struct {
	allow bool
	err   error
}

func (a *fakeAuthorizer) CanDelete(context.Context, string, string, *domain.SharedObject) (bool, error) {
	return a.allow, a.err
}

type fakePublisher struct {
	mu      sync.Mutex
	started []domain.Session
	ended   []domain.Session
	saves   []*domain.WorkspaceSnapshot
}

func (p *fakePublisher) PublishSessionStarted(_ context.Context, s domain.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, s)
	return nil
}

func (p *fakePublisher) PublishSessionEnded(_ context.Context, s domain.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, s)
	return nil
}

func (p *fakePublisher) PublishRoomSaved(_ context.Context, snapshot *domain.WorkspaceSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, snapshot)
	return nil
}

type coordinatorDeps struct {
	registry  *Registry
	directory *Directory
	store     *Store
	sessions  *SessionTracker
	snapshots *fakeSnapshotRepo
	authz     *fakeAuthorizer
	publisher *fakePublisher
}

func newTestCoordinator(t *testing.T) (*Coordinator, *coordinatorDeps) {
	t.Helper()

	logger := zap.NewNop().Sugar()
	m := metrics.New(prometheus.NewRegistry())

	deps := &coordinatorDeps{
		registry:  NewRegistry(0),
		directory: NewDirectory(),
		store:     NewStore(),
		snapshots: &fakeSnapshotRepo{},
		authz:     &fakeAuthorizer{},
		publisher: &fakePublisher{},
	}
	deps.sessions = NewSessionTracker(&fakeSessionRepo{}, deps.publisher, logger)

	co := NewCoordinator(
		deps.registry, deps.directory, deps.store, deps.sessions,
		NewRelay(deps.registry, m, logger),
		deps.snapshots, deps.publisher, deps.authz, m, logger,
	)
	return co, deps
}

func envelope(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Envelope{Type: eventType, Data: data})
	require.NoError(t, err)
	return raw
}

func join(t *testing.T, co *Coordinator, id, workspaceID, userID string) *fakeConn {
	t.Helper()
	c := newFakeConn(id)
	err := co.HandleConnect(context.Background(), c, workspaceID, domain.Identity{UserID: userID, Name: userID})
	require.NoError(t, err)
	return c
}

func TestConnectSendsExistingAndAnnouncesJoin(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")

	existing := alice.eventsOfType(ParticipantExisting)
	require.Len(t, existing, 1)
	assert.Empty(t, existing[0].Data.(ExistingParticipantsPayload).Participants)

	bob := join(t, co, "c2", "ws1", "bob")

	existing = bob.eventsOfType(ParticipantExisting)
	require.Len(t, existing, 1)
	peers := existing[0].Data.(ExistingParticipantsPayload).Participants
	require.Len(t, peers, 1)
	assert.Equal(t, "alice", peers["c1"].UserID)

	joined := alice.eventsOfType(ParticipantJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "bob", joined[0].Data.(ParticipantPayload).UserID)

	// The joiner never sees its own join.
	assert.Empty(t, bob.eventsOfType(ParticipantJoined))
}

func TestConnectEmptyWorkspace(t *testing.T) {
	co, _ := newTestCoordinator(t)
	err := co.HandleConnect(context.Background(), newFakeConn("c1"), "", domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRejoinSameWorkspaceIsNoOp(t *testing.T) {
	co, deps := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	alice.reset()

	err := co.HandleConnect(context.Background(), alice, "ws1", domain.Identity{UserID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, alice.events)
	assert.Equal(t, 1, deps.directory.Count())
}

func TestMoveToAnotherWorkspaceDetachesFirst(t *testing.T) {
	co, deps := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")

	bob.reset()
	err := co.HandleConnect(context.Background(), bob, "ws2", domain.Identity{UserID: "bob"})
	require.NoError(t, err)

	left := alice.eventsOfType(ParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "bob", left[0].Data.(ParticipantLeftPayload).UserID)

	ws, ok := deps.registry.WorkspaceOf("c2")
	require.True(t, ok)
	assert.Equal(t, "ws2", ws)
}

func TestNoteCreateAcksAuthorAndFansOut(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")
	alice.reset()
	bob.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{Text: "hello"}))

	created := alice.eventsOfType(ObjectCreated)
	require.Len(t, created, 1, "author gets the committed state back")
	obj := created[0].Data.(ObjectPayload).Object
	assert.NotEmpty(t, obj.ID)
	assert.Equal(t, uint64(1), obj.Version)
	assert.Equal(t, "alice", obj.CreatedBy)

	require.Len(t, bob.eventsOfType(ObjectCreated), 1)
}

func TestNoteCreateValidationErrorOnlyToRequester(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")
	alice.reset()
	bob.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{Text: ""}))

	errPayload, ok := alice.lastError()
	require.True(t, ok)
	assert.Equal(t, CodeValidation, errPayload.Code)
	assert.Empty(t, bob.events, "rejections never fan out")
}

func TestUpdateFansOutToOthersOnly(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{ID: "n1", Text: "v1"}))
	alice.reset()
	bob.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, NoteUpdate, UpdateObjectPayload{
		ObjectID: "n1",
		Patch:    ObjectPatch{Text: strPtr("v2")},
	}))

	assert.Empty(t, alice.eventsOfType(ObjectUpdated), "updates carry no author ack")
	updated := bob.eventsOfType(ObjectUpdated)
	require.Len(t, updated, 1)
	obj := updated[0].Data.(ObjectPayload).Object
	assert.Equal(t, "v2", obj.Note.Text)
	assert.Equal(t, uint64(2), obj.Version)
}

func TestLockConflictScenario(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{ID: "n1", Text: "draft"}))
	alice.reset()
	bob.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, NoteLock, ObjectRefPayload{ObjectID: "n1"}))

	locks := bob.eventsOfType(ObjectLock)
	require.Len(t, locks, 1)
	lock := locks[0].Data.(ObjectLockPayload)
	assert.True(t, lock.Locked)
	assert.Equal(t, "c1", lock.LockedBy)

	// Bob's edit is rejected, privately, with no version change.
	bob.reset()
	co.HandleMessage(context.Background(), bob, envelope(t, NoteUpdate, UpdateObjectPayload{
		ObjectID: "n1",
		Patch:    ObjectPatch{Text: strPtr("bob was here")},
	}))

	errPayload, ok := bob.lastError()
	require.True(t, ok)
	assert.Equal(t, CodeLockConflict, errPayload.Code)
	assert.Empty(t, alice.eventsOfType(ObjectUpdated))

	// Unlock fans out and reopens the note.
	bob.reset()
	co.HandleMessage(context.Background(), alice, envelope(t, NoteUnlock, ObjectRefPayload{ObjectID: "n1"}))
	locks = bob.eventsOfType(ObjectLock)
	require.Len(t, locks, 1)
	assert.False(t, locks[0].Data.(ObjectLockPayload).Locked)

	co.HandleMessage(context.Background(), bob, envelope(t, NoteUpdate, UpdateObjectPayload{
		ObjectID: "n1",
		Patch:    ObjectPatch{Text: strPtr("bob was here")},
	}))
	require.Len(t, alice.eventsOfType(ObjectUpdated), 1)
}

func TestDeleteRequiresCreatorOrRole(t *testing.T) {
	co, deps := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{ID: "n1", Text: "mine"}))
	alice.reset()
	bob.reset()

	// Bob is neither creator nor privileged.
	co.HandleMessage(context.Background(), bob, envelope(t, NoteDelete, ObjectRefPayload{ObjectID: "n1"}))
	errPayload, ok := bob.lastError()
	require.True(t, ok)
	assert.Equal(t, CodePermissionDenied, errPayload.Code)

	// With an owner/admin role the same request succeeds.
	deps.authz.allow = true
	bob.reset()
	co.HandleMessage(context.Background(), bob, envelope(t, NoteDelete, ObjectRefPayload{ObjectID: "n1"}))

	deleted := alice.eventsOfType(ObjectDeleted)
	require.Len(t, deleted, 1)
	payload := deleted[0].Data.(ObjectDeletedPayload)
	assert.Equal(t, "n1", payload.ObjectID)
	assert.Equal(t, "bob", payload.DeletedBy)
}

func TestDeleteByCreator(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{ID: "n1", Text: "mine"}))
	bob.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, NoteDelete, ObjectRefPayload{ObjectID: "n1"}))
	require.Len(t, bob.eventsOfType(ObjectDeleted), 1)
}

func TestPresenceMoveFansOut(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")
	alice.reset()
	bob.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, PresenceMove, MovePayload{Position: domain.Vec3{X: 5}}))

	assert.Empty(t, alice.eventsOfType(ParticipantMoved), "no echo to the mover")
	moved := bob.eventsOfType(ParticipantMoved)
	require.Len(t, moved, 1)
	payload := moved[0].Data.(ParticipantMovedPayload)
	assert.Equal(t, "c1", payload.ConnectionID)
	assert.Equal(t, domain.Vec3{X: 5}, payload.Position)
}

func TestVoiceToggle(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")
	bob.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, VoiceStart, struct{}{}))
	voice := bob.eventsOfType(ParticipantVoice)
	require.Len(t, voice, 1)
	assert.True(t, voice[0].Data.(ParticipantVoicePayload).VoiceActive)

	bob.reset()
	co.HandleMessage(context.Background(), alice, envelope(t, VoiceStop, struct{}{}))
	voice = bob.eventsOfType(ParticipantVoice)
	require.Len(t, voice, 1)
	assert.False(t, voice[0].Data.(ParticipantVoicePayload).VoiceActive)
}

func TestStrokeFlow(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")
	alice.reset()
	bob.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, StrokeStart, StartStrokePayload{ID: "s1", Point: domain.Vec3{X: 1}}))
	started := bob.eventsOfType(StrokeStarted)
	require.Len(t, started, 1)
	assert.Equal(t, "s1", started[0].Data.(StrokeProgressPayload).StrokeID)

	co.HandleMessage(context.Background(), alice, envelope(t, StrokePoint, StrokePointPayload{Point: domain.Vec3{X: 2}}))
	co.HandleMessage(context.Background(), alice, envelope(t, StrokePoint, StrokePointPayload{Point: domain.Vec3{X: 3}}))
	assert.Len(t, bob.eventsOfType(StrokeContinued), 2)

	co.HandleMessage(context.Background(), alice, envelope(t, StrokeCommit, struct{}{}))

	completed := alice.eventsOfType(StrokeCompleted)
	require.Len(t, completed, 1, "commit acks the author with the frozen stroke")
	obj := completed[0].Data.(ObjectPayload).Object
	assert.Len(t, obj.Stroke.Points, 2, "one stored point per stroke.point message")
	require.Len(t, bob.eventsOfType(StrokeCompleted), 1)
}

func TestStrokeCommitWithoutStart(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	alice.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, StrokeCommit, struct{}{}))
	errPayload, ok := alice.lastError()
	require.True(t, ok)
	assert.Equal(t, CodeValidation, errPayload.Code)
}

func TestSignalRelay(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")
	bob.reset()

	sdp := json.RawMessage(`{"sdp":"offer"}`)
	co.HandleMessage(context.Background(), alice, envelope(t, SignalOffer, SignalPayload{Target: "c2", Payload: sdp}))

	offers := bob.eventsOfType(SignalOffer)
	require.Len(t, offers, 1)
	relayed := offers[0].Data.(SignalRelayPayload)
	assert.Equal(t, "c1", relayed.From)
	assert.JSONEq(t, string(sdp), string(relayed.Payload))
}

func TestSignalToGoneTargetDropsSilently(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	alice.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, SignalAnswer, SignalPayload{Target: "ghost", Payload: json.RawMessage(`{}`)}))
	assert.Empty(t, alice.events, "no error for a vanished signaling target")
}

func TestDisconnectReleasesLocksBeforeLeaving(t *testing.T) {
	co, deps := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{ID: "n1", Text: "draft"}))
	co.HandleMessage(context.Background(), alice, envelope(t, NoteLock, ObjectRefPayload{ObjectID: "n1"}))
	bob.reset()

	co.HandleDisconnect(context.Background(), alice)

	locks := bob.eventsOfType(ObjectLock)
	require.Len(t, locks, 1)
	assert.False(t, locks[0].Data.(ObjectLockPayload).Locked)

	left := bob.eventsOfType(ParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "alice", left[0].Data.(ParticipantLeftPayload).UserID)

	// Bob can now lock the note himself.
	_, err := deps.store.Lock("ws1", "n1", "c2")
	assert.NoError(t, err)
}

func TestDisconnectOfUnknownConnection(t *testing.T) {
	co, _ := newTestCoordinator(t)
	co.HandleDisconnect(context.Background(), newFakeConn("ghost"))
}

func TestMessagesAfterDisconnectAreRejected(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	co.HandleDisconnect(context.Background(), alice)
	alice.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{Text: "ghost note"}))
	errPayload, ok := alice.lastError()
	require.True(t, ok)
	assert.Equal(t, CodeValidation, errPayload.Code)
}

func TestSessionLifecycle(t *testing.T) {
	co, deps := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")

	session, ok := deps.sessions.Active("ws1")
	require.True(t, ok)
	assert.Len(t, session.Participants, 2)
	require.Len(t, deps.publisher.started, 1, "one session per occupancy interval")

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{Text: "x"}))
	session, _ = deps.sessions.Active("ws1")
	assert.Equal(t, uint64(1), session.Interactions)

	co.HandleDisconnect(context.Background(), alice)
	_, ok = deps.sessions.Active("ws1")
	assert.True(t, ok, "session survives while bob remains")

	co.HandleDisconnect(context.Background(), bob)
	_, ok = deps.sessions.Active("ws1")
	assert.False(t, ok)

	require.Len(t, deps.publisher.ended, 1)
	ended := deps.publisher.ended[0]
	assert.False(t, ended.Active)
	assert.NotNil(t, ended.EndedAt)
}

func TestRoomSave(t *testing.T) {
	co, deps := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{ID: "n1", Text: "keep me"}))
	alice.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, RoomSave, struct{}{}))

	saved := alice.eventsOfType(RoomSaved)
	require.Len(t, saved, 1)
	assert.Equal(t, 1, saved[0].Data.(RoomSavedPayload).ObjectCount)

	require.Len(t, deps.snapshots.saved, 1)
	snapshot := deps.snapshots.saved[0]
	assert.Equal(t, "ws1", snapshot.WorkspaceID)
	assert.Equal(t, "alice", snapshot.SavedBy)
	require.Len(t, snapshot.Objects, 1)
	assert.Len(t, snapshot.Participants, 1)

	// The save is announced to messaging consumers as well.
	require.Len(t, deps.publisher.saves, 1)
	assert.Equal(t, "ws1", deps.publisher.saves[0].WorkspaceID)
}

func TestRoomSaveFailureReportsInternal(t *testing.T) {
	co, deps := newTestCoordinator(t)
	deps.snapshots.err = assert.AnError

	alice := join(t, co, "c1", "ws1", "alice")
	alice.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, RoomSave, struct{}{}))
	errPayload, ok := alice.lastError()
	require.True(t, ok)
	assert.Equal(t, CodeInternal, errPayload.Code)
	assert.Empty(t, deps.publisher.saves, "failed saves are never announced")
}

func TestUnknownEventType(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	alice.reset()

	co.HandleMessage(context.Background(), alice, []byte(`{"type":"time.travel","data":{}}`))
	errPayload, ok := alice.lastError()
	require.True(t, ok)
	assert.Equal(t, CodeValidation, errPayload.Code)
}

func TestMalformedEnvelope(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	alice.reset()

	co.HandleMessage(context.Background(), alice, []byte(`not json`))
	_, ok := alice.lastError()
	assert.True(t, ok)
}

func TestFullBufferPeerIsSkippedNotFatal(t *testing.T) {
	co, _ := newTestCoordinator(t)

	alice := join(t, co, "c1", "ws1", "alice")
	bob := join(t, co, "c2", "ws1", "bob")
	carol := join(t, co, "c3", "ws1", "carol")

	carol.mu.Lock()
	carol.full = true
	carol.mu.Unlock()
	alice.reset()
	bob.reset()

	co.HandleMessage(context.Background(), alice, envelope(t, NoteCreate, CreateNotePayload{Text: "hi"}))

	require.Len(t, bob.eventsOfType(ObjectCreated), 1, "a slow peer never stalls the room")
	require.Len(t, alice.eventsOfType(ObjectCreated), 1)
}
