package collab

import (
	"encoding/json"

	"github.com/oakline/atrium/internal/domain"
)

// Inbound event types.
const (
	RoomJoin  = "room.join"
	RoomLeave = "room.leave"
	RoomSave  = "room.save"

	PresenceMove = "presence.move"
	VoiceStart   = "voice.start"
	VoiceStop    = "voice.stop"

	NoteCreate = "note.create"
	NoteUpdate = "note.update"
	NoteDelete = "note.delete"
	NoteLock   = "note.lock"
	NoteUnlock = "note.unlock"

	ModelCreate = "model.create"
	ModelMove   = "model.move"
	ModelDelete = "model.delete"

	StrokeStart  = "stroke.start"
	StrokePoint  = "stroke.point"
	StrokeCommit = "stroke.commit"

	SignalOffer     = "signal.offer"
	SignalAnswer    = "signal.answer"
	SignalCandidate = "signal.candidate"
)

// Outbound event types.
const (
	ParticipantExisting = "participant.existing"
	ParticipantJoined   = "participant.joined"
	ParticipantMoved    = "participant.moved"
	ParticipantLeft     = "participant.left"
	ParticipantVoice    = "participant.voice"

	ObjectCreated = "object.created"
	ObjectUpdated = "object.updated"
	ObjectDeleted = "object.deleted"
	ObjectLock    = "object.lock"

	StrokeStarted   = "stroke.started"
	StrokeContinued = "stroke.continued"
	StrokeCompleted = "stroke.completed"

	RoomSaved  = "room.saved"
	ErrorEvent = "error"
)

// Error codes carried by ErrorEvent payloads.
const (
	CodeValidation       = "validation"
	CodeLockConflict     = "lock_conflict"
	CodePermissionDenied = "permission_denied"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal"
)

// Envelope is one inbound client message. Data stays raw until the handler
// for Type decodes it.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is one outbound message, fanned out to a workspace or sent to a
// single connection.
type Event struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	Data        any    `json:"data,omitempty"`
}

// Conn is the transport side of one live connection as the core sees it.
// Send must not block: it reports false when the client's buffer is full and
// the event was dropped.
type Conn interface {
	ID() string
	Send(ev *Event) bool
}

// Inbound payloads.

type JoinPayload struct {
	WorkspaceID string `json:"workspaceId"`
}

type MovePayload struct {
	Position domain.Vec3 `json:"position"`
}

type CreateNotePayload struct {
	ID       string          `json:"id,omitempty"`
	Text     string          `json:"text"`
	Position domain.Vec3     `json:"position"`
	Color    string          `json:"color,omitempty"`
	Size     domain.NoteSize `json:"size,omitempty"`
}

// ObjectPatch is a partial update: absent fields keep their prior values.
type ObjectPatch struct {
	Text     *string          `json:"text,omitempty"`
	Position *domain.Vec3     `json:"position,omitempty"`
	Rotation *domain.Vec3     `json:"rotation,omitempty"`
	Scale    *domain.Vec3     `json:"scale,omitempty"`
	Color    *string          `json:"color,omitempty"`
	Size     *domain.NoteSize `json:"size,omitempty"`
	Name     *string          `json:"name,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p ObjectPatch) Empty() bool {
	return p.Text == nil && p.Position == nil && p.Rotation == nil &&
		p.Scale == nil && p.Color == nil && p.Size == nil && p.Name == nil
}

// AppliesToNote reports whether the patch touches any field a note carries.
func (p ObjectPatch) AppliesToNote() bool {
	return p.Text != nil || p.Position != nil || p.Color != nil || p.Size != nil
}

// AppliesToModel reports whether the patch touches any field a model carries.
func (p ObjectPatch) AppliesToModel() bool {
	return p.Name != nil || p.Position != nil || p.Rotation != nil || p.Scale != nil
}

// TransformOnly strips the patch down to the fields `move` may carry.
func (p ObjectPatch) TransformOnly() ObjectPatch {
	return ObjectPatch{Position: p.Position, Rotation: p.Rotation, Scale: p.Scale}
}

type UpdateObjectPayload struct {
	ObjectID string      `json:"objectId"`
	Patch    ObjectPatch `json:"patch"`
}

type ObjectRefPayload struct {
	ObjectID string `json:"objectId"`
}

type CreateModelPayload struct {
	ID       string      `json:"id,omitempty"`
	Name     string      `json:"name"`
	FileRef  string      `json:"fileRef,omitempty"`
	Format   string      `json:"format,omitempty"`
	Position domain.Vec3 `json:"position"`
	Rotation domain.Vec3 `json:"rotation"`
	Scale    domain.Vec3 `json:"scale"`
}

type StartStrokePayload struct {
	ID    string      `json:"id,omitempty"`
	Point domain.Vec3 `json:"point"`
	Color string      `json:"color,omitempty"`
	Width float64     `json:"width,omitempty"`
	Tool  string      `json:"tool,omitempty"`
}

type StrokePointPayload struct {
	Point domain.Vec3 `json:"point"`
}

type SignalPayload struct {
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

// Outbound payloads.

type ParticipantPayload struct {
	ConnectionID string        `json:"connectionId"`
	UserID       string        `json:"userId"`
	Name         string        `json:"name,omitempty"`
	Avatar       domain.Avatar `json:"avatar"`
	Position     domain.Vec3   `json:"position"`
	VoiceActive  bool          `json:"voiceActive"`
}

type ExistingParticipantsPayload struct {
	Participants map[string]ParticipantPayload `json:"participants"`
}

type ParticipantMovedPayload struct {
	ConnectionID string      `json:"connectionId"`
	Position     domain.Vec3 `json:"position"`
}

type ParticipantLeftPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type ParticipantVoicePayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	VoiceActive  bool   `json:"voiceActive"`
}

type ObjectPayload struct {
	Object *domain.SharedObject `json:"object"`
}

type ObjectDeletedPayload struct {
	ObjectID  string `json:"objectId"`
	DeletedBy string `json:"deletedBy"`
}

type ObjectLockPayload struct {
	ObjectID string `json:"objectId"`
	LockedBy string `json:"lockedBy,omitempty"`
	Locked   bool   `json:"locked"`
}

type StrokeProgressPayload struct {
	ConnectionID string      `json:"connectionId"`
	StrokeID     string      `json:"strokeId"`
	Point        domain.Vec3 `json:"point"`
	Color        string      `json:"color,omitempty"`
	Width        float64     `json:"width,omitempty"`
	Tool         string      `json:"tool,omitempty"`
}

type SignalRelayPayload struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type RoomSavedPayload struct {
	WorkspaceID string `json:"workspaceId"`
	ObjectCount int    `json:"objectCount"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func participantPayload(p domain.Participant) ParticipantPayload {
	return ParticipantPayload{
		ConnectionID: p.ConnectionID,
		UserID:       p.UserID,
		Name:         p.Name,
		Avatar:       p.Avatar,
		Position:     p.Position,
		VoiceActive:  p.VoiceActive,
	}
}

func NewParticipantJoined(p domain.Participant) *Event {
	return &Event{Type: ParticipantJoined, WorkspaceID: p.WorkspaceID, Data: participantPayload(p)}
}

func NewParticipantLeft(p domain.Participant) *Event {
	return &Event{
		Type:        ParticipantLeft,
		WorkspaceID: p.WorkspaceID,
		Data:        ParticipantLeftPayload{ConnectionID: p.ConnectionID, UserID: p.UserID},
	}
}

func NewObjectEvent(eventType string, obj *domain.SharedObject) *Event {
	return &Event{Type: eventType, WorkspaceID: obj.WorkspaceID, Data: ObjectPayload{Object: obj}}
}

func NewObjectLock(obj *domain.SharedObject) *Event {
	payload := ObjectLockPayload{ObjectID: obj.ID}
	if obj.Note != nil && obj.Note.Locked() {
		payload.Locked = true
		payload.LockedBy = obj.Note.LockedBy
	}
	return &Event{Type: ObjectLock, WorkspaceID: obj.WorkspaceID, Data: payload}
}

func NewError(code, message string) *Event {
	return &Event{Type: ErrorEvent, Data: ErrorPayload{Code: code, Message: message}}
}
