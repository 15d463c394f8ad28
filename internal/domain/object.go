package domain

import (
	"time"

	"github.com/google/uuid"
)

type ObjectKind string

const (
	KindNote   ObjectKind = "note"
	KindModel  ObjectKind = "model"
	KindStroke ObjectKind = "stroke"
)

const (
	MaxNoteTextLength = 1000

	DefaultNoteColor   = "#ffff88"
	DefaultStrokeColor = "#000000"
	DefaultStrokeWidth = 2
)

type Vec3 struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
	Z float64 `json:"z" bson:"z"`
}

// UnitScale is the identity scale applied to models when the creator sends none.
var UnitScale = Vec3{X: 1, Y: 1, Z: 1}

// SharedObject is one collaborative entity owned by a workspace. Exactly one of
// Note, Model and Stroke is set, matching Kind. Version strictly increases on
// every accepted mutation; an object never changes workspace.
type SharedObject struct {
	ID             string     `json:"id" bson:"_id"`
	Kind           ObjectKind `json:"kind" bson:"kind"`
	WorkspaceID    string     `json:"workspaceId" bson:"workspace_id"`
	Version        uint64     `json:"version" bson:"version"`
	CreatedBy      string     `json:"createdBy" bson:"created_by"`
	LastModifiedBy string     `json:"lastModifiedBy,omitempty" bson:"last_modified_by,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updated_at"`

	Note   *Note           `json:"note,omitempty" bson:"note,omitempty"`
	Model  *ModelTransform `json:"model,omitempty" bson:"model,omitempty"`
	Stroke *Stroke         `json:"stroke,omitempty" bson:"stroke,omitempty"`
}

type NoteSize struct {
	Width  float64 `json:"width" bson:"width"`
	Height float64 `json:"height" bson:"height"`
}

type Note struct {
	Text     string   `json:"text" bson:"text"`
	Position Vec3     `json:"position" bson:"position"`
	Color    string   `json:"color" bson:"color"`
	Size     NoteSize `json:"size" bson:"size"`

	// Advisory lock. LockedBy holds the lock holder's connection id and is
	// empty when the note is unlocked.
	LockedBy string    `json:"lockedBy,omitempty" bson:"locked_by,omitempty"`
	LockedAt time.Time `json:"lockedAt,omitempty" bson:"locked_at,omitempty"`
}

func (n *Note) Locked() bool {
	return n.LockedBy != ""
}

// HeldByOther reports whether the note's lock gates a mutation from connID.
func (n *Note) HeldByOther(connID string) bool {
	return n.LockedBy != "" && n.LockedBy != connID
}

type ModelTransform struct {
	Name     string `json:"name" bson:"name"`
	FileRef  string `json:"fileRef,omitempty" bson:"file_ref,omitempty"`
	Format   string `json:"format,omitempty" bson:"format,omitempty"`
	Position Vec3   `json:"position" bson:"position"`
	Rotation Vec3   `json:"rotation" bson:"rotation"`
	Scale    Vec3   `json:"scale" bson:"scale"`
}

type Stroke struct {
	Points []Vec3  `json:"points" bson:"points"`
	Color  string  `json:"color" bson:"color"`
	Width  float64 `json:"width" bson:"width"`
	Tool   string  `json:"tool" bson:"tool"`
}

func NewNoteObject(workspaceID, id, createdBy string, note Note) *SharedObject {
	if note.Color == "" {
		note.Color = DefaultNoteColor
	}
	return newObject(workspaceID, id, createdBy, KindNote, &SharedObject{Note: &note})
}

func NewModelObject(workspaceID, id, createdBy string, model ModelTransform) *SharedObject {
	if (model.Scale == Vec3{}) {
		model.Scale = UnitScale
	}
	return newObject(workspaceID, id, createdBy, KindModel, &SharedObject{Model: &model})
}

func NewStrokeObject(workspaceID, id, createdBy string, stroke Stroke) *SharedObject {
	if stroke.Color == "" {
		stroke.Color = DefaultStrokeColor
	}
	if stroke.Width == 0 {
		stroke.Width = DefaultStrokeWidth
	}
	if stroke.Tool == "" {
		stroke.Tool = "pen"
	}
	return newObject(workspaceID, id, createdBy, KindStroke, &SharedObject{Stroke: &stroke})
}

func newObject(workspaceID, id, createdBy string, kind ObjectKind, seed *SharedObject) *SharedObject {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	obj := seed
	obj.ID = id
	obj.Kind = kind
	obj.WorkspaceID = workspaceID
	obj.Version = 1
	obj.CreatedBy = createdBy
	obj.LastModifiedBy = createdBy
	obj.CreatedAt = now
	obj.UpdatedAt = now
	return obj
}

// Touch records an accepted mutation by the given participant.
func (o *SharedObject) Touch(userID string) {
	o.Version++
	o.LastModifiedBy = userID
	o.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy safe to hand to other goroutines after the
// workspace lock is released.
func (o *SharedObject) Clone() *SharedObject {
	cp := *o
	if o.Note != nil {
		note := *o.Note
		cp.Note = &note
	}
	if o.Model != nil {
		model := *o.Model
		cp.Model = &model
	}
	if o.Stroke != nil {
		stroke := *o.Stroke
		stroke.Points = append([]Vec3(nil), o.Stroke.Points...)
		cp.Stroke = &stroke
	}
	return &cp
}
