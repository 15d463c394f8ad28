package domain

import (
	"context"
	"time"
)

// WorkspaceSnapshot is the flat state handed to the persistence layer at
// session boundaries. The core never consults it mid-mutation.
type WorkspaceSnapshot struct {
	WorkspaceID  string         `json:"workspaceId" bson:"_id"`
	Objects      []SharedObject `json:"objects" bson:"objects"`
	Participants []Participant  `json:"participants" bson:"participants"`
	SavedBy      string         `json:"savedBy" bson:"saved_by"`
	SavedAt      time.Time      `json:"savedAt" bson:"saved_at"`
}

type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *WorkspaceSnapshot) error
	GetByWorkspaceID(ctx context.Context, workspaceID string) (*WorkspaceSnapshot, error)
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Authorizer answers role/ownership checks for destructive actions. The core
// treats the answer as an opaque boolean.
type Authorizer interface {
	CanDelete(ctx context.Context, workspaceID, userID string, object *SharedObject) (bool, error)
}
