package domain

import (
	"context"
	"time"
)

// WorkspaceMember binds a user to a role within a workspace.
type WorkspaceMember struct {
	UserID string `json:"userId" bson:"user_id"`
	Role   Role   `json:"role" bson:"role"`
}

// Workspace is the durable room record. The live room state lives in memory;
// this document only carries identity, ownership and membership roles.
type Workspace struct {
	ID        string            `json:"workspaceId" bson:"_id"`
	Name      string            `json:"name" bson:"name"`
	OwnerID   string            `json:"ownerId" bson:"owner_id"`
	Members   []WorkspaceMember `json:"members" bson:"members"`
	CreatedAt time.Time         `json:"createdAt" bson:"created_at"`
}

// RoleOf resolves the user's role. The owner is always RoleOwner even without
// a member entry; unknown users default to RoleEditor so ad hoc rooms stay
// open to anyone holding the workspace id.
func (w *Workspace) RoleOf(userID string) Role {
	if userID == w.OwnerID {
		return RoleOwner
	}
	for _, m := range w.Members {
		if m.UserID == userID {
			return m.Role
		}
	}
	return RoleEditor
}

type WorkspaceRepository interface {
	GetByID(ctx context.Context, workspaceID string) (*Workspace, error)
	GetRole(ctx context.Context, workspaceID, userID string) (Role, error)
}
