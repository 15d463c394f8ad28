package authz

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/oakline/atrium/internal/domain"
)

// RoleAuthorizer answers destructive-action checks against workspace roles.
// The creator check happens before this is consulted, so only the role walk
// lives here.
type RoleAuthorizer struct {
	workspaces domain.WorkspaceRepository
	logger     *zap.SugaredLogger
}

func NewRoleAuthorizer(workspaces domain.WorkspaceRepository, logger *zap.SugaredLogger) *RoleAuthorizer {
	return &RoleAuthorizer{
		workspaces: workspaces,
		logger:     logger,
	}
}

// CanDelete allows workspace owners and admins to delete any object. Rooms
// with no stored workspace document have no roles, so everyone in them is a
// plain editor and only creators may delete.
func (a *RoleAuthorizer) CanDelete(ctx context.Context, workspaceID, userID string, object *domain.SharedObject) (bool, error) {
	role, err := a.workspaces.GetRole(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkspaceNotFound) {
			return false, nil
		}
		a.logger.Errorw("role lookup failed", "workspaceId", workspaceID, "userId", userID, "error", err)
		return false, err
	}

	return role == domain.RoleOwner || role == domain.RoleAdmin, nil
}
