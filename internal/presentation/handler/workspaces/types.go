package workspaces

import "github.com/oakline/atrium/internal/domain"

type objectsResponse struct {
	WorkspaceID string                `json:"workspaceId"`
	Objects     []domain.SharedObject `json:"objects"`
	Count       int                   `json:"count"`
}

type sessionsResponse struct {
	WorkspaceID string           `json:"workspaceId"`
	Sessions    []domain.Session `json:"sessions"`
	Count       int              `json:"count"`
}
