package messaging

import "github.com/oakline/atrium/internal/domain"

const (
	SessionsQueue   = "sessions"
	SnapshotsQueue  = "snapshots"
	DeadLetterQueue = "dead_letter_queue"
)

type SessionEventData struct {
	Session domain.Session `json:"session"`
}

type SnapshotEventData struct {
	WorkspaceID string `json:"workspaceId"`
	SavedBy     string `json:"savedBy"`
	ObjectCount int    `json:"objectCount"`
}
