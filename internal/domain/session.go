package domain

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// SessionParticipant is one participant's interval within a session. A
// participant appears once per connection; LeftAt is nil while connected.
type SessionParticipant struct {
	UserID       string     `json:"userId" bson:"user_id"`
	ConnectionID string     `json:"connectionId" bson:"connection_id"`
	JoinedAt     time.Time  `json:"joinedAt" bson:"joined_at"`
	LeftAt       *time.Time `json:"leftAt,omitempty" bson:"left_at,omitempty"`
}

// Session records one workspace occupancy interval: it opens when a join hits
// a workspace with no active session and ends when the last participant
// leaves. At most one active session exists per workspace.
type Session struct {
	ID              string               `json:"sessionId" bson:"_id"`
	WorkspaceID     string               `json:"workspaceId" bson:"workspace_id"`
	Participants    []SessionParticipant `json:"participants" bson:"participants"`
	StartedAt       time.Time            `json:"startedAt" bson:"started_at"`
	EndedAt         *time.Time           `json:"endedAt,omitempty" bson:"ended_at,omitempty"`
	DurationMinutes int                  `json:"durationMinutes" bson:"duration_minutes"`
	Interactions    uint64               `json:"interactions" bson:"interactions"`
	Active          bool                 `json:"active" bson:"active"`
}

func NewSession(workspaceID string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		StartedAt:   time.Now().UTC(),
		Active:      true,
	}
}

func (s *Session) AddParticipant(userID, connectionID string) {
	s.Participants = append(s.Participants, SessionParticipant{
		UserID:       userID,
		ConnectionID: connectionID,
		JoinedAt:     time.Now().UTC(),
	})
}

// MarkLeft stamps the participant's interval end. It returns the number of
// participants still connected.
func (s *Session) MarkLeft(connectionID string) int {
	now := time.Now().UTC()
	remaining := 0
	for i := range s.Participants {
		p := &s.Participants[i]
		if p.ConnectionID == connectionID && p.LeftAt == nil {
			p.LeftAt = &now
			continue
		}
		if p.LeftAt == nil {
			remaining++
		}
	}
	return remaining
}

// End closes the session and derives its duration. Ended is terminal.
func (s *Session) End() {
	now := time.Now().UTC()
	s.EndedAt = &now
	s.DurationMinutes = int(math.Round(now.Sub(s.StartedAt).Minutes()))
	s.Active = false
}

type SessionRepository interface {
	Save(ctx context.Context, session *Session) error
	GetByWorkspaceID(ctx context.Context, workspaceID string, limit int) ([]Session, error)
}
