package domain

import (
	"crypto/rand"
	"math/big"
	"time"
)

// AnonymousUserID is the identity attached to unauthenticated joins.
const AnonymousUserID = "anonymous"

// SpawnPosition is where a participant's avatar appears on join.
var SpawnPosition = Vec3{X: 0, Y: 0.2, Z: 0}

var avatarPalette = []string{
	"#ff6b6b", "#4ecdc4", "#45b7d1", "#96ceb4",
	"#feca57", "#ff9ff3", "#54a0ff", "#5f27cd",
}

type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type Avatar struct {
	Color string `json:"color" bson:"color"`
	Model string `json:"model" bson:"model"`
}

// Participant is the ephemeral presence state of one live connection inside a
// workspace. It is created on join and destroyed on disconnect; connection ids
// are never reused.
type Participant struct {
	ConnectionID string    `json:"connectionId" bson:"connection_id"`
	WorkspaceID  string    `json:"workspaceId" bson:"workspace_id"`
	UserID       string    `json:"userId" bson:"user_id"`
	Name         string    `json:"name" bson:"name"`
	Avatar       Avatar    `json:"avatar" bson:"avatar"`
	Position     Vec3      `json:"position" bson:"position"`
	VoiceActive  bool      `json:"voiceActive" bson:"voice_active"`
	JoinedAt     time.Time `json:"joinedAt" bson:"joined_at"`
}

func NewParticipant(connectionID, workspaceID string, ident Identity) *Participant {
	userID := ident.UserID
	if userID == "" {
		userID = AnonymousUserID
	}
	return &Participant{
		ConnectionID: connectionID,
		WorkspaceID:  workspaceID,
		UserID:       userID,
		Name:         ident.Name,
		Avatar:       Avatar{Color: RandomAvatarColor(), Model: "default"},
		Position:     SpawnPosition,
		JoinedAt:     time.Now().UTC(),
	}
}

func RandomAvatarColor() string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(avatarPalette))))
	if err != nil {
		return avatarPalette[0]
	}
	return avatarPalette[n.Int64()]
}
