package contracts

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	WorkspaceID string `json:"workspaceId"`
	Data        []byte `json:"data"`
}

// Routing keys - using consistent event patterns
const (
	EventSessionStarted = "session.started"
	EventSessionEnded   = "session.ended"
	EventRoomSaved      = "room.saved"
)
