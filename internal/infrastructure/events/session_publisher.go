package events

import (
	"context"
	"encoding/json"

	"github.com/oakline/atrium/internal/domain"
	"github.com/oakline/atrium/internal/infrastructure/contracts"
	"github.com/oakline/atrium/internal/infrastructure/messaging"
)

type SessionPublisher struct {
	rabbitmq *messaging.RabbitMQ
}

func NewSessionPublisher(rabbitmq *messaging.RabbitMQ) *SessionPublisher {
	return &SessionPublisher{
		rabbitmq: rabbitmq,
	}
}

func (p *SessionPublisher) PublishSessionStarted(ctx context.Context, session domain.Session) error {
	payload := messaging.SessionEventData{
		Session: session,
	}

	sessionEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, contracts.EventSessionStarted, contracts.AmqpMessage{
		WorkspaceID: session.WorkspaceID,
		Data:        sessionEventJSON,
	})
}

func (p *SessionPublisher) PublishRoomSaved(ctx context.Context, snapshot *domain.WorkspaceSnapshot) error {
	payload := messaging.SnapshotEventData{
		WorkspaceID: snapshot.WorkspaceID,
		SavedBy:     snapshot.SavedBy,
		ObjectCount: len(snapshot.Objects),
	}

	snapshotEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, contracts.EventRoomSaved, contracts.AmqpMessage{
		WorkspaceID: snapshot.WorkspaceID,
		Data:        snapshotEventJSON,
	})
}

func (p *SessionPublisher) PublishSessionEnded(ctx context.Context, session domain.Session) error {
	payload := messaging.SessionEventData{
		Session: session,
	}

	sessionEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, contracts.EventSessionEnded, contracts.AmqpMessage{
		WorkspaceID: session.WorkspaceID,
		Data:        sessionEventJSON,
	})
}
