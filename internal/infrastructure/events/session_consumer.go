package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/oakline/atrium/internal/infrastructure/contracts"
	"github.com/oakline/atrium/internal/infrastructure/messaging"
)

// AuditEntry is one row of the session audit trail.
type AuditEntry struct {
	WorkspaceID string    `bson:"workspace_id" json:"workspaceId"`
	SessionID   string    `bson:"session_id" json:"sessionId"`
	EventType   string    `bson:"event_type" json:"eventType"`
	Occurred    time.Time `bson:"occurred" json:"occurred"`
	Detail      []byte    `bson:"detail" json:"detail"`
}

type AuditWriter interface {
	Append(ctx context.Context, entry AuditEntry) error
}

type sessionConsumer struct {
	rabbitmq *messaging.RabbitMQ
	audit    AuditWriter
	logger   *zap.SugaredLogger
}

func NewSessionConsumer(rabbitmq *messaging.RabbitMQ, audit AuditWriter, logger *zap.SugaredLogger) *sessionConsumer {
	return &sessionConsumer{
		rabbitmq: rabbitmq,
		audit:    audit,
		logger:   logger,
	}
}

func (c *sessionConsumer) Listen() error {
	return c.rabbitmq.ConsumeMessages(messaging.SessionsQueue, func(ctx context.Context, msg amqp091.Delivery) error {
		var message contracts.AmqpMessage
		if err := json.Unmarshal(msg.Body, &message); err != nil {
			c.logger.Errorw("failed to unmarshal amqp message", "error", err)
			return err
		}

		var payload messaging.SessionEventData
		if err := json.Unmarshal(message.Data, &payload); err != nil {
			c.logger.Errorw("failed to unmarshal session event", "error", err)
			return err
		}

		entry := AuditEntry{
			WorkspaceID: message.WorkspaceID,
			SessionID:   payload.Session.ID,
			EventType:   msg.RoutingKey,
			Occurred:    time.Now().UTC(),
			Detail:      message.Data,
		}
		if err := c.audit.Append(ctx, entry); err != nil {
			c.logger.Errorw("failed to append audit entry", "sessionId", payload.Session.ID, "error", err)
			return err
		}

		c.logger.Infow("session event recorded",
			"workspaceId", message.WorkspaceID,
			"sessionId", payload.Session.ID,
			"eventType", msg.RoutingKey,
		)

		return nil
	})
}
