package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oakline/atrium/internal/infrastructure/events"
	"github.com/oakline/atrium/internal/persistence/db"
)

type sessionAuditRepository struct {
	db *mongo.Database
}

func NewSessionAuditRepository(db *mongo.Database) events.AuditWriter {
	return &sessionAuditRepository{
		db: db,
	}
}

func (r *sessionAuditRepository) Append(ctx context.Context, entry events.AuditEntry) error {
	collection := r.db.Collection(db.SessionAuditLogsCollection)

	_, err := collection.InsertOne(ctx, entry)
	return err
}

func (r *sessionAuditRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(db.SessionAuditLogsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "workspace_id", Value: 1},
				{Key: "occurred", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "occurred", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(7776000), // 90 days TTL
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
