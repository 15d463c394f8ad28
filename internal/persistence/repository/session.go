package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oakline/atrium/internal/domain"
	"github.com/oakline/atrium/internal/persistence/db"
)

type sessionRepository struct {
	db *mongo.Database
}

func NewSessionRepository(db *mongo.Database) domain.SessionRepository {
	return &sessionRepository{
		db: db,
	}
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	collection := r.db.Collection(db.SessionsCollection)

	filter := bson.M{"_id": session.ID}
	opts := options.Replace().SetUpsert(true)

	_, err := collection.ReplaceOne(ctx, filter, session, opts)
	return err
}

func (r *sessionRepository) GetByWorkspaceID(ctx context.Context, workspaceID string, limit int) ([]domain.Session, error) {
	collection := r.db.Collection(db.SessionsCollection)

	filter := bson.M{"workspace_id": workspaceID}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []domain.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *sessionRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(db.SessionsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "workspace_id", Value: 1},
				{Key: "started_at", Value: -1},
			},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
