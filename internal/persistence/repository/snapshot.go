package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oakline/atrium/internal/domain"
	"github.com/oakline/atrium/internal/persistence/db"
)

type snapshotRepository struct {
	db *mongo.Database
}

func NewSnapshotRepository(db *mongo.Database) domain.SnapshotRepository {
	return &snapshotRepository{
		db: db,
	}
}

// Save upserts, so repeated saves of one workspace keep a single document.
func (r *snapshotRepository) Save(ctx context.Context, snapshot *domain.WorkspaceSnapshot) error {
	collection := r.db.Collection(db.SnapshotsCollection)

	filter := bson.M{"_id": snapshot.WorkspaceID}
	opts := options.Replace().SetUpsert(true)

	_, err := collection.ReplaceOne(ctx, filter, snapshot, opts)
	return err
}

func (r *snapshotRepository) GetByWorkspaceID(ctx context.Context, workspaceID string) (*domain.WorkspaceSnapshot, error) {
	collection := r.db.Collection(db.SnapshotsCollection)

	var snapshot domain.WorkspaceSnapshot
	err := collection.FindOne(ctx, bson.M{"_id": workspaceID}).Decode(&snapshot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return &snapshot, nil
}
