package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/oakline/atrium/internal/domain"
	"github.com/oakline/atrium/internal/persistence/db"
)

type workspaceRepository struct {
	db *mongo.Database
}

func NewWorkspaceRepository(db *mongo.Database) domain.WorkspaceRepository {
	return &workspaceRepository{
		db: db,
	}
}

func (r *workspaceRepository) GetByID(ctx context.Context, workspaceID string) (*domain.Workspace, error) {
	collection := r.db.Collection(db.WorkspacesCollection)

	var workspace domain.Workspace
	err := collection.FindOne(ctx, bson.M{"_id": workspaceID}).Decode(&workspace)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrWorkspaceNotFound
		}
		return nil, err
	}

	return &workspace, nil
}

func (r *workspaceRepository) GetRole(ctx context.Context, workspaceID, userID string) (domain.Role, error) {
	workspace, err := r.GetByID(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	return workspace.RoleOf(userID), nil
}
