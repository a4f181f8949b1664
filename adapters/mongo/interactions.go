package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/domain/repositories"
)

// InteractionRepository is the Mongo-backed analytics sink. Records are
// append-only; nothing in the pipeline ever updates or deletes them.
type InteractionRepository struct {
	collection *mongo.Collection
}

// Ensure InteractionRepository implements the InteractionSink interface
var _ repositories.InteractionSink = (*InteractionRepository)(nil)

// NewInteractionRepository creates a Mongo interaction sink
func NewInteractionRepository(db *mongo.Database) *InteractionRepository {
	return &InteractionRepository{
		collection: db.Collection("interactions"),
	}
}

// Record appends one interaction record
func (r *InteractionRepository) Record(ctx context.Context, record domain.InteractionRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// ListBySession returns the most recent records for a session, newest first
func (r *InteractionRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.InteractionRecord, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions for session %s: %w", sessionID, err)
	}
	defer cursor.Close(ctx)

	var records []domain.InteractionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode interactions: %w", err)
	}
	return records, nil
}
