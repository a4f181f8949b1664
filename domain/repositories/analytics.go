package repositories

import (
	"context"

	"github.com/profelabs/profe/server/domain"
)

// InteractionSink is an append-only writer for interaction records.
// Writes are fire-and-forget from the pipeline's point of view.
type InteractionSink interface {
	Record(ctx context.Context, record domain.InteractionRecord) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.InteractionRecord, error)
}
