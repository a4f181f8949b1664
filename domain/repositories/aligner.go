package repositories

import (
	"context"

	"github.com/profelabs/profe/server/domain"
)

// Aligner abstracts the forced-alignment tool that turns an audio artifact
// into a time-indexed viseme timeline. Implementations must validate their
// output against the VisemeTimeline invariants before returning it.
type Aligner interface {
	Extract(ctx context.Context, audio *domain.AudioArtifact) (domain.VisemeTimeline, error)
}
