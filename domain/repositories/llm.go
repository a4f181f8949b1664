package repositories

import (
	"context"

	"github.com/profelabs/profe/server/domain"
)

// AnswerGenerator abstracts the LLM that produces the teacher's reply.
// The returned string is expected to be a JSON object of the form
// {"text": ..., "animation": ..., "expression": ...}; callers must parse it
// defensively and never assume well-formedness.
type AnswerGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationRequest carries the conversation context for one reply.
type GenerationRequest struct {
	// Input is the student's current utterance as text.
	Input string
	// Context holds session metadata and the last k turns of history.
	Context domain.ConversationContext
}
