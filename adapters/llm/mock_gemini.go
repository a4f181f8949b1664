package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/profelabs/profe/server/domain/repositories"
)

// MockGenerator is an in-memory AnswerGenerator for tests and offline
// development.
type MockGenerator struct {
	mu sync.Mutex

	// Reply, when set, is returned verbatim from every Generate call.
	Reply string
	// Err, when set, is returned instead.
	Err error

	Calls     int
	LastInput string
}

var _ repositories.AnswerGenerator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock answer generator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate returns the configured reply, or a well-formed echo reply.
func (m *MockGenerator) Generate(ctx context.Context, req repositories.GenerationRequest) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.LastInput = req.Input
	reply, err := m.Reply, m.Err
	m.mu.Unlock()

	if err != nil {
		return "", err
	}
	if reply != "" {
		return reply, nil
	}
	return fmt.Sprintf(`{"text": "¡Muy bien! Me preguntaste: %s", "animation": "Talking", "expression": "smile"}`, req.Input), nil
}

// CallCount reports how many times Generate ran.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}
