package tts

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/domain/repositories"
)

// MockTextToSpeech is an in-memory synthesizer for tests and offline
// development. It fabricates PCM-sized silence proportional to text length.
type MockTextToSpeech struct {
	mu     sync.Mutex
	logger *zap.Logger

	// Err, when set, is returned from every Synthesize call.
	Err error
	// FixedDuration overrides the text-length heuristic when > 0.
	FixedDuration float64

	Calls     int
	LastText  string
	LastVoice string
}

var _ repositories.SpeechSynthesizer = (*MockTextToSpeech)(nil)

// NewMockTextToSpeech creates a mock synthesizer
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{logger: logger}
}

// Synthesize fabricates an audio artifact without any network call.
func (m *MockTextToSpeech) Synthesize(ctx context.Context, text string, config repositories.VoiceConfig) (*domain.AudioArtifact, error) {
	m.mu.Lock()
	m.Calls++
	m.LastText = text
	m.LastVoice = config.Voice
	err := m.Err
	fixed := m.FixedDuration
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	// Rough speaking rate: one second per 15 characters.
	duration := float64(len(strings.TrimSpace(text))) / 15.0
	if fixed > 0 {
		duration = fixed
	}
	byteCount := int(duration * 24000 * 2)
	if byteCount == 0 {
		byteCount = 2
	}

	m.logger.Debug("Mock synthesis",
		zap.String("text", text), zap.Float64("duration", duration))

	return &domain.AudioArtifact{
		Bytes:           make([]byte, byteCount),
		DurationSeconds: duration,
		Voice:           config.Voice,
		Model:           config.Model,
	}, nil
}

// CallCount reports how many times Synthesize ran.
func (m *MockTextToSpeech) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}
