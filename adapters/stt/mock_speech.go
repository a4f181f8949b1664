package stt

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/profelabs/profe/server/domain/repositories"
)

// MockSpeechToText is an in-memory SpeechToText for tests and offline
// development.
type MockSpeechToText struct {
	mu     sync.Mutex
	logger *zap.Logger

	// Transcript, when set, is returned for any non-empty audio.
	Transcript string
	// Err, when set, is returned from every call.
	Err error

	Calls int
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.mu.Lock()
	s.Calls++
	transcript, err := s.Transcript, s.Err
	s.mu.Unlock()

	s.logger.Debug("Mock transcription",
		zap.Int("audioSize", len(audioData)),
		zap.String("language", config.Language))

	if err != nil {
		return "", err
	}
	if transcript != "" {
		return transcript, nil
	}
	if len(audioData) == 0 {
		return "", nil
	}
	return "¿Cuánto es dos más dos?", nil
}
