package repositories

import (
	"context"

	"github.com/profelabs/profe/server/domain"
)

// SpeechSynthesizer abstracts text-to-speech services
type SpeechSynthesizer interface {
	// Synthesize converts text to a finished audio artifact
	Synthesize(ctx context.Context, text string, config VoiceConfig) (*domain.AudioArtifact, error)
}

// VoiceConfig represents voice configuration for synthesis
type VoiceConfig struct {
	Voice    string `json:"voice"`
	Model    string `json:"model"`
	Language string `json:"language"`
}
