// Package lipsync extracts viseme timelines from synthesized audio by
// shelling out to the Rhubarb forced-alignment binary.
package lipsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/domain/repositories"
)

const (
	defaultBinary     = "rhubarb"
	defaultRecognizer = "phonetic"
	tempFilePerms     = 0o600
)

// RhubarbConfig holds configuration for the aligner.
// Optional fields with defaults:
// - BinaryPath: path to the rhubarb executable (default: "rhubarb" on PATH)
// - Recognizer: rhubarb recognizer to use (default: "phonetic")
type RhubarbConfig struct {
	BinaryPath string
	Recognizer string
}

// RhubarbAligner implements the Aligner interface by invoking rhubarb on a
// request-scoped temporary WAV file.
type RhubarbAligner struct {
	binary     string
	recognizer string
	logger     *zap.Logger
}

// Ensure RhubarbAligner implements the Aligner interface
var _ repositories.Aligner = (*RhubarbAligner)(nil)

// NewRhubarbAligner creates an aligner, verifying the binary is resolvable.
func NewRhubarbAligner(config RhubarbConfig, logger *zap.Logger) (*RhubarbAligner, error) {
	binary := config.BinaryPath
	if binary == "" {
		binary = defaultBinary
		logger.Info("Using default rhubarb binary name", zap.String("binary", binary))
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("rhubarb binary not found: %w", err)
	}

	recognizer := config.Recognizer
	if recognizer == "" {
		recognizer = defaultRecognizer
	}

	return &RhubarbAligner{
		binary:     binary,
		recognizer: recognizer,
		logger:     logger,
	}, nil
}

// rhubarbOutput mirrors rhubarb's -f json structure.
type rhubarbOutput struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	MouthCues []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Value string  `json:"value"`
	} `json:"mouthCues"`
}

// NewRhubarbConfigFromEnv creates a RhubarbConfig from environment variables.
func NewRhubarbConfigFromEnv() RhubarbConfig {
	return RhubarbConfig{
		BinaryPath: os.Getenv("RHUBARB_BINARY"),
		Recognizer: os.Getenv("RHUBARB_RECOGNIZER"),
	}
}

// Extract writes the audio to a uniquely named temp file, runs rhubarb on
// it, and parses the cue list. The temp file is removed on every exit path.
func (r *RhubarbAligner) Extract(ctx context.Context, audio *domain.AudioArtifact) (domain.VisemeTimeline, error) {
	if audio == nil || len(audio.Bytes) == 0 {
		return domain.VisemeTimeline{}, &domain.AlignmentError{Cause: fmt.Errorf("no audio to align")}
	}

	// Unique name so concurrent requests never collide.
	name := fmt.Sprintf("profe-align-%d-%s.wav", time.Now().UnixNano(), uuid.NewString()[:8])
	path := filepath.Join(os.TempDir(), name)

	if err := os.WriteFile(path, audio.Bytes, tempFilePerms); err != nil {
		return domain.VisemeTimeline{}, &domain.AlignmentError{Cause: fmt.Errorf("failed to write temp audio file: %w", err)}
	}
	defer func() {
		if removeErr := os.Remove(path); removeErr != nil {
			r.logger.Warn("Failed to remove temp audio file",
				zap.String("path", path), zap.Error(removeErr))
		}
	}()

	cmd := exec.CommandContext(ctx, r.binary, "-f", "json", "-r", r.recognizer, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running forced alignment",
		zap.String("binary", r.binary), zap.String("file", path))

	if err := cmd.Run(); err != nil {
		return domain.VisemeTimeline{}, &domain.AlignmentError{
			Cause: fmt.Errorf("rhubarb failed: %w (stderr: %s)", err, stderr.String()),
		}
	}

	timeline, err := parseOutput(stdout.Bytes(), audio.DurationSeconds)
	if err != nil {
		return domain.VisemeTimeline{}, err
	}

	r.logger.Info("Forced alignment completed",
		zap.Int("cues", len(timeline.Cues)),
		zap.Float64("duration", timeline.DurationSeconds))
	return timeline, nil
}

// parseOutput decodes rhubarb JSON and validates the cue invariants.
// fallbackDuration is used when the tool reports no duration.
func parseOutput(data []byte, fallbackDuration float64) (domain.VisemeTimeline, error) {
	var out rhubarbOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.VisemeTimeline{}, &domain.AlignmentError{Cause: fmt.Errorf("unparseable rhubarb output: %w", err)}
	}

	duration := out.Metadata.Duration
	if duration <= 0 {
		duration = fallbackDuration
	}

	timeline := domain.VisemeTimeline{
		Cues:            make([]domain.VisemeCue, 0, len(out.MouthCues)),
		DurationSeconds: duration,
	}
	for _, cue := range out.MouthCues {
		timeline.Cues = append(timeline.Cues, domain.VisemeCue{
			StartMs: int(cue.Start * 1000),
			EndMs:   int(cue.End * 1000),
			Symbol:  domain.VisemeSymbol(cue.Value),
		})
	}

	if err := timeline.Validate(); err != nil {
		return domain.VisemeTimeline{}, &domain.AlignmentError{Cause: fmt.Errorf("invalid cue output: %w", err)}
	}
	return timeline, nil
}
