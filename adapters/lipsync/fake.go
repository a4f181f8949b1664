package lipsync

import (
	"context"
	"sync"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/domain/repositories"
)

// FakeAligner is an in-memory Aligner for tests and offline development.
// It returns a configured timeline, or evenly spaced cues when none is set.
type FakeAligner struct {
	mu       sync.Mutex
	Timeline *domain.VisemeTimeline
	Err      error
	Calls    int
}

var _ repositories.Aligner = (*FakeAligner)(nil)

func (f *FakeAligner) Extract(ctx context.Context, audio *domain.AudioArtifact) (domain.VisemeTimeline, error) {
	f.mu.Lock()
	f.Calls++
	f.mu.Unlock()

	if f.Err != nil {
		return domain.VisemeTimeline{}, f.Err
	}
	if f.Timeline != nil {
		return *f.Timeline, nil
	}

	// Alternate open/closed mouth shapes across the clip.
	durationMs := int(audio.DurationSeconds * 1000)
	const stepMs = 250
	symbols := []domain.VisemeSymbol{domain.VisemeD, domain.VisemeB, domain.VisemeE, domain.VisemeA}

	timeline := domain.VisemeTimeline{DurationSeconds: audio.DurationSeconds}
	for start, i := 0, 0; start < durationMs; start, i = start+stepMs, i+1 {
		end := start + stepMs
		if end > durationMs {
			end = durationMs
		}
		timeline.Cues = append(timeline.Cues, domain.VisemeCue{
			StartMs: start,
			EndMs:   end,
			Symbol:  symbols[i%len(symbols)],
		})
	}
	return timeline, nil
}

// CallCount reports how many times Extract ran.
func (f *FakeAligner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}
