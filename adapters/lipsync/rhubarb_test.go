package lipsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profelabs/profe/server/domain"
)

func TestParseOutput(t *testing.T) {
	raw := []byte(`{
		"metadata": {"soundFile": "/tmp/x.wav", "duration": 2.0},
		"mouthCues": [
			{"start": 0.00, "end": 0.50, "value": "D"},
			{"start": 0.50, "end": 2.00, "value": "X"}
		]
	}`)

	timeline, err := parseOutput(raw, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, timeline.DurationSeconds)
	require.Len(t, timeline.Cues, 2)
	assert.Equal(t, domain.VisemeCue{StartMs: 0, EndMs: 500, Symbol: domain.VisemeD}, timeline.Cues[0])
	assert.Equal(t, domain.VisemeCue{StartMs: 500, EndMs: 2000, Symbol: domain.VisemeX}, timeline.Cues[1])
}

func TestParseOutputUsesFallbackDuration(t *testing.T) {
	raw := []byte(`{"mouthCues": [{"start": 0, "end": 1.0, "value": "A"}]}`)
	timeline, err := parseOutput(raw, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, timeline.DurationSeconds)
}

func TestParseOutputMalformedJSON(t *testing.T) {
	_, err := parseOutput([]byte("not json"), 1.0)
	var alignErr *domain.AlignmentError
	assert.ErrorAs(t, err, &alignErr)
}

func TestParseOutputRejectsInvalidCues(t *testing.T) {
	cases := map[string]string{
		"unknown symbol": `{"metadata":{"duration":1},"mouthCues":[{"start":0,"end":0.5,"value":"Q"}]}`,
		"out of order":   `{"metadata":{"duration":1},"mouthCues":[{"start":0.5,"end":1,"value":"A"},{"start":0,"end":0.4,"value":"B"}]}`,
		"past duration":  `{"metadata":{"duration":1},"mouthCues":[{"start":0,"end":1.5,"value":"A"}]}`,
	}
	for name, raw := range cases {
		_, err := parseOutput([]byte(raw), 0)
		var alignErr *domain.AlignmentError
		assert.ErrorAs(t, err, &alignErr, name)
	}
}

func TestFakeAlignerGeneratesBoundedCues(t *testing.T) {
	fake := &FakeAligner{}
	audio := &domain.AudioArtifact{Bytes: []byte("pcm"), DurationSeconds: 1.1}

	timeline, err := fake.Extract(context.Background(), audio)
	require.NoError(t, err)
	assert.NoError(t, timeline.Validate())
	assert.Equal(t, 1, fake.CallCount())

	last := timeline.Cues[len(timeline.Cues)-1]
	assert.Equal(t, 1100, last.EndMs, "cues cover the clip exactly")
}
