package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/profelabs/profe/server/adapters/lipsync"
	"github.com/profelabs/profe/server/adapters/llm"
	"github.com/profelabs/profe/server/adapters/stt"
	"github.com/profelabs/profe/server/adapters/tts"
	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/internal/cache"
	"github.com/profelabs/profe/server/internal/guard"
	"github.com/profelabs/profe/server/internal/ratelimit"
)

type pipelineFixture struct {
	pipeline  *VoicePipeline
	stt       *stt.MockSpeechToText
	generator *llm.MockGenerator
	tts       *tts.MockTextToSpeech
	aligner   *lipsync.FakeAligner
	cache     *cache.ResponseCache
}

func newPipelineFixture(t *testing.T, limits ratelimit.Config) *pipelineFixture {
	t.Helper()
	logger := zap.NewNop()

	f := &pipelineFixture{
		stt:       stt.NewMockSpeechToText(logger),
		generator: llm.NewMockGenerator(),
		tts:       tts.NewMockTextToSpeech(logger),
		aligner:   &lipsync.FakeAligner{},
		cache:     cache.New(cache.Config{}, logger),
	}
	f.pipeline = NewVoicePipeline(
		f.stt, f.generator, f.tts, f.aligner,
		f.cache,
		ratelimit.New(limits, logger),
		nil,
		PipelineConfig{
			Guard: guard.Options{Retries: 1, Timeout: time.Second, Delay: time.Millisecond},
		},
		logger,
	)
	return f
}

func roomyLimits() ratelimit.Config {
	return ratelimit.Config{MaxPerMinute: 100, MaxPerHour: 1000}
}

func TestRespondTextInput(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())
	f.generator.Reply = `{"text": "Es 4", "animation": "Explaining", "expression": "smile"}`
	f.tts.FixedDuration = 2.0
	f.aligner.Timeline = &domain.VisemeTimeline{
		Cues: []domain.VisemeCue{
			{StartMs: 0, EndMs: 1000, Symbol: domain.VisemeD},
			{StartMs: 1000, EndMs: 2000, Symbol: domain.VisemeX},
		},
		DurationSeconds: 2.0,
	}

	response, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "¿Cuánto es 2+2?"},
		domain.ConversationContext{SessionID: "s1"},
		RequestOptions{Voice: "nova", SkipCache: true},
	)
	require.NoError(t, err)

	assert.Equal(t, "Es 4", response.Teacher.Text)
	assert.Equal(t, domain.AnimationExplaining, response.Teacher.Animation)
	require.NotNil(t, response.Audio)
	assert.InDelta(t, 2.0, response.Audio.DurationSeconds, 0.001)
	assert.Equal(t, "nova", response.Audio.Voice)
	assert.False(t, response.Cached)
	assert.Len(t, response.Timeline.Cues, 2)
	assert.Equal(t, 0, f.stt.Calls)
}

func TestRespondAudioInput(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())
	f.stt.Transcript = "hola profesora"

	response, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Audio: []byte{0x01, 0x02}},
		domain.ConversationContext{SessionID: "s1"},
		RequestOptions{},
	)
	require.NoError(t, err)

	assert.Equal(t, 1, f.stt.Calls)
	assert.Equal(t, "hola profesora", f.generator.LastInput)
	assert.Equal(t, "hola profesora", response.StudentInput)
}

func TestRespondEmptyInput(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())

	cases := []domain.StudentUtterance{
		{},
		{Text: "   "},
		{Text: "hola", Audio: []byte{0x01}},
	}
	for _, input := range cases {
		_, err := f.pipeline.Respond(context.Background(), input,
			domain.ConversationContext{}, RequestOptions{})
		assert.ErrorIs(t, err, domain.ErrEmptyInput)
	}
	assert.Equal(t, 0, f.generator.CallCount())
}

func TestRespondBlankTranscript(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())
	f.stt.Transcript = "  " // recognizer heard nothing usable

	_, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Audio: []byte{0x01}},
		domain.ConversationContext{}, RequestOptions{})
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
	assert.Equal(t, 0, f.generator.CallCount())
}

func TestRespondCacheHitSkipsSynthesis(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())
	f.generator.Reply = `{"text": "El gato es negro", "animation": "Talking", "expression": "default"}`

	first, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "describe al gato"},
		domain.ConversationContext{SessionID: "s1"},
		RequestOptions{},
	)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, f.tts.CallCount())
	assert.Equal(t, 1, f.aligner.CallCount())

	second, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "describe al gato"},
		domain.ConversationContext{SessionID: "s1"},
		RequestOptions{},
	)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Teacher.Text, second.Teacher.Text)
	assert.Equal(t, first.Timeline.Cues, second.Timeline.Cues)
	assert.Equal(t, 1, f.tts.CallCount(), "cache hit must not re-synthesize")
	assert.Equal(t, 1, f.aligner.CallCount(), "cache hit must not re-align")
}

func TestRespondSkipCacheBypassesLookup(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())
	f.generator.Reply = `{"text": "Hola", "animation": "Greeting", "expression": "smile"}`

	for i := 0; i < 2; i++ {
		response, err := f.pipeline.Respond(context.Background(),
			domain.StudentUtterance{Text: "saluda"},
			domain.ConversationContext{}, RequestOptions{SkipCache: true})
		require.NoError(t, err)
		assert.False(t, response.Cached)
	}
	assert.Equal(t, 2, f.tts.CallCount())
}

func TestRespondGenerationFailureFallsBack(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())
	f.generator.Err = errors.New("model overloaded")

	response, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "hola"},
		domain.ConversationContext{SessionID: "s1"},
		RequestOptions{},
	)
	require.NoError(t, err, "generation failure must degrade, not fail")

	assert.Equal(t, domain.AnimationSad, response.Teacher.Animation)
	assert.Equal(t, domain.ExpressionSad, response.Teacher.Expression)
	assert.NotEmpty(t, response.Teacher.Text)
	require.NotNil(t, response.Audio, "fallback reply is still spoken")
	// Retries plus the initial attempt.
	assert.Equal(t, 2, f.generator.CallCount())
}

func TestRespondMalformedReplyFallsBack(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())
	f.generator.Reply = `{"text": "truncated`

	response, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "hola"},
		domain.ConversationContext{}, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.AnimationSad, response.Teacher.Animation)
}

func TestRespondSynthesisFailureIsFatal(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())
	f.tts.Err = guard.ErrQuotaExhausted

	_, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "hola"},
		domain.ConversationContext{}, RequestOptions{})
	require.Error(t, err)

	var synthErr *domain.SynthesisError
	assert.ErrorAs(t, err, &synthErr)
	assert.ErrorIs(t, err, guard.ErrQuotaExhausted)
	// Non-retryable: exactly one attempt.
	assert.Equal(t, 1, f.tts.CallCount())
}

func TestRespondAlignmentFailureDegradesToSilence(t *testing.T) {
	f := newPipelineFixture(t, roomyLimits())
	f.generator.Reply = `{"text": "Hasta luego", "animation": "Greeting", "expression": "smile"}`
	f.tts.FixedDuration = 1.5
	f.aligner.Err = guard.MarkNonRetryable(errors.New("rhubarb crashed"))

	response, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "despídete"},
		domain.ConversationContext{}, RequestOptions{})
	require.NoError(t, err, "alignment failure must degrade, not fail")

	require.Len(t, response.Timeline.Cues, 1)
	assert.Equal(t, domain.VisemeX, response.Timeline.Cues[0].Symbol)
	assert.Equal(t, 1500, response.Timeline.Cues[0].EndMs)

	// A degraded response must not be cached: the identical request goes
	// through synthesis again.
	_, err = f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "despídete"},
		domain.ConversationContext{}, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, f.tts.CallCount())
}

func TestRespondRateLimitedFallsBackWithoutExternalCalls(t *testing.T) {
	f := newPipelineFixture(t, ratelimit.Config{MaxPerMinute: 1, MaxPerHour: 10})
	f.generator.Reply = `{"text": "Primera respuesta", "animation": "Talking", "expression": "default"}`

	first, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "primera"},
		domain.ConversationContext{}, RequestOptions{})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "segunda"},
		domain.ConversationContext{}, RequestOptions{})
	require.NoError(t, err, "rate limiting degrades instead of failing")

	assert.Equal(t, domain.AnimationSad, second.Teacher.Animation)
	assert.Nil(t, second.Audio, "no synthesis budget while rate limited")
	assert.Equal(t, 1, f.generator.CallCount(), "generator must not run while rate limited")
	assert.Equal(t, 1, f.tts.CallCount())
}

func TestRespondRateLimitedAudioInputRejected(t *testing.T) {
	f := newPipelineFixture(t, ratelimit.Config{MaxPerMinute: 1, MaxPerHour: 10})

	_, err := f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Text: "primera"},
		domain.ConversationContext{}, RequestOptions{})
	require.NoError(t, err)

	// Audio cannot be resolved into text without a transcription budget.
	_, err = f.pipeline.Respond(context.Background(),
		domain.StudentUtterance{Audio: []byte{0x01}},
		domain.ConversationContext{}, RequestOptions{})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 0, f.stt.Calls)
}
