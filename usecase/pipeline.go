package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/domain/repositories"
	"github.com/profelabs/profe/server/internal/cache"
	"github.com/profelabs/profe/server/internal/guard"
	"github.com/profelabs/profe/server/internal/ratelimit"
)

// PipelineConfig tunes the voice pipeline.
type PipelineConfig struct {
	// DefaultVoice is used when a request does not name one.
	DefaultVoice string
	// Model is the synthesis model identifier, part of the cache key.
	Model string
	// Language is the default recognition/synthesis language.
	Language string
	// SampleRate of inbound audio for transcription.
	SampleRate int
	// Guard tunes retry behavior for the external calls.
	Guard guard.Options
	// FallbackText is spoken when generation fails or the service is
	// rate limited.
	FallbackText string
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.DefaultVoice == "" {
		c.DefaultVoice = "nova"
	}
	if c.Model == "" {
		c.Model = "eleven_multilingual_v2"
	}
	if c.Language == "" {
		c.Language = "es-ES"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.FallbackText == "" {
		c.FallbackText = "Lo siento, no te he entendido bien. ¿Puedes repetirlo, por favor?"
	}
	return c
}

func (c PipelineConfig) fallbackUtterance() domain.TeacherUtterance {
	return domain.TeacherUtterance{
		Text:       c.FallbackText,
		Animation:  domain.AnimationSad,
		Expression: domain.ExpressionSad,
	}
}

// RequestOptions are the per-request knobs from the transport layer.
type RequestOptions struct {
	// Voice overrides the configured default voice.
	Voice string
	// SkipCache bypasses the response cache for this request.
	SkipCache bool
}

// VoicePipeline runs one student utterance through transcription, answer
// generation, synthesis and viseme alignment, fronted by the response cache
// and the rate limiter.
type VoicePipeline struct {
	stt         repositories.SpeechToText
	generator   repositories.AnswerGenerator
	synthesizer repositories.SpeechSynthesizer
	aligner     repositories.Aligner
	cache       *cache.ResponseCache
	limiter     *ratelimit.Limiter
	analytics   repositories.InteractionSink

	config PipelineConfig
	logger *zap.Logger
}

// NewVoicePipeline wires the pipeline. The analytics sink may be nil, in
// which case interaction records are dropped.
func NewVoicePipeline(
	stt repositories.SpeechToText,
	generator repositories.AnswerGenerator,
	synthesizer repositories.SpeechSynthesizer,
	aligner repositories.Aligner,
	responseCache *cache.ResponseCache,
	limiter *ratelimit.Limiter,
	analytics repositories.InteractionSink,
	config PipelineConfig,
	logger *zap.Logger,
) *VoicePipeline {
	config = config.withDefaults()
	if config.Guard.Logger == nil {
		config.Guard.Logger = logger
	}
	return &VoicePipeline{
		stt:         stt,
		generator:   generator,
		synthesizer: synthesizer,
		aligner:     aligner,
		cache:       responseCache,
		limiter:     limiter,
		analytics:   analytics,
		config:      config,
		logger:      logger,
	}
}

// Respond executes the full pipeline for one request.
//
// Failure handling is asymmetric on purpose: generation failures degrade to
// a spoken apology, alignment failures degrade to a silence-only timeline,
// but synthesis failures are fatal because there is no audio to ship.
func (p *VoicePipeline) Respond(ctx context.Context, input domain.StudentUtterance, convCtx domain.ConversationContext, opts RequestOptions) (*domain.VoiceResponse, error) {
	start := time.Now()

	if err := input.Validate(); err != nil {
		return nil, domain.ErrEmptyInput
	}

	voice := opts.Voice
	if voice == "" {
		voice = p.config.DefaultVoice
	}

	// One admission covers the request's external calls. A denied request
	// still gets a spoken fallback (and may even be served from cache).
	admitted := p.limiter.Admit()
	if !admitted {
		p.logger.Warn("rate limit exceeded, degrading to fallback reply",
			zap.String("session_id", convCtx.SessionID))
	}

	studentText, err := p.resolveInput(ctx, input, admitted)
	if err != nil {
		return nil, err
	}

	teacher := p.generateReply(ctx, studentText, convCtx, admitted)

	key := cache.Key(teacher.Text, voice, p.config.Model)
	if !opts.SkipCache {
		if entry := p.cache.Get(ctx, key); entry != nil {
			response := &domain.VoiceResponse{
				StudentInput:   studentText,
				Teacher:        teacher,
				Audio:          &entry.Audio,
				Timeline:       entry.Timeline,
				Cached:         true,
				ResponseTimeMs: time.Since(start).Milliseconds(),
			}
			p.recordInteraction(convCtx, response)
			return response, nil
		}
	}

	if !admitted {
		// No cached audio and no budget to synthesize: answer text-only
		// so the client can at least display the reply.
		response := &domain.VoiceResponse{
			StudentInput:   studentText,
			Teacher:        teacher,
			Timeline:       domain.SilenceTimeline(0),
			ResponseTimeMs: time.Since(start).Milliseconds(),
		}
		p.recordInteraction(convCtx, response)
		return response, nil
	}

	audio, err := guard.Protect(ctx, "synthesis", func(ctx context.Context) (*domain.AudioArtifact, error) {
		return p.synthesizer.Synthesize(ctx, teacher.Text, repositories.VoiceConfig{
			Voice:    voice,
			Model:    p.config.Model,
			Language: p.config.Language,
		})
	}, nil, propagating(p.config.Guard))
	if err != nil {
		var synthErr *domain.SynthesisError
		if !errors.As(err, &synthErr) {
			err = &domain.SynthesisError{Provider: "elevenlabs", Cause: err}
		}
		return nil, err
	}

	timeline, aligned := p.alignTimeline(ctx, audio)

	// A degraded timeline is not worth remembering: a later identical
	// request should get another chance at real alignment.
	if !opts.SkipCache && aligned {
		p.cache.Put(ctx, key, *audio, timeline)
	}

	response := &domain.VoiceResponse{
		StudentInput:   studentText,
		Teacher:        teacher,
		Audio:          audio,
		Timeline:       timeline,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}
	p.recordInteraction(convCtx, response)
	return response, nil
}

// resolveInput produces the student's utterance as text, transcribing audio
// input when needed.
func (p *VoicePipeline) resolveInput(ctx context.Context, input domain.StudentUtterance, admitted bool) (string, error) {
	if !input.IsAudio() {
		text := strings.TrimSpace(input.Text)
		if text == "" {
			return "", domain.ErrEmptyInput
		}
		return text, nil
	}

	if !admitted {
		// Transcription is an external call too; without admission the
		// audio cannot be resolved into text.
		return "", domain.ErrRateLimited
	}

	language := input.Language
	if language == "" {
		language = p.config.Language
	}
	transcript, err := guard.Protect(ctx, "transcription", func(ctx context.Context) (string, error) {
		return p.stt.TranscribeAudio(ctx, input.Audio, repositories.AudioConfig{
			SampleRate: p.config.SampleRate,
			Language:   language,
		})
	}, "", p.config.Guard)
	if err != nil {
		p.logger.Warn("transcription failed", zap.Error(err))
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", domain.ErrEmptyInput
	}
	return transcript, nil
}

// generateReply asks the generator for a reply and parses it defensively.
// Any failure, including rate-limit denial, yields the fallback utterance.
func (p *VoicePipeline) generateReply(ctx context.Context, studentText string, convCtx domain.ConversationContext, admitted bool) domain.TeacherUtterance {
	fallback := p.config.fallbackUtterance()
	if !admitted {
		return fallback
	}

	raw, err := guard.Protect(ctx, "generation", func(ctx context.Context) (string, error) {
		return p.generator.Generate(ctx, repositories.GenerationRequest{
			Input:   studentText,
			Context: convCtx,
		})
	}, "", p.config.Guard)
	if err != nil {
		p.logger.Warn("answer generation failed, using fallback reply",
			zap.Error(&domain.GenerationError{Cause: err}))
		return fallback
	}
	return ParseTeacherReply(raw, fallback)
}

// alignTimeline extracts the viseme timeline, degrading to a silence-only
// timeline when the aligner fails. The second return reports whether real
// alignment succeeded.
func (p *VoicePipeline) alignTimeline(ctx context.Context, audio *domain.AudioArtifact) (domain.VisemeTimeline, bool) {
	timeline, err := guard.Protect(ctx, "alignment", func(ctx context.Context) (domain.VisemeTimeline, error) {
		return p.aligner.Extract(ctx, audio)
	}, domain.VisemeTimeline{}, propagating(p.config.Guard))
	if err != nil {
		p.logger.Warn("viseme alignment failed, degrading to silence timeline",
			zap.Error(&domain.AlignmentError{Cause: err}))
		return domain.SilenceTimeline(audio.DurationSeconds), false
	}
	return timeline, true
}

// recordInteraction writes the analytics record asynchronously so a slow or
// absent sink never delays the response.
func (p *VoicePipeline) recordInteraction(convCtx domain.ConversationContext, response *domain.VoiceResponse) {
	if p.analytics == nil {
		return
	}
	record := domain.InteractionRecord{
		SessionID:      convCtx.SessionID,
		ActivityID:     convCtx.ActivityID,
		StudentInput:   response.StudentInput,
		TeacherText:    response.Teacher.Text,
		Cached:         response.Cached,
		ResponseTimeMs: response.ResponseTimeMs,
		CreatedAt:      time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.analytics.Record(ctx, record); err != nil {
			p.logger.Warn("failed to record interaction",
				zap.String("session_id", record.SessionID), zap.Error(err))
		}
	}()
}

// Interactions returns the most recent interaction records for a session.
func (p *VoicePipeline) Interactions(ctx context.Context, sessionID string, limit int) ([]domain.InteractionRecord, error) {
	if p.analytics == nil {
		return nil, fmt.Errorf("interaction history is not configured")
	}
	return p.analytics.ListBySession(ctx, sessionID, limit)
}

// CacheStats exposes response cache effectiveness for the stats endpoint.
func (p *VoicePipeline) CacheStats() cache.Stats {
	return p.cache.Stats()
}

// RateStats exposes current rate limiter occupancy for the stats endpoint.
func (p *VoicePipeline) RateStats() ratelimit.Stats {
	return p.limiter.Stats()
}

// propagating makes a copy of the guard options that surfaces the final
// error instead of swallowing it into the fallback value.
func propagating(opts guard.Options) guard.Options {
	opts.Propagate = true
	return opts
}
