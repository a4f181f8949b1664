package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/internal/viseme"
	"github.com/profelabs/profe/server/internal/websocket"
	"github.com/profelabs/profe/server/usecase"
)

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, pipeline *usecase.VoicePipeline, hub *websocket.Hub, logger *zap.Logger) {
	h := &handler{pipeline: pipeline, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "profe-server",
		})
	})

	v1 := e.Group("/api/v1")
	v1.POST("/voice/respond", h.voiceRespond)
	v1.GET("/voice/stats", h.voiceStats)
	v1.GET("/interactions", h.listInteractions)

	// WebSocket voice session endpoint
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(hub, c, logger)
	})
}

type handler struct {
	pipeline *usecase.VoicePipeline
	logger   *zap.Logger
}

func (h *handler) voiceRespond(c echo.Context) error {
	var req VoiceRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind voice request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	var audio []byte
	if req.Audio != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_audio",
				Message: "Audio must be base64-encoded",
			})
		}
		audio = decoded
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history := make([]domain.ConversationTurn, 0, len(req.ConversationHistory))
	for _, turn := range req.ConversationHistory {
		history = append(history, domain.ConversationTurn{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	response, err := h.pipeline.Respond(c.Request().Context(),
		domain.StudentUtterance{Audio: audio, Text: req.Text},
		domain.ConversationContext{
			SessionID:       sessionID,
			ActivityID:      req.ActivityID,
			ActivityContext: req.ActivityContext,
			History:         history,
			Formality:       req.LanguageFormality,
		},
		usecase.RequestOptions{
			Voice:     req.Voice,
			SkipCache: req.UseCache != nil && !*req.UseCache,
		},
	)
	if err != nil {
		return h.voiceError(c, err)
	}

	return c.JSON(http.StatusOK, toVoiceResponse(response, sessionID))
}

func (h *handler) voiceError(c echo.Context, err error) error {
	var synthErr *domain.SynthesisError
	switch {
	case errors.Is(err, domain.ErrEmptyInput):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "empty_input",
			Message: "No usable text or audio was provided",
		})
	case errors.Is(err, domain.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error:   "rate_limited",
			Message: "Too many requests, try again shortly",
		})
	case errors.As(err, &synthErr):
		h.logger.Error("Speech synthesis failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "synthesis_failed",
			Message: "Could not synthesize a spoken reply",
		})
	default:
		h.logger.Error("Voice pipeline failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Unexpected error handling the request",
		})
	}
}

func (h *handler) voiceStats(c echo.Context) error {
	cacheStats := h.pipeline.CacheStats()
	rateStats := h.pipeline.RateStats()
	return c.JSON(http.StatusOK, StatsResponse{
		Cache: CacheStats{
			Size:            cacheStats.Size,
			TotalHits:       cacheStats.TotalHits,
			AvgHitsPerEntry: cacheStats.AvgHitsPerEntry,
		},
		RateLimit: RateStats{
			RemainingPerMinute: rateStats.RemainingPerMinute,
			RemainingPerHour:   rateStats.RemainingPerHour,
			MaxPerMinute:       rateStats.MaxPerMinute,
			MaxPerHour:         rateStats.MaxPerHour,
		},
	})
}

func (h *handler) listInteractions(c echo.Context) error {
	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_session_id",
			Message: "sessionId query parameter is required",
		})
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a non-negative integer",
			})
		}
		limit = parsed
	}

	records, err := h.pipeline.Interactions(c.Request().Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("Failed to list interactions",
			zap.String("session_id", sessionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Could not load interaction history",
		})
	}
	if records == nil {
		records = []domain.InteractionRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// toVoiceResponse converts a pipeline result into wire form, mapping every
// cue to the avatar rig's viseme index on the way out.
func toVoiceResponse(response *domain.VoiceResponse, sessionID string) VoiceResponse {
	cues := make([]MouthCue, 0, len(response.Timeline.Cues))
	for _, cue := range response.Timeline.Cues {
		cues = append(cues, MouthCue{
			Start:    cue.StartMs,
			End:      cue.EndMs,
			Value:    string(cue.Symbol),
			VisemeID: int(viseme.Map(cue.Symbol)),
		})
	}

	teacher := TeacherResponse{
		Text: response.Teacher.Text,
		Lipsync: Lipsync{
			Metadata:  LipsyncMetadata{Duration: response.Timeline.DurationSeconds},
			MouthCues: cues,
		},
		Animation:  string(response.Teacher.Animation),
		Expression: string(response.Teacher.Expression),
	}
	if response.Audio != nil {
		teacher.Audio = base64.StdEncoding.EncodeToString(response.Audio.Bytes)
		teacher.Duration = response.Audio.DurationSeconds
	}

	return VoiceResponse{
		Success:         true,
		StudentInput:    response.StudentInput,
		TeacherResponse: teacher,
		SessionID:       sessionID,
		Cached:          response.Cached,
		ResponseTimeMs:  response.ResponseTimeMs,
	}
}
