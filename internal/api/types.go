package api

// VoiceRequest is the payload for POST /api/v1/voice/respond. Exactly one of
// Audio (base64) or Text must be set.
type VoiceRequest struct {
	Audio               string             `json:"audio,omitempty"`
	Text                string             `json:"text,omitempty"`
	SessionID           string             `json:"sessionId,omitempty"`
	ActivityID          string             `json:"activityId,omitempty"`
	ActivityContext     string             `json:"activityContext,omitempty"`
	ConversationHistory []ConversationTurn `json:"conversationHistory,omitempty"`
	Voice               string             `json:"voice,omitempty"`
	LanguageFormality   string             `json:"languageFormality,omitempty"`
	// UseCache defaults to true when absent.
	UseCache *bool `json:"useCache,omitempty"`
}

// ConversationTurn is one prior exchange supplied by the client.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// VoiceResponse is the payload returned by POST /api/v1/voice/respond.
type VoiceResponse struct {
	Success         bool            `json:"success"`
	StudentInput    string          `json:"studentInput"`
	TeacherResponse TeacherResponse `json:"teacherResponse"`
	SessionID       string          `json:"sessionId"`
	Cached          bool            `json:"cached"`
	ResponseTimeMs  int64           `json:"responseTimeMs"`
}

// TeacherResponse carries the spoken reply and everything the client needs
// to animate it.
type TeacherResponse struct {
	Text       string  `json:"text"`
	Audio      string  `json:"audio"` // base64 PCM, empty when rate limited
	Lipsync    Lipsync `json:"lipsync"`
	Animation  string  `json:"animation"`
	Expression string  `json:"expression"`
	Duration   float64 `json:"duration"`
}

// Lipsync is the viseme timeline in wire form.
type Lipsync struct {
	Metadata  LipsyncMetadata `json:"metadata"`
	MouthCues []MouthCue      `json:"mouthCues"`
}

// LipsyncMetadata describes the clip the cues belong to.
type LipsyncMetadata struct {
	Duration float64 `json:"duration"`
}

// MouthCue is one viseme interval. Times are milliseconds from clip start.
// Value is the raw mouth-shape letter; VisemeID is the same cue mapped to
// the avatar rig's viseme index.
type MouthCue struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Value    string `json:"value"`
	VisemeID int    `json:"visemeId"`
}

// StatsResponse is the payload for GET /api/v1/voice/stats.
type StatsResponse struct {
	Cache     CacheStats `json:"cache"`
	RateLimit RateStats  `json:"rateLimit"`
}

// CacheStats summarizes response cache effectiveness.
type CacheStats struct {
	Size            int     `json:"size"`
	TotalHits       int     `json:"totalHits"`
	AvgHitsPerEntry float64 `json:"avgHitsPerEntry"`
}

// RateStats reports remaining sliding-window quota.
type RateStats struct {
	RemainingPerMinute int `json:"remainingPerMinute"`
	RemainingPerHour   int `json:"remainingPerHour"`
	MaxPerMinute       int `json:"maxPerMinute"`
	MaxPerHour         int `json:"maxPerHour"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
