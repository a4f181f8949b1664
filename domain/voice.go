package domain

import (
	"errors"
	"strings"
	"time"
)

// AnimationTag identifies a body animation the avatar should play while speaking.
type AnimationTag string

const (
	AnimationIdle       AnimationTag = "Idle"
	AnimationTalking    AnimationTag = "Talking"
	AnimationExplaining AnimationTag = "Explaining"
	AnimationHappy      AnimationTag = "Happy"
	AnimationSad        AnimationTag = "Sad"
	AnimationThinking   AnimationTag = "Thinking"
	AnimationGreeting   AnimationTag = "Greeting"
)

// ExpressionTag identifies a facial expression for the avatar.
type ExpressionTag string

const (
	ExpressionDefault   ExpressionTag = "default"
	ExpressionSmile     ExpressionTag = "smile"
	ExpressionSad       ExpressionTag = "sad"
	ExpressionSurprised ExpressionTag = "surprised"
	ExpressionThinking  ExpressionTag = "thinking"
)

// StudentUtterance is the learner's input for one request. Exactly one of
// Audio or Text must be set.
type StudentUtterance struct {
	Audio    []byte
	Text     string
	Language string
}

// Validate checks the exactly-one-of constraint.
func (u StudentUtterance) Validate() error {
	hasAudio := len(u.Audio) > 0
	hasText := strings.TrimSpace(u.Text) != ""
	if hasAudio == hasText {
		return errors.New("exactly one of audio or text must be provided")
	}
	return nil
}

// IsAudio reports whether the utterance carries raw audio to transcribe.
func (u StudentUtterance) IsAudio() bool {
	return len(u.Audio) > 0
}

// TeacherUtterance is the generated reply. Immutable once produced.
type TeacherUtterance struct {
	Text       string        `json:"text"`
	Animation  AnimationTag  `json:"animation"`
	Expression ExpressionTag `json:"expression"`
}

// AudioArtifact is a synthesized audio clip. The pipeline call that produced
// it owns it until it is handed to the cache; afterwards the cache is the
// long-lived owner and callers hold only transient references.
type AudioArtifact struct {
	Bytes           []byte
	DurationSeconds float64
	Voice           string
	Model           string
}

// VisemeSymbol is one of the nine mouth shapes emitted by the forced
// alignment tool. "X" is the rest/silence shape.
type VisemeSymbol string

const (
	VisemeA VisemeSymbol = "A"
	VisemeB VisemeSymbol = "B"
	VisemeC VisemeSymbol = "C"
	VisemeD VisemeSymbol = "D"
	VisemeE VisemeSymbol = "E"
	VisemeF VisemeSymbol = "F"
	VisemeG VisemeSymbol = "G"
	VisemeH VisemeSymbol = "H"
	VisemeX VisemeSymbol = "X"
)

// KnownVisemeSymbol reports whether s is one of the nine source symbols.
func KnownVisemeSymbol(s VisemeSymbol) bool {
	switch s {
	case VisemeA, VisemeB, VisemeC, VisemeD, VisemeE, VisemeF, VisemeG, VisemeH, VisemeX:
		return true
	}
	return false
}

// VisemeCue is a single timed mouth shape.
type VisemeCue struct {
	StartMs int          `json:"start"`
	EndMs   int          `json:"end"`
	Symbol  VisemeSymbol `json:"value"`
}

// VisemeTimeline is the full lip-sync track for one audio artifact. It is a
// static array consumed by index/time lookup, not a one-shot stream.
type VisemeTimeline struct {
	Cues            []VisemeCue `json:"mouthCues"`
	DurationSeconds float64     `json:"duration"`
}

// Validate enforces the cue invariants: known symbols, sorted ascending by
// start, non-overlapping, and bounded by [0, duration].
func (t VisemeTimeline) Validate() error {
	limitMs := int(t.DurationSeconds * 1000)
	prevEnd := 0
	for _, cue := range t.Cues {
		if !KnownVisemeSymbol(cue.Symbol) {
			return errors.New("unknown viseme symbol: " + string(cue.Symbol))
		}
		if cue.StartMs < 0 || cue.EndMs < cue.StartMs {
			return errors.New("cue has invalid time range")
		}
		if cue.StartMs < prevEnd {
			return errors.New("cues overlap or are out of order")
		}
		if cue.EndMs > limitMs {
			return errors.New("cue extends past audio duration")
		}
		prevEnd = cue.EndMs
	}
	return nil
}

// SilenceTimeline returns a timeline with a single rest cue spanning the
// whole clip. Used when alignment is unavailable.
func SilenceTimeline(durationSeconds float64) VisemeTimeline {
	return VisemeTimeline{
		Cues: []VisemeCue{
			{StartMs: 0, EndMs: int(durationSeconds * 1000), Symbol: VisemeX},
		},
		DurationSeconds: durationSeconds,
	}
}

// ConversationTurn is one prior exchange supplied as context.
type ConversationTurn struct {
	Role    string `json:"role"` // "student" or "teacher"
	Content string `json:"content"`
}

// ConversationContext carries everything the answer generator needs beyond
// the current utterance.
type ConversationContext struct {
	SessionID       string
	ActivityID      string
	ActivityContext string
	History         []ConversationTurn
	Formality       string // "formal", "casual" or "mixed"
}

// VoiceResponse is the assembled result of one pipeline run.
type VoiceResponse struct {
	StudentInput   string
	Teacher        TeacherUtterance
	Audio          *AudioArtifact
	Timeline       VisemeTimeline
	Cached         bool
	ResponseTimeMs int64
}

// InteractionRecord is the append-only analytics event emitted per request.
type InteractionRecord struct {
	SessionID      string    `bson:"session_id" json:"sessionId"`
	ActivityID     string    `bson:"activity_id" json:"activityId"`
	StudentInput   string    `bson:"student_input" json:"studentInput"`
	TeacherText    string    `bson:"teacher_text" json:"teacherText"`
	Cached         bool      `bson:"cached" json:"cached"`
	ResponseTimeMs int64     `bson:"response_time_ms" json:"responseTimeMs"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}
