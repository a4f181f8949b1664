package usecase

import (
	"encoding/json"
	"strings"

	"github.com/profelabs/profe/server/domain"
)

// knownAnimations and knownExpressions gate the tags accepted from the
// generator. Anything outside these sets is replaced with the default so a
// creative model can never drive the avatar into an undefined state.
var knownAnimations = map[domain.AnimationTag]bool{
	domain.AnimationIdle:       true,
	domain.AnimationTalking:    true,
	domain.AnimationExplaining: true,
	domain.AnimationHappy:      true,
	domain.AnimationSad:        true,
	domain.AnimationThinking:   true,
	domain.AnimationGreeting:   true,
}

var knownExpressions = map[domain.ExpressionTag]bool{
	domain.ExpressionDefault:   true,
	domain.ExpressionSmile:     true,
	domain.ExpressionSad:       true,
	domain.ExpressionSurprised: true,
	domain.ExpressionThinking:  true,
}

// ParseTeacherReply turns raw generator output into a TeacherUtterance.
//
// Models are prompted to answer with a single JSON object but do not always
// comply: replies arrive wrapped in markdown fences, as bare prose, or as
// truncated JSON. The rules here are:
//
//   - empty output yields the fallback utterance
//   - valid JSON with a non-empty "text" field is used, with unknown
//     animation/expression tags normalized to defaults
//   - output that looks like JSON but fails to parse yields the fallback
//   - anything else is treated as plain prose with default tags
func ParseTeacherReply(raw string, fallback domain.TeacherUtterance) domain.TeacherUtterance {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return fallback
	}

	if strings.HasPrefix(raw, "{") {
		var reply struct {
			Text       string `json:"text"`
			Animation  string `json:"animation"`
			Expression string `json:"expression"`
		}
		if err := json.Unmarshal([]byte(raw), &reply); err != nil || strings.TrimSpace(reply.Text) == "" {
			return fallback
		}
		out := domain.TeacherUtterance{
			Text:       strings.TrimSpace(reply.Text),
			Animation:  domain.AnimationTag(reply.Animation),
			Expression: domain.ExpressionTag(reply.Expression),
		}
		if !knownAnimations[out.Animation] {
			out.Animation = domain.AnimationTalking
		}
		if !knownExpressions[out.Expression] {
			out.Expression = domain.ExpressionDefault
		}
		return out
	}

	return domain.TeacherUtterance{
		Text:       raw,
		Animation:  domain.AnimationTalking,
		Expression: domain.ExpressionDefault,
	}
}

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language hint, so fenced JSON replies parse like bare ones.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		// A language hint like "json" sits alone on the fence line.
		if len(first) <= 10 && !strings.Contains(first, "{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
