package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeText canonicalizes reply text so near-identical utterances
// collapse to one cache entry: lowercase, locale punctuation stripped
// (including ¿ ¡ and quote marks), whitespace runs collapsed.
func NormalizeText(text string) string {
	lowered := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Key derives the content-addressable cache key for a reply. The result is
// deterministic across process restarts so a persistent store can share it.
func Key(text, voice, model string) string {
	payload := NormalizeText(text) + ":" + voice + ":" + model
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
