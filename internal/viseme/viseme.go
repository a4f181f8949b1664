// Package viseme translates the nine mouth shapes produced by the forced
// alignment tool into the 22-shape viseme set understood by the avatar rig.
package viseme

import "github.com/profelabs/profe/server/domain"

// TargetViseme is a rig viseme identifier (22-shape set, 0 = silence).
type TargetViseme int

const (
	TargetSilence TargetViseme = 0  // closed rest position
	TargetAE      TargetViseme = 1  // æ, ə, ʌ
	TargetAA      TargetViseme = 2  // ɑ (as in "father")
	TargetAO      TargetViseme = 3  // ɔ
	TargetEH      TargetViseme = 4  // ɛ, ʊ
	TargetER      TargetViseme = 5  // ɝ
	TargetIY      TargetViseme = 6  // j, i, ɪ
	TargetUW      TargetViseme = 7  // w, u
	TargetOW      TargetViseme = 8  // o (as in "go")
	TargetAW      TargetViseme = 9  // aʊ
	TargetOY      TargetViseme = 10 // ɔɪ
	TargetAY      TargetViseme = 11 // aɪ
	TargetHH      TargetViseme = 12 // h
	TargetRR      TargetViseme = 13 // ɹ
	TargetLL      TargetViseme = 14 // l
	TargetSS      TargetViseme = 15 // s, z
	TargetSH      TargetViseme = 16 // ʃ, tʃ, dʒ, ʒ
	TargetTH      TargetViseme = 17 // ð, θ (dental)
	TargetFF      TargetViseme = 18 // f, v
	TargetDD      TargetViseme = 19 // d, t, n
	TargetKK      TargetViseme = 20 // k, g, ŋ
	TargetPP      TargetViseme = 21 // p, b, m
)

// sourceToTarget maps the aligner's nine symbols onto rig visemes.
var sourceToTarget = map[domain.VisemeSymbol]TargetViseme{
	domain.VisemeA: TargetPP,      // closed lips: p, b, m
	domain.VisemeB: TargetDD,      // slightly open, teeth visible: k, s, t
	domain.VisemeC: TargetEH,      // open: e
	domain.VisemeD: TargetAA,      // wide open: a
	domain.VisemeE: TargetOW,      // rounded: o
	domain.VisemeF: TargetUW,      // puckered: u, w
	domain.VisemeG: TargetFF,      // upper teeth on lower lip: f, v
	domain.VisemeH: TargetLL,      // tongue behind teeth: l
	domain.VisemeX: TargetSilence, // rest
}

// Map translates a source symbol to its rig viseme. Unknown symbols map to
// silence so a malformed cue can never surface an undefined identifier.
func Map(symbol domain.VisemeSymbol) TargetViseme {
	if v, ok := sourceToTarget[symbol]; ok {
		return v
	}
	return TargetSilence
}

// AtTime returns the rig viseme of the last cue whose start is at or before
// timeMs. Times before the first cue or past the last cue's end resolve to
// silence.
func AtTime(timeline domain.VisemeTimeline, timeMs int) TargetViseme {
	cues := timeline.Cues
	if len(cues) == 0 || timeMs < cues[0].StartMs || timeMs > cues[len(cues)-1].EndMs {
		return TargetSilence
	}
	current := TargetSilence
	for _, cue := range cues {
		if cue.StartMs > timeMs {
			break
		}
		current = Map(cue.Symbol)
	}
	return current
}
