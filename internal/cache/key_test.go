package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyDeterminism(t *testing.T) {
	first := Key("¡Muy bien hecho!", "nova", "tts-1")
	second := Key("¡Muy bien hecho!", "nova", "tts-1")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestKeyNormalizationCollapsesVariants(t *testing.T) {
	base := Key("¿Cómo estás hoy?", "nova", "tts-1")

	assert.Equal(t, base, Key("¿CÓMO ESTÁS HOY?", "nova", "tts-1"), "case")
	assert.Equal(t, base, Key("  ¿Cómo   estás\t hoy? ", "nova", "tts-1"), "whitespace")
	assert.Equal(t, base, Key("Cómo estás hoy", "nova", "tts-1"), "locale punctuation")
}

func TestKeyDistinguishesVoiceAndModel(t *testing.T) {
	base := Key("Es 4", "nova", "tts-1")
	assert.NotEqual(t, base, Key("Es 4", "alloy", "tts-1"))
	assert.NotEqual(t, base, Key("Es 4", "nova", "tts-1-hd"))
	assert.NotEqual(t, base, Key("Es 5", "nova", "tts-1"))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "cuánto es 2+2", NormalizeText("¿Cuánto   es 2+2?"))
	assert.Equal(t, "hola qué tal", NormalizeText("«Hola», ¿qué tal?"))
	assert.Equal(t, "", NormalizeText("  ¿? ¡! "))
}
