package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessageListeningStart(t *testing.T) {
	raw := `{"type": "listening_start", "language": "es-ES", "sample_rate": 16000, "voice": "nova", "formality": "casual"}`

	parsed, err := ParseClientMessage([]byte(raw))
	require.NoError(t, err)

	msg, ok := parsed.(*ListeningStartMessage)
	require.True(t, ok)
	assert.Equal(t, "es-ES", msg.Language)
	assert.Equal(t, 16000, msg.SampleRate)
	assert.Equal(t, "nova", msg.Voice)
	assert.Equal(t, "casual", msg.Formality)
	assert.Nil(t, msg.UseCache)
}

func TestParseClientMessageTextInput(t *testing.T) {
	raw := `{"type": "text_input", "text": "hola", "use_cache": false}`

	parsed, err := ParseClientMessage([]byte(raw))
	require.NoError(t, err)

	msg, ok := parsed.(*TextInputMessage)
	require.True(t, ok)
	assert.Equal(t, "hola", msg.Text)
	require.NotNil(t, msg.UseCache)
	assert.False(t, *msg.UseCache)
}

func TestParseClientMessageRejections(t *testing.T) {
	cases := map[string]string{
		"not json":            `{"type": "listening_start"`,
		"missing type":        `{"language": "es-ES"}`,
		"unknown type":        `{"type": "self_destruct"}`,
		"text without body":   `{"type": "text_input"}`,
		"sample rate too low": `{"type": "listening_start", "sample_rate": 4000}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseClientMessage([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestParseClientMessagePing(t *testing.T) {
	parsed, err := ParseClientMessage([]byte(`{"type": "ping", "data": "hb-1"}`))
	require.NoError(t, err)

	msg, ok := parsed.(*PingMessage)
	require.True(t, ok)
	assert.Equal(t, "hb-1", msg.Data)

	pong := CreatePongMessage(msg.Data)
	assert.Equal(t, MessageTypePong, pong.Type)
	assert.Equal(t, "hb-1", pong.Data)
	assert.NotEmpty(t, pong.Timestamp)
}

func TestCreateErrorMessage(t *testing.T) {
	msg := CreateErrorMessage("empty_input", "no audio was captured")
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "empty_input", msg.Code)
	assert.Equal(t, "no audio was captured", msg.Message)
}
