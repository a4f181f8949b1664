package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeListeningStart MessageType = "listening_start"
	MessageTypeListeningEnd   MessageType = "listening_end"
	MessageTypeTextInput      MessageType = "text_input"
	MessageTypeVoiceResponse  MessageType = "voice_response"
	MessageTypePing           MessageType = "ping"
	MessageTypePong           MessageType = "pong"
	MessageTypeError          MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ListeningStartMessage opens an audio capture turn. Binary frames that
// follow are buffered until listening_end arrives.
type ListeningStartMessage struct {
	BaseMessage
	Language        string `json:"language,omitempty"`
	SampleRate      int    `json:"sample_rate,omitempty"`
	Voice           string `json:"voice,omitempty"`
	ActivityID      string `json:"activity_id,omitempty"`
	ActivityContext string `json:"activity_context,omitempty"`
	Formality       string `json:"formality,omitempty"`
	// UseCache defaults to true when absent.
	UseCache *bool `json:"use_cache,omitempty"`
}

// ListeningEndMessage closes the capture turn and triggers the pipeline.
type ListeningEndMessage struct {
	BaseMessage
}

// TextInputMessage submits a typed utterance, bypassing audio capture.
type TextInputMessage struct {
	BaseMessage
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	// UseCache defaults to true when absent.
	UseCache *bool `json:"use_cache,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// VoiceResponseMessage carries one spoken reply back to the client.
type VoiceResponseMessage struct {
	BaseMessage
	SessionID      string    `json:"session_id"`
	StudentInput   string    `json:"student_input"`
	Text           string    `json:"text"`
	Audio          string    `json:"audio,omitempty"` // base64 PCM
	Animation      string    `json:"animation"`
	Expression     string    `json:"expression"`
	Duration       float64   `json:"duration"`
	MouthCues      []WireCue `json:"mouth_cues"`
	Cached         bool      `json:"cached"`
	ResponseTimeMs int64     `json:"response_time_ms"`
}

// WireCue is one viseme interval in wire form; times in milliseconds.
type WireCue struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Value    string `json:"value"`
	VisemeID int    `json:"visemeId"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ParseClientMessage decodes an inbound text frame into its typed form.
func ParseClientMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeListeningStart:
		var msg ListeningStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid listening_start message: %w", err)
		}
		if msg.SampleRate != 0 && (msg.SampleRate < 8000 || msg.SampleRate > 48000) {
			return nil, fmt.Errorf("sample_rate must be between 8000 and 48000")
		}
		return &msg, nil

	case MessageTypeListeningEnd:
		var msg ListeningEndMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid listening_end message: %w", err)
		}
		return &msg, nil

	case MessageTypeTextInput:
		var msg TextInputMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid text_input message: %w", err)
		}
		if msg.Text == "" {
			return nil, fmt.Errorf("text is required")
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PingMessage {
	return &PingMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Data: data,
	}
}
