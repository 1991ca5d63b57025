package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/parle/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Messages sent by the client
const (
	MessageTypeListeningStart MessageType = "listening_start"
	MessageTypeListeningEnd   MessageType = "listening_end"
	MessageTypeEndSession     MessageType = "end_session"
	MessageTypePing           MessageType = "ping"
)

// Messages sent by the server
const (
	MessageTypeTranscript     MessageType = "transcript"
	MessageTypeTutorReply     MessageType = "tutor_reply"
	MessageTypeSpeakingStart  MessageType = "speaking_start"
	MessageTypeSpeakingEnd    MessageType = "speaking_end"
	MessageTypeTTSFallback    MessageType = "tts_fallback"
	MessageTypeSessionSummary MessageType = "session_summary"
	MessageTypePong           MessageType = "pong"
	MessageTypeError          MessageType = "error"
)

// Error codes carried by ErrorMessage
const (
	ErrorCodeInvalidMessage   = "invalid_message"
	ErrorCodeBusy             = "utterance_in_progress"
	ErrorCodeNotListening     = "not_listening"
	ErrorCodeSessionFailed    = "session_failed"
	ErrorCodeTranscription    = "transcription_failed"
	ErrorCodeEmptyTranscript  = "empty_transcript"
	ErrorCodeTurnFailed       = "turn_failed"
	ErrorCodeNoSession        = "no_session"
	ErrorCodeSessionNotActive = "session_not_active"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// ListeningStartMessage opens an utterance. The optional mode and topic are
// used when a new session has to be started.
type ListeningStartMessage struct {
	BaseMessage
	Mode       entities.SessionMode `json:"mode,omitempty"`
	Topic      string               `json:"topic,omitempty"`
	SampleRate int                  `json:"sample_rate,omitempty"`
	Encoding   string               `json:"encoding,omitempty"`
	Language   string               `json:"language,omitempty"`
}

// ListeningEndMessage closes the utterance opened by listening_start
type ListeningEndMessage struct {
	BaseMessage
}

// EndSessionMessage asks the server to end the session and summarize it.
// An empty session ID means the connection's current session.
type EndSessionMessage struct {
	BaseMessage
	SessionID string `json:"session_id,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ListeningStartedMessage acknowledges listening_start
type ListeningStartedMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

// TranscriptMessage carries the recognized learner utterance
type TranscriptMessage struct {
	BaseMessage
	SessionID  string   `json:"session_id"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// TutorReplyMessage carries the tutor answer and its corrections
type TutorReplyMessage struct {
	BaseMessage
	SessionID   string                `json:"session_id"`
	Text        string                `json:"text"`
	Corrections []entities.Correction `json:"corrections"`
	Fallback    bool                  `json:"fallback,omitempty"`
}

// SpeakingStartMessage precedes the binary audio frames of a reply
type SpeakingStartMessage struct {
	BaseMessage
	SessionID   string `json:"session_id"`
	ContentType string `json:"content_type"`
}

// SpeakingEndMessage follows the last binary audio frame
type SpeakingEndMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Chunks    int    `json:"chunks"`
}

// TTSFallbackMessage tells the client to speak the reply itself
type TTSFallbackMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Language  string `json:"language"`
}

// SessionSummaryMessage reports the result of end_session
type SessionSummaryMessage struct {
	BaseMessage
	SessionID       string                   `json:"session_id"`
	Status          entities.SessionStatus   `json:"status"`
	DurationSeconds int64                    `json:"duration_seconds"`
	Summary         *entities.SessionSummary `json:"summary,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses a client text frame into its typed message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
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
		if err := v.validateListeningStart(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeListeningEnd:
		return &ListeningEndMessage{BaseMessage: base}, nil

	case MessageTypeEndSession:
		var msg EndSessionMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid end_session message: %w", err)
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

var validEncodings = map[string]bool{
	"linear16":  true,
	"pcm":       true,
	"wav":       true,
	"mp3":       true,
	"opus":      true,
	"ogg_opus":  true,
	"webm_opus": true,
	"flac":      true,
}

// validateListeningStart validates the optional audio settings
func (v *MessageValidator) validateListeningStart(msg *ListeningStartMessage) error {
	if msg.SampleRate != 0 && (msg.SampleRate < 8000 || msg.SampleRate > 48000) {
		return fmt.Errorf("sample_rate must be between 8000 and 48000")
	}
	if msg.Encoding != "" && !validEncodings[strings.ToLower(msg.Encoding)] {
		return fmt.Errorf("unsupported encoding %q", msg.Encoding)
	}
	if msg.Mode != "" && !msg.Mode.Valid() {
		return fmt.Errorf("unknown session mode %q", msg.Mode)
	}
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}
