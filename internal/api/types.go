package api

import (
	"github.com/satriahrh/parle/adapters/tts"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/progress"
)

// RegisterRequest represents the request payload for user registration
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// LoginRequest represents the request payload for user login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StartSessionRequest represents the request payload for starting a session
type StartSessionRequest struct {
	Mode  entities.SessionMode `json:"mode,omitempty"`
	Topic string               `json:"topic,omitempty"`
}

// TextTurnRequest is a typed learner utterance
type TextTurnRequest struct {
	Text string `json:"text"`
}

// SpeechRequest asks for the synthesis of a text
type SpeechRequest struct {
	Text string `json:"text"`
}

// SpeechPayload is synthesized speech embedded in a JSON response. Audio is
// base64 encoded; when Fallback is set the client speaks Text itself.
type SpeechPayload struct {
	Fallback    bool   `json:"fallback"`
	ContentType string `json:"content_type,omitempty"`
	Audio       []byte `json:"audio,omitempty"`
	Text        string `json:"text"`
}

// TurnResponse represents the outcome of one conversation turn
type TurnResponse struct {
	Transcript    string                `json:"transcript"`
	Confidence    *float64              `json:"confidence,omitempty"`
	Reply         string                `json:"reply"`
	Corrections   []entities.Correction `json:"corrections"`
	TutorFallback bool                  `json:"tutor_fallback,omitempty"`
	Speech        SpeechPayload         `json:"speech"`
}

// SessionListResponse wraps a list of sessions
type SessionListResponse struct {
	Sessions []*entities.Session `json:"sessions"`
}

// TroubleWordsResponse wraps the trouble word list
type TroubleWordsResponse struct {
	TroubleWords []progress.TroubleWord `json:"trouble_words"`
}

// TopicsResponse wraps the topic aggregation
type TopicsResponse struct {
	Topics []progress.TopicStat `json:"topics"`
}

// FocusResponse wraps the recommended focus
type FocusResponse struct {
	Focus []string `json:"focus"`
}

// VoicesResponse wraps the available synthesis voices
type VoicesResponse struct {
	Voices []tts.Voice `json:"voices"`
}

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Clients int    `json:"clients"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
