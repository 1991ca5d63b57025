package repositories

import (
	"context"
	"errors"
)

// ErrSynthesisDisabled means no synthesizer is configured
var ErrSynthesisDisabled = errors.New("speech synthesis is disabled")

// TextToSpeech abstracts speech synthesis services
type TextToSpeech interface {
	// ConvertTextToSpeech starts synthesis and streams audio chunks. An error
	// means no audio will be produced and the caller should fall back to
	// client-side speech synthesis.
	ConvertTextToSpeech(ctx context.Context, text string, opts VoiceOptions) (<-chan []byte, error)
	// ContentType is the MIME type of the produced audio
	ContentType() string
}

// VoiceOptions carries per-learner voice preferences
type VoiceOptions struct {
	VoiceID string  `json:"voice_id,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}
