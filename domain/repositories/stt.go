package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts audio data to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (Transcription, error)
	// InitTranscribeStreaming initializes a streaming transcription session
	InitTranscribeStreaming(ctx context.Context, config AudioConfig) (SpeechToTextStreaming, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate  int    `json:"sample_rate"`
	Encoding    string `json:"encoding"`
	Language    string `json:"language"`
	ContentType string `json:"content_type,omitempty"`
}

// Transcription is the recognized text of one utterance
type Transcription struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	DurationMs int64    `json:"duration_ms,omitempty"`
}

// SpeechToTextStreaming receives audio incrementally and yields one result
type SpeechToTextStreaming interface {
	Stream(data []byte) error
	End() (Transcription, error)
}
