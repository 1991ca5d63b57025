package stt

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain/repositories"
)

// MockSpeechToText is a placeholder implementation for speech recognition.
// When Text is empty the transcription depends on the audio size.
type MockSpeechToText struct {
	Text   string
	Err    error
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (repositories.Transcription, error) {
	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding))

	if s.Err != nil {
		return repositories.Transcription{}, s.Err
	}
	if len(audioData) == 0 {
		return repositories.Transcription{}, errors.New("no audio data received")
	}

	confidence := 0.9
	result := repositories.Transcription{
		Text:       s.Text,
		Confidence: &confidence,
		DurationMs: int64(len(audioData)) * 1000 / 32000,
	}
	if result.Text != "" {
		return result, nil
	}
	switch {
	case len(audioData) > 10000:
		result.Text = "Bonjour, je voudrais parler de mon week-end au marché."
	case len(audioData) > 5000:
		result.Text = "Merci beaucoup, c'était très intéressant."
	case len(audioData) > 1000:
		result.Text = "Bonjour !"
	default:
		result.Text = "Salut"
	}
	return result, nil
}

// InitTranscribeStreaming implements repositories.SpeechToText
func (s *MockSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	s.logger.Info("Initializing mock streaming transcription",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))

	return NewBufferedStream(ctx, s, config, 0), nil
}
