package tts

import (
	"context"
	"errors"
	"strings"

	"github.com/satriahrh/parle/domain/repositories"
)

// NoopTTS never produces audio, so clients always fall back to browser speech
type NoopTTS struct{}

var _ repositories.TextToSpeech = NoopTTS{}

// ConvertTextToSpeech implements repositories.TextToSpeech
func (NoopTTS) ConvertTextToSpeech(ctx context.Context, text string, opts repositories.VoiceOptions) (<-chan []byte, error) {
	return nil, repositories.ErrSynthesisDisabled
}

// ContentType implements repositories.TextToSpeech
func (NoopTTS) ContentType() string {
	return ""
}

// MockTTS emits the text itself as fake audio, split into fixed-size chunks
type MockTTS struct {
	ChunkSize int
	Err       error
}

var _ repositories.TextToSpeech = (*MockTTS)(nil)

// NewMockTTS creates a mock synthesizer
func NewMockTTS() *MockTTS {
	return &MockTTS{ChunkSize: 16}
}

// ConvertTextToSpeech implements repositories.TextToSpeech
func (m *MockTTS) ConvertTextToSpeech(ctx context.Context, text string, opts repositories.VoiceOptions) (<-chan []byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text cannot be empty")
	}

	size := m.ChunkSize
	if size <= 0 {
		size = 16
	}
	data := []byte(text)
	out := make(chan []byte, len(data)/size+1)
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		out <- data[start:end]
	}
	close(out)
	return out, nil
}

// ContentType implements repositories.TextToSpeech
func (m *MockTTS) ContentType() string {
	return "audio/mpeg"
}
