package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/satriahrh/parle/domain/repositories"
)

// DefaultMaxUtteranceBytes bounds a buffered utterance (about five minutes of
// 16 kHz 16-bit mono audio)
const DefaultMaxUtteranceBytes = 10 << 20

// ErrUtteranceTooLarge is returned when a buffered utterance exceeds its limit
var ErrUtteranceTooLarge = errors.New("utterance too large")

// transcriber is the non-streaming half of SpeechToText
type transcriber interface {
	TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (repositories.Transcription, error)
}

// BufferedStream adapts a whole-file transcriber to the streaming interface
type BufferedStream struct {
	ctx      context.Context
	target   transcriber
	config   repositories.AudioConfig
	maxBytes int

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

var _ repositories.SpeechToTextStreaming = (*BufferedStream)(nil)

// NewBufferedStream creates a stream that collects audio until End
func NewBufferedStream(ctx context.Context, target transcriber, config repositories.AudioConfig, maxBytes int) *BufferedStream {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUtteranceBytes
	}
	return &BufferedStream{
		ctx:      ctx,
		target:   target,
		config:   config,
		maxBytes: maxBytes,
	}
}

// Stream appends a chunk of audio
func (b *BufferedStream) Stream(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New("stream already ended")
	}
	if b.buf.Len()+len(data) > b.maxBytes {
		return fmt.Errorf("%w: limit is %d bytes", ErrUtteranceTooLarge, b.maxBytes)
	}
	b.buf.Write(data)
	return nil
}

// End transcribes everything received so far
func (b *BufferedStream) End() (repositories.Transcription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return repositories.Transcription{}, errors.New("stream already ended")
	}
	b.closed = true
	audio := b.buf.Bytes()
	b.mu.Unlock()

	if len(audio) == 0 {
		return repositories.Transcription{}, errors.New("no audio data received")
	}
	return b.target.TranscribeAudio(b.ctx, audio, b.config)
}
