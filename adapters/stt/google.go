package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain/repositories"
)

// GoogleConfig holds the Google Cloud Speech settings. Credentials come from
// the environment (GOOGLE_APPLICATION_CREDENTIALS).
type GoogleConfig struct {
	Model string `mapstructure:"model"`
}

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	model  string
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a Google Cloud Speech client
func NewGoogleSpeechToText(ctx context.Context, config GoogleConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{
		client: client,
		model:  config.Model,
		logger: logger,
	}, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

// InitTranscribeStreaming opens a single-utterance recognition stream
func (g *GoogleSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            int32(config.SampleRate),
		LanguageCode:               languageCode(config.Language),
		EnableAutomaticPunctuation: true,
		Model:                      g.model,
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:          recognitionConfig,
				InterimResults:  false,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	return &GoogleSpeechToTextStream{
		stream: stream,
		ctx:    ctx,
		logger: g.logger,
		done:   make(chan struct{}),
	}, nil
}

// GoogleSpeechToTextStream is one open recognition stream
type GoogleSpeechToTextStream struct {
	stream speechpb.Speech_StreamingRecognizeClient
	ctx    context.Context
	logger *zap.Logger

	startOnce     sync.Once
	audioReceived bool
	done          chan struct{}
	result        repositories.Transcription
	err           error
}

// maxAudioChunkBytes is the largest audio_content the streaming API accepts
// in one request
const maxAudioChunkBytes = 25 * 1024

// Stream sends audio, split into requests of at most maxAudioChunkBytes
func (g *GoogleSpeechToTextStream) Stream(data []byte) error {
	g.startOnce.Do(func() { go g.receiveResults() })

	if len(data) == 0 {
		return nil
	}
	g.audioReceived = true
	for len(data) > 0 {
		n := min(len(data), maxAudioChunkBytes)
		if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: data[:n],
			},
		}); err != nil {
			return fmt.Errorf("failed to send audio data: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// End closes the send side and waits for the final transcription
func (g *GoogleSpeechToTextStream) End() (repositories.Transcription, error) {
	if !g.audioReceived {
		g.stream.CloseSend()
		return repositories.Transcription{}, errors.New("no audio data received")
	}

	if err := g.stream.CloseSend(); err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-g.ctx.Done():
		return repositories.Transcription{}, fmt.Errorf("context cancelled while waiting for result: %w", g.ctx.Err())
	case <-g.done:
	}

	if g.err != nil {
		return repositories.Transcription{}, g.err
	}
	return g.result, nil
}

func (g *GoogleSpeechToTextStream) receiveResults() {
	defer close(g.done)

	var parts []string
	var confidence float64
	var finals int
	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			g.err = fmt.Errorf("failed to receive response: %w", err)
			return
		}

		for _, result := range resp.Results {
			if !result.IsFinal || len(result.Alternatives) == 0 {
				continue
			}
			best := result.Alternatives[0]
			parts = append(parts, strings.TrimSpace(best.Transcript))
			confidence += float64(best.Confidence)
			finals++
			g.result.DurationMs = result.GetResultEndTime().AsDuration().Milliseconds()
		}
	}

	g.result.Text = strings.TrimSpace(strings.Join(parts, " "))
	if finals > 0 {
		avg := confidence / float64(finals)
		g.result.Confidence = &avg
	}
	g.logger.Debug("Google transcription finished",
		zap.Int("finalResults", finals),
		zap.Int("textLength", len(g.result.Text)))
}

// TranscribeAudio converts a complete recording through a single stream
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (repositories.Transcription, error) {
	stream, err := g.InitTranscribeStreaming(ctx, config)
	if err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to initialize streaming: %w", err)
	}

	if err := stream.Stream(audioData); err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to stream audio data: %w", err)
	}

	return stream.End()
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS", "WEBM":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// languageCode expands bare language tags to the BCP-47 region Google expects
func languageCode(language string) string {
	switch strings.ToLower(language) {
	case "", "fr":
		return "fr-FR"
	case "en":
		return "en-US"
	}
	return language
}
