package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain/repositories"
)

const (
	defaultDeepgramBaseURL = "https://api.deepgram.com/v1"
	defaultDeepgramModel   = "nova-2"
	defaultDeepgramTimeout = 30 * time.Second
	maxDeepgramErrorBody   = 4 << 10
)

// DeepgramConfig holds the Deepgram pre-recorded API settings
type DeepgramConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ValidateDeepgramConfig validates the DeepgramConfig
func ValidateDeepgramConfig(config DeepgramConfig) error {
	if config.APIKey == "" {
		return errors.New("Deepgram API key is required")
	}
	if config.BaseURL != "" {
		if _, err := url.Parse(config.BaseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
	}
	return nil
}

// DeepgramSpeechToText transcribes whole utterances with Deepgram's
// pre-recorded endpoint; streaming is buffered client side.
type DeepgramSpeechToText struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.SpeechToText = (*DeepgramSpeechToText)(nil)

// NewDeepgramSpeechToText creates a Deepgram client
func NewDeepgramSpeechToText(config DeepgramConfig, logger *zap.Logger) (*DeepgramSpeechToText, error) {
	if err := ValidateDeepgramConfig(config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultDeepgramModel
		logger.Info("Using default model", zap.String("model", model))
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultDeepgramBaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultDeepgramTimeout
	}

	return &DeepgramSpeechToText{
		apiKey:     config.APIKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// TranscribeAudio implements repositories.SpeechToText
func (d *DeepgramSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (repositories.Transcription, error) {
	if len(audioData) == 0 {
		return repositories.Transcription{}, errors.New("no audio data received")
	}

	query := url.Values{}
	query.Set("model", d.model)
	query.Set("language", deepgramLanguage(config.Language))
	query.Set("smart_format", "true")
	query.Set("punctuate", "true")
	if strings.EqualFold(config.Encoding, "LINEAR16") && config.SampleRate > 0 {
		query.Set("encoding", "linear16")
		query.Set("sample_rate", fmt.Sprint(config.SampleRate))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/listen?"+query.Encode(), bytes.NewReader(audioData))
	if err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", contentType(config))

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDeepgramErrorBody))
		return repositories.Transcription{}, fmt.Errorf("deepgram API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to decode response: %w", err)
	}

	result := repositories.Transcription{
		DurationMs: int64(parsed.Metadata.Duration * 1000),
	}
	if len(parsed.Results.Channels) > 0 && len(parsed.Results.Channels[0].Alternatives) > 0 {
		best := parsed.Results.Channels[0].Alternatives[0]
		result.Text = strings.TrimSpace(best.Transcript)
		confidence := best.Confidence
		result.Confidence = &confidence
	}

	d.logger.Debug("Deepgram transcription finished",
		zap.Int("audioSize", len(audioData)),
		zap.Duration("latency", time.Since(start)),
		zap.Int("textLength", len(result.Text)))
	return result, nil
}

// InitTranscribeStreaming implements repositories.SpeechToText by buffering
// the utterance and sending it once End is called
func (d *DeepgramSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	return NewBufferedStream(ctx, d, config, 0), nil
}

func deepgramLanguage(language string) string {
	if language == "" {
		return "fr"
	}
	return language
}

// contentType picks the MIME type sent with a pre-recorded upload
func contentType(config repositories.AudioConfig) string {
	if config.ContentType != "" {
		return config.ContentType
	}
	switch strings.ToUpper(config.Encoding) {
	case "WAV", "LINEAR16":
		return "audio/wav"
	case "FLAC":
		return "audio/flac"
	case "OGG_OPUS":
		return "audio/ogg"
	case "MP3":
		return "audio/mpeg"
	case "WEBM_OPUS", "WEBM":
		return "audio/webm"
	}
	return "application/octet-stream"
}
