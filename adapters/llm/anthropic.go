package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain/repositories"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	defaultAnthropicModel   = "claude-sonnet-4-20250514"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
)

// AnthropicConfig holds the Claude provider settings
type AnthropicConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ValidateAnthropicConfig validates the AnthropicConfig
func ValidateAnthropicConfig(config AnthropicConfig) error {
	if config.APIKey == "" {
		return errors.New("Anthropic API key is required")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// AnthropicLLM implements the LargeLanguageModel interface over the Claude Messages API
type AnthropicLLM struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.LargeLanguageModel = (*AnthropicLLM)(nil)

// NewAnthropicLLM creates a new Claude client
func NewAnthropicLLM(config AnthropicConfig, logger *zap.Logger) (*AnthropicLLM, error) {
	if err := ValidateAnthropicConfig(config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultAnthropicModel
		logger.Info("Using default model", zap.String("model", model))
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
		logger.Info("Using default maxTokens", zap.Int("maxTokens", maxTokens))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &AnthropicLLM{
		apiKey:     config.APIKey,
		model:      model,
		baseURL:    baseURL,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		logger:     logger,
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Name implements repositories.LargeLanguageModel
func (a *AnthropicLLM) Name() string {
	return "anthropic"
}

// Complete implements repositories.LargeLanguageModel
func (a *AnthropicLLM) Complete(ctx context.Context, req repositories.CompletionRequest) (string, error) {
	body := anthropicRequest{
		Model:     a.model,
		System:    req.System,
		Messages:  toAnthropicMessages(req.Messages),
		MaxTokens: a.maxTokens,
	}
	if len(body.Messages) == 0 {
		return "", errors.New("no messages to send")
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	if req.JSON {
		body.System = strings.TrimSpace(body.System + "\n\nRespond with a single JSON object and nothing else.")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	text, err := withRetry(ctx, a.logger, a.Name(), defaultAttempts, func(ctx context.Context) (string, error) {
		return a.send(ctx, payload)
	})
	if err != nil {
		a.logger.Error("Failed to complete with Anthropic", zap.Error(err))
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	a.logger.Debug("Anthropic completion processed",
		zap.Int("historyLength", len(body.Messages)),
		zap.String("responsePreview", preview(text)))
	return text, nil
}

func (a *AnthropicLLM) send(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := anthropicAPIError(resp.StatusCode, respBody)
		// rate limits, overload and server errors are worth another attempt
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", apiErr
		}
		return "", permanent(apiErr)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", permanent(fmt.Errorf("failed to decode response: %w", err))
	}

	var b strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("empty response from Anthropic")
	}
	return text, nil
}

func anthropicAPIError(status int, body []byte) error {
	var e anthropicErrorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("anthropic API error (status %d, %s): %s", status, e.Error.Type, e.Error.Message)
	}
	return fmt.Errorf("anthropic API error (status %d): %s", status, strings.TrimSpace(string(body)))
}

// toAnthropicMessages converts history to Claude messages. Claude requires the
// conversation to open with a user turn and to alternate roles, so leading
// assistant turns are dropped and consecutive same-role turns are joined.
func toAnthropicMessages(messages []repositories.ChatMessage) []anthropicMessage {
	var out []anthropicMessage
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "user"
		if msg.Role == repositories.AssistantRole {
			role = "assistant"
		}
		if len(out) == 0 && role == "assistant" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + content
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: content})
	}
	return out
}
