package repositories

import "context"

// LargeLanguageModel abstracts any chat/LLM provider
type LargeLanguageModel interface {
	// Name identifies the provider in logs
	Name() string
	// Complete sends a system prompt plus history and returns the model's reply
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a single provider-agnostic chat completion call
type CompletionRequest struct {
	System      string        `json:"system"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	// JSON asks providers that support it for a JSON-only response
	JSON bool `json:"json,omitempty"`
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
)
