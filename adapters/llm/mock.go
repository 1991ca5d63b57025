package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/satriahrh/parle/domain/repositories"
)

// MockLLM is a scripted LargeLanguageModel for development and tests.
// Queued responses are returned in order; once they run out it echoes the
// last learner message back in a French reply.
type MockLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []repositories.CompletionRequest
}

var _ repositories.LargeLanguageModel = (*MockLLM)(nil)

// NewMockLLM creates a mock model that returns the given responses in order
func NewMockLLM(responses ...string) *MockLLM {
	return &MockLLM{responses: responses}
}

// Name implements repositories.LargeLanguageModel
func (m *MockLLM) Name() string {
	return "mock"
}

// QueueResponse appends a scripted response
func (m *MockLLM) QueueResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, text)
}

// QueueError makes the next call fail with err
func (m *MockLLM) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

// Requests returns every request received so far
func (m *MockLLM) Requests() []repositories.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repositories.CompletionRequest(nil), m.requests...)
}

// Complete implements repositories.LargeLanguageModel
func (m *MockLLM) Complete(ctx context.Context, req repositories.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	if len(m.responses) > 0 {
		text := m.responses[0]
		m.responses = m.responses[1:]
		return text, nil
	}
	return mockReply(req), nil
}

func mockReply(req repositories.CompletionRequest) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == repositories.UserRole {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	reply := "Bonjour ! De quoi veux-tu parler aujourd'hui ?"
	if last != "" {
		reply = "Très bien ! Tu as dit : « " + last + " ». Peux-tu m'en dire plus ?"
	}
	if !req.JSON {
		return reply
	}
	b, _ := json.Marshal(map[string]any{
		"reply":       reply,
		"corrections": []any{},
	})
	return string(b)
}
