package websocket

import (
	"encoding/json"
	"testing"
)

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name     string
		message  string
		wantType MessageType
		wantErr  bool
	}{
		{
			name:     "listening start with audio settings",
			message:  `{"type": "listening_start", "sample_rate": 48000, "encoding": "webm_opus", "mode": "scenario", "topic": "au café"}`,
			wantType: MessageTypeListeningStart,
		},
		{
			name:     "bare listening start",
			message:  `{"type": "listening_start"}`,
			wantType: MessageTypeListeningStart,
		},
		{
			name:    "invalid sample rate",
			message: `{"type": "listening_start", "sample_rate": 100000}`,
			wantErr: true,
		},
		{
			name:    "invalid encoding",
			message: `{"type": "listening_start", "encoding": "midi"}`,
			wantErr: true,
		},
		{
			name:    "unknown mode",
			message: `{"type": "listening_start", "mode": "karaoke"}`,
			wantErr: true,
		},
		{
			name:     "listening end",
			message:  `{"type": "listening_end"}`,
			wantType: MessageTypeListeningEnd,
		},
		{
			name:     "end session",
			message:  `{"type": "end_session", "session_id": "s-1"}`,
			wantType: MessageTypeEndSession,
		},
		{
			name:     "ping",
			message:  `{"type": "ping", "data": "hello"}`,
			wantType: MessageTypePing,
		},
		{
			name:    "missing type",
			message: `{"data": "hello"}`,
			wantErr: true,
		},
		{
			name:    "unsupported type",
			message: `{"type": "audio_chunk"}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			message: `{invalid json}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			var got MessageType
			switch m := msg.(type) {
			case *ListeningStartMessage:
				got = m.Type
			case *ListeningEndMessage:
				got = m.Type
			case *EndSessionMessage:
				got = m.Type
			case *PingMessage:
				got = m.Type
			default:
				t.Fatalf("Unexpected message %T", msg)
			}
			if got != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, got)
			}
		})
	}
}

func TestMessageValidator_ListeningStartFields(t *testing.T) {
	msg, err := NewMessageValidator().ValidateMessage([]byte(`{"type": "listening_start", "sample_rate": 16000, "encoding": "LINEAR16", "language": "fr-FR", "topic": "le marché"}`))
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}
	start := msg.(*ListeningStartMessage)
	if start.SampleRate != 16000 || start.Encoding != "LINEAR16" || start.Language != "fr-FR" || start.Topic != "le marché" {
		t.Errorf("Unexpected fields: %+v", start)
	}
}

func TestCreateErrorMessage(t *testing.T) {
	raw, err := json.Marshal(CreateErrorMessage(ErrorCodeBusy, "busy", "details"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["type"] != "error" || decoded["error_code"] != ErrorCodeBusy || decoded["timestamp"] == "" {
		t.Errorf("Unexpected error message: %v", decoded)
	}

	pong := CreatePongMessage("hello")
	if pong.Type != MessageTypePong || pong.Data != "hello" {
		t.Errorf("Unexpected pong: %+v", pong)
	}
}
