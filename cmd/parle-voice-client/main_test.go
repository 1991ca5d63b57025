package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/internal/api"
	"github.com/satriahrh/parle/usecase"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		server  string
		want    string
		wantErr bool
	}{
		{server: "http://localhost:8080", want: "ws://localhost:8080/ws"},
		{server: "https://parle.example.com/", want: "wss://parle.example.com/ws"},
		{server: "http://host/prefix", want: "ws://host/prefix/ws"},
		{server: "ftp://host", wantErr: true},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.server)
		if tt.wantErr {
			if err == nil {
				t.Errorf("websocketURL(%q) expected error", tt.server)
			}
			continue
		}
		if err != nil {
			t.Fatalf("websocketURL(%q): %v", tt.server, err)
		}
		if got != tt.want {
			t.Errorf("websocketURL(%q) = %q, want %q", tt.server, got, tt.want)
		}
	}
}

func TestSplit(t *testing.T) {
	chunks := split(make([]byte, 2500), 1024)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[2]) != 452 {
		t.Errorf("expected last chunk of 452 bytes, got %d", len(chunks[2]))
	}
	if got := split(nil, 1024); len(got) != 0 {
		t.Errorf("expected no chunks for empty audio, got %d", len(got))
	}
	if got := split(make([]byte, 10), 0); len(got) != 1 {
		t.Errorf("expected default chunk size, got %d chunks", len(got))
	}
}

func TestAwait(t *testing.T) {
	events := make(chan string, 4)
	events <- "pong"
	events <- "speaking_end"
	if err := await(context.Background(), events, "tts_fallback", "speaking_end"); err != nil {
		t.Fatalf("await: %v", err)
	}

	events <- "error"
	if err := await(context.Background(), events, "speaking_end"); err == nil {
		t.Error("expected server error to end the wait")
	}

	close(events)
	if err := await(context.Background(), events, "speaking_end"); err == nil {
		t.Error("expected closed connection to end the wait")
	}
}

func TestAuthenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if req.Password != "secret-password" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "invalid_credentials", Message: "invalid email or password"})
			return
		}
		json.NewEncoder(w).Encode(usecase.AuthResult{Token: "tok", User: &entities.User{ID: "u1", Email: req.Email}})
	}))
	defer server.Close()

	result, err := authenticate(context.Background(), server.URL, "/api/v1/auth/login", api.LoginRequest{
		Email: "lea@example.com", Password: "secret-password",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result.Token != "tok" || result.User.ID != "u1" {
		t.Errorf("unexpected result %+v", result)
	}

	_, err = authenticate(context.Background(), server.URL, "/api/v1/auth/login", api.LoginRequest{
		Email: "lea@example.com", Password: "wrong",
	})
	if err == nil || !strings.Contains(err.Error(), "invalid_credentials") {
		t.Errorf("expected invalid_credentials error, got %v", err)
	}
}
