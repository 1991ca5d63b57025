package main

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/parle/adapters/llm"
	"github.com/satriahrh/parle/adapters/stt"
	"github.com/satriahrh/parle/adapters/tts"
	"github.com/satriahrh/parle/internal/config"
)

func TestProviders_Defaults(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: config.StorageMemory},
		LLM:     config.ProviderConfig{Provider: config.LLMMock},
		STT:     config.ProviderConfig{Provider: config.STTMock},
		TTS:     config.ProviderConfig{Provider: config.TTSNone},
	}

	store, err := newStore(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	if store.Users == nil || store.Profiles == nil || store.Sessions == nil {
		t.Fatal("expected every repository to be set")
	}

	model, err := newLLM(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newLLM: %v", err)
	}
	if _, ok := model.(*llm.MockLLM); !ok {
		t.Errorf("expected mock model, got %T", model)
	}

	recognizer, closeSTT, err := newSTT(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newSTT: %v", err)
	}
	defer closeSTT()
	if _, ok := recognizer.(*stt.MockSpeechToText); !ok {
		t.Errorf("expected mock recognizer, got %T", recognizer)
	}

	synth, voices, err := newTTS(cfg, logger)
	if err != nil {
		t.Fatalf("newTTS: %v", err)
	}
	if _, ok := synth.(tts.NoopTTS); !ok {
		t.Errorf("expected noop synthesizer, got %T", synth)
	}
	if voices != nil {
		t.Error("expected no voice catalogue without ElevenLabs")
	}

	cfg.TTS.Provider = config.TTSMock
	synth, _, err = newTTS(cfg, logger)
	if err != nil {
		t.Fatalf("newTTS: %v", err)
	}
	if _, ok := synth.(*tts.MockTTS); !ok {
		t.Errorf("expected mock synthesizer, got %T", synth)
	}
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"serve"}, {"migrate", "up"}, {"migrate", "down"}, {"migrate", "status"}} {
		cmd, _, err := root.Find(path)
		if err != nil {
			t.Fatalf("Find(%v): %v", path, err)
		}
		if cmd.Name() != path[len(path)-1] {
			t.Errorf("Find(%v) = %s", path, cmd.Name())
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config flag")
	}
}
