package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/parle/adapters/llm"
	"github.com/satriahrh/parle/adapters/memory"
	"github.com/satriahrh/parle/adapters/mongo"
	"github.com/satriahrh/parle/adapters/postgres"
	"github.com/satriahrh/parle/adapters/stt"
	"github.com/satriahrh/parle/adapters/tts"
	"github.com/satriahrh/parle/domain/repositories"
	"github.com/satriahrh/parle/internal/config"
)

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repositories.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageMongo:
		return mongo.NewStore(ctx, cfg.Mongo, logger)
	case config.StoragePostgres:
		return postgres.NewStore(ctx, cfg.Postgres, logger)
	default:
		logger.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}
}

func newLLM(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	switch cfg.LLM.Provider {
	case config.LLMGemini:
		return llm.NewGeminiLLM(ctx, cfg.Gemini, logger)
	case config.LLMAnthropic:
		return llm.NewAnthropicLLM(cfg.Anthropic, logger)
	default:
		logger.Warn("Using mock chat model")
		return llm.NewMockLLM(), nil
	}
}

// newSTT returns the recognizer and a function releasing its resources
func newSTT(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, func(), error) {
	switch cfg.STT.Provider {
	case config.STTDeepgram:
		recognizer, err := stt.NewDeepgramSpeechToText(cfg.Deepgram, logger)
		return recognizer, func() {}, err
	case config.STTGoogle:
		recognizer, err := stt.NewGoogleSpeechToText(ctx, cfg.Google, logger)
		if err != nil {
			return nil, nil, err
		}
		return recognizer, func() {
			if err := recognizer.Close(); err != nil {
				logger.Error("Failed to close speech client", zap.Error(err))
			}
		}, nil
	default:
		logger.Warn("Using mock speech recognizer")
		return stt.NewMockSpeechToText(logger), func() {}, nil
	}
}

// newTTS returns the synthesizer and, for ElevenLabs, its voice catalogue
func newTTS(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, *tts.ElevenLabsTTS, error) {
	switch cfg.TTS.Provider {
	case config.TTSElevenLabs:
		synth, err := tts.NewElevenLabsTTS(cfg.ElevenLabs, logger)
		if err != nil {
			return nil, nil, err
		}
		return synth, synth, nil
	case config.TTSMock:
		return tts.NewMockTTS(), nil, nil
	default:
		logger.Info("Speech synthesis disabled, clients use browser speech")
		return tts.NoopTTS{}, nil, nil
	}
}
