package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
)

const defaultLanguage = "fr"

// Speech is the synthesized tutor reply. When Fallback is set the client
// should speak Text with its own speech synthesis.
type Speech struct {
	Audio       <-chan []byte `json:"-"`
	ContentType string        `json:"content_type,omitempty"`
	Fallback    bool          `json:"fallback"`
	Text        string        `json:"text"`
}

// TurnInput is one learner utterance, either recorded audio or typed text
type TurnInput struct {
	Audio       []byte
	AudioConfig repositories.AudioConfig
	Text        string
}

// TurnResult is the outcome of one conversation turn
type TurnResult struct {
	Transcript  string                `json:"transcript"`
	Confidence  *float64              `json:"confidence,omitempty"`
	Reply       string                `json:"reply"`
	Corrections []entities.Correction `json:"corrections"`
	// TutorFallback is set when the model was unavailable
	TutorFallback bool   `json:"tutor_fallback,omitempty"`
	Speech        Speech `json:"speech"`
}

// ConversationService orchestrates the conversation flow
type ConversationService struct {
	speechToText repositories.SpeechToText
	textToSpeech repositories.TextToSpeech
	tutor        *Tutor
	sessions     *SessionService
	profiles     repositories.ProfileRepository
	language     string
	logger       *zap.Logger
	now          func() time.Time
}

// NewConversationService creates a new conversation service
func NewConversationService(
	stt repositories.SpeechToText,
	textToSpeech repositories.TextToSpeech,
	tutor *Tutor,
	sessions *SessionService,
	profiles repositories.ProfileRepository,
	language string,
	logger *zap.Logger,
) *ConversationService {
	if language == "" {
		language = defaultLanguage
	}
	return &ConversationService{
		speechToText: stt,
		textToSpeech: textToSpeech,
		tutor:        tutor,
		sessions:     sessions,
		profiles:     profiles,
		language:     language,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *ConversationService) audioConfig(config repositories.AudioConfig) repositories.AudioConfig {
	if config.Language == "" {
		config.Language = s.language
	}
	return config
}

// Transcribe converts one recorded utterance to text
func (s *ConversationService) Transcribe(ctx context.Context, audio []byte, config repositories.AudioConfig) (repositories.Transcription, error) {
	if len(audio) == 0 {
		return repositories.Transcription{}, fmt.Errorf("%w: audio is empty", domain.ErrInvalidInput)
	}
	result, err := s.speechToText.TranscribeAudio(ctx, audio, s.audioConfig(config))
	if err != nil {
		return repositories.Transcription{}, fmt.Errorf("transcription failed: %w", err)
	}
	result.Text = strings.TrimSpace(result.Text)
	if result.Text == "" {
		return repositories.Transcription{}, domain.ErrEmptyTranscript
	}
	s.logger.Debug("Transcription completed", zap.Int("chars", len(result.Text)))
	return result, nil
}

// StartUtterance opens a streaming transcription for audio that arrives in
// chunks
func (s *ConversationService) StartUtterance(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	stream, err := s.speechToText.InitTranscribeStreaming(ctx, s.audioConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to start transcription: %w", err)
	}
	return stream, nil
}

// Synthesize turns text into speech with the learner's voice settings. A
// provider failure yields a fallback instead of an error.
func (s *ConversationService) Synthesize(ctx context.Context, text string, settings entities.ProfileSettings) Speech {
	audio, err := s.textToSpeech.ConvertTextToSpeech(ctx, text, repositories.VoiceOptions{
		VoiceID: settings.VoiceID,
		Speed:   settings.SpeakingRate,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrSynthesisDisabled) {
			s.logger.Debug("Speech synthesis disabled, client will speak the reply")
		} else {
			s.logger.Warn("Speech synthesis failed, falling back to client", zap.Error(err))
		}
		return Speech{Fallback: true, Text: text}
	}
	return Speech{Audio: audio, ContentType: s.textToSpeech.ContentType(), Text: text}
}

// ProcessTurn runs the full pipeline for one utterance: transcription (for
// audio input), tutor reply, turn persistence and speech synthesis
func (s *ConversationService) ProcessTurn(ctx context.Context, userID, sessionID string, in TurnInput) (*TurnResult, error) {
	transcription := repositories.Transcription{Text: strings.TrimSpace(in.Text)}
	if len(in.Audio) > 0 {
		var err error
		transcription, err = s.Transcribe(ctx, in.Audio, in.AudioConfig)
		if err != nil {
			return nil, err
		}
	}
	if transcription.Text == "" {
		return nil, fmt.Errorf("%w: audio or text is required", domain.ErrInvalidInput)
	}
	return s.Respond(ctx, userID, sessionID, transcription)
}

// Respond answers an already transcribed utterance
func (s *ConversationService) Respond(ctx context.Context, userID, sessionID string, transcription repositories.Transcription) (*TurnResult, error) {
	heard := s.now()

	session, err := s.sessions.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, domain.ErrSessionNotActive
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	reply := s.tutor.Reply(ctx, profile, session, transcription.Text)

	turn := entities.Turn{
		User: entities.TranscriptEntry{
			Role:            entities.RoleUser,
			Text:            transcription.Text,
			Timestamp:       heard,
			AudioDurationMs: transcription.DurationMs,
			Confidence:      transcription.Confidence,
		},
		Tutor: entities.TranscriptEntry{
			Role:      entities.RoleTutor,
			Text:      reply.Text,
			Timestamp: s.now(),
		},
		Corrections: reply.Corrections,
	}
	if err := s.sessions.RecordTurn(ctx, sessionID, userID, turn); err != nil {
		return nil, err
	}

	s.logger.Info("Turn processed",
		zap.String("userID", userID),
		zap.String("sessionID", sessionID),
		zap.Int("corrections", len(reply.Corrections)),
		zap.Bool("tutorFallback", reply.Fallback))

	corrections := reply.Corrections
	if corrections == nil {
		corrections = []entities.Correction{}
	}
	return &TurnResult{
		Transcript:    transcription.Text,
		Confidence:    transcription.Confidence,
		Reply:         reply.Text,
		Corrections:   corrections,
		TutorFallback: reply.Fallback,
		Speech:        s.Synthesize(ctx, reply.Text, profile.Settings),
	}, nil
}
