package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
	"github.com/satriahrh/parle/internal/saga"
)

const (
	defaultStaleAfter   = 30 * time.Minute
	defaultAbandonAfter = 6 * time.Hour
	staleBatchSize      = 100
	defaultListLimit    = 20
	maxListLimit        = 100
)

// SessionConfig tunes the session lifecycle
type SessionConfig struct {
	// StaleAfter is the idle time after which Start opens a new session
	StaleAfter time.Duration
	// AbandonAfter is the idle time after which the cleanup worker wraps up
	// an active session
	AbandonAfter time.Duration
}

// SessionService manages the lifecycle of tutoring sessions
type SessionService struct {
	sessions   repositories.SessionRepository
	profiles   repositories.ProfileRepository
	summarizer *Summarizer
	sagas      *saga.Manager
	config     SessionConfig
	logger     *zap.Logger
	now        func() time.Time

	// wrapping holds the IDs of sessions whose wrap-up is in progress
	wrapping sync.Map
}

// NewSessionService creates a new session service and registers the wrap-up
// saga with the manager
func NewSessionService(
	sessions repositories.SessionRepository,
	profiles repositories.ProfileRepository,
	summarizer *Summarizer,
	sagas *saga.Manager,
	config SessionConfig,
	logger *zap.Logger,
) *SessionService {
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaultStaleAfter
		logger.Info("Using default session stale timeout", zap.Duration("staleAfter", config.StaleAfter))
	}
	if config.AbandonAfter <= 0 {
		config.AbandonAfter = defaultAbandonAfter
		logger.Info("Using default session abandon timeout", zap.Duration("abandonAfter", config.AbandonAfter))
	}

	s := &SessionService{
		sessions:   sessions,
		profiles:   profiles,
		summarizer: summarizer,
		sagas:      sagas,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
	sagas.RegisterDefinition(newWrapUpDefinition(s))
	return s
}

// Start returns the learner's active session, or opens a new one when there
// is none or the active one has gone stale. A stale session is wrapped up
// first; its failures are logged and do not block the new session.
func (s *SessionService) Start(ctx context.Context, userID string, mode entities.SessionMode, topic string) (*entities.Session, error) {
	if mode != "" && !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown session mode %q", domain.ErrInvalidInput, mode)
	}

	now := s.now()
	active, err := s.sessions.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}
	if active != nil {
		if !active.ShouldStartNew(now, s.config.StaleAfter) {
			s.logger.Debug("Reusing active session",
				zap.String("userID", userID),
				zap.String("sessionID", active.ID))
			return active, nil
		}
		if _, err := s.wrapUp(ctx, active, false); err != nil {
			s.logger.Error("Failed to wrap up stale session",
				zap.String("userID", userID),
				zap.String("sessionID", active.ID),
				zap.Error(err))
		}
	}

	session := entities.NewSession(uuid.NewString(), userID, mode, topic, now)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("Session started",
		zap.String("userID", userID),
		zap.String("sessionID", session.ID),
		zap.String("mode", string(session.Mode)))
	return session, nil
}

// Get returns a session owned by userID
func (s *SessionService) Get(ctx context.Context, sessionID, userID string) (*entities.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return session, nil
}

// List returns the learner's sessions, most recent first
func (s *SessionService) List(ctx context.Context, userID string, limit int) ([]*entities.Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	sessions, err := s.sessions.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// RecordTurn appends a learner utterance, the tutor reply and its
// corrections to an active session
func (s *SessionService) RecordTurn(ctx context.Context, sessionID, userID string, turn entities.Turn) error {
	session, err := s.Get(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !session.IsActive() {
		return domain.ErrSessionNotActive
	}
	if err := s.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
		if errors.Is(err, domain.ErrSessionNotActive) {
			return err
		}
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// End closes an active session and runs the wrap-up: summary, profile merge
// and summary storage. It returns the ended session.
func (s *SessionService) End(ctx context.Context, sessionID, userID string) (*entities.Session, error) {
	session, err := s.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, domain.ErrSessionAlreadyEnded
	}
	return s.wrapUp(ctx, session, false)
}

// AbandonStale wraps up sessions idle for longer than AbandonAfter. Sessions
// without a learner utterance are marked abandoned. It returns how many
// sessions were closed.
func (s *SessionService) AbandonStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.sessions.ListStaleActive(ctx, now.Add(-s.config.AbandonAfter), staleBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	closed := 0
	for _, session := range stale {
		if err := ctx.Err(); err != nil {
			return closed, err
		}
		abandon := session.UserTurnCount() == 0
		if _, err := s.wrapUp(ctx, session, abandon); err != nil {
			s.logger.Error("Failed to close stale session",
				zap.String("sessionID", session.ID),
				zap.Bool("abandon", abandon),
				zap.Error(err))
			continue
		}
		closed++
	}
	if closed > 0 {
		s.logger.Info("Closed stale sessions", zap.Int("count", closed))
	}
	return closed, nil
}

func (s *SessionService) wrapUp(ctx context.Context, session *entities.Session, abandon bool) (*entities.Session, error) {
	if _, busy := s.wrapping.LoadOrStore(session.ID, struct{}{}); busy {
		return nil, domain.ErrSessionAlreadyEnded
	}
	defer s.wrapping.Delete(session.ID)

	data := saga.SagaData{
		dataKeySessionID: session.ID,
		dataKeyAbandon:   abandon,
	}
	instance, err := s.sagas.Run(ctx, wrapUpSagaID, data)
	if err != nil {
		return nil, err
	}

	ended, _ := data[dataKeySession].(*entities.Session)
	s.logger.Info("Session wrapped up",
		zap.String("userID", ended.UserID),
		zap.String("sessionID", ended.ID),
		zap.String("sagaID", string(instance.ID)),
		zap.Any("skippedSteps", instance.SkippedSteps()),
		zap.String("status", string(ended.Status)),
		zap.Int64("durationSeconds", ended.DurationSeconds),
		zap.Bool("summarized", ended.Summary != nil))
	return ended, nil
}
