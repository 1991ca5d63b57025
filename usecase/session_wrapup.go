package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/progress"
	"github.com/satriahrh/parle/internal/saga"
)

const (
	wrapUpSagaID     = "session_wrap_up"
	finalizeAttempts = 3
)

// Data keys for the wrap-up saga
const (
	dataKeySessionID       = "session_id"
	dataKeyAbandon         = "abandon"
	dataKeySession         = "session"
	dataKeySummary         = "summary"
	dataKeyProfileSnapshot = "profile_snapshot"
)

// wrapUpDefinition closes a session and folds it into the learner profile
type wrapUpDefinition struct {
	svc *SessionService
}

func newWrapUpDefinition(svc *SessionService) *wrapUpDefinition {
	return &wrapUpDefinition{svc: svc}
}

func (d *wrapUpDefinition) ID() string {
	return wrapUpSagaID
}

func (d *wrapUpDefinition) Timeout() time.Duration {
	return 2 * time.Minute
}

func (d *wrapUpDefinition) Steps() []saga.Step {
	return []saga.Step{
		&finalizeSessionStep{svc: d.svc},
		&summarizeSessionStep{svc: d.svc},
		&mergeProfileStep{svc: d.svc},
		&storeSummaryStep{svc: d.svc},
	}
}

func sessionFrom(data saga.SagaData) (*entities.Session, error) {
	session, ok := data[dataKeySession].(*entities.Session)
	if !ok || session == nil {
		return nil, fmt.Errorf("session missing from saga data")
	}
	return session, nil
}

// finalizeSessionStep ends the session and persists its duration
type finalizeSessionStep struct {
	svc *SessionService
}

func (s *finalizeSessionStep) ID() saga.StepID {
	return "finalize_session"
}

func (s *finalizeSessionStep) Execute(ctx context.Context, data saga.SagaData) error {
	sessionID := data.String(dataKeySessionID)
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		session, err := s.svc.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if !session.IsActive() {
			return domain.ErrSessionAlreadyEnded
		}

		entries := len(session.Transcript)
		now := s.svc.now()
		if data.Bool(dataKeyAbandon) {
			session.Abandon(now)
		} else {
			session.End(now)
		}
		err = s.svc.sessions.Finalize(ctx, session, entries)
		if err == nil {
			data[dataKeySession] = session
			return nil
		}
		if !errors.Is(err, domain.ErrSessionChanged) {
			return fmt.Errorf("failed to finalize session: %w", err)
		}
		s.svc.logger.Warn("Session changed while finalizing, reloading",
			zap.String("sessionID", sessionID),
			zap.Int("attempt", attempt))
	}
	return fmt.Errorf("failed to finalize session %s: %w", sessionID, domain.ErrSessionChanged)
}

func (s *finalizeSessionStep) Compensate(ctx context.Context, data saga.SagaData) error {
	session, err := sessionFrom(data)
	if err != nil {
		return err
	}
	session.Reopen()
	session.Summary = nil
	return s.svc.sessions.Update(ctx, session)
}

// summarizeSessionStep compresses the transcript into a summary
type summarizeSessionStep struct {
	svc *SessionService
}

func (s *summarizeSessionStep) ID() saga.StepID {
	return "summarize_session"
}

func (s *summarizeSessionStep) Execute(ctx context.Context, data saga.SagaData) error {
	session, err := sessionFrom(data)
	if err != nil {
		return err
	}
	if session.UserTurnCount() == 0 {
		return saga.ErrSkipStep
	}

	profile, err := s.svc.profiles.GetByUserID(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	data[dataKeySummary] = s.svc.summarizer.Summarize(ctx, session, profile)
	return nil
}

func (s *summarizeSessionStep) Compensate(ctx context.Context, data saga.SagaData) error {
	delete(data, dataKeySummary)
	return nil
}

// mergeProfileStep folds the session into the learner profile
type mergeProfileStep struct {
	svc *SessionService
}

func (s *mergeProfileStep) ID() saga.StepID {
	return "merge_profile"
}

func (s *mergeProfileStep) Execute(ctx context.Context, data saga.SagaData) error {
	summary, ok := data[dataKeySummary].(*entities.SessionSummary)
	if !ok {
		return saga.ErrSkipStep
	}
	session, err := sessionFrom(data)
	if err != nil {
		return err
	}

	profile, err := s.svc.profiles.GetByUserID(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	snapshot := profile.Clone()
	if !progress.ApplySession(profile, session, summary, s.svc.now()) {
		return saga.ErrSkipStep
	}
	if err := s.svc.profiles.SaveProgress(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	data[dataKeyProfileSnapshot] = snapshot
	return nil
}

func (s *mergeProfileStep) Compensate(ctx context.Context, data saga.SagaData) error {
	snapshot, ok := data[dataKeyProfileSnapshot].(*entities.Profile)
	if !ok {
		return nil
	}
	return s.svc.profiles.SaveProgress(ctx, snapshot)
}

// storeSummaryStep attaches the summary to the ended session
type storeSummaryStep struct {
	svc *SessionService
}

func (s *storeSummaryStep) ID() saga.StepID {
	return "store_summary"
}

func (s *storeSummaryStep) Execute(ctx context.Context, data saga.SagaData) error {
	summary, ok := data[dataKeySummary].(*entities.SessionSummary)
	if !ok {
		return saga.ErrSkipStep
	}
	session, err := sessionFrom(data)
	if err != nil {
		return err
	}
	session.Summary = summary
	if err := s.svc.sessions.Update(ctx, session); err != nil {
		session.Summary = nil
		return fmt.Errorf("failed to store summary: %w", err)
	}
	return nil
}

func (s *storeSummaryStep) Compensate(ctx context.Context, data saga.SagaData) error {
	return nil
}
