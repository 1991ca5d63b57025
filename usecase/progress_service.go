package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/progress"
	"github.com/satriahrh/parle/domain/repositories"
)

const (
	recentSessionLimit      = 100
	defaultTroubleWordLimit = 10
)

// Overview is the learner dashboard
type Overview struct {
	Level                entities.Level           `json:"level"`
	CurrentStreak        int                      `json:"current_streak"`
	LongestStreak        int                      `json:"longest_streak"`
	TotalPracticeMinutes int                      `json:"total_practice_minutes"`
	SessionCount         int                      `json:"session_count"`
	VocabularySize       int                      `json:"vocabulary_size"`
	DailyGoalMinutes     int                      `json:"daily_goal_minutes"`
	TodayMinutes         int                      `json:"today_minutes"`
	WeeklyActivity       []progress.DayActivity   `json:"weekly_activity"`
	TroubleWords         []progress.TroubleWord   `json:"trouble_words"`
	Topics               []progress.TopicStat     `json:"topics"`
	CorrectionBreakdown  []progress.CategoryCount `json:"correction_breakdown"`
	RecommendedFocus     []string                 `json:"recommended_focus"`
	Strengths            []string                 `json:"strengths"`
	Weaknesses           []string                 `json:"weaknesses"`
}

// ProgressService derives dashboard views from profiles and sessions
type ProgressService struct {
	profiles repositories.ProfileRepository
	sessions repositories.SessionRepository
	logger   *zap.Logger
}

// NewProgressService creates a new progress service
func NewProgressService(profiles repositories.ProfileRepository, sessions repositories.SessionRepository, logger *zap.Logger) *ProgressService {
	return &ProgressService{profiles: profiles, sessions: sessions, logger: logger}
}

func (s *ProgressService) load(ctx context.Context, userID string) (*entities.Profile, []*entities.Session, error) {
	var profile *entities.Profile
	var sessions []*entities.Session

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.profiles.GetByUserID(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		list, err := s.sessions.ListByUserID(gctx, userID, recentSessionLimit)
		if err != nil {
			return fmt.Errorf("failed to load sessions: %w", err)
		}
		sessions = list
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("No progress data for user", zap.String("userID", userID))
		} else {
			s.logger.Error("Failed to load progress data", zap.String("userID", userID), zap.Error(err))
		}
		return nil, nil, err
	}
	return profile, sessions, nil
}

// Overview builds the full dashboard for the learner at now
func (s *ProgressService) Overview(ctx context.Context, userID string, now time.Time) (*Overview, error) {
	profile, sessions, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	weekly := progress.WeeklyActivity(sessions, now, profile.Location())
	return &Overview{
		Level:                profile.Level,
		CurrentStreak:        progress.EffectiveStreak(profile, now),
		LongestStreak:        profile.LongestStreak,
		TotalPracticeMinutes: profile.TotalPracticeMinutes,
		SessionCount:         profile.SessionCount,
		VocabularySize:       len(profile.Vocabulary),
		DailyGoalMinutes:     profile.Settings.DailyGoalMinutes,
		TodayMinutes:         weekly[len(weekly)-1].Minutes,
		WeeklyActivity:       weekly,
		TroubleWords:         nonNilSlice(progress.TroubleWords(profile, defaultTroubleWordLimit)),
		Topics:               progress.AggregateTopics(sessions),
		CorrectionBreakdown:  progress.CorrectionBreakdown(sessions),
		RecommendedFocus:     progress.RecommendedFocus(profile, sessions, progress.DefaultFocusLimit),
		Strengths:            nonNilSlice(profile.Strengths),
		Weaknesses:           nonNilSlice(profile.Weaknesses),
	}, nil
}

// TroubleWords lists the learner's weakest vocabulary
func (s *ProgressService) TroubleWords(ctx context.Context, userID string, limit int) ([]progress.TroubleWord, error) {
	if limit <= 0 {
		limit = defaultTroubleWordLimit
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return nonNilSlice(progress.TroubleWords(profile, limit)), nil
}

// Topics aggregates the learner's recent sessions by topic
func (s *ProgressService) Topics(ctx context.Context, userID string) ([]progress.TopicStat, error) {
	sessions, err := s.sessions.ListByUserID(ctx, userID, recentSessionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return progress.AggregateTopics(sessions), nil
}

// Focus recommends what the learner should practice next
func (s *ProgressService) Focus(ctx context.Context, userID string, limit int) ([]string, error) {
	profile, sessions, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return progress.RecommendedFocus(profile, sessions, limit), nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
