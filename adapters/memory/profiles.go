package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
)

// ProfileRepository is an in-memory implementation of repositories.ProfileRepository
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*entities.Profile // user id -> profile
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates an empty profile repository
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[string]*entities.Profile)}
}

// Create implements repositories.ProfileRepository
func (r *ProfileRepository) Create(ctx context.Context, profile *entities.Profile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[profile.UserID]; exists {
		return fmt.Errorf("profile for user %s already exists", profile.UserID)
	}
	r.profiles[profile.UserID] = profile.Clone()
	return nil
}

// GetByUserID implements repositories.ProfileRepository
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*entities.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile for user %s: %w", userID, domain.ErrNotFound)
	}
	return p.Clone(), nil
}

// SaveSettings implements repositories.ProfileRepository
func (r *ProfileRepository) SaveSettings(ctx context.Context, profile *entities.Profile) error {
	return r.update(profile, func(stored, in *entities.Profile) {
		stored.DisplayName = in.DisplayName
		stored.Level = in.Level
		stored.NativeLanguage = in.NativeLanguage
		stored.Settings = in.Settings
	})
}

// SaveProgress implements repositories.ProfileRepository
func (r *ProfileRepository) SaveProgress(ctx context.Context, profile *entities.Profile) error {
	return r.update(profile, func(stored, in *entities.Profile) {
		stored.Vocabulary = in.Vocabulary
		stored.Grammar = in.Grammar
		stored.Strengths = in.Strengths
		stored.Weaknesses = in.Weaknesses
		stored.TotalPracticeMinutes = in.TotalPracticeMinutes
		stored.SessionCount = in.SessionCount
		stored.CurrentStreak = in.CurrentStreak
		stored.LongestStreak = in.LongestStreak
		stored.LastPracticeDate = in.LastPracticeDate
	})
}

// update copies the fields set by apply from a private copy of profile onto
// the stored profile
func (r *ProfileRepository) update(profile *entities.Profile, apply func(stored, in *entities.Profile)) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.profiles[profile.UserID]
	if !exists {
		return fmt.Errorf("profile for user %s: %w", profile.UserID, domain.ErrNotFound)
	}
	apply(stored, profile.Clone())
	stored.UpdatedAt = profile.UpdatedAt
	return nil
}
