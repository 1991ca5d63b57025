package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
	"github.com/satriahrh/parle/internal/auth"
)

// TokenIssuer signs access tokens for authenticated users
type TokenIssuer interface {
	GenerateUserToken(userID string) (string, time.Time, error)
}

// AuthResult is returned by Register and Login
type AuthResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *entities.User    `json:"user"`
	Profile   *entities.Profile `json:"profile,omitempty"`
}

// ProfilePatch holds the profile fields a learner may change. Nil fields
// are left untouched.
type ProfilePatch struct {
	DisplayName      *string                   `json:"display_name,omitempty"`
	Level            *entities.Level           `json:"level,omitempty"`
	NativeLanguage   *string                   `json:"native_language,omitempty"`
	CorrectionStyle  *entities.CorrectionStyle `json:"correction_style,omitempty"`
	VoiceID          *string                   `json:"voice_id,omitempty"`
	SpeakingRate     *float64                  `json:"speaking_rate,omitempty"`
	Timezone         *string                   `json:"timezone,omitempty"`
	DailyGoalMinutes *int                      `json:"daily_goal_minutes,omitempty"`
}

// AccountService handles registration, login and profile settings
type AccountService struct {
	users    repositories.UserRepository
	profiles repositories.ProfileRepository
	tokens   TokenIssuer
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccountService creates a new account service
func NewAccountService(users repositories.UserRepository, profiles repositories.ProfileRepository, tokens TokenIssuer, logger *zap.Logger) *AccountService {
	return &AccountService{
		users:    users,
		profiles: profiles,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates a user with a beginner profile and signs them in
func (s *AccountService) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = entities.NormalizeEmail(email)
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	now := s.now().UTC()
	user := &entities.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}
	profile := entities.NewProfile(user.ID, displayName, now)
	if err := s.profiles.Create(ctx, profile); err != nil {
		// release the email so the learner can register again
		if delErr := s.users.Delete(context.WithoutCancel(ctx), user.ID); delErr != nil {
			s.logger.Error("Failed to remove user after profile failure",
				zap.String("userID", user.ID),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	s.logger.Info("User registered", zap.String("userID", user.ID))
	return s.signIn(user, profile)
}

// Login verifies credentials and issues a token
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	ok, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	profile, err := s.ensureProfile(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.signIn(user, profile)
}

func (s *AccountService) signIn(user *entities.User, profile *entities.Profile) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.GenerateUserToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user, Profile: profile}, nil
}

// ensureProfile loads the learner profile, creating a beginner one for a user
// left without a profile by an interrupted registration
func (s *AccountService) ensureProfile(ctx context.Context, user *entities.User) (*entities.Profile, error) {
	profile, err := s.profiles.GetByUserID(ctx, user.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	profile = entities.NewProfile(user.ID, strings.SplitN(user.Email, "@", 2)[0], s.now().UTC())
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	s.logger.Warn("Created missing profile", zap.String("userID", user.ID))
	return profile, nil
}

// GetProfile returns the learner profile
func (s *AccountService) GetProfile(ctx context.Context, userID string) (*entities.Profile, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return profile, err
	}
	user, userErr := s.users.GetByID(ctx, userID)
	if userErr != nil {
		return nil, err
	}
	return s.ensureProfile(ctx, user)
}

// UpdateProfile applies a patch to the learner's profile and settings
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*entities.Profile, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if patch.DisplayName != nil {
		profile.DisplayName = strings.TrimSpace(*patch.DisplayName)
	}
	if patch.Level != nil {
		profile.Level = entities.Level(strings.ToUpper(string(*patch.Level)))
	}
	if patch.NativeLanguage != nil {
		profile.NativeLanguage = strings.TrimSpace(*patch.NativeLanguage)
	}
	if patch.CorrectionStyle != nil {
		profile.Settings.CorrectionStyle = *patch.CorrectionStyle
	}
	if patch.VoiceID != nil {
		profile.Settings.VoiceID = strings.TrimSpace(*patch.VoiceID)
	}
	if patch.SpeakingRate != nil {
		profile.Settings.SpeakingRate = *patch.SpeakingRate
	}
	if patch.Timezone != nil {
		profile.Settings.Timezone = strings.TrimSpace(*patch.Timezone)
	}
	if patch.DailyGoalMinutes != nil {
		profile.Settings.DailyGoalMinutes = *patch.DailyGoalMinutes
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	profile.UpdatedAt = s.now()
	if err := s.profiles.SaveSettings(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return profile, nil
}
