package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
)

// ProfileRepository stores one document per learner, keyed by user id
type ProfileRepository struct {
	collection *mongo.Collection
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new MongoDB profile repository
func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{collection: db.Collection("profiles")}
}

// Create implements repositories.ProfileRepository
func (r *ProfileRepository) Create(ctx context.Context, profile *entities.Profile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("profile for user %s already exists", profile.UserID)
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByUserID implements repositories.ProfileRepository
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*entities.Profile, error) {
	var profile entities.Profile
	if err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("profile for user %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// SaveSettings implements repositories.ProfileRepository
func (r *ProfileRepository) SaveSettings(ctx context.Context, profile *entities.Profile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	return r.set(ctx, profile, bson.M{
		"display_name":    profile.DisplayName,
		"level":           profile.Level,
		"native_language": profile.NativeLanguage,
		"settings":        profile.Settings,
		"updated_at":      profile.UpdatedAt,
	})
}

// SaveProgress implements repositories.ProfileRepository
func (r *ProfileRepository) SaveProgress(ctx context.Context, profile *entities.Profile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	return r.set(ctx, profile, bson.M{
		"vocabulary":             profile.Vocabulary,
		"grammar":                profile.Grammar,
		"strengths":              profile.Strengths,
		"weaknesses":             profile.Weaknesses,
		"total_practice_minutes": profile.TotalPracticeMinutes,
		"session_count":          profile.SessionCount,
		"current_streak":         profile.CurrentStreak,
		"longest_streak":         profile.LongestStreak,
		"last_practice_date":     profile.LastPracticeDate,
		"updated_at":             profile.UpdatedAt,
	})
}

func (r *ProfileRepository) set(ctx context.Context, profile *entities.Profile, fields bson.M) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": profile.UserID}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("profile for user %s: %w", profile.UserID, domain.ErrNotFound)
	}
	return nil
}
