package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
)

const profileColumns = `user_id, display_name, level, native_language, vocabulary, grammar,
	strengths, weaknesses, total_practice_minutes, session_count, current_streak,
	longest_streak, last_practice_date, settings, created_at, updated_at`

// ProfileRepository implements repositories.ProfileRepository on PostgreSQL
type ProfileRepository struct {
	pool *pgxpool.Pool
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates a PostgreSQL profile repository
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// profileDocs holds the JSONB-encoded parts of a profile
type profileDocs struct {
	vocabulary, grammar, strengths, weaknesses, settings []byte
}

func encodeProfile(p *entities.Profile) (profileDocs, error) {
	var d profileDocs
	var err error
	if d.vocabulary, err = json.Marshal(nonNil(p.Vocabulary)); err != nil {
		return d, err
	}
	if d.grammar, err = json.Marshal(nonNil(p.Grammar)); err != nil {
		return d, err
	}
	if d.strengths, err = json.Marshal(nonNil(p.Strengths)); err != nil {
		return d, err
	}
	if d.weaknesses, err = json.Marshal(nonNil(p.Weaknesses)); err != nil {
		return d, err
	}
	if d.settings, err = json.Marshal(p.Settings); err != nil {
		return d, err
	}
	return d, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Create implements repositories.ProfileRepository
func (r *ProfileRepository) Create(ctx context.Context, profile *entities.Profile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	d, err := encodeProfile(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = r.pool.Exec(ctx, `INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		profile.UserID, profile.DisplayName, profile.Level, profile.NativeLanguage,
		d.vocabulary, d.grammar, d.strengths, d.weaknesses,
		profile.TotalPracticeMinutes, profile.SessionCount, profile.CurrentStreak,
		profile.LongestStreak, profile.LastPracticeDate, d.settings,
		profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("profile for user %s already exists", profile.UserID)
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByUserID implements repositories.ProfileRepository
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*entities.Profile, error) {
	var p entities.Profile
	var d profileDocs
	err := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID).Scan(
		&p.UserID, &p.DisplayName, &p.Level, &p.NativeLanguage,
		&d.vocabulary, &d.grammar, &d.strengths, &d.weaknesses,
		&p.TotalPracticeMinutes, &p.SessionCount, &p.CurrentStreak,
		&p.LongestStreak, &p.LastPracticeDate, &d.settings,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile for user %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{d.vocabulary, &p.Vocabulary},
		{d.grammar, &p.Grammar},
		{d.strengths, &p.Strengths},
		{d.weaknesses, &p.Weaknesses},
		{d.settings, &p.Settings},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}
	return &p, nil
}

// SaveSettings implements repositories.ProfileRepository
func (r *ProfileRepository) SaveSettings(ctx context.Context, profile *entities.Profile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	d, err := encodeProfile(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET
			display_name = $2, level = $3, native_language = $4, settings = $5, updated_at = $6
		WHERE user_id = $1`,
		profile.UserID, profile.DisplayName, profile.Level, profile.NativeLanguage,
		d.settings, profile.UpdatedAt)
	return checkProfileUpdate(profile.UserID, tag.RowsAffected(), err)
}

// SaveProgress implements repositories.ProfileRepository
func (r *ProfileRepository) SaveProgress(ctx context.Context, profile *entities.Profile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	d, err := encodeProfile(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET
			vocabulary = $2, grammar = $3, strengths = $4, weaknesses = $5,
			total_practice_minutes = $6, session_count = $7, current_streak = $8,
			longest_streak = $9, last_practice_date = $10, updated_at = $11
		WHERE user_id = $1`,
		profile.UserID, d.vocabulary, d.grammar, d.strengths, d.weaknesses,
		profile.TotalPracticeMinutes, profile.SessionCount, profile.CurrentStreak,
		profile.LongestStreak, profile.LastPracticeDate, profile.UpdatedAt)
	return checkProfileUpdate(profile.UserID, tag.RowsAffected(), err)
}

func checkProfileUpdate(userID string, rows int64, err error) error {
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("profile for user %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}
