package repositories

import (
	"context"
	"time"

	"github.com/satriahrh/parle/domain/entities"
)

// UserRepository defines data access methods for users
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id string) (*entities.User, error)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
	// Delete removes the user; a missing user is not an error
	Delete(ctx context.Context, id string) error
}

// ProfileRepository defines data access methods for learner profiles
type ProfileRepository interface {
	Create(ctx context.Context, profile *entities.Profile) error
	GetByUserID(ctx context.Context, userID string) (*entities.Profile, error)
	// SaveSettings writes the fields the learner edits: display name, level,
	// native language and settings
	SaveSettings(ctx context.Context, profile *entities.Profile) error
	// SaveProgress writes the fields a finished session updates: vocabulary,
	// grammar, strengths, weaknesses, totals and streaks
	SaveProgress(ctx context.Context, profile *entities.Profile) error
}

// SessionRepository defines data access methods for tutoring sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	// GetActiveByUserID returns nil, nil when the user has no active session
	GetActiveByUserID(ctx context.Context, userID string) (*entities.Session, error)
	// ListByUserID returns sessions most recent first
	ListByUserID(ctx context.Context, userID string, limit int) ([]*entities.Session, error)
	// AppendTurn atomically appends a turn to an active session
	AppendTurn(ctx context.Context, sessionID string, turn entities.Turn) error
	Update(ctx context.Context, session *entities.Session) error
	// Finalize stores a closed session only if the stored copy is still
	// active with transcriptLen entries, else it returns
	// domain.ErrSessionChanged
	Finalize(ctx context.Context, session *entities.Session, transcriptLen int) error
	// ListStaleActive returns active sessions idle since before the cutoff
	ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Session, error)
}

// Store groups the repositories of one storage backend
type Store struct {
	Users    UserRepository
	Profiles ProfileRepository
	Sessions SessionRepository
	// Close releases backend resources
	Close func(ctx context.Context) error
}
