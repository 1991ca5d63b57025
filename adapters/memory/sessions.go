package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
)

// SessionRepository is an in-memory implementation of repositories.SessionRepository
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session // id -> session
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates an empty session repository
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*entities.Session)}
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return s.Clone(), nil
}

// GetActiveByUserID implements repositories.SessionRepository
func (r *SessionRepository) GetActiveByUserID(ctx context.Context, userID string) (*entities.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *entities.Session
	for _, s := range r.sessions {
		if s.UserID != userID || !s.IsActive() {
			continue
		}
		if latest == nil || s.LastActivityAt.After(latest.LastActivityAt) {
			latest = s
		}
	}
	return latest.Clone(), nil
}

// ListByUserID implements repositories.SessionRepository
func (r *SessionRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*entities.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AppendTurn implements repositories.SessionRepository
func (r *SessionRepository) AppendTurn(ctx context.Context, sessionID string, turn entities.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if !s.IsActive() {
		return domain.ErrSessionNotActive
	}
	s.AddTurn(turn)
	return nil
}

// Update implements repositories.SessionRepository
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; !exists {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

// Finalize implements repositories.SessionRepository
func (r *SessionRepository) Finalize(ctx context.Context, session *entities.Session, transcriptLen int) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.sessions[session.ID]
	if !exists {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
	}
	if !current.IsActive() || len(current.Transcript) != transcriptLen {
		return domain.ErrSessionChanged
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

// ListStaleActive implements repositories.SessionRepository
func (r *SessionRepository) ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.Session
	for _, s := range r.sessions {
		if s.IsActive() && s.LastActivityAt.Before(cutoff) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.Before(out[j].LastActivityAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
