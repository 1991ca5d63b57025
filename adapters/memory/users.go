// Package memory is an in-process storage backend. It backs development
// servers and tests; everything is lost on restart.
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

// UserRepository is an in-memory implementation of repositories.UserRepository
type UserRepository struct {
	mu      sync.RWMutex
	users   map[string]entities.User // id -> user
	byEmail map[string]string        // email -> id
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates an empty user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[string]entities.User),
		byEmail: make(map[string]string),
	}
}

// Create implements repositories.UserRepository
func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}
	user.Email = entities.NormalizeEmail(user.Email)
	if err := user.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return domain.ErrEmailTaken
	}
	if _, exists := r.users[user.ID]; exists {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	r.users[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID implements repositories.UserRepository
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

// GetByEmail implements repositories.UserRepository
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[entities.NormalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("user with email %s: %w", email, domain.ErrNotFound)
	}
	u := r.users[id]
	return &u, nil
}

// Delete implements repositories.UserRepository
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		delete(r.byEmail, u.Email)
		delete(r.users, id)
	}
	return nil
}
