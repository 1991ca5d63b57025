package memory

import (
	"context"

	"github.com/satriahrh/parle/domain/repositories"
)

// NewStore wires the three in-memory repositories together
func NewStore() *repositories.Store {
	return &repositories.Store{
		Users:    NewUserRepository(),
		Profiles: NewProfileRepository(),
		Sessions: NewSessionRepository(),
		Close:    func(context.Context) error { return nil },
	}
}
