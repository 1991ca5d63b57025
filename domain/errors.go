package domain

import "errors"

// Errors shared by the use cases and the storage adapters. Callers compare
// with errors.Is; adapters wrap them with context.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrForbidden           = errors.New("forbidden")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrSessionAlreadyEnded = errors.New("session already ended")
	ErrSessionChanged      = errors.New("session changed since it was read")
	ErrEmptyTranscript     = errors.New("no speech detected in audio")
)
