package entities

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// User represents a learner account
type User struct {
	ID           string    `json:"id" bson:"_id" db:"id"`
	Email        string    `json:"email" bson:"email" db:"email"`
	PasswordHash string    `json:"-" bson:"password_hash" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks the user fields required for persistence
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return errors.New("email is invalid")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}
