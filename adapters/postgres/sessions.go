package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
)

const sessionColumns = `id, user_id, mode, topic, status, started_at, last_activity_at,
	ended_at, duration_seconds, transcript, corrections, summary`

// SessionRepository implements repositories.SessionRepository on PostgreSQL
type SessionRepository struct {
	pool *pgxpool.Pool
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a PostgreSQL session repository
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

type sessionDocs struct {
	transcript, corrections, summary []byte
}

func encodeSession(s *entities.Session) (sessionDocs, error) {
	var d sessionDocs
	var err error
	if d.transcript, err = json.Marshal(nonNil(s.Transcript)); err != nil {
		return d, err
	}
	if d.corrections, err = json.Marshal(nonNil(s.Corrections)); err != nil {
		return d, err
	}
	if s.Summary != nil {
		if d.summary, err = json.Marshal(s.Summary); err != nil {
			return d, err
		}
	}
	return d, nil
}

func scanSession(row pgx.Row) (*entities.Session, error) {
	var s entities.Session
	var d sessionDocs
	if err := row.Scan(&s.ID, &s.UserID, &s.Mode, &s.Topic, &s.Status, &s.StartedAt,
		&s.LastActivityAt, &s.EndedAt, &s.DurationSeconds,
		&d.transcript, &d.corrections, &d.summary); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(d.transcript, &s.Transcript); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	if err := json.Unmarshal(d.corrections, &s.Corrections); err != nil {
		return nil, fmt.Errorf("failed to decode corrections: %w", err)
	}
	if len(d.summary) > 0 {
		s.Summary = &entities.SessionSummary{}
		if err := json.Unmarshal(d.summary, s.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
	}
	return &s, nil
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	d, err := encodeSession(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = r.pool.Exec(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		session.ID, session.UserID, session.Mode, session.Topic, session.Status,
		session.StartedAt, session.LastActivityAt, session.EndedAt, session.DurationSeconds,
		d.transcript, d.corrections, d.summary)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return s, nil
}

// GetActiveByUserID implements repositories.SessionRepository
func (r *SessionRepository) GetActiveByUserID(ctx context.Context, userID string) (*entities.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND status = $2
		ORDER BY last_activity_at DESC LIMIT 1`, userID, entities.SessionStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session for user %s: %w", userID, err)
	}
	return s, nil
}

// ListByUserID implements repositories.SessionRepository
func (r *SessionRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*entities.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`, userID, sqlLimit(limit))
}

// ListStaleActive implements repositories.SessionRepository
func (r *SessionRepository) ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE status = $1 AND last_activity_at < $2
		ORDER BY last_activity_at ASC LIMIT $3`, entities.SessionStatusActive, cutoff, sqlLimit(limit))
}

// sqlLimit maps "no limit" to NULL, which LIMIT treats as unbounded
func sqlLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...any) ([]*entities.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*entities.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}

// AppendTurn locks the row, applies the turn and writes it back in one
// transaction
func (r *SessionRepository) AppendTurn(ctx context.Context, sessionID string, turn entities.Turn) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to lock session: %w", err)
	}
	if !s.IsActive() {
		return domain.ErrSessionNotActive
	}

	s.AddTurn(turn)
	d, err := encodeSession(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE sessions
		SET transcript = $2, corrections = $3, last_activity_at = $4
		WHERE id = $1`, s.ID, d.transcript, d.corrections, s.LastActivityAt); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
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
	d, err := encodeSession(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET
			mode = $2, topic = $3, status = $4, last_activity_at = $5, ended_at = $6,
			duration_seconds = $7, transcript = $8, corrections = $9, summary = $10
		WHERE id = $1`,
		session.ID, session.Mode, session.Topic, session.Status, session.LastActivityAt,
		session.EndedAt, session.DurationSeconds, d.transcript, d.corrections, d.summary)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
	}
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
	d, err := encodeSession(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET
			status = $2, last_activity_at = $3, ended_at = $4, duration_seconds = $5, summary = $6
		WHERE id = $1 AND status = $7 AND jsonb_array_length(transcript) = $8`,
		session.ID, session.Status, session.LastActivityAt, session.EndedAt, session.DurationSeconds,
		d.summary, entities.SessionStatusActive, transcriptLen)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionChanged
	}
	return nil
}
