package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
)

// appendTurnAttempts bounds the optimistic retries of AppendTurn
const appendTurnAttempts = 3

// SessionRepository implements repositories.SessionRepository using MongoDB
type SessionRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new MongoDB session repository
func NewSessionRepository(db *mongo.Database, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		collection: db.Collection("sessions"),
		logger:     logger,
	}
}

func ensureSessionIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("sessions").Indexes().CreateMany(ctx, []mongo.IndexModel{
		// history listing per user
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "started_at", Value: -1}}},
		// active lookup and stale sweeps
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "last_activity_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	var session entities.Session
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &session, nil
}

// GetActiveByUserID implements repositories.SessionRepository
func (r *SessionRepository) GetActiveByUserID(ctx context.Context, userID string) (*entities.Session, error) {
	filter := bson.M{"user_id": userID, "status": entities.SessionStatusActive}
	opts := options.FindOne().SetSort(bson.D{{Key: "last_activity_at", Value: -1}})

	var session entities.Session
	if err := r.collection.FindOne(ctx, filter, opts).Decode(&session); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session for user %s: %w", userID, err)
	}
	return &session, nil
}

// ListByUserID implements repositories.SessionRepository
func (r *SessionRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*entities.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{"user_id": userID}, opts)
}

// ListStaleActive implements repositories.SessionRepository
func (r *SessionRepository) ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Session, error) {
	filter := bson.M{
		"status":           entities.SessionStatusActive,
		"last_activity_at": bson.M{"$lt": cutoff},
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_activity_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *SessionRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*entities.Session, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*entities.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

// AppendTurn pushes the turn onto the transcript. The update is guarded by the
// current transcript length so correction indexes stay right when two turns
// race; a lost race is retried.
func (r *SessionRepository) AppendTurn(ctx context.Context, sessionID string, turn entities.Turn) error {
	for attempt := 1; attempt <= appendTurnAttempts; attempt++ {
		current, err := r.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if !current.IsActive() {
			return domain.ErrSessionNotActive
		}

		n := len(current.Transcript)
		current.AddTurn(turn)

		filter := bson.M{
			"_id":        sessionID,
			"status":     entities.SessionStatusActive,
			"transcript": bson.M{"$size": n},
		}
		push := bson.M{"transcript": bson.M{"$each": current.Transcript[n:]}}
		if k := len(turn.Corrections); k > 0 {
			push["corrections"] = bson.M{"$each": current.Corrections[len(current.Corrections)-k:]}
		}
		update := bson.M{
			"$push": push,
			"$set":  bson.M{"last_activity_at": current.LastActivityAt},
		}
		result, err := r.collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
		if result.MatchedCount == 1 {
			return nil
		}
		r.logger.Warn("Concurrent turn append, retrying",
			zap.String("sessionID", sessionID),
			zap.Int("attempt", attempt))
	}
	return fmt.Errorf("failed to append turn to session %s: too much contention", sessionID)
}

// Update implements repositories.SessionRepository
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": session.ID}, session)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.MatchedCount == 0 {
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

	filter := bson.M{
		"_id":        session.ID,
		"status":     entities.SessionStatusActive,
		"transcript": bson.M{"$size": transcriptLen},
	}
	result, err := r.collection.ReplaceOne(ctx, filter, session)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrSessionChanged
	}
	return nil
}
