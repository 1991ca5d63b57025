package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
)

// TestMongoRepositories_Integration requires a running MongoDB instance
// (skipped if MONGODB_URI is not set)
func TestMongoRepositories_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	client, err := NewClient(ctx, Config{URI: mongoURI, Database: "parle_test"}, logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(ctx)
	defer client.Database.Drop(ctx)

	if err := client.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	users := NewUserRepository(client.Database)
	profiles := NewProfileRepository(client.Database)
	sessions := NewSessionRepository(client.Database, logger)

	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Users", func(t *testing.T) {
		user := &entities.User{ID: userID, Email: "lea@example.com", PasswordHash: "hash", CreatedAt: now}
		if err := users.Create(ctx, user); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		dup := &entities.User{ID: uuid.NewString(), Email: "LEA@example.com", PasswordHash: "hash", CreatedAt: now}
		if err := users.Create(ctx, dup); !errors.Is(err, domain.ErrEmailTaken) {
			t.Errorf("Expected ErrEmailTaken, got %v", err)
		}
		got, err := users.GetByEmail(ctx, "lea@example.com")
		if err != nil || got.ID != userID {
			t.Errorf("GetByEmail() = %+v, %v", got, err)
		}
	})

	t.Run("Profiles", func(t *testing.T) {
		p := entities.NewProfile(userID, "Léa", now)
		if err := profiles.Create(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		stale := p.Clone()
		p.Weaknesses = []string{"subjonctif"}
		p.CurrentStreak = 2
		if err := profiles.SaveProgress(ctx, p); err != nil {
			t.Fatalf("SaveProgress failed: %v", err)
		}
		stale.DisplayName = "Léa M."
		if err := profiles.SaveSettings(ctx, stale); err != nil {
			t.Fatalf("SaveSettings failed: %v", err)
		}
		got, err := profiles.GetByUserID(ctx, userID)
		if err != nil {
			t.Fatalf("GetByUserID failed: %v", err)
		}
		if got.CurrentStreak != 2 || len(got.Weaknesses) != 1 || got.DisplayName != "Léa M." {
			t.Errorf("Profile not saved: %+v", got)
		}
	})

	t.Run("Sessions", func(t *testing.T) {
		s := entities.NewSession(uuid.NewString(), userID, entities.SessionModeConversation, "", now)
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		for i := 0; i < 2; i++ {
			at := now.Add(time.Duration(i+1) * time.Minute)
			err := sessions.AppendTurn(ctx, s.ID, entities.Turn{
				User:        entities.TranscriptEntry{Role: entities.RoleUser, Text: "Je suis allé", Timestamp: at},
				Tutor:       entities.TranscriptEntry{Role: entities.RoleTutor, Text: "Très bien", Timestamp: at},
				Corrections: []entities.Correction{{Original: "je suis allé", Corrected: "je suis allée", Category: entities.CategoryAgreement}},
			})
			if err != nil {
				t.Fatalf("AppendTurn failed: %v", err)
			}
		}

		active, err := sessions.GetActiveByUserID(ctx, userID)
		if err != nil || active == nil {
			t.Fatalf("GetActiveByUserID() = %v, %v", active, err)
		}
		if len(active.Transcript) != 4 || len(active.Corrections) != 2 || active.Corrections[1].TurnIndex != 2 {
			t.Errorf("Unexpected session after appends: %+v", active)
		}

		stale, err := sessions.ListStaleActive(ctx, now.Add(time.Hour), 10)
		if err != nil || len(stale) != 1 {
			t.Errorf("ListStaleActive() = %d, %v", len(stale), err)
		}

		active.End(now.Add(5 * time.Minute))
		if err := sessions.Finalize(ctx, active, 2); !errors.Is(err, domain.ErrSessionChanged) {
			t.Fatalf("Expected ErrSessionChanged for an outdated transcript, got %v", err)
		}
		if err := sessions.Finalize(ctx, active, 4); err != nil {
			t.Fatalf("Finalize failed: %v", err)
		}
		if err := sessions.AppendTurn(ctx, s.ID, entities.Turn{}); !errors.Is(err, domain.ErrSessionNotActive) {
			t.Errorf("Expected ErrSessionNotActive, got %v", err)
		}

		list, err := sessions.ListByUserID(ctx, userID, 5)
		if err != nil || len(list) != 1 || list[0].Status != entities.SessionStatusEnded {
			t.Errorf("ListByUserID() = %+v, %v", list, err)
		}
	})
}

func TestConfigDefaults(t *testing.T) {
	config := Config{}.withDefaults(zaptest.NewLogger(t))
	if config.URI != defaultURI || config.Database != defaultDatabase {
		t.Errorf("unexpected connection defaults: %+v", config)
	}
	if config.MaxPoolSize != defaultMaxPoolSize || config.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("unexpected pool defaults: %+v", config)
	}

	custom := Config{URI: "mongodb://db:27017", Database: "x", MaxPoolSize: 3, ConnectTimeout: time.Second}
	if got := custom.withDefaults(zaptest.NewLogger(t)); got != custom {
		t.Errorf("withDefaults overwrote explicit settings: %+v", got)
	}
}
