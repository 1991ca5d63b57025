package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/parle/adapters/memory"
	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
	"github.com/satriahrh/parle/internal/auth"
)

func newAccountService(t *testing.T) (*AccountService, *auth.TokenIssuer) {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	store := memory.NewStore()
	return NewAccountService(store.Users, store.Profiles, issuer, zaptest.NewLogger(t)), issuer
}

func TestAccountService_RegisterAndLogin(t *testing.T) {
	svc, issuer := newAccountService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, " Lea@Example.com ", "croissant123", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if registered.User.Email != "lea@example.com" || registered.Profile.DisplayName != "lea" {
		t.Errorf("Unexpected registration: %+v %+v", registered.User, registered.Profile)
	}
	if registered.Profile.Level != entities.LevelA1 || registered.Profile.Settings.CorrectionStyle != entities.CorrectionStyleGentle {
		t.Errorf("Expected beginner defaults, got %+v", registered.Profile)
	}
	claims, err := issuer.ValidateToken(registered.Token)
	if err != nil || claims.UserID != registered.User.ID {
		t.Errorf("Invalid token: %v, %v", claims, err)
	}

	if _, err := svc.Register(ctx, "lea@example.com", "croissant123", "Léa"); !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken, got %v", err)
	}
	if _, err := svc.Register(ctx, "paul@example.com", "short", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for short password, got %v", err)
	}
	if _, err := svc.Register(ctx, "not-an-email", "croissant123", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for bad email, got %v", err)
	}

	loggedIn, err := svc.Login(ctx, "LEA@example.com", "croissant123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if loggedIn.User.ID != registered.User.ID || loggedIn.Profile == nil {
		t.Errorf("Unexpected login result: %+v", loggedIn)
	}
	if _, err := svc.Login(ctx, "lea@example.com", "baguette123"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "croissant123"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAccountService_UpdateProfile(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()
	registered, _ := svc.Register(ctx, "lea@example.com", "croissant123", "Léa")

	level := entities.Level("b2")
	style := entities.CorrectionStyleDirect
	rate := 0.9
	tz := "Europe/Paris"
	profile, err := svc.UpdateProfile(ctx, registered.User.ID, ProfilePatch{
		Level:           &level,
		CorrectionStyle: &style,
		SpeakingRate:    &rate,
		Timezone:        &tz,
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if profile.Level != entities.LevelB2 || profile.Settings.CorrectionStyle != style || profile.Settings.Timezone != tz {
		t.Errorf("Patch not applied: %+v", profile)
	}
	if profile.DisplayName != "Léa" {
		t.Errorf("Expected untouched display name, got %q", profile.DisplayName)
	}

	tooFast := 2.0
	if _, err := svc.UpdateProfile(ctx, registered.User.ID, ProfilePatch{SpeakingRate: &tooFast}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	stored, _ := svc.GetProfile(ctx, registered.User.ID)
	if stored.Settings.SpeakingRate != rate {
		t.Errorf("Invalid patch must not be saved, got rate %v", stored.Settings.SpeakingRate)
	}
}

// flakyProfiles fails the first failCreates calls to Create
type flakyProfiles struct {
	*memory.ProfileRepository
	failCreates int
}

func (f *flakyProfiles) Create(ctx context.Context, profile *entities.Profile) error {
	if f.failCreates > 0 {
		f.failCreates--
		return errors.New("db blip")
	}
	return f.ProfileRepository.Create(ctx, profile)
}

func TestAccountService_RegisterProfileFailure(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	users := memory.NewUserRepository()
	profiles := &flakyProfiles{ProfileRepository: memory.NewProfileRepository(), failCreates: 1}
	svc := NewAccountService(users, profiles, issuer, zaptest.NewLogger(t))
	ctx := context.Background()

	if _, err := svc.Register(ctx, "lea@example.com", "croissant123", ""); err == nil {
		t.Fatal("Expected the profile failure to fail registration")
	}
	if _, err := users.GetByEmail(ctx, "lea@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected the user to be removed, got %v", err)
	}

	result, err := svc.Register(ctx, "lea@example.com", "croissant123", "")
	if err != nil {
		t.Fatalf("Retry register failed: %v", err)
	}
	if result.Profile == nil {
		t.Error("Expected a profile after retrying")
	}
}

func TestAccountService_MissingProfileIsCreated(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	users := memory.NewUserRepository()
	profiles := memory.NewProfileRepository()
	svc := NewAccountService(users, profiles, issuer, zaptest.NewLogger(t))
	ctx := context.Background()

	hash, err := auth.HashPassword("croissant123")
	if err != nil {
		t.Fatal(err)
	}
	orphan := &entities.User{ID: "user-1", Email: "paul@example.com", PasswordHash: hash, CreatedAt: time.Now()}
	if err := users.Create(ctx, orphan); err != nil {
		t.Fatal(err)
	}

	profile, err := svc.GetProfile(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.UserID != orphan.ID || profile.DisplayName != "paul" {
		t.Errorf("Unexpected profile: %+v", profile)
	}

	result, err := svc.Login(ctx, "paul@example.com", "croissant123")
	if err != nil || result.Profile == nil || result.Profile.UserID != orphan.ID {
		t.Errorf("Login() = %+v, %v", result, err)
	}

	if _, err := svc.GetProfile(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown user, got %v", err)
	}
}

// endSessionOnRead finishes a session right after the first profile read, as
// a wrap-up running between UpdateProfile's read and write would
type endSessionOnRead struct {
	repositories.ProfileRepository
	onRead func()
}

func (r *endSessionOnRead) GetByUserID(ctx context.Context, userID string) (*entities.Profile, error) {
	p, err := r.ProfileRepository.GetByUserID(ctx, userID)
	if r.onRead != nil {
		f := r.onRead
		r.onRead = nil
		f()
	}
	return p, err
}

func TestAccountService_UpdateProfileKeepsConcurrentProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.summaryLLM.QueueResponse(summaryJSON)

	session, _ := env.sessions.Start(ctx, env.userID, "", "")
	_ = env.sessions.RecordTurn(ctx, session.ID, env.userID, env.turn("Je vais à la boulangerie", "Très bien !"))
	env.advance(5 * time.Minute)

	issuer, _ := auth.NewTokenIssuer("test-secret", time.Hour)
	profiles := &endSessionOnRead{ProfileRepository: env.store.Profiles}
	profiles.onRead = func() {
		if _, err := env.sessions.End(ctx, session.ID, env.userID); err != nil {
			t.Errorf("End failed: %v", err)
		}
	}
	svc := NewAccountService(env.store.Users, profiles, issuer, zaptest.NewLogger(t))

	goal := 20
	if _, err := svc.UpdateProfile(ctx, env.userID, ProfilePatch{DailyGoalMinutes: &goal}); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	stored, _ := env.store.Profiles.GetByUserID(ctx, env.userID)
	if stored.Settings.DailyGoalMinutes != 20 {
		t.Errorf("Expected daily goal 20, got %d", stored.Settings.DailyGoalMinutes)
	}
	if stored.SessionCount != 1 || stored.TotalPracticeMinutes != 5 || len(stored.Vocabulary) == 0 {
		t.Errorf("Expected the session merge to survive the settings write, got %+v", stored)
	}
}
