package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/parle/adapters/llm"
	"github.com/satriahrh/parle/adapters/memory"
	"github.com/satriahrh/parle/adapters/stt"
	"github.com/satriahrh/parle/adapters/tts"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
	"github.com/satriahrh/parle/internal/auth"
	"github.com/satriahrh/parle/internal/saga"
	"github.com/satriahrh/parle/internal/websocket"
	"github.com/satriahrh/parle/usecase"
)

type fakeVoices struct {
	voices []tts.Voice
	err    error
}

func (f fakeVoices) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return f.voices, f.err
}

type apiEnv struct {
	e     *echo.Echo
	store *repositories.Store
}

func setupAPI(t *testing.T, configure func(*Dependencies, *repositories.Store)) *apiEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()

	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	sessions := usecase.NewSessionService(
		store.Sessions,
		store.Profiles,
		usecase.NewSummarizer(llm.NewMockLLM(), logger),
		saga.NewManager(logger),
		usecase.SessionConfig{},
		logger,
	)
	conversation := usecase.NewConversationService(
		stt.NewMockSpeechToText(logger),
		tts.NewMockTTS(),
		usecase.NewTutor(llm.NewMockLLM(), usecase.TutorConfig{}, logger),
		sessions,
		store.Profiles,
		"fr",
		logger,
	)

	deps := Dependencies{
		Accounts:     usecase.NewAccountService(store.Users, store.Profiles, issuer, logger),
		Sessions:     sessions,
		Conversation: conversation,
		Progress:     usecase.NewProgressService(store.Profiles, store.Sessions, logger),
		Tokens:       issuer,
		Hub:          websocket.NewHub(conversation, sessions, websocket.Config{}, logger),
	}
	if configure != nil {
		configure(&deps, store)
	}

	e := NewServer(Options{}, logger)
	InitRoutes(e, deps, logger)
	return &apiEnv{e: e, store: store}
}

func (env *apiEnv) request(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) multipart(t *testing.T, path, token string, audio []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "utterance.wav")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(audio)
	w.WriteField("sample_rate", "16000")
	w.WriteField("encoding", "LINEAR16")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if body := decode[ErrorResponse](t, rec); body.Error != code {
		t.Errorf("Expected error %q, got %+v", code, body)
	}
}

func (env *apiEnv) register(t *testing.T, email string) usecase.AuthResult {
	t.Helper()
	rec := env.request(t, http.MethodPost, "/api/v1/auth/register",
		`{"email": "`+email+`", "password": "croissant123", "display_name": "Léa"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Register failed: %d %s", rec.Code, rec.Body.String())
	}
	return decode[usecase.AuthResult](t, rec)
}

func TestHealth(t *testing.T) {
	env := setupAPI(t, nil)
	rec := env.request(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := decode[HealthResponse](t, rec); body.Status != "ok" || body.Service != "parle" {
		t.Errorf("Unexpected health: %+v", body)
	}
}

func TestAuthRoutes(t *testing.T) {
	env := setupAPI(t, nil)

	registered := env.register(t, "lea@example.com")
	if registered.Token == "" || registered.Profile == nil || registered.Profile.DisplayName != "Léa" {
		t.Errorf("Unexpected registration: %+v", registered)
	}

	rec := env.request(t, http.MethodPost, "/api/v1/auth/register", `{"email": "lea@example.com", "password": "croissant123"}`, "")
	expectError(t, rec, http.StatusConflict, "email_taken")

	rec = env.request(t, http.MethodPost, "/api/v1/auth/register", `{"email": "paul@example.com", "password": "court"}`, "")
	expectError(t, rec, http.StatusBadRequest, "invalid_request")

	rec = env.request(t, http.MethodPost, "/api/v1/auth/login", `{"email": "lea@example.com", "password": "baguette123"}`, "")
	expectError(t, rec, http.StatusUnauthorized, "invalid_credentials")

	rec = env.request(t, http.MethodPost, "/api/v1/auth/login", `{"email": "lea@example.com"}`, "")
	expectError(t, rec, http.StatusBadRequest, "invalid_request")

	rec = env.request(t, http.MethodPost, "/api/v1/auth/login", `{"email": "LEA@example.com", "password": "croissant123"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Login failed: %d %s", rec.Code, rec.Body.String())
	}
	if loggedIn := decode[usecase.AuthResult](t, rec); loggedIn.User.ID != registered.User.ID {
		t.Errorf("Expected the same user, got %+v", loggedIn.User)
	}

	expectError(t, env.request(t, http.MethodGet, "/api/v1/profile", "", ""), http.StatusUnauthorized, "unauthorized")
	expectError(t, env.request(t, http.MethodGet, "/api/v1/profile", "", "forged"), http.StatusUnauthorized, "unauthorized")
}

func TestProfileRoutes(t *testing.T) {
	env := setupAPI(t, nil)
	token := env.register(t, "lea@example.com").Token

	rec := env.request(t, http.MethodPut, "/api/v1/profile", `{"level": "B1", "correction_style": "direct", "timezone": "Europe/Paris"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("Update failed: %d %s", rec.Code, rec.Body.String())
	}
	profile := decode[entities.Profile](t, rec)
	if profile.Level != entities.LevelB1 || profile.Settings.Timezone != "Europe/Paris" {
		t.Errorf("Patch not applied: %+v", profile)
	}

	rec = env.request(t, http.MethodPut, "/api/v1/profile", `{"speaking_rate": 3}`, token)
	expectError(t, rec, http.StatusBadRequest, "invalid_request")

	rec = env.request(t, http.MethodGet, "/api/v1/profile", "", token)
	if got := decode[entities.Profile](t, rec); got.Settings.CorrectionStyle != entities.CorrectionStyleDirect {
		t.Errorf("Expected saved settings, got %+v", got.Settings)
	}
}

func TestSessionLifecycleRoutes(t *testing.T) {
	env := setupAPI(t, nil)
	token := env.register(t, "lea@example.com").Token

	rec := env.request(t, http.MethodPost, "/api/v1/sessions", `{"mode": "scenario", "topic": "à la boulangerie"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("Start failed: %d %s", rec.Code, rec.Body.String())
	}
	session := decode[entities.Session](t, rec)
	if session.Mode != entities.SessionModeScenario || session.Status != entities.SessionStatusActive {
		t.Errorf("Unexpected session: %+v", session)
	}
	base := "/api/v1/sessions/" + session.ID

	rec = env.request(t, http.MethodPost, base+"/turns", `{"text": "Je voudrais une baguette"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("Text turn failed: %d %s", rec.Code, rec.Body.String())
	}
	turn := decode[TurnResponse](t, rec)
	if turn.Transcript != "Je voudrais une baguette" || turn.Reply == "" || turn.Corrections == nil {
		t.Errorf("Unexpected turn: %+v", turn)
	}
	if turn.Speech.Fallback || string(turn.Speech.Audio) != turn.Reply || turn.Speech.ContentType != "audio/mpeg" {
		t.Errorf("Expected embedded audio, got %+v", turn.Speech)
	}

	rec = env.multipart(t, base+"/turns", token, make([]byte, 2000))
	if rec.Code != http.StatusOK {
		t.Fatalf("Audio turn failed: %d %s", rec.Code, rec.Body.String())
	}
	if audioTurn := decode[TurnResponse](t, rec); audioTurn.Transcript != "Bonjour !" {
		t.Errorf("Expected mock transcript, got %+v", audioTurn)
	}

	expectError(t, env.request(t, http.MethodPost, base+"/turns", `{"text": "  "}`, token), http.StatusBadRequest, "invalid_request")

	rec = env.request(t, http.MethodGet, base, "", token)
	if got := decode[entities.Session](t, rec); len(got.Transcript) != 4 {
		t.Errorf("Expected two recorded turns, got %d entries", len(got.Transcript))
	}

	rec = env.request(t, http.MethodPost, base+"/end", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("End failed: %d %s", rec.Code, rec.Body.String())
	}
	if ended := decode[entities.Session](t, rec); ended.Status != entities.SessionStatusEnded || ended.Summary == nil {
		t.Errorf("Expected ended session with summary, got %+v", ended)
	}

	expectError(t, env.request(t, http.MethodPost, base+"/end", "", token), http.StatusConflict, "session_already_ended")
	expectError(t, env.request(t, http.MethodPost, base+"/turns", `{"text": "Encore"}`, token), http.StatusConflict, "session_not_active")

	rec = env.request(t, http.MethodGet, "/api/v1/sessions?limit=5", "", token)
	if list := decode[SessionListResponse](t, rec); len(list.Sessions) != 1 {
		t.Errorf("Expected one session, got %d", len(list.Sessions))
	}
	expectError(t, env.request(t, http.MethodGet, "/api/v1/sessions?limit=abc", "", token), http.StatusBadRequest, "invalid_request")

	other := env.register(t, "paul@example.com").Token
	expectError(t, env.request(t, http.MethodGet, base, "", other), http.StatusForbidden, "forbidden")
	expectError(t, env.request(t, http.MethodGet, "/api/v1/sessions/missing", "", token), http.StatusNotFound, "not_found")
}

func TestProgressRoutes(t *testing.T) {
	env := setupAPI(t, nil)
	token := env.register(t, "lea@example.com").Token

	rec := env.request(t, http.MethodPost, "/api/v1/sessions", `{"topic": "le marché"}`, token)
	session := decode[entities.Session](t, rec)
	env.request(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/turns", `{"text": "J'ai acheté des pommes"}`, token)
	env.request(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/end", "", token)

	rec = env.request(t, http.MethodGet, "/api/v1/progress", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("Overview failed: %d %s", rec.Code, rec.Body.String())
	}
	overview := decode[usecase.Overview](t, rec)
	if overview.SessionCount != 1 || overview.CurrentStreak != 1 || len(overview.WeeklyActivity) != 7 {
		t.Errorf("Unexpected overview: %+v", overview)
	}

	rec = env.request(t, http.MethodGet, "/api/v1/progress/topics", "", token)
	if topics := decode[TopicsResponse](t, rec); len(topics.Topics) != 1 || topics.Topics[0].Topic != "le marché" {
		t.Errorf("Unexpected topics: %+v", topics)
	}

	rec = env.request(t, http.MethodGet, "/api/v1/progress/focus?limit=2", "", token)
	if focus := decode[FocusResponse](t, rec); len(focus.Focus) == 0 || len(focus.Focus) > 2 {
		t.Errorf("Unexpected focus: %+v", focus)
	}

	rec = env.request(t, http.MethodGet, "/api/v1/progress/trouble-words", "", token)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"trouble_words":[`) {
		t.Errorf("Unexpected trouble words: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSpeechAndTranscribeRoutes(t *testing.T) {
	env := setupAPI(t, nil)
	token := env.register(t, "lea@example.com").Token

	rec := env.request(t, http.MethodPost, "/api/v1/speech", `{"text": "Bonjour à toi"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("Speech failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderContentType) != "audio/mpeg" || rec.Body.String() != "Bonjour à toi" {
		t.Errorf("Unexpected speech response: %s %q", rec.Header().Get(echo.HeaderContentType), rec.Body.String())
	}
	expectError(t, env.request(t, http.MethodPost, "/api/v1/speech", `{"text": ""}`, token), http.StatusBadRequest, "invalid_request")

	rec = env.multipart(t, "/api/v1/transcribe", token, make([]byte, 6000))
	if rec.Code != http.StatusOK {
		t.Fatalf("Transcribe failed: %d %s", rec.Code, rec.Body.String())
	}
	if result := decode[repositories.Transcription](t, rec); result.Text != "Merci beaucoup, c'était très intéressant." {
		t.Errorf("Unexpected transcription: %+v", result)
	}
	expectError(t, env.request(t, http.MethodPost, "/api/v1/transcribe", `{}`, token), http.StatusBadRequest, "invalid_request")
}

func TestSpeechRouteFallback(t *testing.T) {
	env := setupAPI(t, func(d *Dependencies, store *repositories.Store) {
		logger := zaptest.NewLogger(t)
		d.Conversation = usecase.NewConversationService(
			stt.NewMockSpeechToText(logger),
			tts.NoopTTS{},
			usecase.NewTutor(llm.NewMockLLM(), usecase.TutorConfig{}, logger),
			d.Sessions,
			store.Profiles,
			"fr",
			logger,
		)
	})
	token := env.register(t, "lea@example.com").Token

	rec := env.request(t, http.MethodPost, "/api/v1/speech", `{"text": "Salut"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("Speech failed: %d %s", rec.Code, rec.Body.String())
	}
	if payload := decode[SpeechPayload](t, rec); !payload.Fallback || payload.Text != "Salut" {
		t.Errorf("Expected fallback payload, got %+v", payload)
	}
}

func TestVoicesRoute(t *testing.T) {
	env := setupAPI(t, nil)
	token := env.register(t, "lea@example.com").Token
	expectError(t, env.request(t, http.MethodGet, "/api/v1/voices", "", token), http.StatusNotFound, "not_found")

	env = setupAPI(t, func(d *Dependencies, store *repositories.Store) {
		d.Voices = fakeVoices{voices: []tts.Voice{{ID: "v1", Name: "Amélie"}}}
	})
	token = env.register(t, "lea@example.com").Token
	rec := env.request(t, http.MethodGet, "/api/v1/voices", "", token)
	if body := decode[VoicesResponse](t, rec); len(body.Voices) != 1 || body.Voices[0].Name != "Amélie" {
		t.Errorf("Unexpected voices: %+v", body)
	}

	env = setupAPI(t, func(d *Dependencies, store *repositories.Store) {
		d.Voices = fakeVoices{err: errors.New("upstream down")}
	})
	token = env.register(t, "lea@example.com").Token
	expectError(t, env.request(t, http.MethodGet, "/api/v1/voices", "", token), http.StatusBadGateway, "internal_error")
}

func TestRateLimit(t *testing.T) {
	env := setupAPI(t, func(d *Dependencies, store *repositories.Store) {
		d.RateLimitRPS = 1
	})

	for i := 0; i < 2; i++ {
		rec := env.request(t, http.MethodPost, "/api/v1/auth/login", `{}`, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Request %d: expected 400, got %d", i, rec.Code)
		}
	}
	expectError(t, env.request(t, http.MethodPost, "/api/v1/auth/login", `{}`, ""), http.StatusTooManyRequests, "rate_limited")

	// health is outside the limited group
	if rec := env.request(t, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected health to stay available, got %d", rec.Code)
	}
}
