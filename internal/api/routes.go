package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/adapters/tts"
	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/repositories"
	"github.com/satriahrh/parle/internal/auth"
	"github.com/satriahrh/parle/internal/websocket"
	"github.com/satriahrh/parle/usecase"
)

const maxAudioBytes = 10 << 20

// VoiceLister lists the synthesis voices a learner can pick from
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]tts.Voice, error)
}

// Dependencies are the services exposed over HTTP
type Dependencies struct {
	Accounts     *usecase.AccountService
	Sessions     *usecase.SessionService
	Conversation *usecase.ConversationService
	Progress     *usecase.ProgressService
	Tokens       *auth.TokenIssuer
	Hub          *websocket.Hub
	// Voices is nil when no voice catalogue is configured
	Voices VoiceLister
	// RateLimitRPS limits /api/v1 per client; zero disables it
	RateLimitRPS float64
}

type handler struct {
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	h := &handler{deps: deps, logger: logger, now: time.Now}

	// Health check
	e.GET("/health", h.health)

	// API v1 routes
	v1 := e.Group("/api/v1")
	if deps.RateLimitRPS > 0 {
		v1.Use(rateLimiter(deps.RateLimitRPS))
	}

	v1.POST("/auth/register", h.register)
	v1.POST("/auth/login", h.login)

	authed := v1.Group("", auth.Middleware(deps.Tokens))

	authed.GET("/profile", h.getProfile)
	authed.PUT("/profile", h.updateProfile)

	authed.POST("/sessions", h.startSession)
	authed.GET("/sessions", h.listSessions)
	authed.GET("/sessions/:id", h.getSession)
	authed.POST("/sessions/:id/end", h.endSession)
	authed.POST("/sessions/:id/turns", h.createTurn)

	authed.POST("/transcribe", h.transcribe)
	authed.POST("/speech", h.speech)

	authed.GET("/progress", h.progressOverview)
	authed.GET("/progress/trouble-words", h.troubleWords)
	authed.GET("/progress/topics", h.topics)
	authed.GET("/progress/focus", h.focus)

	if deps.Voices != nil {
		authed.GET("/voices", h.voices)
	}

	// WebSocket endpoint; browsers pass the token as a query parameter
	e.GET("/ws", func(c echo.Context) error {
		return deps.Hub.HandleWebSocket(c, auth.UserID(c))
	}, auth.Middleware(deps.Tokens))
}

func (h *handler) health(c echo.Context) error {
	clients := 0
	if h.deps.Hub != nil {
		clients = h.deps.Hub.ClientCount()
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "parle",
		Clients: clients,
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}

func queryLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidInput)
	}
	return n, nil
}

func (h *handler) register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Email and password are required")
	}

	result, err := h.deps.Accounts.Register(c.Request().Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *handler) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Email and password are required")
	}

	result, err := h.deps.Accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) getProfile(c echo.Context) error {
	profile, err := h.deps.Accounts.GetProfile(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *handler) updateProfile(c echo.Context) error {
	var patch usecase.ProfilePatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "Invalid request format")
	}
	profile, err := h.deps.Accounts.UpdateProfile(c.Request().Context(), auth.UserID(c), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *handler) startSession(c echo.Context) error {
	var req StartSessionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "Invalid request format")
		}
	}
	session, err := h.deps.Sessions.Start(c.Request().Context(), auth.UserID(c), req.Mode, req.Topic)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

func (h *handler) listSessions(c echo.Context) error {
	limit, err := queryLimit(c)
	if err != nil {
		return err
	}
	sessions, err := h.deps.Sessions.List(c.Request().Context(), auth.UserID(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SessionListResponse{Sessions: nonNil(sessions)})
}

func (h *handler) getSession(c echo.Context) error {
	session, err := h.deps.Sessions.Get(c.Request().Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

func (h *handler) endSession(c echo.Context) error {
	session, err := h.deps.Sessions.End(c.Request().Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// readAudio reads the "audio" file of a multipart form along with its
// optional audio settings
func readAudio(c echo.Context) ([]byte, repositories.AudioConfig, error) {
	var config repositories.AudioConfig
	file, err := c.FormFile("audio")
	if err != nil {
		return nil, config, fmt.Errorf("%w: audio file is required", domain.ErrInvalidInput)
	}
	if file.Size > maxAudioBytes {
		return nil, config, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "audio file is too large")
	}
	src, err := file.Open()
	if err != nil {
		return nil, config, fmt.Errorf("failed to open audio: %w", err)
	}
	defer src.Close()

	audio, err := io.ReadAll(io.LimitReader(src, maxAudioBytes+1))
	if err != nil {
		return nil, config, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) > maxAudioBytes {
		return nil, config, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "audio file is too large")
	}

	config.ContentType = file.Header.Get(echo.HeaderContentType)
	config.Encoding = c.FormValue("encoding")
	config.Language = c.FormValue("language")
	if raw := c.FormValue("sample_rate"); raw != "" {
		rate, err := strconv.Atoi(raw)
		if err != nil || rate <= 0 {
			return nil, config, fmt.Errorf("%w: invalid sample_rate", domain.ErrInvalidInput)
		}
		config.SampleRate = rate
	}
	return audio, config, nil
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

func (h *handler) createTurn(c echo.Context) error {
	var in usecase.TurnInput
	if isMultipart(c) {
		audio, config, err := readAudio(c)
		if err != nil {
			return err
		}
		in.Audio = audio
		in.AudioConfig = config
	} else {
		var req TextTurnRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "Invalid request format")
		}
		in.Text = req.Text
	}

	result, err := h.deps.Conversation.ProcessTurn(c.Request().Context(), auth.UserID(c), c.Param("id"), in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, TurnResponse{
		Transcript:    result.Transcript,
		Confidence:    result.Confidence,
		Reply:         result.Reply,
		Corrections:   result.Corrections,
		TutorFallback: result.TutorFallback,
		Speech:        collectSpeech(result.Speech),
	})
}

// collectSpeech drains streamed audio into a JSON payload
func collectSpeech(speech usecase.Speech) SpeechPayload {
	payload := SpeechPayload{
		Fallback:    speech.Fallback,
		ContentType: speech.ContentType,
		Text:        speech.Text,
	}
	if speech.Audio == nil {
		payload.Fallback = true
		return payload
	}
	for chunk := range speech.Audio {
		payload.Audio = append(payload.Audio, chunk...)
	}
	if len(payload.Audio) == 0 {
		payload.Fallback = true
		payload.ContentType = ""
	}
	return payload
}

func (h *handler) transcribe(c echo.Context) error {
	if !isMultipart(c) {
		return badRequest(c, "Expected multipart form with an audio file")
	}
	audio, config, err := readAudio(c)
	if err != nil {
		return err
	}
	result, err := h.deps.Conversation.Transcribe(c.Request().Context(), audio, config)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// speech streams synthesized audio, or answers with a fallback payload when
// synthesis is unavailable
func (h *handler) speech(c echo.Context) error {
	var req SpeechRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return badRequest(c, "Text is required")
	}

	ctx := c.Request().Context()
	profile, err := h.deps.Accounts.GetProfile(ctx, auth.UserID(c))
	if err != nil {
		return err
	}

	speech := h.deps.Conversation.Synthesize(ctx, req.Text, profile.Settings)
	if speech.Fallback {
		return c.JSON(http.StatusOK, SpeechPayload{Fallback: true, Text: speech.Text})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, speech.ContentType)
	res.WriteHeader(http.StatusOK)
	for chunk := range speech.Audio {
		if _, err := res.Write(chunk); err != nil {
			h.logger.Warn("Client went away during speech stream", zap.Error(err))
			return nil
		}
		res.Flush()
	}
	return nil
}

func (h *handler) progressOverview(c echo.Context) error {
	overview, err := h.deps.Progress.Overview(c.Request().Context(), auth.UserID(c), h.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, overview)
}

func (h *handler) troubleWords(c echo.Context) error {
	limit, err := queryLimit(c)
	if err != nil {
		return err
	}
	words, err := h.deps.Progress.TroubleWords(c.Request().Context(), auth.UserID(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TroubleWordsResponse{TroubleWords: words})
}

func (h *handler) topics(c echo.Context) error {
	topics, err := h.deps.Progress.Topics(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TopicsResponse{Topics: nonNil(topics)})
}

func (h *handler) focus(c echo.Context) error {
	limit, err := queryLimit(c)
	if err != nil {
		return err
	}
	focus, err := h.deps.Progress.Focus(c.Request().Context(), auth.UserID(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, FocusResponse{Focus: nonNil(focus)})
}

func (h *handler) voices(c echo.Context) error {
	voices, err := h.deps.Voices.ListVoices(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list voices", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "voice catalogue unavailable")
	}
	return c.JSON(http.StatusOK, VoicesResponse{Voices: nonNil(voices)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
