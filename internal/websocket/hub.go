package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain"
	"github.com/satriahrh/parle/domain/entities"
	"github.com/satriahrh/parle/domain/repositories"
	"github.com/satriahrh/parle/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	sessionTimeout  = 30 * time.Second
	responseTimeout = 60 * time.Second
	wrapUpTimeout   = 2 * time.Minute

	defaultSampleRate = 16000
	defaultEncoding   = "LINEAR16"
)

// Conversation is the turn pipeline driven by the voice channel
type Conversation interface {
	StartUtterance(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error)
	Respond(ctx context.Context, userID, sessionID string, transcription repositories.Transcription) (*usecase.TurnResult, error)
}

// Sessions is the session lifecycle used by the voice channel
type Sessions interface {
	Start(ctx context.Context, userID string, mode entities.SessionMode, topic string) (*entities.Session, error)
	End(ctx context.Context, sessionID, userID string) (*entities.Session, error)
}

// Config configures the hub
type Config struct {
	// AllowedOrigins lists the browser origins allowed to connect; "*"
	// allows any origin
	AllowedOrigins []string
	// Language is announced with tts_fallback so the client picks a voice
	Language string
}

// Hub maintains the set of connected voice clients
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// done is closed when Run returns
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	conversation Conversation
	sessions     Sessions
	validator    *MessageValidator
	upgrader     websocket.Upgrader
	language     string

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(conversation Conversation, sessions Sessions, config Config, logger *zap.Logger) *Hub {
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if config.Language == "" {
		config.Language = "fr"
	}
	return &Hub{
		clients:      make(map[*Client]struct{}),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		conversation: conversation,
		sessions:     sessions,
		validator:    NewMessageValidator(),
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin(config.AllowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		language: config.Language,
		logger:   logger,
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Run starts the hub's main loop. It returns when ctx is done, after
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.cancel()
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			client.logger.Info("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.cancel()
			}
			h.mu.Unlock()
			client.logger.Info("Client unregistered")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WriteData is one outbound frame
type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	userID string
	logger *zap.Logger

	// ctx lives as long as the connection
	ctx    context.Context
	cancel context.CancelFunc

	mutex          sync.Mutex
	sessionID      string
	stream         repositories.SpeechToTextStreaming
	listeningStart time.Time
	chunkCount     int
	// busy is set from listening_start until the reply is spoken, and while
	// end_session runs
	busy bool
}

// HandleWebSocket upgrades an authenticated request and serves the voice
// protocol for userID
func (h *Hub) HandleWebSocket(c echo.Context, userID string) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan WriteData, 256),
		userID: userID,
		logger: h.logger.With(zap.String("userID", userID)),
		ctx:    ctx,
		cancel: cancel,
	}

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// enqueue hands a frame to the write pump; it reports false once the
// connection is gone
func (c *Client) enqueue(data WriteData) bool {
	select {
	case c.send <- data:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) sendJSON(v interface{}) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return false
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) sendError(code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.sendJSON(CreateErrorMessage(code, message, details))
}

func (c *Client) setIdle() {
	c.mutex.Lock()
	c.busy = false
	c.mutex.Unlock()
}

// finish clears busy before sending the message that completes an
// operation, so the client may start the next one as soon as it reads it
func (c *Client) finish(v interface{}) {
	c.setIdle()
	c.sendJSON(v)
}

func (c *Client) finishError(code, message string, err error) {
	c.setIdle()
	c.sendError(code, message, err)
}

// processMessage processes control messages from the client
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError(ErrorCodeInvalidMessage, "Invalid message", err)
		return
	}

	switch m := msg.(type) {
	case *ListeningStartMessage:
		c.handleListeningStart(m)
	case *ListeningEndMessage:
		c.handleListeningEnd()
	case *EndSessionMessage:
		c.handleEndSession(m)
	case *PingMessage:
		c.sendJSON(CreatePongMessage(m.Data))
	}
}

// processBinaryAudioChunk forwards audio to the open utterance
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stream == nil {
		c.logger.Warn("Received binary audio chunk outside an utterance", zap.Int("size", len(data)))
		c.sendError(ErrorCodeNotListening, "Send listening_start before audio", nil)
		return
	}

	c.chunkCount++
	if err := c.stream.Stream(data); err != nil {
		c.logger.Error("Failed to stream audio data",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
		return
	}

	c.logger.Debug("Streamed audio chunk",
		zap.String("sessionID", c.sessionID),
		zap.Int("size", len(data)),
		zap.Int("totalChunks", c.chunkCount))
}

// handleListeningStart resolves the session and opens a transcription stream
func (c *Client) handleListeningStart(msg *ListeningStartMessage) {
	c.mutex.Lock()
	if c.busy {
		c.mutex.Unlock()
		c.sendError(ErrorCodeBusy, "An utterance is already in progress", nil)
		return
	}
	c.busy = true
	c.mutex.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, sessionTimeout)
	defer cancel()

	session, err := c.hub.sessions.Start(ctx, c.userID, msg.Mode, msg.Topic)
	if err != nil {
		c.logger.Error("Failed to start session", zap.Error(err))
		c.setIdle()
		c.sendError(ErrorCodeSessionFailed, "Failed to start session", err)
		return
	}

	audioConfig := repositories.AudioConfig{
		SampleRate: defaultSampleRate,
		Encoding:   defaultEncoding,
		Language:   msg.Language,
	}
	if msg.SampleRate > 0 {
		audioConfig.SampleRate = msg.SampleRate
	}
	if msg.Encoding != "" {
		audioConfig.Encoding = msg.Encoding
	}

	stream, err := c.hub.conversation.StartUtterance(c.ctx, audioConfig)
	if err != nil {
		c.logger.Error("Failed to initialize streaming transcription",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		c.setIdle()
		c.sendError(ErrorCodeTranscription, "Failed to initialize transcription", err)
		return
	}

	c.mutex.Lock()
	c.sessionID = session.ID
	c.stream = stream
	c.chunkCount = 0
	c.listeningStart = time.Now()
	c.mutex.Unlock()

	c.logger.Info("Listening started", zap.String("sessionID", session.ID))
	c.sendJSON(ListeningStartedMessage{
		BaseMessage: newBase(MessageTypeListeningStart),
		SessionID:   session.ID,
	})
}

// handleListeningEnd closes the utterance and answers it asynchronously
func (c *Client) handleListeningEnd() {
	c.mutex.Lock()
	stream := c.stream
	sessionID := c.sessionID
	started := c.listeningStart
	chunks := c.chunkCount
	c.stream = nil
	c.mutex.Unlock()

	if stream == nil {
		c.sendError(ErrorCodeNotListening, "No utterance in progress", nil)
		return
	}

	c.logger.Info("Listening ended",
		zap.String("sessionID", sessionID),
		zap.Int("chunks", chunks))
	go c.respond(stream, sessionID, started)
}

func (c *Client) respond(stream repositories.SpeechToTextStreaming, sessionID string, started time.Time) {
	ctx, cancel := context.WithTimeout(c.ctx, responseTimeout)
	defer cancel()

	transcription, err := stream.End()
	if err != nil {
		c.logger.Error("Failed to end transcription stream",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		c.finishError(ErrorCodeTranscription, "Failed to transcribe audio", err)
		return
	}
	transcription.Text = strings.TrimSpace(transcription.Text)
	if transcription.Text == "" {
		c.finishError(ErrorCodeEmptyTranscript, domain.ErrEmptyTranscript.Error(), nil)
		return
	}
	if transcription.DurationMs == 0 {
		transcription.DurationMs = time.Since(started).Milliseconds()
	}

	c.sendJSON(TranscriptMessage{
		BaseMessage: newBase(MessageTypeTranscript),
		SessionID:   sessionID,
		Text:        transcription.Text,
		Confidence:  transcription.Confidence,
	})

	result, err := c.hub.conversation.Respond(ctx, c.userID, sessionID, transcription)
	if err != nil {
		c.logger.Error("Failed to process turn",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		if errors.Is(err, domain.ErrSessionNotActive) {
			c.finishError(ErrorCodeSessionNotActive, "Session is no longer active", err)
			return
		}
		c.finishError(ErrorCodeTurnFailed, "Failed to process turn", err)
		return
	}

	c.sendJSON(TutorReplyMessage{
		BaseMessage: newBase(MessageTypeTutorReply),
		SessionID:   sessionID,
		Text:        result.Reply,
		Corrections: result.Corrections,
		Fallback:    result.TutorFallback,
	})
	c.speak(sessionID, result.Speech)
}

// speak streams synthesized audio between speaking_start and speaking_end,
// or tells the client to synthesize the reply itself
func (c *Client) speak(sessionID string, speech usecase.Speech) {
	if speech.Fallback || speech.Audio == nil {
		c.finish(TTSFallbackMessage{
			BaseMessage: newBase(MessageTypeTTSFallback),
			SessionID:   sessionID,
			Text:        speech.Text,
			Language:    c.hub.language,
		})
		return
	}

	c.sendJSON(SpeakingStartMessage{
		BaseMessage: newBase(MessageTypeSpeakingStart),
		SessionID:   sessionID,
		ContentType: speech.ContentType,
	})
	chunks := 0
	for audio := range speech.Audio {
		if !c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: audio}) {
			c.setIdle()
			return
		}
		chunks++
	}
	c.finish(SpeakingEndMessage{
		BaseMessage: newBase(MessageTypeSpeakingEnd),
		SessionID:   sessionID,
		Chunks:      chunks,
	})
}

// handleEndSession ends the session and reports its summary
func (c *Client) handleEndSession(msg *EndSessionMessage) {
	c.mutex.Lock()
	if c.busy {
		c.mutex.Unlock()
		c.sendError(ErrorCodeBusy, "Wait for the current utterance to finish", nil)
		return
	}
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = c.sessionID
	}
	if sessionID == "" {
		c.mutex.Unlock()
		c.sendError(ErrorCodeNoSession, "No session to end", nil)
		return
	}
	c.busy = true
	c.mutex.Unlock()

	go func() {
		// the wrap-up completes even if the client disconnects meanwhile
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), wrapUpTimeout)
		defer cancel()

		session, err := c.hub.sessions.End(ctx, sessionID, c.userID)
		if err != nil {
			c.logger.Error("Failed to end session",
				zap.String("sessionID", sessionID),
				zap.Error(err))
			if errors.Is(err, domain.ErrSessionAlreadyEnded) || errors.Is(err, domain.ErrSessionNotActive) {
				c.finishError(ErrorCodeSessionNotActive, "Session already ended", err)
				return
			}
			c.finishError(ErrorCodeSessionFailed, "Failed to end session", err)
			return
		}

		c.mutex.Lock()
		if c.sessionID == sessionID {
			c.sessionID = ""
		}
		c.mutex.Unlock()

		c.finish(SessionSummaryMessage{
			BaseMessage:     newBase(MessageTypeSessionSummary),
			SessionID:       session.ID,
			Status:          session.Status,
			DurationSeconds: session.DurationSeconds,
			Summary:         session.Summary,
		})
	}()
}
