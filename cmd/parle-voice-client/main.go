// Package main provides a command line voice client that plays one spoken
// turn against a running Parle server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/internal/api"
	"github.com/satriahrh/parle/internal/websocket"
	"github.com/satriahrh/parle/usecase"
)

const (
	defaultServer    = "http://localhost:8080"
	defaultChunkSize = 1024
	defaultOutDir    = "audio_responses"
	replyTimeout     = 90 * time.Second
)

type options struct {
	server     string
	email      string
	password   string
	register   bool
	audioFile  string
	chunkSize  int
	chunkDelay time.Duration
	sampleRate int
	encoding   string
	topic      string
	outDir     string
	endSession bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "parle-voice-client",
		Short:        "Send one recorded utterance to a Parle server and save the spoken reply",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, opts, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", defaultServer, "server base URL")
	flags.StringVar(&opts.email, "email", "", "learner email")
	flags.StringVar(&opts.password, "password", "", "learner password")
	flags.BoolVar(&opts.register, "register", false, "register the learner before logging in")
	flags.StringVar(&opts.audioFile, "audio", "sample_audio.wav", "audio file to stream")
	flags.IntVar(&opts.chunkSize, "chunk-size", defaultChunkSize, "bytes per binary frame")
	flags.DurationVar(&opts.chunkDelay, "chunk-delay", 50*time.Millisecond, "pause between frames")
	flags.IntVar(&opts.sampleRate, "sample-rate", 16000, "audio sample rate in Hz")
	flags.StringVar(&opts.encoding, "encoding", "linear16", "audio encoding")
	flags.StringVar(&opts.topic, "topic", "", "conversation topic for a new session")
	flags.StringVar(&opts.outDir, "out", defaultOutDir, "directory for the synthesized replies")
	flags.BoolVar(&opts.endSession, "end-session", false, "end the session after the reply and print its summary")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	audio, err := os.ReadFile(opts.audioFile)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}
	logger.Info("Read audio file", zap.String("path", opts.audioFile), zap.Int("bytes", len(audio)))

	if opts.register {
		if _, err := authenticate(ctx, opts.server, "/api/v1/auth/register", api.RegisterRequest{
			Email: opts.email, Password: opts.password,
		}); err != nil {
			logger.Warn("Registration failed, trying to log in", zap.Error(err))
		}
	}
	result, err := authenticate(ctx, opts.server, "/api/v1/auth/login", api.LoginRequest{
		Email: opts.email, Password: opts.password,
	})
	if err != nil {
		return err
	}
	logger.Info("Logged in", zap.String("userID", result.User.ID))

	wsURL, err := websocketURL(opts.server)
	if err != nil {
		return err
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+result.Token)
	conn, _, err := gorillaws.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	defer conn.Close()
	logger.Info("Connected", zap.String("url", wsURL))

	events := make(chan string, 16)
	go readLoop(conn, opts.outDir, events, logger)

	if err := conn.WriteJSON(websocket.ListeningStartMessage{
		BaseMessage: websocket.BaseMessage{Type: websocket.MessageTypeListeningStart},
		Topic:       opts.topic,
		SampleRate:  opts.sampleRate,
		Encoding:    opts.encoding,
	}); err != nil {
		return fmt.Errorf("failed to send listening_start: %w", err)
	}
	if err := await(ctx, events, string(websocket.MessageTypeListeningStart)); err != nil {
		return err
	}

	chunks := split(audio, opts.chunkSize)
	started := time.Now()
	for i, chunk := range chunks {
		if err := conn.WriteMessage(gorillaws.BinaryMessage, chunk); err != nil {
			return fmt.Errorf("failed to send chunk %d: %w", i, err)
		}
		if opts.chunkDelay > 0 {
			time.Sleep(opts.chunkDelay)
		}
	}
	logger.Info("Sent audio", zap.Int("chunks", len(chunks)), zap.Duration("elapsed", time.Since(started)))

	if err := conn.WriteJSON(websocket.ListeningEndMessage{
		BaseMessage: websocket.BaseMessage{Type: websocket.MessageTypeListeningEnd},
	}); err != nil {
		return fmt.Errorf("failed to send listening_end: %w", err)
	}
	if err := await(ctx, events, string(websocket.MessageTypeSpeakingEnd), string(websocket.MessageTypeTTSFallback)); err != nil {
		return err
	}

	if opts.endSession {
		if err := conn.WriteJSON(websocket.EndSessionMessage{
			BaseMessage: websocket.BaseMessage{Type: websocket.MessageTypeEndSession},
		}); err != nil {
			return fmt.Errorf("failed to send end_session: %w", err)
		}
		if err := await(ctx, events, string(websocket.MessageTypeSessionSummary)); err != nil {
			return err
		}
	}

	err = conn.WriteControl(gorillaws.CloseMessage,
		gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if err != nil {
		logger.Warn("Failed to send close frame", zap.Error(err))
	}
	return nil
}

// authenticate posts credentials to path and decodes the token response
func authenticate(ctx context.Context, server, path string, payload any) (*usecase.AuthResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s failed: %s: %s", path, apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("%s failed with status %d", path, resp.StatusCode)
	}

	var result usecase.AuthResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return &result, nil
}

// websocketURL maps an http(s) base URL to the /ws endpoint
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func split(data []byte, size int) [][]byte {
	if size <= 0 {
		size = defaultChunkSize
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		chunks = append(chunks, data[start:end])
	}
	return chunks
}

// await blocks until one of the wanted message types is reported. An error
// message from the server or a closed connection ends the wait.
func await(ctx context.Context, events <-chan string, want ...string) error {
	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("timed out waiting for %s", strings.Join(want, " or "))
		case event, ok := <-events:
			if !ok {
				return errors.New("connection closed")
			}
			if event == string(websocket.MessageTypeError) {
				return errors.New("server reported an error")
			}
			for _, w := range want {
				if event == w {
					return nil
				}
			}
		}
	}
}

// readLoop logs server messages, writes speech to outDir and reports every
// message type on events
func readLoop(conn *gorillaws.Conn, outDir string, events chan<- string, logger *zap.Logger) {
	defer close(events)
	var audioFile *os.File
	var speakingStart time.Time
	var received int

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if !gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure) {
				logger.Info("Connection closed", zap.Error(err))
			}
			if audioFile != nil {
				audioFile.Close()
			}
			return
		}

		if messageType == gorillaws.BinaryMessage {
			received++
			if audioFile != nil {
				if _, err := audioFile.Write(message); err != nil {
					logger.Error("Failed to write audio chunk", zap.Error(err))
				}
			}
			continue
		}

		var base websocket.BaseMessage
		if err := json.Unmarshal(message, &base); err != nil {
			logger.Warn("Failed to decode message", zap.Error(err))
			continue
		}

		switch base.Type {
		case websocket.MessageTypeListeningStart:
			var msg websocket.ListeningStartedMessage
			_ = json.Unmarshal(message, &msg)
			logger.Info("Listening", zap.String("sessionID", msg.SessionID))
		case websocket.MessageTypeTranscript:
			var msg websocket.TranscriptMessage
			_ = json.Unmarshal(message, &msg)
			fmt.Printf("vous:   %s\n", msg.Text)
		case websocket.MessageTypeTutorReply:
			var msg websocket.TutorReplyMessage
			_ = json.Unmarshal(message, &msg)
			fmt.Printf("tuteur: %s\n", msg.Text)
			for _, c := range msg.Corrections {
				fmt.Printf("  - %s -> %s (%s)\n", c.Original, c.Corrected, c.Explanation)
			}
		case websocket.MessageTypeSpeakingStart:
			var msg websocket.SpeakingStartMessage
			_ = json.Unmarshal(message, &msg)
			speakingStart = time.Now()
			received = 0
			audioFile, err = createAudioFile(outDir, msg.ContentType)
			if err != nil {
				logger.Error("Failed to create audio file", zap.Error(err))
			}
		case websocket.MessageTypeSpeakingEnd:
			var msg websocket.SpeakingEndMessage
			_ = json.Unmarshal(message, &msg)
			fields := []zap.Field{
				zap.Int("chunks", received),
				zap.Int("announced", msg.Chunks),
				zap.Duration("elapsed", time.Since(speakingStart)),
			}
			if audioFile != nil {
				fields = append(fields, zap.String("file", audioFile.Name()))
				audioFile.Close()
				audioFile = nil
			}
			logger.Info("Reply audio received", fields...)
		case websocket.MessageTypeTTSFallback:
			logger.Info("Server has no voice, the reply should be spoken by the client")
		case websocket.MessageTypeSessionSummary:
			var msg websocket.SessionSummaryMessage
			_ = json.Unmarshal(message, &msg)
			pretty, _ := json.MarshalIndent(msg, "", "  ")
			fmt.Println(string(pretty))
		case websocket.MessageTypeError:
			var msg websocket.ErrorMessage
			_ = json.Unmarshal(message, &msg)
			logger.Error("Server error",
				zap.String("code", msg.Code),
				zap.String("message", msg.Message),
				zap.String("details", msg.Details))
		}
		events <- string(base.Type)
	}
}

func createAudioFile(dir, contentType string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	ext := ".bin"
	switch contentType {
	case "audio/mpeg":
		ext = ".mp3"
	case "audio/wav", "audio/x-wav":
		ext = ".wav"
	case "audio/ogg":
		ext = ".ogg"
	}
	return os.Create(filepath.Join(dir, fmt.Sprintf("%d%s", time.Now().UnixNano(), ext)))
}
