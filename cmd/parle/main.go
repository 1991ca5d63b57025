// Package main provides the CLI entrypoint for the Parle server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/adapters/postgres"
	"github.com/satriahrh/parle/internal/api"
	"github.com/satriahrh/parle/internal/auth"
	"github.com/satriahrh/parle/internal/config"
	"github.com/satriahrh/parle/internal/saga"
	"github.com/satriahrh/parle/internal/websocket"
	"github.com/satriahrh/parle/internal/worker"
	"github.com/satriahrh/parle/usecase"
)

var configFile string

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "parle",
		Short:        "French conversation tutor server",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (default: ./parle.yaml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	migrateCmd.AddCommand(
		migrateSubcommand("up", "Apply all pending migrations", postgres.Migrate),
		migrateSubcommand("down", "Roll back the most recent migration", postgres.Rollback),
		migrateSubcommand("status", "Print the state of every migration", postgres.MigrationStatus),
	)
	return migrateCmd
}

type migrateFunc func(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error

func migrateSubcommand(use, short string, run migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Postgres.DSN == "" {
				return errors.New("postgres.dsn is required to run migrations")
			}
			pool, err := postgres.Connect(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pool.Close()
			return run(cmd.Context(), pool, logger)
		},
	}
}

// setup loads and validates the configuration and builds the logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("Failed to close storage", zap.Error(err))
		}
	}()

	model, err := newLLM(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}
	speechToText, closeSTT, err := newSTT(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create speech recognizer: %w", err)
	}
	defer closeSTT()
	textToSpeech, voices, err := newTTS(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create speech synthesizer: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	sagas := saga.NewManager(logger)
	go logSagaEvents(ctx, sagas, logger)

	summarizer := usecase.NewSummarizer(model, logger)
	sessionService := usecase.NewSessionService(store.Sessions, store.Profiles, summarizer, sagas, usecase.SessionConfig{
		StaleAfter:   cfg.Session.StaleAfter,
		AbandonAfter: cfg.Session.AbandonAfter,
	}, logger)
	tutor := usecase.NewTutor(model, usecase.TutorConfig{HistoryTurns: cfg.Tutor.HistoryTurns}, logger)
	conversationService := usecase.NewConversationService(
		speechToText, textToSpeech, tutor, sessionService, store.Profiles, cfg.Tutor.Language, logger)
	accountService := usecase.NewAccountService(store.Users, store.Profiles, tokens, logger)
	progressService := usecase.NewProgressService(store.Profiles, store.Sessions, logger)

	hub := websocket.NewHub(conversationService, sessionService, websocket.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Language:       cfg.Tutor.Language,
	}, logger)
	go hub.Run(ctx)

	cleanup := worker.NewSessionCleanupService(sessionService, cfg.Session.CleanupInterval, logger)
	cleanup.Start()
	defer cleanup.Stop()

	e := api.NewServer(api.Options{AllowedOrigins: cfg.Server.AllowedOrigins}, logger)
	deps := api.Dependencies{
		Accounts:     accountService,
		Sessions:     sessionService,
		Conversation: conversationService,
		Progress:     progressService,
		Tokens:       tokens,
		Hub:          hub,
		RateLimitRPS: cfg.Server.RateLimitRPS,
	}
	if voices != nil {
		deps.Voices = voices
	}
	api.InitRoutes(e, deps, logger)

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("Server started",
		zap.String("addr", addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("llm", model.Name()),
		zap.String("stt", cfg.STT.Provider),
		zap.String("tts", cfg.TTS.Provider))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}

func logSagaEvents(ctx context.Context, sagas *saga.Manager, logger *zap.Logger) {
	events := sagas.EventChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			fields := []zap.Field{
				zap.String("sagaID", string(event.SagaID)),
				zap.String("definition", event.Definition),
				zap.String("type", string(event.Type)),
			}
			if event.StepID != "" {
				fields = append(fields, zap.String("stepID", string(event.StepID)))
			}
			if event.Error != "" {
				logger.Warn("Saga event", append(fields, zap.String("error", event.Error))...)
				continue
			}
			logger.Debug("Saga event", fields...)
		}
	}
}
