// Package postgres stores users, profiles and sessions in PostgreSQL.
// Nested profile and session data lives in JSONB columns.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain/repositories"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const uniqueViolation = "23505"

// Config holds the PostgreSQL connection settings
type Config struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// Connect opens a connection pool and verifies it
func Connect(ctx context.Context, config Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	if config.DSN == "" {
		return nil, errors.New("postgres DSN is required")
	}
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL",
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("maxConns", poolConfig.MaxConns))
	return pool, nil
}

// NewMigrator returns a goose provider over the embedded migrations
func NewMigrator(pool *pgxpool.Pool) (*goose.Provider, error) {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool), migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return provider, nil
}

// Migrate applies every pending migration
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	provider, err := NewMigrator(pool)
	if err != nil {
		return err
	}
	defer provider.Close()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("Applied migration",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration))
	}
	return nil
}

// Rollback reverts the most recent migration
func Rollback(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	provider, err := NewMigrator(pool)
	if err != nil {
		return err
	}
	defer provider.Close()

	r, err := provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	logger.Info("Rolled back migration", zap.Int64("version", r.Source.Version))
	return nil
}

// MigrationStatus logs every known migration and whether it is applied
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	provider, err := NewMigrator(pool)
	if err != nil {
		return err
	}
	defer provider.Close()

	statuses, err := provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	for _, st := range statuses {
		logger.Info("Migration",
			zap.Int64("version", st.Source.Version),
			zap.String("path", st.Source.Path),
			zap.String("state", string(st.State)),
			zap.Time("appliedAt", st.AppliedAt))
	}
	return nil
}

// NewStore connects, migrates and returns the PostgreSQL-backed repositories
func NewStore(ctx context.Context, config Config, logger *zap.Logger) (*repositories.Store, error) {
	pool, err := Connect(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return &repositories.Store{
		Users:    NewUserRepository(pool),
		Profiles: NewProfileRepository(pool),
		Sessions: NewSessionRepository(pool),
		Close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
