package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/parle/domain/repositories"
)

const (
	defaultURI            = "mongodb://localhost:27017"
	defaultDatabase       = "parle"
	defaultMaxPoolSize    = 10
	defaultConnectTimeout = 10 * time.Second
)

// Config holds the MongoDB connection settings
type Config struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Client wraps the MongoDB client and the Parle database
type Client struct {
	*mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

func (c Config) withDefaults(logger *zap.Logger) Config {
	if c.URI == "" {
		c.URI = defaultURI
		logger.Info("Using default MongoDB URI", zap.String("uri", c.URI))
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	return c
}

// NewClient connects and pings the server within the connect timeout
func NewClient(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	config = config.withDefaults(logger)

	opts := options.Client().
		ApplyURI(config.URI).
		SetAppName("parle").
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Minute).
		SetServerSelectionTimeout(config.ConnectTimeout / 2).
		SetConnectTimeout(config.ConnectTimeout)

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB",
		zap.String("database", config.Database),
		zap.Uint64("maxPoolSize", config.MaxPoolSize))

	return &Client{
		Client:   client,
		Database: client.Database(config.Database),
		logger:   logger,
	}, nil
}

// Close closes the MongoDB connection
func (c *Client) Close(ctx context.Context) error {
	if err := c.Client.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}

// EnsureIndexes creates the indexes the repositories rely on
func (c *Client) EnsureIndexes(ctx context.Context) error {
	if err := ensureUserIndexes(ctx, c.Database); err != nil {
		return err
	}
	return ensureSessionIndexes(ctx, c.Database)
}

// NewStore connects and returns the MongoDB-backed repositories
func NewStore(ctx context.Context, config Config, logger *zap.Logger) (*repositories.Store, error) {
	client, err := NewClient(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureIndexes(ctx); err != nil {
		client.Close(context.Background())
		return nil, err
	}
	return &repositories.Store{
		Users:    NewUserRepository(client.Database),
		Profiles: NewProfileRepository(client.Database),
		Sessions: NewSessionRepository(client.Database, logger),
		Close:    client.Close,
	}, nil
}
