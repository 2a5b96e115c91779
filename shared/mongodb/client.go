package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Config holds MongoDB connection configuration
type Config struct {
	// URI is the connection endpoint, e.g. mongodb://host:27017 or an
	// Azure Cosmos DB MongoDB API connection string
	URI string
	// Password overrides any password embedded in URI (Cosmos account key)
	Password       string
	Database       string
	Collection     string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// Client represents a MongoDB database client
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	config *Config
	logger *slog.Logger
}

// ConnectionURI builds the driver URI from the endpoint and key
func (c *Config) ConnectionURI() (string, error) {
	u, err := url.Parse(c.URI)
	if err != nil {
		return "", fmt.Errorf("invalid MongoDB endpoint: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return "", fmt.Errorf("invalid MongoDB endpoint scheme %q", u.Scheme)
	}
	if c.Password != "" {
		user := ""
		if u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, c.Password)
	}
	return u.String(), nil
}

// NewClient creates a new MongoDB client and verifies the connection
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	uri, err := config.ConnectionURI()
	if err != nil {
		return nil, err
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	logger.Info("Connecting to MongoDB",
		slog.String("database", config.Database),
		slog.String("collection", config.Collection),
	)

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if config.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(config.MaxPoolSize)
	}

	mc, err := mongo.Connect(opts)
	if err != nil {
		logger.Error("Failed to create MongoDB client",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := mc.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("Failed to ping MongoDB",
			slog.Any("error", err),
		)
		_ = mc.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Successfully connected to MongoDB")

	return &Client{
		client: mc,
		db:     mc.Database(config.Database),
		config: config,
		logger: logger,
	}, nil
}

// Collection returns the configured job collection
func (c *Client) Collection() *mongo.Collection {
	return c.db.Collection(c.config.Collection)
}

// Ping checks the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (c *Client) Close() error {
	c.logger.Info("Closing MongoDB connection")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to close MongoDB connection",
			slog.Any("error", err),
		)
		return err
	}

	c.logger.Info("MongoDB connection closed successfully")
	return nil
}
