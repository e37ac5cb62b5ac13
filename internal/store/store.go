// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_funnel_bot/internal/config"
)

// Collection names used across the bot.
const (
	CollectionSessions = "sessions"
	CollectionPayments = "payments"
	CollectionTickets  = "tickets"
	CollectionReplies  = "replies"
	CollectionSettings = "settings"
)

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Ping verifies connectivity to the primary; used by the health endpoint.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Ping(ctx, readpref.Primary())
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Sessions returns the funnel sessions collection handle.
func (m *Manager) Sessions() *mongo.Collection {
	return m.Collection(CollectionSessions)
}

// Payments returns the payments collection handle.
func (m *Manager) Payments() *mongo.Collection {
	return m.Collection(CollectionPayments)
}

// Tickets returns the manager tickets collection handle.
func (m *Manager) Tickets() *mongo.Collection {
	return m.Collection(CollectionTickets)
}

// Replies returns the ticket replies collection handle.
func (m *Manager) Replies() *mongo.Collection {
	return m.Collection(CollectionReplies)
}

// Settings returns the bot settings collection handle.
func (m *Manager) Settings() *mongo.Collection {
	return m.Collection(CollectionSettings)
}

// EnsureBaseIndexes creates the foundational indexes for the bot collections.
// Collections are created implicitly if they do not already exist.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	sessionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "tg_id", Value: 1}},
			Options: options.Index().
				SetName("tg_id_unique").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "step", Value: 1}},
			Options: options.Index().SetName("step"),
		},
	}

	if _, err := createIndexes(ctx, m.Sessions(), sessionIndexes); err != nil {
		return fmt.Errorf("create sessions indexes: %w", err)
	}

	paymentIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "id", Value: 1}},
			Options: options.Index().
				SetName("payment_id_unique").
				SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "invoice_id", Value: 1}},
			Options: options.Index().
				SetName("invoice_id").
				SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "tg_id", Value: 1}},
			Options: options.Index().SetName("payment_tg_id"),
		},
	}

	if _, err := createIndexes(ctx, m.Payments(), paymentIndexes); err != nil {
		return fmt.Errorf("create payments indexes: %w", err)
	}

	ticketIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "id", Value: 1}},
			Options: options.Index().
				SetName("ticket_id_unique").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "resolved", Value: 1}},
			Options: options.Index().SetName("resolved"),
		},
	}

	if _, err := createIndexes(ctx, m.Tickets(), ticketIndexes); err != nil {
		return fmt.Errorf("create tickets indexes: %w", err)
	}

	replyIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ticket_id", Value: 1}},
			Options: options.Index().SetName("reply_ticket_id"),
		},
	}

	if _, err := createIndexes(ctx, m.Replies(), replyIndexes); err != nil {
		return fmt.Errorf("create replies indexes: %w", err)
	}

	settingIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "key", Value: 1}},
			Options: options.Index().
				SetName("setting_key_unique").
				SetUnique(true),
		},
	}

	if _, err := createIndexes(ctx, m.Settings(), settingIndexes); err != nil {
		return fmt.Errorf("create settings indexes: %w", err)
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
