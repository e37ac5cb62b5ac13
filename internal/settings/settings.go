// Package settings resolves named bot settings stored in MongoDB with
// per-call fallbacks, so every caller states the default it can live with.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_funnel_bot/internal/logging"
)

// Keys understood by the bot. Values are free-form strings edited from the
// dashboard; absent keys fall back to the caller-supplied default.
const (
	KeyWelcomeText     = "welcome_text"
	KeyStep1Text       = "step1_text"
	KeyStep1Video      = "step1_video"
	KeyAndroidLink     = "android_link"
	KeyIOSLink         = "ios_link"
	KeyWindowsLink     = "windows_link"
	KeyStep2Text       = "step2_text"
	KeyStep2Video      = "step2_video"
	KeyClubID          = "club_id"
	KeyBonusText       = "bonus_text"
	KeyRulesText       = "rules_text"
	KeyManagerChatID   = "manager_chat_id"
	KeyPaymentTemplate = "payment_link_template"
	KeyMerchantAPIURL  = "merchant_api_url"
	KeyMerchantID      = "merchant_id"
	KeyMerchantSecret  = "merchant_secret"
	KeyProviderURL     = "provider_url"
)

// Entry is one stored key/value pair.
type Entry struct {
	Key       string    `bson:"key" json:"key"`
	Value     string    `bson:"value" json:"value"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

type settingsCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// Resolver reads and writes settings. Lookup failures degrade to the
// fallback value rather than interrupting a conversation.
type Resolver struct {
	collection settingsCollection
	logger     *logrus.Entry
}

// NewResolver constructs a Resolver over the settings collection.
func NewResolver(collection settingsCollection, logger *logrus.Entry) *Resolver {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Resolver{collection: collection, logger: logger}
}

// Value returns the stored value for key, or fallback when the key is absent
// or the lookup fails.
func (r *Resolver) Value(ctx context.Context, key, fallback string) string {
	if r == nil || r.collection == nil || ctx == nil || key == "" {
		return fallback
	}

	result := r.collection.FindOne(ctx, bson.M{"key": key})
	if result == nil {
		return fallback
	}
	if err := result.Err(); err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.WithFields(logging.Fields{
				"event": "setting_lookup_failed",
				"key":   key,
			}).WithError(err).Warn("setting lookup failed, using fallback")
		}
		return fallback
	}

	var entry Entry
	if err := result.Decode(&entry); err != nil {
		r.logger.WithFields(logging.Fields{
			"event": "setting_decode_failed",
			"key":   key,
		}).WithError(err).Warn("setting decode failed, using fallback")
		return fallback
	}
	if entry.Value == "" {
		return fallback
	}
	return entry.Value
}

// Set upserts a key/value pair.
func (r *Resolver) Set(ctx context.Context, key, value string) error {
	if r == nil || r.collection == nil {
		return errors.New("settings resolver is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if key == "" {
		return errors.New("key is required")
	}

	update := bson.M{"$set": bson.M{
		"key":        key,
		"value":      value,
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"key": key}, update,
		options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// All returns every stored entry.
func (r *Resolver) All(ctx context.Context) ([]Entry, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("settings resolver is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return entries, nil
}
