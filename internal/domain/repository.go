package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("not found")

// ErrTerminalStatus is returned when a status update targets a payment that
// already reached paid or cancelled.
var ErrTerminalStatus = errors.New("payment status is terminal")

type sessionCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// SessionRepository persists funnel sessions in MongoDB, keyed by the
// Telegram user id.
type SessionRepository struct {
	collection sessionCollection
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(collection sessionCollection) *SessionRepository {
	return &SessionRepository{collection: collection}
}

// Ensure upserts the session on first contact and refreshes the username and
// updated_at on every call. It reports whether the session was created.
func (r *SessionRepository) Ensure(ctx context.Context, tgID, username string) (Session, bool, error) {
	if r == nil || r.collection == nil {
		return Session{}, false, errors.New("session repository is not initialized")
	}
	if ctx == nil {
		return Session{}, false, errors.New("context is required")
	}
	if tgID == "" {
		return Session{}, false, errors.New("tg_id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	set := bson.M{"updated_at": now}
	if username != "" {
		set["username"] = username
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"tg_id":         tgID,
			"step":          StepHome,
			"claimed_bonus": false,
			"created_at":    now,
		},
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"tg_id": tgID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return Session{}, false, fmt.Errorf("ensure session: %w", err)
	}

	sess, err := r.Get(ctx, tgID)
	if err != nil {
		return Session{}, false, err
	}

	created := result != nil && result.UpsertedCount > 0
	return sess, created, nil
}

// Get fetches a session by Telegram user id.
func (r *SessionRepository) Get(ctx context.Context, tgID string) (Session, error) {
	if r == nil || r.collection == nil {
		return Session{}, errors.New("session repository is not initialized")
	}
	if ctx == nil {
		return Session{}, errors.New("context is required")
	}
	if tgID == "" {
		return Session{}, errors.New("tg_id is required")
	}

	result := r.collection.FindOne(ctx, bson.M{"tg_id": tgID})
	if result == nil {
		return Session{}, errors.New("find session returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("find session: %w", err)
	}

	var sess Session
	if err := result.Decode(&sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// SaveFunnel writes the mutable funnel fields of a session back to the store.
// It is the single write path used after a validated transition.
func (r *SessionRepository) SaveFunnel(ctx context.Context, sess Session) error {
	if r == nil || r.collection == nil {
		return errors.New("session repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if sess.TgID == "" {
		return errors.New("tg_id is required")
	}

	update := bson.M{"$set": bson.M{
		"step":          sess.Step,
		"claimed_bonus": sess.ClaimedBonus,
		"pay_sub_step":  sess.PaySubStep,
		"pay_amount":    sess.PayAmount,
		"pay_player_id": sess.PayPlayerID,
		"updated_at":    time.Now().UTC().Truncate(time.Millisecond),
	}}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"tg_id": sess.TgID}, update); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// All returns every session, newest first.
func (r *SessionRepository) All(ctx context.Context) ([]Session, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("session repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var sessions []Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

// CountByStep counts sessions currently parked at the given funnel step.
func (r *SessionRepository) CountByStep(ctx context.Context, step string) (int64, error) {
	if r == nil || r.collection == nil {
		return 0, errors.New("session repository is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"step": step})
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// CountBonusClaimed counts sessions that have claimed the bonus.
func (r *SessionRepository) CountBonusClaimed(ctx context.Context) (int64, error) {
	if r == nil || r.collection == nil {
		return 0, errors.New("session repository is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"claimed_bonus": true})
	if err != nil {
		return 0, fmt.Errorf("count bonus claims: %w", err)
	}
	return count, nil
}
