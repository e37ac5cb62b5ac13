package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type paymentCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// PaymentRepository persists payment intents in MongoDB.
type PaymentRepository struct {
	collection paymentCollection
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(collection paymentCollection) *PaymentRepository {
	return &PaymentRepository{collection: collection}
}

// Create inserts a pending payment intent, assigning an id when absent.
func (r *PaymentRepository) Create(ctx context.Context, payment Payment) (Payment, error) {
	if r == nil || r.collection == nil {
		return Payment{}, errors.New("payment repository is not initialized")
	}
	if ctx == nil {
		return Payment{}, errors.New("context is required")
	}
	if payment.TgID == "" {
		return Payment{}, errors.New("tg_id is required")
	}
	if payment.Amount <= 0 {
		return Payment{}, errors.New("amount must be positive")
	}

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Status == "" {
		payment.Status = PaymentPending
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	payment.CreatedAt = now
	payment.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, payment); err != nil {
		return Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return payment, nil
}

// GetByID fetches a payment by its own id.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (Payment, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

// GetByInvoice fetches a payment by the provider correlation reference.
func (r *PaymentRepository) GetByInvoice(ctx context.Context, invoiceID string) (Payment, error) {
	return r.findOne(ctx, bson.M{"invoice_id": invoiceID})
}

func (r *PaymentRepository) findOne(ctx context.Context, filter bson.M) (Payment, error) {
	if r == nil || r.collection == nil {
		return Payment{}, errors.New("payment repository is not initialized")
	}
	if ctx == nil {
		return Payment{}, errors.New("context is required")
	}

	result := r.collection.FindOne(ctx, filter)
	if result == nil {
		return Payment{}, errors.New("find payment returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("find payment: %w", err)
	}

	var payment Payment
	if err := result.Decode(&payment); err != nil {
		return Payment{}, fmt.Errorf("decode payment: %w", err)
	}
	return payment, nil
}

// SetInvoice stores the provider correlation reference on a payment.
func (r *PaymentRepository) SetInvoice(ctx context.Context, id, invoiceID string) error {
	if r == nil || r.collection == nil {
		return errors.New("payment repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if id == "" || invoiceID == "" {
		return errors.New("id and invoice_id are required")
	}

	result := r.collection.FindOneAndUpdate(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{
			"invoice_id": invoiceID,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		}},
	)
	if result == nil {
		return errors.New("update payment returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("set invoice: %w", err)
	}
	return nil
}

// UpdateStatus moves a payment to the given status. Payments that already
// reached a terminal status are left untouched and ErrTerminalStatus is
// returned, so a late webhook or a dashboard edit can never undo paid or
// cancelled.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id, status string) (Payment, error) {
	if r == nil || r.collection == nil {
		return Payment{}, errors.New("payment repository is not initialized")
	}
	if ctx == nil {
		return Payment{}, errors.New("context is required")
	}
	if !ValidPaymentStatus(status) {
		return Payment{}, fmt.Errorf("invalid payment status %q", status)
	}

	filter := bson.M{
		"id":     id,
		"status": bson.M{"$nin": bson.A{PaymentPaid, PaymentCancelled}},
	}
	update := bson.M{"$set": bson.M{
		"status":     status,
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	}}

	result := r.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	if result == nil {
		return Payment{}, errors.New("update payment returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Either the payment does not exist or it is already terminal.
			existing, lookupErr := r.GetByID(ctx, id)
			if lookupErr != nil {
				return Payment{}, lookupErr
			}
			return existing, ErrTerminalStatus
		}
		return Payment{}, fmt.Errorf("update payment status: %w", err)
	}

	var payment Payment
	if err := result.Decode(&payment); err != nil {
		return Payment{}, fmt.Errorf("decode payment: %w", err)
	}
	return payment, nil
}

// All returns every payment, newest first.
func (r *PaymentRepository) All(ctx context.Context) ([]Payment, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("payment repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	var payments []Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return payments, nil
}
