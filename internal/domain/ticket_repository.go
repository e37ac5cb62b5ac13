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

type ticketCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// TicketRepository persists escalation tickets in MongoDB.
type TicketRepository struct {
	collection ticketCollection
}

// NewTicketRepository constructs a TicketRepository.
func NewTicketRepository(collection ticketCollection) *TicketRepository {
	return &TicketRepository{collection: collection}
}

// Create inserts an unresolved ticket, assigning an id when absent.
func (r *TicketRepository) Create(ctx context.Context, ticket Ticket) (Ticket, error) {
	if r == nil || r.collection == nil {
		return Ticket{}, errors.New("ticket repository is not initialized")
	}
	if ctx == nil {
		return Ticket{}, errors.New("context is required")
	}
	if ticket.TgID == "" {
		return Ticket{}, errors.New("tg_id is required")
	}

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.Resolved = false
	ticket.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := r.collection.InsertOne(ctx, ticket); err != nil {
		return Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	return ticket, nil
}

// Get fetches a ticket by id.
func (r *TicketRepository) Get(ctx context.Context, id string) (Ticket, error) {
	if r == nil || r.collection == nil {
		return Ticket{}, errors.New("ticket repository is not initialized")
	}
	if ctx == nil {
		return Ticket{}, errors.New("context is required")
	}
	if id == "" {
		return Ticket{}, errors.New("id is required")
	}

	result := r.collection.FindOne(ctx, bson.M{"id": id})
	if result == nil {
		return Ticket{}, errors.New("find ticket returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, fmt.Errorf("find ticket: %w", err)
	}

	var ticket Ticket
	if err := result.Decode(&ticket); err != nil {
		return Ticket{}, fmt.Errorf("decode ticket: %w", err)
	}
	return ticket, nil
}

// Resolve marks a ticket resolved. Resolving an already resolved ticket is a
// no-op.
func (r *TicketRepository) Resolve(ctx context.Context, id string) error {
	if r == nil || r.collection == nil {
		return errors.New("ticket repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if id == "" {
		return errors.New("id is required")
	}

	if _, err := r.collection.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"resolved": true}},
	); err != nil {
		return fmt.Errorf("resolve ticket: %w", err)
	}
	return nil
}

// All returns every ticket, newest first.
func (r *TicketRepository) All(ctx context.Context) ([]Ticket, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("ticket repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}

	var tickets []Ticket
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("decode tickets: %w", err)
	}
	return tickets, nil
}

// CountPending counts unresolved tickets.
func (r *TicketRepository) CountPending(ctx context.Context) (int64, error) {
	if r == nil || r.collection == nil {
		return 0, errors.New("ticket repository is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"resolved": false})
	if err != nil {
		return 0, fmt.Errorf("count pending tickets: %w", err)
	}
	return count, nil
}

type replyCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// ReplyRepository persists operator replies attached to tickets.
type ReplyRepository struct {
	collection replyCollection
}

// NewReplyRepository constructs a ReplyRepository.
func NewReplyRepository(collection replyCollection) *ReplyRepository {
	return &ReplyRepository{collection: collection}
}

// Append stores a reply for a ticket, assigning an id when absent.
func (r *ReplyRepository) Append(ctx context.Context, reply Reply) (Reply, error) {
	if r == nil || r.collection == nil {
		return Reply{}, errors.New("reply repository is not initialized")
	}
	if ctx == nil {
		return Reply{}, errors.New("context is required")
	}
	if reply.TicketID == "" {
		return Reply{}, errors.New("ticket_id is required")
	}
	if reply.Text == "" {
		return Reply{}, errors.New("text is required")
	}

	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	reply.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := r.collection.InsertOne(ctx, reply); err != nil {
		return Reply{}, fmt.Errorf("insert reply: %w", err)
	}
	return reply, nil
}

// ForTicket returns the replies of a ticket, oldest first.
func (r *ReplyRepository) ForTicket(ctx context.Context, ticketID string) ([]Reply, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("reply repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if ticketID == "" {
		return nil, errors.New("ticket_id is required")
	}

	cursor, err := r.collection.Find(ctx, bson.M{"ticket_id": ticketID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}

	var replies []Reply
	if err := cursor.All(ctx, &replies); err != nil {
		return nil, fmt.Errorf("decode replies: %w", err)
	}
	return replies, nil
}
