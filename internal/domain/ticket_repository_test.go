package domain

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fakeTicketCollection struct {
	insertedDoc interface{}
	insertErr   error

	findOneResult *mongo.SingleResult

	updateFilter interface{}
	updateDoc    interface{}
	updateErr    error

	findDocs []interface{}

	countFilter interface{}
	countResult int64
}

func (f *fakeTicketCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.insertedDoc = document
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return &mongo.InsertOneResult{}, nil
}

func (f *fakeTicketCollection) FindOne(_ context.Context, _ interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	return f.findOneResult
}

func (f *fakeTicketCollection) UpdateOne(_ context.Context, filter, update interface{}, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.updateFilter = filter
	f.updateDoc = update
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &mongo.UpdateResult{MatchedCount: 1}, nil
}

func (f *fakeTicketCollection) Find(_ context.Context, _ interface{}, _ ...*options.FindOptions) (*mongo.Cursor, error) {
	return mongo.NewCursorFromDocuments(f.findDocs, nil, nil)
}

func (f *fakeTicketCollection) CountDocuments(_ context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	f.countFilter = filter
	return f.countResult, nil
}

type fakeReplyCollection struct {
	insertedDoc interface{}
	findFilter  interface{}
	findDocs    []interface{}
}

func (f *fakeReplyCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.insertedDoc = document
	return &mongo.InsertOneResult{}, nil
}

func (f *fakeReplyCollection) Find(_ context.Context, filter interface{}, _ ...*options.FindOptions) (*mongo.Cursor, error) {
	f.findFilter = filter
	return mongo.NewCursorFromDocuments(f.findDocs, nil, nil)
}

func TestTicketCreateAssignsDefaults(t *testing.T) {
	collection := &fakeTicketCollection{}
	repo := NewTicketRepository(collection)

	ticket, err := repo.Create(context.Background(), Ticket{
		TgID:     "42",
		Username: "alice",
		UserStep: StepClub,
		Reason:   "Could not find the club",
		Resolved: true, // callers cannot pre-resolve
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.ID == "" {
		t.Fatalf("expected generated ticket id")
	}
	if ticket.Resolved {
		t.Fatalf("expected new ticket unresolved")
	}
	if ticket.CreatedAt.IsZero() {
		t.Fatalf("expected creation timestamp")
	}

	if _, err := repo.Create(context.Background(), Ticket{Reason: "no user"}); err == nil {
		t.Fatalf("expected error for missing tg_id")
	}
}

func TestTicketGet(t *testing.T) {
	collection := &fakeTicketCollection{
		findOneResult: mongo.NewSingleResultFromDocument(Ticket{ID: "t-1", TgID: "42"}, nil, nil),
	}
	repo := NewTicketRepository(collection)

	ticket, err := repo.Get(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.ID != "t-1" {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}

	collection.findOneResult = noDocsResult()
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTicketResolve(t *testing.T) {
	collection := &fakeTicketCollection{}
	repo := NewTicketRepository(collection)

	if err := repo.Resolve(context.Background(), "t-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	filter, ok := collection.updateFilter.(bson.M)
	if !ok || filter["id"] != "t-1" {
		t.Fatalf("expected id filter, got %v", collection.updateFilter)
	}
	update, ok := collection.updateDoc.(bson.M)
	if !ok {
		t.Fatalf("expected bson.M update, got %T", collection.updateDoc)
	}
	set, ok := update["$set"].(bson.M)
	if !ok || set["resolved"] != true {
		t.Fatalf("expected resolved flag set, got %v", update)
	}

	if err := repo.Resolve(context.Background(), ""); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestTicketCountPending(t *testing.T) {
	collection := &fakeTicketCollection{countResult: 3}
	repo := NewTicketRepository(collection)

	count, err := repo.CountPending(context.Background())
	if err != nil || count != 3 {
		t.Fatalf("expected 3, got %d err=%v", count, err)
	}
	filter, ok := collection.countFilter.(bson.M)
	if !ok || filter["resolved"] != false {
		t.Fatalf("expected resolved=false filter, got %v", collection.countFilter)
	}
}

func TestTicketAll(t *testing.T) {
	collection := &fakeTicketCollection{
		findDocs: []interface{}{
			Ticket{ID: "t-1", TgID: "1"},
			Ticket{ID: "t-2", TgID: "2"},
		},
	}
	repo := NewTicketRepository(collection)

	tickets, err := repo.All(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(tickets))
	}
}

func TestReplyAppend(t *testing.T) {
	collection := &fakeReplyCollection{}
	repo := NewReplyRepository(collection)

	reply, err := repo.Append(context.Background(), Reply{
		TicketID: "t-1",
		TgID:     "42",
		Source:   ReplySourceDashboard,
		Text:     "answer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.ID == "" || reply.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", reply)
	}

	if _, err := repo.Append(context.Background(), Reply{Text: "orphan"}); err == nil {
		t.Fatalf("expected error for missing ticket_id")
	}
	if _, err := repo.Append(context.Background(), Reply{TicketID: "t-1"}); err == nil {
		t.Fatalf("expected error for empty text")
	}
}

func TestReplyForTicket(t *testing.T) {
	collection := &fakeReplyCollection{
		findDocs: []interface{}{
			Reply{ID: "r-1", TicketID: "t-1", Text: "first"},
			Reply{ID: "r-2", TicketID: "t-1", Text: "second"},
		},
	}
	repo := NewReplyRepository(collection)

	replies, err := repo.ForTicket(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 2 || replies[0].Text != "first" {
		t.Fatalf("unexpected replies: %+v", replies)
	}

	filter, ok := collection.findFilter.(bson.M)
	if !ok || filter["ticket_id"] != "t-1" {
		t.Fatalf("expected ticket filter, got %v", collection.findFilter)
	}

	if _, err := repo.ForTicket(context.Background(), ""); err == nil {
		t.Fatalf("expected error for missing ticket id")
	}
}
