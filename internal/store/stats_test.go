package store

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_funnel_bot/internal/domain"
)

func TestStatsProviderCountsCollections(t *testing.T) {
	sessions := &stubCountCollection{count: 12}
	payments := &stubPaymentStatsCollection{stubCountCollection: stubCountCollection{count: 4}}
	tickets := &stubCountCollection{count: 2}

	provider := NewStatsProvider(sessions, payments, tickets)

	ctx := context.Background()

	userCount, err := provider.CountUsers(ctx)
	if err != nil {
		t.Fatalf("expected user count to succeed, got error: %v", err)
	}
	if userCount != 12 {
		t.Fatalf("expected 12 users, got %d", userCount)
	}
	if sessions.calls != 1 {
		t.Fatalf("expected sessions count to be called once, got %d", sessions.calls)
	}

	paidCount, err := provider.CountPaymentsByStatus(ctx, domain.PaymentPaid)
	if err != nil {
		t.Fatalf("expected payment count to succeed, got error: %v", err)
	}
	if paidCount != 4 {
		t.Fatalf("expected 4 payments, got %d", paidCount)
	}
	filter, ok := payments.lastFilter.(bson.M)
	if !ok || filter["status"] != domain.PaymentPaid {
		t.Fatalf("expected status filter for %s, got %v", domain.PaymentPaid, payments.lastFilter)
	}

	pendingCount, err := provider.CountPendingTickets(ctx)
	if err != nil {
		t.Fatalf("expected ticket count to succeed, got error: %v", err)
	}
	if pendingCount != 2 {
		t.Fatalf("expected 2 pending tickets, got %d", pendingCount)
	}
	ticketFilter, ok := tickets.lastFilter.(bson.M)
	if !ok || ticketFilter["resolved"] != false {
		t.Fatalf("expected resolved=false filter, got %v", tickets.lastFilter)
	}
}

func TestStatsProviderSumsPaidAmounts(t *testing.T) {
	payments := &stubPaymentStatsCollection{aggregateDocs: []interface{}{
		bson.M{"total": int64(1500)},
	}}
	provider := NewStatsProvider(&stubCountCollection{}, payments, &stubCountCollection{})

	total, err := provider.SumPaymentsByStatus(context.Background(), domain.PaymentPaid)
	if err != nil {
		t.Fatalf("expected sum to succeed, got error: %v", err)
	}
	if total != 1500 {
		t.Fatalf("expected total 1500, got %d", total)
	}
	if payments.aggregateCalls != 1 {
		t.Fatalf("expected one aggregation, got %d", payments.aggregateCalls)
	}
}

func TestStatsProviderSumWithoutPaymentsIsZero(t *testing.T) {
	payments := &stubPaymentStatsCollection{}
	provider := NewStatsProvider(&stubCountCollection{}, payments, &stubCountCollection{})

	total, err := provider.SumPaymentsByStatus(context.Background(), domain.PaymentPaid)
	if err != nil {
		t.Fatalf("expected sum to succeed, got error: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected zero total, got %d", total)
	}
}

func TestStatsProviderRequiresContext(t *testing.T) {
	provider := NewStatsProvider(&stubCountCollection{}, &stubPaymentStatsCollection{}, &stubCountCollection{})

	if _, err := provider.CountUsers(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := provider.CountPaymentsByStatus(nil, domain.PaymentPaid); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := provider.SumPaymentsByStatus(nil, domain.PaymentPaid); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := provider.CountPendingTickets(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
}

func TestStatsProviderRequiresInitialization(t *testing.T) {
	var provider *StatsProvider

	if _, err := provider.CountUsers(context.Background()); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := provider.CountPaymentsByStatus(context.Background(), domain.PaymentPaid); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := provider.SumPaymentsByStatus(context.Background(), domain.PaymentPaid); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := provider.CountPendingTickets(context.Background()); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}

func TestStatsProviderPropagatesErrors(t *testing.T) {
	expectedErr := errors.New("count failed")
	provider := NewStatsProvider(
		&stubCountCollection{err: expectedErr},
		&stubPaymentStatsCollection{
			stubCountCollection: stubCountCollection{err: expectedErr},
			aggregateErr:        expectedErr,
		},
		&stubCountCollection{err: expectedErr},
	)

	if _, err := provider.CountUsers(context.Background()); err == nil {
		t.Fatalf("expected error from user count")
	}
	if _, err := provider.CountPaymentsByStatus(context.Background(), domain.PaymentPaid); err == nil {
		t.Fatalf("expected error from payment count")
	}
	if _, err := provider.SumPaymentsByStatus(context.Background(), domain.PaymentPaid); err == nil {
		t.Fatalf("expected error from payment sum")
	}
	if _, err := provider.CountPendingTickets(context.Background()); err == nil {
		t.Fatalf("expected error from ticket count")
	}
}

type stubCountCollection struct {
	count      int64
	err        error
	calls      int
	lastFilter interface{}
}

func (s *stubCountCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	s.calls++
	s.lastFilter = filter
	return s.count, s.err
}

type stubPaymentStatsCollection struct {
	stubCountCollection
	aggregateDocs  []interface{}
	aggregateErr   error
	aggregateCalls int
}

func (s *stubPaymentStatsCollection) Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error) {
	s.aggregateCalls++
	if s.aggregateErr != nil {
		return nil, s.aggregateErr
	}
	docs := s.aggregateDocs
	if docs == nil {
		docs = []interface{}{}
	}
	return mongo.NewCursorFromDocuments(docs, nil, nil)
}
