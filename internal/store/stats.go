// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type paymentStatsCollection interface {
	countCollection
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

// StatsProvider exposes helper methods to retrieve collection counts for the
// dashboard without leaking MongoDB internals to callers.
type StatsProvider struct {
	sessions countCollection
	payments paymentStatsCollection
	tickets  countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the provided
// collections.
func NewStatsProvider(sessions countCollection, payments paymentStatsCollection, tickets countCollection) *StatsProvider {
	return &StatsProvider{
		sessions: sessions,
		payments: payments,
		tickets:  tickets,
	}
}

// CountUsers returns the number of known funnel sessions.
func (p *StatsProvider) CountUsers(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.sessions == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.sessions.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}

// CountPaymentsByStatus returns the number of payments in the given status.
func (p *StatsProvider) CountPaymentsByStatus(ctx context.Context, status string) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.payments == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.payments.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}

	return count, nil
}

// SumPaymentsByStatus returns the total amount across payments in the given
// status.
func (p *StatsProvider) SumPaymentsByStatus(ctx context.Context, status string) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.payments == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": status}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
	}
	cursor, err := p.payments.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("decode payment sum: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// CountPendingTickets returns the number of unresolved manager tickets.
func (p *StatsProvider) CountPendingTickets(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.tickets == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.tickets.CountDocuments(ctx, bson.M{"resolved": false})
	if err != nil {
		return 0, fmt.Errorf("count pending tickets: %w", err)
	}

	return count, nil
}
