// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"instabot-trader/internal/models"
)

// OrderJournal defines the interface for the order audit trail.
type OrderJournal interface {
	// Append records one placed order.
	Append(ctx context.Context, rec models.OrderRecord) error

	// Orders lists recorded orders, newest first.
	Orders(ctx context.Context, filter OrderFilter) ([]models.OrderRecord, error)

	// Stats summarises recorded orders per exchange and side.
	Stats(ctx context.Context, filter OrderFilter) ([]OrderStats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// OrderFilter represents filters for querying orders.
type OrderFilter struct {
	Exchange string
	Symbol   string
	Session  string
	Tag      string
	Side     models.Side
	Since    time.Time
	Until    time.Time
	Limit    int
}

// OrderStats is the aggregate of recorded orders for one exchange and side.
type OrderStats struct {
	Exchange    string
	Side        models.Side
	Orders      int
	TotalAmount float64
	FirstAt     time.Time
	LastAt      time.Time
}
