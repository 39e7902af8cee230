package models

import "time"

// Trigger is the price a stop order is triggered from.
type Trigger string

const (
	TriggerMark  Trigger = "mark"
	TriggerIndex Trigger = "index"
	TriggerLast  Trigger = "last"
)

// OrderKind identifies how an order was placed.
type OrderKind string

const (
	OrderKindLimit  OrderKind = "limit"
	OrderKindMarket OrderKind = "market"
	OrderKindStop   OrderKind = "stop"
)

// Order is an opaque handle returned by an adapter when an order is placed.
type Order struct {
	ID       string
	Symbol   string
	Kind     OrderKind
	Side     Side
	Amount   float64
	Price    float64
	PlacedAt time.Time
}

// OrderStatus is the result of querying an order.
type OrderStatus struct {
	ID        string
	Side      Side
	Amount    float64
	Remaining float64
	Executed  float64
	IsFilled  bool
	IsOpen    bool
}

// OrderResult is what an order command resolves with. Order is nil when
// nothing was placed (a zero-size no-op or a failed slot in a fan-out).
type OrderResult struct {
	Order  *Order
	Side   Side
	Price  float64
	Amount float64
	Units  string
}

// Placed reports whether the result carries a live order handle.
func (r OrderResult) Placed() bool {
	return r.Order != nil
}

// SizeResult is the outcome of sizing an order against wallet balances.
type SizeResult struct {
	Total          float64
	Available      float64
	IsAllAvailable bool
	OrderSize      float64
}

// OrderRecord is one journal entry for a placed order.
type OrderRecord struct {
	Exchange string    `json:"exchange"`
	Symbol   string    `json:"symbol"`
	Session  string    `json:"session"`
	Tag      string    `json:"tag,omitempty"`
	OrderID  string    `json:"order_id"`
	Kind     OrderKind `json:"kind"`
	Side     Side      `json:"side"`
	Amount   float64   `json:"amount"`
	Price    float64   `json:"price,omitempty"`
	PlacedAt time.Time `json:"placed_at"`
}
