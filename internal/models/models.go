// Package models provides domain models for the trading bot.
package models

import "strings"

// Side represents the side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide validates a textual side. Only lower-case buy/sell are accepted.
func ParseSide(s string) (Side, bool) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), true
	}
	return "", false
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Units qualifies a Quantity value.
const (
	UnitsAbsolute         = ""
	UnitsPercent          = "%"
	UnitsPercentAvailable = "%%"
)

// Quantity is a number with an optional unit suffix: none, %, %% or a currency code.
type Quantity struct {
	Value float64
	Units string
}

// IsZero reports whether the quantity resolves to nothing.
func (q Quantity) IsZero() bool {
	return q.Value == 0
}

// Pair is a trading symbol split into its asset and currency legs.
type Pair struct {
	Asset    string
	Currency string
}

// IsCurrency reports whether units name the currency leg of the pair.
func (p Pair) IsCurrency(units string) bool {
	return units != "" && strings.ToLower(units) == p.Currency
}

// Balance is one wallet entry on an exchange.
type Balance struct {
	Type      string
	Currency  string
	Amount    float64
	Available float64
}

// Ticker is the top of the order book.
type Ticker struct {
	Bid       float64
	Ask       float64
	LastPrice float64
}

// Position is an open derivatives position, signed by direction.
type Position struct {
	Instrument string
	Size       float64
}

// Account is a derivatives account summary.
type Account struct {
	Equity         float64
	AvailableFunds float64
	Balance        float64
	PNL            float64
}

// NotifyOptions are the optional presentation fields of a notification.
// Channels that cannot render a field ignore it.
type NotifyOptions struct {
	Title  string
	Color  string
	Text   string
	Footer string
}
