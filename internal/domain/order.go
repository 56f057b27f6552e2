package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Order is a resting limit order for one player's shares. ID is assigned by
// the store on insert and is stable for the order's lifetime. Quantity is the
// remaining quantity: it shrinks on partial fills and the order is removed
// from book and store when it reaches zero.
type Order struct {
	ID        int64           `json:"order_id"`
	UserID    string          `json:"user_id"`
	PlayerID  string          `json:"player_id"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
}

// Notional is price * remaining quantity.
func (o *Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}
