package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable execution record produced by the matching engine.
// The price is always the maker's (resting) price. TakerOrderID is zero when
// the incoming order never rested in the book.
type Trade struct {
	ID           int64           `json:"trade_id"`
	PlayerID     string          `json:"player_id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
	ExecutedAt   time.Time       `json:"timestamp"`
	TakerOrderID int64           `json:"taker_order_id"`
	MakerOrderID int64           `json:"maker_order_id"`
	TakerUserID  string          `json:"taker_user_id"`
	MakerUserID  string          `json:"maker_user_id"`
	TakerSide    Side            `json:"taker_side"`
}

// BuyerID returns the user id of the buying party.
func (t *Trade) BuyerID() string {
	if t.TakerSide == Buy {
		return t.TakerUserID
	}
	return t.MakerUserID
}

// SellerID returns the user id of the selling party.
func (t *Trade) SellerID() string {
	if t.TakerSide == Buy {
		return t.MakerUserID
	}
	return t.TakerUserID
}

// Notional is price * quantity.
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}
