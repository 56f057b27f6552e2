package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterResponse struct {
	UserID  string `json:"user_id"`
	Message string `json:"message,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type PlaceOrderRequest struct {
	PlayerID string          `json:"player_id" binding:"required"`
	Side     string          `json:"side" binding:"required"`
	Price    decimal.Decimal `json:"price" binding:"required"`
	Quantity int64           `json:"quantity" binding:"required"`
}

type PlaceOrderResponse struct {
	OrderID int64   `json:"order_id,omitempty"` // zero when fully filled
	Trades  []Trade `json:"trades_executed"`
	Message string  `json:"message,omitempty"`
}

type CancelOrderRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	OrderID  int64  `json:"order_id" binding:"required"`
}

type CancelOrderResponse struct {
	OrderID   int64 `json:"order_id"`
	Cancelled bool  `json:"cancelled"`
}

type ListInstrumentRequest struct {
	PlayerID string          `json:"player_id" binding:"required"`
	IPOPrice decimal.Decimal `json:"ipo_price" binding:"required"`
	Float    int64           `json:"float" binding:"required"`
}

type ListInstrumentResponse struct {
	PlayerID string `json:"player_id"`
	OrderID  int64  `json:"order_id,omitempty"`
	Listed   bool   `json:"listed"`
}

type Trade struct {
	TradeID   int64           `json:"trade_id"`
	PlayerID  string          `json:"player_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
	TakerSide string          `json:"taker_side"`
}

type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type OrderBookResponse struct {
	PlayerID string       `json:"player_id"`
	Bids     []PriceLevel `json:"bids"`
	Asks     []PriceLevel `json:"asks"`
}

type HoldingSummary struct {
	PlayerID    string          `json:"player_id"`
	Quantity    int64           `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	MarketValue decimal.Decimal `json:"market_value"`
}

type PortfolioPoint struct {
	Time  time.Time       `json:"time"`
	Value decimal.Decimal `json:"value"`
}

type PortfolioResponse struct {
	CashBalance decimal.Decimal  `json:"cash_balance"`
	TotalValue  decimal.Decimal  `json:"total_value"`
	Holdings    []HoldingSummary `json:"holdings"`
	History     []PortfolioPoint `json:"history"`
}

type PlayerInfoResponse struct {
	PlayerID string          `json:"player_id"`
	IPOPrice decimal.Decimal `json:"ipo_price"`
}

type PlayersResponse struct {
	Players []string `json:"players"`
}
