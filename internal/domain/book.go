package domain

import "github.com/shopspring/decimal"

// PriceLevel is aggregate resting quantity at one price.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// BookDepth is the aggregated view of a book: bids descending by price,
// asks ascending. Only live resting orders contribute.
type BookDepth struct {
	PlayerID string       `json:"player_id"`
	Bids     []PriceLevel `json:"bids"`
	Asks     []PriceLevel `json:"asks"`
}
