package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bucket of a player's trade history.
type Candle struct {
	PlayerID    string          `json:"player_id"`
	Bucket      time.Time       `json:"timestamp"`
	Granularity string          `json:"granularity"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      int64           `json:"volume"`
}
