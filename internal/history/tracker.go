package history

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/port"
)

const (
	// Granularity of the stored candle series.
	granularity = "1h"
	bucketSize  = time.Hour

	historyLimit = 100
)

// Tracker aggregates one player's executions into persisted OHLCV buckets
// for charting.
type Tracker struct {
	playerID string
	repo     port.Repository
}

func NewTracker(playerID string, repo port.Repository) *Tracker {
	return &Tracker{playerID: playerID, repo: repo}
}

// RecordTrade folds one execution into the candle bucket covering its
// timestamp. The store upsert keeps the open, extends high/low, replaces the
// close and accumulates volume.
func (t *Tracker) RecordTrade(ctx context.Context, price decimal.Decimal, quantity int64, at time.Time) error {
	c := &domain.Candle{
		PlayerID:    t.playerID,
		Bucket:      at.UTC().Truncate(bucketSize),
		Granularity: granularity,
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		Volume:      quantity,
	}
	if err := t.repo.UpsertCandle(ctx, c); err != nil {
		return fmt.Errorf("record trade for %s: %w", t.playerID, err)
	}
	return nil
}

// PricePoint is one close in a player's price series.
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// Summary is the chart payload: last traded price plus recent closes.
type Summary struct {
	CurrentPrice decimal.Decimal `json:"current_price"`
	Prices       []PricePoint    `json:"prices"`
}

// Summary returns the player's current price (last trade, zero if none) and
// up to the last hundred hourly closes in ascending time order.
func (t *Tracker) Summary(ctx context.Context) (*Summary, error) {
	price, ok, err := t.repo.LastTradePrice(ctx, t.playerID)
	if err != nil {
		return nil, fmt.Errorf("last trade price for %s: %w", t.playerID, err)
	}
	if !ok {
		price = decimal.Zero
	}

	candles, err := t.repo.CandleHistory(ctx, t.playerID, granularity, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("candle history for %s: %w", t.playerID, err)
	}
	points := make([]PricePoint, 0, len(candles))
	for _, c := range candles {
		points = append(points, PricePoint{Time: c.Bucket, Price: c.Close})
	}
	return &Summary{CurrentPrice: price, Prices: points}, nil
}
