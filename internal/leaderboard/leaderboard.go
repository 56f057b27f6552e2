package leaderboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/market"
	"github.com/athletix/exchange/internal/port"
)

// Entry is one leaderboard row.
type Entry struct {
	Username   string          `json:"username"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Board ranks users by total portfolio value: cash plus holdings valued at
// the last traded price, falling back to average cost for players that have
// never traded. The market-maker account is excluded.
type Board struct {
	repo   port.Repository
	market *market.Market
}

func New(repo port.Repository, m *market.Market) *Board {
	return &Board{repo: repo, market: m}
}

func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	users, err := b.repo.AllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: load users: %w", err)
	}

	entries := make([]Entry, 0, len(users))
	for _, u := range users {
		if u.ID == b.market.MakerID() {
			continue
		}
		total := u.CashBalance
		holdings, err := b.repo.Holdings(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("leaderboard: load holdings for %s: %w", u.ID, err)
		}
		for _, h := range holdings {
			price, ok, err := b.market.LastPrice(ctx, h.PlayerID)
			if err != nil {
				return nil, fmt.Errorf("leaderboard: last price for %s: %w", h.PlayerID, err)
			}
			if !ok {
				price = h.AvgCost
			}
			total = total.Add(price.Mul(decimal.NewFromInt(h.Quantity)))
		}
		entries = append(entries, Entry{Username: u.Username, TotalValue: total})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TotalValue.GreaterThan(entries[j].TotalValue)
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}
