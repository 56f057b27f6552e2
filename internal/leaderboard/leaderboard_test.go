package leaderboard

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athletix/exchange/internal/adapter/memory"
	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/ledger"
	"github.com/athletix/exchange/internal/market"
)

const testMaker = "00000000-0000-0000-0000-000000000000"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTopRanksByTotalValue(t *testing.T) {
	repo := memory.NewRepo()
	l := ledger.New(repo, testMaker)
	m := market.New(repo, l, nil, testMaker)
	board := New(repo, m)
	ctx := context.Background()

	require.NoError(t, repo.CreateUser(ctx, &domain.User{
		ID: testMaker, Username: "market_maker", CashBalance: d("99999999"),
	}))
	alice, err := l.CreateUser(ctx, "alice", "hash", d("1000"))
	require.NoError(t, err)
	bob, err := l.CreateUser(ctx, "bob", "hash", d("1000"))
	require.NoError(t, err)
	_, err = l.CreateUser(ctx, "carol", "hash", d("900"))
	require.NoError(t, err)

	// Alice buys 10 shares at 20 from Bob's listing-free ask: her cash drops
	// but the position is valued at the last trade, leaving her flat with Bob
	// richer than Carol's idle cash.
	giveHolding(t, repo, bob.ID, "player-1", 10, "20")
	_, _, err = m.PlaceOrder(ctx, "player-1", bob.ID, domain.Sell, d("20"), 10)
	require.NoError(t, err)
	_, _, err = m.PlaceOrder(ctx, "player-1", alice.ID, domain.Buy, d("20"), 10)
	require.NoError(t, err)

	entries, err := board.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3, "market maker is excluded")

	byName := map[string]decimal.Decimal{}
	for _, e := range entries {
		byName[e.Username] = e.TotalValue
	}
	assert.True(t, byName["alice"].Equal(d("1000")), "800 cash + 10*20 position")
	assert.True(t, byName["bob"].Equal(d("1200")))
	assert.True(t, byName["carol"].Equal(d("900")))
	assert.Equal(t, "bob", entries[0].Username)
	assert.Equal(t, "carol", entries[2].Username)

	top1, err := board.Top(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top1, 1)
	assert.Equal(t, "bob", top1[0].Username)
}

func TestTopFallsBackToAvgCostWhenNeverTraded(t *testing.T) {
	repo := memory.NewRepo()
	l := ledger.New(repo, testMaker)
	m := market.New(repo, l, nil, testMaker)
	board := New(repo, m)
	ctx := context.Background()

	dana, err := l.CreateUser(ctx, "dana", "hash", d("100"))
	require.NoError(t, err)
	giveHolding(t, repo, dana.ID, "player-9", 5, "30")

	entries, err := board.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].TotalValue.Equal(d("250")), "100 cash + 5*30 at avg cost")
}

func giveHolding(t *testing.T, repo *memory.Repo, userID, playerID string, qty int64, avg string) {
	t.Helper()
	ctx := context.Background()
	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertHolding(ctx, &domain.Holding{
		UserID: userID, PlayerID: playerID, Quantity: qty, AvgCost: d(avg),
	}))
	require.NoError(t, tx.Commit(ctx))
}
