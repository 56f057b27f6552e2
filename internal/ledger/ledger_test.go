package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athletix/exchange/internal/adapter/memory"
	"github.com/athletix/exchange/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedUsers(t *testing.T) (*memory.Repo, *Ledger, *domain.User, *domain.User) {
	t.Helper()
	repo := memory.NewRepo()
	l := New(repo, "maker")
	ctx := context.Background()

	buyer, err := l.CreateUser(ctx, "buyer", "hash", d("10000"))
	require.NoError(t, err)
	seller, err := l.CreateUser(ctx, "seller", "hash", d("10000"))
	require.NoError(t, err)
	return repo, l, buyer, seller
}

func trade(buyer, seller *domain.User, price string, qty int64) *domain.Trade {
	return &domain.Trade{
		ID:          1,
		PlayerID:    "player-1",
		Price:       d(price),
		Quantity:    qty,
		ExecutedAt:  time.Now(),
		TakerUserID: buyer.ID,
		MakerUserID: seller.ID,
		TakerSide:   domain.Buy,
	}
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

func TestApplyTradeMovesCashBothWays(t *testing.T) {
	repo, l, buyer, seller := seedUsers(t)
	ctx := context.Background()
	giveHolding(t, repo, seller.ID, "player-1", 20, "90")

	require.NoError(t, l.ApplyTrade(ctx, trade(buyer, seller, "101", 8)))

	b, err := l.UserByID(ctx, buyer.ID)
	require.NoError(t, err)
	assert.True(t, b.CashBalance.Equal(d("9192")), "10000 - 8*101, got %s", b.CashBalance)

	s, err := l.UserByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, s.CashBalance.Equal(d("10808")))
}

func TestApplyTradeRecomputesAverageCost(t *testing.T) {
	repo, l, buyer, seller := seedUsers(t)
	ctx := context.Background()
	giveHolding(t, repo, seller.ID, "player-1", 100, "50")
	giveHolding(t, repo, buyer.ID, "player-1", 10, "90")

	// 10 @ 90 held, buying 8 @ 101: avg = (900 + 808) / 18.
	require.NoError(t, l.ApplyTrade(ctx, trade(buyer, seller, "101", 8)))

	h, err := l.Holding(ctx, buyer.ID, "player-1")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(18), h.Quantity)
	assert.True(t, h.AvgCost.Equal(d("94.8889")), "got %s", h.AvgCost)

	sh, err := l.Holding(ctx, seller.ID, "player-1")
	require.NoError(t, err)
	require.NotNil(t, sh)
	assert.Equal(t, int64(92), sh.Quantity)
	assert.True(t, sh.AvgCost.Equal(d("50")), "selling never moves the seller's avg cost")
}

func TestApplyTradeDropsEmptiedHolding(t *testing.T) {
	repo, l, buyer, seller := seedUsers(t)
	ctx := context.Background()
	giveHolding(t, repo, seller.ID, "player-1", 8, "90")

	require.NoError(t, l.ApplyTrade(ctx, trade(buyer, seller, "101", 8)))

	h, err := l.Holding(ctx, seller.ID, "player-1")
	require.NoError(t, err)
	assert.Nil(t, h, "zero-quantity holding row is removed")

	all, err := l.Holdings(ctx, seller.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestApplyTradeUnknownSellerRollsBack(t *testing.T) {
	_, l, buyer, _ := seedUsers(t)
	ctx := context.Background()

	tr := trade(buyer, &domain.User{ID: "ghost"}, "101", 8)
	err := l.ApplyTrade(ctx, tr)
	require.ErrorIs(t, err, ErrUnknownUser)

	// The buyer debit from earlier in the transaction was rolled back.
	b, err := l.UserByID(ctx, buyer.ID)
	require.NoError(t, err)
	assert.True(t, b.CashBalance.Equal(d("10000")))
	h, err := l.Holding(ctx, buyer.ID, "player-1")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestApplyTradeCommitFailureRollsBack(t *testing.T) {
	repo, l, buyer, seller := seedUsers(t)
	ctx := context.Background()
	giveHolding(t, repo, seller.ID, "player-1", 20, "90")

	repo.FailCommits = 1
	err := l.ApplyTrade(ctx, trade(buyer, seller, "101", 8))
	require.ErrorIs(t, err, memory.ErrCommitFailed)

	b, _ := l.UserByID(ctx, buyer.ID)
	s, _ := l.UserByID(ctx, seller.ID)
	assert.True(t, b.CashBalance.Equal(d("10000")))
	assert.True(t, s.CashBalance.Equal(d("10000")))
	sh, _ := l.Holding(ctx, seller.ID, "player-1")
	require.NotNil(t, sh)
	assert.Equal(t, int64(20), sh.Quantity)
}

func TestApplyTradeMakerSellsFromFloat(t *testing.T) {
	repo, l, buyer, _ := seedUsers(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, &domain.User{
		ID: "maker", Username: "market_maker", CashBalance: decimal.Zero,
	}))

	// The maker holds no row; its shares come out of the float.
	require.NoError(t, l.ApplyTrade(ctx, trade(buyer, &domain.User{ID: "maker"}, "25", 4)))

	mk, err := l.UserByID(ctx, "maker")
	require.NoError(t, err)
	assert.True(t, mk.CashBalance.Equal(d("100")))
	h, err := l.Holding(ctx, buyer.ID, "player-1")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(4), h.Quantity)
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	_, l, _, _ := seedUsers(t)
	ctx := context.Background()

	_, err := l.CreateUser(ctx, "buyer", "hash", d("10000"))
	require.ErrorIs(t, err, ErrUsernameTaken)

	u, err := l.UserByUsername(ctx, "buyer")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.CashBalance.Equal(d("10000")))
}
