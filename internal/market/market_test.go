package market

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athletix/exchange/internal/adapter/memory"
	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/ledger"
)

const (
	testMaker  = "00000000-0000-0000-0000-000000000000"
	testPlayer = "player-1"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestMarket(t *testing.T) (*memory.Repo, *ledger.Ledger, *Market) {
	t.Helper()
	repo := memory.NewRepo()
	l := ledger.New(repo, testMaker)
	m := New(repo, l, nil, testMaker)
	require.NoError(t, repo.CreateUser(context.Background(), &domain.User{
		ID: testMaker, Username: "market_maker", CashBalance: decimal.Zero,
	}))
	return repo, l, m
}

func newUser(t *testing.T, l *ledger.Ledger, name, cash string) *domain.User {
	t.Helper()
	u, err := l.CreateUser(context.Background(), name, "hash", d(cash))
	require.NoError(t, err)
	return u
}

func TestPlaceOrderSettlesExecutions(t *testing.T) {
	_, l, m := newTestMarket(t)
	ctx := context.Background()

	alice := newUser(t, l, "alice", "10000")
	bob := newUser(t, l, "bob", "10000")

	_, _, err := m.PlaceOrder(ctx, testPlayer, testMaker, domain.Sell, d("10"), 100)
	require.NoError(t, err)

	_, trades, err := m.PlaceOrder(ctx, testPlayer, alice.ID, domain.Buy, d("10"), 30)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	a, err := l.UserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, a.CashBalance.Equal(d("9700")))
	h, err := l.Holding(ctx, alice.ID, testPlayer)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(30), h.Quantity)
	assert.True(t, h.AvgCost.Equal(d("10")))

	// Alice sells some of her position to Bob via a crossing bid.
	_, _, err = m.PlaceOrder(ctx, testPlayer, bob.ID, domain.Buy, d("12"), 10)
	require.NoError(t, err)
	_, trades, err = m.PlaceOrder(ctx, testPlayer, alice.ID, domain.Sell, d("11"), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(d("12")), "resting bid sets the price")

	a, _ = l.UserByID(ctx, alice.ID)
	assert.True(t, a.CashBalance.Equal(d("9820")), "9700 + 10*12")
	h, _ = l.Holding(ctx, alice.ID, testPlayer)
	require.NotNil(t, h)
	assert.Equal(t, int64(20), h.Quantity)

	price, traded, err := m.LastPrice(ctx, testPlayer)
	require.NoError(t, err)
	require.True(t, traded)
	assert.True(t, price.Equal(d("12")))
}

func TestPlaceOrderRecordsHistory(t *testing.T) {
	_, l, m := newTestMarket(t)
	ctx := context.Background()
	alice := newUser(t, l, "alice", "10000")

	_, _, err := m.PlaceOrder(ctx, testPlayer, testMaker, domain.Sell, d("10"), 100)
	require.NoError(t, err)
	_, _, err = m.PlaceOrder(ctx, testPlayer, alice.ID, domain.Buy, d("10"), 5)
	require.NoError(t, err)

	summary, err := m.Tracker(testPlayer).Summary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.CurrentPrice.Equal(d("10")))
	require.Len(t, summary.Prices, 1)
	assert.True(t, summary.Prices[0].Price.Equal(d("10")))
}

func TestCancelOrderChecksOwnership(t *testing.T) {
	_, l, m := newTestMarket(t)
	ctx := context.Background()
	alice := newUser(t, l, "alice", "10000")
	bob := newUser(t, l, "bob", "10000")

	orderID, _, err := m.PlaceOrder(ctx, testPlayer, alice.ID, domain.Buy, d("10"), 5)
	require.NoError(t, err)
	require.NotZero(t, orderID)

	ok, err := m.CancelOrder(ctx, testPlayer, bob.ID, orderID)
	require.NoError(t, err)
	assert.False(t, ok, "only the owner can cancel")

	ok, err = m.CancelOrder(ctx, testPlayer, alice.ID, orderID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CancelOrder(ctx, testPlayer, alice.ID, orderID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckBuyingPowerCountsOpenOrders(t *testing.T) {
	_, l, m := newTestMarket(t)
	ctx := context.Background()
	alice := newUser(t, l, "alice", "1000")

	ok, err := m.CheckBuyingPower(ctx, alice.ID, d("1000"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.CheckBuyingPower(ctx, alice.ID, d("1000.01"))
	require.NoError(t, err)
	assert.False(t, ok)

	// A resting bid on another player's book commits funds too.
	_, _, err = m.PlaceOrder(ctx, "player-2", alice.ID, domain.Buy, d("60"), 10)
	require.NoError(t, err)

	ok, err = m.CheckBuyingPower(ctx, alice.ID, d("400"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.CheckBuyingPower(ctx, alice.ID, d("401"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.CheckBuyingPower(ctx, "ghost", d("1"))
	require.ErrorIs(t, err, ledger.ErrUnknownUser)
}

func TestCheckAvailableSharesCountsOpenSells(t *testing.T) {
	_, l, m := newTestMarket(t)
	ctx := context.Background()
	alice := newUser(t, l, "alice", "10000")

	ok, err := m.CheckAvailableShares(ctx, alice.ID, testPlayer, 1)
	require.NoError(t, err)
	assert.False(t, ok, "no holding means nothing to sell")

	_, _, err = m.PlaceOrder(ctx, testPlayer, testMaker, domain.Sell, d("10"), 100)
	require.NoError(t, err)
	_, _, err = m.PlaceOrder(ctx, testPlayer, alice.ID, domain.Buy, d("10"), 30)
	require.NoError(t, err)

	ok, err = m.CheckAvailableShares(ctx, alice.ID, testPlayer, 30)
	require.NoError(t, err)
	assert.True(t, ok)

	// Rest a sell above the market, then try to sell the rest plus one.
	_, _, err = m.PlaceOrder(ctx, testPlayer, alice.ID, domain.Sell, d("20"), 10)
	require.NoError(t, err)
	ok, err = m.CheckAvailableShares(ctx, alice.ID, testPlayer, 20)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.CheckAvailableShares(ctx, alice.ID, testPlayer, 21)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListInstrument(t *testing.T) {
	_, _, m := newTestMarket(t)
	ctx := context.Background()

	orderID, err := m.ListInstrument(ctx, testPlayer, d("25"), 5000)
	require.NoError(t, err)
	require.NotZero(t, orderID)

	price, ok, err := m.IPOPrice(ctx, testPlayer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(d("25")))

	depth, err := m.Depth(ctx, testPlayer)
	require.NoError(t, err)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, int64(5000), depth.Asks[0].Quantity)

	// Listing twice is a no-op while the maker's ask rests.
	again, err := m.ListInstrument(ctx, testPlayer, d("30"), 1000)
	require.NoError(t, err)
	assert.Zero(t, again)

	_, ok, err = m.IPOPrice(ctx, "unlisted")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadOpenOrdersRebuildsEveryBook(t *testing.T) {
	repo, l, m := newTestMarket(t)
	ctx := context.Background()
	alice := newUser(t, l, "alice", "10000")

	_, err := m.ListInstrument(ctx, "player-1", d("10"), 100)
	require.NoError(t, err)
	_, err = m.ListInstrument(ctx, "player-2", d("20"), 100)
	require.NoError(t, err)
	_, _, err = m.PlaceOrder(ctx, "player-1", alice.ID, domain.Buy, d("9"), 5)
	require.NoError(t, err)

	restarted := New(repo, ledger.New(repo, testMaker), nil, testMaker)
	require.NoError(t, restarted.LoadOpenOrders(ctx))
	assert.ElementsMatch(t, []string{"player-1", "player-2"}, restarted.Players())

	d1, err := restarted.Depth(ctx, "player-1")
	require.NoError(t, err)
	require.Len(t, d1.Bids, 1)
	require.Len(t, d1.Asks, 1)
	assert.Equal(t, int64(5), d1.Bids[0].Quantity)
	assert.Equal(t, int64(100), d1.Asks[0].Quantity)
}
