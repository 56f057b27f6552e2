package snapshot

import (
	"context"
	"testing"
	"time"

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

func TestSnapshotRecordsEveryUser(t *testing.T) {
	repo := memory.NewRepo()
	l := ledger.New(repo, testMaker)
	m := market.New(repo, l, nil, testMaker)
	ctx := context.Background()

	alice, err := l.CreateUser(ctx, "alice", "hash", d("500"))
	require.NoError(t, err)
	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertHolding(ctx, &domain.Holding{
		UserID: alice.ID, PlayerID: "player-1", Quantity: 4, AvgCost: d("25"),
	}))
	require.NoError(t, tx.Commit(ctx))

	s := New(repo, m, time.Hour)
	now := time.Date(2026, 3, 14, 15, 4, 5, 0, time.UTC)
	require.NoError(t, s.snapshot(ctx, now))

	points, err := repo.PortfolioHistory(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, points[0].TotalValue.Equal(d("600")), "500 cash + 4*25 at avg cost")
	assert.Equal(t, now.Truncate(time.Second), points[0].RecordedAt)
}

func TestStartStop(t *testing.T) {
	repo := memory.NewRepo()
	l := ledger.New(repo, testMaker)
	m := market.New(repo, l, nil, testMaker)

	s := New(repo, m, 5*time.Millisecond)
	s.Start()

	_, err := l.CreateUser(context.Background(), "alice", "hash", d("100"))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())
}
