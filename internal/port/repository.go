package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/domain"
)

// Repository is the durable store behind the exchange. Everything the book
// or settlement mutates goes through a Tx so that one logical operation is
// one transaction.
type Repository interface {
	BeginTx(ctx context.Context) (Tx, error)

	// LoadOpenOrders returns all resting orders for a player ordered by
	// created_at ascending, so a reloaded book reproduces live ordering.
	LoadOpenOrders(ctx context.Context, playerID string) ([]*domain.Order, error)
	// ListPlayers returns the distinct player ids that have open orders.
	ListPlayers(ctx context.Context) ([]string, error)

	CreateUser(ctx context.Context, u *domain.User) error
	UserByID(ctx context.Context, userID string) (*domain.User, error)
	UserByUsername(ctx context.Context, username string) (*domain.User, error)
	AllUsers(ctx context.Context) ([]*domain.User, error)

	Holdings(ctx context.Context, userID string) ([]*domain.Holding, error)
	Holding(ctx context.Context, userID, playerID string) (*domain.Holding, error)

	// LastTradePrice reports the most recent execution price for a player.
	// ok is false when the player has never traded.
	LastTradePrice(ctx context.Context, playerID string) (price decimal.Decimal, ok bool, err error)

	UpsertCandle(ctx context.Context, c *domain.Candle) error
	CandleHistory(ctx context.Context, playerID, granularity string, limit int) ([]*domain.Candle, error)

	SavePortfolioValue(ctx context.Context, v *domain.PortfolioValue) error
	PortfolioHistory(ctx context.Context, userID string, limit int) ([]*domain.PortfolioValue, error)
}

// Tx is one durable transaction. Either every mutation commits or none do;
// callers must not touch in-memory state until Commit returns nil.
type Tx interface {
	// InsertOrder persists a resting order and returns its store-assigned id.
	InsertOrder(ctx context.Context, o *domain.Order) (int64, error)
	UpdateOrderQuantity(ctx context.Context, orderID, quantity int64) error
	// DeleteOrder reports whether a row was actually removed, so racing
	// cancels of the same id resolve to exactly one winner.
	DeleteOrder(ctx context.Context, orderID int64) (bool, error)
	InsertTrade(ctx context.Context, t *domain.Trade) (int64, error)

	// AdjustCash adds delta (negative to debit) to a user's balance and
	// reports whether the user row exists.
	AdjustCash(ctx context.Context, userID string, delta decimal.Decimal) (bool, error)
	// HoldingForUpdate reads a holding with a row lock; nil when absent.
	HoldingForUpdate(ctx context.Context, userID, playerID string) (*domain.Holding, error)
	UpsertHolding(ctx context.Context, h *domain.Holding) error
	ReduceHolding(ctx context.Context, userID, playerID string, quantity int64) error
	// DeleteHoldingIfEmpty drops the row once its quantity is zero or below.
	DeleteHoldingIfEmpty(ctx context.Context, userID, playerID string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithTx runs fn inside one transaction, rolling back unless fn and Commit
// both succeed.
func WithTx(ctx context.Context, repo Repository, fn func(Tx) error) error {
	tx, err := repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}
