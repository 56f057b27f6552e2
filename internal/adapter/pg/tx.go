package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/port"
)

var _ port.Tx = (*Tx)(nil)

// Tx wraps one pgx transaction.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) InsertOrder(ctx context.Context, o *domain.Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
INSERT INTO orders(user_id, player_id, side, price, quantity, created_at)
VALUES($1,$2,$3,$4,$5,$6)
RETURNING order_id
`, o.UserID, o.PlayerID, string(o.Side), o.Price, o.Quantity, o.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pg: insert order: %w", err)
	}
	return id, nil
}

func (t *Tx) UpdateOrderQuantity(ctx context.Context, orderID, quantity int64) error {
	res, err := t.tx.Exec(ctx, `
UPDATE orders SET quantity = $1 WHERE order_id = $2
`, quantity, orderID)
	if err != nil {
		return fmt.Errorf("pg: update order quantity: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("pg: update order quantity: order %d not found", orderID)
	}
	return nil
}

func (t *Tx) DeleteOrder(ctx context.Context, orderID int64) (bool, error) {
	res, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		return false, fmt.Errorf("pg: delete order: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

func (t *Tx) InsertTrade(ctx context.Context, tr *domain.Trade) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
INSERT INTO trades(
  player_id, price, quantity, executed_at,
  taker_order_id, maker_order_id, taker_user_id, maker_user_id, taker_order_side
) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING trade_id
`, tr.PlayerID, tr.Price, tr.Quantity, tr.ExecutedAt,
		tr.TakerOrderID, tr.MakerOrderID, tr.TakerUserID, tr.MakerUserID, string(tr.TakerSide)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pg: insert trade: %w", err)
	}
	return id, nil
}

func (t *Tx) AdjustCash(ctx context.Context, userID string, delta decimal.Decimal) (bool, error) {
	res, err := t.tx.Exec(ctx, `
UPDATE users SET cash_balance = cash_balance + $1 WHERE user_id = $2
`, delta, userID)
	if err != nil {
		return false, fmt.Errorf("pg: adjust cash: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

func (t *Tx) HoldingForUpdate(ctx context.Context, userID, playerID string) (*domain.Holding, error) {
	var h domain.Holding
	err := t.tx.QueryRow(ctx, `
SELECT user_id, player_id, quantity, avg_cost
FROM holdings
WHERE user_id = $1 AND player_id = $2
FOR UPDATE
`, userID, playerID).Scan(&h.UserID, &h.PlayerID, &h.Quantity, &h.AvgCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: holding for update: %w", err)
	}
	return &h, nil
}

func (t *Tx) UpsertHolding(ctx context.Context, h *domain.Holding) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO holdings(user_id, player_id, quantity, avg_cost)
VALUES($1,$2,$3,$4)
ON CONFLICT (user_id, player_id) DO UPDATE SET
  quantity = EXCLUDED.quantity,
  avg_cost = EXCLUDED.avg_cost
`, h.UserID, h.PlayerID, h.Quantity, h.AvgCost)
	if err != nil {
		return fmt.Errorf("pg: upsert holding: %w", err)
	}
	return nil
}

func (t *Tx) ReduceHolding(ctx context.Context, userID, playerID string, quantity int64) error {
	res, err := t.tx.Exec(ctx, `
UPDATE holdings SET quantity = quantity - $1
WHERE user_id = $2 AND player_id = $3
`, quantity, userID, playerID)
	if err != nil {
		return fmt.Errorf("pg: reduce holding: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("pg: reduce holding: no holding for user %s player %s", userID, playerID)
	}
	return nil
}

func (t *Tx) DeleteHoldingIfEmpty(ctx context.Context, userID, playerID string) error {
	_, err := t.tx.Exec(ctx, `
DELETE FROM holdings WHERE user_id = $1 AND player_id = $2 AND quantity <= 0
`, userID, playerID)
	if err != nil {
		return fmt.Errorf("pg: delete emptied holding: %w", err)
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
