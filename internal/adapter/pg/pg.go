package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/port"
)

var _ port.Repository = (*Repo)(nil)

// Repo is the Postgres-backed durable store.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo connects a pool to dsn. Call Close when finished with the store.
func NewRepo(ctx context.Context, dsn string) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// NewRepoFromPool wraps an existing pool.
func NewRepoFromPool(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Migrate applies the schema DDL. Idempotent.
func (r *Repo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

func (r *Repo) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// LoadOpenOrders returns a player's resting orders in submission order, so a
// reloaded book reproduces the live price-time priority.
func (r *Repo) LoadOpenOrders(ctx context.Context, playerID string) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
SELECT order_id, user_id, player_id, side, price, quantity, created_at
FROM orders
WHERE player_id = $1
ORDER BY created_at ASC, order_id ASC
`, playerID)
	if err != nil {
		return nil, fmt.Errorf("pg: load open orders: %w", err)
	}
	defer rows.Close()

	var res []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side string
		if err := rows.Scan(&o.ID, &o.UserID, &o.PlayerID, &side, &o.Price, &o.Quantity, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan order: %w", err)
		}
		o.Side = domain.Side(side)
		res = append(res, &o)
	}
	return res, rows.Err()
}

func (r *Repo) ListPlayers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT player_id FROM orders`)
	if err != nil {
		return nil, fmt.Errorf("pg: list players: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pg: scan player id: %w", err)
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func (r *Repo) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO users(user_id, username, password_hash, cash_balance)
VALUES($1,$2,$3,$4)
`, u.ID, u.Username, u.PasswordHash, u.CashBalance)
	if err != nil {
		return fmt.Errorf("pg: create user: %w", err)
	}
	return nil
}

func (r *Repo) UserByID(ctx context.Context, userID string) (*domain.User, error) {
	return r.userBy(ctx, `WHERE user_id = $1`, userID)
}

func (r *Repo) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.userBy(ctx, `WHERE username = $1`, username)
}

func (r *Repo) userBy(ctx context.Context, where string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, username, password_hash, cash_balance FROM users `+where, arg,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CashBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: load user: %w", err)
	}
	return &u, nil
}

func (r *Repo) AllUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.pool.Query(ctx, `
SELECT user_id, username, password_hash, cash_balance FROM users
`)
	if err != nil {
		return nil, fmt.Errorf("pg: all users: %w", err)
	}
	defer rows.Close()

	var res []*domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CashBalance); err != nil {
			return nil, fmt.Errorf("pg: scan user: %w", err)
		}
		res = append(res, &u)
	}
	return res, rows.Err()
}

func (r *Repo) Holdings(ctx context.Context, userID string) ([]*domain.Holding, error) {
	rows, err := r.pool.Query(ctx, `
SELECT user_id, player_id, quantity, avg_cost
FROM holdings
WHERE user_id = $1
`, userID)
	if err != nil {
		return nil, fmt.Errorf("pg: holdings: %w", err)
	}
	defer rows.Close()

	var res []*domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.UserID, &h.PlayerID, &h.Quantity, &h.AvgCost); err != nil {
			return nil, fmt.Errorf("pg: scan holding: %w", err)
		}
		res = append(res, &h)
	}
	return res, rows.Err()
}

func (r *Repo) Holding(ctx context.Context, userID, playerID string) (*domain.Holding, error) {
	var h domain.Holding
	err := r.pool.QueryRow(ctx, `
SELECT user_id, player_id, quantity, avg_cost
FROM holdings
WHERE user_id = $1 AND player_id = $2
`, userID, playerID).Scan(&h.UserID, &h.PlayerID, &h.Quantity, &h.AvgCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: holding: %w", err)
	}
	return &h, nil
}

func (r *Repo) LastTradePrice(ctx context.Context, playerID string) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := r.pool.QueryRow(ctx, `
SELECT price FROM trades WHERE player_id = $1 ORDER BY executed_at DESC, trade_id DESC LIMIT 1
`, playerID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("pg: last trade price: %w", err)
	}
	return price, true, nil
}

func (r *Repo) UpsertCandle(ctx context.Context, c *domain.Candle) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO player_price_history(
  player_id, bucket, granularity, open_price, high_price, low_price, close_price, volume
) VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (player_id, granularity, bucket) DO UPDATE SET
  high_price = GREATEST(player_price_history.high_price, EXCLUDED.high_price),
  low_price  = LEAST(player_price_history.low_price, EXCLUDED.low_price),
  close_price = EXCLUDED.close_price,
  volume = player_price_history.volume + EXCLUDED.volume
`, c.PlayerID, c.Bucket, c.Granularity, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("pg: upsert candle: %w", err)
	}
	return nil
}

func (r *Repo) CandleHistory(ctx context.Context, playerID, granularity string, limit int) ([]*domain.Candle, error) {
	rows, err := r.pool.Query(ctx, `
SELECT player_id, bucket, granularity, open_price, high_price, low_price, close_price, volume
FROM (
  SELECT * FROM player_price_history
  WHERE player_id = $1 AND granularity = $2
  ORDER BY bucket DESC
  LIMIT $3
) recent
ORDER BY bucket ASC
`, playerID, granularity, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: candle history: %w", err)
	}
	defer rows.Close()

	var res []*domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.PlayerID, &c.Bucket, &c.Granularity, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("pg: scan candle: %w", err)
		}
		res = append(res, &c)
	}
	return res, rows.Err()
}

func (r *Repo) SavePortfolioValue(ctx context.Context, v *domain.PortfolioValue) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO portfolio_history(user_id, recorded_at, total_value)
VALUES($1,$2,$3)
ON CONFLICT (user_id, recorded_at) DO UPDATE SET total_value = EXCLUDED.total_value
`, v.UserID, v.RecordedAt, v.TotalValue)
	if err != nil {
		return fmt.Errorf("pg: save portfolio value: %w", err)
	}
	return nil
}

func (r *Repo) PortfolioHistory(ctx context.Context, userID string, limit int) ([]*domain.PortfolioValue, error) {
	rows, err := r.pool.Query(ctx, `
SELECT user_id, recorded_at, total_value
FROM (
  SELECT * FROM portfolio_history
  WHERE user_id = $1
  ORDER BY recorded_at DESC
  LIMIT $2
) recent
ORDER BY recorded_at ASC
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: portfolio history: %w", err)
	}
	defer rows.Close()

	var res []*domain.PortfolioValue
	for rows.Next() {
		var v domain.PortfolioValue
		if err := rows.Scan(&v.UserID, &v.RecordedAt, &v.TotalValue); err != nil {
			return nil, fmt.Errorf("pg: scan portfolio value: %w", err)
		}
		res = append(res, &v)
	}
	return res, rows.Err()
}
