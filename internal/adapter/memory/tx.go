package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/domain"
)

// Tx buffers mutations as closures over the repo state and applies them all
// under one lock on Commit. Ids are reserved eagerly so callers see them
// before commit, as with a RETURNING clause.
type Tx struct {
	repo *Repo
	ops  []func() error
	done bool
}

func (t *Tx) InsertOrder(ctx context.Context, o *domain.Order) (int64, error) {
	t.repo.mu.Lock()
	t.repo.nextOrderID++
	id := t.repo.nextOrderID
	t.repo.mu.Unlock()

	cp := *o
	cp.ID = id
	t.ops = append(t.ops, func() error {
		stored := cp
		t.repo.orders[id] = &stored
		return nil
	})
	return id, nil
}

func (t *Tx) UpdateOrderQuantity(ctx context.Context, orderID, quantity int64) error {
	t.ops = append(t.ops, func() error {
		o, ok := t.repo.orders[orderID]
		if !ok {
			return fmt.Errorf("memory: update order quantity: order %d not found", orderID)
		}
		o.Quantity = quantity
		return nil
	})
	return nil
}

func (t *Tx) DeleteOrder(ctx context.Context, orderID int64) (bool, error) {
	t.repo.mu.Lock()
	_, existed := t.repo.orders[orderID]
	t.repo.mu.Unlock()

	if existed {
		t.ops = append(t.ops, func() error {
			delete(t.repo.orders, orderID)
			return nil
		})
	}
	return existed, nil
}

func (t *Tx) InsertTrade(ctx context.Context, tr *domain.Trade) (int64, error) {
	t.repo.mu.Lock()
	t.repo.nextTradeID++
	id := t.repo.nextTradeID
	t.repo.mu.Unlock()

	cp := *tr
	cp.ID = id
	t.ops = append(t.ops, func() error {
		stored := cp
		t.repo.trades = append(t.repo.trades, &stored)
		return nil
	})
	return id, nil
}

func (t *Tx) AdjustCash(ctx context.Context, userID string, delta decimal.Decimal) (bool, error) {
	t.repo.mu.Lock()
	_, exists := t.repo.users[userID]
	t.repo.mu.Unlock()
	if !exists {
		return false, nil
	}

	t.ops = append(t.ops, func() error {
		u, ok := t.repo.users[userID]
		if !ok {
			return fmt.Errorf("memory: adjust cash: user %s vanished", userID)
		}
		u.CashBalance = u.CashBalance.Add(delta)
		return nil
	})
	return true, nil
}

func (t *Tx) HoldingForUpdate(ctx context.Context, userID, playerID string) (*domain.Holding, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	h, ok := t.repo.holdings[userID][playerID]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (t *Tx) UpsertHolding(ctx context.Context, h *domain.Holding) error {
	cp := *h
	t.ops = append(t.ops, func() error {
		byPlayer, ok := t.repo.holdings[cp.UserID]
		if !ok {
			byPlayer = make(map[string]*domain.Holding)
			t.repo.holdings[cp.UserID] = byPlayer
		}
		stored := cp
		byPlayer[cp.PlayerID] = &stored
		return nil
	})
	return nil
}

func (t *Tx) ReduceHolding(ctx context.Context, userID, playerID string, quantity int64) error {
	t.ops = append(t.ops, func() error {
		h, ok := t.repo.holdings[userID][playerID]
		if !ok {
			return fmt.Errorf("memory: reduce holding: no holding for user %s player %s", userID, playerID)
		}
		h.Quantity -= quantity
		return nil
	})
	return nil
}

func (t *Tx) DeleteHoldingIfEmpty(ctx context.Context, userID, playerID string) error {
	t.ops = append(t.ops, func() error {
		if h, ok := t.repo.holdings[userID][playerID]; ok && h.Quantity <= 0 {
			delete(t.repo.holdings[userID], playerID)
		}
		return nil
	})
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("memory: commit on finished tx")
	}
	t.done = true

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	if t.repo.FailCommits > 0 {
		t.repo.FailCommits--
		return ErrCommitFailed
	}
	for _, op := range t.ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	t.done = true
	t.ops = nil
	return nil
}
