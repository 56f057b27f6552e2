package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/port"
)

// avgCostPlaces is the precision kept for a holding's volume-weighted
// average cost.
const avgCostPlaces = 4

var (
	// ErrUnknownUser means a trade referenced a user id absent from the
	// store. That is a data-integrity bug, not a user error: the trade's
	// settlement is rolled back in full and the caller must not report the
	// position update as applied.
	ErrUnknownUser = errors.New("ledger: unknown user")

	ErrUsernameTaken = errors.New("ledger: username already exists")
)

// Ledger settles trades against user balances and holdings and owns the
// account read side used by the API boundary. Sales by the market maker
// settle against the IPO float rather than a holdings row, so its holding
// reduction is skipped.
type Ledger struct {
	repo    port.Repository
	makerID string
}

func New(repo port.Repository, makerID string) *Ledger {
	return &Ledger{repo: repo, makerID: makerID}
}

// ApplyTrade atomically settles one trade: the buyer is debited price*qty
// and has their holding's volume-weighted average cost recomputed, the
// seller is credited and their holding reduced, with the row dropped at
// zero. Any failure rolls the whole settlement back.
func (l *Ledger) ApplyTrade(ctx context.Context, t *domain.Trade) error {
	buyerID, sellerID := t.BuyerID(), t.SellerID()
	notional := t.Notional()

	err := port.WithTx(ctx, l.repo, func(tx port.Tx) error {
		exists, err := tx.AdjustCash(ctx, buyerID, notional.Neg())
		if err != nil {
			return fmt.Errorf("debit buyer: %w", err)
		}
		if !exists {
			return fmt.Errorf("buyer %s: %w", buyerID, ErrUnknownUser)
		}

		held, err := tx.HoldingForUpdate(ctx, buyerID, t.PlayerID)
		if err != nil {
			return fmt.Errorf("load buyer holding: %w", err)
		}
		oldQty, oldAvg := int64(0), decimal.Zero
		if held != nil {
			oldQty, oldAvg = held.Quantity, held.AvgCost
		}
		newQty := oldQty + t.Quantity
		newAvg := oldAvg.Mul(decimal.NewFromInt(oldQty)).Add(notional).
			DivRound(decimal.NewFromInt(newQty), avgCostPlaces)
		if err := tx.UpsertHolding(ctx, &domain.Holding{
			UserID:   buyerID,
			PlayerID: t.PlayerID,
			Quantity: newQty,
			AvgCost:  newAvg,
		}); err != nil {
			return fmt.Errorf("upsert buyer holding: %w", err)
		}

		exists, err = tx.AdjustCash(ctx, sellerID, notional)
		if err != nil {
			return fmt.Errorf("credit seller: %w", err)
		}
		if !exists {
			return fmt.Errorf("seller %s: %w", sellerID, ErrUnknownUser)
		}
		if sellerID == l.makerID {
			// IPO shares come out of the float, not a holding.
			return nil
		}
		if err := tx.ReduceHolding(ctx, sellerID, t.PlayerID, t.Quantity); err != nil {
			return fmt.Errorf("reduce seller holding: %w", err)
		}
		if err := tx.DeleteHoldingIfEmpty(ctx, sellerID, t.PlayerID); err != nil {
			return fmt.Errorf("drop emptied holding: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).
			Int64("trade_id", t.ID).
			Str("player_id", t.PlayerID).
			Str("buyer", buyerID).
			Str("seller", sellerID).
			Msg("trade settlement rolled back")
		return fmt.Errorf("settle trade %d: %w", t.ID, err)
	}
	return nil
}

// CreateUser registers a new account with the given starting cash.
func (l *Ledger) CreateUser(ctx context.Context, username, passwordHash string, startingCash decimal.Decimal) (*domain.User, error) {
	if existing, err := l.repo.UserByUsername(ctx, username); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	} else if existing != nil {
		return nil, ErrUsernameTaken
	}
	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CashBalance:  startingCash,
	}
	if err := l.repo.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (l *Ledger) UserByID(ctx context.Context, userID string) (*domain.User, error) {
	return l.repo.UserByID(ctx, userID)
}

func (l *Ledger) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return l.repo.UserByUsername(ctx, username)
}

func (l *Ledger) Holdings(ctx context.Context, userID string) ([]*domain.Holding, error) {
	return l.repo.Holdings(ctx, userID)
}

func (l *Ledger) Holding(ctx context.Context, userID, playerID string) (*domain.Holding, error) {
	return l.repo.Holding(ctx, userID, playerID)
}
