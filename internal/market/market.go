package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/book"
	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/history"
	"github.com/athletix/exchange/internal/ledger"
	"github.com/athletix/exchange/internal/port"
)

// Market owns one order book and one history tracker per player, created
// lazily, and is the sole entry point for order placement. It is constructed
// once at startup and passed to the request handlers.
type Market struct {
	repo    port.Repository
	ledger  *ledger.Ledger
	cache   port.Cache // optional depth cache
	makerID string

	mu       sync.RWMutex
	books    map[string]*book.OrderBook
	trackers map[string]*history.Tracker
}

func New(repo port.Repository, l *ledger.Ledger, cache port.Cache, makerID string) *Market {
	return &Market{
		repo:     repo,
		ledger:   l,
		cache:    cache,
		makerID:  makerID,
		books:    make(map[string]*book.OrderBook),
		trackers: make(map[string]*history.Tracker),
	}
}

// MakerID is the market-maker account that seeds IPO liquidity.
func (m *Market) MakerID() string { return m.makerID }

// LoadOpenOrders initializes a book for every player that has resting
// orders, replaying them from the store.
func (m *Market) LoadOpenOrders(ctx context.Context) error {
	players, err := m.repo.ListPlayers(ctx)
	if err != nil {
		return fmt.Errorf("list players with open orders: %w", err)
	}
	for _, playerID := range players {
		if _, err := m.Book(ctx, playerID); err != nil {
			return err
		}
	}
	log.Info().Int("books", len(players)).Msg("order books initialized")
	return nil
}

// Book returns the order book for a player, creating and loading it on
// first use.
func (m *Market) Book(ctx context.Context, playerID string) (*book.OrderBook, error) {
	m.mu.RLock()
	b, ok := m.books[playerID]
	m.mu.RUnlock()
	if ok {
		return b, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[playerID]; ok {
		return b, nil
	}
	b, err := book.New(ctx, playerID, m.repo)
	if err != nil {
		return nil, err
	}
	m.books[playerID] = b
	return b, nil
}

// Tracker returns the history tracker for a player, creating it on first use.
func (m *Market) Tracker(playerID string) *history.Tracker {
	m.mu.RLock()
	t, ok := m.trackers[playerID]
	m.mu.RUnlock()
	if ok {
		return t
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trackers[playerID]; ok {
		return t
	}
	t = history.NewTracker(playerID, m.repo)
	m.trackers[playerID] = t
	return t
}

// PlaceOrder submits an order to the player's book and, for every execution
// in order, records it into the history tracker and settles it against both
// parties' balances. A settlement failure is a consistency error: the trades
// stand in the store but the error is surfaced, never swallowed.
func (m *Market) PlaceOrder(ctx context.Context, playerID, userID string, side domain.Side, price decimal.Decimal, quantity int64) (restingID int64, trades []*domain.Trade, err error) {
	b, err := m.Book(ctx, playerID)
	if err != nil {
		return 0, nil, err
	}
	tracker := m.Tracker(playerID)

	trades, restingID, err = b.SubmitOrder(ctx, userID, side, price, quantity)
	if err != nil {
		return 0, nil, err
	}
	m.invalidateDepth(ctx, playerID)

	for _, t := range trades {
		if herr := tracker.RecordTrade(ctx, t.Price, t.Quantity, t.ExecutedAt); herr != nil {
			// Chart data is derived state; the trade itself is settled below.
			log.Warn().Err(herr).Int64("trade_id", t.ID).Msg("history update failed")
		}
		if serr := m.ledger.ApplyTrade(ctx, t); serr != nil {
			return restingID, trades, serr
		}
	}
	return restingID, trades, nil
}

// CancelOrder cancels a resting order after verifying it belongs to userID.
func (m *Market) CancelOrder(ctx context.Context, playerID, userID string, orderID int64) (bool, error) {
	b, err := m.Book(ctx, playerID)
	if err != nil {
		return false, err
	}
	owner, ok := b.OwnerOf(orderID)
	if !ok || owner != userID {
		return false, nil
	}
	cancelled, err := b.Cancel(ctx, orderID)
	if err != nil {
		return false, err
	}
	if cancelled {
		m.invalidateDepth(ctx, playerID)
	}
	return cancelled, nil
}

// Depth returns the aggregated book for a player, via the cache when warm.
func (m *Market) Depth(ctx context.Context, playerID string) (*domain.BookDepth, error) {
	if m.cache != nil {
		if d, err := m.cache.GetDepth(ctx, playerID); err == nil && d != nil {
			return d, nil
		}
	}
	b, err := m.Book(ctx, playerID)
	if err != nil {
		return nil, err
	}
	d := b.Depth()
	if m.cache != nil {
		if err := m.cache.SetDepth(ctx, playerID, d); err != nil {
			log.Warn().Err(err).Str("player_id", playerID).Msg("depth cache set failed")
		}
	}
	return d, nil
}

func (m *Market) invalidateDepth(ctx context.Context, playerID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.InvalidateDepth(ctx, playerID); err != nil {
		log.Warn().Err(err).Str("player_id", playerID).Msg("depth cache invalidation failed")
	}
}

// LastPrice is the most recent execution price for a player; ok is false
// when the player has never traded.
func (m *Market) LastPrice(ctx context.Context, playerID string) (decimal.Decimal, bool, error) {
	return m.repo.LastTradePrice(ctx, playerID)
}

// Players lists the players with an active book.
func (m *Market) Players() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.books))
	for id := range m.books {
		out = append(out, id)
	}
	return out
}

// CheckBuyingPower reports whether the user's cash, less the cash already
// committed to resting buy orders across every book, covers orderCost.
// Computing the committed total from live book state keeps simultaneous
// open orders from over-committing the same funds.
func (m *Market) CheckBuyingPower(ctx context.Context, userID string, orderCost decimal.Decimal) (bool, error) {
	u, err := m.ledger.UserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, fmt.Errorf("buying power: %w", ledger.ErrUnknownUser)
	}

	committed := decimal.Zero
	m.mu.RLock()
	books := make([]*book.OrderBook, 0, len(m.books))
	for _, b := range m.books {
		books = append(books, b)
	}
	m.mu.RUnlock()
	for _, b := range books {
		committed = committed.Add(b.CommittedCash(userID))
	}

	return orderCost.LessThanOrEqual(u.CashBalance.Sub(committed)), nil
}

// CheckAvailableShares reports whether the user's holding in a player, less
// the shares already committed to resting sell orders in that book, covers
// quantity.
func (m *Market) CheckAvailableShares(ctx context.Context, userID, playerID string, quantity int64) (bool, error) {
	held, err := m.ledger.Holding(ctx, userID, playerID)
	if err != nil {
		return false, err
	}
	var owned int64
	if held != nil {
		owned = held.Quantity
	}

	b, err := m.Book(ctx, playerID)
	if err != nil {
		return false, err
	}
	available := owned - b.CommittedShares(userID)
	return quantity <= available, nil
}

// ListInstrument seeds a player's market with the IPO order: a single
// market-maker sell resting at the IPO price for the whole float. It is a
// no-op returning zero when the maker already has an ask in the book.
func (m *Market) ListInstrument(ctx context.Context, playerID string, ipoPrice decimal.Decimal, float int64) (int64, error) {
	b, err := m.Book(ctx, playerID)
	if err != nil {
		return 0, err
	}
	if b.HasAskFrom(m.makerID) {
		return 0, nil
	}
	_, restingID, err := b.SubmitOrder(ctx, m.makerID, domain.Sell, ipoPrice, float)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", playerID, err)
	}
	log.Info().Str("player_id", playerID).Str("ipo_price", ipoPrice.String()).
		Int64("float", float).Msg("instrument listed")
	return restingID, nil
}

// IPOPrice is the price of the market maker's resting ask for a player, used
// by the player-info endpoint. ok is false when the player is not listed.
func (m *Market) IPOPrice(ctx context.Context, playerID string) (decimal.Decimal, bool, error) {
	orders, err := m.repo.LoadOpenOrders(ctx, playerID)
	if err != nil {
		return decimal.Zero, false, err
	}
	for _, o := range orders {
		if o.UserID == m.makerID && o.Side == domain.Sell {
			return o.Price, true, nil
		}
	}
	return decimal.Zero, false, nil
}
