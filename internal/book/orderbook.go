package book

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/port"
)

// pricePlaces is the scale prices are stored at; submissions finer than
// this are rejected so the book never diverges from the store.
const pricePlaces = 2

// priceLevel holds the resting orders at one price, FIFO by arrival time.
type priceLevel struct {
	price  decimal.Decimal
	orders []*domain.Order
}

type priceLevels = btree.BTreeG[*priceLevel]

// OrderBook is the live book for a single player. The btree levels and the
// id map are a cache over the durable store: every mutation pairs a store
// transaction with the matching in-memory update, applied only after commit.
type OrderBook struct {
	playerID string
	repo     port.Repository
	now      func() time.Time

	mu     sync.Mutex
	bids   *priceLevels
	asks   *priceLevels
	orders map[int64]*domain.Order
}

// fill is one planned cross against a resting maker order.
type fill struct {
	maker    *domain.Order
	quantity int64
}

// New constructs the book for a player and replays its open orders from the
// store in original submission order, reproducing live price-time priority.
func New(ctx context.Context, playerID string, repo port.Repository) (*OrderBook, error) {
	b := &OrderBook{
		playerID: playerID,
		repo:     repo,
		now:      time.Now,
		bids: btree.NewBTreeG(func(a, b *priceLevel) bool {
			return a.price.GreaterThan(b.price)
		}),
		asks: btree.NewBTreeG(func(a, b *priceLevel) bool {
			return a.price.LessThan(b.price)
		}),
		orders: make(map[int64]*domain.Order),
	}

	open, err := repo.LoadOpenOrders(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("book %s: load open orders: %w", playerID, err)
	}
	for _, o := range open {
		b.insert(o)
	}
	log.Debug().Str("player_id", playerID).Int("orders", len(open)).Msg("order book loaded")
	return b, nil
}

// PlayerID returns the instrument this book trades.
func (b *OrderBook) PlayerID() string { return b.playerID }

// SubmitOrder matches an incoming limit order against the opposite side and
// rests any remainder. All store writes happen in one transaction; the
// in-memory levels are only touched after it commits, so a persistence
// failure leaves book and store agreeing with each other.
//
// restingID is zero when the order filled completely.
func (b *OrderBook) SubmitOrder(ctx context.Context, userID string, side domain.Side, price decimal.Decimal, quantity int64) (trades []*domain.Trade, restingID int64, err error) {
	if !side.Valid() {
		return nil, 0, fmt.Errorf("submit order: invalid side %q", side)
	}
	if quantity <= 0 || !price.IsPositive() {
		return nil, 0, fmt.Errorf("submit order: price and quantity must be positive")
	}
	// Prices are stored at scale 2. Finer precision would let the live book
	// and the reloaded book key the same order to different levels.
	if !price.Equal(price.Truncate(pricePlaces)) {
		return nil, 0, fmt.Errorf("submit order: price %s has more than %d decimal places", price, pricePlaces)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	incoming := &domain.Order{
		UserID:    userID,
		PlayerID:  b.playerID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: b.now(),
	}

	trades, fills := b.match(incoming)

	remaining := incoming.Quantity
	for _, f := range fills {
		remaining -= f.quantity
	}

	err = port.WithTx(ctx, b.repo, func(tx port.Tx) error {
		for _, f := range fills {
			left := f.maker.Quantity - f.quantity
			if left == 0 {
				if _, err := tx.DeleteOrder(ctx, f.maker.ID); err != nil {
					return fmt.Errorf("delete filled order %d: %w", f.maker.ID, err)
				}
			} else {
				if err := tx.UpdateOrderQuantity(ctx, f.maker.ID, left); err != nil {
					return fmt.Errorf("update order %d quantity: %w", f.maker.ID, err)
				}
			}
		}
		if remaining > 0 {
			rest := *incoming
			rest.Quantity = remaining
			id, err := tx.InsertOrder(ctx, &rest)
			if err != nil {
				return fmt.Errorf("insert resting order: %w", err)
			}
			restingID = id
		}
		for _, t := range trades {
			// Zero when the taker never rested.
			t.TakerOrderID = restingID
			id, err := tx.InsertTrade(ctx, t)
			if err != nil {
				return fmt.Errorf("insert trade: %w", err)
			}
			t.ID = id
		}
		return nil
	})
	if err != nil {
		// Nothing persisted, nothing applied: the call is safe to retry.
		return nil, 0, fmt.Errorf("submit order for %s: %w", b.playerID, err)
	}

	for _, f := range fills {
		f.maker.Quantity -= f.quantity
		if f.maker.Quantity == 0 {
			b.remove(f.maker)
		}
	}
	if remaining > 0 {
		rested := *incoming
		rested.ID = restingID
		rested.Quantity = remaining
		b.insert(&rested)
	}

	return trades, restingID, nil
}

// match walks the opposite side in price-time priority, planning fills until
// the incoming quantity is exhausted or prices stop crossing. The trade
// price is always the maker's. It does not mutate live orders, so a failed
// transaction discards the plan cleanly.
func (b *OrderBook) match(incoming *domain.Order) ([]*domain.Trade, []fill) {
	opposite := b.asks
	crosses := func(maker decimal.Decimal) bool { return maker.LessThanOrEqual(incoming.Price) }
	if incoming.Side == domain.Sell {
		opposite = b.bids
		crosses = func(maker decimal.Decimal) bool { return maker.GreaterThanOrEqual(incoming.Price) }
	}

	var (
		trades  []*domain.Trade
		fills   []fill
		expired []*domain.Order
	)
	remaining := incoming.Quantity
	executedAt := b.now()

	opposite.Scan(func(level *priceLevel) bool {
		if remaining == 0 || !crosses(level.price) {
			return false
		}
		for _, maker := range level.orders {
			if remaining == 0 {
				break
			}
			if maker.Quantity <= 0 {
				// A non-positive resting quantity is an invariant
				// violation; expire the entry instead of matching it.
				expired = append(expired, maker)
				continue
			}
			qty := min(remaining, maker.Quantity)
			trades = append(trades, &domain.Trade{
				PlayerID:     b.playerID,
				Price:        maker.Price,
				Quantity:     qty,
				ExecutedAt:   executedAt,
				MakerOrderID: maker.ID,
				TakerUserID:  incoming.UserID,
				MakerUserID:  maker.UserID,
				TakerSide:    incoming.Side,
			})
			fills = append(fills, fill{maker: maker, quantity: qty})
			remaining -= qty
		}
		return true
	})

	for _, o := range expired {
		log.Warn().Int64("order_id", o.ID).Str("player_id", b.playerID).
			Int64("quantity", o.Quantity).Msg("expiring order with non-positive quantity")
		b.remove(o)
	}

	return trades, fills
}

// Cancel removes a resting order. It returns false when the id is unknown to
// this book, and false for the loser of a duplicate-cancel race: only the
// call whose store delete removed the row reports success.
func (b *OrderBook) Cancel(ctx context.Context, orderID int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return false, nil
	}

	removed := false
	err := port.WithTx(ctx, b.repo, func(tx port.Tx) error {
		var err error
		removed, err = tx.DeleteOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("cancel order %d: %w", orderID, err)
	}

	b.remove(o)
	return removed, nil
}

// Depth aggregates live resting quantity per price level, bids descending
// and asks ascending.
func (b *OrderBook) Depth() *domain.BookDepth {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := &domain.BookDepth{PlayerID: b.playerID}
	collect := func(levels *priceLevels) []domain.PriceLevel {
		var out []domain.PriceLevel
		levels.Scan(func(level *priceLevel) bool {
			var qty int64
			for _, o := range level.orders {
				if o.Quantity > 0 {
					qty += o.Quantity
				}
			}
			if qty > 0 {
				out = append(out, domain.PriceLevel{Price: level.price, Quantity: qty})
			}
			return true
		})
		return out
	}
	d.Bids = collect(b.bids)
	d.Asks = collect(b.asks)
	return d
}

// CommittedCash sums price*quantity over the user's resting buy orders in
// this book. Together with the other books it bounds buying power across
// simultaneous open orders.
func (b *OrderBook) CommittedCash(userID string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := decimal.Zero
	for _, o := range b.orders {
		if o.UserID == userID && o.Side == domain.Buy {
			total = total.Add(o.Notional())
		}
	}
	return total
}

// CommittedShares sums the quantity over the user's resting sell orders.
func (b *OrderBook) CommittedShares(userID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int64
	for _, o := range b.orders {
		if o.UserID == userID && o.Side == domain.Sell {
			total += o.Quantity
		}
	}
	return total
}

// Resting reports how many orders currently rest in the book.
func (b *OrderBook) Resting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

// OwnerOf reports the user id owning a resting order.
func (b *OrderBook) OwnerOf(orderID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return "", false
	}
	return o.UserID, true
}

// HasAskFrom reports whether the user has any resting sell order, used to
// detect an already-listed instrument.
func (b *OrderBook) HasAskFrom(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.orders {
		if o.UserID == userID && o.Side == domain.Sell {
			return true
		}
	}
	return false
}

func (b *OrderBook) side(s domain.Side) *priceLevels {
	if s == domain.Buy {
		return b.bids
	}
	return b.asks
}

// insert appends an order to its price level, creating the level on first
// use, and indexes it by id. Callers preserve FIFO by inserting in
// submission order.
func (b *OrderBook) insert(o *domain.Order) {
	levels := b.side(o.Side)
	probe := &priceLevel{price: o.Price}
	if level, ok := levels.GetMut(probe); ok {
		level.orders = append(level.orders, o)
	} else {
		levels.Set(&priceLevel{price: o.Price, orders: []*domain.Order{o}})
	}
	b.orders[o.ID] = o
}

// remove deletes an order from its level and the id map, dropping the level
// when it empties.
func (b *OrderBook) remove(o *domain.Order) {
	levels := b.side(o.Side)
	probe := &priceLevel{price: o.Price}
	if level, ok := levels.GetMut(probe); ok {
		for i, cur := range level.orders {
			if cur.ID == o.ID {
				level.orders = append(level.orders[:i], level.orders[i+1:]...)
				break
			}
		}
		if len(level.orders) == 0 {
			levels.Delete(level)
		}
	}
	delete(b.orders, o.ID)
}
