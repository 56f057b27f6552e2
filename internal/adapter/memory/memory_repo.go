package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/port"
)

var (
	_ port.Repository = (*Repo)(nil)
	_ port.Tx         = (*Tx)(nil)
)

// ErrCommitFailed is returned by commits forced to fail via FailCommits.
var ErrCommitFailed = errors.New("memory: commit failed")

// Repo is an in-memory Repository used in tests. Transactions buffer their
// mutations and apply them on Commit, so the all-or-nothing contract of the
// real store can be exercised, including injected commit failures.
type Repo struct {
	mu sync.Mutex

	users     map[string]*domain.User
	holdings  map[string]map[string]*domain.Holding // userID -> playerID
	orders    map[int64]*domain.Order
	trades    []*domain.Trade
	candles   map[string]*domain.Candle // playerID|granularity|bucket
	portfolio []*domain.PortfolioValue

	nextOrderID int64
	nextTradeID int64

	// FailCommits fails that many upcoming commits, discarding their buffered
	// mutations.
	FailCommits int
}

func NewRepo() *Repo {
	return &Repo{
		users:    make(map[string]*domain.User),
		holdings: make(map[string]map[string]*domain.Holding),
		orders:   make(map[int64]*domain.Order),
		candles:  make(map[string]*domain.Candle),
	}
}

func (r *Repo) BeginTx(ctx context.Context) (port.Tx, error) {
	return &Tx{repo: r}, nil
}

func (r *Repo) LoadOpenOrders(ctx context.Context, playerID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*domain.Order
	for _, o := range r.orders {
		if o.PlayerID == playerID {
			cp := *o
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (r *Repo) ListPlayers(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var res []string
	for _, o := range r.orders {
		if !seen[o.PlayerID] {
			seen[o.PlayerID] = true
			res = append(res, o.PlayerID)
		}
	}
	sort.Strings(res)
	return res, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return fmt.Errorf("memory: user %s already exists", u.ID)
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *Repo) UserByID(ctx context.Context, userID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *Repo) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Repo) AllUsers(ctx context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*domain.User
	for _, u := range r.users {
		cp := *u
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Username < res[j].Username })
	return res, nil
}

func (r *Repo) Holdings(ctx context.Context, userID string) ([]*domain.Holding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*domain.Holding
	for _, h := range r.holdings[userID] {
		cp := *h
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].PlayerID < res[j].PlayerID })
	return res, nil
}

func (r *Repo) Holding(ctx context.Context, userID, playerID string) (*domain.Holding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.holdings[userID][playerID]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (r *Repo) LastTradePrice(ctx context.Context, playerID string) (decimal.Decimal, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.trades) - 1; i >= 0; i-- {
		if r.trades[i].PlayerID == playerID {
			return r.trades[i].Price, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func candleKey(c *domain.Candle) string {
	return c.PlayerID + "|" + c.Granularity + "|" + c.Bucket.UTC().String()
}

func (r *Repo) UpsertCandle(ctx context.Context, c *domain.Candle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := candleKey(c)
	cur, ok := r.candles[key]
	if !ok {
		cp := *c
		r.candles[key] = &cp
		return nil
	}
	if c.High.GreaterThan(cur.High) {
		cur.High = c.High
	}
	if c.Low.LessThan(cur.Low) {
		cur.Low = c.Low
	}
	cur.Close = c.Close
	cur.Volume += c.Volume
	return nil
}

func (r *Repo) CandleHistory(ctx context.Context, playerID, granularity string, limit int) ([]*domain.Candle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*domain.Candle
	for _, c := range r.candles {
		if c.PlayerID == playerID && c.Granularity == granularity {
			cp := *c
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Bucket.Before(res[j].Bucket) })
	if limit > 0 && len(res) > limit {
		res = res[len(res)-limit:]
	}
	return res, nil
}

func (r *Repo) SavePortfolioValue(ctx context.Context, v *domain.PortfolioValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *v
	r.portfolio = append(r.portfolio, &cp)
	return nil
}

func (r *Repo) PortfolioHistory(ctx context.Context, userID string, limit int) ([]*domain.PortfolioValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*domain.PortfolioValue
	for _, v := range r.portfolio {
		if v.UserID == userID {
			cp := *v
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RecordedAt.Before(res[j].RecordedAt) })
	if limit > 0 && len(res) > limit {
		res = res[len(res)-limit:]
	}
	return res, nil
}

// Helpers for test setup and assertions.

// OpenOrderCount reports how many orders rest in the store.
func (r *Repo) OpenOrderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// Trades returns all recorded trades in insertion order.
func (r *Repo) Trades() []*domain.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Trade, 0, len(r.trades))
	for _, t := range r.trades {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// OrderQuantity reports the persisted remaining quantity of an order.
func (r *Repo) OrderQuantity(orderID int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return 0, false
	}
	return o.Quantity, true
}
