package snapshot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/market"
	"github.com/athletix/exchange/internal/port"
)

// Snapshotter periodically records every user's total portfolio value into
// portfolio history, which feeds the portfolio chart.
type Snapshotter struct {
	t        tomb.Tomb
	repo     port.Repository
	market   *market.Market
	interval time.Duration
}

func New(repo port.Repository, m *market.Market, interval time.Duration) *Snapshotter {
	return &Snapshotter{repo: repo, market: m, interval: interval}
}

// Start launches the snapshot loop.
func (s *Snapshotter) Start() {
	s.t.Go(s.loop)
}

// Stop signals the loop to exit and waits for it.
func (s *Snapshotter) Stop() error {
	s.t.Kill(nil)
	return s.t.Wait()
}

func (s *Snapshotter) loop() error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.t.Dying():
			return nil
		case now := <-ticker.C:
			if err := s.snapshot(s.t.Context(context.Background()), now); err != nil {
				log.Warn().Err(err).Msg("portfolio snapshot failed")
			}
		}
	}
}

// snapshot writes one total-value point per user, valuing holdings at the
// last traded price and falling back to average cost.
func (s *Snapshotter) snapshot(ctx context.Context, now time.Time) error {
	users, err := s.repo.AllUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		total := u.CashBalance
		holdings, err := s.repo.Holdings(ctx, u.ID)
		if err != nil {
			return err
		}
		for _, h := range holdings {
			price, ok, err := s.market.LastPrice(ctx, h.PlayerID)
			if err != nil {
				return err
			}
			if !ok {
				price = h.AvgCost
			}
			total = total.Add(price.Mul(decimal.NewFromInt(h.Quantity)))
		}
		if err := s.repo.SavePortfolioValue(ctx, &domain.PortfolioValue{
			UserID:     u.ID,
			RecordedAt: now.UTC().Truncate(time.Second),
			TotalValue: total,
		}); err != nil {
			return err
		}
	}
	return nil
}
