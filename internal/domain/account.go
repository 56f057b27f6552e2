package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           string          `json:"user_id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	CashBalance  decimal.Decimal `json:"cash_balance"`
}

// Holding is a user's position in one player. A row exists only while
// Quantity > 0; settlement drops emptied rows.
type Holding struct {
	UserID   string          `json:"user_id"`
	PlayerID string          `json:"player_id"`
	Quantity int64           `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avg_cost"`
}

// PortfolioValue is one point of a user's recorded total-value history.
type PortfolioValue struct {
	UserID     string          `json:"user_id"`
	RecordedAt time.Time       `json:"time"`
	TotalValue decimal.Decimal `json:"value"`
}
