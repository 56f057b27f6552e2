package port

import (
	"context"

	"github.com/athletix/exchange/internal/domain"
)

// Cache holds rendered book depth for read paths. It is advisory: a miss or
// error falls back to the live book.
type Cache interface {
	SetDepth(ctx context.Context, playerID string, d *domain.BookDepth) error
	GetDepth(ctx context.Context, playerID string) (*domain.BookDepth, error)
	InvalidateDepth(ctx context.Context, playerID string) error
}
