package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets. ResolveIfOpen is conditional on status =
// open and returns ErrInvalidMarketState when the market is no longer open
// so callers never overwrite a resolution.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
	ResolveIfOpen(ctx context.Context, id string, winner Outcome, at time.Time) (Market, error)
}

// PositionStore persists minted betting positions.
//
// Place credits pos.Stake to its market's pool and records pos as one atomic
// write: either both happen or neither does. It returns ErrInvalidMarketState
// when the market is not open, ErrAlreadyExists when the position id or
// quote id is taken and ErrTxHashUsed when another position already carries
// pos.TxHash.
type PositionStore interface {
	Place(ctx context.Context, pos Position) (Market, error)
	GetByID(ctx context.Context, id string) (Position, error)
	GetByQuote(ctx context.Context, quoteID string) (Position, error)
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
}

// QuoteStore holds payment quotes until they are confirmed or expire.
//
// Claim atomically moves a pending quote to confirmed and reserves txHash
// for it. It returns ErrQuoteClaimed (with the stored quote) when another
// caller got there first, and ErrTxHashUsed when txHash is already reserved
// by a different quote. Reservations outlive the quote.
//
// Release undoes a Claim whose position was never placed: the quote goes
// back to pending and its reservation is dropped.
type QuoteStore interface {
	Save(ctx context.Context, q Quote, ttl time.Duration) error
	Get(ctx context.Context, id string) (Quote, error)
	Claim(ctx context.Context, id string, txHash string) (Quote, error)
	Release(ctx context.Context, id string) error
	Update(ctx context.Context, q Quote) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
