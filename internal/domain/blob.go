package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader fetches objects written by a BlobWriter. Get returns
// ErrNotFound for a missing path; the caller closes the reader.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// Event is a domain event emitted to downstream consumers.
type Event struct {
	Type    string `json:"type"`
	Key     string `json:"key"`
	Payload any    `json:"payload"`
}

// Event types.
const (
	EventBetPlaced        = "bet_placed"
	EventPaymentConfirmed = "payment_confirmed"
	EventMarketResolved   = "market_resolved"
	EventRefundRequired   = "refund_required"
)

// EventPublisher delivers domain events to a durable stream.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}
