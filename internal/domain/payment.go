package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetIntent is the payload a client wants fulfilled. It is sent once and
// replayed verbatim if a payment challenge must be answered first.
type BetIntent struct {
	MarketID string          `json:"marketId"`
	Outcome  Outcome         `json:"outcome"`
	Sport    string          `json:"sport,omitempty"`
	Category string          `json:"category,omitempty"`
	Stake    decimal.Decimal `json:"stake"`
}

// CategoryOrSport returns the category, falling back to the sport.
func (b BetIntent) CategoryOrSport() string {
	if b.Category != "" {
		return b.Category
	}
	return b.Sport
}

// PaymentRequest is the {address, amount} pair carried by a payment-request
// header. Amount is empty when the challenge did not name one.
type PaymentRequest struct {
	Address string
	Amount  string
}

// PaymentChallenge is parsed from a 402 response. It is valid only when the
// payee address passed validation and a quote id is present.
type PaymentChallenge struct {
	PayeeAddress string
	Amount       string
	QuoteID      string
}

// PayResult is the result of a pay call: a required core plus whatever
// additional fields the server attached.
type PayResult struct {
	Success    bool           `json:"success"`
	QuoteID    string         `json:"quoteId,omitempty"`
	PositionID string         `json:"positionId,omitempty"`
	TxHash     string         `json:"txHash,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// QuoteStatus tracks a server-issued payment quote.
type QuoteStatus string

const (
	QuoteStatusPending        QuoteStatus = "pending"
	QuoteStatusConfirmed      QuoteStatus = "confirmed"
	QuoteStatusRefundRequired QuoteStatus = "refund_required"
)

// Quote is the server side of a payment challenge: the bet awaiting payment.
type Quote struct {
	ID         string          `json:"id"`
	MarketID   string          `json:"marketId"`
	Outcome    Outcome         `json:"outcome"`
	Category   string          `json:"category,omitempty"`
	Stake      decimal.Decimal `json:"stake"`
	Amount     decimal.Decimal `json:"amount"`
	Payee      string          `json:"payee"`
	Status     QuoteStatus     `json:"status"`
	PositionID string          `json:"positionId,omitempty"`
	TxHash     string          `json:"txHash,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// Expired reports whether a still-pending quote is past its deadline.
func (q Quote) Expired(now time.Time) bool {
	return q.Status == QuoteStatusPending && !q.ExpiresAt.IsZero() && now.After(q.ExpiresAt)
}
