package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a market. The only
// transition is open -> resolved.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusResolved MarketStatus = "resolved"
)

// Outcome is one of the two canonical binary outcomes.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// ParseOutcome accepts exactly "YES" or "NO".
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(s) {
	case OutcomeYes:
		return OutcomeYes, true
	case OutcomeNo:
		return OutcomeNo, true
	default:
		return "", false
	}
}

// Market is a binary betting market with parimutuel yes/no pools.
type Market struct {
	ID         string          `json:"id"`
	Question   string          `json:"question"`
	Category   string          `json:"category"`
	Status     MarketStatus    `json:"status"`
	Winner     *Outcome        `json:"winner"`
	YesPool    decimal.Decimal `json:"yesPool"`
	NoPool     decimal.Decimal `json:"noPool"`
	TotalBets  int64           `json:"totalBets"`
	ResolvedAt *time.Time      `json:"resolvedAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// IsOpen reports whether the market still accepts bets and resolution.
func (m Market) IsOpen() bool {
	return m.Status == MarketStatusOpen
}

// TotalPool returns yesPool + noPool.
func (m Market) TotalPool() decimal.Decimal {
	return m.YesPool.Add(m.NoPool)
}

// Pool returns the pool backing the given outcome.
func (m Market) Pool(o Outcome) decimal.Decimal {
	if o == OutcomeYes {
		return m.YesPool
	}
	return m.NoPool
}

// ResolutionRequest is the admin-originated request to settle a market.
type ResolutionRequest struct {
	MarketID     string `json:"marketId"`
	Winner       string `json:"winner"`
	Signature    string `json:"signature"`
	Message      string `json:"message"`
	AdminAddress string `json:"adminAddress"`
}

// ResolutionSnapshot is the frozen state returned after a successful resolution.
type ResolutionSnapshot struct {
	MarketID   string          `json:"marketId"`
	Winner     Outcome         `json:"winner"`
	TotalBets  int64           `json:"totalBets"`
	YesPool    decimal.Decimal `json:"yesPool"`
	NoPool     decimal.Decimal `json:"noPool"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}

// SnapshotOf builds the snapshot for a resolved market.
func SnapshotOf(m Market) ResolutionSnapshot {
	s := ResolutionSnapshot{
		MarketID:  m.ID,
		TotalBets: m.TotalBets,
		YesPool:   m.YesPool,
		NoPool:    m.NoPool,
	}
	if m.Winner != nil {
		s.Winner = *m.Winner
	}
	if m.ResolvedAt != nil {
		s.ResolvedAt = *m.ResolvedAt
	}
	return s
}

// ResolutionMessage is the canonical human-readable message an admin signs to
// resolve marketID with winner. A signature over it is honoured only until
// expiresAt; nonce keeps two signatures for the same resolution distinct.
func ResolutionMessage(marketID string, winner Outcome, expiresAt time.Time, nonce string) string {
	return fmt.Sprintf("Resolve market %s with winner %s. Expires %s. Nonce %s",
		marketID, winner, expiresAt.UTC().Format(time.RFC3339), nonce)
}

// ResolutionMessageExpiry returns the expiry written by ResolutionMessage.
func ResolutionMessageExpiry(msg string) (time.Time, bool) {
	fields := strings.Fields(msg)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] != "Expires" {
			continue
		}
		t, err := time.Parse(time.RFC3339, strings.TrimRight(fields[i+1], ".,;"))
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// MessageBindsResolution reports whether msg names the market and exactly
// one outcome, the winner, so a signature cannot be replayed against another
// market or outcome.
func MessageBindsResolution(msg, marketID string, winner Outcome) bool {
	other := OutcomeNo
	if winner == OutcomeNo {
		other = OutcomeYes
	}
	var hasMarket, hasWinner bool
	for _, f := range strings.Fields(msg) {
		f = strings.Trim(f, ".,;:\"'()[]")
		switch f {
		case marketID:
			hasMarket = true
		case string(winner):
			hasWinner = true
		case string(other):
			return false
		}
	}
	return hasMarket && hasWinner
}
