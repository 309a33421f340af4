package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a minted betting position on one side of a market.
type Position struct {
	ID        string          `json:"id"`
	MarketID  string          `json:"marketId"`
	Outcome   Outcome         `json:"outcome"`
	Category  string          `json:"category,omitempty"`
	Stake     decimal.Decimal `json:"stake"`
	QuoteID   string          `json:"quoteId,omitempty"`
	TxHash    string          `json:"txHash,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Payout is the amount owed to a winning position once its market resolved.
type Payout struct {
	PositionID string          `json:"positionId"`
	MarketID   string          `json:"marketId"`
	Stake      decimal.Decimal `json:"stake"`
	Amount     decimal.Decimal `json:"amount"`
}

// CalculatePayouts splits the frozen pools of a resolved market across the
// winning positions: each receives stake * totalPool / winningPool. Positions
// on the losing side or on other markets receive nothing. A resolved market
// with an empty winning pool produces no payouts.
func CalculatePayouts(m Market, positions []Position) ([]Payout, error) {
	if m.Status != MarketStatusResolved || m.Winner == nil {
		return nil, ErrInvalidMarketState
	}

	winner := *m.Winner
	winningPool := m.Pool(winner)
	if !winningPool.IsPositive() {
		return nil, nil
	}
	total := m.TotalPool()

	var payouts []Payout
	for _, p := range positions {
		if p.MarketID != m.ID || p.Outcome != winner {
			continue
		}
		payouts = append(payouts, Payout{
			PositionID: p.ID,
			MarketID:   m.ID,
			Stake:      p.Stake,
			Amount:     p.Stake.Mul(total).DivRound(winningPool, 18),
		})
	}
	return payouts, nil
}
