// Package betslip holds the pending selections a bettor collects before
// placing them. A Slip is a value: Add and Remove return a new Slip and
// leave the receiver untouched.
package betslip

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebet/internal/domain"
)

var (
	ErrInvalidOdds  = errors.New("betslip: odds must be positive")
	ErrOutOfRange   = errors.New("betslip: index out of range")
	ErrInvalidStake = errors.New("betslip: stake must be positive")
)

// Selection is one pick on the slip, priced in decimal odds.
type Selection struct {
	MarketID string          `json:"marketId"`
	Outcome  domain.Outcome  `json:"outcome"`
	Label    string          `json:"label,omitempty"`
	Odds     decimal.Decimal `json:"odds"`
}

// Slip is an ordered list of selections.
type Slip struct {
	selections []Selection
}

// New returns a slip holding sels in order.
func New(sels ...Selection) (Slip, error) {
	var s Slip
	for _, sel := range sels {
		next, err := s.Add(sel)
		if err != nil {
			return Slip{}, err
		}
		s = next
	}
	return s, nil
}

// Add appends sel.
func (s Slip) Add(sel Selection) (Slip, error) {
	if !sel.Odds.IsPositive() {
		return s, fmt.Errorf("%w: %s", ErrInvalidOdds, sel.Odds)
	}
	out := make([]Selection, len(s.selections), len(s.selections)+1)
	copy(out, s.selections)
	return Slip{selections: append(out, sel)}, nil
}

// Remove drops the selection at index i, shifting later ones down.
func (s Slip) Remove(i int) (Slip, error) {
	if i < 0 || i >= len(s.selections) {
		return s, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(s.selections))
	}
	out := make([]Selection, 0, len(s.selections)-1)
	out = append(out, s.selections[:i]...)
	out = append(out, s.selections[i+1:]...)
	return Slip{selections: out}, nil
}

// Len returns the number of selections.
func (s Slip) Len() int { return len(s.selections) }

// Selections returns a copy of the selections in order.
func (s Slip) Selections() []Selection {
	out := make([]Selection, len(s.selections))
	copy(out, s.selections)
	return out
}

// CombinedOdds is the product of every selection's odds. An empty slip
// has combined odds of 1.
func (s Slip) CombinedOdds() decimal.Decimal {
	product := decimal.NewFromInt(1)
	for _, sel := range s.selections {
		product = product.Mul(sel.Odds)
	}
	return product
}

// PotentialReturn is stake times the combined odds.
func (s Slip) PotentialReturn(stake decimal.Decimal) (decimal.Decimal, error) {
	if !stake.IsPositive() {
		return decimal.Zero, ErrInvalidStake
	}
	return stake.Mul(s.CombinedOdds()), nil
}

// Intents turns each selection into a bet intent staking stake, ready to be
// placed one by one.
func (s Slip) Intents(stake decimal.Decimal, category string) ([]domain.BetIntent, error) {
	if !stake.IsPositive() {
		return nil, ErrInvalidStake
	}
	out := make([]domain.BetIntent, 0, len(s.selections))
	for _, sel := range s.selections {
		out = append(out, domain.BetIntent{
			MarketID: sel.MarketID,
			Outcome:  sel.Outcome,
			Category: category,
			Stake:    stake,
		})
	}
	return out, nil
}
