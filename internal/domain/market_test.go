package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	for _, in := range []string{"YES", "NO"} {
		o, ok := ParseOutcome(in)
		require.True(t, ok)
		assert.Equal(t, Outcome(in), o)
	}
	for _, in := range []string{"", "yes", "No", "MAYBE", " YES"} {
		_, ok := ParseOutcome(in)
		assert.False(t, ok, in)
	}
}

func TestMessageBindsResolution(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := ResolutionMessage("m1", OutcomeYes, exp, "n1")
	assert.True(t, MessageBindsResolution(msg, "m1", OutcomeYes))
	assert.False(t, MessageBindsResolution(msg, "m1", OutcomeNo))
	assert.False(t, MessageBindsResolution(msg, "m10", OutcomeYes))
	assert.False(t, MessageBindsResolution(ResolutionMessage("m10", OutcomeYes, exp, "n1"), "m1", OutcomeYes))
	assert.True(t, MessageBindsResolution(`Settle "m1": YES.`, "m1", OutcomeYes))
	assert.False(t, MessageBindsResolution("Resolve market m1 with winner YES or NO", "m1", OutcomeYes))
}

func TestResolutionMessageExpiry(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	got, ok := ResolutionMessageExpiry(ResolutionMessage("m1", OutcomeNo, exp, "abc"))
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = ResolutionMessageExpiry("Resolve market m1 with winner NO")
	assert.False(t, ok)
	_, ok = ResolutionMessageExpiry("Resolve market m1. Expires tomorrow.")
	assert.False(t, ok)
}

func resolved(winner Outcome, yes, no string) Market {
	return Market{
		ID:      "m1",
		Status:  MarketStatusResolved,
		Winner:  &winner,
		YesPool: decimal.RequireFromString(yes),
		NoPool:  decimal.RequireFromString(no),
	}
}

func TestCalculatePayouts(t *testing.T) {
	m := resolved(OutcomeYes, "30", "70")
	positions := []Position{
		{ID: "p1", MarketID: "m1", Outcome: OutcomeYes, Stake: decimal.NewFromInt(10)},
		{ID: "p2", MarketID: "m1", Outcome: OutcomeYes, Stake: decimal.NewFromInt(20)},
		{ID: "p3", MarketID: "m1", Outcome: OutcomeNo, Stake: decimal.NewFromInt(70)},
		{ID: "p4", MarketID: "other", Outcome: OutcomeYes, Stake: decimal.NewFromInt(5)},
	}

	payouts, err := CalculatePayouts(m, positions)
	require.NoError(t, err)
	require.Len(t, payouts, 2)

	got := decimal.Zero
	for _, p := range payouts {
		got = got.Add(p.Amount)
	}
	assert.True(t, payouts[0].Amount.Sub(decimal.RequireFromString("33.333333333333333333")).Abs().LessThan(decimal.New(1, -15)))
	assert.True(t, payouts[1].Amount.Sub(decimal.RequireFromString("66.666666666666666667")).Abs().LessThan(decimal.New(1, -15)))
	assert.True(t, got.Sub(m.TotalPool()).Abs().LessThan(decimal.New(1, -15)), "payouts sum to the pool")
}

func TestCalculatePayoutsEmptyWinningPool(t *testing.T) {
	payouts, err := CalculatePayouts(resolved(OutcomeNo, "50", "0"), nil)
	require.NoError(t, err)
	assert.Empty(t, payouts)
}

func TestCalculatePayoutsRequiresResolved(t *testing.T) {
	_, err := CalculatePayouts(Market{ID: "m1", Status: MarketStatusOpen}, nil)
	require.ErrorIs(t, err, ErrInvalidMarketState)
}

func TestSnapshotOf(t *testing.T) {
	now := time.Now().UTC()
	m := resolved(OutcomeNo, "1.5", "2")
	m.TotalBets = 3
	m.ResolvedAt = &now

	s := SnapshotOf(m)
	assert.Equal(t, "m1", s.MarketID)
	assert.Equal(t, OutcomeNo, s.Winner)
	assert.Equal(t, int64(3), s.TotalBets)
	assert.Equal(t, "1.5", s.YesPool.String())
	assert.Equal(t, now, s.ResolvedAt)
}

func TestCodedErrorUnwrap(t *testing.T) {
	ce := NewCodedError(CategoryConflict, CodeInvalidMarketState, "market is resolved", ErrInvalidMarketState)
	wrapped := fmt.Errorf("service: %w", ce)

	got, ok := AsCodedError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidMarketState, got.Code)
	assert.True(t, errors.Is(wrapped, ErrInvalidMarketState))
	assert.Contains(t, ce.Error(), CodeInvalidMarketState)

	_, ok = AsCodedError(errors.New("plain"))
	assert.False(t, ok)
}

func TestQuoteExpired(t *testing.T) {
	now := time.Now()
	q := Quote{Status: QuoteStatusPending, ExpiresAt: now.Add(-time.Second)}
	assert.True(t, q.Expired(now))

	q.Status = QuoteStatusConfirmed
	assert.False(t, q.Expired(now))

	assert.False(t, Quote{Status: QuoteStatusPending}.Expired(now))
}
