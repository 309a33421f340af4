package betslip

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebet/internal/domain"
)

func sel(id, odds string) Selection {
	return Selection{MarketID: id, Outcome: domain.OutcomeYes, Odds: decimal.RequireFromString(odds)}
}

func TestAddIsPure(t *testing.T) {
	var empty Slip
	one, err := empty.Add(sel("a", "1.5"))
	require.NoError(t, err)
	two, err := one.Add(sel("b", "2"))
	require.NoError(t, err)

	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 1, one.Len())
	assert.Equal(t, 2, two.Len())

	// Appending to one again must not clobber two's second element.
	other, err := one.Add(sel("c", "3"))
	require.NoError(t, err)
	assert.Equal(t, "b", two.Selections()[1].MarketID)
	assert.Equal(t, "c", other.Selections()[1].MarketID)
}

func TestAddRejectsBadOdds(t *testing.T) {
	var s Slip
	_, err := s.Add(sel("a", "0"))
	assert.ErrorIs(t, err, ErrInvalidOdds)
	_, err = s.Add(sel("a", "-2"))
	assert.ErrorIs(t, err, ErrInvalidOdds)
}

func TestRemoveByIndex(t *testing.T) {
	s, err := New(sel("a", "1.5"), sel("b", "2"), sel("c", "3"))
	require.NoError(t, err)

	mid, err := s.Remove(1)
	require.NoError(t, err)
	ids := []string{}
	for _, x := range mid.Selections() {
		ids = append(ids, x.MarketID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
	assert.Equal(t, 3, s.Len(), "original untouched")

	_, err = s.Remove(3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.Remove(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCombinedOdds(t *testing.T) {
	var empty Slip
	assert.Equal(t, "1", empty.CombinedOdds().String())

	s, err := New(sel("a", "1.5"), sel("b", "2"), sel("c", "2.2"))
	require.NoError(t, err)
	assert.Equal(t, "6.6", s.CombinedOdds().String())

	ret, err := s.PotentialReturn(decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, "66", ret.String())

	_, err = s.PotentialReturn(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidStake)
}

func TestIntents(t *testing.T) {
	s, err := New(sel("a", "1.5"), sel("b", "2"))
	require.NoError(t, err)

	intents, err := s.Intents(decimal.NewFromInt(2), "football")
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, "b", intents[1].MarketID)
	assert.Equal(t, "football", intents[1].CategoryOrSport())
	assert.Equal(t, "2", intents[0].Stake.String())
}
