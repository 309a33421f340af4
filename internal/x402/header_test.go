package x402

import (
	"math/big"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payee = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func TestParsePaymentRequest(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		amount string
	}{
		{"fallback amount", "ethereum://" + payee + "@1.5", "1.5"},
		{"query wins", "ethereum://" + payee + "?amount=2.0@ignored", "2.0"},
		{"query only", "ethereum://" + payee + "?amount=3", "3"},
		{"empty fallback", "ethereum://" + payee + "@", ""},
		{"no amount", "ethereum://" + payee, ""},
		{"colon scheme", "ethereum:" + payee + "@0.25", "0.25"},
		{"bare address", payee + "@4", "4"},
		{"query without amount", "ethereum://" + payee + "?chain=1@7", "7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pr, err := ParsePaymentRequest(tc.in)
			require.NoError(t, err)
			assert.Equal(t, payee, pr.Address)
			assert.Equal(t, tc.amount, pr.Amount)
		})
	}
}

func TestParsePaymentRequestRejects(t *testing.T) {
	for name, in := range map[string]string{
		"empty":        "",
		"blank":        "   ",
		"bad address":  "ethereum://0xABC@1.5",
		"bad checksum": "ethereum://0x70997970c51812dc3A010C7d01b50e0d17dc79C8@1",
		"no address":   "ethereum://@1",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePaymentRequest(in)
			require.ErrorIs(t, err, ErrInvalidPaymentRequest)
		})
	}
}

func TestFormatPaymentRequestRoundTrip(t *testing.T) {
	raw := FormatPaymentRequest("ethereum", payee, decimal.RequireFromString("0.05"))
	assert.Equal(t, "ethereum://"+payee+"?amount=0.05@0.05", raw)

	pr, err := ParsePaymentRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, "0.05", pr.Amount)
}

func TestParseChallenge(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderPaymentRequired, "ethereum://"+payee+"@1")
	h.Set(HeaderQuoteID, "q-1")

	c, err := ParseChallenge(h)
	require.NoError(t, err)
	assert.Equal(t, "q-1", c.QuoteID)
	assert.Equal(t, payee, c.PayeeAddress)

	noQuote := http.Header{}
	noQuote.Set(HeaderPaymentRequired, "ethereum://"+payee+"@1")
	_, err = ParseChallenge(noQuote)
	require.True(t, IsKind(err, KindPaymentChallengeMalformed))
	assert.Contains(t, err.Error(), HeaderQuoteID)

	bad := http.Header{}
	bad.Set(HeaderPaymentRequired, "ethereum://nope@1")
	bad.Set(HeaderQuoteID, "q-1")
	_, err = ParseChallenge(bad)
	require.True(t, IsKind(err, KindInvalidPaymentRequest))
}

func TestResolveAmount(t *testing.T) {
	stake := decimal.NewFromInt(5)

	got, err := ResolveAmount("1.25", stake)
	require.NoError(t, err)
	assert.Equal(t, "1.25", got.String())

	got, err = ResolveAmount("", stake)
	require.NoError(t, err)
	assert.True(t, got.Equal(stake))

	for _, in := range []string{"0", "-1", "abc"} {
		_, err = ResolveAmount(in, stake)
		assert.Error(t, err, in)
	}
	_, err = ResolveAmount("", decimal.Zero)
	assert.Error(t, err)
}

func TestToBaseUnits(t *testing.T) {
	wei, err := ToBaseUnits(decimal.RequireFromString("1.5"), 18)
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, want, wei)

	_, err = ToBaseUnits(decimal.RequireFromString("0.0000001"), 6)
	assert.Error(t, err)

	assert.Equal(t, "1.5", FromBaseUnits(want, 18).String())

	_, err = ToBaseUnits(decimal.RequireFromString("1"+strings.Repeat("0", 3)), -1)
	assert.Error(t, err)
}
