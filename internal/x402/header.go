// Package x402 implements the client side of the HTTP 402 payment
// challenge: it places a bet, answers a Payment-Required challenge with a
// single on-chain transfer, and confirms the payment with the server.
package x402

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebet/internal/crypto"
	"github.com/alanyoungcy/livebet/internal/domain"
)

// Challenge headers sent alongside a 402 response.
const (
	HeaderPaymentRequired = "Payment-Required"
	HeaderQuoteID         = "X-Quote-ID"
)

// ParsePaymentRequest parses a payment-request header value of the form
//
//	<scheme>://<address>[?amount=<decimal>]@<fallback-amount-or-empty>
//
// An amount in the query wins over the trailing fallback. The scheme may
// also be written without slashes ("ethereum:0x..."). The address must pass
// crypto.ValidateAddress. The returned Amount is empty when neither form
// carries one.
func ParsePaymentRequest(raw string) (domain.PaymentRequest, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.PaymentRequest{}, fmt.Errorf("x402: %w: empty", ErrInvalidPaymentRequest)
	}

	s = stripScheme(s)

	left, fallback, _ := strings.Cut(s, "@")
	addr, query, _ := strings.Cut(left, "?")
	addr = strings.TrimSpace(addr)

	if err := crypto.ValidateAddress(addr); err != nil {
		return domain.PaymentRequest{}, fmt.Errorf("x402: %w: %v", ErrInvalidPaymentRequest, err)
	}

	amount := strings.TrimSpace(fallback)
	if query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return domain.PaymentRequest{}, fmt.Errorf("x402: %w: query: %v", ErrInvalidPaymentRequest, err)
		}
		if values.Has("amount") {
			amount = strings.TrimSpace(values.Get("amount"))
		}
	}

	return domain.PaymentRequest{Address: addr, Amount: amount}, nil
}

// stripScheme drops "scheme://" or "scheme:" from the front of s. A bare
// address is returned unchanged.
func stripScheme(s string) string {
	if _, rest, ok := strings.Cut(s, "://"); ok {
		return rest
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// FormatPaymentRequest renders the header value a server sends for a quote.
// The amount is written both inline and as the fallback so clients reading
// either form agree.
func FormatPaymentRequest(scheme, address string, amount decimal.Decimal) string {
	a := amount.String()
	return fmt.Sprintf("%s://%s?amount=%s@%s", scheme, address, url.QueryEscape(a), a)
}

// ParseChallenge extracts a PaymentChallenge from 402 response headers. Both
// headers must be present; the payment request must parse.
func ParseChallenge(h http.Header) (domain.PaymentChallenge, error) {
	raw := strings.TrimSpace(h.Get(HeaderPaymentRequired))
	quoteID := strings.TrimSpace(h.Get(HeaderQuoteID))
	if raw == "" || quoteID == "" {
		missing := HeaderPaymentRequired
		if raw != "" {
			missing = HeaderQuoteID
		}
		return domain.PaymentChallenge{}, &PayError{
			Kind:   KindPaymentChallengeMalformed,
			Phase:  PhaseChallenge,
			Status: http.StatusPaymentRequired,
			Detail: "missing " + missing + " header",
		}
	}

	pr, err := ParsePaymentRequest(raw)
	if err != nil {
		return domain.PaymentChallenge{}, &PayError{
			Kind:    KindInvalidPaymentRequest,
			Phase:   PhaseChallenge,
			Status:  http.StatusPaymentRequired,
			QuoteID: quoteID,
			Err:     err,
		}
	}

	return domain.PaymentChallenge{
		PayeeAddress: pr.Address,
		Amount:       pr.Amount,
		QuoteID:      quoteID,
	}, nil
}
