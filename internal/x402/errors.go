package x402

import (
	"errors"
	"fmt"
)

// Kind classifies why a Pay call failed.
type Kind string

const (
	KindPaymentChallengeMalformed Kind = "payment_challenge_malformed"
	KindInvalidPaymentRequest     Kind = "invalid_payment_request"
	KindInvalidAmount             Kind = "invalid_amount"
	KindWalletUnavailable         Kind = "wallet_unavailable"
	KindTransactionFailed         Kind = "transaction_failed"
	KindConfirmationFailed        Kind = "confirmation_failed"
	KindRequestFailed             Kind = "request_failed"
	KindTimeout                   Kind = "timeout"
	KindInFlight                  Kind = "in_flight"
)

// Phase is the step of the payment cycle a failure happened in.
type Phase string

const (
	PhaseRequest   Phase = "request"
	PhaseChallenge Phase = "challenge"
	PhaseWallet    Phase = "wallet"
	PhaseConfirm   Phase = "confirm"
)

// PayError is the typed failure returned by Client.Pay.
//
// The one distinction callers must never blur: when FundsMoved reports true a
// transaction was already submitted and the failure needs reconciliation,
// not a retry.
type PayError struct {
	Kind    Kind
	Phase   Phase
	Status  int    // HTTP status of the failing response, if any
	Detail  string // server-provided error detail, if any
	QuoteID string
	TxHash  string
	Err     error

	// uncertain is set when the wallet did not answer in time: a transaction
	// may or may not have been broadcast.
	uncertain bool
}

func (e *PayError) Error() string {
	msg := "x402: " + string(e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.TxHash != "" {
		msg += " [tx " + e.TxHash + "]"
	}
	return msg
}

func (e *PayError) Unwrap() error { return e.Err }

// FundsMoved reports whether a transaction was submitted before the failure.
func (e *PayError) FundsMoved() bool {
	return e.TxHash != ""
}

// Uncertain reports whether the wallet timed out, so a transaction may exist
// that this client never saw a hash for.
func (e *PayError) Uncertain() bool {
	return e.uncertain
}

// SafeToRetry reports whether nothing happened on chain, so calling Pay again
// cannot produce a second payment for the same intent.
func (e *PayError) SafeToRetry() bool {
	return !e.FundsMoved() && !e.uncertain && e.Kind != KindInFlight
}

// IsKind reports whether err is a *PayError of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *PayError
	return errors.As(err, &pe) && pe.Kind == kind
}

// AsPayError extracts a *PayError from err's chain.
func AsPayError(err error) (*PayError, bool) {
	var pe *PayError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ErrInvalidPaymentRequest is wrapped by every payment-request parse failure.
var ErrInvalidPaymentRequest = errors.New("invalid payment request")
