package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidMarketState = errors.New("invalid market state")
	ErrStakeOutOfRange    = errors.New("stake out of range")
	ErrQuoteExpired       = errors.New("quote expired")
	ErrQuoteClaimed       = errors.New("quote already claimed")
	ErrTxHashUsed         = errors.New("transaction already used")
	ErrLockHeld           = errors.New("lock already held")
	ErrContextDone        = errors.New("context cancelled")
)

// ErrorCategory groups failures the way callers need to react to them.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryAuthorization ErrorCategory = "authorization"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryPayment       ErrorCategory = "payment"
	CategoryDependency    ErrorCategory = "dependency"
	CategoryInternal      ErrorCategory = "internal"
)

// Stable error codes returned to API clients.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidWinner      = "INVALID_WINNER"
	CodeInvalidOutcome     = "INVALID_OUTCOME"
	CodeInvalidAddress     = "INVALID_ADDRESS"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeMessageMismatch    = "MESSAGE_MISMATCH"
	CodeSignatureExpired   = "SIGNATURE_EXPIRED"
	CodeMarketNotFound     = "MARKET_NOT_FOUND"
	CodeSignatureMismatch  = "SIGNATURE_MISMATCH"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidMarketState = "INVALID_MARKET_STATE"
	CodeStakeOutOfRange    = "STAKE_OUT_OF_RANGE"
	CodePaymentRequired    = "PAYMENT_REQUIRED"
	CodeInvalidQuote       = "INVALID_QUOTE"
	CodeQuoteNotFound      = "QUOTE_NOT_FOUND"
	CodeQuoteExpired       = "QUOTE_EXPIRED"
	CodeQuoteClaimed       = "QUOTE_ALREADY_CLAIMED"
	CodeTxHashUsed         = "TX_ALREADY_USED"
	CodePaymentNotVerified = "PAYMENT_NOT_VERIFIED"
	CodeDependency         = "DEPENDENCY_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
)

// CodedError is a failure that carries a stable code and category so HTTP
// handlers and logs can tell a bad request from a bad actor.
type CodedError struct {
	Code     string
	Category ErrorCategory
	Message  string
	Err      error
}

// NewCodedError builds a CodedError wrapping err (which may be nil).
func NewCodedError(category ErrorCategory, code, msg string, err error) *CodedError {
	return &CodedError{Code: code, Category: category, Message: msg, Err: err}
}

func (e *CodedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Err }

// AsCodedError extracts a CodedError from err's chain.
func AsCodedError(err error) (*CodedError, bool) {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
