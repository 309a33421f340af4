package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebet/internal/crypto"
	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/x402"
)

// TransferVerifier checks an on-chain payment. *wallet.Verifier satisfies it.
type TransferVerifier interface {
	VerifyTransfer(ctx context.Context, txHash string, to common.Address, minWei *big.Int) error
}

// BettingConfig holds the server-side betting rules.
type BettingConfig struct {
	MinStake         decimal.Decimal
	MaxStake         decimal.Decimal
	ChallengeEnabled bool
	PayeeAddress     string
	Scheme           string
	QuoteTTL         time.Duration
	Decimals         int32
}

// BetService places bets and settles their payment challenges.
type BetService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	quotes    domain.QuoteStore
	cache     domain.MarketCache
	quoteIDs  *crypto.QuoteSigner
	verifier  TransferVerifier
	cfg       BettingConfig
	sinks     Sinks
	logger    *slog.Logger
	now       func() time.Time
}

// NewBetService creates a BetService. cache and verifier may be nil; with a
// nil verifier transfers are trusted on the client's word.
func NewBetService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	quotes domain.QuoteStore,
	cache domain.MarketCache,
	quoteIDs *crypto.QuoteSigner,
	verifier TransferVerifier,
	cfg BettingConfig,
	sinks Sinks,
	logger *slog.Logger,
) *BetService {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 10 * time.Minute
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "ethereum"
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = 18
	}
	return &BetService{
		markets:   markets,
		positions: positions,
		quotes:    quotes,
		cache:     cache,
		quoteIDs:  quoteIDs,
		verifier:  verifier,
		cfg:       cfg,
		sinks:     sinks,
		logger:    logger.With(slog.String("component", "bet_service")),
		now:       time.Now,
	}
}

// PlaceResult is the outcome of PlaceBet: either a payment challenge or a
// recorded position.
type PlaceResult struct {
	Challenge     *domain.PaymentChallenge
	PaymentHeader string
	Position      *domain.Position
	Market        domain.Market
}

// PlaceBet validates intent against the market and the stake bounds. With
// challenges enabled it issues a quote to be paid; otherwise the position is
// recorded immediately.
func (s *BetService) PlaceBet(ctx context.Context, intent domain.BetIntent) (PlaceResult, error) {
	m, outcome, err := s.validate(ctx, intent)
	if err != nil {
		s.sinks.Metrics.BetPlaced(codeOf(err))
		return PlaceResult{}, err
	}

	if !s.cfg.ChallengeEnabled {
		pos, updated, err := s.mint(ctx, m.ID, outcome, intent.CategoryOrSport(), intent.Stake, "", "")
		if err != nil {
			s.sinks.Metrics.BetPlaced(codeOf(err))
			return PlaceResult{}, err
		}
		s.sinks.Metrics.BetPlaced("placed")
		return PlaceResult{Position: &pos, Market: updated}, nil
	}

	now := s.now().UTC()
	q := domain.Quote{
		ID:        s.quoteIDs.NewQuoteID(),
		MarketID:  m.ID,
		Outcome:   outcome,
		Category:  intent.CategoryOrSport(),
		Stake:     intent.Stake,
		Amount:    intent.Stake,
		Payee:     s.cfg.PayeeAddress,
		Status:    domain.QuoteStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.QuoteTTL),
	}
	// The store keeps quotes a little past expiry so late confirms get
	// QUOTE_EXPIRED rather than QUOTE_NOT_FOUND.
	if err := s.quotes.Save(ctx, q, 2*s.cfg.QuoteTTL); err != nil {
		s.sinks.Metrics.BetPlaced(domain.CodeDependency)
		return PlaceResult{}, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "could not issue quote", err)
	}

	s.logger.InfoContext(ctx, "bet_service: payment challenge issued",
		slog.String("quote_id", q.ID),
		slog.String("market_id", q.MarketID),
		slog.String("outcome", string(q.Outcome)),
		slog.String("amount", q.Amount.String()),
	)
	s.sinks.Metrics.BetPlaced("challenged")

	return PlaceResult{
		Challenge: &domain.PaymentChallenge{
			PayeeAddress: q.Payee,
			Amount:       q.Amount.String(),
			QuoteID:      q.ID,
		},
		PaymentHeader: x402.FormatPaymentRequest(s.cfg.Scheme, q.Payee, q.Amount),
		Market:        m,
	}, nil
}

func (s *BetService) validate(ctx context.Context, intent domain.BetIntent) (domain.Market, domain.Outcome, error) {
	if strings.TrimSpace(intent.MarketID) == "" {
		return domain.Market{}, "", domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidRequest, "marketId is required", nil)
	}
	outcome, ok := domain.ParseOutcome(string(intent.Outcome))
	if !ok {
		return domain.Market{}, "", domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidOutcome,
			fmt.Sprintf("outcome must be %q or %q", domain.OutcomeYes, domain.OutcomeNo), nil)
	}
	if !intent.Stake.IsPositive() ||
		(!s.cfg.MinStake.IsZero() && intent.Stake.LessThan(s.cfg.MinStake)) ||
		(!s.cfg.MaxStake.IsZero() && intent.Stake.GreaterThan(s.cfg.MaxStake)) {
		return domain.Market{}, "", domain.NewCodedError(domain.CategoryValidation, domain.CodeStakeOutOfRange,
			fmt.Sprintf("stake must be between %s and %s", s.cfg.MinStake, s.cfg.MaxStake), domain.ErrStakeOutOfRange)
	}

	m, err := s.markets.GetByID(ctx, intent.MarketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, "", domain.NewCodedError(domain.CategoryNotFound, domain.CodeMarketNotFound, "market not found", err)
		}
		return domain.Market{}, "", domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "market lookup failed", err)
	}
	if !m.IsOpen() {
		return domain.Market{}, "", stateConflict(m)
	}
	return m, outcome, nil
}

// Confirmation is the outcome of ConfirmPayment.
type Confirmation struct {
	Quote    domain.Quote
	Position domain.Position
	// Replayed is set when the quote had already been confirmed and the
	// existing position is returned.
	Replayed bool
}

// ConfirmPayment settles a quote: it checks the quote, optionally verifies
// the transfer on chain, claims the quote once and mints the position. A
// repeated confirm of the same quote returns the position minted the first
// time.
func (s *BetService) ConfirmPayment(ctx context.Context, quoteID, txHash string) (Confirmation, error) {
	c, err := s.confirm(ctx, strings.TrimSpace(quoteID), strings.ToLower(strings.TrimSpace(txHash)))
	switch {
	case err != nil:
		s.sinks.Metrics.PaymentConfirmed(codeOf(err))
	case c.Replayed:
		s.sinks.Metrics.PaymentConfirmed("replayed")
	default:
		s.sinks.Metrics.PaymentConfirmed("confirmed")
	}
	return c, err
}

func (s *BetService) confirm(ctx context.Context, quoteID, txHash string) (Confirmation, error) {
	if quoteID == "" || s.quoteIDs == nil || !s.quoteIDs.Verify(quoteID) {
		return Confirmation{}, domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidQuote, "quote id is invalid", nil)
	}

	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Confirmation{}, domain.NewCodedError(domain.CategoryNotFound, domain.CodeQuoteNotFound, "quote not found", err)
		}
		return Confirmation{}, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "quote lookup failed", err)
	}

	if q.Status != domain.QuoteStatusPending {
		return s.replay(ctx, q)
	}
	if q.Expired(s.now()) {
		return Confirmation{}, domain.NewCodedError(domain.CategoryConflict, domain.CodeQuoteExpired, "quote expired", domain.ErrQuoteExpired)
	}

	if s.verifier != nil {
		if err := s.verifyTransfer(ctx, q, txHash); err != nil {
			return Confirmation{}, err
		}
	}

	claimed, err := s.quotes.Claim(ctx, quoteID, txHash)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQuoteClaimed):
			return s.replay(ctx, claimed)
		case errors.Is(err, domain.ErrTxHashUsed):
			return Confirmation{}, txHashUsed(err)
		default:
			return Confirmation{}, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "quote claim failed", err)
		}
	}

	pos, _, err := s.mint(ctx, claimed.MarketID, claimed.Outcome, claimed.Category, claimed.Stake, claimed.ID, txHash)
	if err != nil {
		switch {
		case codeOf(err) == domain.CodeInvalidMarketState:
			s.refundRequired(ctx, claimed)
		case errors.Is(err, domain.ErrAlreadyExists):
			// An earlier attempt placed the position but never recorded it
			// on the quote.
			if existing, gerr := s.positions.GetByQuote(ctx, claimed.ID); gerr == nil {
				return s.attach(ctx, claimed, existing), nil
			}
			s.release(ctx, claimed, err)
		default:
			s.release(ctx, claimed, err)
		}
		return Confirmation{}, err
	}

	claimed.PositionID = pos.ID
	if err := s.quotes.Update(ctx, claimed); err != nil {
		s.logger.ErrorContext(ctx, "bet_service: quote update failed",
			slog.String("quote_id", claimed.ID),
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	s.sinks.emit(ctx, s.logger, domain.Event{Type: domain.EventPaymentConfirmed, Key: claimed.MarketID, Payload: claimed})
	return Confirmation{Quote: claimed, Position: pos}, nil
}

func (s *BetService) verifyTransfer(ctx context.Context, q domain.Quote, txHash string) error {
	if txHash == "" {
		return domain.NewCodedError(domain.CategoryPayment, domain.CodePaymentNotVerified, "tx_hash is required", nil)
	}
	wei, err := x402.ToBaseUnits(q.Amount, s.cfg.Decimals)
	if err != nil {
		return domain.NewCodedError(domain.CategoryInternal, domain.CodeInternal, "quote amount not payable", err)
	}
	if err := s.verifier.VerifyTransfer(ctx, txHash, common.HexToAddress(q.Payee), wei); err != nil {
		s.logger.WarnContext(ctx, "bet_service: transfer not verified",
			slog.String("quote_id", q.ID),
			slog.String("tx_hash", txHash),
			slog.String("error", err.Error()),
		)
		return domain.NewCodedError(domain.CategoryPayment, domain.CodePaymentNotVerified, "payment could not be verified", err)
	}
	return nil
}

// replay answers a confirm for a quote that is no longer pending.
func (s *BetService) replay(ctx context.Context, q domain.Quote) (Confirmation, error) {
	switch q.Status {
	case domain.QuoteStatusRefundRequired:
		return Confirmation{}, domain.NewCodedError(domain.CategoryConflict, domain.CodeInvalidMarketState,
			"market closed before payment was confirmed; refund required", domain.ErrInvalidMarketState)
	case domain.QuoteStatusConfirmed:
		if q.PositionID == "" {
			pos, err := s.positions.GetByQuote(ctx, q.ID)
			switch {
			case err == nil:
				return s.attach(ctx, q, pos), nil
			case errors.Is(err, domain.ErrNotFound):
				return Confirmation{}, domain.NewCodedError(domain.CategoryConflict, domain.CodeQuoteClaimed,
					"quote confirmation in progress", domain.ErrQuoteClaimed)
			default:
				return Confirmation{}, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "position lookup failed", err)
			}
		}
		pos, err := s.positions.GetByID(ctx, q.PositionID)
		if err != nil {
			return Confirmation{}, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "position lookup failed", err)
		}
		return Confirmation{Quote: q, Position: pos, Replayed: true}, nil
	default:
		return Confirmation{}, domain.NewCodedError(domain.CategoryConflict, domain.CodeQuoteClaimed, "quote already claimed", domain.ErrQuoteClaimed)
	}
}

// attach records an already placed position on its quote and answers as a
// replay.
func (s *BetService) attach(ctx context.Context, q domain.Quote, pos domain.Position) Confirmation {
	q.PositionID = pos.ID
	if err := s.quotes.Update(ctx, q); err != nil {
		s.logger.ErrorContext(ctx, "bet_service: quote update failed",
			slog.String("quote_id", q.ID),
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
	return Confirmation{Quote: q, Position: pos, Replayed: true}
}

// release hands a claimed quote back to pending after its position could not
// be placed, so the payer can retry the confirm.
func (s *BetService) release(ctx context.Context, q domain.Quote, cause error) {
	s.logger.WarnContext(ctx, "bet_service: placement failed, releasing quote",
		slog.String("quote_id", q.ID),
		slog.String("tx_hash", q.TxHash),
		slog.String("error", cause.Error()),
	)
	if err := s.quotes.Release(ctx, q.ID); err != nil {
		s.logger.ErrorContext(ctx, "bet_service: quote release failed",
			slog.String("quote_id", q.ID),
			slog.String("error", err.Error()),
		)
	}
}

func txHashUsed(err error) *domain.CodedError {
	return domain.NewCodedError(domain.CategoryConflict, domain.CodeTxHashUsed,
		"transaction already confirmed another quote", err)
}

// mint credits the market pool and records the position in one store write.
// The pool update is conditional on the market being open.
func (s *BetService) mint(ctx context.Context, marketID string, outcome domain.Outcome, category string, stake decimal.Decimal, quoteID, txHash string) (domain.Position, domain.Market, error) {
	pos := domain.Position{
		ID:        uuid.NewString(),
		MarketID:  marketID,
		Outcome:   outcome,
		Category:  category,
		Stake:     stake,
		QuoteID:   quoteID,
		TxHash:    txHash,
		CreatedAt: s.now().UTC(),
	}
	updated, err := s.positions.Place(ctx, pos)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMarketState):
			return domain.Position{}, domain.Market{}, domain.NewCodedError(domain.CategoryConflict, domain.CodeInvalidMarketState, "market is not open", err)
		case errors.Is(err, domain.ErrNotFound):
			return domain.Position{}, domain.Market{}, domain.NewCodedError(domain.CategoryNotFound, domain.CodeMarketNotFound, "market not found", err)
		case errors.Is(err, domain.ErrTxHashUsed):
			return domain.Position{}, domain.Market{}, txHashUsed(err)
		case errors.Is(err, domain.ErrAlreadyExists):
			return domain.Position{}, domain.Market{}, domain.NewCodedError(domain.CategoryConflict, domain.CodeQuoteClaimed, "quote already placed", err)
		default:
			return domain.Position{}, domain.Market{}, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "position create failed", err)
		}
	}
	invalidate(ctx, s.cache, s.logger, marketID)

	s.logger.InfoContext(ctx, "bet_service: position minted",
		slog.String("position_id", pos.ID),
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.String("stake", stake.String()),
	)
	s.sinks.Metrics.Staked(string(outcome), stake.InexactFloat64())
	s.sinks.audit(ctx, s.logger, domain.EventBetPlaced, map[string]any{
		"position_id": pos.ID,
		"market_id":   marketID,
		"outcome":     string(outcome),
		"stake":       stake.String(),
		"quote_id":    quoteID,
		"tx_hash":     txHash,
	})
	s.sinks.broadcast(ctx, s.logger, domain.ChannelBets, domain.EventBetPlaced, pos)
	s.sinks.broadcast(ctx, s.logger, domain.ChannelMarkets, "market_updated", updated)
	s.sinks.emit(ctx, s.logger, domain.Event{Type: domain.EventBetPlaced, Key: marketID, Payload: pos})
	return pos, updated, nil
}

// refundRequired flags a paid quote whose market closed before the payment
// was confirmed. Funds have moved, so operators must reconcile by hand.
func (s *BetService) refundRequired(ctx context.Context, q domain.Quote) {
	q.Status = domain.QuoteStatusRefundRequired
	if err := s.quotes.Update(ctx, q); err != nil {
		s.logger.ErrorContext(ctx, "bet_service: quote update failed",
			slog.String("quote_id", q.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.WarnContext(ctx, "bet_service: refund required",
		slog.String("quote_id", q.ID),
		slog.String("market_id", q.MarketID),
		slog.String("tx_hash", q.TxHash),
		slog.String("amount", q.Amount.String()),
	)
	s.sinks.audit(ctx, s.logger, domain.EventRefundRequired, map[string]any{
		"quote_id":  q.ID,
		"market_id": q.MarketID,
		"tx_hash":   q.TxHash,
		"amount":    q.Amount.String(),
		"payee":     q.Payee,
	})
	s.sinks.emit(ctx, s.logger, domain.Event{Type: domain.EventRefundRequired, Key: q.MarketID, Payload: q})
	s.sinks.notify(ctx, s.logger, domain.EventRefundRequired, "Refund required",
		fmt.Sprintf("quote %s paid %s via %s after market %s closed", q.ID, q.Amount, q.TxHash, q.MarketID))
}

func codeOf(err error) string {
	if ce, ok := domain.AsCodedError(err); ok {
		return ce.Code
	}
	return domain.CodeInternal
}
