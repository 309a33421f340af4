package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/livebet/internal/crypto"
	"github.com/alanyoungcy/livebet/internal/domain"
)

// ResolutionConfig controls who may resolve markets and how.
type ResolutionConfig struct {
	Admins              *crypto.AddressSet
	LockTTL             time.Duration
	RequireBoundMessage bool
	SignatureTTL        time.Duration
	ArchivePrefix       string
}

// ResolutionService settles markets on behalf of allowlisted admin keys.
type ResolutionService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	cache     domain.MarketCache
	locks     domain.LockManager
	cfg       ResolutionConfig
	sinks     Sinks
	archive   domain.BlobReader
	logger    *slog.Logger
	now       func() time.Time
}

// NewResolutionService creates a ResolutionService. cache may be nil.
func NewResolutionService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	cache domain.MarketCache,
	locks domain.LockManager,
	cfg ResolutionConfig,
	sinks Sinks,
	logger *slog.Logger,
) *ResolutionService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "resolutions/"
	}
	if cfg.SignatureTTL <= 0 {
		cfg.SignatureTTL = 15 * time.Minute
	}
	return &ResolutionService{
		markets:   markets,
		positions: positions,
		cache:     cache,
		locks:     locks,
		cfg:       cfg,
		sinks:     sinks,
		logger:    logger.With(slog.String("component", "resolution_service")),
		now:       time.Now,
	}
}

// WithArchiveReader lets Archived read back what Sinks.Blobs wrote.
func (s *ResolutionService) WithArchiveReader(r domain.BlobReader) *ResolutionService {
	s.archive = r
	return s
}

// Archived returns the archived resolution document for marketID.
func (s *ResolutionService) Archived(ctx context.Context, marketID string) ([]byte, error) {
	if s.archive == nil {
		return nil, domain.NewCodedError(domain.CategoryNotFound, domain.CodeMarketNotFound, "resolution archive is disabled", nil)
	}
	rc, err := s.archive.Get(ctx, s.cfg.ArchivePrefix+marketID+".json")
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewCodedError(domain.CategoryNotFound, domain.CodeMarketNotFound, "no archived resolution for market", err)
		}
		return nil, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "archive read failed", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "archive read failed", err)
	}
	return data, nil
}

// resolutionArchive is the document written to blob storage per resolution.
type resolutionArchive struct {
	Snapshot domain.ResolutionSnapshot `json:"snapshot"`
	Admin    string                    `json:"admin"`
	Message  string                    `json:"message"`
	Payouts  []domain.Payout           `json:"payouts"`
}

// ResolveMarket verifies that req was signed by an allowlisted admin and, if
// so, moves the market from open to resolved with the requested winner.
//
// No state changes unless every check passes. Of two concurrent calls on
// the same market at most one succeeds; the other gets INVALID_MARKET_STATE.
func (s *ResolutionService) ResolveMarket(ctx context.Context, req domain.ResolutionRequest) (domain.ResolutionSnapshot, error) {
	snap, admin, err := s.resolve(ctx, req)
	if err != nil {
		code := domain.CodeInternal
		if ce, ok := domain.AsCodedError(err); ok {
			code = ce.Code
		}
		s.sinks.Metrics.Resolution(code)
		return domain.ResolutionSnapshot{}, err
	}
	s.sinks.Metrics.Resolution("ok")

	s.logger.InfoContext(ctx, "resolution_service: market resolved",
		slog.String("market_id", snap.MarketID),
		slog.String("winner", string(snap.Winner)),
		slog.String("admin", admin.Hex()),
		slog.Int64("total_bets", snap.TotalBets),
	)
	return snap, nil
}

func (s *ResolutionService) resolve(ctx context.Context, req domain.ResolutionRequest) (domain.ResolutionSnapshot, common.Address, error) {
	var none common.Address

	winner, ok := domain.ParseOutcome(req.Winner)
	if !ok {
		return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidWinner,
			fmt.Sprintf("winner must be %q or %q", domain.OutcomeYes, domain.OutcomeNo), nil)
	}
	marketID := strings.TrimSpace(req.MarketID)
	if marketID == "" {
		return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidRequest, "market id is required", nil)
	}
	if err := crypto.ValidateAddress(req.AdminAddress); err != nil {
		return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidAddress, "admin address is malformed", err)
	}
	if req.Signature == "" || req.Message == "" {
		return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidSignature, "signature and message are required", nil)
	}

	// Resolved markets are rejected before any signature work.
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryNotFound, domain.CodeMarketNotFound, "market not found", err)
		}
		return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "market lookup failed", err)
	}
	if !m.IsOpen() {
		return domain.ResolutionSnapshot{}, none, stateConflict(m)
	}

	if s.cfg.RequireBoundMessage {
		if err := s.checkBound(req.Message, marketID, winner); err != nil {
			return domain.ResolutionSnapshot{}, none, err
		}
	}

	admin, err := s.authorize(ctx, req)
	if err != nil {
		return domain.ResolutionSnapshot{}, none, err
	}

	unlock, err := s.locks.Acquire(ctx, "resolve:"+marketID, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryConflict, domain.CodeInvalidMarketState,
				"market resolution already in progress", err)
		}
		return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "resolution lock unavailable", err)
	}
	defer unlock()

	resolved, err := s.markets.ResolveIfOpen(ctx, marketID, winner, s.now())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMarketState):
			return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryConflict, domain.CodeInvalidMarketState, "market is not open", err)
		case errors.Is(err, domain.ErrNotFound):
			return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryNotFound, domain.CodeMarketNotFound, "market not found", err)
		default:
			return domain.ResolutionSnapshot{}, none, domain.NewCodedError(domain.CategoryDependency, domain.CodeDependency, "market update failed", err)
		}
	}

	snap := domain.SnapshotOf(resolved)
	s.afterResolve(ctx, resolved, snap, admin, req.Message)
	return snap, admin, nil
}

// checkBound requires the signed message to name this market and winner and
// to carry an expiry that has not passed and is no further out than
// SignatureTTL.
func (s *ResolutionService) checkBound(msg, marketID string, winner domain.Outcome) error {
	if !domain.MessageBindsResolution(msg, marketID, winner) {
		return domain.NewCodedError(domain.CategoryValidation, domain.CodeMessageMismatch,
			"signed message must name the market and winner", nil)
	}
	exp, ok := domain.ResolutionMessageExpiry(msg)
	if !ok {
		return domain.NewCodedError(domain.CategoryValidation, domain.CodeMessageMismatch,
			"signed message must carry an expiry", nil)
	}
	now := s.now()
	if !exp.After(now) {
		return domain.NewCodedError(domain.CategoryValidation, domain.CodeSignatureExpired, "signed message has expired", nil)
	}
	if exp.Sub(now) > s.cfg.SignatureTTL {
		return domain.NewCodedError(domain.CategoryValidation, domain.CodeSignatureExpired,
			fmt.Sprintf("signed message expiry is more than %s ahead", s.cfg.SignatureTTL), nil)
	}
	return nil
}

// authorize recovers the signer, checks it against the claimed address, then
// against the allowlist. Both failures share a category and message; only
// the code differs.
func (s *ResolutionService) authorize(ctx context.Context, req domain.ResolutionRequest) (common.Address, error) {
	recovered, err := crypto.RecoverAddress(req.Message, req.Signature)
	if err != nil {
		return common.Address{}, domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidSignature, "signature is malformed", err)
	}

	if !crypto.EqualAddresses(recovered.Hex(), req.AdminAddress) {
		s.rejected(ctx, req.MarketID, recovered, domain.CodeSignatureMismatch)
		return common.Address{}, domain.NewCodedError(domain.CategoryAuthorization, domain.CodeSignatureMismatch,
			"admin authorization failed", domain.ErrSignatureMismatch)
	}
	if !s.cfg.Admins.Contains(recovered) {
		s.rejected(ctx, req.MarketID, recovered, domain.CodeUnauthorized)
		return common.Address{}, domain.NewCodedError(domain.CategoryAuthorization, domain.CodeUnauthorized,
			"admin authorization failed", domain.ErrUnauthorized)
	}
	return recovered, nil
}

func (s *ResolutionService) rejected(ctx context.Context, marketID string, recovered common.Address, code string) {
	s.logger.WarnContext(ctx, "resolution_service: authorization rejected",
		slog.String("market_id", marketID),
		slog.String("recovered", recovered.Hex()),
		slog.String("code", code),
	)
	s.sinks.audit(ctx, s.logger, "resolution_rejected", map[string]any{
		"market_id": marketID,
		"recovered": recovered.Hex(),
		"code":      code,
	})
}

// afterResolve runs the best-effort side effects of a resolution.
func (s *ResolutionService) afterResolve(ctx context.Context, m domain.Market, snap domain.ResolutionSnapshot, admin common.Address, message string) {
	invalidate(ctx, s.cache, s.logger, m.ID)

	var payouts []domain.Payout
	if s.positions != nil {
		positions, err := s.positions.ListByMarket(ctx, m.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "resolution_service: list positions failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		} else if payouts, err = domain.CalculatePayouts(m, positions); err != nil {
			s.logger.ErrorContext(ctx, "resolution_service: payouts failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.sinks.audit(ctx, s.logger, domain.EventMarketResolved, map[string]any{
		"market_id":  m.ID,
		"winner":     string(snap.Winner),
		"admin":      admin.Hex(),
		"yes_pool":   snap.YesPool.String(),
		"no_pool":    snap.NoPool.String(),
		"total_bets": snap.TotalBets,
		"payouts":    len(payouts),
	})
	s.sinks.broadcast(ctx, s.logger, domain.ChannelMarkets, domain.EventMarketResolved, snap)
	s.sinks.emit(ctx, s.logger, domain.Event{Type: domain.EventMarketResolved, Key: m.ID, Payload: snap})
	s.sinks.archive(ctx, s.logger, s.cfg.ArchivePrefix+m.ID+".json", resolutionArchive{
		Snapshot: snap,
		Admin:    admin.Hex(),
		Message:  message,
		Payouts:  payouts,
	})
	s.sinks.notify(ctx, s.logger, domain.EventMarketResolved,
		"Market resolved",
		fmt.Sprintf("%s resolved %s (yes pool %s, no pool %s, %d bets)",
			m.ID, snap.Winner, snap.YesPool, snap.NoPool, snap.TotalBets),
	)
}

func stateConflict(m domain.Market) *domain.CodedError {
	return domain.NewCodedError(domain.CategoryConflict, domain.CodeInvalidMarketState,
		fmt.Sprintf("market is %s", m.Status), domain.ErrInvalidMarketState)
}
