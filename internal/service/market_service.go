package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// MarketService handles market creation and lookup.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	sinks   Sinks
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	sinks Sinks,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		sinks:   sinks,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarketInput is the request to open a new market.
type CreateMarketInput struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Category string `json:"category"`
}

// CreateMarket opens a new market with empty pools.
func (s *MarketService) CreateMarket(ctx context.Context, in CreateMarketInput) (domain.Market, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return domain.Market{}, domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidRequest, "question is required", nil)
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	m := domain.Market{
		ID:        id,
		Question:  question,
		Category:  strings.TrimSpace(in.Category),
		Status:    domain.MarketStatusOpen,
		YesPool:   decimal.Zero,
		NoPool:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.markets.Create(ctx, m); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.Market{}, domain.NewCodedError(domain.CategoryConflict, domain.CodeInvalidRequest, "market id already exists", err)
		}
		return domain.Market{}, fmt.Errorf("market_service: create %q: %w", id, err)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", id),
		slog.String("category", m.Category),
	)
	s.sinks.audit(ctx, s.logger, "market_created", map[string]any{"market_id": id, "question": question})
	s.sinks.broadcast(ctx, s.logger, domain.ChannelMarkets, "market_created", m)
	return m, nil
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, domain.NewCodedError(domain.CategoryNotFound, domain.CodeMarketNotFound, "market not found", err)
		}
		return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets returns markets filtered by status ("" for all).
func (s *MarketService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	switch status {
	case "", domain.MarketStatusOpen, domain.MarketStatusResolved:
	default:
		return nil, domain.NewCodedError(domain.CategoryValidation, domain.CodeInvalidRequest, fmt.Sprintf("unknown status %q", status), nil)
	}
	markets, err := s.markets.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	n, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return n, nil
}

// invalidate drops a market from the cache after a write.
func invalidate(ctx context.Context, cache domain.MarketCache, logger *slog.Logger, id string) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, id); err != nil {
		logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}
