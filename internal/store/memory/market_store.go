// Package memory provides in-process implementations of the domain store,
// lock and bus interfaces. They back single-node deployments without
// Postgres or Redis, and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// MarketStore implements domain.MarketStore.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

func cloneMarket(m domain.Market) domain.Market {
	if m.Winner != nil {
		w := *m.Winner
		m.Winner = &w
	}
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		m.ResolvedAt = &t
	}
	return m
}

// Create inserts a new market.
func (s *MarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("memory: market %s: %w", m.ID, domain.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = domain.MarketStatusOpen
	}
	s.markets[m.ID] = cloneMarket(m)
	return nil
}

// GetByID returns the market with the given id.
func (s *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: market %s: %w", id, domain.ErrNotFound)
	}
	return cloneMarket(m), nil
}

// List returns markets newest first, optionally filtered by status.
func (s *MarketStore) List(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if status != "" && m.Status != status {
			continue
		}
		if opts.Since != nil && m.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && m.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, cloneMarket(m))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, opts), nil
}

// Count returns the number of markets.
func (s *MarketStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.markets)), nil
}

// creditLocked adds stake to the outcome's pool of an open market and
// returns the market as it would be stored, without storing it. Callers hold
// mu and write the result back once every other check has passed.
func (s *MarketStore) creditLocked(id string, outcome domain.Outcome, stake decimal.Decimal) (domain.Market, error) {
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: market %s: %w", id, domain.ErrNotFound)
	}
	if !m.IsOpen() {
		return cloneMarket(m), fmt.Errorf("memory: market %s is %s: %w", id, m.Status, domain.ErrInvalidMarketState)
	}

	switch outcome {
	case domain.OutcomeYes:
		m.YesPool = m.YesPool.Add(stake)
	case domain.OutcomeNo:
		m.NoPool = m.NoPool.Add(stake)
	default:
		return domain.Market{}, fmt.Errorf("memory: unknown outcome %q", outcome)
	}
	m.TotalBets++
	m.UpdatedAt = time.Now().UTC()
	return m, nil
}

// ResolveIfOpen moves an open market to resolved. The check and the write
// happen under one lock, so of two concurrent callers exactly one wins.
func (s *MarketStore) ResolveIfOpen(_ context.Context, id string, winner domain.Outcome, at time.Time) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: market %s: %w", id, domain.ErrNotFound)
	}
	if !m.IsOpen() {
		return cloneMarket(m), fmt.Errorf("memory: market %s is %s: %w", id, m.Status, domain.ErrInvalidMarketState)
	}

	w := winner
	resolvedAt := at.UTC()
	m.Status = domain.MarketStatusResolved
	m.Winner = &w
	m.ResolvedAt = &resolvedAt
	m.UpdatedAt = resolvedAt
	s.markets[id] = m
	return cloneMarket(m), nil
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return []T{}
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
