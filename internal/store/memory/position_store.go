package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// PositionStore implements domain.PositionStore. Place writes through to
// the MarketStore it was built with.
type PositionStore struct {
	markets *MarketStore

	mu        sync.RWMutex
	positions map[string]domain.Position
}

// NewPositionStore creates an empty PositionStore crediting pools in markets.
func NewPositionStore(markets *MarketStore) *PositionStore {
	return &PositionStore{markets: markets, positions: make(map[string]domain.Position)}
}

// Place credits the market pool and records p under both locks, so a failed
// check leaves neither store changed.
func (s *PositionStore) Place(_ context.Context, p domain.Position) (domain.Market, error) {
	s.markets.mu.Lock()
	defer s.markets.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[p.ID]; ok {
		return domain.Market{}, fmt.Errorf("memory: position %s: %w", p.ID, domain.ErrAlreadyExists)
	}
	for _, existing := range s.positions {
		if p.QuoteID != "" && existing.QuoteID == p.QuoteID {
			return domain.Market{}, fmt.Errorf("memory: quote %s already placed: %w", p.QuoteID, domain.ErrAlreadyExists)
		}
		if p.TxHash != "" && strings.EqualFold(existing.TxHash, p.TxHash) {
			return domain.Market{}, fmt.Errorf("memory: tx %s: %w", p.TxHash, domain.ErrTxHashUsed)
		}
	}

	m, err := s.markets.creditLocked(p.MarketID, p.Outcome, p.Stake)
	if err != nil {
		return m, err
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.markets.markets[m.ID] = m
	s.positions[p.ID] = p
	return cloneMarket(m), nil
}

// GetByID returns a position.
func (s *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: position %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// GetByQuote returns the position minted for quoteID.
func (s *PositionStore) GetByQuote(_ context.Context, quoteID string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.positions {
		if quoteID != "" && p.QuoteID == quoteID {
			return p, nil
		}
	}
	return domain.Position{}, fmt.Errorf("memory: position for quote %s: %w", quoteID, domain.ErrNotFound)
}

// ListByMarket returns the positions of a market in creation order.
func (s *PositionStore) ListByMarket(_ context.Context, marketID string) ([]domain.Position, error) {
	s.mu.RLock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
