package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/livebet/internal/domain"
)

type storedQuote struct {
	quote    domain.Quote
	deadline time.Time
}

// QuoteStore implements domain.QuoteStore with per-entry TTLs. Claimed tx
// hashes are kept after their quote expires.
type QuoteStore struct {
	mu     sync.Mutex
	quotes map[string]storedQuote
	txs    map[string]string // tx hash -> quote id
	now    func() time.Time
}

// NewQuoteStore creates an empty QuoteStore.
func NewQuoteStore() *QuoteStore {
	return &QuoteStore{
		quotes: make(map[string]storedQuote),
		txs:    make(map[string]string),
		now:    time.Now,
	}
}

// Save stores q for ttl. A zero ttl keeps it until overwritten.
func (s *QuoteStore) Save(_ context.Context, q domain.Quote, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq := storedQuote{quote: q}
	if ttl > 0 {
		sq.deadline = s.now().Add(ttl)
	}
	s.quotes[q.ID] = sq
	return nil
}

// Get returns a live quote.
func (s *QuoteStore) Get(_ context.Context, id string) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.lookup(id)
	if !ok {
		return domain.Quote{}, fmt.Errorf("memory: quote %s: %w", id, domain.ErrNotFound)
	}
	return sq.quote, nil
}

// Claim moves a pending quote to confirmed and reserves txHash for it. When
// the quote is no longer pending it returns the stored quote and
// ErrQuoteClaimed; a hash reserved by another quote gives ErrTxHashUsed.
func (s *QuoteStore) Claim(_ context.Context, id string, txHash string) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.lookup(id)
	if !ok {
		return domain.Quote{}, fmt.Errorf("memory: quote %s: %w", id, domain.ErrNotFound)
	}
	if sq.quote.Status != domain.QuoteStatusPending {
		return sq.quote, fmt.Errorf("memory: quote %s: %w", id, domain.ErrQuoteClaimed)
	}
	tx := strings.ToLower(txHash)
	if owner, ok := s.txs[tx]; ok && tx != "" && owner != id {
		return domain.Quote{}, fmt.Errorf("memory: tx %s claimed by quote %s: %w", txHash, owner, domain.ErrTxHashUsed)
	}

	sq.quote.Status = domain.QuoteStatusConfirmed
	sq.quote.TxHash = txHash
	s.quotes[id] = sq
	if tx != "" {
		s.txs[tx] = id
	}
	return sq.quote, nil
}

// Release returns a confirmed quote that has no position back to pending and
// drops its tx hash reservation.
func (s *QuoteStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("memory: quote %s: %w", id, domain.ErrNotFound)
	}
	if sq.quote.Status != domain.QuoteStatusConfirmed || sq.quote.PositionID != "" {
		return fmt.Errorf("memory: quote %s is %s: %w", id, sq.quote.Status, domain.ErrQuoteClaimed)
	}

	tx := strings.ToLower(sq.quote.TxHash)
	if s.txs[tx] == id {
		delete(s.txs, tx)
	}
	sq.quote.Status = domain.QuoteStatusPending
	sq.quote.TxHash = ""
	s.quotes[id] = sq
	return nil
}

// Update overwrites an existing quote, keeping its deadline.
func (s *QuoteStore) Update(_ context.Context, q domain.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.lookup(q.ID)
	if !ok {
		return fmt.Errorf("memory: quote %s: %w", q.ID, domain.ErrNotFound)
	}
	sq.quote = q
	s.quotes[q.ID] = sq
	return nil
}

// lookup returns a live entry, dropping it if its TTL passed. Callers hold mu.
func (s *QuoteStore) lookup(id string) (storedQuote, bool) {
	sq, ok := s.quotes[id]
	if !ok {
		return storedQuote{}, false
	}
	if !sq.deadline.IsZero() && s.now().After(sq.deadline) {
		delete(s.quotes, id)
		return storedQuote{}, false
	}
	return sq, true
}
