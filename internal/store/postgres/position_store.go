package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, market_id, outcome, category, stake::text,
	COALESCE(quote_id, ''), tx_hash, created_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var outcome, stake string

	if err := row.Scan(
		&p.ID, &p.MarketID, &outcome, &p.Category, &stake,
		&p.QuoteID, &p.TxHash, &p.CreatedAt,
	); err != nil {
		return domain.Position{}, err
	}
	p.Outcome = domain.Outcome(outcome)

	var err error
	if p.Stake, err = decimal.NewFromString(stake); err != nil {
		return domain.Position{}, fmt.Errorf("stake: %w", err)
	}
	return p, nil
}

// Place credits the market pool and inserts p in one transaction. The pool
// UPDATE is conditional on the market being open; the unique indexes on
// quote_id and tx_hash reject a second position for either.
func (s *PositionStore) Place(ctx context.Context, p domain.Position) (domain.Market, error) {
	credit, err := creditQuery(p.Outcome)
	if err != nil {
		return domain.Market{}, err
	}
	const insert = `
		INSERT INTO positions (id, market_id, outcome, category, stake, quote_id, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, NULLIF($6, ''), $7, $8)`

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: begin place %s: %w", p.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m, err := scanMarket(tx.QueryRow(ctx, credit, p.MarketID, p.Stake.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notOpen(ctx, tx, p.MarketID)
		}
		return domain.Market{}, fmt.Errorf("postgres: add to pool %s: %w", p.MarketID, err)
	}

	_, err = tx.Exec(ctx, insert,
		p.ID, p.MarketID, string(p.Outcome), p.Category, p.Stake.String(),
		p.QuoteID, p.TxHash, createdAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == "idx_positions_tx_hash" {
				return domain.Market{}, fmt.Errorf("postgres: tx %s: %w", p.TxHash, domain.ErrTxHashUsed)
			}
			return domain.Market{}, fmt.Errorf("postgres: position %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return domain.Market{}, fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: commit place %s: %w", p.ID, err)
	}
	return m, nil
}

// GetByID returns a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetByQuote returns the position minted for quoteID.
func (s *PositionStore) GetByQuote(ctx context.Context, quoteID string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE quote_id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, quoteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("postgres: position for quote %s: %w", quoteID, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position for quote %s: %w", quoteID, err)
	}
	return p, nil
}

// ListByMarket returns every position on a market, oldest first.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE market_id = $1 ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", marketID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}
