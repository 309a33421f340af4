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

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// NUMERIC columns are read back as text so no precision is lost on the way
// into decimal.Decimal.
const marketSelectCols = `id, question, category, status, winner,
	yes_pool::text, no_pool::text, total_bets, resolved_at, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status, yesPool, noPool string
	var winner *string
	if err := row.Scan(
		&m.ID, &m.Question, &m.Category, &status, &winner,
		&yesPool, &noPool, &m.TotalBets, &m.ResolvedAt, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return domain.Market{}, err
	}

	m.Status = domain.MarketStatus(status)
	if winner != nil {
		w := domain.Outcome(*winner)
		m.Winner = &w
	}
	var err error
	if m.YesPool, err = decimal.NewFromString(yesPool); err != nil {
		return domain.Market{}, fmt.Errorf("yes_pool: %w", err)
	}
	if m.NoPool, err = decimal.NewFromString(noPool); err != nil {
		return domain.Market{}, fmt.Errorf("no_pool: %w", err)
	}
	return m, nil
}

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (id, question, category, status, yes_pool, no_pool, total_bets, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), NOW())`

	status := m.Status
	if status == "" {
		status = domain.MarketStatusOpen
	}
	var createdAt *time.Time
	if !m.CreatedAt.IsZero() {
		createdAt = &m.CreatedAt
	}

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Category, string(status),
		m.YesPool.String(), m.NoPool.String(), m.TotalBets, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: market %s: %w", m.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID returns a single market.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets newest first, optionally filtered by status.
func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	var f filter
	if status != "" {
		f.add("status = ?", string(status))
	}
	f.timeRange("created_at", opts)
	query := `SELECT ` + marketSelectCols + ` FROM markets` + f.where() + ` ORDER BY created_at DESC, id ASC` + f.page(opts)

	rows, err := s.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	markets := []domain.Market{}
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

// creditQuery returns the conditional UPDATE that adds $2 to one side of
// open market $1 and returns the updated row.
func creditQuery(outcome domain.Outcome) (string, error) {
	var column string
	switch outcome {
	case domain.OutcomeYes:
		column = "yes_pool"
	case domain.OutcomeNo:
		column = "no_pool"
	default:
		return "", fmt.Errorf("postgres: unknown outcome %q", outcome)
	}

	return `
		UPDATE markets
		SET ` + column + ` = ` + column + ` + $2::numeric,
			total_bets = total_bets + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING ` + marketSelectCols, nil
}

// ResolveIfOpen flips an open market to resolved. The WHERE status = 'open'
// guard makes it a compare-and-set: of two concurrent callers only one gets
// a row back.
func (s *MarketStore) ResolveIfOpen(ctx context.Context, id string, winner domain.Outcome, at time.Time) (domain.Market, error) {
	query := `
		UPDATE markets
		SET status = 'resolved',
			winner = $2,
			resolved_at = $3,
			updated_at = $3
		WHERE id = $1 AND status = 'open'
		RETURNING ` + marketSelectCols

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id, string(winner), at.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.notOpen(ctx, id)
		}
		return domain.Market{}, fmt.Errorf("postgres: resolve market %s: %w", id, err)
	}
	return m, nil
}

// notOpen explains why a conditional update matched no row.
func (s *MarketStore) notOpen(ctx context.Context, id string) (domain.Market, error) {
	return notOpen(ctx, s.pool, id)
}

func notOpen(ctx context.Context, q querier, id string) (domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1`
	m, err := scanMarket(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, fmt.Errorf("postgres: market %s is %s: %w", id, m.Status, domain.ErrInvalidMarketState)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
