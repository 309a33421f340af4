package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/livebet/internal/domain"
)

func TestFilterNumbersPlaceholders(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	opts := domain.ListOpts{Limit: 10, Offset: 20, Since: &since}

	var f filter
	f.add("status = ?", "open")
	f.timeRange("created_at", opts)
	sql := f.where() + f.page(opts)

	assert.Equal(t, " WHERE status = $1 AND created_at >= $2 LIMIT $3 OFFSET $4", sql)
	assert.Equal(t, []any{"open", since, 10, 20}, f.args)
}

func TestFilterEmpty(t *testing.T) {
	var f filter
	assert.Empty(t, f.where())
	assert.Empty(t, f.page(domain.ListOpts{}))
	assert.Empty(t, f.args)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/livebet?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "livebet", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://u:p@db:6543/livebet?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, Database: "livebet", User: "u", Password: "p", SSLMode: "require"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestCreditQueryPicksPoolColumn(t *testing.T) {
	q, err := creditQuery(domain.OutcomeNo)
	assert.NoError(t, err)
	assert.Contains(t, q, "no_pool = no_pool + $2::numeric")
	assert.Contains(t, q, "status = 'open'")

	_, err = creditQuery("MAYBE")
	assert.Error(t, err)
}

func TestUniqueViolationNamesIndex(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_positions_tx_hash"})
	name, ok := uniqueViolation(err)
	assert.True(t, ok)
	assert.Equal(t, "idx_positions_tx_hash", name)

	_, ok = uniqueViolation(&pgconn.PgError{Code: "23503"})
	assert.False(t, ok)
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
