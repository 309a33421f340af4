package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebet/internal/domain"
)

func TestMarketServiceCreateAndGet(t *testing.T) {
	b := newBackend()
	svc := NewMarketService(b.markets, nil, b.sinks(), discardLogger())
	ctx := context.Background()

	m, err := svc.CreateMarket(ctx, CreateMarketInput{Question: "  Will the home side win?  ", Category: "football"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "Will the home side win?", m.Question)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)

	got, err := svc.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = svc.GetMarket(ctx, "missing")
	requireCode(t, err, domain.CodeMarketNotFound)

	_, err = svc.CreateMarket(ctx, CreateMarketInput{ID: m.ID, Question: "dup"})
	ce := requireCode(t, err, domain.CodeInvalidRequest)
	assert.Equal(t, domain.CategoryConflict, ce.Category)

	_, err = svc.CreateMarket(ctx, CreateMarketInput{})
	requireCode(t, err, domain.CodeInvalidRequest)
}

func TestMarketServiceList(t *testing.T) {
	b := newBackend()
	svc := NewMarketService(b.markets, nil, b.sinks(), discardLogger())
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := svc.CreateMarket(ctx, CreateMarketInput{ID: id, Question: id})
		require.NoError(t, err)
	}

	all, err := svc.ListMarkets(ctx, "", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.ListMarkets(ctx, "bogus", domain.ListOpts{})
	requireCode(t, err, domain.CodeInvalidRequest)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
