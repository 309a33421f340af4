package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// testClient connects to LIVEBET_TEST_REDIS_ADDR under a throwaway prefix.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("LIVEBET_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIVEBET_TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb, "livebet-test:"+uuid.NewString()+":")
}

func TestKeyNamespacing(t *testing.T) {
	c := NewFromClient(nil, "")
	assert.Equal(t, "livebet:quote:abc", c.key("quote", "abc"))
	assert.Equal(t, "livebet:lock:resolve:m1", c.key("lock", "resolve:m1"))
}

func TestLockManager(t *testing.T) {
	c := testClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "resolve:m1", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "resolve:m1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, "resolve:m1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(testClient(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarketCache(t *testing.T) {
	mc := NewMarketCache(testClient(t), time.Minute)
	ctx := context.Background()

	_, err := mc.Get(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	m := domain.Market{ID: "m1", Question: "q", Status: domain.MarketStatusOpen, YesPool: decimal.RequireFromString("1.25")}
	require.NoError(t, mc.Set(ctx, m))

	got, err := mc.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.YesPool.Equal(m.YesPool))

	require.NoError(t, mc.Invalidate(ctx, "m1"))
	_, err = mc.Get(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuoteStoreClaimOnce(t *testing.T) {
	qs := NewQuoteStore(testClient(t))
	ctx := context.Background()

	q := domain.Quote{ID: "q1", MarketID: "m1", Outcome: domain.OutcomeYes, Stake: decimal.NewFromInt(1), Status: domain.QuoteStatusPending}
	require.NoError(t, qs.Save(ctx, q, time.Minute))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = qs.Claim(ctx, "q1", "0xabc")
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrQuoteClaimed), err)
	}
	assert.Equal(t, 1, won)

	got, err := qs.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusConfirmed, got.Status)
	assert.Equal(t, "0xabc", got.TxHash)

	_, err = qs.Claim(ctx, "missing", "0x1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, qs.Update(ctx, domain.Quote{ID: "missing"}), domain.ErrNotFound)
}

func TestQuoteStoreTxHashConfirmsOneQuote(t *testing.T) {
	qs := NewQuoteStore(testClient(t))
	ctx := context.Background()
	for _, id := range []string{"q1", "q2", "q3"} {
		require.NoError(t, qs.Save(ctx, domain.Quote{ID: id, Status: domain.QuoteStatusPending}, time.Minute))
	}

	_, err := qs.Claim(ctx, "q1", "0xABC")
	require.NoError(t, err)

	_, err = qs.Claim(ctx, "q2", "0xabc")
	require.ErrorIs(t, err, domain.ErrTxHashUsed)
	got, err := qs.Get(ctx, "q2")
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusPending, got.Status)

	// Released, the hash can confirm another quote.
	require.NoError(t, qs.Release(ctx, "q1"))
	got, err = qs.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusPending, got.Status)
	assert.Empty(t, got.TxHash)

	_, err = qs.Claim(ctx, "q3", "0xabc")
	require.NoError(t, err)
	_, err = qs.Claim(ctx, "q1", "0xabc")
	require.ErrorIs(t, err, domain.ErrTxHashUsed)

	require.ErrorIs(t, qs.Release(ctx, "q2"), domain.ErrQuoteClaimed, "pending quote")
	require.ErrorIs(t, qs.Release(ctx, "missing"), domain.ErrNotFound)
}
