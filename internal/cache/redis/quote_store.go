package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// maxClaimAttempts bounds optimistic retries when a watched quote changes
// between read and write.
const maxClaimAttempts = 5

// QuoteStore implements domain.QuoteStore. Quotes live as JSON under
// {prefix}quote:{id} and expire with the key; tx hash reservations live
// under {prefix}txhash:{hash} and never expire.
type QuoteStore struct {
	c *Client
}

// NewQuoteStore creates a QuoteStore backed by c.
func NewQuoteStore(c *Client) *QuoteStore {
	return &QuoteStore{c: c}
}

// Save stores q for ttl. A zero ttl never expires.
func (qs *QuoteStore) Save(ctx context.Context, q domain.Quote, ttl time.Duration) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", q.ID, err)
	}
	if err := qs.c.rdb.Set(ctx, qs.c.key("quote", q.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: save quote %s: %w", q.ID, err)
	}
	return nil
}

// Get returns a live quote.
func (qs *QuoteStore) Get(ctx context.Context, id string) (domain.Quote, error) {
	return readQuote(ctx, qs.c.rdb, qs.c.key("quote", id), id)
}

// Claim moves a pending quote to confirmed under WATCH, so two confirmers
// racing on one quote cannot both mint. txHash is reserved under
// {prefix}txhash:{hash} in the same transaction; the reservation has no TTL
// so a hash cannot be reused once its quote expires.
func (qs *QuoteStore) Claim(ctx context.Context, id string, txHash string) (domain.Quote, error) {
	key := qs.c.key("quote", id)
	keys := []string{key}
	var txKey string
	if txHash != "" {
		txKey = qs.c.key("txhash", strings.ToLower(txHash))
		keys = append(keys, txKey)
	}
	var claimed domain.Quote

	claim := func(tx *redis.Tx) error {
		q, err := readQuote(ctx, tx, key, id)
		if err != nil {
			return err
		}
		if q.Status != domain.QuoteStatusPending {
			claimed = q
			return fmt.Errorf("redis: quote %s: %w", id, domain.ErrQuoteClaimed)
		}
		if txKey != "" {
			owner, err := tx.Get(ctx, txKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("redis: read tx %s: %w", txHash, err)
			}
			if err == nil && owner != id {
				return fmt.Errorf("redis: tx %s claimed by quote %s: %w", txHash, owner, domain.ErrTxHashUsed)
			}
		}

		q.Status = domain.QuoteStatusConfirmed
		q.TxHash = txHash
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("redis: marshal quote %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			if txKey != "" {
				pipe.Set(ctx, txKey, id, 0)
			}
			return nil
		})
		if err == nil {
			claimed = q
		}
		return err
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		err := qs.c.rdb.Watch(ctx, claim, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrQuoteClaimed) && !errors.Is(err, domain.ErrNotFound) &&
			!errors.Is(err, domain.ErrTxHashUsed) {
			return domain.Quote{}, fmt.Errorf("redis: claim quote %s: %w", id, err)
		}
		return claimed, err
	}
	return domain.Quote{}, fmt.Errorf("redis: claim quote %s: contended: %w", id, domain.ErrQuoteClaimed)
}

// Release puts a confirmed quote with no position back to pending and frees
// its tx hash if this quote holds it.
func (qs *QuoteStore) Release(ctx context.Context, id string) error {
	key := qs.c.key("quote", id)

	release := func(tx *redis.Tx) error {
		q, err := readQuote(ctx, tx, key, id)
		if err != nil {
			return err
		}
		if q.Status != domain.QuoteStatusConfirmed || q.PositionID != "" {
			return fmt.Errorf("redis: quote %s is %s: %w", id, q.Status, domain.ErrQuoteClaimed)
		}

		var txKey string
		if q.TxHash != "" {
			txKey = qs.c.key("txhash", strings.ToLower(q.TxHash))
			owner, err := tx.Get(ctx, txKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("redis: read tx %s: %w", q.TxHash, err)
			}
			if owner != id {
				txKey = ""
			}
		}

		q.Status = domain.QuoteStatusPending
		q.TxHash = ""
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("redis: marshal quote %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{Mode: "XX", KeepTTL: true})
			if txKey != "" {
				pipe.Del(ctx, txKey)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		err := qs.c.rdb.Watch(ctx, release, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrQuoteClaimed) && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("redis: release quote %s: %w", id, err)
		}
		return err
	}
	return fmt.Errorf("redis: release quote %s: contended: %w", id, domain.ErrQuoteClaimed)
}

// Update overwrites an existing quote and keeps its TTL.
func (qs *QuoteStore) Update(ctx context.Context, q domain.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", q.ID, err)
	}
	// XX: only overwrite while the key is still alive.
	res, err := qs.c.rdb.SetArgs(ctx, qs.c.key("quote", q.ID), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Result()
	if errors.Is(err, redis.Nil) || (err == nil && res != "OK") {
		return fmt.Errorf("redis: quote %s: %w", q.ID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("redis: update quote %s: %w", q.ID, err)
	}
	return nil
}

// getter is satisfied by both *redis.Client and a watched *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readQuote(ctx context.Context, r getter, key, id string) (domain.Quote, error) {
	data, err := r.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Quote{}, fmt.Errorf("redis: quote %s: %w", id, domain.ErrNotFound)
		}
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", id, err)
	}
	var q domain.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: unmarshal quote %s: %w", id, err)
	}
	return q, nil
}

var _ domain.QuoteStore = (*QuoteStore)(nil)
