package position

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/pkg/exception"
)

const bookKey = "engine:positions"

// Cache is the fast-path position book, one hash field per instrument.
// Readers tolerate eventual consistency; writers are the reconciler and
// the fill path.
type Cache struct {
	rdb *redis.Client
}

// NewCache creates a cache-backed position book.
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Put stores or replaces the cached position for its instrument.
func (c *Cache) Put(ctx context.Context, p schema.Position) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, bookKey, p.InstrumentKey, payload).Err()
}

// Get returns the cached position for an instrument.
func (c *Cache) Get(ctx context.Context, instrumentKey string) (schema.Position, error) {
	raw, err := c.rdb.HGet(ctx, bookKey, instrumentKey).Result()
	if errors.Is(err, redis.Nil) {
		return schema.Position{}, exception.ErrPositionNotFound
	}
	if err != nil {
		return schema.Position{}, err
	}

	var p schema.Position
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return schema.Position{}, err
	}
	return p, nil
}

// List returns every cached position. Entries that no longer decode are
// logged and skipped so one bad field cannot wedge reconciliation.
func (c *Cache) List(ctx context.Context) ([]schema.Position, error) {
	raw, err := c.rdb.HGetAll(ctx, bookKey).Result()
	if err != nil {
		return nil, err
	}

	out := make([]schema.Position, 0, len(raw))
	for field, value := range raw {
		var p schema.Position
		if err := json.Unmarshal([]byte(value), &p); err != nil {
			logs.Warnf("skip undecodable cached position %s: %+v", field, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Delete removes the cached position for an instrument.
func (c *Cache) Delete(ctx context.Context, instrumentKey string) error {
	return c.rdb.HDel(ctx, bookKey, instrumentKey).Err()
}

// Clear drops the whole cached book.
func (c *Cache) Clear(ctx context.Context) error {
	return c.rdb.Del(ctx, bookKey).Err()
}

// Fill is one execution applied to the cached book.
type Fill struct {
	InstrumentKey string
	Symbol        string
	Quantity      int64
	Price         decimal.Decimal
	StrategyID    string
}

// ApplyFill merges an execution into the cached position and returns the
// merged result. A fill that flattens the position removes the entry.
func (c *Cache) ApplyFill(ctx context.Context, f Fill) (schema.Position, error) {
	existing, err := c.Get(ctx, f.InstrumentKey)
	if err != nil && !errors.Is(err, exception.ErrPositionNotFound) {
		return schema.Position{}, err
	}

	merged := mergeFill(existing, f, time.Now().UTC())
	if merged.Quantity == 0 {
		if err := c.Delete(ctx, f.InstrumentKey); err != nil {
			return schema.Position{}, err
		}
		return merged, nil
	}
	if err := c.Put(ctx, merged); err != nil {
		return schema.Position{}, err
	}
	return merged, nil
}

// mergeFill folds a fill into a position. Adding to a lot reweights the
// entry price; reducing keeps it; flipping through zero restarts the lot
// at the fill price.
func mergeFill(existing schema.Position, f Fill, now time.Time) schema.Position {
	merged := existing
	merged.InstrumentKey = f.InstrumentKey
	merged.Symbol = f.Symbol
	merged.UpdatedAt = now
	if f.StrategyID != "" {
		merged.OwnerStrategyID = f.StrategyID
	}

	prevQty := existing.Quantity
	newQty := prevQty + f.Quantity
	merged.Quantity = newQty

	switch {
	case prevQty == 0 || sameSign(prevQty, f.Quantity):
		prevAbs := decimal.NewFromInt(absInt64(prevQty))
		fillAbs := decimal.NewFromInt(absInt64(f.Quantity))
		total := prevAbs.Add(fillAbs)
		if total.IsZero() {
			merged.AveragePrice = f.Price
			break
		}
		merged.AveragePrice = existing.AveragePrice.Mul(prevAbs).Add(f.Price.Mul(fillAbs)).Div(total)
	case newQty == 0:
		merged.AveragePrice = decimal.Zero
	case !sameSign(prevQty, newQty):
		merged.AveragePrice = f.Price
	}
	return merged
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
