// Package query binds backend reads to cache keys with a staleness window and
// manual invalidation, the way the web client's data hooks did.
package query

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"whatif-planner/internal/logger"
)

const (
	KeyScenarios          = "scenarios"
	KeyAccounts           = "accounts"
	KeyIncomeSources      = "income-sources"
	KeyExpenseFlows       = "expense-flows"
	KeyGoals              = "goals"
	KeyGoalStatus         = "goal-status"
	KeyMetrics            = "metrics"
	KeyLifeEventTemplates = "life-event-templates"
	KeyDecisionTemplates  = "decision-templates"
)

// ScenarioKey is the per-scenario key; it lives under the scenarios prefix so
// invalidating the list drops it too.
func ScenarioKey(id string) string { return KeyScenarios + "/" + id }

// Invalidator drops cached entries whose key starts with prefix.
type Invalidator interface {
	Invalidate(ctx context.Context, prefix string) error
}

type Cache struct {
	store     Store
	staleTime time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func NewCache(store Store, staleTime time.Duration, log *zap.Logger) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{store: store, staleTime: staleTime, log: logger.OrNop(log), now: time.Now}
}

func (c *Cache) Invalidate(ctx context.Context, prefix string) error {
	c.log.Debug("cache invalidate", zap.String("prefix", prefix))
	return c.store.DeletePrefix(ctx, prefix)
}

type entry struct {
	FetchedAt time.Time       `json:"fetchedAt"`
	Data      json.RawMessage `json:"data"`
}

// Result mirrors a data hook's state: the data, the last error and whether
// the data came from cache.
type Result[T any] struct {
	Data      T
	Err       error
	FetchedAt time.Time
	FromCache bool
	Stale     bool
}

// Fetch serves key from cache while it is fresh and reloads it otherwise.
// When a reload fails the stale data, if any, is returned alongside the error.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) Result[T] {
	var res Result[T]

	if cached, ok := c.lookup(ctx, key); ok {
		if err := json.Unmarshal(cached.Data, &res.Data); err == nil {
			res.FetchedAt = cached.FetchedAt
			res.FromCache = true
			if c.now().Sub(cached.FetchedAt) < c.staleTime {
				return res
			}
			res.Stale = true
		} else {
			res = Result[T]{}
		}
	}

	data, err := load(ctx)
	if err != nil {
		res.Err = err
		return res
	}

	res = Result[T]{Data: data, FetchedAt: c.now()}
	c.save(ctx, key, res.FetchedAt, data)
	return res
}

func (c *Cache) lookup(ctx context.Context, key string) (entry, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return entry{}, false
	}
	if !ok {
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return entry{}, false
	}
	return e, true
}

func (c *Cache) save(ctx context.Context, key string, at time.Time, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	raw, err := json.Marshal(entry{FetchedAt: at, Data: b})
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, raw, 0); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
