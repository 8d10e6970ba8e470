package recall

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/redstack/redmem/internal/model"
)

// GatewayConfig tunes the resilience wrapper.
type GatewayConfig struct {
	// Budget is the per-call time allowance. A call that overruns it is
	// abandoned and counted as a miss.
	Budget time.Duration
	// Breaker tunes the circuit breaker.
	Breaker BreakerConfig
	// CacheEntries bounds the recall result cache. Zero disables it.
	CacheEntries int64
}

// Gateway wraps the vector index with a time budget, a circuit breaker and
// a small result cache. Recall never raises to the caller: every failure
// path degrades to an empty result plus a log signal. Results are always
// semantic scope and carry no approval linkage, so nothing coming out of
// here can satisfy a canonical write or name a world-state transition.
type Gateway struct {
	index   Index
	breaker *Breaker
	budget  time.Duration
	cache   *ristretto.Cache
	logger  *slog.Logger
}

// NewGateway builds the wrapper around index.
func NewGateway(index Index, cfg GatewayConfig, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 50 * time.Millisecond
	}

	g := &Gateway{
		index:   index,
		breaker: NewBreaker(cfg.Breaker),
		budget:  cfg.Budget,
		logger:  logger,
	}

	if cfg.CacheEntries > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: cfg.CacheEntries * 10,
			MaxCost:     cfg.CacheEntries,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("recall cache: %w", err)
		}
		g.cache = cache
	}
	return g, nil
}

// Recall looks up semantic suggestions for the query. It returns within
// the budget or with whatever the cache holds; a late backend result is
// discarded. A nil gateway recalls nothing.
func (g *Gateway) Recall(ctx context.Context, query string, limit int) []model.MemoryItem {
	if g == nil || query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	if !g.breaker.Allow() {
		return g.cached(query)
	}

	type outcome struct {
		results []Result
		err     error
	}
	done := make(chan outcome, 1)

	callCtx, cancel := context.WithTimeout(ctx, g.budget)
	defer cancel()

	go func() {
		results, err := g.index.Search(callCtx, query, limit)
		done <- outcome{results, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			g.breaker.RecordFailure(out.err.Error())
			g.logger.Warn("recall degraded", "error", out.err)
			return g.cached(query)
		}
		g.breaker.RecordSuccess()
		items := g.toItems(out.results)
		g.store(query, items)
		return items
	case <-callCtx.Done():
		// Budget elapsed. The in-flight call keeps running but its
		// result is discarded; the caller moves on.
		g.breaker.RecordFailure("recall budget exceeded")
		g.logger.Warn("recall budget exceeded", "budget", g.budget)
		return g.cached(query)
	}
}

// Ingest indexes one semantic item, best effort. Non-semantic items are
// refused outright: canonical truth does not belong in the recall index.
func (g *Gateway) Ingest(ctx context.Context, item *model.MemoryItem) {
	if g == nil || item == nil || item.Scope != model.ScopeSemantic {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.budget*4)
	defer cancel()

	err := g.index.Upsert(ctx, Document{
		ID:   item.ID,
		Text: item.Text,
		Meta: map[string]string{
			"kind":     item.Kind,
			"key":      item.Key,
			"trace_id": item.TraceID,
		},
	})
	if err != nil {
		g.logger.Warn("semantic ingest skipped", "item_id", item.ID, "error", err)
	}
}

// Status reports the breaker snapshot for health payloads.
func (g *Gateway) Status() map[string]interface{} {
	if g == nil {
		return map[string]interface{}{"enabled": false}
	}
	st := g.breaker.Snapshot()
	st["enabled"] = true
	st["budget_ms"] = g.budget.Milliseconds()
	return st
}

func (g *Gateway) toItems(results []Result) []model.MemoryItem {
	items := make([]model.MemoryItem, 0, len(results))
	now := time.Now().UTC()
	for _, r := range results {
		items = append(items, model.MemoryItem{
			ID:         r.ID,
			Scope:      model.ScopeSemantic,
			Kind:       "recall",
			Key:        r.Meta["key"],
			Text:       r.Text,
			Source:     "recall-gateway",
			Confidence: r.Score,
			CreatedAt:  now,
			TraceID:    r.Meta["trace_id"],
		})
	}
	return items
}

func (g *Gateway) store(query string, items []model.MemoryItem) {
	if g.cache == nil || len(items) == 0 {
		return
	}
	g.cache.Set(query, items, 1)
}

func (g *Gateway) cached(query string) []model.MemoryItem {
	if g.cache == nil {
		return nil
	}
	if v, ok := g.cache.Get(query); ok {
		if items, ok := v.([]model.MemoryItem); ok {
			return items
		}
	}
	return nil
}
