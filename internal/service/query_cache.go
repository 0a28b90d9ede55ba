package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

// QueryCache is the keyed, de-duplicated and invalidatable read path in front of the upstream API.
// Failed fetches are never stored; a fetch that was superseded by a newer fetch of the same key,
// or that started before its resource was invalidated, does not write its result.
type QueryCache struct {
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	group   singleflight.Group
	tracker *listquery.Tracker

	mu          sync.Mutex
	generations map[string]uint64
	inflight    map[string]struct{}
}

// NewQueryCache wraps a cache service. A nil or disabled cache still de-duplicates fetches.
func NewQueryCache(cache *CacheService, metrics *MetricsService, logger *zap.Logger) *QueryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryCache{
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		tracker:     listquery.NewTracker(),
		generations: make(map[string]uint64),
		inflight:    make(map[string]struct{}),
	}
}

// Fetch returns the cached value for key or runs fn once for all concurrent callers of the same key.
// hit reports whether the value came from the cache.
func Fetch[T any](ctx context.Context, q *QueryCache, resource, key string, ttl time.Duration, fn func(context.Context) (T, error)) (value T, hit bool, err error) {
	var cached T
	if q.cache.Get(ctx, key, &cached) {
		return cached, true, nil
	}

	run := func() (interface{}, error) {
		return q.load(ctx, resource, key, ttl, func(ctx context.Context) (interface{}, error) {
			return fn(ctx)
		})
	}

	v, err, shared := q.group.Do(key, run)
	if err != nil && shared && isCancellation(err) && ctx.Err() == nil {
		// The leader's caller went away; this caller is still waiting.
		v, err = run()
	}
	if err != nil {
		return value, false, err
	}
	typed, _ := v.(T)
	return typed, false, nil
}

func (q *QueryCache) load(ctx context.Context, resource, key string, ttl time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ticket := q.tracker.Issue(key)
	generation := q.begin(resource, key)
	defer q.end(key)

	result, err := fn(ctx)
	if err != nil {
		q.tracker.Complete(ticket)
		return nil, err
	}
	if ctx.Err() != nil {
		q.tracker.Complete(ticket)
		return result, nil
	}
	if !q.tracker.Complete(ticket) || !q.current(resource, generation) {
		q.metrics.IncStaleDiscard()
		q.logger.Debug("discarding superseded fetch result", zap.String("key", key))
		return result, nil
	}
	if err := q.cache.Set(ctx, key, result, ttl); err != nil {
		q.logger.Warn("query cache write failed", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

// Invalidate drops every cached entry of the given resource families and makes
// in-flight fetches for them unable to publish.
func (q *QueryCache) Invalidate(ctx context.Context, resources ...string) error {
	var errs []error
	for _, resource := range resources {
		prefix := listquery.Prefix(resource)

		q.mu.Lock()
		q.generations[resource]++
		for key := range q.inflight {
			if strings.HasPrefix(key, prefix) {
				q.group.Forget(key)
			}
		}
		q.mu.Unlock()
		q.tracker.Forget(prefix)

		deleted, err := q.cache.Invalidate(ctx, prefix)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		q.metrics.IncCacheInvalidation(resource)
		q.logger.Debug("resource invalidated", zap.String("resource", resource), zap.Int("deleted", deleted))
	}
	return errors.Join(errs...)
}

func (q *QueryCache) begin(resource, key string) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight[key] = struct{}{}
	return q.generations[resource]
}

func (q *QueryCache) end(key string) {
	q.mu.Lock()
	delete(q.inflight, key)
	q.mu.Unlock()
}

func (q *QueryCache) current(resource string, generation uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.generations[resource] == generation
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
