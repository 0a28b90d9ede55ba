package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// CacheOptions configures a CacheService.
type CacheOptions struct {
	Enabled    bool
	DefaultTTL time.Duration
	// Namespace prefixes every key so several deployments can share one redis.
	Namespace string
	// Cooldown is how long reads and writes bypass the backend after it fails.
	Cooldown time.Duration
}

// CacheService fronts the cache backend. Backend failures degrade to cache
// misses; after one, reads and writes skip the backend for the cooldown so a
// dead redis does not add latency to every request. Invalidation always
// reaches the backend.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	logger  *zap.Logger
	opts    CacheOptions
	now     func() time.Time

	mu        sync.Mutex
	downUntil time.Time
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, opts CacheOptions, logger *zap.Logger) *CacheService {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, logger: logger, opts: opts, now: time.Now}
}

// Enabled indicates whether caching is configured.
func (s *CacheService) Enabled() bool {
	return s != nil && s.opts.Enabled && s.repo != nil
}

// Get loads key into dest. It returns true on a hit; backend errors are
// logged and reported as misses.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.usable() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, s.key(key), dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true
	case errors.Is(err, appErrors.ErrCacheMiss):
	default:
		s.trip("get", key, err)
	}
	return false
}

// Set stores the value. A non-positive ttl uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.usable() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.opts.DefaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, s.key(key), value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.trip("set", key, err)
	}
	return err
}

// Invalidate removes every cached entry whose key starts with prefix.
func (s *CacheService) Invalidate(ctx context.Context, prefix string) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	deleted, err := s.repo.DeleteByPrefix(ctx, s.key(prefix))
	if err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("prefix", prefix), zap.Error(err))
		return deleted, err
	}
	return deleted, nil
}

func (s *CacheService) key(k string) string {
	if s.opts.Namespace == "" {
		return k
	}
	return s.opts.Namespace + ":" + k
}

func (s *CacheService) usable() bool {
	if !s.Enabled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.downUntil)
}

func (s *CacheService) trip(op, key string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.mu.Lock()
	s.downUntil = s.now().Add(s.opts.Cooldown)
	s.mu.Unlock()
	s.logger.Warn("cache backend failed, bypassing", zap.String("op", op), zap.String("key", key), zap.Duration("cooldown", s.opts.Cooldown), zap.Error(err))
}
