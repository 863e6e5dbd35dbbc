package querycache

import (
	"context"
	"encoding/json"
	"sv-governance/internal/hashing"
	"sv-governance/internal/model"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sethvargo/go-retry"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryCap  = 30 * time.Second
)

// Loader produces the value of a key.
type Loader[V any] func(ctx context.Context) (V, error)

// Entry is the state of one key.
type Entry[V any] struct {
	Status    Status
	Value     V
	Err       error
	UpdatedAt time.Time
}

type record[V any] struct {
	mu       sync.Mutex
	entry    Entry[V]
	loader   Loader[V]
	lastRead time.Time

	// guarded by Cache.mu
	generation  uint64
	invalidated bool
}

type Options struct {
	// StaleTime is how long a successful result is served without loading again.
	StaleTime time.Duration
	// Retries is how many times a failed load is repeated.
	Retries   uint64
	RetryBase time.Duration
	RetryCap  time.Duration
	Metrics   Metrics
}

// Cache holds query results by key and runs at most one load per key at a time.
type Cache[V any] struct {
	logger  *zap.Logger
	options Options

	// mu orders adding, storing into and invalidating records; take it before record.mu
	mu         sync.Mutex
	records    *gocache.Cache
	loading    map[string]*record[V]
	group      singleflight.Group
	generation *atomic.Uint64
	metrics    Metrics

	now func() time.Time

	refreshWG sync.WaitGroup
}

func New[V any](logger *zap.Logger, options Options) *Cache[V] {
	if options.RetryBase <= 0 {
		options.RetryBase = defaultRetryBase
	}
	if options.RetryCap <= 0 {
		options.RetryCap = defaultRetryCap
	}
	metrics := options.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	// records outlive their stale time so the refresher and State can still see them
	expiration := 4 * options.StaleTime
	if options.StaleTime <= 0 {
		expiration = gocache.NoExpiration
	}

	return &Cache[V]{
		logger:     logger,
		options:    options,
		records:    gocache.New(expiration, expiration),
		loading:    make(map[string]*record[V]),
		generation: atomic.NewUint64(0),
		metrics:    metrics,
		now:        time.Now,
	}
}

// Key builds an order-sensitive key from the query name and its contract ids.
func Key(name string, ids []model.ContractID) string {
	if ids == nil {
		ids = []model.ContractID{}
	}
	// marshalling a slice of strings can't fail
	canonical, _ := json.Marshal(ids)
	return name + ":" + hashing.CalculateSHA512(string(canonical))
}

// Get serves a fresh cached value or loads it. Concurrent calls for the same key
// share one load; a caller whose ctx ends stops waiting but the load goes on.
func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, error) {
	rec := c.record(key, loader)

	rec.mu.Lock()
	rec.lastRead = c.now()
	if rec.entry.Status == StatusSuccess && c.isFresh(rec.entry) {
		value := rec.entry.Value
		rec.mu.Unlock()
		c.metrics.Hit()
		return value, nil
	}
	rec.mu.Unlock()
	c.metrics.Miss()

	return c.load(ctx, key, rec)
}

// State returns the current state of the key.
func (c *Cache[V]) State(key string) (Entry[V], bool) {
	found, ok := c.records.Get(key)
	if !ok {
		return Entry[V]{}, false
	}
	rec := found.(*record[V])
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.entry, true
}

// Invalidate drops the key, a load in flight for it won't be stored.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	if found, ok := c.records.Get(key); ok {
		found.(*record[V]).invalidated = true
	}
	if rec, ok := c.loading[key]; ok {
		rec.invalidated = true
		delete(c.loading, key)
	}
	c.records.Delete(key)
	c.group.Forget(key)
	c.mu.Unlock()
	c.logger.Debug("query invalidated", zap.String("key", key))
}

// InvalidateAll drops every key, loads in flight won't be stored.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	c.generation.Inc()
	for key := range c.records.Items() {
		c.group.Forget(key)
	}
	c.records.Flush()
	c.loading = make(map[string]*record[V])
	c.mu.Unlock()
	c.logger.Debug("all queries invalidated")
}

func (c *Cache[V]) isFresh(entry Entry[V]) bool {
	return c.now().Sub(entry.UpdatedAt) < c.options.StaleTime
}

func (c *Cache[V]) record(key string, loader Loader[V]) *record[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.loading[key]
	if found, inCache := c.records.Get(key); inCache {
		rec, ok = found.(*record[V]), true
	}
	if ok {
		rec.mu.Lock()
		rec.loader = loader
		rec.mu.Unlock()
		// a record that expired while loading comes back
		c.records.SetDefault(key, rec)
		return rec
	}

	rec = &record[V]{
		entry:      Entry[V]{Status: StatusPending},
		loader:     loader,
		generation: c.generation.Load(),
	}
	c.records.SetDefault(key, rec)
	return rec
}

type loadResult[V any] struct {
	value V
	err   error
}

func (c *Cache[V]) load(ctx context.Context, key string, rec *record[V]) (V, error) {
	rec.mu.Lock()
	loader := rec.loader
	rec.mu.Unlock()

	// the load is shared between callers, it must not end with the first caller's ctx
	loadCtx := context.WithoutCancel(ctx)
	resultCh := c.group.DoChan(key, func() (interface{}, error) {
		c.startLoading(key, rec)
		value, err := c.runLoader(loadCtx, key, loader)
		c.store(key, rec, value, err)
		return loadResult[V]{value: value, err: err}, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case result := <-resultCh:
		if result.Shared {
			c.metrics.Shared()
		}
		loaded := result.Val.(loadResult[V])
		return loaded.value, loaded.err
	}
}

func (c *Cache[V]) runLoader(ctx context.Context, key string, loader Loader[V]) (V, error) {
	start := c.now()
	defer func() {
		c.metrics.LoadDuration(c.now().Sub(start))
	}()

	var value V
	if c.options.Retries == 0 {
		var err error
		value, err = loader(ctx)
		return value, err
	}

	backoff := retry.NewExponential(c.options.RetryBase)
	backoff = retry.WithCappedDuration(c.options.RetryCap, backoff)
	backoff = retry.WithMaxRetries(c.options.Retries, backoff)

	var lastErr error
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		loaded, err := loader(ctx)
		if err != nil {
			lastErr = err
			c.logger.Debug("query load failed: "+err.Error(), zap.String("key", key), zap.Int("attempt", attempt))
			return retry.RetryableError(err)
		}
		value = loaded
		return nil
	})
	if err != nil && lastErr != nil {
		// keep the loader's error, not the retry wrapper
		return value, lastErr
	}
	return value, err
}

func (c *Cache[V]) store(key string, rec *record[V], value V, err error) {
	if err != nil {
		c.metrics.LoadError()
		c.logger.Warn("query load failed: "+err.Error(), zap.String("key", key))
	}
	updatedAt := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loading[key] == rec {
		delete(c.loading, key)
	}
	if !c.isCurrent(rec) {
		c.logger.Debug("discarding the result of an invalidated query", zap.String("key", key))
		return
	}

	rec.mu.Lock()
	rec.entry.UpdatedAt = updatedAt
	rec.entry.Err = err
	if err != nil {
		rec.entry.Status = StatusError
	} else {
		rec.entry.Status = StatusSuccess
		rec.entry.Value = value
	}
	rec.mu.Unlock()

	// a long load may outlive the record's expiration, (re)add it
	c.records.SetDefault(key, rec)
}

// startLoading keeps the record reachable while it loads, even once it expired.
func (c *Cache[V]) startLoading(key string, rec *record[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isCurrent(rec) {
		c.loading[key] = rec
	}
}

// isCurrent needs c.mu held.
func (c *Cache[V]) isCurrent(rec *record[V]) bool {
	return !rec.invalidated && rec.generation == c.generation.Load()
}
