// Package factorcache caches computed factor sets and derived rankings in a
// process-local memory tier and a shared key-value tier, writing through to
// the persistent factor store when asked.
//
// Lookup order is memory → shared KV → factor store; a hit in a lower tier
// repopulates the tiers above it. Every key carries the trade date so values
// from different sessions never collide.
package factorcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/wonny/aegis-picks/internal/contracts"
	"github.com/wonny/aegis-picks/pkg/kvstore"
	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
)

// Key kinds
const (
	KindFactors  = "factors"
	KindRanking  = "ranking"
	KindUniverse = "universe"
)

const dateLayout = "2006-01-02"

// Config holds the tier TTLs
type Config struct {
	HotTTL     time.Duration // composite rankings
	WarmTTL    time.Duration // factor sets and secondary lookups in memory
	PersistTTL time.Duration // shared KV tier, one trading day
	MaxEntries int           // memory tier bound, 0 = unbounded
}

// DefaultConfig returns the standard TTLs
func DefaultConfig() Config {
	return Config{
		HotTTL:     5 * time.Minute,
		WarmTTL:    15 * time.Minute,
		PersistTTL: 24 * time.Hour,
		MaxEntries: 20000,
	}
}

type entry struct {
	value     any
	expiresAt time.Time
	date      string
}

// Cache is the two-tier factor cache.
// ⭐ SSOT: 팩터/랭킹 캐시는 여기서만
//
// The memory map is guarded by one mutex that is never held across a KV or
// store call.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	byDate  map[string]map[string]time.Time // date → key → shared tier expiry (zero: memory only)

	kv    kvstore.Store         // optional
	store contracts.FactorStore // optional

	cfg     Config
	group   singleflight.Group
	now     func() time.Time
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache. kv and store may be nil to disable those tiers.
func New(kv kvstore.Store, store contracts.FactorStore, cfg Config, log *logger.Logger, opts ...Option) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	c := &Cache{
		entries: make(map[string]entry),
		byDate:  make(map[string]map[string]time.Time),
		kv:      kv,
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		logger:  log.Component("factorcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the {kind}:{code}:{trade_date} cache key
func Key(kind, code string, date time.Time) string {
	return kind + ":" + code + ":" + date.Format(dateLayout)
}

// Config returns the TTL configuration
func (c *Cache) Config() Config {
	return c.cfg
}

// Get returns the factor set of code on date, or nil on a full miss
func (c *Cache) Get(ctx context.Context, code string, date time.Time) (*contracts.FactorSet, error) {
	key := Key(KindFactors, code, date)

	if v, ok := c.memGet(key); ok {
		c.metrics.CacheLookup("memory", true)
		return v.(*contracts.FactorSet).Clone(), nil
	}
	c.metrics.CacheLookup("memory", false)

	if fs, ok := c.kvGetFactors(ctx, key); ok {
		c.memSet(key, date, fs.Clone(), c.cfg.WarmTTL)
		return fs, nil
	}

	if c.store == nil {
		return nil, nil
	}
	fs, err := c.store.GetFactors(ctx, code, date)
	if errors.Is(err, contracts.ErrNotFound) {
		c.metrics.CacheLookup("store", false)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get factors %s: %w", code, err)
	}
	c.metrics.CacheLookup("store", true)

	c.memSet(key, date, fs.Clone(), c.cfg.WarmTTL)
	c.kvSet(ctx, key, date, fs, c.cfg.PersistTTL)
	return fs, nil
}

// Set writes fs through memory and the shared tier, and to the factor store
// when persist is true
func (c *Cache) Set(ctx context.Context, fs *contracts.FactorSet, persist bool) error {
	return c.SetBatch(ctx, []*contracts.FactorSet{fs}, persist)
}

// SetBatch is Set for many factor sets with a single store write
func (c *Cache) SetBatch(ctx context.Context, sets []*contracts.FactorSet, persist bool) error {
	if len(sets) == 0 {
		return nil
	}
	for _, fs := range sets {
		key := Key(KindFactors, fs.Code, fs.TradeDate)
		c.memSet(key, fs.TradeDate, fs.Clone(), c.cfg.WarmTTL)
		c.kvSet(ctx, key, fs.TradeDate, fs, c.cfg.PersistTTL)
	}

	if !persist || c.store == nil {
		return nil
	}
	if err := c.store.UpsertFactors(ctx, sets); err != nil {
		return fmt.Errorf("persist %d factor sets: %w", len(sets), err)
	}
	return nil
}

// GetBatch partitions codes into cached and missing. Codes missing from both
// cache tiers are fetched from the store in one batched call; codes the store
// does not have are returned in missing.
func (c *Cache) GetBatch(ctx context.Context, codes []string, date time.Time) (map[string]*contracts.FactorSet, []string, error) {
	found := make(map[string]*contracts.FactorSet, len(codes))
	var missing []string

	for _, code := range codes {
		key := Key(KindFactors, code, date)
		if v, ok := c.memGet(key); ok {
			c.metrics.CacheLookup("memory", true)
			found[code] = v.(*contracts.FactorSet).Clone()
			continue
		}
		c.metrics.CacheLookup("memory", false)

		if fs, ok := c.kvGetFactors(ctx, key); ok {
			c.memSet(key, date, fs.Clone(), c.cfg.WarmTTL)
			found[code] = fs
			continue
		}
		missing = append(missing, code)
	}

	if len(missing) == 0 || c.store == nil {
		return found, missing, nil
	}

	fetched, err := c.store.GetFactorsBatch(ctx, missing, date)
	if err != nil {
		return found, missing, fmt.Errorf("get factors batch (%d codes): %w", len(missing), err)
	}

	stillMissing := missing[:0]
	for _, code := range missing {
		fs, ok := fetched[code]
		if !ok {
			c.metrics.CacheLookup("store", false)
			stillMissing = append(stillMissing, code)
			continue
		}
		c.metrics.CacheLookup("store", true)
		key := Key(KindFactors, code, date)
		c.memSet(key, date, fs.Clone(), c.cfg.WarmTTL)
		c.kvSet(ctx, key, date, fs, c.cfg.PersistTTL)
		found[code] = fs
	}
	return found, stillMissing, nil
}

// ClearForDate evicts only the entries of date from both cache tiers.
// The factor store is left untouched.
func (c *Cache) ClearForDate(ctx context.Context, date time.Time) (int, error) {
	d := date.Format(dateLayout)

	c.mu.Lock()
	keys := make([]string, 0, len(c.byDate[d]))
	for k := range c.byDate[d] {
		keys = append(keys, k)
		delete(c.entries, k)
	}
	delete(c.byDate, d)
	c.mu.Unlock()

	if err := c.kvDelete(ctx, keys); err != nil {
		return len(keys), err
	}
	c.logger.WithFields(map[string]interface{}{
		"trade_date": d,
		"keys":       len(keys),
	}).Info("cache cleared for date")
	return len(keys), nil
}

// Clear evicts everything this instance cached
func (c *Cache) Clear(ctx context.Context) (int, error) {
	c.mu.Lock()
	var keys []string
	for _, set := range c.byDate {
		for k := range set {
			keys = append(keys, k)
		}
	}
	c.entries = make(map[string]entry)
	c.byDate = make(map[string]map[string]time.Time)
	c.mu.Unlock()

	if err := c.kvDelete(ctx, keys); err != nil {
		return len(keys), err
	}
	c.logger.WithField("keys", len(keys)).Info("cache cleared")
	return len(keys), nil
}

// Len returns the number of memory entries (expired ones included until swept)
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Remember returns the cached value of (kind, code, date) or computes it once
// with fn, even under concurrent callers, and caches it for ttl in both tiers.
// Cached values are shared; callers must not modify them.
func Remember[T any](ctx context.Context, c *Cache, kind, code string, date time.Time, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return RememberIf(ctx, c, kind, code, date, ttl, fn, nil)
}

// RememberIf is Remember that only caches a computed value when keep
// reports true. Concurrent callers still share the value of one flight.
// A nil keep caches every value.
func RememberIf[T any](ctx context.Context, c *Cache, kind, code string, date time.Time, ttl time.Duration, fn func(context.Context) (T, error), keep func(T) bool) (T, error) {
	key := Key(kind, code, date)

	if v, ok := c.memGet(key); ok {
		if typed, ok := v.(T); ok {
			c.metrics.CacheLookup("memory", true)
			return typed, nil
		}
	}
	c.metrics.CacheLookup("memory", false)

	if c.kv != nil {
		if data, ok, err := c.kv.Get(ctx, key); err == nil && ok {
			var out T
			if err := msgpack.Unmarshal(data, &out); err == nil {
				c.metrics.CacheLookup("kv", true)
				c.memSet(key, date, out, ttl)
				return out, nil
			}
		}
		c.metrics.CacheLookup("kv", false)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// a flight that finished between the lookup above and Do already cached it
		if v, ok := c.memGet(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
		out, err := fn(ctx)
		if err != nil {
			return out, err
		}
		if keep != nil && !keep(out) {
			return out, nil
		}
		c.memSet(key, date, out, ttl)
		c.kvSet(ctx, key, date, out, ttl)
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *Cache) memGet(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now := c.now(); !now.Before(e.expiresAt) {
		delete(c.entries, key)
		c.unindexLocked(e.date, key, now)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) memSet(key string, date time.Time, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	d := date.Format(dateLayout)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.cfg.MaxEntries > 0 && len(c.entries) >= c.cfg.MaxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(ttl), date: d}
	c.indexLocked(d, key, time.Time{})
}

// indexLocked records key under d, keeping the latest shared tier expiry
func (c *Cache) indexLocked(d, key string, kvExpiry time.Time) {
	set, ok := c.byDate[d]
	if !ok {
		set = make(map[string]time.Time)
		c.byDate[d] = set
	}
	if cur, ok := set[key]; !ok || kvExpiry.After(cur) {
		set[key] = kvExpiry
	}
}

// unindexLocked drops key from the date index once neither tier holds it
func (c *Cache) unindexLocked(d, key string, now time.Time) {
	if _, ok := c.entries[key]; ok {
		return
	}
	set, ok := c.byDate[d]
	if !ok {
		return
	}
	if exp, ok := set[key]; ok && (exp.IsZero() || !now.Before(exp)) {
		delete(set, key)
	}
	if len(set) == 0 {
		delete(c.byDate, d)
	}
}

// evictLocked drops expired entries, or the one closest to expiry when none
// are, then prunes index keys whose shared copy has expired too
func (c *Cache) evictLocked(now time.Time) {
	var victim string
	var earliest time.Time
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
			continue
		}
		if victim == "" || e.expiresAt.Before(earliest) {
			victim, earliest = k, e.expiresAt
		}
	}
	if removed == 0 && victim != "" {
		delete(c.entries, victim)
	}

	for d, set := range c.byDate {
		for k := range set {
			c.unindexLocked(d, k, now)
		}
	}
}

func (c *Cache) kvGetFactors(ctx context.Context, key string) (*contracts.FactorSet, bool) {
	if c.kv == nil {
		return nil, false
	}
	data, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("shared cache read failed")
		return nil, false
	}
	if !ok {
		c.metrics.CacheLookup("kv", false)
		return nil, false
	}

	var fs contracts.FactorSet
	if err := msgpack.Unmarshal(data, &fs); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("shared cache entry undecodable, ignoring")
		return nil, false
	}
	c.metrics.CacheLookup("kv", true)
	return &fs, true
}

func (c *Cache) kvSet(ctx context.Context, key string, date time.Time, value any, ttl time.Duration) {
	if c.kv == nil {
		return
	}
	data, err := msgpack.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("encode cache entry failed")
		return
	}
	if err := c.kv.Set(ctx, key, data, ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("shared cache write failed")
		return
	}

	c.mu.Lock()
	c.indexLocked(date.Format(dateLayout), key, c.now().Add(ttl))
	c.mu.Unlock()
}

func (c *Cache) kvDelete(ctx context.Context, keys []string) error {
	if c.kv == nil || len(keys) == 0 {
		return nil
	}
	if err := c.kv.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("delete %d shared cache keys: %w", len(keys), err)
	}
	return nil
}
