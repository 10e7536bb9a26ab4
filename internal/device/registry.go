package device

import (
	"context"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DefaultCacheTTL bounds how stale a cached device (and its online flag)
// may be.
const DefaultCacheTTL = 30 * time.Second

type cacheKey struct {
	siteID     string
	externalID string
}

type cacheEntry struct {
	device  *Device
	expires time.Time
}

// Registry resolves topic identifiers to devices, caching hits in memory.
//
// Every history and realtime sample needs a lookup, so hits are kept for
// the cache TTL. Misses are never cached: a device registered a moment
// ago must be picked up by the next sample.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	ttl    time.Duration
	now    func() time.Time
	logger Logger

	cacheMu sync.RWMutex
	cache   map[cacheKey]cacheEntry

	statsMu sync.Mutex
	hits    int64
	misses  int64
}

// NewRegistry creates a registry over repo. A ttl <= 0 uses DefaultCacheTTL.
func NewRegistry(repo Repository, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Registry{
		repo:   repo,
		ttl:    ttl,
		now:    time.Now,
		logger: noopLogger{},
		cache:  make(map[cacheKey]cacheEntry),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// FindByExternalID returns the device with externalID in the project that
// owns siteID. The returned device is a copy; callers may modify it.
// Returns ErrDeviceNotFound when no such device exists.
func (r *Registry) FindByExternalID(ctx context.Context, externalID, siteID string) (*Device, error) {
	key := cacheKey{siteID: siteID, externalID: externalID}

	r.cacheMu.RLock()
	entry, ok := r.cache[key]
	r.cacheMu.RUnlock()

	if ok && r.now().Before(entry.expires) {
		r.record(true)
		return entry.device.DeepCopy(), nil
	}
	r.record(false)

	device, err := r.repo.FindByExternalID(ctx, externalID, siteID)
	if err != nil {
		if ok {
			r.Invalidate(siteID, externalID)
		}
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[key] = cacheEntry{device: device.DeepCopy(), expires: r.now().Add(r.ttl)}
	r.cacheMu.Unlock()

	return device, nil
}

// Invalidate drops one cached device.
func (r *Registry) Invalidate(siteID, externalID string) {
	r.cacheMu.Lock()
	delete(r.cache, cacheKey{siteID: siteID, externalID: externalID})
	r.cacheMu.Unlock()
}

// Purge empties the cache.
func (r *Registry) Purge() {
	r.cacheMu.Lock()
	n := len(r.cache)
	r.cache = make(map[cacheKey]cacheEntry)
	r.cacheMu.Unlock()
	r.logger.Debug("device cache purged", "entries", n)
}

// Stats reports cache effectiveness.
type Stats struct {
	Cached int   `json:"cached"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// GetStats returns a snapshot of the cache counters.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	cached := len(r.cache)
	r.cacheMu.RUnlock()

	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return Stats{Cached: cached, Hits: r.hits, Misses: r.misses}
}

func (r *Registry) record(hit bool) {
	r.statsMu.Lock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
	r.statsMu.Unlock()
}
