// Package disk provides the persistent, size-bounded, expiring cache tier.
//
// Each entry is a file named after the digest of its key, in a directory
// dedicated to the cache. A file's modification time is the only recency and
// age metadata. There is no manifest: after any crash, Initialize rebuilds the
// cache state from the directory listing alone.
//
// Recency is updated on write only. Get never reorders entries, so an entry
// that is read often but never rewritten is still the first to be evicted
// once it is the least recently written.
package disk

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/blobcache/cache"
	"github.com/meigma/blobcache/paths"
)

// Cache implements cache.StreamingDisk on top of a Store.
//
// A single mutex serializes every change to the recency index together with
// the file operation that pairs with it (publishing a staged write, deleting
// an evicted or cleared file). Staging writes and reads run outside the lock.
type Cache struct {
	cfg      Config
	naming   naming
	codec    *codec
	resolver paths.Resolver
	dirPerm  os.FileMode
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.Mutex
	store     Store
	index     *recency // nil until Initialize
	degraded  bool
	lastStamp time.Time

	reads singleflight.Group
	stats counters
}

var _ cache.StreamingDisk = (*Cache)(nil)

// New creates a disk cache. Initialize must be called before use.
func New(cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !o.alg.Available() {
		return nil, fmt.Errorf("%w: digest algorithm %q unavailable", cache.ErrInvalidConfig, o.alg)
	}

	c := &Cache{
		cfg:      cfg,
		naming:   naming{alg: o.alg, suffix: Suffix},
		resolver: o.resolver,
		dirPerm:  o.dirPerm,
		store:    o.store,
		now:      o.now,
		logger:   o.logger,
	}
	if c.resolver == nil {
		c.resolver = paths.NewApp(DefaultAppName)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.logger = c.logger.With("cache", cfg.Directory)

	if o.compress {
		cd, err := newCodec(o.level)
		if err != nil {
			return nil, fmt.Errorf("create zstd codec: %w", err)
		}
		c.codec = cd
		c.naming.suffix = CompressedSuffix
	}
	return c, nil
}

// Initialize prepares the cache directory and rebuilds the recency index.
//
// Files beyond MaxEntries (oldest first) and files older than MaxAge are
// deleted; survivors become the index, newest first. Deletion failures are
// logged and skipped. If the directory cannot be created or listed, the
// cache degrades to always-miss for the rest of the process and the returned
// error wraps cache.ErrStorageUnavailable.
//
// Calling Initialize again re-scans the directory.
func (c *Cache) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.openStore()
	if err != nil {
		c.index = newRecency(nil)
		c.degraded = true
		c.logger.ErrorContext(ctx, "cache storage unavailable, caching disabled", "error", err)
		return fmt.Errorf("%w: %w", cache.ErrStorageUnavailable, err)
	}
	c.degraded = false

	tracked := entries[:0]
	for _, e := range entries {
		if c.naming.isEntry(e.Name) {
			tracked = append(tracked, e)
		}
	}

	keep, drop := planPrune(tracked, c.cfg.MaxEntries, c.cfg.MaxAge, c.now())
	for _, e := range drop {
		c.deleteFile(ctx, e.Name, "prune")
		c.stats.pruned.Add(1)
	}

	names := make([]string, len(keep))
	for i, e := range keep {
		names[i] = e.Name
	}
	c.index = newRecency(names)
	if len(keep) > 0 && keep[0].ModTime.After(c.lastStamp) {
		c.lastStamp = keep[0].ModTime
	}

	c.logger.InfoContext(ctx, "cache initialized", "entries", len(names), "pruned", len(drop))
	return nil
}

// openStore resolves and initializes the store and lists its files.
// Caller must hold c.mu.
func (c *Cache) openStore() ([]Entry, error) {
	if c.store == nil {
		base, err := c.resolver.BaseDir()
		if err != nil {
			return nil, fmt.Errorf("resolve base dir: %w", err)
		}
		c.store = NewOSStore(filepath.Join(base, c.cfg.Directory), c.dirPerm)
	}
	if err := c.store.Init(); err != nil {
		return nil, err
	}
	return c.store.List()
}

// Get returns the blob cached for key, or nil, false on a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	data, ok, _ := c.GetContext(context.Background(), key)
	return data, ok
}

// Put stores data under key. Storage failures are logged, not returned.
func (c *Cache) Put(key string, data []byte) {
	_ = c.PutContext(context.Background(), key, data)
}

// Clear removes key. Absent keys are a no-op.
func (c *Cache) Clear(key string) {
	name := c.naming.fileName(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeInitialized()

	if !c.index.remove(name) {
		return
	}
	c.reads.Forget(name)
	c.deleteFile(context.Background(), name, "clear")
}

// ClearAll removes every tracked entry. Files in the directory that the
// cache does not track are left alone.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeInitialized()

	for _, name := range c.index.names() {
		c.index.remove(name)
		c.reads.Forget(name)
		c.deleteFile(context.Background(), name, "clear")
	}
}

// Contains reports whether key is tracked. It never touches storage.
func (c *Cache) Contains(key string) bool {
	name := c.naming.fileName(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeInitialized()
	return c.index.contains(name)
}

// Count returns the number of tracked entries.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeInitialized()
	return c.index.len()
}

// Degraded reports whether Initialize failed to open storage, leaving the
// cache permanently empty.
func (c *Cache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// FileName returns the name of the file that stores key.
func (c *Cache) FileName(key string) string {
	return c.naming.fileName(key)
}

// Close releases compression resources. The cache must not be used after
// Close.
func (c *Cache) Close() error {
	c.codec.close()
	return nil
}

// mustBeInitialized panics if Initialize has not been called.
// Caller must hold c.mu.
func (c *Cache) mustBeInitialized() {
	if c.index == nil {
		panic(fmt.Errorf("disk cache %q: %w", c.cfg.Directory, cache.ErrNotInitialized))
	}
}

// evict deletes least recently written entries until the bound holds.
// Caller must hold c.mu.
func (c *Cache) evict(ctx context.Context) {
	for c.index.len() > c.cfg.MaxEntries {
		name, _ := c.index.oldest()
		c.index.remove(name)
		c.reads.Forget(name)
		c.deleteFile(ctx, name, "evict")
		c.stats.evictions.Add(1)
		c.logger.DebugContext(ctx, "evicted cache entry", "entry", name)
	}
}

// deleteFile removes name from storage, logging failures. A file that cannot
// be deleted is orphaned until it is pruned or overwritten.
func (c *Cache) deleteFile(ctx context.Context, name, reason string) {
	if err := c.store.Remove(name); err != nil {
		c.logger.WarnContext(ctx, "failed to delete cache entry",
			"entry", name, "reason", reason, "error", err)
	}
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Entries       int
	Hits          uint64
	Misses        uint64
	Writes        uint64
	WriteFailures uint64
	Evictions     uint64
	Pruned        uint64
}

type counters struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	writes        atomic.Uint64
	writeFailures atomic.Uint64
	evictions     atomic.Uint64
	pruned        atomic.Uint64
}

// Stats returns activity counters since construction. Entries is zero
// before Initialize.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := 0
	if c.index != nil {
		entries = c.index.len()
	}
	c.mu.Unlock()

	return Stats{
		Entries:       entries,
		Hits:          c.stats.hits.Load(),
		Misses:        c.stats.misses.Load(),
		Writes:        c.stats.writes.Load(),
		WriteFailures: c.stats.writeFailures.Load(),
		Evictions:     c.stats.evictions.Load(),
		Pruned:        c.stats.pruned.Load(),
	}
}

// readable returns the store if name is tracked. The index is authoritative:
// untracked files are never read.
func (c *Cache) readable(name string) (Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeInitialized()
	if c.degraded || !c.index.contains(name) {
		return nil, false
	}
	return c.store, true
}

// writable returns the store unless the cache is degraded.
func (c *Cache) writable() (Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeInitialized()
	if c.degraded {
		return nil, false
	}
	return c.store, true
}

// read loads and decodes an entry.
func (c *Cache) read(store Store, name string) ([]byte, error) {
	raw, err := store.ReadFile(name)
	if err != nil {
		return nil, err
	}
	data, err := c.codec.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return data, nil
}

// commit publishes a staged entry and records it as most recently written,
// evicting as needed, in one critical section. If ctx is already cancelled
// the staged entry is discarded and the index is left untouched.
//
// The published file is stamped with a modification time taken under c.mu,
// so the directory listing orders entries exactly as the index does.
func (c *Cache) commit(ctx context.Context, name string, w cache.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		_ = w.Discard()
		return err
	}
	if c.degraded {
		_ = w.Discard()
		return cache.ErrStorageUnavailable
	}
	if err := w.Commit(); err != nil {
		return err
	}
	if err := c.store.Touch(name, c.stamp()); err != nil {
		c.logger.WarnContext(ctx, "failed to stamp cache entry", "entry", name, "error", err)
	}
	c.reads.Forget(name)
	c.index.touch(name)
	c.stats.writes.Add(1)
	c.evict(ctx)
	return nil
}

// stamp returns the modification time for a newly published entry. Stamps
// strictly increase, even when the clock stalls or steps backwards.
// Caller must hold c.mu.
func (c *Cache) stamp() time.Time {
	t := c.now().Round(0)
	if !t.After(c.lastStamp) {
		t = c.lastStamp.Add(time.Nanosecond)
	}
	c.lastStamp = t
	return t
}

// payload returns data as it is stored on disk.
func (c *Cache) payload(data []byte) []byte {
	if c.codec == nil {
		return data
	}
	return c.codec.encode(data)
}

// shared returns a private copy of data when a singleflight result is
// handed to more than one caller.
func shared(data []byte, isShared bool) []byte {
	if !isShared {
		return data
	}
	return bytes.Clone(data)
}
