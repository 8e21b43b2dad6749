// Package cache defines the caching tiers shared by the blobcache packages.
//
// Two tiers exist at different durability levels:
//   - [Memory] is a process-lifetime key->value mapping with no bound and no
//     expiry (see the memory subpackage).
//   - [Disk] is a persistent key->blob mapping bounded by entry count and age,
//     evicting the least recently written entry (see the disk subpackage).
//
// Every tier has a no-op counterpart ([NopMemory], [NopDisk]) so callers can
// disable caching or stub it out in tests without changing call sites.
//
// The tiers never call into each other. Composing them (memory first, then
// disk, then the network) is the caller's responsibility.
package cache

import (
	"context"
	"io"
)

// Memory is a volatile key->value cache.
//
// Implementations must be safe for concurrent use.
type Memory[V any] interface {
	// Get returns the value stored for key.
	// Returns the zero value and false if the key is absent.
	Get(key string) (V, bool)

	// Put stores value under key, replacing any previous value.
	Put(key string, value V)

	// Clear removes key. Absent keys are a no-op.
	Clear(key string)

	// ClearAll removes every key.
	ClearAll()

	// Contains reports whether key is present.
	Contains(key string) bool

	// Count returns the number of stored keys.
	Count() int
}

// Disk is a persistent, size-bounded, expiring key->blob cache.
//
// Initialize must be called exactly once before any other method. Calling an
// accessor on an uninitialized cache is a programming error and panics with an
// error wrapping [ErrNotInitialized].
//
// Storage failures are never surfaced by accessors: a failed read is a miss
// and a failed write leaves the cache as if the value was never stored.
//
// Implementations must be safe for concurrent use.
type Disk interface {
	// Initialize prepares the storage directory and rebuilds cache state from
	// it, pruning entries over the count bound or older than the age bound.
	Initialize(ctx context.Context) error

	// Get returns the blob cached for key.
	// Returns nil, false on a miss.
	Get(key string) ([]byte, bool)

	// GetContext is Get with cooperative cancellation. On cancellation it
	// returns ctx.Err() and leaves cache state unchanged.
	GetContext(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores data under key and marks it most recently written.
	Put(key string, data []byte)

	// PutContext is Put with cooperative cancellation. On cancellation it
	// returns ctx.Err() and leaves cache state unchanged.
	PutContext(ctx context.Context, key string, data []byte) error

	// Clear removes key. Absent keys are a no-op.
	Clear(key string)

	// ClearAll removes every tracked entry.
	ClearAll()

	// Contains reports whether key is tracked, without touching storage.
	Contains(key string) bool

	// Count returns the number of tracked entries.
	Count() int
}

// StreamingDisk extends Disk with streaming write support for large blobs.
type StreamingDisk interface {
	Disk

	// Writer returns a Writer for streaming a blob into the cache under key.
	Writer(key string) (Writer, error)
}

// Writer streams content into the cache.
//
// Content is written via Write calls. After all content is written:
//   - Call Commit to make the content available via Get
//   - Call Discard if an error occurred or the content is unwanted
//
// Implementations should buffer writes to a temporary location and only
// make the content visible after Commit is called.
type Writer interface {
	io.Writer

	// Commit finalizes the cache entry, making it available via Get.
	Commit() error

	// Discard aborts the cache write and cleans up temporary data.
	Discard() error
}
