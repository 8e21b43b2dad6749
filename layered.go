package blobcache

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/blobcache/cache"
)

// Loader fetches the blob for key from its origin, typically the network.
type Loader func(ctx context.Context, key string) ([]byte, error)

// Layered consults a memory cache, then a disk cache, then a Loader.
//
// Hits in a lower tier populate the tiers above it. The tiers never see each
// other; Layered only uses their public interfaces.
//
// Concurrent Fetch calls for the same key share one load.
type Layered struct {
	memory cache.Memory[[]byte]
	disk   cache.Disk
	loader Loader
	logger *slog.Logger

	loads singleflight.Group
}

// LayeredOption configures a Layered.
type LayeredOption func(*Layered)

// WithMemory sets the memory tier. Defaults to cache.NopMemory.
func WithMemory(m cache.Memory[[]byte]) LayeredOption {
	return func(l *Layered) {
		if m != nil {
			l.memory = m
		}
	}
}

// WithDisk sets the disk tier. It must already be initialized.
// Defaults to cache.NopDisk.
func WithDisk(d cache.Disk) LayeredOption {
	return func(l *Layered) {
		if d != nil {
			l.disk = d
		}
	}
}

// WithLoader sets the loader consulted when both tiers miss.
func WithLoader(fn Loader) LayeredOption {
	return func(l *Layered) {
		l.loader = fn
	}
}

// WithLogger sets a logger for load failures.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) LayeredOption {
	return func(l *Layered) {
		l.logger = logger
	}
}

// NewLayered creates a Layered cache.
func NewLayered(opts ...LayeredOption) *Layered {
	l := &Layered{
		memory: cache.NopMemory[[]byte]{},
		disk:   cache.NopDisk{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	return l
}

// Get returns the blob for key from memory or disk, promoting disk hits to
// memory. It never calls the loader.
func (l *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if data, ok := l.memory.Get(key); ok {
		return data, true, nil
	}
	data, ok, err := l.disk.GetContext(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	l.memory.Put(key, bytes.Clone(data))
	return data, true, nil
}

// Fetch returns the blob for key, loading and caching it on a miss.
//
// The load runs detached from any single caller's cancellation so that
// other callers waiting on the same key still receive it; each caller stops
// waiting when its own ctx is done. The returned blob is always a private
// copy, so callers may modify it without affecting the tiers.
func (l *Layered) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, ok, err := l.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return bytes.Clone(data), nil
	}
	if l.loader == nil {
		return nil, ErrNoLoader
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := l.loads.DoChan(key, func() (any, error) {
		// Another caller may have stored key since our lookup.
		if data, ok, err := l.Get(loadCtx, key); err == nil && ok {
			return bytes.Clone(data), nil
		}

		data, err := l.loader(loadCtx, key)
		if err != nil {
			l.logger.WarnContext(loadCtx, "failed to load blob", "key", key, "error", err)
			return nil, fmt.Errorf("load %q: %w", key, err)
		}
		l.store(loadCtx, key, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data, _ := res.Val.([]byte)
		if res.Shared {
			data = bytes.Clone(data)
		}
		return data, nil
	}
}

// Put stores data in both tiers.
func (l *Layered) Put(ctx context.Context, key string, data []byte) error {
	if err := l.disk.PutContext(ctx, key, data); err != nil {
		return err
	}
	l.memory.Put(key, data)
	return nil
}

// Clear removes key from both tiers.
func (l *Layered) Clear(key string) {
	l.memory.Clear(key)
	l.disk.Clear(key)
}

// ClearAll empties both tiers.
func (l *Layered) ClearAll() {
	l.memory.ClearAll()
	l.disk.ClearAll()
}

func (l *Layered) store(ctx context.Context, key string, data []byte) {
	if err := l.disk.PutContext(ctx, key, data); err != nil {
		l.logger.WarnContext(ctx, "failed to cache blob on disk", "key", key, "error", err)
	}
	l.memory.Put(key, bytes.Clone(data))
}
