package blobcache

import (
	"context"
	"errors"

	"github.com/meigma/blobcache/cache"
	"github.com/meigma/blobcache/cache/disk"
)

// OpenDisk creates a disk cache and initializes it.
//
// If the cache's storage cannot be opened, OpenDisk returns the degraded
// cache together with an error wrapping ErrStorageUnavailable. The cache is
// safe to use and always misses; callers that treat caching as optional can
// ignore that error. Any other error returns a nil cache.
func OpenDisk(ctx context.Context, cfg disk.Config, opts ...disk.Option) (*disk.Cache, error) {
	c, err := disk.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Initialize(ctx); err != nil {
		if errors.Is(err, cache.ErrStorageUnavailable) {
			return c, err
		}
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
