package blobcache

import (
	"errors"

	"github.com/meigma/blobcache/cache"
)

// Errors re-exported from cache.
var (
	// ErrNotInitialized is wrapped by the panic raised when a disk cache is
	// used before Initialize.
	ErrNotInitialized = cache.ErrNotInitialized

	// ErrStorageUnavailable is returned when a disk cache cannot open its
	// directory and degrades to always-miss.
	ErrStorageUnavailable = cache.ErrStorageUnavailable

	// ErrInvalidConfig is returned when a cache configuration is rejected.
	ErrInvalidConfig = cache.ErrInvalidConfig
)

// ErrNoLoader is returned by Layered.Fetch on a miss when no loader is set.
var ErrNoLoader = errors.New("blobcache: no loader configured")
