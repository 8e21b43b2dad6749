package cache

import "errors"

var (
	// ErrNotInitialized is reported when a disk cache is used before Initialize.
	ErrNotInitialized = errors.New("cache not initialized")

	// ErrStorageUnavailable is returned by Initialize when the storage
	// directory cannot be created or listed. The cache stays usable but
	// behaves as permanently empty.
	ErrStorageUnavailable = errors.New("cache storage unavailable")

	// ErrInvalidConfig is returned when a cache is constructed with an
	// invalid configuration.
	ErrInvalidConfig = errors.New("invalid cache config")
)
