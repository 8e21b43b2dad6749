// Package blobcache provides persistent and volatile key->blob caches for
// content fetched over the network, such as remote images.
//
// The building blocks live in subpackages:
//   - [github.com/meigma/blobcache/cache] defines the Memory and Disk tiers
//     and their no-op counterparts.
//   - [github.com/meigma/blobcache/cache/memory] is the process-lifetime tier.
//   - [github.com/meigma/blobcache/cache/disk] is the persistent tier, bounded
//     by entry count and age and rebuilt from its directory on startup.
//
// This package wires them together.
//
// # Quick Start
//
// Open a disk cache under the per-user data directory:
//
//	dc, err := blobcache.OpenDisk(ctx, disk.Config{
//	    MaxEntries: 500,
//	    Directory:  "images",
//	    MaxAge:     7 * 24 * time.Hour,
//	})
//	if err != nil && !errors.Is(err, blobcache.ErrStorageUnavailable) {
//	    return err
//	}
//
// A storage failure still returns a usable cache that always misses.
//
// Layer memory over disk over a loader:
//
//	l := blobcache.NewLayered(
//	    blobcache.WithMemory(memory.New[[]byte]()),
//	    blobcache.WithDisk(dc),
//	    blobcache.WithLoader(download),
//	)
//	img, err := l.Fetch(ctx, "https://example.com/avatar.png")
package blobcache
