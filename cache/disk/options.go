package disk

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/meigma/blobcache/cache"
	"github.com/meigma/blobcache/paths"
)

const (
	defaultDirPerm          = 0o700
	defaultCompressionLevel = 3

	// DefaultAppName names the per-user data directory used when no base
	// directory, resolver or store is configured.
	DefaultAppName = "blobcache"
)

// Config is the immutable configuration of a disk cache.
type Config struct {
	// MaxEntries bounds the number of cached entries. Must be > 0.
	MaxEntries int

	// Directory is the cache's own subdirectory under the base directory.
	// It must be a local relative path.
	Directory string

	// MaxAge expires entries older than this when the cache is initialized.
	// Zero disables expiry.
	MaxAge time.Duration
}

func (c Config) validate() error {
	switch {
	case c.MaxEntries <= 0:
		return fmt.Errorf("%w: max entries must be > 0, got %d", cache.ErrInvalidConfig, c.MaxEntries)
	case c.Directory == "":
		return fmt.Errorf("%w: directory is empty", cache.ErrInvalidConfig)
	case !filepath.IsLocal(c.Directory):
		return fmt.Errorf("%w: directory %q is not a local relative path", cache.ErrInvalidConfig, c.Directory)
	case c.MaxAge < 0:
		return fmt.Errorf("%w: max age must be >= 0, got %s", cache.ErrInvalidConfig, c.MaxAge)
	}
	return nil
}

// options holds the tunables set through Option.
type options struct {
	resolver paths.Resolver
	store    Store
	logger   *slog.Logger
	now      func() time.Time
	alg      digest.Algorithm
	compress bool
	level    int
	dirPerm  os.FileMode
}

// Option configures a disk cache.
type Option func(*options)

func defaultOptions() options {
	return options{
		now:     time.Now,
		alg:     digest.SHA256,
		level:   defaultCompressionLevel,
		dirPerm: defaultDirPerm,
	}
}

// WithBaseDir sets the directory the cache directory is created under.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.resolver = paths.Dir(dir)
	}
}

// WithResolver sets the resolver for the directory the cache directory is
// created under. Defaults to the per-user data directory of [DefaultAppName].
func WithResolver(r paths.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithStore sets the storage backend directly, bypassing base directory
// resolution. The store is expected to be dedicated to this cache.
func WithStore(s Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithLogger sets a logger for the cache.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the time source used to age entries during Initialize and
// to stamp newly written entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDigestAlgorithm sets the digest used to derive file names from keys.
// Defaults to SHA-256; SHA-384 and SHA-512 widen the address space.
func WithDigestAlgorithm(alg digest.Algorithm) Option {
	return func(o *options) {
		o.alg = alg
	}
}

// WithCompression stores entries zstd-compressed at the given zstd level.
// Levels <= 0 use the default level. Compressed entries use a distinct file
// suffix, so a compressed and an uncompressed cache never read each other's
// files.
func WithCompression(level int) Option {
	return func(o *options) {
		o.compress = true
		if level > 0 {
			o.level = level
		}
	}
}

// WithDirPerm sets the permissions used when creating the cache directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(o *options) {
		o.dirPerm = mode
	}
}
