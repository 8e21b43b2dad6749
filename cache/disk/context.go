package disk

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/blobcache/cache"
)

// GetContext returns the blob cached for key.
//
// Only tracked entries are read. Concurrent reads of the same entry share
// one file read. A read or decode failure is logged and reported as a miss.
// If ctx is cancelled first, GetContext returns ctx.Err() and the cache is
// unchanged. The file read itself is not interrupted: it finishes in the
// background and its result goes to any other caller waiting on the same
// entry.
func (c *Cache) GetContext(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	name := c.naming.fileName(key)
	store, ok := c.readable(name)
	if !ok {
		c.stats.misses.Add(1)
		return nil, false, nil
	}

	ch := c.reads.DoChan(name, func() (any, error) {
		return c.read(store, name)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.WarnContext(ctx, "failed to read cache entry", "entry", name, "error", res.Err)
			c.stats.misses.Add(1)
			return nil, false, nil
		}
		c.stats.hits.Add(1)
		data, _ := res.Val.([]byte)
		return shared(data, res.Shared), true, nil
	}
}

// PutContext stores data under key and marks it most recently written,
// evicting the least recently written entries beyond MaxEntries.
//
// The blob is staged and then published with an atomic rename, so readers
// see either the previous content or the new content. Storage failures are
// logged and leave the cache as if the value was never stored; they are not
// returned. If ctx is cancelled before the entry is published, PutContext
// returns ctx.Err(), removes the staged data and leaves the cache unchanged.
func (c *Cache) PutContext(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := c.naming.fileName(key)
	store, ok := c.writable()
	if !ok {
		return nil
	}

	w, err := store.Stage(name)
	if err != nil {
		c.writeFailed(ctx, name, err)
		return nil
	}
	if err := writeContext(ctx, w, c.payload(data)); err != nil {
		if isContextErr(ctx, err) {
			return err
		}
		_ = w.Discard()
		c.writeFailed(ctx, name, err)
		return nil
	}
	if err := c.commit(ctx, name, w); err != nil {
		if isContextErr(ctx, err) {
			return err
		}
		c.writeFailed(ctx, name, err)
	}
	return nil
}

// Writer returns a cache.Writer that streams a blob into the cache under
// key. Nothing is visible to readers until Commit. Unlike Put, Writer
// reports storage failures to the caller.
func (c *Cache) Writer(key string) (cache.Writer, error) {
	name := c.naming.fileName(key)
	store, ok := c.writable()
	if !ok {
		return nil, fmt.Errorf("disk cache %q: %w", c.cfg.Directory, cache.ErrStorageUnavailable)
	}

	staged, err := store.Stage(name)
	if err != nil {
		c.writeFailed(context.Background(), name, err)
		return nil, err
	}
	ew := &entryWriter{c: c, name: name, staged: staged}
	if c.codec != nil {
		zw, err := c.codec.streamWriter(staged)
		if err != nil {
			_ = staged.Discard()
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		ew.zw = zw
	}
	return ew, nil
}

// entryWriter stages a streamed entry, optionally compressing it.
type entryWriter struct {
	c      *Cache
	name   string
	staged cache.Writer
	zw     io.WriteCloser
}

func (w *entryWriter) Write(p []byte) (int, error) {
	if w.zw != nil {
		return w.zw.Write(p)
	}
	return w.staged.Write(p)
}

func (w *entryWriter) Commit() error {
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			_ = w.staged.Discard()
			w.c.writeFailed(context.Background(), w.name, err)
			return fmt.Errorf("flush zstd writer: %w", err)
		}
	}
	if err := w.c.commit(context.Background(), w.name, w.staged); err != nil {
		w.c.writeFailed(context.Background(), w.name, err)
		return err
	}
	return nil
}

func (w *entryWriter) Discard() error {
	if w.zw != nil {
		_ = w.zw.Close()
	}
	return w.staged.Discard()
}

func (c *Cache) writeFailed(ctx context.Context, name string, err error) {
	c.stats.writeFailures.Add(1)
	c.logger.WarnContext(ctx, "failed to write cache entry", "entry", name, "error", err)
}

// writeContext writes p to w unless ctx is cancelled first. On cancellation
// the write is left to finish in the background and w is discarded after it
// does; the caller must not touch w again.
func writeContext(ctx context.Context, w cache.Writer, p []byte) error {
	if ctx.Done() == nil {
		_, err := w.Write(p)
		return err
	}

	errc := make(chan error, 1)
	go func() {
		_, err := w.Write(p)
		errc <- err
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		go func() {
			<-errc
			_ = w.Discard()
		}()
		return ctx.Err()
	}
}

func isContextErr(ctx context.Context, err error) bool {
	ctxErr := ctx.Err()
	return ctxErr != nil && errors.Is(err, ctxErr)
}
