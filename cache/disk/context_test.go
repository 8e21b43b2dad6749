package disk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/blobcache/cache"
	"github.com/meigma/blobcache/internal/testutil"
)

var errInjected = errors.New("injected failure")

// faultyStore wraps a Store and fails selected operations.
type faultyStore struct {
	Store
	failStage  bool
	failRemove bool
	failWrite  bool
	failCommit bool
}

func (s *faultyStore) Stage(name string) (cache.Writer, error) {
	if s.failStage {
		return nil, errInjected
	}
	w, err := s.Store.Stage(name)
	if err != nil {
		return nil, err
	}
	return &faultyWriter{Writer: w, store: s}, nil
}

func (s *faultyStore) Remove(name string) error {
	if s.failRemove {
		return errInjected
	}
	return s.Store.Remove(name)
}

type faultyWriter struct {
	cache.Writer
	store *faultyStore
}

func (w *faultyWriter) Write(p []byte) (int, error) {
	if w.store.failWrite {
		return 0, errInjected
	}
	return w.Writer.Write(p)
}

func (w *faultyWriter) Commit() error {
	if w.store.failCommit {
		_ = w.Writer.Discard()
		return errInjected
	}
	return w.Writer.Commit()
}

// blockingStore holds every staged write and every read until release is
// closed.
type blockingStore struct {
	Store
	started   chan struct{}
	release   chan struct{}
	discarded chan struct{}
	once      sync.Once
}

func newBlockingStore(inner Store) *blockingStore {
	return &blockingStore{
		Store:     inner,
		started:   make(chan struct{}),
		release:   make(chan struct{}),
		discarded: make(chan struct{}, 1),
	}
}

func (s *blockingStore) block() {
	s.once.Do(func() { close(s.started) })
	<-s.release
}

func (s *blockingStore) ReadFile(name string) ([]byte, error) {
	s.block()
	return s.Store.ReadFile(name)
}

func (s *blockingStore) Stage(name string) (cache.Writer, error) {
	w, err := s.Store.Stage(name)
	if err != nil {
		return nil, err
	}
	return &blockingWriter{Writer: w, store: s}, nil
}

type blockingWriter struct {
	cache.Writer
	store *blockingStore
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.store.block()
	return w.Writer.Write(p)
}

func (w *blockingWriter) Discard() error {
	err := w.Writer.Discard()
	select {
	case w.store.discarded <- struct{}{}:
	default:
	}
	return err
}

func newStoreCache(t *testing.T, store Store, cfg Config, opts ...Option) *Cache {
	t.Helper()

	c, err := New(cfg, append([]Option{WithStore(store)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

func TestCache_WriteFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store func(Store) *faultyStore
	}{
		{name: "stage", store: func(s Store) *faultyStore { return &faultyStore{Store: s, failStage: true} }},
		{name: "write", store: func(s Store) *faultyStore { return &faultyStore{Store: s, failWrite: true} }},
		{name: "commit", store: func(s Store) *faultyStore { return &faultyStore{Store: s, failCommit: true} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			logger, logs := testutil.NewLogger()
			c := newStoreCache(t, tt.store(NewOSStore(dir, 0o700)),
				Config{MaxEntries: 2, Directory: testDir}, WithLogger(logger))

			c.Put("a", []byte("a"))
			require.NoError(t, c.PutContext(context.Background(), "b", []byte("b")))

			assert.Equal(t, 0, c.Count())
			assert.False(t, c.Contains("a"))
			assert.Empty(t, testutil.Files(t, dir), "failed writes must not leave files behind")
			assert.Equal(t, uint64(2), c.Stats().WriteFailures)
			assert.Contains(t, logs.Messages(0), "failed to write cache entry")
		})
	}
}

func TestCache_DeleteFailureIsAbsorbed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := &faultyStore{Store: NewOSStore(dir, 0o700), failRemove: true}
	c := newStoreCache(t, store, Config{MaxEntries: 1, Directory: testDir})

	c.Put("a", []byte("a"))
	c.Put("b", []byte("b"))

	assert.Equal(t, 1, c.Count())
	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
	// The evicted file is orphaned until the next Initialize prunes it.
	assert.FileExists(t, entryPath(dir, "a"))

	c.Clear("b")
	assert.Equal(t, 0, c.Count())
}

func TestCache_OrphanPrunedOnRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now()
	testutil.WriteAged(t, entryPath(dir, "orphan"), []byte("o"), now.Add(-time.Hour))
	testutil.WriteAged(t, entryPath(dir, "live"), []byte("l"), now)

	c := newStoreCache(t, NewOSStore(dir, 0o700), Config{MaxEntries: 1, Directory: testDir})

	assert.True(t, c.Contains("live"))
	assert.NoFileExists(t, entryPath(dir, "orphan"))
}

func TestCache_PutContextCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAged(t, entryPath(dir, "existing"), []byte("x"), time.Now())
	store := newBlockingStore(NewOSStore(dir, 0o700))
	c := newStoreCache(t, store, Config{MaxEntries: 1, Directory: testDir})

	countBefore := c.Count()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- c.PutContext(ctx, "new", []byte("y"))
	}()

	<-store.started
	cancel()

	require.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, countBefore, c.Count())
	assert.True(t, c.Contains("existing"))
	assert.False(t, c.Contains("new"))

	close(store.release)
	<-store.discarded
	assert.Equal(t, []string{c.FileName("existing")}, testutil.Files(t, dir))
}

func TestCache_GetContextCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAged(t, entryPath(dir, "a"), []byte("a"), time.Now())
	store := newBlockingStore(NewOSStore(dir, 0o700))
	c := newStoreCache(t, store, Config{MaxEntries: 1, Directory: testDir})

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		ok  bool
		err error
	}
	resc := make(chan result, 1)
	go func() {
		_, ok, err := c.GetContext(ctx, "a")
		resc <- result{ok: ok, err: err}
	}()

	<-store.started
	cancel()

	res := <-resc
	require.ErrorIs(t, res.err, context.Canceled)
	assert.False(t, res.ok)
	assert.Equal(t, 1, c.Count())
	assert.True(t, c.Contains("a"))

	close(store.release)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("a"), got)
}

func TestCache_ContextAlreadyCancelled(t *testing.T) {
	t.Parallel()

	c, dir := newTestCache(t, Config{MaxEntries: 2, Directory: testDir})
	c.Put("a", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, c.PutContext(ctx, "b", []byte("b")), context.Canceled)
	_, ok, err := c.GetContext(ctx, "a")
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	assert.Equal(t, 1, c.Count())
	assert.False(t, c.Contains("b"))
	assert.Len(t, testutil.Files(t, dir), 1)
}

func TestCache_ConcurrentReadsShareResult(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAged(t, entryPath(dir, "a"), []byte("shared"), time.Now())
	store := newBlockingStore(NewOSStore(dir, 0o700))
	c := newStoreCache(t, store, Config{MaxEntries: 1, Directory: testDir})

	const readers = 4
	results := make(chan []byte, readers)
	for range readers {
		go func() {
			got, _ := c.Get("a")
			results <- got
		}()
	}
	<-store.started
	close(store.release)

	var first []byte
	for range readers {
		got := <-results
		require.Equal(t, []byte("shared"), got)
		if first == nil {
			first = got
			continue
		}
		// Callers own their slices.
		got[0] = 'X'
		assert.Equal(t, byte('s'), first[0])
	}
}
