package cache

import "context"

// NopMemory is a Memory that stores nothing.
type NopMemory[V any] struct{}

var _ Memory[[]byte] = NopMemory[[]byte]{}

// Get always misses.
func (NopMemory[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}

func (NopMemory[V]) Put(string, V)        {}
func (NopMemory[V]) Clear(string)         {}
func (NopMemory[V]) ClearAll()            {}
func (NopMemory[V]) Contains(string) bool { return false }
func (NopMemory[V]) Count() int           { return 0 }

// NopDisk is a Disk that stores nothing. It needs no initialization.
type NopDisk struct{}

var _ StreamingDisk = NopDisk{}

func (NopDisk) Initialize(context.Context) error { return nil }
func (NopDisk) Get(string) ([]byte, bool)        { return nil, false }

// GetContext always misses, reporting cancellation like a real cache would.
func (NopDisk) GetContext(ctx context.Context, _ string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

func (NopDisk) Put(string, []byte) {}

// PutContext discards data, reporting cancellation like a real cache would.
func (NopDisk) PutContext(ctx context.Context, _ string, _ []byte) error {
	return ctx.Err()
}

func (NopDisk) Clear(string)         {}
func (NopDisk) ClearAll()            {}
func (NopDisk) Contains(string) bool { return false }
func (NopDisk) Count() int           { return 0 }

// Writer returns a writer that discards everything written to it.
func (NopDisk) Writer(string) (Writer, error) { return noopWriter{}, nil }

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
func (noopWriter) Commit() error               { return nil }
func (noopWriter) Discard() error              { return nil }
