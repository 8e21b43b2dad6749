package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopMemory(t *testing.T) {
	t.Parallel()

	var c Memory[string] = NopMemory[string]{}
	c.Put("k", "v")

	got, ok := c.Get("k")
	assert.False(t, ok)
	assert.Empty(t, got)
	assert.False(t, c.Contains("k"))
	assert.Equal(t, 0, c.Count())
}

func TestNopDisk(t *testing.T) {
	t.Parallel()

	var c StreamingDisk = NopDisk{}
	require.NoError(t, c.Initialize(context.Background()))

	c.Put("k", []byte("v"))
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.False(t, c.Contains("k"))
	assert.Equal(t, 0, c.Count())

	w, err := c.Writer("k")
	require.NoError(t, err)
	n, err := w.Write([]byte("streamed"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	require.NoError(t, w.Commit())
	assert.False(t, c.Contains("k"))
}

func TestNopDiskContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NopDisk{}.GetContext(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, NopDisk{}.PutContext(ctx, "k", nil), context.Canceled)
}
