package http_test

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/meigma/blobcache"
	"github.com/meigma/blobcache/cache/disk"
	"github.com/meigma/blobcache/cache/memory"
	blobhttp "github.com/meigma/blobcache/http"
)

func TestLoaderLoad(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("png bytes"))
	}))
	t.Cleanup(server.Close)

	l := blobhttp.NewLoader(blobhttp.WithHeader("Authorization", "Bearer token"))
	data, err := l.Load(context.Background(), server.URL+"/a.png")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(data) != "png bytes" {
		t.Fatalf("Load() = %q, want %q", data, "png bytes")
	}
}

func TestLoaderHeaderOptions(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = w.Write([]byte(r.Header.Get("X-Tenant") + "|" + r.Header.Get("Authorization")))
	}))
	t.Cleanup(server.Close)

	tests := []struct {
		name string
		opts []blobhttp.Option
		want string
	}{
		{
			name: "headers",
			opts: []blobhttp.Option{blobhttp.WithHeaders(nethttp.Header{"X-Tenant": {"acme"}})},
			want: "acme|",
		},
		{
			name: "headers then header",
			opts: []blobhttp.Option{
				blobhttp.WithHeaders(nethttp.Header{"X-Tenant": {"acme"}}),
				blobhttp.WithHeader("Authorization", "Bearer token"),
			},
			want: "acme|Bearer token",
		},
		{
			name: "nil headers",
			opts: []blobhttp.Option{blobhttp.WithHeaders(nil)},
			want: "|",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := blobhttp.NewLoader(tt.opts...).Load(context.Background(), server.URL)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if string(data) != tt.want {
				t.Fatalf("Load() = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestLoaderStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.NotFoundHandler())
	t.Cleanup(server.Close)

	_, err := blobhttp.NewLoader().Load(context.Background(), server.URL+"/missing.png")
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("Load() error = %v, want status in message", err)
	}
}

func TestLoaderMaxSize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		// Chunked, so the limit is only found while reading.
		w.(nethttp.Flusher).Flush()
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	t.Cleanup(server.Close)

	_, err := blobhttp.NewLoader(blobhttp.WithMaxSize(10)).Load(context.Background(), server.URL)
	if !errors.Is(err, blobhttp.ErrTooLarge) {
		t.Fatalf("Load() error = %v, want ErrTooLarge", err)
	}
}

func TestLoaderCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := blobhttp.NewLoader().Load(ctx, server.URL); !errors.Is(err, context.Canceled) {
		t.Fatalf("Load() error = %v, want context.Canceled", err)
	}
}

func TestLoaderBehindLayeredCache(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("avatar"))
	}))
	t.Cleanup(server.Close)

	base := t.TempDir()
	url := server.URL + "/avatar.png"

	for range 2 {
		dc, err := blobcache.OpenDisk(context.Background(), disk.Config{MaxEntries: 10, Directory: "avatars"},
			disk.WithBaseDir(base))
		if err != nil {
			t.Fatalf("OpenDisk() error = %v", err)
		}
		l := blobcache.NewLayered(
			blobcache.WithMemory(memory.New[[]byte]()),
			blobcache.WithDisk(dc),
			blobcache.WithLoader(blobhttp.NewLoader().Load),
		)
		data, err := l.Fetch(context.Background(), url)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(data) != "avatar" {
			t.Fatalf("Fetch() = %q, want %q", data, "avatar")
		}
		_ = dc.Close()
	}

	if got := hits.Load(); got != 1 {
		t.Fatalf("server hits = %d, want 1 (second process must hit disk)", got)
	}
}
