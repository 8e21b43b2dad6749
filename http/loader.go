// Package http provides a blobcache.Loader that downloads blobs over HTTP,
// treating each cache key as a URL.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
)

// DefaultMaxSize bounds response bodies when no limit is configured.
const DefaultMaxSize int64 = 64 << 20 // 64 MB

// ErrTooLarge is returned when a response body exceeds the size limit.
var ErrTooLarge = errors.New("response body exceeds size limit")

// Loader downloads the resource named by a key.
type Loader struct {
	client  *nethttp.Client
	headers nethttp.Header
	maxSize int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(l *Loader) {
		l.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(l *Loader) {
		if headers == nil {
			return
		}
		l.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(l *Loader) {
		if l.headers == nil {
			l.headers = make(nethttp.Header)
		}
		l.headers.Set(key, value)
	}
}

// WithMaxSize limits how many bytes a single response may carry.
// Values <= 0 use DefaultMaxSize.
func WithMaxSize(n int64) Option {
	return func(l *Loader) {
		l.maxSize = n
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{client: nethttp.DefaultClient}
	for _, opt := range opts {
		opt(l)
	}
	if l.client == nil {
		l.client = nethttp.DefaultClient
	}
	if l.maxSize <= 0 {
		l.maxSize = DefaultMaxSize
	}
	return l
}

// Load fetches url and returns the response body. Any status other than
// 200 OK is an error.
//
// Load has the signature of blobcache.Loader.
func (l *Loader) Load(ctx context.Context, url string) ([]byte, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range l.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, fmt.Errorf("get %s: %s", url, resp.Status)
	}
	if resp.ContentLength > l.maxSize {
		return nil, fmt.Errorf("get %s: %d bytes: %w", url, resp.ContentLength, ErrTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, fmt.Errorf("get %s: %w", url, ErrTooLarge)
	}
	return data, nil
}
