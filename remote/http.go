// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/valyala/bytebufferpool"
)

// DefaultRetryMax is the number of retries NewHTTPFetcher configures.
const DefaultRetryMax = 3

// HTTPFetcher fetches archive bytes with HTTP range requests.
// Transient failures are retried by the underlying retryablehttp client.
type HTTPFetcher struct {
	URL    string
	Client *retryablehttp.Client
}

// NewHTTPFetcher returns a fetcher for url. A nil logger silences the client.
func NewHTTPFetcher(url string, logger logrus.FieldLogger) *HTTPFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = DefaultRetryMax
	client.Logger = nil
	if logger != nil {
		client.Logger = logger
	}
	return &HTTPFetcher{URL: url, Client: client}
}

func (f *HTTPFetcher) Key() string { return f.URL }

func (f *HTTPFetcher) FetchRange(ctx context.Context, start, end int64) (Chunk, error) {
	return f.fetchPartial(ctx, fmt.Sprintf("bytes=%d-%d", start, end))
}

func (f *HTTPFetcher) FetchTail(ctx context.Context, n int64) (Chunk, error) {
	return f.fetchPartial(ctx, fmt.Sprintf("bytes=-%d", n))
}

func (f *HTTPFetcher) FetchAll(ctx context.Context) ([]byte, error) {
	resp, err := f.get(ctx, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote: get %s: status code %d", f.URL, resp.StatusCode)
	}
	return readBody(resp)
}

// fetchPartial issues a range request. Anything but 206 Partial Content means
// the server ignored or refused the range.
func (f *HTTPFetcher) fetchPartial(ctx context.Context, rangeHeader string) (Chunk, error) {
	resp, err := f.get(ctx, rangeHeader)
	if err != nil {
		return Chunk{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return Chunk{}, fmt.Errorf("%w: %s answered %d", ErrRangeNotSupported, rangeHeader, resp.StatusCode)
	}

	offset, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return Chunk{}, err
	}

	data, err := readBody(resp)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Data: data, Offset: offset}, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rangeHeader string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: get %s: %w", f.URL, err)
	}
	return resp, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	if _, err := bb.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("remote: read body: %w", err)
	}

	// bb is returned to the pool, so the caller gets its own copy
	data := make([]byte, bb.Len())
	copy(data, bb.B)
	return data, nil
}

// parseContentRange extracts the first byte position from a
// "bytes first-last/total" header.
func parseContentRange(v string) (int64, error) {
	rest, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return 0, fmt.Errorf("remote: Content-Range not found: %q", v)
	}
	first, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, fmt.Errorf("remote: malformed Content-Range: %q", v)
	}
	offset, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("remote: malformed Content-Range: %q: %w", v, err)
	}
	return offset, nil
}
