// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrRangeNotSupported is returned by a Fetcher whose source cannot serve
// partial content. Open and ReadFile react by downloading the whole archive once.
var ErrRangeNotSupported = errors.New("remote: range requests not supported")

// Chunk is a run of archive bytes and the archive offset of its first byte.
type Chunk struct {
	Data   []byte
	Offset int64
}

// Fetcher supplies archive bytes on demand.
type Fetcher interface {
	// Key identifies the archive, e.g. its URL. It scopes cache entries.
	Key() string

	// FetchRange returns the bytes from start through end inclusive.
	// The end may be clamped to the end of the archive.
	FetchRange(ctx context.Context, start, end int64) (Chunk, error)

	// FetchTail returns the last n bytes, or the whole archive if it is shorter.
	FetchTail(ctx context.Context, n int64) (Chunk, error)

	// FetchAll returns the whole archive.
	FetchAll(ctx context.Context) ([]byte, error)
}

// ReaderAtFetcher serves ranges from an io.ReaderAt of known size,
// such as an *os.File or a *bytes.Reader.
type ReaderAtFetcher struct {
	Name string
	R    io.ReaderAt
	Size int64
}

// NewReaderAtFetcher returns a Fetcher reading from r.
func NewReaderAtFetcher(name string, r io.ReaderAt, size int64) *ReaderAtFetcher {
	return &ReaderAtFetcher{Name: name, R: r, Size: size}
}

func (f *ReaderAtFetcher) Key() string { return f.Name }

func (f *ReaderAtFetcher) FetchRange(ctx context.Context, start, end int64) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if start < 0 || start > end || start >= f.Size {
		return Chunk{}, fmt.Errorf("remote: invalid range %d-%d for %d bytes", start, end, f.Size)
	}
	end = min(end, f.Size-1)

	buf := make([]byte, end-start+1)
	n, err := f.R.ReadAt(buf, start)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return Chunk{}, fmt.Errorf("read at %d: %w", start, err)
	}
	return Chunk{Data: buf, Offset: start}, nil
}

func (f *ReaderAtFetcher) FetchTail(ctx context.Context, n int64) (Chunk, error) {
	if f.Size == 0 {
		return Chunk{}, nil
	}
	start := max(f.Size-n, 0)
	return f.FetchRange(ctx, start, f.Size-1)
}

func (f *ReaderAtFetcher) FetchAll(ctx context.Context) ([]byte, error) {
	c, err := f.FetchTail(ctx, f.Size)
	if err != nil {
		return nil, err
	}
	return c.Data, nil
}
