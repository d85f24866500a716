// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package remote reads entries of a ZIP archive that lives behind a [Fetcher],
// typically an HTTP server, downloading only the bytes each entry needs.
//
// Open fetches the archive tail, locates the end of central directory record,
// then fetches and parses the central directory. ReadFile fetches one entry's
// range and hands it to the rangezip engine for validation and decompression.
// Every fetched fragment is kept in a [Cache].
//
// Servers that do not honor range requests are handled by downloading the
// archive once and serving every later read from memory.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lemon4ksan/rangezip"
)

// DefaultTailSize covers the end of central directory record (22 bytes) plus
// the longest possible archive comment (65535 bytes).
const DefaultTailSize = 65557

// Pseudo fragment names for the archive records cached alongside entries.
const (
	eocdFragment = ":eocd"
	cdFragment   = ":cd"
)

type options struct {
	tailSize       int64
	cache          *Cache
	forceInMemory  bool
	logger         logrus.FieldLogger
	archiveOptions []rangezip.Option
}

// Option configures Open.
type Option func(o *options)

// WithTailSize sets how many trailing bytes are fetched to find the end of
// central directory record. Archives with long comments need the default.
func WithTailSize(n int64) Option {
	return func(o *options) {
		if n >= 22 {
			o.tailSize = n
		}
	}
}

// WithCache shares a fragment cache between archives.
func WithCache(c *Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithInMemory skips range requests and downloads the whole archive up front.
func WithInMemory(force bool) Option {
	return func(o *options) {
		o.forceInMemory = force
	}
}

// WithLogger sets the logger for fetch diagnostics. It is also passed to the
// rangezip engine unless WithArchiveOptions overrides it.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithArchiveOptions forwards options to rangezip.NewArchive.
func WithArchiveOptions(opts ...rangezip.Option) Option {
	return func(o *options) {
		o.archiveOptions = append(o.archiveOptions, opts...)
	}
}

// Archive is an open remote archive. Its methods are safe for concurrent use;
// reads are serialized.
type Archive struct {
	mu sync.Mutex

	fetcher Fetcher
	cache   *Cache
	log     logrus.FieldLogger
	zip     *rangezip.Archive

	// inMemory holds the whole archive once range requests were given up.
	inMemory []byte
}

// Open prepares fetcher's archive for reading: it fetches or recalls the end
// of central directory record and the central directory and parses them.
func Open(ctx context.Context, fetcher Fetcher, opts ...Option) (*Archive, error) {
	o := options{
		tailSize: DefaultTailSize,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil {
		o.cache = NewCache()
	}

	a := &Archive{
		fetcher: fetcher,
		cache:   o.cache,
		log:     o.logger.WithField("archive", fetcher.Key()),
	}

	if o.forceInMemory {
		if err := a.loadInMemory(ctx); err != nil {
			return nil, err
		}
	}

	archiveOptions := append([]rangezip.Option{rangezip.WithLogger(o.logger)}, o.archiveOptions...)
	if err := a.prepare(ctx, o.tailSize, archiveOptions); err != nil {
		return nil, err
	}

	if a.inMemory != nil {
		a.prefill()
	}
	return a, nil
}

func (a *Archive) prepare(ctx context.Context, tailSize int64, archiveOptions []rangezip.Option) error {
	key := a.fetcher.Key()

	eocdData, eocdCached := a.cache.Get(key, eocdFragment)
	cdData, cdCached := a.cache.Get(key, cdFragment)

	var tail Chunk
	if !eocdCached {
		var err error
		tail, err = a.fetchTail(ctx, tailSize)
		if err != nil {
			return err
		}
		eocdData = tail.Data
	}

	zip, err := rangezip.NewArchive(eocdData, archiveOptions...)
	if err != nil {
		return fmt.Errorf("remote: open %s: %w", key, err)
	}

	if !eocdCached {
		r := zip.EndOfCentralDirectoryRange()
		a.store(eocdFragment, tail.Data[r.Offset:r.Offset+r.Size])
	}

	if !cdCached {
		cdData, err = a.fetchCentralDirectory(ctx, zip.CentralDirectoryRange(), tail)
		if err != nil {
			return err
		}
		a.store(cdFragment, cdData)
	}

	if _, err := zip.ParseCentralDirectory(cdData); err != nil {
		if cdCached {
			a.cache.Delete(key, cdFragment)
		}
		return fmt.Errorf("remote: open %s: %w", key, err)
	}

	a.zip = zip
	a.log.WithFields(logrus.Fields{
		"entries":  zip.EntryCount(),
		"fallback": a.inMemory != nil,
	}).Debug("opened archive")

	return nil
}

func (a *Archive) fetchTail(ctx context.Context, n int64) (Chunk, error) {
	if a.inMemory == nil {
		tail, err := a.fetcher.FetchTail(ctx, n)
		if err == nil {
			a.log.WithFields(logrus.Fields{"offset": tail.Offset, "size": len(tail.Data)}).Debug("fetched tail")
			return tail, nil
		}
		if !errors.Is(err, ErrRangeNotSupported) {
			return Chunk{}, err
		}
		if err := a.loadInMemory(ctx); err != nil {
			return Chunk{}, err
		}
	}

	start := max(int64(len(a.inMemory))-n, 0)
	return Chunk{Data: a.inMemory[start:], Offset: start}, nil
}

// fetchCentralDirectory returns the central directory bytes, cutting them out
// of the tail chunk when it already holds them.
func (a *Archive) fetchCentralDirectory(ctx context.Context, r rangezip.ByteRange, tail Chunk) ([]byte, error) {
	if r.Size == 0 {
		return nil, nil
	}

	start := r.Offset - tail.Offset
	if start >= 0 && start+r.Size <= int64(len(tail.Data)) {
		return tail.Data[start : start+r.Size], nil
	}

	data, err := a.fetch(ctx, r.Offset, r.Offset+r.Size-1)
	if err != nil {
		return nil, fmt.Errorf("remote: fetch central directory: %w", err)
	}
	if int64(len(data)) < r.Size {
		return nil, fmt.Errorf("remote: fetch central directory: %w: got %d of %d bytes", rangezip.ErrTruncated, len(data), r.Size)
	}
	return data, nil
}

// fetch returns the inclusive range start-end, switching to the in-memory
// copy when the source refuses range requests.
func (a *Archive) fetch(ctx context.Context, start, end int64) ([]byte, error) {
	if a.inMemory == nil {
		chunk, err := a.fetcher.FetchRange(ctx, start, end)
		if err == nil {
			return chunk.Data, nil
		}
		if !errors.Is(err, ErrRangeNotSupported) {
			return nil, err
		}
		if err := a.loadInMemory(ctx); err != nil {
			return nil, err
		}
		if a.zip != nil {
			a.prefill()
		}
	}

	data, ok := rangezip.ByteRange{Offset: start, Size: end - start}.Slice(a.inMemory, 0)
	if !ok {
		return nil, fmt.Errorf("%w: range %d-%d outside %d bytes", rangezip.ErrTruncated, start, end, len(a.inMemory))
	}
	return data, nil
}

func (a *Archive) loadInMemory(ctx context.Context) error {
	a.log.Info("range requests unavailable, downloading whole archive")

	data, err := a.fetcher.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("remote: download %s: %w", a.fetcher.Key(), err)
	}
	a.inMemory = data
	return nil
}

// prefill caches every entry's fragment from the in-memory copy.
func (a *Archive) prefill() {
	for _, name := range a.zip.Names() {
		r, err := a.zip.Range(name)
		if err != nil {
			continue
		}
		if data, ok := r.Slice(a.inMemory, 0); ok {
			a.store(name, data)
		}
	}
}

func (a *Archive) store(name string, data []byte) {
	if err := a.cache.Put(a.fetcher.Key(), name, data); err != nil {
		a.log.WithError(err).Warn("cache fragment")
	}
}

// ReadFile returns the decompressed content of the named entry.
func (a *Archive) ReadFile(ctx context.Context, name string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.fragment(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.zip.Extract(name, data)
}

// fragment returns the raw bytes of the named entry from the cache or the source.
// a.mu must be held.
func (a *Archive) fragment(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if data, ok := a.cache.Get(a.fetcher.Key(), name); ok {
		return data, nil
	}

	r, err := a.zip.Range(name)
	if err != nil {
		return nil, err
	}

	data, err := a.fetch(ctx, r.Offset, r.Offset+r.Size)
	if err != nil {
		return nil, fmt.Errorf("remote: fetch %s %s: %w", name, r, err)
	}
	a.log.WithFields(logrus.Fields{"entry": name, "range": r}).Debug("fetched entry")

	a.store(name, data)
	return data, nil
}

// Prefetch fetches the raw bytes of every file entry into the cache, in the
// order given by strategy. It stops at the first failure.
func (a *Archive) Prefetch(ctx context.Context, strategy rangezip.EntrySortStrategy) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range rangezip.SortEntries(a.zip.Entries(), strategy) {
		if e.IsDir() {
			continue
		}
		if _, err := a.fragment(ctx, e.Name); err != nil {
			return err
		}
	}
	return nil
}

// Fallback reports whether the archive is served from a full in-memory copy
// because the source does not support range requests.
func (a *Archive) Fallback() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inMemory != nil
}

// Names returns the entry names in central directory order.
func (a *Archive) Names() []string { return a.zip.Names() }

// Entries returns a copy of the central directory entries.
func (a *Archive) Entries() []rangezip.Entry { return a.zip.Entries() }

// Entry returns the first entry named name.
func (a *Archive) Entry(name string) (rangezip.Entry, error) { return a.zip.Entry(name) }

// Glob returns the entries whose names match pattern, see path.Match.
func (a *Archive) Glob(pattern string) ([]rangezip.Entry, error) { return a.zip.Glob(pattern) }

// Comment returns the archive comment.
func (a *Archive) Comment() []byte { return a.zip.Comment() }
