// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/valyala/bytebufferpool"
)

// Cache defaults.
const (
	DefaultMaxFragments = 1000
	DefaultMaxAge       = time.Hour
)

// Cache keeps raw archive fragments (EOCD, central directory, entry ranges)
// in memory, lz4 compressed, keyed by archive and fragment name.
// It is safe for concurrent use and may be shared by several archives.
type Cache struct {
	mu           sync.Mutex
	fragments    map[string]*fragment
	maxFragments int
	maxAge       time.Duration
	now          func() time.Time
}

type fragment struct {
	data       []byte // lz4 block, or the raw bytes when compressed is false
	size       int
	compressed bool
	used       time.Time
}

// CacheOption configures a Cache.
type CacheOption func(c *Cache)

// WithMaxFragments bounds the number of cached fragments.
func WithMaxFragments(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.maxFragments = n
		}
	}
}

// WithMaxAge sets how long an unused fragment survives once the cache is full.
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// NewCache creates an empty fragment cache.
func NewCache(options ...CacheOption) *Cache {
	c := &Cache{
		fragments:    make(map[string]*fragment),
		maxFragments: DefaultMaxFragments,
		maxAge:       DefaultMaxAge,
		now:          time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func fragmentKey(archive, name string) string {
	return archive + ":" + name
}

// Get returns a copy of the cached fragment.
func (c *Cache) Get(archive, name string) ([]byte, bool) {
	c.mu.Lock()
	f, ok := c.fragments[fragmentKey(archive, name)]
	if ok {
		f.used = c.now()
	}
	c.mu.Unlock()

	if !ok {
		return nil, false
	}

	if !f.compressed {
		data := make([]byte, f.size)
		copy(data, f.data)
		return data, true
	}

	data := make([]byte, f.size)
	n, err := lz4.UncompressBlock(f.data, data)
	if err != nil || n != f.size {
		c.Delete(archive, name)
		return nil, false
	}
	return data, true
}

// Put stores data under name, evicting old fragments when the cache is full.
func (c *Cache) Put(archive, name string, data []byte) error {
	f, err := compressFragment(data)
	if err != nil {
		return fmt.Errorf("remote: cache %s: %w", name, err)
	}
	f.used = c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fragments[fragmentKey(archive, name)] = f
	c.evict()
	return nil
}

// Delete drops a fragment.
func (c *Cache) Delete(archive, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.fragments, fragmentKey(archive, name))
}

// Len returns the number of cached fragments.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fragments)
}

// evict runs only when the cache is over capacity. It drops fragments unused
// for longer than maxAge first, then the least recently used ones.
// c.mu must be held.
func (c *Cache) evict() {
	excess := len(c.fragments) - c.maxFragments
	if excess <= 0 {
		return
	}

	expire := c.now().Add(-c.maxAge)
	for key, f := range c.fragments {
		if f.used.Before(expire) {
			delete(c.fragments, key)
			excess--
		}
	}
	if excess <= 0 {
		return
	}

	keys := make([]string, 0, len(c.fragments))
	for key := range c.fragments {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.fragments[keys[i]].used.Before(c.fragments[keys[j]].used)
	})
	for _, key := range keys[:excess] {
		delete(c.fragments, key)
	}
}

// compressFragment lz4 compresses data, keeping it raw when it does not shrink.
func compressFragment(data []byte) (*fragment, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	bound := lz4.CompressBlockBound(len(data))
	if cap(bb.B) < bound {
		bb.B = make([]byte, bound)
	}
	bb.B = bb.B[:bound]

	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(data, bb.B)
	if err != nil {
		return nil, err
	}

	if n == 0 || n >= len(data) {
		raw := make([]byte, len(data))
		copy(raw, data)
		return &fragment{data: raw, size: len(data)}, nil
	}

	block := make([]byte, n)
	copy(block, bb.B[:n])
	return &fragment{data: block, size: len(data), compressed: true}, nil
}
