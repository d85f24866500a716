// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	random := make([]byte, 4096)
	rand.New(rand.NewSource(7)).Read(random)

	tests := []struct {
		name           string
		data           []byte
		wantCompressed bool
	}{
		{"Compressible", bytes.Repeat([]byte("central directory "), 500), true},
		{"Incompressible", random, false},
		{"Tiny", []byte("x"), false},
		{"Empty", []byte{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache()
			require.NoError(t, c.Put("https://example.com/a.zip", tt.name, tt.data))

			got, ok := c.Get("https://example.com/a.zip", tt.name)
			require.True(t, ok)
			assert.Equal(t, len(tt.data), len(got))
			assert.True(t, bytes.Equal(tt.data, got))

			f := c.fragments[fragmentKey("https://example.com/a.zip", tt.name)]
			assert.Equal(t, tt.wantCompressed, f.compressed)
			if f.compressed {
				assert.Less(t, len(f.data), len(tt.data))
			}
		})
	}
}

func TestCache_Isolation(t *testing.T) {
	c := NewCache()
	data := []byte("fragment")
	require.NoError(t, c.Put("a.zip", ":cd", data))

	data[0] = 'X'
	got, ok := c.Get("a.zip", ":cd")
	require.True(t, ok)
	assert.Equal(t, "fragment", string(got), "Put must copy its input")

	got[0] = 'Y'
	again, _ := c.Get("a.zip", ":cd")
	assert.Equal(t, "fragment", string(again), "Get must return a copy")

	_, ok = c.Get("b.zip", ":cd")
	assert.False(t, ok, "keys are scoped by archive")

	c.Delete("a.zip", ":cd")
	_, ok = c.Get("a.zip", ":cd")
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(WithMaxFragments(3))
	c.now = func() time.Time { return now }

	for _, name := range []string{"a", "b", "c"} {
		now = now.Add(time.Second)
		require.NoError(t, c.Put("zip", name, []byte(name)))
	}

	// Touch "a" so "b" becomes the oldest.
	now = now.Add(time.Second)
	_, ok := c.Get("zip", "a")
	require.True(t, ok)

	now = now.Add(time.Second)
	require.NoError(t, c.Put("zip", "d", []byte("d")))

	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("zip", "b")
	assert.False(t, ok, "least recently used fragment evicted")
	for _, name := range []string{"a", "c", "d"} {
		_, ok := c.Get("zip", name)
		assert.True(t, ok, name)
	}
}

func TestCache_EvictsExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(WithMaxFragments(3), WithMaxAge(time.Hour))
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put("zip", "old1", []byte("1")))
	require.NoError(t, c.Put("zip", "old2", []byte("2")))

	now = now.Add(2 * time.Hour)
	require.NoError(t, c.Put("zip", "new1", []byte("3")))
	assert.Equal(t, 3, c.Len(), "nothing is evicted below capacity")

	require.NoError(t, c.Put("zip", "new2", []byte("4")))
	assert.Equal(t, 2, c.Len(), "every expired fragment goes once the cache overflows")

	_, ok := c.Get("zip", "old1")
	assert.False(t, ok)
	_, ok = c.Get("zip", "new2")
	assert.True(t, ok)
}
