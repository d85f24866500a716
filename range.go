// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangezip

import "fmt"

// ByteRange is an extent within the raw archive bytes.
type ByteRange struct {
	Offset int64
	Size   int64
}

func (r ByteRange) String() string {
	return fmt.Sprintf("[%d+%d]", r.Offset, r.Size)
}

// HTTPRange renders the range as an inclusive Range header value covering
// Offset through Offset+Size.
func (r ByteRange) HTTPRange() string {
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Size)
}

// Slice cuts the inclusive range out of chunk, a buffer holding the archive
// bytes that start at chunkOffset. The end is clamped to the end of chunk, so
// a range reaching the archive end is still served. It returns false when
// the start is not inside chunk.
func (r ByteRange) Slice(chunk []byte, chunkOffset int64) ([]byte, bool) {
	start := r.Offset - chunkOffset
	if start < 0 || start >= int64(len(chunk)) {
		return nil, false
	}
	end := min(start+r.Size+1, int64(len(chunk)))
	return chunk[start:end], true
}

// Contains reports whether the inclusive range lies fully inside a chunk of
// length n starting at chunkOffset.
func (r ByteRange) Contains(chunkOffset int64, n int) bool {
	return r.Offset >= chunkOffset && r.Offset+r.Size < chunkOffset+int64(n)
}
