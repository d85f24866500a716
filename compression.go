// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangezip

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// CompressionMethod represents the compression algorithm used for an entry in the ZIP archive
type CompressionMethod uint16

// Compression methods as numbered in APPNOTE.TXT.
// Only Stored and Deflated are decoded out of the box.
const (
	Stored    CompressionMethod = 0  // No compression - file stored as-is
	Deflated  CompressionMethod = 8  // DEFLATE compression (most common)
	Deflate64 CompressionMethod = 9  // DEFLATE64(tm) enhanced compression
	BZIP2     CompressionMethod = 12 // BZIP2 compression
	LZMA      CompressionMethod = 14 // LZMA compression
	ZStandard CompressionMethod = 93 // Zstandard compression
	XZ        CompressionMethod = 95 // XZ compression
)

// maxSizeHint caps the buffer preallocated from a declared uncompressed size.
// Declared sizes come from untrusted headers.
const maxSizeHint = 64 << 20

// Decompressor transforms compressed data back into raw data.
type Decompressor interface {
	// Decompress returns a stream of uncompressed data.
	Decompress(src io.Reader) (io.ReadCloser, error)
}

type decompressorsMap map[CompressionMethod]Decompressor

// defaultDecompressors returns a fresh registry holding the built-in methods.
func defaultDecompressors() decompressorsMap {
	return decompressorsMap{
		Stored:   new(StoredDecompressor),
		Deflated: new(DeflateDecompressor),
	}
}

// StoredDecompressor implements the "Store" method (no compression)
type StoredDecompressor struct{}

func (sd *StoredDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

// DeflateDecompressor implements the "Deflate" method (raw DEFLATE stream)
type DeflateDecompressor struct{}

func (dd *DeflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

// ZstdDecompressor decodes method 93 entries. It is not registered by default;
// add it with WithDecompressor(ZStandard, new(ZstdDecompressor)).
type ZstdDecompressor struct{}

func (zd *ZstdDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// XZDecompressor decodes method 95 entries. Like ZstdDecompressor it has to be
// registered explicitly.
type XZDecompressor struct{}

func (xd *XZDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	r, err := xz.NewReader(src)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(r), nil
}

// decompress runs the registered decompressor for method over data.
// sizeHint only presizes the output; the decoded length is whatever the stream yields.
func (r decompressorsMap) decompress(method CompressionMethod, data []byte, sizeHint uint32) ([]byte, error) {
	d, ok := r[method]
	if !ok {
		return nil, &CompressionMethodError{Method: method}
	}

	rc, err := d.Decompress(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress data: %w", err)
	}
	defer rc.Close()

	out := bytes.NewBuffer(make([]byte, 0, min(int(sizeHint), maxSizeHint)))
	if _, err := io.Copy(out, rc); err != nil {
		return nil, fmt.Errorf("decompress data: %w", err)
	}
	return out.Bytes(), nil
}
