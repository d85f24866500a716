// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangezip

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/ulikunitz/xz"

	"github.com/lemon4ksan/rangezip/internal"
)

func deflated(t *testing.T, name, content string) fixture {
	t.Helper()

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compress: %v", err)
	}
	return fixture{name: name, raw: []byte(content), data: buf.Bytes(), method: Deflated}
}

// entryData returns the bytes a client fetches for name.
func entryData(t *testing.T, a *Archive, data []byte, name string) []byte {
	t.Helper()

	r, err := a.Range(name)
	if err != nil {
		t.Fatalf("Range(%q) failed: %v", name, err)
	}
	chunk, ok := r.Slice(data, 0)
	if !ok {
		t.Fatalf("range %v outside archive of %d bytes", r, len(data))
	}
	return chunk
}

func TestExtract(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 50)

	tests := []struct {
		name    string
		entry   fixture
		options []Option
		want    string
	}{
		{
			name:  "Stored",
			entry: stored("a.txt", "hello"),
			want:  "hello",
		},
		{
			name:  "Empty stored",
			entry: stored("empty.txt", ""),
			want:  "",
		},
		{
			name:    "Deflated with checksum",
			entry:   deflated(t, "fox.txt", text),
			options: []Option{WithChecksumVerification(true)},
			want:    text,
		},
		{
			name: "Data descriptor",
			entry: func() fixture {
				f := deflated(t, "dd.txt", text)
				f.flags = internal.FlagDataDescriptor
				return f
			}(),
			options: []Option{WithChecksumVerification(true)},
			want:    text,
		},
		{
			// The local header drives decompression when the records disagree on method.
			name: "Local method wins",
			entry: func() fixture {
				f := stored("m.txt", "plain")
				f.central = func(h *internal.CentralDirectory) { h.CompressionMethod = uint16(Deflated) }
				return f
			}(),
			want: "plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildArchive("", stored("first.txt", "padding"), tt.entry)
			a := openArchive(t, data, tt.options...)

			got, err := a.Extract(tt.entry.name, entryData(t, a, data, tt.entry.name))
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("content mismatch: got %d bytes, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestExtract_HeaderMismatch(t *testing.T) {
	tests := []struct {
		name      string
		local     func(h *internal.LocalFileHeader)
		wantField string
	}{
		{"Name", func(h *internal.LocalFileHeader) { h.Filename = []byte("b.txt") }, "name"},
		{"CRC-32", func(h *internal.LocalFileHeader) { h.CRC32++ }, "crc32"},
		{"Encryption flag", func(h *internal.LocalFileHeader) { h.GeneralPurposeBitFlag |= internal.FlagEncrypted }, "encrypted"},
		{"Compressed size", func(h *internal.LocalFileHeader) { h.CompressedSize++ }, "compressed_size"},
		{"Uncompressed size", func(h *internal.LocalFileHeader) { h.UncompressedSize-- }, "uncompressed_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := stored("a.txt", "hello")
			entry.local = tt.local

			logger, hook := test.NewNullLogger()
			logger.SetLevel(logrus.DebugLevel)

			data := buildArchive("", entry)
			a := openArchive(t, data, WithLogger(logger))

			_, err := a.Extract("a.txt", entryData(t, a, data, "a.txt"))
			if !errors.Is(err, ErrUnmatchHeader) {
				t.Fatalf("error = %v, want ErrUnmatchHeader", err)
			}

			var mismatch *HeaderMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("error %T is not a HeaderMismatchError", err)
			}
			if len(mismatch.Mismatches) != 1 || mismatch.Mismatches[0].Field != tt.wantField {
				t.Errorf("mismatches = %v, want only %q", mismatch.Mismatches, tt.wantField)
			}

			last := hook.LastEntry()
			if last == nil || last.Data["field"] != tt.wantField {
				t.Errorf("mismatch not logged: %+v", last)
			}
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	text := strings.Repeat("abcdefgh", 100)

	tests := []struct {
		name    string
		entry   fixture
		options []Option
		mangle  func(b []byte) []byte
		wantErr error
	}{
		{
			name:    "Bad local signature",
			entry:   stored("a.txt", "hello"),
			mangle:  func(b []byte) []byte { b = bytes.Clone(b); b[0] = 'X'; return b },
			wantErr: ErrSignature,
		},
		{
			name:    "Truncated header",
			entry:   stored("a.txt", "hello"),
			mangle:  func(b []byte) []byte { return b[:10] },
			wantErr: ErrTruncated,
		},
		{
			name:    "Truncated payload",
			entry:   stored("a.txt", "hello"),
			mangle:  func(b []byte) []byte { return b[:len(b)-2] },
			wantErr: ErrTruncated,
		},
		{
			name: "Encrypted",
			entry: func() fixture {
				f := stored("secret.txt", "hello")
				f.flags = internal.FlagEncrypted
				return f
			}(),
			wantErr: ErrEncrypted,
		},
		{
			name: "Corrupt deflate stream",
			entry: func() fixture {
				f := deflated(t, "bad.txt", text)
				f.data = bytes.Repeat([]byte{0xFF}, len(f.data))
				return f
			}(),
		},
		{
			name: "Checksum",
			entry: func() fixture {
				f := stored("a.txt", "hello")
				f.local = func(h *internal.LocalFileHeader) { h.CRC32 = 1 }
				f.central = func(h *internal.CentralDirectory) { h.CRC32 = 1 }
				return f
			}(),
			options: []Option{WithChecksumVerification(true)},
			wantErr: ErrChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildArchive("", tt.entry)
			a := openArchive(t, data, tt.options...)

			chunk := entryData(t, a, data, tt.entry.name)
			if tt.mangle != nil {
				chunk = tt.mangle(chunk)
			}

			out, err := a.Extract(tt.entry.name, chunk)
			if err == nil {
				t.Fatalf("expected an error, got %d bytes", len(out))
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtract_ChecksumNotVerifiedByDefault(t *testing.T) {
	entry := stored("a.txt", "hello")
	entry.local = func(h *internal.LocalFileHeader) { h.CRC32 = 1 }
	entry.central = func(h *internal.CentralDirectory) { h.CRC32 = 1 }

	data := buildArchive("", entry)
	a := openArchive(t, data)

	got, err := a.Extract("a.txt", entryData(t, a, data, "a.txt"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_CompressionMethods(t *testing.T) {
	raw := []byte(strings.Repeat("zstandard ", 64))

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	compressed := enc.EncodeAll(raw, nil)
	enc.Close()

	zst := fixture{name: "data.zst", raw: raw, data: compressed, method: ZStandard}
	bz := fixture{name: "data.bz2", raw: raw, data: []byte("BZh9"), method: BZIP2}

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatalf("xz.NewWriter: %v", err)
	}
	if _, err := xw.Write(raw); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	xzf := fixture{name: "data.xz", raw: raw, data: xzBuf.Bytes(), method: XZ}

	t.Run("Unregistered method", func(t *testing.T) {
		for _, f := range []fixture{zst, bz, xzf} {
			data := buildArchive("", f)
			a := openArchive(t, data)

			_, err := a.Extract(f.name, entryData(t, a, data, f.name))

			var methodErr *CompressionMethodError
			if !errors.As(err, &methodErr) {
				t.Fatalf("%s: error = %v, want CompressionMethodError", f.name, err)
			}
			if methodErr.Method != f.method {
				t.Errorf("%s: method = %d, want %d", f.name, methodErr.Method, f.method)
			}
			if !errors.Is(err, ErrAlgorithm) || !errors.Is(err, ErrUnsupported) {
				t.Errorf("%s: error %v does not match ErrAlgorithm and ErrUnsupported", f.name, err)
			}
		}
	})

	t.Run("Registered zstd", func(t *testing.T) {
		data := buildArchive("", zst)
		a := openArchive(t, data,
			WithDecompressor(ZStandard, new(ZstdDecompressor)),
			WithChecksumVerification(true),
		)

		got, err := a.Extract(zst.name, entryData(t, a, data, zst.name))
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Error("zstd content mismatch")
		}
	})

	t.Run("Registered xz", func(t *testing.T) {
		data := buildArchive("", xzf)
		a := openArchive(t, data,
			WithDecompressor(XZ, new(XZDecompressor)),
			WithChecksumVerification(true),
		)

		got, err := a.Extract(xzf.name, entryData(t, a, data, xzf.name))
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Error("xz content mismatch")
		}
	})
}
