// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangezip

import (
	"bytes"
	"fmt"
	"hash/crc32"

	"github.com/sirupsen/logrus"

	"github.com/lemon4ksan/rangezip/internal"
)

// localFile is what an entry's local header says about it. CRC32 and the
// sizes are tentative until resolveDataDescriptor has run.
type localFile struct {
	Name             string
	Flags            uint16
	Method           CompressionMethod
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32

	dataOffset int // first byte of compressed data within the supplied buffer
}

func (l *localFile) isEncrypted() bool {
	return l.Flags&internal.FlagEncrypted != 0
}

// readLocalFile decodes the local header at the start of data.
// The name is decoded with the header's own UTF-8 flag.
func readLocalFile(data []byte, legacy NameEncoding) (localFile, error) {
	r := bytes.NewReader(data)

	ok, err := verifySignature(r, internal.LocalFileHeaderSignature)
	if err != nil {
		return localFile{}, fmt.Errorf("read local header: %w", structural(err))
	}
	if !ok {
		return localFile{}, fmt.Errorf("%w: %w: expected local file header signature", ErrUnmatchHeader, ErrSignature)
	}

	h, err := internal.ReadLocalFileHeader(r)
	if err != nil {
		return localFile{}, fmt.Errorf("read local header: %w", structural(err))
	}

	name, err := DecodeName(h.Filename, nameEncoding(h.GeneralPurposeBitFlag, legacy))
	if err != nil {
		return localFile{}, fmt.Errorf("decode local header name: %w", err)
	}

	return localFile{
		Name:             name,
		Flags:            h.GeneralPurposeBitFlag,
		Method:           CompressionMethod(h.CompressionMethod),
		CRC32:            h.CRC32,
		CompressedSize:   h.CompressedSize,
		UncompressedSize: h.UncompressedSize,
		dataOffset:       internal.LocalFileHeaderLen + len(h.Filename) + len(h.ExtraField),
	}, nil
}

// resolveDataDescriptor overrides CRC32 and sizes with the descriptor stored in
// the last bytes of data when flag bit 3 is set. It leaves dataOffset alone.
func (l *localFile) resolveDataDescriptor(data []byte) error {
	if l.Flags&internal.FlagDataDescriptor == 0 {
		return nil
	}

	dd, err := internal.ReadTrailingDataDescriptor(data)
	if err != nil {
		return structural(err)
	}

	l.CRC32 = dd.CRC32
	l.CompressedSize = dd.CompressedSize
	l.UncompressedSize = dd.UncompressedSize
	return nil
}

// compareHeaders lists every field where the local record and the central
// directory entry disagree. An empty result means they are consistent.
func compareHeaders(local *localFile, central *Entry) []FieldMismatch {
	var m []FieldMismatch

	if local.Name != central.Name {
		m = append(m, FieldMismatch{Field: "name", Local: local.Name, Central: central.Name})
	}
	if local.CRC32 != central.CRC32 {
		m = append(m, FieldMismatch{Field: "crc32", Local: local.CRC32, Central: central.CRC32})
	}
	if local.isEncrypted() != central.IsEncrypted() {
		m = append(m, FieldMismatch{Field: "encrypted", Local: local.isEncrypted(), Central: central.IsEncrypted()})
	}
	if local.CompressedSize != central.CompressedSize {
		m = append(m, FieldMismatch{Field: "compressed_size", Local: local.CompressedSize, Central: central.CompressedSize})
	}
	if local.UncompressedSize != central.UncompressedSize {
		m = append(m, FieldMismatch{Field: "uncompressed_size", Local: local.UncompressedSize, Central: central.UncompressedSize})
	}

	return m
}

// extractEntry validates data (local header through compressed payload) against
// entry and returns the decompressed content.
func extractEntry(entry *Entry, data []byte, config *Config) ([]byte, error) {
	local, err := readLocalFile(data, config.LegacyEncoding)
	if err != nil {
		return nil, err
	}

	if err := local.resolveDataDescriptor(data); err != nil {
		return nil, fmt.Errorf("read data descriptor: %w", err)
	}

	if mismatches := compareHeaders(&local, entry); len(mismatches) > 0 {
		log := config.Logger.WithField("entry", entry.Name)
		for _, m := range mismatches {
			log.WithFields(logrus.Fields{
				"field":   m.Field,
				"local":   m.Local,
				"central": m.Central,
			}).Debug("local header mismatch")
		}
		return nil, &HeaderMismatchError{Name: entry.Name, Mismatches: mismatches}
	}

	if entry.IsEncrypted() {
		return nil, fmt.Errorf("%w: %s", ErrEncrypted, entry.Name)
	}

	start := local.dataOffset
	end := start + int(local.CompressedSize)
	if end > len(data) {
		return nil, fmt.Errorf("%w: need %d bytes of compressed data, have %d", ErrTruncated, local.CompressedSize, max(len(data)-start, 0))
	}

	out, err := config.decompressors.decompress(local.Method, data[start:end], local.UncompressedSize)
	if err != nil {
		return nil, err
	}

	if config.VerifyChecksum {
		if got := crc32.ChecksumIEEE(out); got != entry.CRC32 {
			return nil, fmt.Errorf("%w: got %x, want %x", ErrChecksum, got, entry.CRC32)
		}
	}

	return out, nil
}
