// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangezip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lemon4ksan/rangezip/internal"
)

// EndOfCentralDirectory is the archive summary record.
type EndOfCentralDirectory struct {
	ThisDisk        uint16 // Number of this disk
	StartDisk       uint16 // Disk where the central directory starts
	EntriesOnDisk   uint16
	Entries         uint16 // Total number of entries in the central directory
	DirectorySize   uint32
	DirectoryOffset uint32
	Comment         []byte

	// Range is the extent of the record itself, signature through comment,
	// relative to the buffer it was located in.
	Range ByteRange
}

// findEndOfCentralDir scans data backwards for the End of Central Directory record.
// The scan starts at the last position a bare record fits and moves one byte at a time.
// Candidates whose declared comment would run past the buffer are skipped.
func findEndOfCentralDir(data []byte) (EndOfCentralDirectory, error) {
	var end EndOfCentralDirectory

	if len(data) < internal.EndOfCentralDirLen {
		return end, fmt.Errorf("%w: got %d bytes, need %d", ErrTooShort, len(data), internal.EndOfCentralDirLen)
	}

	for p := len(data) - internal.EndOfCentralDirLen; p >= 0; p-- {
		if binary.LittleEndian.Uint32(data[p:p+4]) != internal.EndOfCentralDirSignature {
			continue
		}

		commentLen := int(binary.LittleEndian.Uint16(data[p+20 : p+22]))
		size := internal.EndOfCentralDirLen + commentLen
		if p+size > len(data) {
			continue
		}

		raw, err := internal.ReadEndOfCentralDir(bytes.NewReader(data[p+4 : p+size]))
		if err != nil {
			return end, fmt.Errorf("read end of central dir: %w", structural(err))
		}

		return EndOfCentralDirectory{
			ThisDisk:        raw.ThisDiskNum,
			StartDisk:       raw.DiskNumWithTheStartOfCentralDir,
			EntriesOnDisk:   raw.TotalNumberOfEntriesOnThisDisk,
			Entries:         raw.TotalNumberOfEntries,
			DirectorySize:   raw.CentralDirSize,
			DirectoryOffset: raw.CentralDirOffset,
			Comment:         raw.Comment,
			Range:           ByteRange{Offset: int64(p), Size: int64(size)},
		}, nil
	}

	return end, fmt.Errorf("%w: no end of central directory signature found", ErrSignature)
}

// checkSupported rejects the archive layouts this package does not read.
func (e *EndOfCentralDirectory) checkSupported() error {
	if e.ThisDisk == internal.Zip64DiskSentinel {
		return ErrZip64
	}
	if e.ThisDisk != 0 || e.StartDisk != 0 {
		return fmt.Errorf("%w: disk %d, central directory on disk %d", ErrMultiDisk, e.ThisDisk, e.StartDisk)
	}
	return nil
}

// readCentralDir parses exactly count records from the start of data.
// Bytes after the last record are left untouched. Any failure discards
// every record parsed so far.
func readCentralDir(data []byte, count int, legacy NameEncoding) ([]Entry, error) {
	entries := make([]Entry, 0, count)
	r := bytes.NewReader(data)

	for i := 0; len(entries) < count; i++ {
		ok, err := verifySignature(r, internal.CentralDirectorySignature)
		if err != nil {
			return nil, fmt.Errorf("read central dir entry %d: %w", i, structural(err))
		}
		if !ok {
			return nil, fmt.Errorf("%w: expected central directory signature at entry %d", ErrSignature, i)
		}

		cd, err := internal.ReadCentralDirEntry(r)
		if err != nil {
			return nil, fmt.Errorf("decode central dir entry %d: %w", i, structural(err))
		}

		name, err := DecodeName(cd.Filename, nameEncoding(cd.GeneralPurposeBitFlag, legacy))
		if err != nil {
			return nil, fmt.Errorf("decode name of entry %d: %w", i, err)
		}

		entries = append(entries, newEntry(cd, name))
	}

	return entries, nil
}

// verifySignature checks whether the next 4 bytes match the given signature.
func verifySignature(r io.Reader, s uint32) (bool, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return binary.LittleEndian.Uint32(buf[:]) == s, nil
}
