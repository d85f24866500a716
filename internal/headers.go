// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Each record type must be identified using a header signature that identifies the record type.
// Signature values begin with the two byte constant marker of 0x4b50, representing the characters "PK".
const (
	CentralDirectorySignature uint32 = 0x02014b50
	LocalFileHeaderSignature  uint32 = 0x04034b50
	EndOfCentralDirSignature  uint32 = 0x06054b50
	DataDescriptorSignature   uint32 = 0x08074b50
)

// Fixed sizes of the records, signatures included.
const (
	LocalFileHeaderLen  = 30
	CentralDirectoryLen = 46
	EndOfCentralDirLen  = 22
	DataDescriptorLen   = 12 // crc32, compressed size, uncompressed size; no signature
)

// General purpose bit flags.
const (
	FlagEncrypted      uint16 = 1 << 0
	FlagDataDescriptor uint16 = 1 << 3
	FlagUTF8           uint16 = 1 << 11
)

// Zip64DiskSentinel marks a 16-bit disk field whose real value lives in a ZIP64 record.
const Zip64DiskSentinel uint16 = 0xFFFF

type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               []byte
	ExtraField             []byte
}

// ReadLocalFileHeader decodes a local file header whose signature has already been consumed.
func ReadLocalFileHeader(src io.Reader) (LocalFileHeader, error) {
	var buf [LocalFileHeaderLen - 4]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return LocalFileHeader{}, fmt.Errorf("read source: %w", err)
	}

	h := LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[0:2]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[2:4]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[4:6]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[6:8]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[8:10]),
		CRC32:                  binary.LittleEndian.Uint32(buf[10:14]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[14:18]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[18:22]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[22:24]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[24:26]),
	}

	var err error
	if h.Filename, err = readBlock(src, h.FilenameLength); err != nil {
		return LocalFileHeader{}, fmt.Errorf("read filename: %w", err)
	}
	if h.ExtraField, err = readBlock(src, h.ExtraFieldLength); err != nil {
		return LocalFileHeader{}, fmt.Errorf("read extra field: %w", err)
	}
	return h, nil
}

func (h LocalFileHeader) Encode() []byte {
	size := LocalFileHeaderLen + int(h.FilenameLength) + int(h.ExtraFieldLength)
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], h.FilenameLength)
	binary.LittleEndian.PutUint16(buf[28:30], h.ExtraFieldLength)

	copy(buf[30:], h.Filename)
	copy(buf[30+int(h.FilenameLength):], h.ExtraField)

	return buf
}

type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               []byte
	ExtraField             []byte
	Comment                []byte
}

// ReadCentralDirEntry decodes one central directory record whose signature has already been consumed.
func ReadCentralDirEntry(src io.Reader) (CentralDirectory, error) {
	var buf [CentralDirectoryLen - 4]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return CentralDirectory{}, fmt.Errorf("read source: %w", err)
	}

	entry := CentralDirectory{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[0:2]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[2:4]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[4:6]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[6:8]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[10:12]),
		CRC32:                  binary.LittleEndian.Uint32(buf[12:16]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[16:20]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[20:24]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[24:26]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[26:28]),
		FileCommentLength:      binary.LittleEndian.Uint16(buf[28:30]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[30:32]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[32:34]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[34:38]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[38:42]),
	}

	var err error
	if entry.Filename, err = readBlock(src, entry.FilenameLength); err != nil {
		return CentralDirectory{}, fmt.Errorf("read filename: %w", err)
	}
	if entry.ExtraField, err = readBlock(src, entry.ExtraFieldLength); err != nil {
		return CentralDirectory{}, fmt.Errorf("read extra field: %w", err)
	}
	if entry.Comment, err = readBlock(src, entry.FileCommentLength); err != nil {
		return CentralDirectory{}, fmt.Errorf("read comment: %w", err)
	}

	return entry, nil
}

func (d CentralDirectory) Encode() []byte {
	totalSize := CentralDirectoryLen + int(d.FilenameLength) + int(d.ExtraFieldLength) + int(d.FileCommentLength)
	buf := make([]byte, totalSize)

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], d.FilenameLength)
	binary.LittleEndian.PutUint16(buf[30:32], d.ExtraFieldLength)
	binary.LittleEndian.PutUint16(buf[32:34], d.FileCommentLength)
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	offset := CentralDirectoryLen
	offset += copy(buf[offset:], d.Filename)
	offset += copy(buf[offset:], d.ExtraField)
	copy(buf[offset:], d.Comment)

	return buf
}

type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	CommentLength                   uint16
	Comment                         []byte
}

// ReadEndOfCentralDir decodes the EOCD record whose signature has already been consumed.
func ReadEndOfCentralDir(src io.Reader) (EndOfCentralDirectory, error) {
	var buf [EndOfCentralDirLen - 4]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("read source: %w", err)
	}
	end := EndOfCentralDirectory{
		ThisDiskNum:                     binary.LittleEndian.Uint16(buf[0:2]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint16(buf[2:4]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint16(buf[4:6]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint16(buf[6:8]),
		CentralDirSize:                  binary.LittleEndian.Uint32(buf[8:12]),
		CentralDirOffset:                binary.LittleEndian.Uint32(buf[12:16]),
		CommentLength:                   binary.LittleEndian.Uint16(buf[16:18]),
	}

	var err error
	if end.Comment, err = readBlock(src, end.CommentLength); err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("read comment: %w", err)
	}
	return end, nil
}

func (e EndOfCentralDirectory) Encode() []byte {
	buf := make([]byte, EndOfCentralDirLen+int(e.CommentLength))

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], e.ThisDiskNum)
	binary.LittleEndian.PutUint16(buf[6:8], e.DiskNumWithTheStartOfCentralDir)
	binary.LittleEndian.PutUint16(buf[8:10], e.TotalNumberOfEntriesOnThisDisk)
	binary.LittleEndian.PutUint16(buf[10:12], e.TotalNumberOfEntries)
	binary.LittleEndian.PutUint32(buf[12:16], e.CentralDirSize)
	binary.LittleEndian.PutUint32(buf[16:20], e.CentralDirOffset)
	binary.LittleEndian.PutUint16(buf[20:22], e.CommentLength)
	copy(buf[22:], e.Comment)

	return buf
}

// DataDescriptor holds the values written after the compressed data when
// bit 3 of the general purpose flag is set.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

// ReadTrailingDataDescriptor decodes the descriptor stored in the last
// DataDescriptorLen bytes of b. An optional leading signature is not part of
// those bytes and is never inspected.
func ReadTrailingDataDescriptor(b []byte) (DataDescriptor, error) {
	if len(b) < DataDescriptorLen {
		return DataDescriptor{}, fmt.Errorf("read data descriptor: %w", io.ErrUnexpectedEOF)
	}
	tail := b[len(b)-DataDescriptorLen:]
	return DataDescriptor{
		CRC32:            binary.LittleEndian.Uint32(tail[0:4]),
		CompressedSize:   binary.LittleEndian.Uint32(tail[4:8]),
		UncompressedSize: binary.LittleEndian.Uint32(tail[8:12]),
	}, nil
}

func (d DataDescriptor) Encode(withSignature bool) []byte {
	var buf []byte
	if withSignature {
		buf = binary.LittleEndian.AppendUint32(buf, DataDescriptorSignature)
	}
	buf = binary.LittleEndian.AppendUint32(buf, d.CRC32)
	buf = binary.LittleEndian.AppendUint32(buf, d.CompressedSize)
	buf = binary.LittleEndian.AppendUint32(buf, d.UncompressedSize)
	return buf
}

// readBlock reads exactly n bytes. Zero length blocks yield a nil slice.
func readBlock(src io.Reader, n uint16) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(src, b); err != nil {
		return nil, err
	}
	return b, nil
}
