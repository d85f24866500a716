// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangezip

import (
	"io/fs"
	"strings"
	"time"

	"github.com/lemon4ksan/rangezip/internal"
	"github.com/lemon4ksan/rangezip/internal/sys"
)

// Entry is one member of the archive as described by its central directory record.
// Field values are taken verbatim from the record; derived properties are
// exposed as methods.
type Entry struct {
	Name string // Decoded file name, trailing slash kept for directories

	VersionMadeBy     uint16
	VersionNeeded     uint16
	Flags             uint16
	Method            CompressionMethod
	ModifiedTime      uint16 // MS-DOS time
	ModifiedDate      uint16 // MS-DOS date
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	NameLength        uint16
	ExtraLength       uint16
	CommentLength     uint16
	DiskNumberStart   uint16
	InternalAttrs     uint16
	ExternalAttrs     uint32
	LocalHeaderOffset uint32

	Extra   []byte
	Comment []byte

	isUTF8      bool
	isEncrypted bool
}

// newEntry builds an Entry from a raw central directory record.
// The flag-derived fields are fixed here and never recomputed.
func newEntry(cd internal.CentralDirectory, name string) Entry {
	return Entry{
		Name:              name,
		VersionMadeBy:     cd.VersionMadeBy,
		VersionNeeded:     cd.VersionNeededToExtract,
		Flags:             cd.GeneralPurposeBitFlag,
		Method:            CompressionMethod(cd.CompressionMethod),
		ModifiedTime:      cd.LastModFileTime,
		ModifiedDate:      cd.LastModFileDate,
		CRC32:             cd.CRC32,
		CompressedSize:    cd.CompressedSize,
		UncompressedSize:  cd.UncompressedSize,
		NameLength:        cd.FilenameLength,
		ExtraLength:       cd.ExtraFieldLength,
		CommentLength:     cd.FileCommentLength,
		DiskNumberStart:   cd.DiskNumberStart,
		InternalAttrs:     cd.InternalFileAttributes,
		ExternalAttrs:     cd.ExternalFileAttributes,
		LocalHeaderOffset: cd.LocalHeaderOffset,
		Extra:             cd.ExtraField,
		Comment:           cd.Comment,
		isUTF8:            cd.GeneralPurposeBitFlag&internal.FlagUTF8 != 0,
		isEncrypted:       cd.GeneralPurposeBitFlag&internal.FlagEncrypted != 0,
	}
}

// IsUTF8 reports whether the name was stored as UTF-8 (flag bit 11).
func (e *Entry) IsUTF8() bool { return e.isUTF8 }

// IsEncrypted reports whether the entry is encrypted (flag bit 0).
func (e *Entry) IsEncrypted() bool { return e.isEncrypted }

// HasDataDescriptor reports whether CRC and sizes follow the data (flag bit 3).
func (e *Entry) HasDataDescriptor() bool {
	return e.Flags&internal.FlagDataDescriptor != 0
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// HostSystem returns the system that created the entry.
func (e *Entry) HostSystem() sys.HostSystem {
	return sys.HostSystem(e.VersionMadeBy >> 8)
}

// Modified returns the MS-DOS modification time in UTC.
func (e *Entry) Modified() time.Time {
	return msDosToTime(e.ModifiedDate, e.ModifiedTime)
}

// Mode derives permission and type bits from the external attributes.
func (e *Entry) Mode() fs.FileMode {
	var mode fs.FileMode
	hostSystem := e.HostSystem()

	if hostSystem.IsUnix() {
		unixMode := e.ExternalAttrs >> 16
		mode = fs.FileMode(unixMode & 0777)

		switch unixMode & sys.S_IFMT {
		case sys.S_IFDIR:
			mode |= fs.ModeDir
		case sys.S_IFLNK:
			mode |= fs.ModeSymlink
		case sys.S_IFSOCK:
			mode |= fs.ModeSocket
		case sys.S_IFIFO:
			mode |= fs.ModeNamedPipe
		case sys.S_IFCHR:
			mode |= fs.ModeCharDevice
		case sys.S_IFBLK:
			mode |= fs.ModeDevice
		case 0:
			// Some writers leave the type bits empty
			if e.IsDir() {
				mode |= fs.ModeDir
			}
		}
		return mode
	}

	if hostSystem.IsWindows() {
		if e.IsDir() || e.ExternalAttrs&sys.DOSDirectory != 0 {
			mode = 0755 | fs.ModeDir
		} else {
			mode = 0644
		}

		if e.ExternalAttrs&sys.DOSReadOnly != 0 {
			mode &^= 0222 // Remove write permission (a-w)
		}
		return mode
	}

	if e.IsDir() {
		return 0755 | fs.ModeDir
	}
	return 0644
}
