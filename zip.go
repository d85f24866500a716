// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rangezip reads ZIP archives from byte ranges fetched on demand.
//
// It never does I/O itself. The caller hands it the pieces of the archive it
// asks for, in this order:
//
//  1. The tail of the archive (at least 22 bytes, 65557 covers the longest
//     comment). [NewArchive] locates the end of central directory record in it.
//  2. The central directory, whose extent is [Archive.CentralDirectoryRange].
//     [Archive.ParseCentralDirectory] builds the entry table.
//  3. For each wanted entry, the bytes described by [Archive.Range]:
//     local header, compressed data and the optional data descriptor.
//     [Archive.Extract] validates the local header against the central
//     directory and decompresses the payload.
//
// # Basic Usage
//
//	archive, err := rangezip.NewArchive(tail)
//	cd := archive.CentralDirectoryRange()
//	names, err := archive.ParseCentralDirectory(fetch(cd))
//	r, err := archive.Range(names[0])
//	data, err := archive.Extract(names[0], fetch(r))
//
// Ranges follow the inclusive convention of HTTP range requests: the bytes
// to fetch for r are r.Offset through r.Offset+r.Size, see [ByteRange.HTTPRange].
//
// ZIP64, multi-disk and encrypted archives are detected and rejected with
// errors matching [ErrUnsupported]. Stored and Deflated entries are decoded;
// other methods can be added with [WithDecompressor].
//
// An Archive performs no locking. Parsing the central directory replaces the
// entry table and must not run concurrently with queries or extraction.
// The remote subpackage drives the whole sequence against an HTTP server or
// any io.ReaderAt and adds caching and synchronization.
package rangezip

import (
	"fmt"
	"path"

	"github.com/sirupsen/logrus"
)

// Config defines the parameters of an archive session.
type Config struct {
	// LegacyEncoding decodes names whose UTF-8 flag (bit 11) is clear.
	// Default: ShiftJIS.
	LegacyEncoding NameEncoding

	// Logger receives diagnostics such as local header mismatches.
	// Default: logrus.StandardLogger().
	Logger logrus.FieldLogger

	// VerifyChecksum compares the CRC-32 of extracted data with the central
	// directory value. Default: false.
	VerifyChecksum bool

	decompressors decompressorsMap
}

// Option is a functional option for configuring an Archive.
type Option func(c *Config)

// WithLegacyEncoding sets the encoding used for names without the UTF-8 flag.
func WithLegacyEncoding(e NameEncoding) Option {
	return func(c *Config) {
		c.LegacyEncoding = e
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithChecksumVerification enables or disables CRC-32 verification of extracted data.
func WithChecksumVerification(verify bool) Option {
	return func(c *Config) {
		c.VerifyChecksum = verify
	}
}

// WithDecompressor adds support for reading a custom compression method.
// It can also replace the built-in Stored and Deflated decoders.
func WithDecompressor(method CompressionMethod, d Decompressor) Option {
	return func(c *Config) {
		c.decompressors[method] = d
	}
}

// Archive is a session over one archive: its end of central directory record
// and, once parsed, its central directory entries in declaration order.
type Archive struct {
	config  Config
	eocd    EndOfCentralDirectory
	entries []Entry
	parsed  bool
}

// NewArchive locates the end of central directory record in tail, the last
// bytes of the archive. It fails with ErrTooShort for fewer than 22 bytes,
// ErrSignature when no record is found and an ErrUnsupported error for
// ZIP64 and disk split archives.
func NewArchive(tail []byte, options ...Option) (*Archive, error) {
	config := Config{
		LegacyEncoding: ShiftJIS,
		Logger:         logrus.StandardLogger(),
		decompressors:  defaultDecompressors(),
	}
	for _, opt := range options {
		opt(&config)
	}

	eocd, err := findEndOfCentralDir(tail)
	if err != nil {
		return nil, err
	}
	if err := eocd.checkSupported(); err != nil {
		return nil, err
	}

	config.Logger.WithFields(logrus.Fields{
		"entries":   eocd.Entries,
		"cd_offset": eocd.DirectoryOffset,
		"cd_size":   eocd.DirectorySize,
		"eocd":      eocd.Range,
	}).Debug("located end of central directory")

	return &Archive{config: config, eocd: eocd}, nil
}

// EndOfCentralDirectory returns the archive summary record.
func (a *Archive) EndOfCentralDirectory() EndOfCentralDirectory {
	return a.eocd
}

// Comment returns the archive comment.
func (a *Archive) Comment() []byte {
	return a.eocd.Comment
}

// EntryCount returns the number of entries the central directory declares.
func (a *Archive) EntryCount() int {
	return int(a.eocd.Entries)
}

// CentralDirectoryRange returns the extent of the central directory.
func (a *Archive) CentralDirectoryRange() ByteRange {
	return ByteRange{Offset: int64(a.eocd.DirectoryOffset), Size: int64(a.eocd.DirectorySize)}
}

// EndOfCentralDirectoryRange returns the extent of the end of central
// directory record within the buffer passed to NewArchive.
func (a *Archive) EndOfCentralDirectoryRange() ByteRange {
	return a.eocd.Range
}

// ParseCentralDirectory parses the central directory from data, which must
// start at the first record, and returns the entry names in declaration order.
// A successful call replaces the whole entry table; a failed one leaves the
// previous table in place.
func (a *Archive) ParseCentralDirectory(data []byte) ([]string, error) {
	entries, err := readCentralDir(data, a.EntryCount(), a.config.LegacyEncoding)
	if err != nil {
		return nil, err
	}

	a.entries = entries
	a.parsed = true

	a.config.Logger.WithField("entries", len(entries)).Debug("parsed central directory")

	return a.Names(), nil
}

// Parsed reports whether the entry table has been populated.
func (a *Archive) Parsed() bool {
	return a.parsed
}

// Names returns the entry names in declaration order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i := range a.entries {
		names[i] = a.entries[i].Name
	}
	return names
}

// Entries returns a copy of the entry table.
func (a *Archive) Entries() []Entry {
	result := make([]Entry, len(a.entries))
	copy(result, a.entries)
	return result
}

// Entry returns a copy of the first entry named name.
func (a *Archive) Entry(name string) (Entry, error) {
	e, err := a.find(name)
	if err != nil {
		return Entry{}, err
	}
	return *e, nil
}

// Glob returns all entries whose names match the specified shell pattern.
// Pattern syntax is identical to [path.Match].
func (a *Archive) Glob(pattern string) ([]Entry, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	if !a.parsed {
		return nil, ErrNotParsed
	}

	if !hasMeta(pattern) {
		if e, err := a.find(pattern); err == nil {
			return []Entry{*e}, nil
		}
		return nil, nil
	}

	var matches []Entry
	for i := range a.entries {
		if matched, _ := path.Match(pattern, a.entries[i].Name); matched {
			matches = append(matches, a.entries[i])
		}
	}
	return matches, nil
}

// Range returns the extent of the named entry: from its local header up to
// the next local header in offset order, or the central directory for the last one.
//
// Size is end-start-1, so Offset+Size is the last byte of the entry and the
// range is meant to be fetched inclusively (see ByteRange.HTTPRange).
func (a *Archive) Range(name string) (ByteRange, error) {
	entry, err := a.find(name)
	if err != nil {
		return ByteRange{}, err
	}

	start := int64(entry.LocalHeaderOffset)
	end := int64(a.eocd.DirectoryOffset)
	for i := range a.entries {
		if off := int64(a.entries[i].LocalHeaderOffset); off > start && off < end {
			end = off
		}
	}

	if end <= start {
		return ByteRange{}, fmt.Errorf("%w: %s at %d, central directory at %d", ErrOffset, name, start, a.eocd.DirectoryOffset)
	}

	return ByteRange{Offset: start, Size: end - start - 1}, nil
}

// Extract validates data against the named entry and returns its decompressed
// content. data must begin with the entry's local file header, as fetched for
// Range(name). When the entry uses a data descriptor, its values are read from
// the last 12 bytes of data.
func (a *Archive) Extract(name string, data []byte) ([]byte, error) {
	entry, err := a.find(name)
	if err != nil {
		return nil, err
	}
	return extractEntry(entry, data, &a.config)
}

// find returns the first entry named name.
func (a *Archive) find(name string) (*Entry, error) {
	if !a.parsed {
		return nil, ErrNotParsed
	}
	for i := range a.entries {
		if a.entries[i].Name == name {
			return &a.entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
}
