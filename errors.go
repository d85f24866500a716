// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangezip

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTooShort is returned when fewer bytes than a bare EOCD record are supplied.
	ErrTooShort = errors.New("zip: data too short for end of central directory")

	// ErrSignature is returned when an expected record signature is missing.
	ErrSignature = errors.New("zip: invalid signature")

	// ErrTruncated is returned when a record declares more bytes than were supplied.
	ErrTruncated = errors.New("zip: unexpected end of data")

	// ErrOffset is returned when a local header offset does not precede the central directory.
	ErrOffset = errors.New("zip: invalid local header offset")

	// ErrFileNameConversion is returned when a file name is not valid in its encoding.
	ErrFileNameConversion = errors.New("zip: file name conversion error")

	// ErrUnmatchHeader is returned when a local file header disagrees with its central directory entry.
	ErrUnmatchHeader = errors.New("zip: local header does not match central directory")

	// ErrUnsupported groups archive features this package detects but cannot handle.
	ErrUnsupported = errors.New("zip: unsupported feature")

	// ErrMultiDisk is returned for archives split across several disks.
	ErrMultiDisk = fmt.Errorf("%w: disk split archive", ErrUnsupported)

	// ErrZip64 is returned when the EOCD record defers to a ZIP64 record.
	ErrZip64 = fmt.Errorf("%w: zip64 archive", ErrUnsupported)

	// ErrEncrypted is returned when extracting an encrypted entry.
	ErrEncrypted = fmt.Errorf("%w: encrypted entry", ErrUnsupported)

	// ErrAlgorithm is returned when a compression method has no registered decompressor.
	ErrAlgorithm = fmt.Errorf("%w: compression algorithm", ErrUnsupported)

	// ErrChecksum is returned when extracted data does not match the declared CRC-32.
	ErrChecksum = errors.New("zip: checksum error")

	// ErrFileNotFound is returned when the requested entry is not in the central directory.
	ErrFileNotFound = errors.New("zip: file not found")

	// ErrNotParsed is returned when entries are queried before the central directory was parsed.
	ErrNotParsed = errors.New("zip: central directory not parsed")
)

// CompressionMethodError reports an entry stored with a method that has no decompressor.
type CompressionMethodError struct {
	Method CompressionMethod
}

func (e *CompressionMethodError) Error() string {
	return fmt.Sprintf("zip: unsupported compression method %d", uint16(e.Method))
}

// Is makes the error match ErrAlgorithm and ErrUnsupported.
func (e *CompressionMethodError) Is(target error) bool {
	return target == ErrAlgorithm || target == ErrUnsupported
}

// FieldMismatch is one field on which a local file header and its central
// directory entry disagree.
type FieldMismatch struct {
	Field   string
	Local   any
	Central any
}

func (m FieldMismatch) String() string {
	return fmt.Sprintf("%s: %v vs %v", m.Field, m.Local, m.Central)
}

// HeaderMismatchError carries every conflicting field found while validating
// a local file header against the central directory.
type HeaderMismatchError struct {
	Name       string
	Mismatches []FieldMismatch
}

func (e *HeaderMismatchError) Error() string {
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = m.String()
	}
	return fmt.Sprintf("%s: %q (%s)", ErrUnmatchHeader, e.Name, strings.Join(parts, ", "))
}

func (e *HeaderMismatchError) Unwrap() error {
	return ErrUnmatchHeader
}
