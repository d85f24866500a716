// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangezip

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"

	"github.com/lemon4ksan/rangezip/internal"
)

// NameEncoding selects how raw file name bytes are turned into text.
type NameEncoding int

const (
	// UTF8 is used whenever bit 11 of the general purpose flag is set.
	UTF8 NameEncoding = iota
	// ShiftJIS is the default legacy encoding for names without bit 11.
	ShiftJIS
	// CP437 is the IBM PC code page. Every byte maps to a rune.
	CP437
)

func (e NameEncoding) String() string {
	switch e {
	case UTF8:
		return "UTF-8"
	case ShiftJIS:
		return "Shift_JIS"
	case CP437:
		return "CP437"
	}
	return fmt.Sprintf("NameEncoding(%d)", int(e))
}

func (e NameEncoding) legacy() encoding.Encoding {
	switch e {
	case ShiftJIS:
		return japanese.ShiftJIS
	case CP437:
		return charmap.CodePage437
	}
	return nil
}

// nameEncoding picks UTF8 when the flag says so and the legacy encoding otherwise.
func nameEncoding(flags uint16, legacy NameEncoding) NameEncoding {
	if flags&internal.FlagUTF8 != 0 {
		return UTF8
	}
	return legacy
}

// DecodeName converts raw name bytes using enc. Both arms are strict:
// malformed input fails with ErrFileNameConversion instead of being replaced.
func DecodeName(raw []byte, enc NameEncoding) (string, error) {
	if enc == UTF8 {
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("%w: invalid UTF-8 sequence", ErrFileNameConversion)
		}
		return string(raw), nil
	}

	e := enc.legacy()
	if e == nil {
		return "", fmt.Errorf("%w: unknown encoding %s", ErrFileNameConversion, enc)
	}

	// x/text decoders substitute U+FFFD for unmappable input. None of the legacy
	// tables map to U+FFFD, so its presence means the input was malformed.
	out, err := e.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFileNameConversion, enc, err)
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("%w: invalid %s sequence", ErrFileNameConversion, enc)
	}
	return string(out), nil
}
