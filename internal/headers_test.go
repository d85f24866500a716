// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestLocalFileHeader_EncodeRead(t *testing.T) {
	tests := []struct {
		name   string
		header LocalFileHeader
	}{
		{
			name: "Standard file",
			header: LocalFileHeader{
				VersionNeededToExtract: 20,
				CompressionMethod:      8,
				CRC32:                  0x12345678,
				CompressedSize:         100,
				UncompressedSize:       200,
				FilenameLength:         8,
				Filename:               []byte("test.txt"),
			},
		},
		{
			name: "File with extra field",
			header: LocalFileHeader{
				VersionNeededToExtract: 20,
				GeneralPurposeBitFlag:  FlagUTF8 | FlagDataDescriptor,
				FilenameLength:         14,
				ExtraFieldLength:       4,
				Filename:               []byte("folder/doc.txt"),
				ExtraField:             []byte{0x55, 0x54, 0x00, 0x00},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.header.Encode()

			wantLen := LocalFileHeaderLen + len(tt.header.Filename) + len(tt.header.ExtraField)
			if len(encoded) != wantLen {
				t.Fatalf("encoded length = %d, want %d", len(encoded), wantLen)
			}
			if sig := binary.LittleEndian.Uint32(encoded[:4]); sig != LocalFileHeaderSignature {
				t.Fatalf("signature = %#x, want %#x", sig, LocalFileHeaderSignature)
			}

			got, err := ReadLocalFileHeader(bytes.NewReader(encoded[4:]))
			if err != nil {
				t.Fatalf("ReadLocalFileHeader failed: %v", err)
			}
			if got.CRC32 != tt.header.CRC32 || got.CompressedSize != tt.header.CompressedSize ||
				got.UncompressedSize != tt.header.UncompressedSize || got.GeneralPurposeBitFlag != tt.header.GeneralPurposeBitFlag {
				t.Errorf("fixed fields mismatch: got %+v, want %+v", got, tt.header)
			}
			if !bytes.Equal(got.Filename, tt.header.Filename) {
				t.Errorf("filename = %q, want %q", got.Filename, tt.header.Filename)
			}
			if !bytes.Equal(got.ExtraField, tt.header.ExtraField) {
				t.Errorf("extra field = %x, want %x", got.ExtraField, tt.header.ExtraField)
			}
		})
	}
}

func TestCentralDirectory_EncodeRead(t *testing.T) {
	header := CentralDirectory{
		VersionMadeBy:          3<<8 | 20,
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  FlagUTF8,
		CompressionMethod:      8,
		LastModFileTime:        0x6000,
		LastModFileDate:        0x5821,
		CRC32:                  0xDEADBEEF,
		CompressedSize:         1024,
		UncompressedSize:       4096,
		FilenameLength:         9,
		ExtraFieldLength:       2,
		FileCommentLength:      7,
		InternalFileAttributes: 1,
		ExternalFileAttributes: 0100644 << 16,
		LocalHeaderOffset:      512,
		Filename:               []byte("image.png"),
		ExtraField:             []byte{0xAA, 0xBB},
		Comment:                []byte("comment"),
	}

	encoded := header.Encode()
	if len(encoded) != CentralDirectoryLen+9+2+7 {
		t.Fatalf("encoded length = %d", len(encoded))
	}

	got, err := ReadCentralDirEntry(bytes.NewReader(encoded[4:]))
	if err != nil {
		t.Fatalf("ReadCentralDirEntry failed: %v", err)
	}

	if got.VersionMadeBy != header.VersionMadeBy ||
		got.ExternalFileAttributes != header.ExternalFileAttributes ||
		got.LocalHeaderOffset != header.LocalHeaderOffset ||
		got.LastModFileDate != header.LastModFileDate {
		t.Errorf("fixed fields mismatch: got %+v", got)
	}
	if string(got.Filename) != "image.png" || string(got.Comment) != "comment" {
		t.Errorf("variable fields mismatch: name %q, comment %q", got.Filename, got.Comment)
	}
	if !bytes.Equal(got.ExtraField, header.ExtraField) {
		t.Errorf("extra field = %x", got.ExtraField)
	}
}

func TestEndOfCentralDir_EncodeRead(t *testing.T) {
	eocd := EndOfCentralDirectory{
		TotalNumberOfEntriesOnThisDisk: 5,
		TotalNumberOfEntries:           5,
		CentralDirSize:                 500,
		CentralDirOffset:               10000,
		CommentLength:                  4,
		Comment:                        []byte("test"),
	}

	encoded := eocd.Encode()
	if len(encoded) != EndOfCentralDirLen+4 {
		t.Fatalf("encoded length = %d, want %d", len(encoded), EndOfCentralDirLen+4)
	}

	got, err := ReadEndOfCentralDir(bytes.NewReader(encoded[4:]))
	if err != nil {
		t.Fatalf("ReadEndOfCentralDir failed: %v", err)
	}
	if got.TotalNumberOfEntries != 5 || got.CentralDirSize != 500 || got.CentralDirOffset != 10000 {
		t.Errorf("fixed fields mismatch: %+v", got)
	}
	if string(got.Comment) != "test" {
		t.Errorf("comment = %q, want %q", got.Comment, "test")
	}
}

func TestReadHeaders_Truncated(t *testing.T) {
	cd := CentralDirectory{FilenameLength: 10, Filename: []byte("0123456789")}.Encode()
	lfh := LocalFileHeader{FilenameLength: 4, Filename: []byte("abcd")}.Encode()
	eocd := EndOfCentralDirectory{CommentLength: 3, Comment: []byte("abc")}.Encode()

	tests := []struct {
		name string
		read func() error
	}{
		{"Central directory fixed part", func() error {
			_, err := ReadCentralDirEntry(bytes.NewReader(cd[4:20]))
			return err
		}},
		{"Central directory filename", func() error {
			_, err := ReadCentralDirEntry(bytes.NewReader(cd[4 : len(cd)-3]))
			return err
		}},
		{"Local header filename", func() error {
			_, err := ReadLocalFileHeader(bytes.NewReader(lfh[4 : len(lfh)-1]))
			return err
		}},
		{"EOCD comment", func() error {
			_, err := ReadEndOfCentralDir(bytes.NewReader(eocd[4 : len(eocd)-1]))
			return err
		}},
		{"Data descriptor", func() error {
			_, err := ReadTrailingDataDescriptor(make([]byte, DataDescriptorLen-1))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read()
			if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
				t.Errorf("expected a short read error, got %v", err)
			}
		})
	}
}

func TestReadTrailingDataDescriptor(t *testing.T) {
	dd := DataDescriptor{CRC32: 0xCAFEBABE, CompressedSize: 7, UncompressedSize: 11}

	tests := []struct {
		name string
		data []byte
	}{
		{"Without signature", dd.Encode(false)},
		{"With signature", dd.Encode(true)},
		{"After payload", append([]byte("payload"), dd.Encode(true)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadTrailingDataDescriptor(tt.data)
			if err != nil {
				t.Fatalf("ReadTrailingDataDescriptor failed: %v", err)
			}
			if got != dd {
				t.Errorf("got %+v, want %+v", got, dd)
			}
		})
	}
}
