// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

// HostSystem represents the host system on which the ZIP entry was created.
// It is the upper byte of the "version made by" field.
type HostSystem uint8

// Host systems as numbered in APPNOTE.TXT
const (
	HostSystemFAT       HostSystem = 0  // MS-DOS and OS/2 (FAT / VFAT / FAT32 file systems)
	HostSystemAmiga     HostSystem = 1  // Amiga
	HostSystemOpenVMS   HostSystem = 2  // OpenVMS
	HostSystemUNIX      HostSystem = 3  // UNIX
	HostSystemVMCMS     HostSystem = 4  // VM/CMS
	HostSystemAtariST   HostSystem = 5  // Atari ST
	HostSystemOS2HPFS   HostSystem = 6  // OS/2 H.P.F.S.
	HostSystemMacintosh HostSystem = 7  // Macintosh
	HostSystemZSystem   HostSystem = 8  // Z-System
	HostSystemCPM       HostSystem = 9  // CP/M
	HostSystemNTFS      HostSystem = 10 // Windows NTFS
	HostSystemMVS       HostSystem = 11 // MVS (OS/390 - Z/OS)
	HostSystemVSE       HostSystem = 12 // VSE
	HostSystemAcornRisc HostSystem = 13 // Acorn Risc
	HostSystemVFAT      HostSystem = 14 // VFAT
	HostSystemAltMVS    HostSystem = 15 // alternate MVS
	HostSystemBeOS      HostSystem = 16 // BeOS
	HostSystemTandem    HostSystem = 17 // Tandem
	HostSystemOS400     HostSystem = 18 // OS/400
	HostSystemDarwin    HostSystem = 19 // OS X (Darwin)
	// 20-255: unused
)

var hostSystemNames = map[HostSystem]string{
	HostSystemFAT:       "MS-DOS/OS2 (FAT)",
	HostSystemAmiga:     "Amiga",
	HostSystemOpenVMS:   "OpenVMS",
	HostSystemUNIX:      "UNIX",
	HostSystemVMCMS:     "VM/CMS",
	HostSystemAtariST:   "Atari ST",
	HostSystemOS2HPFS:   "OS/2 HPFS",
	HostSystemMacintosh: "Macintosh",
	HostSystemZSystem:   "Z-System",
	HostSystemCPM:       "CP/M",
	HostSystemNTFS:      "Windows NTFS",
	HostSystemMVS:       "MVS (OS/390 - Z/OS)",
	HostSystemVSE:       "VSE",
	HostSystemAcornRisc: "Acorn Risc",
	HostSystemVFAT:      "VFAT",
	HostSystemAltMVS:    "Alternate MVS",
	HostSystemBeOS:      "BeOS",
	HostSystemTandem:    "Tandem",
	HostSystemOS400:     "OS/400",
	HostSystemDarwin:    "OS X (Darwin)",
}

// String representation of HostSystem for debugging
func (h HostSystem) String() string {
	if name, exists := hostSystemNames[h]; exists {
		return name
	}
	return "Unknown"
}

// IsUnix reports whether external attributes carry Unix mode bits in their upper half.
func (h HostSystem) IsUnix() bool {
	return h == HostSystemUNIX || h == HostSystemDarwin
}

// IsWindows reports whether external attributes carry DOS attribute bits.
func (h HostSystem) IsWindows() bool {
	return h == HostSystemFAT || h == HostSystemNTFS || h == HostSystemVFAT
}

// Unix constants for file types (standard POSIX)
const (
	S_IFMT   = 0170000 // File type mask
	S_IFSOCK = 0140000 // Socket
	S_IFLNK  = 0120000 // Symlink
	S_IFREG  = 0100000 // Regular file
	S_IFBLK  = 0060000 // Block device
	S_IFDIR  = 0040000 // Directory
	S_IFCHR  = 0020000 // Character device
	S_IFIFO  = 0010000 // FIFO
)

// DOS attribute bits found in the low byte of external attributes.
const (
	DOSReadOnly  = 0x01
	DOSDirectory = 0x10
)
