// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/lemon4ksan/rangezip"
)

var (
	_ fs.FS         = (*archiveFS)(nil)
	_ fs.StatFS     = (*archiveFS)(nil)
	_ fs.ReadDirFS  = (*archiveFS)(nil)
	_ fs.ReadFileFS = (*archiveFS)(nil)
)

// FS returns a read-only file system view of the archive. Directories that
// only appear as name prefixes are listed as well. Files are fetched when
// opened, with a background context.
func (a *Archive) FS() fs.FS {
	return &archiveFS{a: a}
}

type archiveFS struct {
	a *Archive
}

// node is what the file system knows about a path: either a central
// directory entry or a synthesized directory.
type node struct {
	name  string // clean path, "." for the root
	entry *rangezip.Entry
	isDir bool
}

func (n *node) info() fileInfo { return fileInfo{n} }

func (fsys *archiveFS) Open(name string) (fs.File, error) {
	n, err := fsys.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if n.isDir {
		return &dirFile{node: n, fsys: fsys}, nil
	}

	data, err := fsys.a.ReadFile(context.Background(), n.entry.Name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &file{node: n, r: bytes.NewReader(data)}, nil
}

func (fsys *archiveFS) ReadFile(name string) ([]byte, error) {
	n, err := fsys.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	if n.isDir {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}

	data, err := fsys.a.ReadFile(context.Background(), n.entry.Name)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

func (fsys *archiveFS) Stat(name string) (fs.FileInfo, error) {
	n, err := fsys.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return n.info(), nil
}

func (fsys *archiveFS) ReadDir(name string) ([]fs.DirEntry, error) {
	n, err := fsys.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	if !n.isDir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return fsys.children(n.name), nil
}

// lookup resolves name to an explicit file, an explicit directory entry
// ("name/") or a directory implied by other entries' prefixes.
func (fsys *archiveFS) lookup(name string) (*node, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	if name == "." {
		return &node{name: ".", isDir: true}, nil
	}

	entries := fsys.a.Entries()
	for i := range entries {
		if entries[i].Name == name {
			return &node{name: name, entry: &entries[i], isDir: entries[i].IsDir()}, nil
		}
	}
	for i := range entries {
		if entries[i].Name == name+"/" {
			return &node{name: name, entry: &entries[i], isDir: true}, nil
		}
	}

	prefix := name + "/"
	for i := range entries {
		if strings.HasPrefix(entries[i].Name, prefix) {
			return &node{name: name, isDir: true}, nil
		}
	}
	return nil, fs.ErrNotExist
}

// children lists the direct children of dir, sorted by name. Entries whose
// names are not valid fs paths are skipped.
func (fsys *archiveFS) children(dir string) []fs.DirEntry {
	prefix := ""
	if dir != "." {
		prefix = dir + "/"
	}

	seen := make(map[string]bool)
	var list []fs.DirEntry

	for _, e := range fsys.a.Entries() {
		rel, ok := strings.CutPrefix(e.Name, prefix)
		if !ok || rel == "" {
			continue
		}

		child, _, _ := strings.Cut(rel, "/")
		if seen[child] {
			continue
		}
		childPath := path.Join(dir, child)
		if !fs.ValidPath(childPath) || childPath == "." {
			continue
		}
		seen[child] = true

		n, err := fsys.lookup(childPath)
		if err != nil {
			continue
		}
		list = append(list, fs.FileInfoToDirEntry(n.info()))
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// file is an opened regular entry, fully extracted into memory.
type file struct {
	node *node
	r    *bytes.Reader
}

func (f *file) Stat() (fs.FileInfo, error) { return f.node.info(), nil }
func (f *file) Read(b []byte) (int, error) { return f.r.Read(b) }
func (f *file) Close() error               { return nil }

// dirFile is an opened directory. ReadDir continues where the last call stopped.
type dirFile struct {
	node    *node
	fsys    *archiveFS
	entries []fs.DirEntry
	offset  int
	loaded  bool
}

func (d *dirFile) Stat() (fs.FileInfo, error) { return d.node.info(), nil }
func (d *dirFile) Close() error               { return nil }
func (d *dirFile) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.node.name, Err: fs.ErrInvalid}
}

func (d *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		d.entries = d.fsys.children(d.node.name)
		d.loaded = true
	}

	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}

	n = min(n, len(rest))
	d.offset += n
	return rest[:n], nil
}

type fileInfo struct{ n *node }

func (i fileInfo) Name() string { return path.Base(i.n.name) }

func (i fileInfo) Size() int64 {
	if i.n.isDir || i.n.entry == nil {
		return 0
	}
	return int64(i.n.entry.UncompressedSize)
}

func (i fileInfo) Mode() fs.FileMode {
	if i.n.entry == nil {
		return fs.ModeDir | 0755
	}
	mode := i.n.entry.Mode()
	if i.n.isDir {
		return fs.ModeDir | mode.Perm()
	}
	return mode &^ fs.ModeDir
}

func (i fileInfo) ModTime() time.Time {
	if i.n.entry == nil {
		return time.Time{}
	}
	return i.n.entry.Modified()
}

func (i fileInfo) IsDir() bool { return i.n.isDir }

// Sys returns the *rangezip.Entry behind the path, or nil for implied directories.
func (i fileInfo) Sys() any {
	if i.n.entry == nil {
		return nil
	}
	return i.n.entry
}
