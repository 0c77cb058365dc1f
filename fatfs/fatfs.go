// Package fatfs is the high-level, path-oriented shell over the fat
// package's core engine: path normalization and a POSIX-flavored
// "missing means nil, not an error" convention for lookups, delegating
// every actual filesystem operation to fat.FS.
package fatfs

import (
	"errors"
	posixpath "path"

	"github.com/dargueta/fatfs/blockdev"
	"github.com/dargueta/fatfs/fat"
	"github.com/dargueta/fatfs/ferrors"
)

// FileSystem wraps a mounted fat.FS with path normalization and
// lookup-miss-to-nil translation. It adds no state of its own; every
// mutation and traversal is the core's.
type FileSystem struct {
	core *fat.FS
}

// Mount opens dev as a FAT volume and wraps it as a FileSystem.
func Mount(dev blockdev.ReadOnlyDevice, opts fat.MountOptions) (*FileSystem, error) {
	core, err := fat.Mount(dev, opts)
	if err != nil {
		return nil, err
	}
	return &FileSystem{core: core}, nil
}

// Core exposes the underlying fat.FS for callers that need the core's
// own error semantics instead of this shell's nil-on-miss convention.
func (fs *FileSystem) Core() *fat.FS { return fs.core }

// normalize resolves path against the volume root: cleaned, always
// absolute. Relative paths are treated as rooted at "/", since the core
// has no notion of a current working directory.
func normalize(path string) string {
	return posixpath.Clean("/" + path)
}

// Open resolves path to an existing file, returning (nil, nil) rather
// than an error if the path doesn't resolve to a file.
func (fs *FileSystem) Open(path string, writable bool) (*fat.FileHandle, error) {
	h, err := fs.core.Open(normalize(path), writable)
	if errors.Is(err, ferrors.NotFound) {
		return nil, nil
	}
	return h, err
}

// Create inserts a new, empty file at path, returning (nil, nil) rather
// than an error if path is already occupied.
func (fs *FileSystem) Create(path string) (*fat.FileHandle, error) {
	h, err := fs.core.Create(normalize(path))
	if errors.Is(err, ferrors.AlreadyExists) {
		return nil, nil
	}
	return h, err
}

// Delete removes the entry at path.
func (fs *FileSystem) Delete(path string) error {
	return fs.core.Delete(normalize(path))
}

// Rename moves the entry at oldPath to newPath.
func (fs *FileSystem) Rename(oldPath, newPath string) error {
	return fs.core.Rename(normalize(oldPath), normalize(newPath))
}

// Mkdir creates an empty directory at path.
func (fs *FileSystem) Mkdir(path string) error {
	return fs.core.Mkdir(normalize(path))
}

// ListDir returns path's visible children, or (nil, nil) if path doesn't
// resolve to a directory.
func (fs *FileSystem) ListDir(path string) ([]string, error) {
	names, err := fs.core.ListDir(normalize(path))
	if errors.Is(err, ferrors.NotFound) {
		return nil, nil
	}
	return names, err
}

// GetSizeOf returns the size of the file at path, or (0, nil) if path
// doesn't resolve.
func (fs *FileSystem) GetSizeOf(path string) (int64, error) {
	size, err := fs.core.GetSizeOf(normalize(path))
	if errors.Is(err, ferrors.NotFound) {
		return 0, nil
	}
	return size, err
}

// GetStats reports the volume's overall cluster usage.
func (fs *FileSystem) GetStats() fat.Stats {
	return fs.core.GetStats()
}

// FlushMetadataChanges writes back every dirtied FAT sector and
// directory body.
func (fs *FileSystem) FlushMetadataChanges() error {
	return fs.core.FlushMetadataChanges()
}
