package fat

import (
	"io"
	"time"

	"github.com/dargueta/fatfs/fat/chain"
	"github.com/dargueta/fatfs/fat/shortname"
	"github.com/dargueta/fatfs/ferrors"
)

// Stats summarizes a mounted volume's cluster usage.
type Stats struct {
	TotalClusters uint32
	FreeClusters  uint32
	TotalBytes    int64
	FreeBytes     int64
}

// FileHandle is an open file body: a byte cursor over its cluster chain,
// plus enough directory context to write its size and first cluster back
// on Close. The entry is resolved by name rather than cached as a pointer,
// since cd.entries can grow or reslice under a second Open/Create/Delete in
// the same directory while this handle is still open, which would
// otherwise leave a stale pointer into a detached backing array.
type FileHandle struct {
	fs       *FS
	dir      *CachedDirectory
	name     string
	chain    *chain.Chain
	writable bool
}

// entry resolves this handle's directory entry against the directory's
// current entry list.
func (h *FileHandle) entry() (*Dirent, error) {
	return h.dir.findEntry(h.name)
}

// Read fills p from the current cursor position.
func (h *FileHandle) Read(p []byte) (int, error) {
	data, err := h.chain.Read(len(p))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

// ReadAll reads the file's entire remaining content from the cursor.
func (h *FileHandle) ReadAll() ([]byte, error) {
	return h.chain.ReadAll()
}

// Write appends p at the current cursor position, growing the chain
// through the allocator as needed. Fails with ReadOnly if the handle
// wasn't opened for writing.
func (h *FileHandle) Write(p []byte) (int, error) {
	if !h.writable {
		return 0, ferrors.ReadOnly
	}
	return h.chain.Write(p)
}

// Seek repositions the handle's cursor.
func (h *FileHandle) Seek(offset int64, whence int) (int64, error) {
	var w chain.SeekWhence
	switch whence {
	case io.SeekStart:
		w = chain.SeekStart
	case io.SeekCurrent:
		w = chain.SeekCurrent
	case io.SeekEnd:
		w = chain.SeekEnd
	default:
		return 0, ferrors.InvalidArgument.WithMessagef("fat: invalid seek whence %d", whence)
	}
	return h.chain.Seek(offset, w)
}

// Close flushes the handle's pending write buffer and, for a writable
// handle, syncs the file's size and first cluster back into its
// directory entry. The entry itself isn't written to disk until the
// volume's Flush.
func (h *FileHandle) Close() error {
	if !h.writable {
		return nil
	}
	if err := h.chain.Flush(); err != nil {
		return err
	}

	e, err := h.entry()
	if err != nil {
		return err
	}
	e.setFirstCluster(firstClusterOf(h.chain, e.FirstCluster()))
	e.Raw.FileSize = uint32(h.chain.TotalLength())
	h.dir.updateEntry(e, time.Now())
	return nil
}

// Open resolves path to an existing file, failing with NotFound if the
// path doesn't resolve or names a directory. Requesting writable on a
// read-only mount fails with ReadOnly.
func (fs *FS) Open(path string, writable bool) (*FileHandle, error) {
	if writable && fs.writable == nil {
		return nil, ferrors.ReadOnly
	}

	dir, name, err := fs.traverseParent(path)
	if err != nil {
		return nil, err
	}
	entry, err := dir.findEntry(name)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, ferrors.NotFound.WithMessagef("fat: %q is a directory", path)
	}

	c, err := fs.NewChain(entry.FirstCluster(), true, entry.Size(), writable)
	if err != nil {
		return nil, err
	}

	return &FileHandle{fs: fs, dir: dir, name: entry.Name(), chain: c, writable: writable}, nil
}

// Create inserts a new, empty file entry at path and returns a writable
// handle to it. Fails with AlreadyExists if path is already occupied.
func (fs *FS) Create(path string) (*FileHandle, error) {
	if fs.writable == nil {
		return nil, ferrors.ReadOnly
	}

	dir, name, err := fs.traverseParent(path)
	if err != nil {
		return nil, err
	}

	newDirent, err := newDirentForCreate(name, AttrArchived, time.Now())
	if err != nil {
		return nil, err
	}

	entry, err := dir.insertEntry(newDirent)
	if err != nil {
		return nil, err
	}

	c, err := fs.NewChain(0, true, 0, true)
	if err != nil {
		return nil, err
	}

	return &FileHandle{fs: fs, dir: dir, name: entry.Name(), chain: c, writable: true}, nil
}

// Delete removes the entry at path, refusing non-empty directories
// (anything besides "." and ".."), and returns its cluster chain to the
// allocator's free pool.
func (fs *FS) Delete(path string) error {
	if fs.writable == nil {
		return ferrors.ReadOnly
	}

	dir, name, err := fs.traverseParent(path)
	if err != nil {
		return err
	}
	entry, err := dir.findEntry(name)
	if err != nil {
		return err
	}

	if entry.IsDir() {
		child, err := dir.childDirectory(entry)
		if err != nil {
			return err
		}
		if len(child.entries) > 2 {
			return ferrors.InvalidArgument.WithMessagef("fat: %q is not empty", path)
		}
	}

	clusters, err := fs.ListClusters(entry.FirstCluster())
	if err != nil {
		return err
	}

	if err := dir.removeEntry(name); err != nil {
		return err
	}

	fs.allocator.FreeClusterList(clusters)
	for _, c := range clusters {
		fs.Set(c, 0)
	}
	return nil
}

// Rename moves the entry at oldPath to newPath, failing with
// AlreadyExists if newPath is already occupied. Moving across
// directories drops the entry's LFN slot count, since only the 32-byte
// record itself is carried over.
func (fs *FS) Rename(oldPath, newPath string) error {
	if fs.writable == nil {
		return ferrors.ReadOnly
	}

	oldDir, oldName, err := fs.traverseParent(oldPath)
	if err != nil {
		return err
	}
	entry, err := oldDir.findEntry(oldName)
	if err != nil {
		return err
	}

	newDir, newName, err := fs.traverseParent(newPath)
	if err != nil {
		return err
	}
	if err := validateNewName(newName); err != nil {
		return err
	}
	if _, err := newDir.findEntry(newName); err == nil {
		return ferrors.AlreadyExists.WithMessagef("fat: %q already exists", newPath)
	}

	if oldDir == newDir {
		return oldDir.renameEntry(oldName, newName)
	}

	raw8dot3, err := shortname.Encode(newName)
	if err != nil {
		return err
	}

	moved := *entry
	moved.Raw.Name = raw8dot3.Name()
	moved.Raw.Extension = raw8dot3.Extension()
	moved.name = newName
	moved.lfns = 0

	if err := oldDir.removeEntry(oldName); err != nil {
		return err
	}
	if _, err := newDir.insertEntry(moved); err != nil {
		return err
	}
	return nil
}

// Mkdir creates an empty directory at path: one freshly allocated
// cluster, zero-filled, seeded with "." (pointing at itself) and ".."
// (pointing at its parent, 0 if the parent is the fixed root).
func (fs *FS) Mkdir(path string) error {
	if fs.writable == nil {
		return ferrors.ReadOnly
	}

	parentDir, name, err := fs.traverseParent(path)
	if err != nil {
		return err
	}
	if err := validateNewName(name); err != nil {
		return err
	}
	if _, err := parentDir.findEntry(name); err == nil {
		return ferrors.AlreadyExists.WithMessagef("fat: %q already exists", path)
	}

	newClusters, err := fs.allocator.Allocate(0, false, 1)
	if err != nil {
		return err
	}
	firstCluster := newClusters[0]
	fs.Set(firstCluster, fs.EndOfChain())

	now := time.Now()
	child := &CachedDirectory{
		fs:           fs,
		firstCluster: firstCluster,
		buf:          make([]byte, fs.ClusterSize()),
		children:     make(map[string]*CachedDirectory),
	}

	dotEntry, err := newDirentForCreate(".", AttrDirectory, now)
	if err != nil {
		return err
	}
	dotEntry.setFirstCluster(firstCluster)

	var parentRef ClusterID
	if !parentDir.isFixedRoot {
		parentRef = parentDir.firstCluster
	}
	dotDotEntry, err := newDirentForCreate("..", AttrDirectory, now)
	if err != nil {
		return err
	}
	dotDotEntry.setFirstCluster(parentRef)

	if _, err := child.insertEntry(dotEntry); err != nil {
		return err
	}
	if _, err := child.insertEntry(dotDotEntry); err != nil {
		return err
	}

	dirDirent, err := newDirentForCreate(name, AttrDirectory, now)
	if err != nil {
		return err
	}
	dirDirent.setFirstCluster(firstCluster)

	entry, err := parentDir.insertEntry(dirDirent)
	if err != nil {
		return err
	}

	parentDir.children[entry.Name()] = child
	child.markAltered()
	return nil
}

// ListDir returns path's visible children: normalized names, directories
// suffixed "/".
func (fs *FS) ListDir(path string) ([]string, error) {
	segments := splitPath(path)
	dir := fs.root
	for _, seg := range segments {
		entry, err := dir.findEntry(seg)
		if err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			return nil, ferrors.NotFound.WithMessagef("fat: %q is not a directory", seg)
		}
		dir, err = dir.childDirectory(entry)
		if err != nil {
			return nil, err
		}
	}
	return dir.listDir(), nil
}

// GetSizeOf returns the size in bytes of the file at path.
func (fs *FS) GetSizeOf(path string) (int64, error) {
	entry, err := fs.traverse(path)
	if err != nil {
		return 0, err
	}
	return entry.Size(), nil
}

// GetStats reports the volume's overall cluster usage.
func (fs *FS) GetStats() Stats {
	total := uint32(fs.boot.TotalClusters)
	var free uint32
	for c := uint32(2); c < uint32(fs.entryCount); c++ {
		if fs.allocator.IsFree(c) {
			free++
		}
	}

	clusterSize := int64(fs.ClusterSize())
	return Stats{
		TotalClusters: total,
		FreeClusters:  free,
		TotalBytes:    int64(total) * clusterSize,
		FreeBytes:     int64(free) * clusterSize,
	}
}

// FlushMetadataChanges is an alias for Flush, named to mirror the
// high-level shell's vocabulary for writing back dirtied FAT sectors and
// directory bodies.
func (fs *FS) FlushMetadataChanges() error {
	return fs.Flush()
}
