package fat

import (
	"time"

	"github.com/dargueta/fatfs/fat/chain"
	"github.com/dargueta/fatfs/fat/shortname"
	"github.com/dargueta/fatfs/ferrors"
)

// CachedDirectory is one materialized directory: its raw content buffer,
// the parsed entries within it, and a lazily-populated cache of its own
// subdirectories. Mutations touch the buffer and the entry list in place
// and call markAltered; nothing reaches disk until the flush pass in
// flush.go walks fs.altered.
type CachedDirectory struct {
	fs *FS

	// isFixedRoot is true only for the FAT12/16 volume root, which lives
	// in a fixed region outside the cluster area and can never grow.
	isFixedRoot  bool
	firstCluster ClusterID

	chain   *chain.Chain
	buf     []byte
	entries []Dirent

	children map[string]*CachedDirectory

	dirty bool
}

// loadRoot materializes the volume's root directory: the fixed region
// before the data area on FAT12/16, or the ordinary cluster chain starting
// at BootSector.RootCluster on FAT32.
func (fs *FS) loadRoot() (*CachedDirectory, error) {
	if fs.boot.FATType != Type32 {
		return fs.loadFixedRoot()
	}
	return fs.loadDirectoryAt(fs.boot.RootCluster)
}

func (fs *FS) loadFixedRoot() (*CachedDirectory, error) {
	link := chain.NewFixedLink(fs)
	c := chain.New([]chain.Link{link}, fs.RegionSize(), false, 0, nil)

	buf, err := c.ReadAll()
	if err != nil {
		return nil, err
	}

	cd := &CachedDirectory{fs: fs, isFixedRoot: true, chain: c, buf: buf}
	if err := cd.parse(); err != nil {
		return nil, err
	}
	return cd, nil
}

func (fs *FS) loadDirectoryAt(firstCluster ClusterID) (*CachedDirectory, error) {
	c, err := fs.NewChain(firstCluster, false, 0, true)
	if err != nil {
		return nil, err
	}

	buf, err := c.ReadAll()
	if err != nil {
		return nil, err
	}

	cd := &CachedDirectory{fs: fs, firstCluster: firstCluster, chain: c, buf: buf}
	if err := cd.parse(); err != nil {
		return nil, err
	}
	return cd, nil
}

func (cd *CachedDirectory) parse() error {
	perUnit := len(cd.buf) / DirentSize
	entries, _, err := parseDirentCluster(cd.buf, perUnit, false)
	if err != nil {
		return err
	}
	cd.entries = entries
	cd.children = make(map[string]*CachedDirectory)
	return nil
}

func (cd *CachedDirectory) markAltered() {
	cd.dirty = true
	cd.fs.altered[cd] = true
}

// findEntry looks up name (matched case-insensitively through its 8.3
// encoding) among this directory's immediate children. LFN slots never
// participate in the scan since parse never materializes them; volume
// label entries are never valid lookup targets. Returns ferrors.NotFound
// on a miss.
func (cd *CachedDirectory) findEntry(name string) (*Dirent, error) {
	for i := range cd.entries {
		e := &cd.entries[i]
		if e.Raw.AttributeFlags&AttrVolumeLabel != 0 {
			continue
		}
		if shortname.Equal(e.Name(), name) {
			return e, nil
		}
	}
	return nil, ferrors.NotFound.WithMessagef("fat: no entry named %q", name)
}

// childDirectory returns the lazily-loaded CachedDirectory backing a
// directory-type entry, loading and caching it on first access.
func (cd *CachedDirectory) childDirectory(entry *Dirent) (*CachedDirectory, error) {
	if child, ok := cd.children[entry.Name()]; ok {
		return child, nil
	}

	child, err := cd.fs.loadDirectoryAt(entry.FirstCluster())
	if err != nil {
		return nil, err
	}
	cd.children[entry.Name()] = child
	return child, nil
}

// listDir materializes this directory's visible children: normalized
// names, directories suffixed with "/", with "." / ".." and any entry
// bearing a forbidden attribute (volume label) filtered out.
func (cd *CachedDirectory) listDir() []string {
	names := make([]string, 0, len(cd.entries))
	for _, e := range cd.entries {
		if e.Raw.AttributeFlags&AttrVolumeLabel != 0 {
			continue
		}
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		} else {
			names = append(names, e.Name())
		}
	}
	return names
}

// findFreeSlotOffset returns the byte offset of the first reusable slot
// in buf: a deleted entry, or the terminal free (all-zero marker) slot.
func (cd *CachedDirectory) findFreeSlotOffset() (int, bool) {
	total := len(cd.buf) / DirentSize
	for i := 0; i < total; i++ {
		off := i * DirentSize
		switch cd.buf[off] {
		case direntDeletedMarker, direntFreeMarker:
			return off, true
		}
	}
	return 0, false
}

// growBuffer extends a cluster-backed directory by one cluster of
// zero-filled bytes, via the chain's own allocator hook. Fixed-root
// directories can never grow.
func (cd *CachedDirectory) growBuffer() error {
	if cd.isFixedRoot {
		return ferrors.NoSpace.WithMessage(
			"fat: root directory is full and cannot grow")
	}
	if cd.chain == nil {
		c, err := cd.fs.NewChain(cd.firstCluster, false, 0, true)
		if err != nil {
			return err
		}
		cd.chain = c
	}

	zeros := make([]byte, cd.fs.ClusterSize())
	if _, err := cd.chain.Seek(int64(len(cd.buf)), chain.SeekStart); err != nil {
		return err
	}
	if _, err := cd.chain.Write(zeros); err != nil {
		return err
	}
	if err := cd.chain.Flush(); err != nil {
		return err
	}

	cd.firstCluster = firstClusterOf(cd.chain, cd.firstCluster)
	cd.buf = append(cd.buf, zeros...)
	return nil
}

// firstClusterOf re-derives a chain's first cluster after a write that may
// have allocated its very first link. FileHandle.Close relies on this to
// record the first cluster of a file created empty; for a directory it
// returns the existing first cluster, since Mkdir seeds every new
// directory with "." and ".." in an already-allocated cluster.
func firstClusterOf(c *chain.Chain, fallback ClusterID) ClusterID {
	links := c.Links()
	if len(links) == 0 {
		return fallback
	}
	if indexed, ok := links[0].(chain.IndexedLink); ok {
		return indexed.Index()
	}
	return fallback
}

// allocateSlot returns the offset of a slot ready to receive a new
// 32-byte record, growing the buffer if none is free.
func (cd *CachedDirectory) allocateSlot() (int, error) {
	if off, ok := cd.findFreeSlotOffset(); ok {
		return off, nil
	}

	before := len(cd.buf)
	if err := cd.growBuffer(); err != nil {
		return 0, err
	}
	return before, nil
}

// insertEntry writes d into a free slot, appends it to the in-memory
// entry list, and marks this directory altered.
func (cd *CachedDirectory) insertEntry(d Dirent) (*Dirent, error) {
	if _, err := cd.findEntry(d.Name()); err == nil {
		return nil, ferrors.AlreadyExists.WithMessagef("fat: %q already exists", d.Name())
	}

	off, err := cd.allocateSlot()
	if err != nil {
		return nil, err
	}

	d.offset = off
	raw := d.Raw.Pack()
	copy(cd.buf[off:off+DirentSize], raw[:])
	cd.entries = append(cd.entries, d)
	cd.markAltered()

	return &cd.entries[len(cd.entries)-1], nil
}

// removeEntry marks name's record deleted (0xE5) and drops it from the
// in-memory entry list.
func (cd *CachedDirectory) removeEntry(name string) error {
	idx := -1
	for i := range cd.entries {
		if shortname.Equal(cd.entries[i].Name(), name) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ferrors.NotFound.WithMessagef("fat: no entry named %q", name)
	}

	off := cd.entries[idx].offset
	lfnStart := off - DirentSize*cd.entries[idx].lfns
	if lfnStart < 0 {
		lfnStart = 0
	}
	for pos := lfnStart; pos <= off; pos += DirentSize {
		cd.buf[pos] = direntDeletedMarker
	}
	delete(cd.children, name)
	cd.entries = append(cd.entries[:idx], cd.entries[idx+1:]...)
	cd.markAltered()
	return nil
}

// renameEntry changes oldName's 8.3 encoding in place to newName, failing
// if newName already names another entry in this directory.
func (cd *CachedDirectory) renameEntry(oldName, newName string) error {
	if err := validateNewName(newName); err != nil {
		return err
	}
	if _, err := cd.findEntry(newName); err == nil {
		return ferrors.AlreadyExists.WithMessagef("fat: %q already exists", newName)
	}

	idx := -1
	for i := range cd.entries {
		if shortname.Equal(cd.entries[i].Name(), oldName) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ferrors.NotFound.WithMessagef("fat: no entry named %q", oldName)
	}

	raw8dot3, err := shortname.Encode(newName)
	if err != nil {
		return err
	}

	e := &cd.entries[idx]
	e.Raw.Name = raw8dot3.Name()
	e.Raw.Extension = raw8dot3.Extension()
	e.name = newName

	packed := e.Raw.Pack()
	copy(cd.buf[e.offset:e.offset+DirentSize], packed[:])

	delete(cd.children, oldName)
	cd.markAltered()
	return nil
}

// updateEntry re-packs e's current Raw fields (e.g. after a size or first-
// cluster change from a write) back into the buffer at its existing slot.
func (cd *CachedDirectory) updateEntry(e *Dirent, now time.Time) {
	e.Raw.ModifiedDate = dateToFAT(now)
	e.Raw.ModifiedTime = timeToFAT(now)
	packed := e.Raw.Pack()
	copy(cd.buf[e.offset:e.offset+DirentSize], packed[:])
	cd.markAltered()
}
