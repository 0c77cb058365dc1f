package fat

import (
	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/fatfs/fat/chain"
	"github.com/dargueta/fatfs/ferrors"
)

// Flush writes every pending change back to the device: first every
// altered FAT sector, to every FAT copy, then every altered directory's
// body. Phase 1 runs to completion before phase 2 starts, so a crash
// between them can only leak allocated-but-unreferenced clusters; it can
// never leave a directory entry pointing at a chain the FAT doesn't
// agree with.
func (fs *FS) Flush() error {
	if fs.writable == nil {
		return ferrors.ReadOnly
	}
	if err := fs.flushFAT(); err != nil {
		return err
	}
	return fs.flushDirectories()
}

// flushFAT writes every sector a Set call touched to every FAT copy, so
// all copies stay byte-identical.
func (fs *FS) flushFAT() error {
	if !fs.fatAltered || len(fs.alteredFATSectors) == 0 {
		return nil
	}

	sectorSize := int(fs.boot.BytesPerSector)
	sectorsPerFATCopy := fs.boot.SectorsPerFAT
	reservedSectors := uint32(fs.boot.ReservedSectors)

	var merr *multierror.Error
	for sector := range fs.alteredFATSectors {
		relSector := sector - reservedSectors
		off := int(relSector) * sectorSize
		if off < 0 || off+sectorSize > len(fs.fatBuf) {
			merr = multierror.Append(merr, ferrors.InvalidState.WithMessagef(
				"fat: altered FAT sector %d falls outside the in-memory FAT", sector))
			continue
		}
		data := fs.fatBuf[off : off+sectorSize]

		for copyIdx := uint32(0); copyIdx < uint32(fs.boot.FATCount); copyIdx++ {
			copySector := reservedSectors + copyIdx*sectorsPerFATCopy + relSector
			if err := fs.writable.WriteAt(int64(copySector), data); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		return err
	}

	fs.fatAltered = false
	fs.alteredFATSectors = make(map[uint32]bool)
	return nil
}

// flushDirectories writes every directory fs.altered names back to disk.
// A directory that fails to flush stays in fs.altered so a later retry
// picks it back up.
func (fs *FS) flushDirectories() error {
	var merr *multierror.Error
	for cd := range fs.altered {
		if err := fs.flushDirectory(cd); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		cd.dirty = false
		delete(fs.altered, cd)
	}
	return merr.ErrorOrNil()
}

// flushDirectory writes one directory's buffer back through its backing
// chain. The fixed FAT12/16 root writes straight to its region; anything
// else is trimmed of trailing clusters that hold no live entry before
// being written through an allocating cluster chain, and what's left past
// the last live entry is zeroed rather than left holding a stale deleted
// marker.
func (fs *FS) flushDirectory(cd *CachedDirectory) error {
	zeroTrailingFreeSpace(cd)

	if cd.isFixedRoot {
		link := chain.NewFixedLink(fs)
		c := chain.New([]chain.Link{link}, fs.RegionSize(), false, 0, nil)
		if _, err := c.Write(cd.buf); err != nil {
			return err
		}
		return c.Flush()
	}

	clusterSize := fs.ClusterSize()
	if err := fs.trimDirectoryClusters(cd, clusterSize); err != nil {
		return err
	}

	c, err := fs.NewChain(cd.firstCluster, false, 0, true)
	if err != nil {
		return err
	}
	if _, err := c.Write(cd.buf); err != nil {
		return err
	}
	return c.Flush()
}

// trimDirectoryClusters frees any of cd's trailing clusters that hold no
// live entry and shrinks cd.buf to match, relinking what remains with
// RedefineChain. A directory is never trimmed below one cluster.
func (fs *FS) trimDirectoryClusters(cd *CachedDirectory, clusterSize int) error {
	needed := neededClusterLength(cd.buf, clusterSize)
	if needed >= len(cd.buf) {
		return nil
	}

	oldClusters, err := fs.ListClusters(cd.firstCluster)
	if err != nil {
		return err
	}

	keep := needed / clusterSize
	if keep < 1 {
		keep = 1
	}
	if keep < len(oldClusters) {
		if err := fs.RedefineChain(cd.firstCluster, oldClusters[:keep]); err != nil {
			return err
		}
	}

	cd.buf = cd.buf[:needed]
	return nil
}

// lastLiveEntryEnd returns the byte offset one past the last entry in buf
// whose marker byte names neither a free nor a deleted slot. Deleted
// slots never terminate the scan early: a later reused slot can still
// hold a live entry past one that was removed and not yet reclaimed.
func lastLiveEntryEnd(buf []byte) int {
	end := 0
	for i := 0; i+DirentSize <= len(buf); i += DirentSize {
		switch buf[i] {
		case direntFreeMarker, direntDeletedMarker:
			continue
		}
		end = i + DirentSize
	}
	return end
}

// neededClusterLength rounds lastLiveEntryEnd up to a whole cluster, with
// a one-cluster minimum and never exceeding buf's current length.
func neededClusterLength(buf []byte, clusterSize int) int {
	needed := ((lastLiveEntryEnd(buf) + clusterSize - 1) / clusterSize) * clusterSize
	if needed < clusterSize {
		needed = clusterSize
	}
	if needed > len(buf) {
		needed = len(buf)
	}
	return needed
}

// zeroTrailingFreeSpace overwrites every byte after the last live entry
// with zero, so a removed entry's 0xE5 marker never lingers past the
// point a reader would otherwise stop scanning.
func zeroTrailingFreeSpace(cd *CachedDirectory) {
	end := lastLiveEntryEnd(cd.buf)
	for i := end; i < len(cd.buf); i++ {
		cd.buf[i] = 0
	}
}
