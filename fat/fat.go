// Package fat implements the FAT12/16/32 filesystem core: boot-sector
// parsing, FAT entry read/write for all three table widths, cluster chain
// traversal and construction, directory entry parsing, the directory
// cache, the cluster allocator wiring, and the two-phase flush protocol.
//
// This implements the mutable, read/write driver core: mount, FAT entry
// read/write, chain traversal, directory parsing, caching, and flush.
package fat

import (
	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/fatfs/blockdev"
	"github.com/dargueta/fatfs/fat/alloc"
	"github.com/dargueta/fatfs/fat/chain"
	"github.com/dargueta/fatfs/ferrors"
)

// ClusterID identifies one FAT cluster. 0 and 1 are reserved; valid data
// clusters start at 2.
type ClusterID = uint32

// MountOptions controls mount-time behavior not determined by the boot
// sector itself.
type MountOptions struct {
	// BypassCoherencyCheck skips the redundant-FAT-copy comparison in step
	// 7 of mount. Mounting a volume whose FAT copies disagree without this
	// set fails with CorruptFilesystem.
	BypassCoherencyCheck bool
	// ForceFATType overrides the auto-detected FAT12/16/32 type. Useful
	// when a volume's geometry is ambiguous between FAT12 and FAT16.
	ForceFATType *Type
	// ReadOnly mounts the volume read-only even if the underlying device
	// supports writes.
	ReadOnly bool
}

// FS is a mounted FAT volume: the core engine this module implements.
type FS struct {
	device   blockdev.ReadOnlyDevice
	writable blockdev.Device

	boot *BootSector
	opts MountOptions

	entryCount int
	fatBuf     []byte // FAT copy 0, held as a single mutable buffer

	fatAltered        bool
	alteredFATSectors map[uint32]bool

	allocator *alloc.Allocator

	root    *CachedDirectory
	altered map[*CachedDirectory]bool
}

// ClusterSize returns the size, in bytes, of one cluster.
func (fs *FS) ClusterSize() int { return int(fs.boot.BytesPerCluster) }

// BootSector exposes the volume's parsed boot sector.
func (fs *FS) BootSector() *BootSector { return fs.boot }

// ReadOnly reports whether this mount rejects mutating operations.
func (fs *FS) ReadOnly() bool { return fs.writable == nil }

// Mount parses dev's boot sector, verifies redundant FAT copies, reads the
// FAT into memory, materializes the root directory, and builds the
// allocator.
func Mount(dev blockdev.ReadOnlyDevice, opts MountOptions) (*FS, error) {
	sectorSize := dev.SectorSize()

	sector0, err := dev.ReadAt(0, 1)
	if err != nil {
		return nil, err
	}

	readFSInfo := func(sector uint32) ([]byte, error) {
		return dev.ReadAt(int64(sector), 1)
	}

	boot, err := ParseBootSector(sector0, readFSInfo, opts.ForceFATType)
	if err != nil {
		return nil, err
	}
	if int(boot.BytesPerSector) != sectorSize {
		return nil, ferrors.CorruptFilesystem.WithMessagef(
			"fat: boot sector declares %d bytes/sector but device reports %d",
			boot.BytesPerSector, sectorSize)
	}

	fs := &FS{
		device:            dev,
		boot:              boot,
		opts:              opts,
		entryCount:        int(boot.TotalClusters) + 2,
		alteredFATSectors: make(map[uint32]bool),
		altered:           make(map[*CachedDirectory]bool),
	}

	if !opts.ReadOnly {
		if writable, ok := dev.(blockdev.Device); ok {
			fs.writable = writable
		}
	}

	sectorsPerFATCopy := int64(boot.SectorsPerFAT)
	fatBuf, err := dev.ReadAt(int64(boot.ReservedSectors), int(sectorsPerFATCopy))
	if err != nil {
		return nil, err
	}
	fs.fatBuf = fatBuf

	if !opts.BypassCoherencyCheck {
		var merr *multierror.Error
		for copyIdx := 1; copyIdx < int(boot.FATCount); copyIdx++ {
			start := int64(boot.ReservedSectors) + int64(copyIdx)*sectorsPerFATCopy
			copyBuf, err := dev.ReadAt(start, int(sectorsPerFATCopy))
			if err != nil {
				merr = multierror.Append(merr, err)
				continue
			}
			if !bytesEqual(copyBuf, fatBuf) {
				merr = multierror.Append(merr, ferrors.CorruptFilesystem.WithMessagef(
					"fat: FAT copy %d does not match copy 0", copyIdx))
			}
		}
		if merr.ErrorOrNil() != nil {
			return nil, merr.ErrorOrNil()
		}
	}

	fs.allocator = alloc.New(fs)

	root, err := fs.loadRoot()
	if err != nil {
		return nil, err
	}
	fs.root = root

	return fs, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- alloc.Table ------------------------------------------------------

func (fs *FS) ClusterCount() int { return fs.entryCount }

func (fs *FS) Get(cluster ClusterID) uint32 {
	switch fs.boot.FATType {
	case Type12:
		return fs.get12(cluster)
	case Type16:
		return fs.get16(cluster)
	default:
		return fs.get32(cluster)
	}
}

func (fs *FS) Set(cluster ClusterID, value uint32) {
	switch fs.boot.FATType {
	case Type12:
		fs.set12(cluster, value)
	case Type16:
		fs.set16(cluster, value)
	default:
		fs.set32(cluster, value)
	}
	fs.fatAltered = true
}

func (fs *FS) EndOfChain() uint32 {
	switch fs.boot.FATType {
	case Type12:
		return 0x0FFF
	case Type16:
		return 0xFFFF
	default:
		return 0x0FFFFFFF
	}
}

// isEndOfChain reports whether value is any of the eight EOC markers for
// this volume's FAT width.
func (fs *FS) isEndOfChain(value uint32) bool {
	switch fs.boot.FATType {
	case Type12:
		return value >= 0xFF8 && value <= 0xFFF
	case Type16:
		return value >= 0xFFF8 && value <= 0xFFFF
	default:
		return value >= 0x0FFFFFF8 && value <= 0x0FFFFFFF
	}
}

func (fs *FS) markFATSectorDirty(sector uint32) {
	fs.alteredFATSectors[sector] = true
}

func (fs *FS) fatByteToSector(byteOffset int) uint32 {
	return uint32(byteOffset/int(fs.boot.BytesPerSector)) + uint32(fs.boot.ReservedSectors)
}

func (fs *FS) get16(c ClusterID) uint32 {
	off := int(c) * 2
	return uint32(fs.fatBuf[off]) | uint32(fs.fatBuf[off+1])<<8
}

func (fs *FS) set16(c ClusterID, value uint32) {
	off := int(c) * 2
	fs.fatBuf[off] = byte(value)
	fs.fatBuf[off+1] = byte(value >> 8)
	fs.markFATSectorDirty(fs.fatByteToSector(off))
}

func (fs *FS) get32(c ClusterID) uint32 {
	off := int(c) * 4
	return uint32(fs.fatBuf[off]) | uint32(fs.fatBuf[off+1])<<8 |
		uint32(fs.fatBuf[off+2])<<16 | uint32(fs.fatBuf[off+3])<<24
}

func (fs *FS) set32(c ClusterID, value uint32) {
	off := int(c) * 4
	fs.fatBuf[off] = byte(value)
	fs.fatBuf[off+1] = byte(value >> 8)
	fs.fatBuf[off+2] = byte(value >> 16)
	fs.fatBuf[off+3] = byte(value >> 24)
	fs.markFATSectorDirty(fs.fatByteToSector(off))
}

// get12 reads cluster n's 12-bit entry: base = floor(n/2)*3; the three
// bytes there hold a 24-bit little-endian value split [low 12 | high 12];
// odd n takes the high half.
func (fs *FS) get12(c ClusterID) uint32 {
	base := int(c/2) * 3
	v24 := uint32(fs.fatBuf[base]) | uint32(fs.fatBuf[base+1])<<8 | uint32(fs.fatBuf[base+2])<<16
	if c%2 == 1 {
		return (v24 >> 12) & 0xFFF
	}
	return v24 & 0xFFF
}

func (fs *FS) set12(c ClusterID, value uint32) {
	value &= 0xFFF
	base := int(c/2) * 3
	v24 := uint32(fs.fatBuf[base]) | uint32(fs.fatBuf[base+1])<<8 | uint32(fs.fatBuf[base+2])<<16

	if c%2 == 1 {
		v24 = (v24 & 0x000FFF) | (value << 12)
	} else {
		v24 = (v24 & 0xFFF000) | value
	}

	fs.fatBuf[base] = byte(v24)
	fs.fatBuf[base+1] = byte(v24 >> 8)
	fs.fatBuf[base+2] = byte(v24 >> 16)

	fs.markFATSectorDirty(fs.fatByteToSector(base))
	fs.markFATSectorDirty(fs.fatByteToSector(base + 2))
}

// --- cluster chain traversal & construction ----------------------------

// ListClusters traverses the FAT starting at start, following entries
// until a 0x00 or EOC value is reached, returning every cluster visited
// (start included). Cycle detection aborts with CorruptFilesystem if a
// cluster is revisited. start == 0 returns an empty, nil-error list (an
// empty file).
func (fs *FS) ListClusters(start ClusterID) ([]ClusterID, error) {
	if start == 0 {
		return nil, nil
	}

	visited := make(map[ClusterID]bool)
	var clusters []ClusterID

	current := start
	for {
		if visited[current] {
			return clusters, ferrors.CorruptFilesystem.WithMessagef(
				"fat: cluster chain from %d revisits cluster %d", start, current)
		}
		visited[current] = true
		clusters = append(clusters, current)

		next := fs.Get(current)
		if next == 0 || fs.isEndOfChain(next) {
			return clusters, nil
		}
		current = next
	}
}

// NewChain wraps the cluster list reachable from start into a Chain,
// optionally limited to byteLimit bytes and optionally able to grow via
// the allocator (disabled during mount and for purely-read contexts, per
// construction rule).
func (fs *FS) NewChain(start ClusterID, hasByteLimit bool, byteLimit int64, growable bool) (*chain.Chain, error) {
	clusters, err := fs.ListClusters(start)
	if err != nil {
		return nil, err
	}

	links := make([]chain.Link, len(clusters))
	for i, c := range clusters {
		links[i] = chain.NewClusterLink(fs, c)
	}

	var allocate chain.AllocateFunc
	if growable {
		allocate = fs.allocateForChain
	}

	return chain.New(links, int(fs.boot.BytesPerCluster), hasByteLimit, byteLimit, allocate), nil
}

func (fs *FS) allocateForChain(last chain.Link, count int) ([]chain.Link, error) {
	var lastCluster ClusterID
	hasLast := false
	if indexed, ok := last.(chain.IndexedLink); ok {
		lastCluster = indexed.Index()
		hasLast = true
	}

	newClusters, err := fs.allocator.Allocate(lastCluster, hasLast, count)
	if err != nil {
		return nil, err
	}

	links := make([]chain.Link, len(newClusters))
	for i, c := range newClusters {
		links[i] = chain.NewClusterLink(fs, c)
	}
	return links, nil
}

// RedefineChain retargets a chain from oldStart's current cluster list to
// newClusters: clusters dropped are freed, clusters gained are marked used,
// the freed clusters' FAT entries are zeroed, and newClusters is relinked
// start to end with an EOC sentinel.
func (fs *FS) RedefineChain(oldStart ClusterID, newClusters []ClusterID) error {
	oldClusters, err := fs.ListClusters(oldStart)
	if err != nil {
		return err
	}

	oldSet := make(map[ClusterID]bool, len(oldClusters))
	for _, c := range oldClusters {
		oldSet[c] = true
	}
	newSet := make(map[ClusterID]bool, len(newClusters))
	for _, c := range newClusters {
		newSet[c] = true
	}

	var freed, used []ClusterID
	for _, c := range oldClusters {
		if !newSet[c] {
			freed = append(freed, c)
		}
	}
	for _, c := range newClusters {
		if !oldSet[c] {
			used = append(used, c)
		}
	}

	fs.allocator.FreeClusterList(freed)
	fs.allocator.MarkUsed(used)

	for _, c := range freed {
		fs.Set(c, 0)
	}

	for i, c := range newClusters {
		if i+1 < len(newClusters) {
			fs.Set(c, newClusters[i+1])
		} else {
			fs.Set(c, fs.EndOfChain())
		}
	}

	return nil
}

// --- chain.ClusterIO ----------------------------------------------------

func (fs *FS) ReadCluster(index ClusterID) ([]byte, error) {
	sector := fs.firstSectorOfCluster(index)
	return fs.device.ReadAt(int64(sector), int(fs.boot.SectorsPerCluster))
}

func (fs *FS) WriteCluster(index ClusterID, data []byte) error {
	if fs.writable == nil {
		return ferrors.ReadOnly
	}
	sector := fs.firstSectorOfCluster(index)
	return fs.writable.WriteAt(int64(sector), data)
}

func (fs *FS) firstSectorOfCluster(index ClusterID) uint32 {
	return fs.boot.FirstDataSector + (index-2)*uint32(fs.boot.SectorsPerCluster)
}

// --- chain.FixedRegionIO (FAT12/16 fixed root directory) ----------------

func (fs *FS) rootDirStartSector() uint32 {
	return uint32(fs.boot.ReservedSectors) + uint32(fs.boot.FATCount)*fs.boot.SectorsPerFAT
}

// RegionSize is the fixed root directory's size in bytes.
func (fs *FS) RegionSize() int {
	return int(fs.boot.RootDirSectors) * int(fs.boot.BytesPerSector)
}

func (fs *FS) ReadRegion() ([]byte, error) {
	return fs.device.ReadAt(int64(fs.rootDirStartSector()), int(fs.boot.RootDirSectors))
}

func (fs *FS) WriteRegion(data []byte) error {
	if fs.writable == nil {
		return ferrors.ReadOnly
	}
	return fs.writable.WriteAt(int64(fs.rootDirStartSector()), data)
}
