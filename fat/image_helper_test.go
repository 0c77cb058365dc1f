package fat

import (
	"encoding/binary"
	"testing"
	"time"
)

// Synthetic disk images for end-to-end mount tests: hand-assembled byte
// buffers covering a boot sector, one or more FAT copies, an optional
// fixed root directory region, and a data cluster area. Nothing here
// reads an existing fixture; every byte is placed at the offset
// ParseBootSector and the FAT accessors expect.

func putASCII(b []byte, s string, pad byte) {
	for i := range b {
		if i < len(s) {
			b[i] = s[i]
		} else {
			b[i] = pad
		}
	}
}

// fat1216BootSector builds a single boot sector for a FAT12 or FAT16
// volume: the common 36-byte BPB plus the FAT12/16 extension at offset 36.
func fat1216BootSector(sectorSize int, sectorsPerCluster uint8, reservedSectors uint16,
	fatCount uint8, sectorsPerFAT16 uint16, rootEntryCount uint16, totalSectors uint32) []byte {

	sector := make([]byte, sectorSize)
	putASCII(sector[3:11], "FATFSGEN", ' ')
	binary.LittleEndian.PutUint16(sector[11:13], uint16(sectorSize))
	sector[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(sector[14:16], reservedSectors)
	sector[16] = fatCount
	binary.LittleEndian.PutUint16(sector[17:19], rootEntryCount)
	if totalSectors <= 0xFFFF {
		binary.LittleEndian.PutUint16(sector[19:21], uint16(totalSectors))
	}
	sector[21] = 0xF8
	binary.LittleEndian.PutUint16(sector[22:24], sectorsPerFAT16)
	binary.LittleEndian.PutUint32(sector[32:36], totalSectors)

	sector[36] = 0x80 // drive number
	sector[38] = 0x29 // boot signature: volume ID/label/fstype follow
	binary.LittleEndian.PutUint32(sector[39:43], 0x12345678)
	putASCII(sector[43:54], "NO NAME", ' ')
	putASCII(sector[54:62], "FAT16", ' ')

	return sector
}

// fat32BootSector builds a single boot sector for a FAT32 volume: the
// common 36-byte BPB plus the FAT32 extension at offset 36.
func fat32BootSector(sectorSize int, sectorsPerCluster uint8, reservedSectors uint16,
	fatCount uint8, sectorsPerFAT32 uint32, rootCluster uint32, fsInfoSector uint16,
	totalSectors uint32) []byte {

	sector := make([]byte, sectorSize)
	putASCII(sector[3:11], "FATFSGEN", ' ')
	binary.LittleEndian.PutUint16(sector[11:13], uint16(sectorSize))
	sector[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(sector[14:16], reservedSectors)
	sector[16] = fatCount
	// rootEntryCount stays 0: FAT32 has no fixed root region.
	sector[21] = 0xF8
	// sectorsPerFAT16 stays 0: this is what ParseBootSector uses to pick
	// the FAT32 decode path.
	binary.LittleEndian.PutUint32(sector[32:36], totalSectors)

	binary.LittleEndian.PutUint32(sector[36:40], sectorsPerFAT32)
	binary.LittleEndian.PutUint32(sector[44:48], rootCluster)
	binary.LittleEndian.PutUint16(sector[48:50], fsInfoSector)
	binary.LittleEndian.PutUint16(sector[50:52], 6) // backup boot sector
	sector[64] = 0x80
	sector[66] = 0x29
	binary.LittleEndian.PutUint32(sector[67:71], 0x12345678)
	putASCII(sector[71:82], "NO NAME", ' ')
	putASCII(sector[82:90], "FAT32", ' ')

	return sector
}

// fat32FSInfoSector builds a valid FS Information Sector advertising
// freeHint/nextFreeHint.
func fat32FSInfoSector(sectorSize int, freeHint, nextFreeHint uint32) []byte {
	sector := make([]byte, sectorSize)
	binary.LittleEndian.PutUint32(sector[0:4], 0x41615252)
	binary.LittleEndian.PutUint32(sector[484:488], 0x61417272)
	binary.LittleEndian.PutUint32(sector[488:492], freeHint)
	binary.LittleEndian.PutUint32(sector[492:496], nextFreeHint)
	binary.LittleEndian.PutUint32(sector[508:512], 0xAA550000)
	return sector
}

// encodeFAT16Table packs entries (index i == cluster i's raw value) into a
// sectorsPerFAT*bytesPerSector buffer, 2 bytes per entry.
func encodeFAT16Table(entries []uint32, sectorsPerFAT, bytesPerSector int) []byte {
	buf := make([]byte, sectorsPerFAT*bytesPerSector)
	for i, v := range entries {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// encodeFAT32Table packs entries into a sectorsPerFAT*bytesPerSector
// buffer, 4 bytes per entry.
func encodeFAT32Table(entries []uint32, sectorsPerFAT, bytesPerSector int) []byte {
	buf := make([]byte, sectorsPerFAT*bytesPerSector)
	for i, v := range entries {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// encodeFAT12Table packs entries into a sectorsPerFAT*bytesPerSector
// buffer using the packed 12-bit-pair layout get12/set12 expect.
func encodeFAT12Table(entries []uint32, sectorsPerFAT, bytesPerSector int) []byte {
	buf := make([]byte, sectorsPerFAT*bytesPerSector)
	for c, v := range entries {
		v &= 0xFFF
		base := (c / 2) * 3
		v24 := uint32(buf[base]) | uint32(buf[base+1])<<8 | uint32(buf[base+2])<<16
		if c%2 == 1 {
			v24 = (v24 & 0x000FFF) | (v << 12)
		} else {
			v24 = (v24 & 0xFFF000) | v
		}
		buf[base] = byte(v24)
		buf[base+1] = byte(v24 >> 8)
		buf[base+2] = byte(v24 >> 16)
	}
	return buf
}

// packEntryBytes builds a 32-byte directory record for name at the given
// cluster/size/attr, stamped with ts, via the same newDirentForCreate path
// Create and Mkdir use.
func packEntryBytes(t *testing.T, name string, attr uint8, cluster uint32, size uint32, ts time.Time) []byte {
	t.Helper()
	d, err := newDirentForCreate(name, attr, ts)
	if err != nil {
		t.Fatalf("packEntryBytes(%q): %s", name, err)
	}
	d.setFirstCluster(cluster)
	d.Raw.FileSize = size
	raw := d.Raw.Pack()
	return raw[:]
}

// fat1216ImageParams describes the geometry of a synthetic FAT12/16 image.
type fat1216ImageParams struct {
	bytesPerSector    int
	sectorsPerCluster uint8
	reservedSectors   uint16
	fatCount          uint8
	sectorsPerFAT     uint16
	rootEntryCount    uint16
	dataClusters      int // number of addressable data clusters, starting at 2
}

// buildFAT1216Image assembles a full FAT12/16 disk image: boot sector,
// fatCount identical copies of fatEntries, the root directory region
// (rootDirBytes, zero-padded to its sector count), and a data region built
// from clusterData (cluster number -> cluster-sized content; clusters
// absent from the map are left zero-filled).
func buildFAT1216Image(p fat1216ImageParams, fatEntries []uint32, rootDirBytes []byte, clusterData map[uint32][]byte) []byte {
	rootDirSectors := (int(p.rootEntryCount)*DirentSize + p.bytesPerSector - 1) / p.bytesPerSector
	totalSectors := int(p.reservedSectors) + int(p.fatCount)*int(p.sectorsPerFAT) +
		rootDirSectors + p.dataClusters*int(p.sectorsPerCluster)

	image := make([]byte, totalSectors*p.bytesPerSector)

	boot := fat1216BootSector(p.bytesPerSector, p.sectorsPerCluster, p.reservedSectors,
		p.fatCount, p.sectorsPerFAT, p.rootEntryCount, uint32(totalSectors))
	copy(image, boot)

	fatTable := encodeFAT16Table(fatEntries, int(p.sectorsPerFAT), p.bytesPerSector)

	fatRegionStart := int(p.reservedSectors) * p.bytesPerSector
	for i := 0; i < int(p.fatCount); i++ {
		off := fatRegionStart + i*int(p.sectorsPerFAT)*p.bytesPerSector
		copy(image[off:], fatTable)
	}

	rootRegionStart := fatRegionStart + int(p.fatCount)*int(p.sectorsPerFAT)*p.bytesPerSector
	copy(image[rootRegionStart:], rootDirBytes)

	dataRegionStart := rootRegionStart + rootDirSectors*p.bytesPerSector
	clusterSize := int(p.sectorsPerCluster) * p.bytesPerSector
	for cluster, data := range clusterData {
		off := dataRegionStart + int(cluster-2)*clusterSize
		copy(image[off:], data)
	}

	return image
}

// buildFAT12Image is buildFAT1216Image for a volume explicitly mounted
// with ForceFATType pointing at Type12 (auto-detection can't tell FAT12
// and FAT16 apart on its own).
func buildFAT12Image(p fat1216ImageParams, fatEntries []uint32, rootDirBytes []byte, clusterData map[uint32][]byte) []byte {
	rootDirSectors := (int(p.rootEntryCount)*DirentSize + p.bytesPerSector - 1) / p.bytesPerSector
	totalSectors := int(p.reservedSectors) + int(p.fatCount)*int(p.sectorsPerFAT) +
		rootDirSectors + p.dataClusters*int(p.sectorsPerCluster)

	image := make([]byte, totalSectors*p.bytesPerSector)

	boot := fat1216BootSector(p.bytesPerSector, p.sectorsPerCluster, p.reservedSectors,
		p.fatCount, p.sectorsPerFAT, p.rootEntryCount, uint32(totalSectors))
	copy(image, boot)

	fatTable := encodeFAT12Table(fatEntries, int(p.sectorsPerFAT), p.bytesPerSector)

	fatRegionStart := int(p.reservedSectors) * p.bytesPerSector
	for i := 0; i < int(p.fatCount); i++ {
		off := fatRegionStart + i*int(p.sectorsPerFAT)*p.bytesPerSector
		copy(image[off:], fatTable)
	}

	rootRegionStart := fatRegionStart + int(p.fatCount)*int(p.sectorsPerFAT)*p.bytesPerSector
	copy(image[rootRegionStart:], rootDirBytes)

	dataRegionStart := rootRegionStart + rootDirSectors*p.bytesPerSector
	clusterSize := int(p.sectorsPerCluster) * p.bytesPerSector
	for cluster, data := range clusterData {
		off := dataRegionStart + int(cluster-2)*clusterSize
		copy(image[off:], data)
	}

	return image
}

// fat32ImageParams describes the geometry of a synthetic FAT32 image.
type fat32ImageParams struct {
	bytesPerSector    int
	sectorsPerCluster uint8
	reservedSectors   uint16
	fatCount          uint8
	sectorsPerFAT     uint32
	rootCluster       uint32
	dataClusters      int
}

// buildFAT32Image assembles a full FAT32 disk image: boot sector, FS
// Information Sector at reserved sector 1, fatCount identical FAT copies,
// and a data region (the root directory lives in it, like any other
// directory, at rootCluster).
func buildFAT32Image(p fat32ImageParams, fatEntries []uint32, clusterData map[uint32][]byte) []byte {
	totalSectors := int(p.reservedSectors) + int(p.fatCount)*int(p.sectorsPerFAT) +
		p.dataClusters*int(p.sectorsPerCluster)

	image := make([]byte, totalSectors*p.bytesPerSector)

	boot := fat32BootSector(p.bytesPerSector, p.sectorsPerCluster, p.reservedSectors,
		p.fatCount, p.sectorsPerFAT, p.rootCluster, 1, uint32(totalSectors))
	copy(image, boot)

	fsInfo := fat32FSInfoSector(p.bytesPerSector, 0xFFFFFFFF, 0xFFFFFFFF)
	copy(image[p.bytesPerSector:], fsInfo)

	fatTable := encodeFAT32Table(fatEntries, int(p.sectorsPerFAT), p.bytesPerSector)
	fatRegionStart := int(p.reservedSectors) * p.bytesPerSector
	for i := 0; i < int(p.fatCount); i++ {
		off := fatRegionStart + i*int(p.sectorsPerFAT)*p.bytesPerSector
		copy(image[off:], fatTable)
	}

	dataRegionStart := fatRegionStart + int(p.fatCount)*int(p.sectorsPerFAT)*p.bytesPerSector
	clusterSize := int(p.sectorsPerCluster) * p.bytesPerSector
	for cluster, data := range clusterData {
		off := dataRegionStart + int(cluster-2)*clusterSize
		copy(image[off:], data)
	}

	return image
}

// fillPattern returns n deterministic bytes, value i is i%256.
func fillPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}
