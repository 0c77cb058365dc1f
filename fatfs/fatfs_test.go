package fatfs_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatfs/blockdev"
	"github.com/dargueta/fatfs/fat"
	"github.com/dargueta/fatfs/fatfs"
)

const (
	bytesPerSector    = 512
	sectorsPerCluster = 1
	reservedSectors   = 1
	fatCount          = 1
	sectorsPerFAT     = 1
	rootEntryCount    = 16
	dataClusters      = 8
)

func putASCII(b []byte, s string, pad byte) {
	for i := range b {
		if i < len(s) {
			b[i] = s[i]
		} else {
			b[i] = pad
		}
	}
}

// bootSector builds a minimal FAT16 boot sector matching the geometry
// constants above.
func bootSector() []byte {
	totalSectors := reservedSectors + fatCount*sectorsPerFAT +
		(rootEntryCount*32)/bytesPerSector + dataClusters*sectorsPerCluster

	sector := make([]byte, bytesPerSector)
	putASCII(sector[3:11], "MSDOS5.0", ' ')
	binary.LittleEndian.PutUint16(sector[11:13], bytesPerSector)
	sector[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(sector[14:16], reservedSectors)
	sector[16] = fatCount
	binary.LittleEndian.PutUint16(sector[17:19], rootEntryCount)
	binary.LittleEndian.PutUint16(sector[19:21], uint16(totalSectors))
	sector[21] = 0xF8
	binary.LittleEndian.PutUint16(sector[22:24], sectorsPerFAT)

	sector[36] = 0x80
	sector[38] = 0x29
	binary.LittleEndian.PutUint32(sector[39:43], 0xC0FFEE)
	putASCII(sector[43:54], "TESTVOL", ' ')
	putASCII(sector[54:62], "FAT16", ' ')

	sector[510] = 0x55
	sector[511] = 0xAA
	return sector
}

func encodeFAT16(entries []uint32) []byte {
	table := make([]byte, sectorsPerFAT*bytesPerSector)
	for i, v := range entries {
		binary.LittleEndian.PutUint16(table[i*2:], uint16(v))
	}
	return table
}

func direntBytes(name, ext string, attr uint8, cluster uint32, size uint32) [32]byte {
	var raw fat.RawDirent
	putASCII(raw.Name[:], name, ' ')
	putASCII(raw.Extension[:], ext, ' ')
	raw.AttributeFlags = attr
	raw.FirstClusterHigh = uint16(cluster >> 16)
	raw.FirstClusterLow = uint16(cluster & 0xFFFF)
	raw.FileSize = size
	return raw.Pack()
}

// buildImage assembles a one-FAT-copy FAT16 image with a root directory
// containing HELLO.TXT (cluster 2) and a SUB subdirectory (cluster 3)
// holding A.TXT (cluster 4). Clusters 5-9 are free.
func buildImage() []byte {
	fatEntries := make([]uint32, dataClusters+2)
	fatEntries[0] = 0xFFF8
	fatEntries[1] = 0xFFFF
	fatEntries[2] = 0xFFFF // HELLO.TXT, single cluster
	fatEntries[3] = 0xFFFF // SUB, single cluster
	fatEntries[4] = 0xFFFF // SUB/A.TXT, single cluster

	rootDir := make([]byte, rootEntryCount*32)
	helloEntry := direntBytes("HELLO", "TXT", 0, 2, 5)
	subEntry := direntBytes("SUB", "", fat.AttrDirectory, 3, 0)
	copy(rootDir[0:32], helloEntry[:])
	copy(rootDir[32:64], subEntry[:])

	subDir := make([]byte, bytesPerSector)
	aEntry := direntBytes("A", "TXT", 0, 4, 3)
	copy(subDir[0:32], aEntry[:])

	rootDirSectors := (rootEntryCount * 32) / bytesPerSector
	fatRegionStart := reservedSectors * bytesPerSector
	rootDirStart := fatRegionStart + fatCount*sectorsPerFAT*bytesPerSector
	dataStart := rootDirStart + rootDirSectors*bytesPerSector

	totalSectors := reservedSectors + fatCount*sectorsPerFAT + rootDirSectors +
		dataClusters*sectorsPerCluster
	image := make([]byte, totalSectors*bytesPerSector)

	copy(image[0:], bootSector())
	copy(image[fatRegionStart:], encodeFAT16(fatEntries))
	copy(image[rootDirStart:], rootDir)

	clusterOffset := func(cluster uint32) int {
		return dataStart + int(cluster-2)*sectorsPerCluster*bytesPerSector
	}
	copy(image[clusterOffset(2):], []byte("hello"))
	copy(image[clusterOffset(3):], subDir)
	copy(image[clusterOffset(4):], []byte("hi!"))

	return image
}

func mountTestImage(t *testing.T) *fatfs.FileSystem {
	t.Helper()
	dev, err := blockdev.NewMemDevice(buildImage(), bytesPerSector, false)
	require.NoError(t, err)

	fs, err := fatfs.Mount(dev, fat.MountOptions{})
	require.NoError(t, err)
	return fs
}

func TestOpenResolvesNestedPathAndNormalizesIt(t *testing.T) {
	fs := mountTestImage(t)

	for _, path := range []string{"sub/a.txt", "/sub/a.txt", "//sub//a.txt", "/./sub/a.txt"} {
		handle, err := fs.Open(path, false)
		require.NoErrorf(t, err, "path %q", path)
		require.NotNilf(t, handle, "path %q", path)

		data, err := handle.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, "hi!", string(data))
	}
}

func TestOpenReturnsNilNilOnMissingPath(t *testing.T) {
	fs := mountTestImage(t)

	handle, err := fs.Open("/does/not/exist.txt", false)
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestCreateReturnsNilNilWhenPathAlreadyExists(t *testing.T) {
	dev, err := blockdev.NewMemDevice(buildImage(), bytesPerSector, false)
	require.NoError(t, err)
	fs, err := fatfs.Mount(dev, fat.MountOptions{})
	require.NoError(t, err)

	handle, err := fs.Create("/hello.txt")
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestListDirReturnsNilNilForMissingDirectory(t *testing.T) {
	fs := mountTestImage(t)

	names, err := fs.ListDir("/nope")
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestListDirNormalizesRelativeAndDotPaths(t *testing.T) {
	fs := mountTestImage(t)

	names, err := fs.ListDir("sub/..")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"HELLO.TXT", "SUB/"}, names)
}

func TestGetSizeOfReturnsZeroNilForMissingPath(t *testing.T) {
	fs := mountTestImage(t)

	size, err := fs.GetSizeOf("/ghost.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestGetSizeOfResolvesExistingFile(t *testing.T) {
	fs := mountTestImage(t)

	size, err := fs.GetSizeOf("/HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func TestCoreExposesUnderlyingFS(t *testing.T) {
	fs := mountTestImage(t)
	assert.Equal(t, fat.Type16, fs.Core().BootSector().FATType)
}
