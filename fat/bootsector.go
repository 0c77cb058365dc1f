package fat

import (
	"strings"

	"github.com/dargueta/fatfs/ferrors"
	"github.com/dargueta/fatfs/internal/bincodec"
)

// Type identifies which of the three FAT table widths a mounted volume
// uses.
type Type int

const (
	Type12 Type = iota
	Type16
	Type32
)

func (t Type) String() string {
	switch t {
	case Type12:
		return "FAT12"
	case Type16:
		return "FAT16"
	case Type32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// bootSectorCommonFormat decodes the DOS 3.31 BIOS Parameter Block, the
// portion common to all three FAT widths: jump instruction, OEM name,
// bytes/sector, sectors/cluster, reserved sectors, FAT count, root entry
// count, 16-bit total sectors, media byte, 16-bit sectors/FAT, sectors per
// track, heads, hidden sectors, 32-bit total sectors.
const bootSectorCommonFormat = "<3s8sHBHBHHBHHHII"

// BootSector is the fully decoded, version-resolved boot sector, with the
// derived geometry computed during mount.
type BootSector struct {
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8
	RootEntryCount    uint16
	Media             uint8
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors      uint32

	SectorsPerFAT uint32
	FATType       Type

	// FAT32 extension fields, zero on FAT12/16.
	RootCluster   uint32
	FSInfoSector  uint16
	BackupBootSec uint16

	VolumeLabel string
	FSTypeLabel string

	RootDirSectors  uint32
	BytesPerCluster uint32
	FirstDataSector uint32
	DataSectors     uint32
	TotalClusters   uint32
	MaxCluster      uint32
	DirentsPerCluster int

	// FreeClusterHint/NextFreeHint come from the FS Information Sector on
	// FAT32; both are 0xFFFFFFFF (meaning "unknown") if that sector's
	// signatures don't validate.
	FreeClusterHint uint32
	NextFreeHint    uint32
}

const maxClusterCap = 0x0FFF_FFF7

// decodeCommon unpacks the shared 36-byte BPB starting at offset 0 (after
// the leading 3-byte jump and 8-byte OEM fields folded into the format
// itself) plus the sectorsPerFAT16 placeholder at offset 22 and
// totalSectors32 at offset 32.
func decodeCommon(sector []byte) (bs *BootSector, sectorsPerFAT16 uint16, totalSectors16 uint16, totalSectors32 uint32, err error) {
	fields, _, err := bincodec.Unpack(bootSectorCommonFormat, sector, 0)
	if err != nil {
		return nil, 0, 0, 0, err
	}

	bs = &BootSector{
		OEMName:           strings.TrimRight(string(fields[1].Bytes()), " \x00"),
		BytesPerSector:    uint16(fields[2].Uint()),
		SectorsPerCluster: uint8(fields[3].Uint()),
		ReservedSectors:   uint16(fields[4].Uint()),
		FATCount:          uint8(fields[5].Uint()),
		RootEntryCount:    uint16(fields[6].Uint()),
		Media:             uint8(fields[8].Uint()),
		SectorsPerTrack:   uint16(fields[10].Uint()),
		NumHeads:          uint16(fields[11].Uint()),
		HiddenSectors:     uint32(fields[12].Uint()),
	}

	totalSectors16 = uint16(fields[7].Uint())
	sectorsPerFAT16 = uint16(fields[9].Uint())
	totalSectors32 = uint32(fields[13].Uint())

	return bs, sectorsPerFAT16, totalSectors16, totalSectors32, nil
}

// fat32ExtFormat decodes the FAT32-only extension starting right after the
// common BPB (sector offset 36): 32-bit sectors/FAT, ext flags, FS version,
// root cluster, FS info sector, backup boot sector, 12 reserved bytes,
// drive number, reserved1, boot signature, volume ID, 11-byte volume label,
// 8-byte FS type string.
const fat32ExtFormat = "<IHHIHH12sBBBI11s8s"

func decodeFAT32Ext(sector []byte, bs *BootSector) error {
	fields, _, err := bincodec.Unpack(fat32ExtFormat, sector, 36)
	if err != nil {
		return err
	}

	bs.SectorsPerFAT = uint32(fields[0].Uint())
	bs.RootCluster = uint32(fields[3].Uint())
	bs.FSInfoSector = uint16(fields[4].Uint())
	bs.BackupBootSec = uint16(fields[5].Uint())

	bootSig := byte(fields[9].Uint())
	if bootSig == 0x29 {
		bs.VolumeLabel = strings.TrimRight(string(fields[11].Bytes()), " ")
		bs.FSTypeLabel = strings.TrimRight(string(fields[12].Bytes()), " ")
	} else {
		// 0x28 means only the volume ID is meaningful, no label/fstype;
		// anything else is an unrecognized signature. Both synthesize the
		// same defaults.
		bs.VolumeLabel = "NO NAME    "
		bs.FSTypeLabel = "FAT16   "
	}

	return nil
}

// fat1216ExtFormat decodes the FAT12/16 extension, same offset and shape as
// the FAT32 one but without the FAT32-only fields (six fields plus the 12
// reserved bytes) that precede the drive number: drive number, reserved1,
// boot signature, volume ID, 11-byte label, 8-byte type.
const fat1216ExtFormat = "<BBBI11s8s"

func decodeFAT1216Ext(sector []byte, bs *BootSector) {
	fields, _, err := bincodec.Unpack(fat1216ExtFormat, sector, 36)
	if err != nil {
		// A short or malformed extended section is not fatal for FAT12/16:
		// Synthesize defaults and continue.
		bs.VolumeLabel = "NO NAME    "
		bs.FSTypeLabel = "FAT16   "
		return
	}

	bootSig := byte(fields[2].Uint())
	if bootSig == 0x29 {
		bs.VolumeLabel = strings.TrimRight(string(fields[4].Bytes()), " ")
		bs.FSTypeLabel = strings.TrimRight(string(fields[5].Bytes()), " ")
	} else {
		// 0x28 means only the volume ID is meaningful, no label/fstype;
		// anything else is an unrecognized signature. Both synthesize the
		// same defaults.
		bs.VolumeLabel = "NO NAME    "
		bs.FSTypeLabel = "FAT16   "
	}
}

// fsInfoFormat decodes the FAT32 FS Information Sector: lead signature, 480
// reserved bytes, struct signature, free cluster count, next free cluster
// hint, 12 reserved bytes, trail signature.
const fsInfoFormat = "<I480sIII12sI"

const (
	fsInfoLeadSignature   = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000
)

// decodeFSInfo parses the FS Information Sector. If any of its three
// signatures fail to validate, the free-space hints degrade to "unknown"
// (0xFFFFFFFF) rather than failing the mount.
func decodeFSInfo(sector []byte) (freeHint, nextFreeHint uint32) {
	fields, _, err := bincodec.Unpack(fsInfoFormat, sector, 0)
	if err != nil {
		return 0xFFFFFFFF, 0xFFFFFFFF
	}

	lead := uint32(fields[0].Uint())
	structSig := uint32(fields[2].Uint())
	trailSig := uint32(fields[6].Uint())

	if lead != fsInfoLeadSignature || structSig != fsInfoStructSignature || trailSig != fsInfoTrailSignature {
		return 0xFFFFFFFF, 0xFFFFFFFF
	}

	return uint32(fields[3].Uint()), uint32(fields[4].Uint())
}

// ParseBootSector decodes sector0 (and, for FAT32, the FS Information
// Sector identified within it) into a BootSector, performing the
// validation and geometry derivation for all three FAT widths.
// forcedType, when non-nil, overrides the FAT12 vs FAT16 auto-detection
// (auto-detection can only tell FAT32 apart from {FAT12, FAT16} by whether
// sectorsPerFAT16 is zero).
func ParseBootSector(sector0 []byte, readFSInfo func(sector uint32) ([]byte, error), forcedType *Type) (*BootSector, error) {
	if len(sector0) < 90 {
		return nil, ferrors.CorruptFilesystem.WithMessage(
			"fat: boot sector shorter than the minimum BPB + extension size")
	}

	bs, sectorsPerFAT16, totalSectors16, totalSectors32, err := decodeCommon(sector0)
	if err != nil {
		return nil, err
	}

	if bs.BytesPerSector < 128 || bs.BytesPerSector%128 != 0 {
		return nil, ferrors.CorruptFilesystem.WithMessagef(
			"fat: bytes_per_sector %d is not a multiple of 128", bs.BytesPerSector)
	}
	if bs.SectorsPerCluster == 0 || (bs.SectorsPerCluster&(bs.SectorsPerCluster-1)) != 0 {
		return nil, ferrors.CorruptFilesystem.WithMessagef(
			"fat: sectors_per_cluster %d is not a power of two", bs.SectorsPerCluster)
	}

	if sectorsPerFAT16 == 0 {
		bs.FATType = Type32
		if err := decodeFAT32Ext(sector0, bs); err != nil {
			return nil, err
		}
	} else {
		bs.FATType = Type16
		bs.SectorsPerFAT = uint32(sectorsPerFAT16)
		decodeFAT1216Ext(sector0, bs)
	}

	if forcedType != nil {
		bs.FATType = *forcedType
	}

	totalSectors := uint32(totalSectors16)
	if totalSectors16 == 0 {
		totalSectors = totalSectors32
	}
	bs.TotalSectors = totalSectors

	bs.RootDirSectors = (uint32(bs.RootEntryCount)*32 + uint32(bs.BytesPerSector) - 1) / uint32(bs.BytesPerSector)
	if bs.FATType == Type32 && bs.RootDirSectors != 0 {
		return nil, ferrors.CorruptFilesystem.WithMessage(
			"fat: FAT32 volume has a nonzero root directory sector count")
	}

	totalFATSectors := uint32(bs.FATCount) * bs.SectorsPerFAT
	bs.DataSectors = totalSectors - (uint32(bs.ReservedSectors) + totalFATSectors + bs.RootDirSectors)
	bs.FirstDataSector = uint32(bs.ReservedSectors) + totalFATSectors + bs.RootDirSectors
	bs.BytesPerCluster = uint32(bs.BytesPerSector) * uint32(bs.SectorsPerCluster)
	bs.DirentsPerCluster = int(bs.BytesPerCluster) / DirentSize

	bs.TotalClusters = bs.DataSectors / uint32(bs.SectorsPerCluster)
	bs.MaxCluster = bs.TotalClusters + 1
	if bs.MaxCluster > maxClusterCap {
		bs.MaxCluster = maxClusterCap
	}

	bs.FreeClusterHint = 0xFFFFFFFF
	bs.NextFreeHint = 0xFFFFFFFF
	if bs.FATType == Type32 && readFSInfo != nil {
		fsInfoSector := bs.FSInfoSector
		if fsInfoSector == 0 {
			fsInfoSector = 1
		}
		if data, err := readFSInfo(uint32(fsInfoSector)); err == nil {
			bs.FreeClusterHint, bs.NextFreeHint = decodeFSInfo(data)
		}
	}

	return bs, nil
}
