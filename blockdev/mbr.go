package blockdev

import (
	"encoding/binary"

	"github.com/dargueta/fatfs/ferrors"
)

// MBRPartitionTableOffset is the byte offset of the first partition table
// entry within sector 0.
const MBRPartitionTableOffset = 0x01BE

// mbrPartitionEntrySize is the size, in bytes, of one MBR partition table
// entry.
const mbrPartitionEntrySize = 16

// MaxMBRPartitions is the number of primary partition slots an MBR has.
const MaxMBRPartitions = 4

// MBRPartition describes one entry of an MBR partition table: a 4-byte LBA
// start and a 4-byte sector count.
type MBRPartition struct {
	Bootable    bool
	Type        byte
	StartLBA    uint32
	SectorCount uint32
}

// ReadMBRPartitions parses the four primary partition entries out of a
// 512-byte (or larger) sector 0 buffer. Entries with a zero SectorCount are
// considered unused and are still returned (callers decide what to do with
// them).
func ReadMBRPartitions(sector0 []byte) ([MaxMBRPartitions]MBRPartition, error) {
	var out [MaxMBRPartitions]MBRPartition

	if len(sector0) < MBRPartitionTableOffset+MaxMBRPartitions*mbrPartitionEntrySize {
		return out, ferrors.CorruptFilesystem.WithMessage(
			"blockdev: sector 0 too short to contain an MBR partition table")
	}

	for i := 0; i < MaxMBRPartitions; i++ {
		base := MBRPartitionTableOffset + i*mbrPartitionEntrySize
		entry := sector0[base : base+mbrPartitionEntrySize]

		out[i] = MBRPartition{
			Bootable:    entry[0] == 0x80,
			Type:        entry[4],
			StartLBA:    binary.LittleEndian.Uint32(entry[8:12]),
			SectorCount: binary.LittleEndian.Uint32(entry[12:16]),
		}
	}

	return out, nil
}
