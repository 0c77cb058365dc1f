package blockdev

import (
	"github.com/dargueta/fatfs/ferrors"
)

// Partition exposes one MBR partition of an underlying Device as a
// standalone Device, translating sector numbers by a fixed offset.
type Partition struct {
	base         ReadOnlyDevice
	writableBase Device
	startSector  int64
	numSectors   int64
}

// NewPartition wraps base, exposing only the sectors [startSector,
// startSector+numSectors) as sectors [0, numSectors) of the returned
// Device. If base does not support writes, neither does the partition.
func NewPartition(base ReadOnlyDevice, startSector, numSectors int64) (*Partition, error) {
	if startSector < 0 || numSectors <= 0 || startSector+numSectors > base.NumSectors() {
		return nil, ferrors.InvalidArgument.WithMessagef(
			"blockdev: partition [%d, %d) does not fit inside a %d-sector device",
			startSector, startSector+numSectors, base.NumSectors())
	}

	p := &Partition{base: base, startSector: startSector, numSectors: numSectors}
	if writable, ok := base.(Device); ok {
		p.writableBase = writable
	}
	return p, nil
}

// NewPartitionFromMBREntry builds a Partition from one entry of an MBR
// partition table, as read by ReadMBRPartitions.
func NewPartitionFromMBREntry(base ReadOnlyDevice, entry MBRPartition) (*Partition, error) {
	return NewPartition(base, int64(entry.StartLBA), int64(entry.SectorCount))
}

func (p *Partition) SectorSize() int   { return p.base.SectorSize() }
func (p *Partition) NumSectors() int64 { return p.numSectors }

func (p *Partition) checkRange(start int64, count int) error {
	if start < 0 || int64(count) < 0 || start+int64(count) > p.numSectors {
		return ferrors.CorruptFilesystem.WithMessagef(
			"blockdev: partition sector range [%d, %d) out of bounds [0, %d)",
			start, start+int64(count), p.numSectors)
	}
	return nil
}

func (p *Partition) ReadAt(start int64, count int) ([]byte, error) {
	if err := p.checkRange(start, count); err != nil {
		return nil, err
	}
	return p.base.ReadAt(p.startSector+start, count)
}

func (p *Partition) WriteAt(start int64, data []byte) error {
	if p.writableBase == nil {
		return ferrors.ReadOnly
	}
	count := len(data) / p.SectorSize()
	if err := p.checkRange(start, count); err != nil {
		return err
	}
	return p.writableBase.WriteAt(p.startSector+start, data)
}
