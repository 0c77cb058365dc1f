package blockdev

import (
	"io"

	"github.com/dargueta/fatfs/ferrors"
	"github.com/xaionaro-go/bytesextra"
)

// MemDevice is a Device backed by an in-memory byte slice. It's the
// workhorse for every test fixture in this module and for loading whole
// disk images read into memory ahead of time, wrapping a []byte via
// bytesextra.NewReadWriteSeeker.
type MemDevice struct {
	stream     io.ReadWriteSeeker
	sectorSize int
	numSectors int64
	readOnly   bool
}

// NewMemDevice wraps data as a Device with the given sector size. len(data)
// must be an exact multiple of sectorSize. If readOnly is true, WriteAt
// always fails with ReadOnly; the method is still present, so Writable(dev)
// reports true (NewReadOnlyMemDevice hides it).
func NewMemDevice(data []byte, sectorSize int, readOnly bool) (*MemDevice, error) {
	if sectorSize <= 0 || len(data)%sectorSize != 0 {
		return nil, ferrors.InvalidArgument.WithMessagef(
			"blockdev: data length %d is not a multiple of sector size %d",
			len(data), sectorSize)
	}

	return &MemDevice{
		stream:     bytesextra.NewReadWriteSeeker(data),
		sectorSize: sectorSize,
		numSectors: int64(len(data)) / int64(sectorSize),
		readOnly:   readOnly,
	}, nil
}

func (d *MemDevice) SectorSize() int   { return d.sectorSize }
func (d *MemDevice) NumSectors() int64 { return d.numSectors }

func (d *MemDevice) ReadAt(start int64, count int) ([]byte, error) {
	if err := d.checkBounds(start, count); err != nil {
		return nil, err
	}

	buf := make([]byte, count*d.sectorSize)
	if _, err := d.stream.Seek(start*int64(d.sectorSize), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(d.stream, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *MemDevice) WriteAt(start int64, data []byte) error {
	if d.readOnly {
		return ferrors.ReadOnly
	}
	if len(data)%d.sectorSize != 0 {
		return ferrors.InvalidArgument.WithMessagef(
			"blockdev: write of %d bytes is not a multiple of sector size %d",
			len(data), d.sectorSize)
	}
	if err := d.checkBounds(start, len(data)/d.sectorSize); err != nil {
		return err
	}

	if _, err := d.stream.Seek(start*int64(d.sectorSize), io.SeekStart); err != nil {
		return err
	}
	_, err := d.stream.Write(data)
	return err
}

func (d *MemDevice) checkBounds(start int64, count int) error {
	if start < 0 || count < 0 || start+int64(count) > d.numSectors {
		return ferrors.CorruptFilesystem.WithMessagef(
			"blockdev: sector range [%d, %d) out of bounds [0, %d)",
			start, start+int64(count), d.numSectors)
	}
	return nil
}

// readOnlyMem wraps a MemDevice but does not embed it, so WriteAt is not
// promoted into its method set and a type assertion to Device fails, the
// way a genuinely read-only driver should behave (as opposed to one that
// merely errors on write).
type readOnlyMem struct {
	dev *MemDevice
}

func (r readOnlyMem) SectorSize() int   { return r.dev.SectorSize() }
func (r readOnlyMem) NumSectors() int64 { return r.dev.NumSectors() }
func (r readOnlyMem) ReadAt(start int64, count int) ([]byte, error) {
	return r.dev.ReadAt(start, count)
}

// NewReadOnlyMemDevice behaves like NewMemDevice(data, sectorSize, true) but
// additionally hides WriteAt from the returned value's method set, so
// Writable reports false via a missing method rather than a runtime error.
func NewReadOnlyMemDevice(data []byte, sectorSize int) (ReadOnlyDevice, error) {
	dev, err := NewMemDevice(data, sectorSize, true)
	if err != nil {
		return nil, err
	}
	return readOnlyMem{dev}, nil
}
