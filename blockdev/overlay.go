package blockdev

import (
	"github.com/dargueta/fatfs/ferrors"
)

// Overlay presents a writable Device atop a read-only base, recording every
// write as a byte-range delta instead of touching the base. Reads are
// satisfied from the overlay first, falling back to the base for bytes no
// delta has touched. This is a dry-run adapter: an embedder can mount with
// an Overlay, perform mutations, and inspect or discard the deltas without
// ever writing to the original image.
//
// Modeled on a loaded/dirty bitmap pair, here specialized to one sparse map
// of sector index to overridden sector bytes, since deltas are the
// exception rather than the rule for a dry-run overlay.
type Overlay struct {
	base   ReadOnlyDevice
	deltas map[int64][]byte
}

// NewOverlay wraps base. Writes accumulate in memory; base is never
// mutated.
func NewOverlay(base ReadOnlyDevice) *Overlay {
	return &Overlay{base: base, deltas: make(map[int64][]byte)}
}

func (o *Overlay) SectorSize() int   { return o.base.SectorSize() }
func (o *Overlay) NumSectors() int64 { return o.base.NumSectors() }

func (o *Overlay) ReadAt(start int64, count int) ([]byte, error) {
	if start < 0 || int64(count) < 0 || start+int64(count) > o.base.NumSectors() {
		return nil, ferrors.CorruptFilesystem.WithMessagef(
			"blockdev: overlay sector range [%d, %d) out of bounds [0, %d)",
			start, start+int64(count), o.base.NumSectors())
	}

	out := make([]byte, 0, count*o.SectorSize())
	for sector := start; sector < start+int64(count); sector++ {
		if delta, ok := o.deltas[sector]; ok {
			out = append(out, delta...)
			continue
		}

		base, err := o.base.ReadAt(sector, 1)
		if err != nil {
			return nil, err
		}
		out = append(out, base...)
	}

	return out, nil
}

func (o *Overlay) WriteAt(start int64, data []byte) error {
	sectorSize := o.SectorSize()
	if len(data)%sectorSize != 0 {
		return ferrors.InvalidArgument.WithMessagef(
			"blockdev: overlay write of %d bytes is not a multiple of sector size %d",
			len(data), sectorSize)
	}

	count := len(data) / sectorSize
	if start < 0 || start+int64(count) > o.base.NumSectors() {
		return ferrors.CorruptFilesystem.WithMessagef(
			"blockdev: overlay sector range [%d, %d) out of bounds [0, %d)",
			start, start+int64(count), o.base.NumSectors())
	}

	for i := 0; i < count; i++ {
		sector := start + int64(i)
		chunk := make([]byte, sectorSize)
		copy(chunk, data[i*sectorSize:(i+1)*sectorSize])
		o.deltas[sector] = chunk
	}

	return nil
}

// Deltas returns the sector indices this overlay has recorded writes for,
// and a copy of the written bytes, for inspection by a dry-run caller.
func (o *Overlay) Deltas() map[int64][]byte {
	out := make(map[int64][]byte, len(o.deltas))
	for sector, data := range o.deltas {
		cp := make([]byte, len(data))
		copy(cp, data)
		out[sector] = cp
	}
	return out
}

// Discard clears every recorded write, reverting the overlay to a pristine
// read-through view of the base device.
func (o *Overlay) Discard() {
	o.deltas = make(map[int64][]byte)
}
