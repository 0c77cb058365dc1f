package chain

// FixedRegionIO is the narrow contract a fixedLink needs to read and write
// a whole fixed byte region directly (not through the FAT), used for the
// FAT12/16 fixed-location root directory.
type FixedRegionIO interface {
	ReadRegion() ([]byte, error)
	WriteRegion(data []byte) error
	RegionSize() int
}

// fixedLink is a single-link Link backed by a direct read/write of a fixed
// byte region, rather than a cluster. It deliberately does not implement
// IndexedLink: the FAT12/16 fixed root cannot grow, so there's no locality
// hint to offer an allocator, and growth past its one link is always a
// NoSpace error surfaced by Chain.grow.
type fixedLink struct {
	io FixedRegionIO
}

// NewFixedLink wraps a fixed region as a one-link Chain body.
func NewFixedLink(io FixedRegionIO) Link {
	return &fixedLink{io: io}
}

func (l *fixedLink) Read() ([]byte, error) {
	return l.io.ReadRegion()
}

func (l *fixedLink) Write(buf []byte) error {
	size := l.io.RegionSize()
	if len(buf) < size {
		padded := make([]byte, size)
		copy(padded, buf)
		buf = padded
	}
	return l.io.WriteRegion(buf)
}
