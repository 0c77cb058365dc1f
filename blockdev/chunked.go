package blockdev

import "github.com/dargueta/fatfs/ferrors"

// Chunked wraps a Device whose underlying transport has a maximum request
// size (e.g. a network block device), splitting any request larger than
// maxSectorsPerRequest into multiple calls to the base device. It sits in
// front of any Device as a reusable adapter for oversized-request chunking.
type Chunked struct {
	base                 ReadOnlyDevice
	writableBase         Device
	maxSectorsPerRequest int
}

// NewChunked wraps base so that no single ReadAt/WriteAt call against it
// requests more than maxSectorsPerRequest sectors.
func NewChunked(base ReadOnlyDevice, maxSectorsPerRequest int) *Chunked {
	if maxSectorsPerRequest <= 0 {
		maxSectorsPerRequest = 1
	}
	c := &Chunked{base: base, maxSectorsPerRequest: maxSectorsPerRequest}
	if writable, ok := base.(Device); ok {
		c.writableBase = writable
	}
	return c
}

func (c *Chunked) SectorSize() int   { return c.base.SectorSize() }
func (c *Chunked) NumSectors() int64 { return c.base.NumSectors() }

func (c *Chunked) ReadAt(start int64, count int) ([]byte, error) {
	out := make([]byte, 0, count*c.SectorSize())

	for remaining := count; remaining > 0; {
		n := remaining
		if n > c.maxSectorsPerRequest {
			n = c.maxSectorsPerRequest
		}

		chunk, err := c.base.ReadAt(start, n)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)

		start += int64(n)
		remaining -= n
	}

	return out, nil
}

func (c *Chunked) WriteAt(start int64, data []byte) error {
	if c.writableBase == nil {
		return ferrors.ReadOnly
	}

	sectorSize := c.SectorSize()
	maxBytes := c.maxSectorsPerRequest * sectorSize

	for len(data) > 0 {
		n := len(data)
		if n > maxBytes {
			n = maxBytes
		}

		if err := c.writableBase.WriteAt(start, data[:n]); err != nil {
			return err
		}

		start += int64(n / sectorSize)
		data = data[n:]
	}

	return nil
}
