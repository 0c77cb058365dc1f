// Package chain implements the cursor-based byte-stream abstraction over a
// sequence of equal-length links, and the cluster-backed Link
// implementation used for FAT file and directory bodies.
//
// Presents a Read/Write/Seek/Flush surface over a sequence of
// independently sourced links (FAT clusters, or the fixed-size
// root-directory region), with lazy single-link write coalescing and an
// allocator growth hook.
package chain

import (
	"github.com/boljen/go-bitmap"

	"github.com/dargueta/fatfs/ferrors"
)

// Link is one fixed-size, independently addressable segment of a Chain: one
// FAT cluster, or (for the FAT12/16 fixed root) the whole root region.
type Link interface {
	// Read returns this link's full contents, always linkSize bytes.
	Read() ([]byte, error)
	// Write overwrites this link's full contents. buf may be shorter than
	// linkSize; implementations zero-pad rather than truncate.
	Write(buf []byte) error
}

// IndexedLink is a Link that knows its own position in whatever address
// space the allocator works in (a cluster number), so an AllocateFunc can
// use it as a locality hint. Cluster links satisfy this; the synthetic
// single-link root-region Link does not, since there's nothing to grow.
type IndexedLink interface {
	Link
	Index() uint32
}

// AllocateFunc requests count more links to extend a chain past its current
// length. lastLink is the chain's current final link (nil for an empty
// chain), used as a locality hint. Returning fewer links than requested, or
// an error, is treated as an inability to satisfy the request in full;
// Chain loops until growth is satisfied, so a partial return here is
// legitimate as long as some progress was made.
type AllocateFunc func(lastLink Link, count int) ([]Link, error)

// Chain is a byte-addressable cursor over a sequence of Links.
type Chain struct {
	links    []Link
	linkSize int

	totalLength int64
	cursor      int64

	allocate AllocateFunc

	pendingValid bool
	pendingIndex int
	pendingBuf   []byte
	pendingNew   bitmap.Bitmap
}

// SeekWhence mirrors io.Seek's origin constants without importing io just
// for three integers chains large swaths of this package never otherwise
// need.
type SeekWhence int

const (
	SeekStart   SeekWhence = 0
	SeekCurrent SeekWhence = 1
	SeekEnd     SeekWhence = 2
)

// New builds a Chain over links, each linkSize bytes. If hasByteLimit,
// totalLength starts at byteLimit (for a file whose size is smaller than
// its cluster allocation); otherwise it starts at len(links)*linkSize.
// allocate may be nil, in which case writes past the chain's current
// length always fail with NoSpace — used for purely-read contexts and
// during mount.
func New(links []Link, linkSize int, hasByteLimit bool, byteLimit int64, allocate AllocateFunc) *Chain {
	c := &Chain{
		links:        links,
		linkSize:     linkSize,
		allocate:     allocate,
		pendingIndex: -1,
	}

	if hasByteLimit {
		c.totalLength = byteLimit
	} else {
		c.totalLength = c.length()
	}

	return c
}

func (c *Chain) length() int64 {
	return int64(len(c.links)) * int64(c.linkSize)
}

// TotalLength is the logical size of the chain's contents: the greater of
// its construction-time byte limit and anything written past it since.
func (c *Chain) TotalLength() int64 {
	return c.totalLength
}

// Links returns the chain's current link list. Used by the FAT core to
// translate a chain back into cluster numbers for redefine-chain and
// trim-on-flush.
func (c *Chain) Links() []Link {
	return c.links
}

// Tell returns the current cursor position.
func (c *Chain) Tell() int64 {
	return c.cursor
}

// Seek repositions the cursor, flushing any pending write first.
func (c *Chain) Seek(offset int64, whence SeekWhence) (int64, error) {
	if err := c.Flush(); err != nil {
		return c.cursor, err
	}

	var abs int64
	switch whence {
	case SeekStart:
		abs = offset
	case SeekCurrent:
		abs = c.cursor + offset
	case SeekEnd:
		abs = c.totalLength + offset
	default:
		return c.cursor, ferrors.InvalidArgument.WithMessagef(
			"chain: invalid seek origin %d", whence)
	}

	if abs < 0 {
		return c.cursor, ferrors.InvalidArgument.WithMessagef(
			"chain: seek to negative offset %d", abs)
	}

	c.cursor = abs
	return abs, nil
}

// Read reads up to n bytes starting at the cursor, honoring TotalLength as
// a hard upper bound; a read that would cross it is shortened rather than
// extended with garbage.
func (c *Chain) Read(n int) ([]byte, error) {
	if n <= 0 || c.cursor >= c.totalLength {
		return nil, nil
	}

	remaining := c.totalLength - c.cursor
	if int64(n) > remaining {
		n = int(remaining)
	}

	out := make([]byte, 0, n)
	pos := c.cursor

	for len(out) < n {
		linkIndex := int(pos / int64(c.linkSize))
		linkOffset := int(pos % int64(c.linkSize))

		data, err := c.readLink(linkIndex)
		if err != nil {
			return nil, err
		}

		take := c.linkSize - linkOffset
		if take > n-len(out) {
			take = n - len(out)
		}

		out = append(out, data[linkOffset:linkOffset+take]...)
		pos += int64(take)
	}

	c.cursor = pos
	return out, nil
}

// ReadAll reads from the cursor to the end of the chain's TotalLength.
func (c *Chain) ReadAll() ([]byte, error) {
	remaining := c.totalLength - c.cursor
	if remaining <= 0 {
		return nil, nil
	}
	return c.Read(int(remaining))
}

// readLink returns linkIndex's current contents, preferring the pending
// buffer if that link is the one currently buffered.
func (c *Chain) readLink(linkIndex int) ([]byte, error) {
	if c.pendingValid && c.pendingIndex == linkIndex {
		return c.pendingBuf, nil
	}
	if linkIndex >= len(c.links) {
		return nil, ferrors.CorruptFilesystem.WithMessagef(
			"chain: link %d out of range (chain has %d links)", linkIndex, len(c.links))
	}
	return c.links[linkIndex].Read()
}

// Write writes data starting at the cursor, buffering at single-link
// granularity: at most one pending link-sized buffer plus a parallel
// bitmap marking which bytes are new. Crossing a link boundary flushes the
// buffer; when it does, any byte left "old" is read from the link's
// current contents and overlaid under the new bytes before the link is
// written.
func (c *Chain) Write(data []byte) (int, error) {
	written := 0

	for written < len(data) {
		linkIndex := int(c.cursor / int64(c.linkSize))
		linkOffset := int(c.cursor % int64(c.linkSize))

		if linkIndex >= len(c.links) {
			if err := c.grow(linkIndex + 1); err != nil {
				return written, err
			}
		}

		if c.pendingValid && c.pendingIndex != linkIndex {
			if err := c.Flush(); err != nil {
				return written, err
			}
		}

		if !c.pendingValid {
			c.pendingBuf = make([]byte, c.linkSize)
			c.pendingNew = bitmap.New(c.linkSize)
			c.pendingIndex = linkIndex
			c.pendingValid = true
		}

		take := c.linkSize - linkOffset
		if take > len(data)-written {
			take = len(data) - written
		}

		copy(c.pendingBuf[linkOffset:linkOffset+take], data[written:written+take])
		for i := linkOffset; i < linkOffset+take; i++ {
			c.pendingNew.Set(i, true)
		}

		written += take
		c.cursor += int64(take)

		if linkOffset+take == c.linkSize {
			if err := c.Flush(); err != nil {
				return written, err
			}
		}
	}

	if c.cursor > c.totalLength {
		c.totalLength = c.cursor
	}

	return written, nil
}

// grow extends the chain until it has at least minLinks links, using the
// allocator callback.
func (c *Chain) grow(minLinks int) error {
	if c.allocate == nil {
		return ferrors.NoSpace.WithMessage(
			"chain: write extends past the chain's current length and no allocator is attached")
	}

	for len(c.links) < minLinks {
		var last Link
		if len(c.links) > 0 {
			last = c.links[len(c.links)-1]
		}

		needed := minLinks - len(c.links)
		newLinks, err := c.allocate(last, needed)
		if err != nil {
			return err
		}
		if len(newLinks) == 0 {
			return ferrors.NoSpace.WithMessage("chain: allocator returned no new links")
		}

		c.links = append(c.links, newLinks...)
	}

	return nil
}

// Flush writes out the pending link buffer, if any, overlaying its new
// bytes on top of the link's previously-read contents for any byte the
// buffer never touched.
func (c *Chain) Flush() error {
	if !c.pendingValid {
		return nil
	}

	allNew := true
	for i := 0; i < c.linkSize; i++ {
		if !c.pendingNew.Get(i) {
			allNew = false
			break
		}
	}

	buf := c.pendingBuf
	if !allNew {
		if c.pendingIndex >= len(c.links) {
			return ferrors.InvalidState.WithMessagef(
				"chain: pending buffer for link %d has no backing link to read old bytes from",
				c.pendingIndex)
		}

		original, err := c.links[c.pendingIndex].Read()
		if err != nil {
			return err
		}

		merged := make([]byte, c.linkSize)
		copy(merged, original)
		for i := 0; i < c.linkSize; i++ {
			if c.pendingNew.Get(i) {
				merged[i] = buf[i]
			}
		}
		buf = merged
	}

	if err := c.links[c.pendingIndex].Write(buf); err != nil {
		return err
	}

	c.pendingValid = false
	c.pendingIndex = -1
	c.pendingBuf = nil
	c.pendingNew = nil
	return nil
}
