package blockdev

import (
	"io"
	"os"

	"github.com/dargueta/fatfs/ferrors"
)

// FileDevice is a Device backed directly by an *os.File, for mounting a
// disk image in place rather than reading it entirely into memory first.
type FileDevice struct {
	file       *os.File
	sectorSize int
	numSectors int64
	readOnly   bool
}

// OpenFileDevice opens path and wraps it as a Device with the given
// sector size. The file's size must be an exact multiple of sectorSize.
// If readOnly is true, the file is opened O_RDONLY and WriteAt always
// fails.
func OpenFileDevice(path string, sectorSize int, readOnly bool) (*FileDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if sectorSize <= 0 || info.Size()%int64(sectorSize) != 0 {
		f.Close()
		return nil, ferrors.InvalidArgument.WithMessagef(
			"blockdev: file size %d is not a multiple of sector size %d",
			info.Size(), sectorSize)
	}

	return &FileDevice{
		file:       f,
		sectorSize: sectorSize,
		numSectors: info.Size() / int64(sectorSize),
		readOnly:   readOnly,
	}, nil
}

func (d *FileDevice) SectorSize() int   { return d.sectorSize }
func (d *FileDevice) NumSectors() int64 { return d.numSectors }

func (d *FileDevice) ReadAt(start int64, count int) ([]byte, error) {
	if err := d.checkBounds(start, count); err != nil {
		return nil, err
	}

	buf := make([]byte, count*d.sectorSize)
	if _, err := d.file.Seek(start*int64(d.sectorSize), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(d.file, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *FileDevice) WriteAt(start int64, data []byte) error {
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

	if _, err := d.file.Seek(start*int64(d.sectorSize), io.SeekStart); err != nil {
		return err
	}
	_, err := d.file.Write(data)
	return err
}

func (d *FileDevice) checkBounds(start int64, count int) error {
	if start < 0 || count < 0 || start+int64(count) > d.numSectors {
		return ferrors.CorruptFilesystem.WithMessagef(
			"blockdev: sector range [%d, %d) out of bounds [0, %d)",
			start, start+int64(count), d.numSectors)
	}
	return nil
}

// Close closes the underlying file.
func (d *FileDevice) Close() error {
	return d.file.Close()
}
