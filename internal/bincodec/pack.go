package bincodec

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// PackDirent serializes the fixed-width fields of an on-disk directory
// entry into a 32-byte buffer, little-endian, in field order. It is the
// symmetric counterpart to unpacking a directory entry with
// Unpack("<8s3sBBBHHHHHHHI", ...); directory entries are the only record
// type the core rewrites, so this is the only packer bincodec needs to
// provide.
func PackDirent(
	name [8]byte,
	ext [3]byte,
	attr uint8,
	reserved uint8,
	createdMillis uint8,
	createdTime, createdDate uint16,
	accessedDate uint16,
	firstClusterHigh uint16,
	modifiedTime, modifiedDate uint16,
	firstClusterLow uint16,
	fileSize uint32,
) [32]byte {
	var buf [32]byte
	w := bytewriter.New(buf[:])

	w.Write(name[:])
	w.Write(ext[:])
	binary.Write(w, binary.LittleEndian, attr)
	binary.Write(w, binary.LittleEndian, reserved)
	binary.Write(w, binary.LittleEndian, createdMillis)
	binary.Write(w, binary.LittleEndian, createdTime)
	binary.Write(w, binary.LittleEndian, createdDate)
	binary.Write(w, binary.LittleEndian, accessedDate)
	binary.Write(w, binary.LittleEndian, firstClusterHigh)
	binary.Write(w, binary.LittleEndian, modifiedTime)
	binary.Write(w, binary.LittleEndian, modifiedDate)
	binary.Write(w, binary.LittleEndian, firstClusterLow)
	binary.Write(w, binary.LittleEndian, fileSize)

	return buf
}
