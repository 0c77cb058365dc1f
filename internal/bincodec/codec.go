// Package bincodec implements the compact little-endian record decoder used
// throughout the fat package to unpack on-disk structures (the boot sector,
// the FAT32 extension, the FS information sector, directory entries) without
// allocating beyond the values it returns.
//
// Format strings are built from single-character fields:
//
//	b, c   1 byte,  signed / unsigned
//	h      2 bytes, signed / unsigned
//	i, l   4 bytes, signed / unsigned
//	q      8 bytes, signed / unsigned
//	x      1 byte skipped (a leading count repeats the skip)
//	Ns     an N-byte blob, returned as a []byte copy
//
// Upper-case letters (B, H, I, L, Q) and c are unsigned; the other
// lower-case letters are signed with two's-complement sign extension. A leading '<' is accepted
// (and required by convention here, since this package only ever decodes
// little-endian records) but is otherwise a no-op.
package bincodec

import (
	"fmt"

	"github.com/dargueta/fatfs/ferrors"
)

// Field is one decoded value from Unpack. Exactly one of the accessor
// methods below is meaningful, depending on the format letter that produced
// it.
type Field struct {
	u64   uint64
	i64   int64
	blob  []byte
	isInt bool
}

// Uint returns the field's value as an unsigned integer. For a signed field
// this is the sign-extended value reinterpreted as uint64; for a blob it is
// 0.
func (f Field) Uint() uint64 { return f.u64 }

// Int returns the field's value as a signed, sign-extended integer.
func (f Field) Int() int64 { return f.i64 }

// Bytes returns the field's raw bytes. Only valid for 'Ns' blob fields.
func (f Field) Bytes() []byte { return f.blob }

// Unpack decodes buf starting at offset according to format, returning one
// Field per consumed (non-skip) directive and the offset immediately past
// the last byte consumed. format may optionally start with '<'.
func Unpack(format string, buf []byte, offset int) ([]Field, int, error) {
	format = trimEndian(format)

	fields := make([]Field, 0, len(format))
	i := 0
	for i < len(format) {
		count, letter, next := readCount(format, i)
		i = next

		switch letter {
		case 'x':
			n := count
			if n == 0 {
				n = 1
			}
			if offset+n > len(buf) {
				return nil, offset, shortBuffer(offset, n, len(buf))
			}
			offset += n

		case 's':
			n := count
			if offset+n > len(buf) {
				return nil, offset, shortBuffer(offset, n, len(buf))
			}
			blob := make([]byte, n)
			copy(blob, buf[offset:offset+n])
			fields = append(fields, Field{blob: blob})
			offset += n

		default:
			width, signed, err := widthOf(letter)
			if err != nil {
				return nil, offset, err
			}
			if offset+width > len(buf) {
				return nil, offset, shortBuffer(offset, width, len(buf))
			}

			raw := readLittleEndian(buf[offset : offset+width])
			offset += width

			field := Field{isInt: true}
			if signed {
				field.i64 = signExtend(raw, width)
				field.u64 = uint64(field.i64)
			} else {
				field.u64 = raw
				field.i64 = int64(raw)
			}
			fields = append(fields, field)
		}
	}

	return fields, offset, nil
}

// readCount parses an optional leading decimal count (used by 'x' and 's')
// followed by exactly one format letter, returning the index just past the
// letter.
func readCount(format string, i int) (count int, letter byte, next int) {
	start := i
	for i < len(format) && format[i] >= '0' && format[i] <= '9' {
		i++
	}
	if i > start {
		fmt.Sscanf(format[start:i], "%d", &count)
	}
	letter = format[i]
	return count, letter, i + 1
}

func widthOf(letter byte) (width int, signed bool, err error) {
	switch letter {
	case 'b':
		return 1, true, nil
	case 'B', 'c':
		return 1, false, nil
	case 'h':
		return 2, true, nil
	case 'H':
		return 2, false, nil
	case 'i', 'l':
		return 4, true, nil
	case 'I', 'L':
		return 4, false, nil
	case 'q':
		return 8, true, nil
	case 'Q':
		return 8, false, nil
	default:
		return 0, false, ferrors.InvalidArgument.WithMessagef(
			"bincodec: unknown format letter %q", letter)
	}
}

func readLittleEndian(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

func signExtend(raw uint64, width int) int64 {
	bits := uint(width * 8)
	shift := 64 - bits
	return int64(raw<<shift) >> shift
}

func trimEndian(format string) string {
	if len(format) > 0 && format[0] == '<' {
		return format[1:]
	}
	return format
}

func shortBuffer(offset, want, have int) error {
	return ferrors.CorruptFilesystem.WithMessagef(
		"bincodec: need %d bytes at offset %d but buffer is only %d bytes",
		want, offset, have)
}
