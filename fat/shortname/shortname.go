// Package shortname converts between normalized filename strings and the
// 11-byte, space-padded 8.3 form used by FAT directory entries, and compares
// names the way directory lookup does: through their 8.3 form, so that
// padding and case differences never matter.
//
// Trims and rejoins the raw Name/Extension fields of a directory entry on
// the decode side, and provides the inverse normalize/encode/compare
// operations needed to create, look up, and rename entries.
package shortname

import (
	"strings"

	"github.com/dargueta/fatfs/ferrors"
)

// Raw is the fixed 11-byte on-disk form of an 8.3 name: 8 bytes of name
// followed by 3 bytes of extension, both space-padded.
type Raw [11]byte

// Name returns the 8-byte name field, still space-padded.
func (r Raw) Name() [8]byte {
	var name [8]byte
	copy(name[:], r[:8])
	return name
}

// Extension returns the 3-byte extension field, still space-padded.
func (r Raw) Extension() [3]byte {
	var ext [3]byte
	copy(ext[:], r[8:11])
	return ext
}

// FromComponents packs an 8-byte name field and a 3-byte extension field
// into the raw 11-byte form, as read directly off a directory entry.
func FromComponents(name [8]byte, ext [3]byte) Raw {
	var r Raw
	copy(r[:8], name[:])
	copy(r[8:11], ext[:])
	return r
}

// Encode converts a normalized name into its 8.3 form: the portion before
// the last '.' is truncated to 8 bytes and upper-cased into the name field;
// the portion after is truncated to 3 bytes and upper-cased into the
// extension field. Both fields are padded with spaces. normalized must be
// non-empty.
func Encode(normalized string) (Raw, error) {
	if normalized == "" {
		return Raw{}, ferrors.InvalidArgument.WithMessage(
			"shortname: cannot encode an empty name")
	}

	base, ext := splitExt(normalized)

	var r Raw
	for i := range r {
		r[i] = ' '
	}

	base = strings.ToUpper(base)
	if len(base) > 8 {
		base = base[:8]
	}
	copy(r[:8], base)

	ext = strings.ToUpper(ext)
	if len(ext) > 3 {
		ext = ext[:3]
	}
	copy(r[8:11], ext)

	return r, nil
}

// Decode converts an 8.3 raw name back into a normalized string: both the
// name and extension fields are trimmed of trailing spaces, then joined
// with '.' only if the extension is nonempty.
func Decode(raw Raw) string {
	name := strings.TrimRight(string(raw[:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")

	if ext == "" {
		return name
	}
	return name + "." + ext
}

// Equal reports whether two normalized names refer to the same 8.3 entry:
// both are normalized through Encode first, so differences in case or
// padding never matter. An already-invalid (empty) name never equals
// anything, including itself.
func Equal(a, b string) bool {
	rawA, errA := Encode(a)
	rawB, errB := Encode(b)
	if errA != nil || errB != nil {
		return false
	}
	return rawA == rawB
}

// splitExt splits normalized on its last '.', returning the base and
// extension with the separator removed. A leading-dot name (".bashrc") has
// no extension under this rule, and "." / ".." are never split at all:
// both are entirely dots, so treating the last one as a separator would
// collapse ".." down to the same base as ".".
func splitExt(normalized string) (base, ext string) {
	if normalized == "." || normalized == ".." {
		return normalized, ""
	}
	idx := strings.LastIndex(normalized, ".")
	if idx <= 0 {
		return normalized, ""
	}
	return normalized[:idx], normalized[idx+1:]
}
