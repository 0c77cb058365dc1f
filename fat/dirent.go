package fat

import (
	"time"

	"github.com/dargueta/fatfs/fat/shortname"
	"github.com/dargueta/fatfs/ferrors"
	"github.com/dargueta/fatfs/internal/bincodec"
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

// Attribute flags for a directory entry's AttributeFlags byte.
const (
	AttrReadOnly    = 0x01
	AttrHidden      = 0x02
	AttrSystem      = 0x04
	AttrVolumeLabel = 0x08
	AttrDirectory   = 0x10
	AttrArchived    = 0x20
	AttrDevice      = 0x40
	AttrReserved    = 0x80

	// AttrLongName marks an entry as an LFN slot; its content is otherwise
	// ignored, only counted.
	AttrLongName = 0x0F
)

const (
	direntFreeMarker    = 0x00
	direntDeletedMarker = 0xE5
)

// direntUnpackFormat mirrors RawDirent's field order for bincodec.Unpack:
// 8-byte name, 3-byte extension, attribute, reserved, created-millis,
// created time/date, accessed date, first-cluster-high, modified
// time/date, first-cluster-low, file size.
const direntUnpackFormat = "<8s3sBBBHHHHHHHI"

// RawDirent is the on-disk representation of a directory entry, broken
// down into its constituent fields.
type RawDirent struct {
	Name              [8]byte
	Extension         [3]byte
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeMillis uint8
	CreatedTime       uint16
	CreatedDate       uint16
	AccessedDate      uint16
	FirstClusterHigh  uint16
	ModifiedTime      uint16
	ModifiedDate      uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// FirstCluster combines the high and low cluster fields. On FAT12/16 the
// high half is always 0.
func (r RawDirent) FirstCluster() ClusterID {
	return ClusterID(uint32(r.FirstClusterHigh)<<16 | uint32(r.FirstClusterLow))
}

// IsFree reports whether this slot's first filename byte marks it (and
// every slot after it in the directory) as unused.
func (r RawDirent) IsFree() bool { return r.Name[0] == direntFreeMarker }

// IsDeleted reports whether this slot's first filename byte marks it as
// deleted.
func (r RawDirent) IsDeleted() bool { return r.Name[0] == direntDeletedMarker }

// IsLongNameSlot reports whether this entry is an LFN continuation slot
// rather than a normal 8.3 entry.
func (r RawDirent) IsLongNameSlot() bool { return r.AttributeFlags == AttrLongName }

// UnpackRawDirent decodes 32 bytes into a RawDirent.
func UnpackRawDirent(data []byte) (RawDirent, error) {
	fields, _, err := bincodec.Unpack(direntUnpackFormat, data, 0)
	if err != nil {
		return RawDirent{}, err
	}

	var r RawDirent
	copy(r.Name[:], fields[0].Bytes())
	copy(r.Extension[:], fields[1].Bytes())
	r.AttributeFlags = uint8(fields[2].Uint())
	r.NTReserved = uint8(fields[3].Uint())
	r.CreatedTimeMillis = uint8(fields[4].Uint())
	r.CreatedTime = uint16(fields[5].Uint())
	r.CreatedDate = uint16(fields[6].Uint())
	r.AccessedDate = uint16(fields[7].Uint())
	r.FirstClusterHigh = uint16(fields[8].Uint())
	r.ModifiedTime = uint16(fields[9].Uint())
	r.ModifiedDate = uint16(fields[10].Uint())
	r.FirstClusterLow = uint16(fields[11].Uint())
	r.FileSize = uint32(fields[12].Uint())
	return r, nil
}

// Pack re-encodes r into its 32-byte on-disk form. Round-tripping any
// RawDirent decoded with UnpackRawDirent through Pack must reproduce the
// original bytes exactly.
func (r RawDirent) Pack() [32]byte {
	return bincodec.PackDirent(
		r.Name, r.Extension, r.AttributeFlags, r.NTReserved, r.CreatedTimeMillis,
		r.CreatedTime, r.CreatedDate, r.AccessedDate, r.FirstClusterHigh,
		r.ModifiedTime, r.ModifiedDate, r.FirstClusterLow, r.FileSize,
	)
}

// Dirent is a directory entry in user-friendly form, with its normalized
// name resolved and the raw record it's backed by kept for re-encoding.
type Dirent struct {
	Raw  RawDirent
	name string
	lfns int // number of preceding LFN slots counted for this entry

	// offset is this entry's byte position within its parent directory's
	// raw content buffer, used by the directory cache to rewrite a single
	// record in place without disturbing its neighbors.
	offset int
}

func dateFromFAT(value uint16) time.Time {
	day := int(value & 0x1F)
	month := time.Month((value >> 5) & 0x0F)
	year := 1980 + int(value>>9)
	if day == 0 {
		day = 1
	}
	if month == 0 {
		month = time.January
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func dateToFAT(t time.Time) uint16 {
	return uint16(t.Day()&0x1F) | uint16(t.Month()&0x0F)<<5 | uint16(t.Year()-1980)<<9
}

func timeFromFAT(datePart, timePart uint16) time.Time {
	d := dateFromFAT(datePart)
	seconds := int(timePart&0x1F) * 2
	minutes := int((timePart >> 5) & 0x3F)
	hours := int(timePart >> 11)
	return time.Date(d.Year(), d.Month(), d.Day(), hours, minutes, seconds, 0, time.UTC)
}

func timeToFAT(t time.Time) uint16 {
	return uint16(t.Second()/2) | uint16(t.Minute())<<5 | uint16(t.Hour())<<11
}

// CreatedAt returns this entry's creation timestamp.
func (d Dirent) CreatedAt() time.Time {
	return timeFromFAT(d.Raw.CreatedDate, d.Raw.CreatedTime)
}

// ModifiedAt returns this entry's last-modified timestamp.
func (d Dirent) ModifiedAt() time.Time {
	return timeFromFAT(d.Raw.ModifiedDate, d.Raw.ModifiedTime)
}

// AccessedAt returns this entry's last-accessed date (FAT stores no
// access time of day, only a date).
func (d Dirent) AccessedAt() time.Time {
	return dateFromFAT(d.Raw.AccessedDate)
}

// Name returns the entry's normalized (non-8.3) filename.
func (d Dirent) Name() string { return d.name }

// Size is the entry's file size in bytes. Always 0 for directories.
func (d Dirent) Size() int64 { return int64(d.Raw.FileSize) }

// IsDir reports whether this entry is a directory.
func (d Dirent) IsDir() bool { return d.Raw.AttributeFlags&AttrDirectory != 0 }

// FirstCluster is the entry's starting cluster, 0 for an empty file.
func (d Dirent) FirstCluster() ClusterID { return d.Raw.FirstCluster() }

// setFirstCluster updates both halves of the raw record's cluster field.
func (d *Dirent) setFirstCluster(c ClusterID) {
	d.Raw.FirstClusterHigh = uint16(c >> 16)
	d.Raw.FirstClusterLow = uint16(c & 0xFFFF)
}

// newDirentFromRaw builds a Dirent from a decoded RawDirent, resolving its
// normalized name through the shortname package. lfns is the count of LFN
// slots immediately preceding this record in the directory.
func newDirentFromRaw(raw RawDirent, lfns int) Dirent {
	name := shortname.Decode(shortname.FromComponents(raw.Name, raw.Extension))
	return Dirent{Raw: raw, name: name, lfns: lfns}
}

// newDirentForCreate builds a brand-new zero-size, zero-cluster Dirent for
// a freshly created file or directory, stamping created/modified/accessed
// times to now.
func newDirentForCreate(normalizedName string, attrs uint8, now time.Time) (Dirent, error) {
	raw8dot3, err := shortname.Encode(normalizedName)
	if err != nil {
		return Dirent{}, err
	}

	d := Dirent{name: normalizedName}
	d.Raw.Name = raw8dot3.Name()
	d.Raw.Extension = raw8dot3.Extension()
	d.Raw.AttributeFlags = attrs
	d.Raw.CreatedDate = dateToFAT(now)
	d.Raw.CreatedTime = timeToFAT(now)
	d.Raw.ModifiedDate = d.Raw.CreatedDate
	d.Raw.ModifiedTime = d.Raw.CreatedTime
	d.Raw.AccessedDate = d.Raw.CreatedDate
	return d, nil
}

// parseDirentCluster walks one cluster's worth of raw 32-byte records,
// accumulating LFN slots into the following non-LFN entry's count and
// stopping at the first free (0x00) slot. Deleted (0xE5) entries are
// skipped unless includeDeleted is set.
func parseDirentCluster(data []byte, direntsPerCluster int, includeDeleted bool) ([]Dirent, bool, error) {
	var out []Dirent
	lfnRun := 0

	for i := 0; i < direntsPerCluster; i++ {
		offset := i * DirentSize
		if offset+DirentSize > len(data) {
			break
		}

		raw, err := UnpackRawDirent(data[offset : offset+DirentSize])
		if err != nil {
			return out, false, err
		}

		if raw.IsFree() {
			return out, true, nil
		}

		if raw.IsLongNameSlot() {
			lfnRun++
			continue
		}

		if raw.IsDeleted() {
			lfnRun = 0
			if includeDeleted {
				d := newDirentFromRaw(raw, 0)
				d.offset = offset
				out = append(out, d)
			}
			continue
		}

		d := newDirentFromRaw(raw, lfnRun)
		d.offset = offset
		out = append(out, d)
		lfnRun = 0
	}

	return out, false, nil
}

// validateNewName checks a normalized name is representable as an 8.3
// name before it's used to create or rename a directory entry.
func validateNewName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ferrors.InvalidArgument.WithMessagef("fat: %q is not a valid file name", name)
	}
	if _, err := shortname.Encode(name); err != nil {
		return err
	}
	return nil
}
