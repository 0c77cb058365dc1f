package fat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRawDirentBytes(t *testing.T, name, ext string, attr uint8, cluster uint32, size uint32) []byte {
	t.Helper()
	var n [8]byte
	var e [3]byte
	copy(n[:], name)
	copy(e[:], ext)
	for i := range n {
		if n[i] == 0 {
			n[i] = ' '
		}
	}
	for i := range e {
		if e[i] == 0 {
			e[i] = ' '
		}
	}

	r := RawDirent{
		Name:             n,
		Extension:        e,
		AttributeFlags:   attr,
		FirstClusterLow:  uint16(cluster & 0xFFFF),
		FirstClusterHigh: uint16(cluster >> 16),
		FileSize:         size,
	}
	raw := r.Pack()
	return raw[:]
}

func TestUnpackRawDirentRoundTripsThroughPack(t *testing.T) {
	data := buildRawDirentBytes(t, "HELLO", "TXT", AttrArchived, 5, 11)

	raw, err := UnpackRawDirent(data)
	require.NoError(t, err)
	assert.EqualValues(t, 5, raw.FirstCluster())
	assert.EqualValues(t, 11, raw.FileSize)

	packed := raw.Pack()
	assert.Equal(t, data, packed[:])
}

func TestRawDirentIsFreeAndIsDeleted(t *testing.T) {
	free := buildRawDirentBytes(t, "", "", 0, 0, 0)
	free[0] = 0x00
	deleted := buildRawDirentBytes(t, "OOPS", "TXT", 0, 0, 0)
	deleted[0] = 0xE5

	freeRaw, err := UnpackRawDirent(free)
	require.NoError(t, err)
	assert.True(t, freeRaw.IsFree())

	deletedRaw, err := UnpackRawDirent(deleted)
	require.NoError(t, err)
	assert.True(t, deletedRaw.IsDeleted())
}

func TestDateTimeRoundTrip(t *testing.T) {
	ts := time.Date(2023, time.March, 14, 9, 26, 30, 0, time.UTC)

	datePart := dateToFAT(ts)
	timePart := timeToFAT(ts)

	decoded := timeFromFAT(datePart, timePart)
	assert.Equal(t, ts.Year(), decoded.Year())
	assert.Equal(t, ts.Month(), decoded.Month())
	assert.Equal(t, ts.Day(), decoded.Day())
	assert.Equal(t, ts.Hour(), decoded.Hour())
	assert.Equal(t, ts.Minute(), decoded.Minute())
	assert.Equal(t, ts.Second(), decoded.Second())
}

func TestNewDirentForCreateProducesValidShortName(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	d, err := newDirentForCreate("report.txt", AttrArchived, now)
	require.NoError(t, err)
	assert.Equal(t, "report.txt", d.Name())
	assert.EqualValues(t, 0, d.FirstCluster())
	assert.Equal(t, "REPORT  ", string(d.Raw.Name[:]))
	assert.Equal(t, "TXT", string(d.Raw.Extension[:]))
}

func TestParseDirentClusterStopsAtFreeSlot(t *testing.T) {
	data := make([]byte, DirentSize*4)
	copy(data[0:DirentSize], buildRawDirentBytes(t, "FILEA", "TXT", 0, 3, 10))
	// Slot 1 left as all-zero -> free marker, parsing should stop here.

	ents, _, err := parseDirentCluster(data, 4, false)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "FILEA.TXT", ents[0].Name())
}

func TestParseDirentClusterSkipsDeletedUnlessRequested(t *testing.T) {
	data := make([]byte, DirentSize*3)
	deleted := buildRawDirentBytes(t, "GONE", "TXT", 0, 0, 0)
	deleted[0] = 0xE5
	copy(data[0:DirentSize], deleted)
	copy(data[DirentSize:2*DirentSize], buildRawDirentBytes(t, "KEPT", "TXT", 0, 4, 1))

	ents, _, err := parseDirentCluster(data, 3, false)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "KEPT.TXT", ents[0].Name())

	withDeleted, _, err := parseDirentCluster(data, 3, true)
	require.NoError(t, err)
	require.Len(t, withDeleted, 2)
}

func TestParseDirentClusterCountsPrecedingLFNSlots(t *testing.T) {
	data := make([]byte, DirentSize*3)
	lfn := buildRawDirentBytes(t, "", "", AttrLongName, 0, 0)
	copy(data[0:DirentSize], lfn)
	copy(data[DirentSize:2*DirentSize], buildRawDirentBytes(t, "LONGFILE", "TXT", 0, 9, 100))

	ents, _, err := parseDirentCluster(data, 3, false)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, 1, ents[0].lfns)
}

func TestValidateNewNameRejectsDotNames(t *testing.T) {
	assert.Error(t, validateNewName("."))
	assert.Error(t, validateNewName(".."))
	assert.Error(t, validateNewName(""))
	assert.NoError(t, validateNewName("ok.txt"))
}
