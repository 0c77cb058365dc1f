package alloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatfs/fat/alloc"
	"github.com/dargueta/fatfs/ferrors"
)

const testEOC = 0x0FFFFFFF

type fakeTable struct {
	entries []uint32
}

func newFakeTable(count int) *fakeTable {
	return &fakeTable{entries: make([]uint32, count)}
}

func (t *fakeTable) ClusterCount() int      { return len(t.entries) }
func (t *fakeTable) Get(c uint32) uint32    { return t.entries[c] }
func (t *fakeTable) Set(c uint32, v uint32) { t.entries[c] = v }
func (t *fakeTable) EndOfChain() uint32     { return testEOC }

func TestNewMarksAllNonzeroEntriesAllocated(t *testing.T) {
	table := newFakeTable(10)
	table.entries[4] = testEOC // cluster 4 already in use

	a := alloc.New(table)
	assert.False(t, a.IsFree(0))
	assert.False(t, a.IsFree(1))
	assert.False(t, a.IsFree(4))
	assert.True(t, a.IsFree(2))
	assert.True(t, a.IsFree(9))
}

func TestAllocateContiguousRun(t *testing.T) {
	table := newFakeTable(10)
	a := alloc.New(table)

	clusters, err := a.Allocate(0, false, 3)
	require.NoError(t, err)
	require.Len(t, clusters, 3)

	for i, c := range clusters {
		assert.False(t, a.IsFree(c))
		if i+1 < len(clusters) {
			assert.Equal(t, clusters[i+1], table.Get(c))
		} else {
			assert.Equal(t, uint32(testEOC), table.Get(c))
		}
	}
}

func TestAllocateMergesOntoLastCluster(t *testing.T) {
	table := newFakeTable(10)
	table.entries[2] = testEOC // existing 1-cluster chain

	a := alloc.New(table)
	clusters, err := a.Allocate(2, true, 2)
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	assert.Equal(t, clusters[0], table.Get(2))
}

func TestAllocatePrefersNearestRun(t *testing.T) {
	// Clusters 2..3 busy, 4..5 free, 6 busy, 7..9 free.
	table := newFakeTable(10)
	table.entries[2] = testEOC
	table.entries[3] = testEOC
	table.entries[6] = testEOC

	a := alloc.New(table)
	clusters, err := a.Allocate(3, true, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{4, 5}, clusters)
}

func TestAllocateLoopsAcrossRunsWhenNoneLargeEnough(t *testing.T) {
	// Two free runs of length 1 each, separated by a busy cluster; need 2.
	table := newFakeTable(10)
	table.entries[3] = testEOC // busy, splits 2 and 4..9 apart
	table.entries[5] = testEOC
	table.entries[6] = testEOC
	table.entries[7] = testEOC
	table.entries[8] = testEOC
	table.entries[9] = testEOC
	// Free: cluster 2 (run of 1), cluster 4 (run of 1).

	a := alloc.New(table)
	clusters, err := a.Allocate(0, false, 2)
	require.NoError(t, err)
	assert.Len(t, clusters, 2)
	assert.False(t, a.IsFree(2))
	assert.False(t, a.IsFree(4))
}

func TestAllocateFailsWithNoSpaceAndRollsBack(t *testing.T) {
	table := newFakeTable(4) // only clusters 2,3 addressable
	a := alloc.New(table)

	_, err := a.Allocate(0, false, 5)
	assert.ErrorIs(t, err, ferrors.NoSpace)

	// Clusters carved during the failed attempt must be returned to free.
	assert.True(t, a.IsFree(2))
	assert.True(t, a.IsFree(3))
}

func TestFreeClusterListReturnsClustersToPool(t *testing.T) {
	table := newFakeTable(10)
	a := alloc.New(table)

	clusters, err := a.Allocate(0, false, 3)
	require.NoError(t, err)

	a.FreeClusterList(clusters)
	for _, c := range clusters {
		assert.True(t, a.IsFree(c))
	}
}
