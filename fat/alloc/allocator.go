// Package alloc implements the cluster allocator: a free bitmap plus a
// derived free-run list, used to satisfy cluster-chain growth requests with
// locality-aware, nearly-contiguous allocations. It wraps a
// github.com/boljen/go-bitmap bitmap for block allocation, generalizing a
// first-fit run search into a run-list-with-locality search, and adds the
// freelist recomputation and FAT-linking steps a purely block-oriented
// allocator wouldn't need.
package alloc

import (
	"github.com/boljen/go-bitmap"

	"github.com/dargueta/fatfs/ferrors"
)

// Table is the FAT entry storage an Allocator reads at init and writes
// during allocation. The fat package's in-memory FAT buffer satisfies this
// interface; alloc depends only on this narrow contract so it never needs
// to import fat (which in turn imports alloc).
type Table interface {
	// ClusterCount is the number of addressable FAT entries, including the
	// two reserved entries 0 and 1.
	ClusterCount() int
	// Get returns the raw FAT entry for cluster.
	Get(cluster uint32) uint32
	// Set overwrites the raw FAT entry for cluster.
	Set(cluster uint32, value uint32)
	// EndOfChain is the marker value this table's width uses to terminate
	// a chain.
	EndOfChain() uint32
}

// Run is a maximal run of free clusters, used for locality-aware
// allocation.
type Run struct {
	Start  uint32
	Length uint32
}

// Allocator tracks which clusters are free via a bitmap mirrored against a
// Table's FAT entries, plus a freelist of runs derived from that bitmap.
type Allocator struct {
	table    Table
	freemap  bitmap.Bitmap
	freelist []Run
}

// New builds an Allocator by reading every FAT entry in table: freemap[c] is
// true iff Get(c) == 0, for c in [2, ClusterCount). Clusters 0 and 1 are
// always marked non-free.
func New(table Table) *Allocator {
	count := table.ClusterCount()
	a := &Allocator{
		table:   table,
		freemap: bitmap.New(count),
	}

	for c := 2; c < count; c++ {
		if table.Get(uint32(c)) == 0 {
			a.freemap.Set(c, true)
		}
	}

	a.recomputeFreelist()
	return a
}

// IsFree reports whether cluster c is currently unallocated.
func (a *Allocator) IsFree(c uint32) bool {
	if int(c) >= a.freemap.Len() {
		return false
	}
	return a.freemap.Get(int(c))
}

func (a *Allocator) recomputeFreelist() {
	a.freelist = a.freelist[:0]

	var runStart uint32
	var runLen uint32
	count := a.freemap.Len()

	for i := 2; i < count; i++ {
		if a.freemap.Get(i) {
			if runLen == 0 {
				runStart = uint32(i)
			}
			runLen++
			continue
		}

		if runLen > 0 {
			a.freelist = append(a.freelist, Run{Start: runStart, Length: runLen})
			runLen = 0
		}
	}

	if runLen > 0 {
		a.freelist = append(a.freelist, Run{Start: runStart, Length: runLen})
	}
}

// Allocate carves clustersNeeded free clusters out of the freelist,
// preferring runs near lastCluster (when hasLast is true), and links them
// together in the FAT: new[i] -> new[i+1], new[last] -> EndOfChain, and, if
// hasLast, table.Set(lastCluster, new[0]) to merge the new run onto an
// existing chain.
//
// Allocate loops across multiple runs until clustersNeeded clusters have
// been carved, rather than silently returning fewer than requested; it
// returns NoSpace (with whatever clusters were already carved rolled back)
// if the free list is exhausted first.
func (a *Allocator) Allocate(lastCluster uint32, hasLast bool, clustersNeeded int) ([]uint32, error) {
	if clustersNeeded <= 0 {
		return nil, nil
	}

	allocated := make([]uint32, 0, clustersNeeded)

	for len(allocated) < clustersNeeded {
		remaining := clustersNeeded - len(allocated)
		idx := a.chooseRun(remaining, lastCluster, hasLast)
		if idx < 0 {
			a.rollback(allocated)
			return nil, ferrors.NoSpace.WithMessagef(
				"alloc: need %d more clusters but none are free", remaining)
		}

		run := a.freelist[idx]
		take := remaining
		if uint32(take) > run.Length {
			take = int(run.Length)
		}

		for i := 0; i < take; i++ {
			c := run.Start + uint32(i)
			a.freemap.Set(int(c), false)
			allocated = append(allocated, c)
		}

		if uint32(take) == run.Length {
			a.freelist = append(a.freelist[:idx], a.freelist[idx+1:]...)
		} else {
			a.freelist[idx] = Run{Start: run.Start + uint32(take), Length: run.Length - uint32(take)}
		}
	}

	for i, c := range allocated {
		if i+1 < len(allocated) {
			a.table.Set(c, allocated[i+1])
		} else {
			a.table.Set(c, a.table.EndOfChain())
		}
	}

	if hasLast {
		a.table.Set(lastCluster, allocated[0])
	}

	return allocated, nil
}

// chooseRun returns the freelist index of the best run to carve from: among
// runs with length >= needed, the one whose start is nearest lastCluster
// (when hasLast), else the first such run; if none is long enough, the
// nearest (or first) run of any length. Returns -1 if the freelist is empty.
func (a *Allocator) chooseRun(needed int, lastCluster uint32, hasLast bool) int {
	if len(a.freelist) == 0 {
		return -1
	}

	best := -1
	bestDist := uint64(0)
	bestAnyway := -1
	bestAnywayDist := uint64(0)

	for i, run := range a.freelist {
		dist := distance(run.Start, lastCluster)

		if run.Length >= uint32(needed) {
			if best < 0 || (hasLast && dist < bestDist) {
				best = i
				bestDist = dist
			}
		}

		if bestAnyway < 0 || (hasLast && dist < bestAnywayDist) {
			bestAnyway = i
			bestAnywayDist = dist
		}
	}

	if best >= 0 {
		return best
	}
	return bestAnyway
}

func distance(a, b uint32) uint64 {
	if a > b {
		return uint64(a - b)
	}
	return uint64(b - a)
}

// rollback returns previously-carved clusters (from a failed multi-run
// Allocate call) to the free pool without touching the FAT, since the loop
// that carved them never wrote FAT links for a call that ultimately fails.
func (a *Allocator) rollback(clusters []uint32) {
	for _, c := range clusters {
		a.freemap.Set(int(c), true)
	}
	a.recomputeFreelist()
}

// FreeClusterList marks every cluster in clusters free and recomputes the
// freelist. It does not touch the FAT entries themselves; callers
// (typically the flush or redefine-chain paths) are responsible for zeroing
// them.
func (a *Allocator) FreeClusterList(clusters []uint32) {
	for _, c := range clusters {
		if int(c) < a.freemap.Len() {
			a.freemap.Set(int(c), true)
		}
	}
	a.recomputeFreelist()
}

// MarkUsed marks every cluster in clusters non-free and recomputes the
// freelist, without touching FAT entries. Used by redefine-chain when a
// caller hands it a cluster list assembled outside of Allocate.
func (a *Allocator) MarkUsed(clusters []uint32) {
	for _, c := range clusters {
		if int(c) < a.freemap.Len() {
			a.freemap.Set(int(c), false)
		}
	}
	a.recomputeFreelist()
}
