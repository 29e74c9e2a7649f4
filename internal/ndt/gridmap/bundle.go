package gridmap

import (
	"math"
	"unsafe"

	"github.com/banshee-data/ndtgrid/internal/ndt/occupancy"
	"github.com/banshee-data/ndtgrid/internal/ndt/storage"
)

// Octants is the number of shifted coarse lattices a bundle spans.
const Octants = 8

// Index is a fine (bundle) or coarse voxel index.
type Index = storage.Index

// CellStorage is the owning container of one octant lattice.
type CellStorage = storage.Storage[occupancy.Cell]

// Bundle is the eight-cell view of one fine voxel: cell o lives in octant
// storage o. The cells are owned by the octant storages; several bundles
// may reference the same cell. A bundle never changes after allocation.
type Bundle struct {
	cells [Octants]*occupancy.Cell
}

// At returns the cell of octant o.
func (b *Bundle) At(o int) *occupancy.Cell { return b.cells[o] }

// Cells returns the eight referenced cells in octant order.
func (b *Bundle) Cells() [Octants]*occupancy.Cell { return b.cells }

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - b*floorDiv(a, b)
}

// OctantIndices returns the coarse index addressed in each octant storage
// by fine index bi. For every axis coarse = floor(b/2) and
// offset = b mod 2 (floor semantics); octant o picks coarse+offset on the
// axes whose bit is set in o (bit 0: x, bit 1: y, bit 2: z).
func OctantIndices(bi Index) [Octants]Index {
	var c, off Index
	for a := 0; a < 3; a++ {
		c[a] = floorDiv(bi[a], 2)
		off[a] = floorMod(bi[a], 2)
	}
	var out [Octants]Index
	for o := 0; o < Octants; o++ {
		idx := c
		for a := 0; a < 3; a++ {
			if o&(1<<a) != 0 {
				idx[a] += off[a]
			}
		}
		out[o] = idx
	}
	return out
}

// BundleStorage maps fine indices to bundles and owns the allocation
// protocol that creates cells in the octant storages on first touch.
type BundleStorage struct {
	octants  [Octants]*CellStorage
	bundles  *storage.Storage[Bundle]
	minIndex Index
	maxIndex Index
}

// NewBundleStorage creates an empty bundle storage over octants.
func NewBundleStorage(octants [Octants]*CellStorage) *BundleStorage {
	return &BundleStorage{
		octants:  octants,
		bundles:  storage.New[Bundle](),
		minIndex: Index{math.MaxInt, math.MaxInt, math.MaxInt},
		maxIndex: Index{math.MinInt, math.MinInt, math.MinInt},
	}
}

// Get returns the bundle at bi without allocating, or nil.
func (s *BundleStorage) Get(bi Index) *Bundle {
	return s.bundles.Get(bi)
}

// GetOrAllocate returns the bundle at bi, allocating it and any missing
// octant cells first.
func (s *BundleStorage) GetOrAllocate(bi Index) *Bundle {
	if b := s.bundles.Get(bi); b != nil {
		return b
	}

	var b Bundle
	for o, ci := range OctantIndices(bi) {
		b.cells[o] = s.octants[o].GetOrInsert(ci, occupancy.Cell{})
	}
	s.widen(bi)
	tracef("allocated bundle %v", bi)
	return s.bundles.GetOrInsert(bi, b)
}

func (s *BundleStorage) widen(bi Index) {
	for a := 0; a < 3; a++ {
		s.minIndex[a] = min(s.minIndex[a], bi[a])
		s.maxIndex[a] = max(s.maxIndex[a], bi[a])
	}
}

// Empty reports whether no bundle was ever allocated.
func (s *BundleStorage) Empty() bool {
	return s.bundles.Len() == 0
}

// Extent returns the componentwise minimum and maximum allocated fine
// indices. On an empty storage these are the MaxInt/MinInt sentinels.
func (s *BundleStorage) Extent() (Index, Index) {
	return s.minIndex, s.maxIndex
}

// Len returns the number of allocated bundles.
func (s *BundleStorage) Len() int { return s.bundles.Len() }

// Traverse visits every (fine index, bundle) pair once.
func (s *BundleStorage) Traverse(fn func(Index, *Bundle)) {
	s.bundles.Traverse(fn)
}

// Indices returns a snapshot of the allocated fine indices.
func (s *BundleStorage) Indices() []Index {
	return s.bundles.Indices()
}

// ByteSize estimates the memory held by the bundle map. Cells are counted
// by their octant storages.
func (s *BundleStorage) ByteSize() uintptr {
	return unsafe.Sizeof(*s) + s.bundles.ByteSize()
}
