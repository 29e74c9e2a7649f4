package occupancy

import (
	"unsafe"

	"github.com/banshee-data/ndtgrid/internal/ndt/stats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cell aggregates free-space evidence and occupied-space point statistics
// for one voxel. The zero value is an empty cell.
//
// The occupancy probability is memoised against the value of the last
// inverse model used. Every mutation clears the memo.
type Cell struct {
	freeCount  uint64
	freeWeight float64
	dist       *stats.WeightedDistribution

	cache occupancyCache
}

type occupancyCache struct {
	valid       bool
	model       InverseModel
	probability float64
}

// CellState is the serialisable form of a Cell.
type CellState struct {
	FreeCount  uint64
	FreeWeight float64
	Occupied   *stats.Moments
}

// AddFree folds count free-space observations of total weight into c.
func (c *Cell) AddFree(count uint64, weight float64) {
	c.freeCount += count
	c.freeWeight += weight
	c.cache.valid = false
}

// AddOccupied absorbs an occupied-space sample.
func (c *Cell) AddOccupied(p r3.Vec, weight float64) {
	if c.dist == nil {
		c.dist = stats.NewWeightedDistribution()
	}
	c.dist.Add(p, weight)
	c.cache.valid = false
}

// MergeOccupied folds the sufficient statistics of d into the occupied
// statistics of c. A nil d is a no-op.
func (c *Cell) MergeOccupied(d *stats.WeightedDistribution) {
	if d == nil {
		return
	}
	if c.dist == nil {
		c.dist = stats.NewWeightedDistribution()
	}
	c.dist.Merge(d)
	c.cache.valid = false
}

// Merge folds all evidence of other into c: free counts and weights are
// summed and occupied statistics merged.
func (c *Cell) Merge(other *Cell) {
	if other == nil {
		return
	}
	c.freeCount += other.freeCount
	c.freeWeight += other.freeWeight
	if other.dist != nil {
		c.MergeOccupied(other.dist)
	}
	c.cache.valid = false
}

// FreeCount returns the number of free-space observations.
func (c *Cell) FreeCount() uint64 { return c.freeCount }

// FreeWeight returns the accumulated free-space weight.
func (c *Cell) FreeWeight() float64 { return c.freeWeight }

// OccupiedWeight returns the accumulated occupied weight, 0 without
// occupied statistics.
func (c *Cell) OccupiedWeight() float64 {
	if c.dist == nil {
		return 0
	}
	return c.dist.Weight()
}

// SampleCount returns the number of occupied samples.
func (c *Cell) SampleCount() uint64 {
	if c.dist == nil {
		return 0
	}
	return c.dist.SampleCount()
}

// Distribution returns the occupied statistics, nil before the first
// occupied observation. Callers must not mutate it.
func (c *Cell) Distribution() *stats.WeightedDistribution { return c.dist }

// Density evaluates the occupied statistics at p; 0 without statistics.
func (c *Cell) Density(p r3.Vec) float64 {
	if c.dist == nil {
		return 0
	}
	return c.dist.Density(p)
}

// UnnormalizedDensity is Density without the Gaussian normalisation.
func (c *Cell) UnnormalizedDensity(p r3.Vec) float64 {
	if c.dist == nil {
		return 0
	}
	return c.dist.UnnormalizedDensity(p)
}

// Occupancy returns the occupancy probability of c under model.
func (c *Cell) Occupancy(model *InverseModel) (float64, error) {
	if model == nil {
		return 0, ErrInverseModelNotSet
	}
	if c.cache.valid && c.cache.model == *model {
		return c.cache.probability, nil
	}

	var l float64
	if c.dist != nil {
		l = c.freeWeight*model.LogOddsFree() +
			c.dist.Weight()*model.LogOddsOccupied() -
			float64(c.freeCount+c.dist.SampleCount())*model.LogOddsPrior()
	} else {
		l = c.freeWeight*model.LogOddsFree() -
			float64(c.freeCount)*model.LogOddsPrior()
	}
	c.cache = occupancyCache{
		valid:       true,
		model:       *model,
		probability: LogOddsToProbability(l),
	}
	return c.cache.probability, nil
}

// Clone returns a deep copy of c.
func (c *Cell) Clone() Cell {
	out := *c
	if c.dist != nil {
		out.dist = c.dist.Clone()
	}
	return out
}

// State returns the serialisable state of c.
func (c *Cell) State() CellState {
	s := CellState{FreeCount: c.freeCount, FreeWeight: c.freeWeight}
	if c.dist != nil {
		m := c.dist.Moments()
		s.Occupied = &m
	}
	return s
}

// CellFromState rebuilds a Cell from its serialised state.
func CellFromState(s CellState) (Cell, error) {
	c := Cell{freeCount: s.FreeCount, freeWeight: s.FreeWeight}
	if s.Occupied != nil {
		d, err := stats.FromMoments(*s.Occupied)
		if err != nil {
			return Cell{}, err
		}
		c.dist = d
	}
	return c, nil
}

// ByteSize estimates the memory held by c, including occupied statistics.
func (c *Cell) ByteSize() uintptr {
	size := unsafe.Sizeof(*c)
	if c.dist != nil {
		size += c.dist.ByteSize()
	}
	return size
}
